package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"keystone/internal/config"
	"keystone/internal/domain"
	"keystone/internal/infra/noncestore"
	"keystone/internal/usecase"
)

type emptyCertRepo struct{}

func (emptyCertRepo) GetByID(ctx context.Context, id string) (*domain.Certificate, error) {
	return nil, domain.ErrNotFound
}

func (emptyCertRepo) FindLiveByContentHash(ctx context.Context, hash string) (*domain.Certificate, error) {
	return nil, nil
}

func (emptyCertRepo) Create(ctx context.Context, cert domain.Certificate) error { return nil }

func (emptyCertRepo) Update(ctx context.Context, cert domain.Certificate) error { return nil }

func (emptyCertRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Certificate, error) {
	return nil, nil
}

func (emptyCertRepo) ListExpiredValid(ctx context.Context, asOf time.Time) ([]domain.Certificate, error) {
	return nil, nil
}

type noopVerificationRepo struct{}

func (noopVerificationRepo) Create(ctx context.Context, req domain.VerificationRequest) error {
	return nil
}

func (noopVerificationRepo) GetByID(ctx context.Context, id string) (*domain.VerificationRequest, error) {
	return nil, domain.ErrNotFound
}

func (noopVerificationRepo) ListByRequester(ctx context.Context, requesterID string) ([]domain.VerificationRequest, error) {
	return nil, nil
}

type recordingAuditRepo struct {
	entries []domain.AuditEntry
}

func (r *recordingAuditRepo) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	entry.Seq = int64(len(r.entries)) + 1
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *recordingAuditRepo) ListRange(ctx context.Context, fromSeq, toSeq int64) ([]domain.AuditEntry, error) {
	return r.entries, nil
}

func (r *recordingAuditRepo) LastSeq(ctx context.Context) (int64, error) {
	return int64(len(r.entries)), nil
}

func (r *recordingAuditRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logrus.New()
	log.SetOutput(nopWriter{})

	audit := &recordingAuditRepo{}
	nonces := noncestore.NewMemoryStore(noncestore.MemoryStoreConfig{TTL: time.Minute})
	return NewServerWithDeps(config.Config{HTTPAddr: ":0"}, ServerDeps{
		Verifier: &usecase.Verifier{
			Certs:         emptyCertRepo{},
			Verifications: noopVerificationRepo{},
		},
		Replay:      &usecase.ReplayDetector{Nonces: nonces},
		AuditLogger: usecase.NewAuditLogger(audit, nil, log),
		AuditRepo:   audit,
	}, log)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func doRequest(s *Server, method, path, body string, actor bool) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if actor {
		req.Header.Set("X-Actor-ID", "user-1")
		req.Header.Set("X-Actor-Role", string(domain.RoleSecurityAuthority))
	}
	rec := httptest.NewRecorder()
	s.r.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/healthz", "", false)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestActorHeadersRequired(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/v1/nonces", "", false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "UNAUTHORIZED" {
		t.Fatalf("code = %q, want UNAUTHORIZED", resp.Code)
	}
}

func TestGenerateNonceEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/v1/nonces", "", true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Nonce      string `json:"nonce"`
		TTLSeconds int    `json:"ttl_seconds"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Nonce) != 32 || resp.TTLSeconds != 60 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestVerifyRejectsReplayedNonce(t *testing.T) {
	s := newTestServer(t)
	content := base64.StdEncoding.EncodeToString([]byte("payload"))
	body := `{"certificate_id":"missing","content_base64":"` + content + `","nonce":"n-123"}`

	// First use admits the nonce; the unknown certificate then 404s.
	rec := doRequest(s, http.MethodPost, "/v1/verify", body, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("first call status = %d, want 404", rec.Code)
	}

	rec = doRequest(s, http.MethodPost, "/v1/verify", body, true)
	if rec.Code != http.StatusConflict {
		t.Fatalf("replayed call status = %d, want 409", rec.Code)
	}
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != "REPLAY_DETECTED" {
		t.Fatalf("code = %q, want REPLAY_DETECTED", resp.Code)
	}
}

func TestCheckReplayEndpoint(t *testing.T) {
	s := newTestServer(t)
	body := `{"nonce":"abc123"}`

	rec := doRequest(s, http.MethodPost, "/v1/nonces/check", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		IsReplay  bool   `json:"is_replay"`
		RiskLevel string `json:"risk_level"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.IsReplay {
		t.Fatal("fresh nonce flagged as replay")
	}

	rec = doRequest(s, http.MethodPost, "/v1/nonces/check", body, true)
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.IsReplay || resp.RiskLevel != string(domain.RiskCritical) {
		t.Fatalf("resp = %+v, want replay with critical risk", resp)
	}
}

func TestAppendAuditEndpoint(t *testing.T) {
	s := newTestServer(t)
	body := `{"action":"CUSTOM_ACTION","resource_type":"system","resource_id":"job-1","description":"external job ran"}`

	rec := doRequest(s, http.MethodPost, "/v1/audit", body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Written bool `json:"written"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Written {
		t.Fatal("append reported not written")
	}

	rec = doRequest(s, http.MethodPost, "/v1/audit", `{"action":""}`, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty action status = %d, want 400", rec.Code)
	}
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/v1/unknown", "", true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestInvalidJSONRejected(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/v1/verify", "{not json", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
