package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"keystone/internal/domain"
)

const testMasterKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func testClock(start time.Time) (Clock, func(d time.Duration)) {
	current := start
	clock := func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }
	return clock, advance
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(nopWriter{})
	return log
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

type memoryKeyRepo struct {
	keys map[string]domain.Key
}

func newMemoryKeyRepo() *memoryKeyRepo {
	return &memoryKeyRepo{keys: make(map[string]domain.Key)}
}

func (r *memoryKeyRepo) GetByID(ctx context.Context, id string) (*domain.Key, error) {
	key, ok := r.keys[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &key, nil
}

func (r *memoryKeyRepo) FindLiveByContentHash(ctx context.Context, hash string) (*domain.Key, error) {
	for _, key := range r.keys {
		if key.ContentHash == hash && !key.Status.Terminal() {
			copied := key
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryKeyRepo) Create(ctx context.Context, key domain.Key) error {
	key.Version = 1
	r.keys[key.ID] = key
	return nil
}

func (r *memoryKeyRepo) Update(ctx context.Context, key domain.Key) error {
	stored, ok := r.keys[key.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != key.Version {
		return domain.ErrConflict
	}
	key.Version++
	r.keys[key.ID] = key
	return nil
}

func (r *memoryKeyRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Key, error) {
	var out []domain.Key
	for _, key := range r.keys {
		if key.OwnerID == ownerID {
			out = append(out, key)
		}
	}
	return out, nil
}

func (r *memoryKeyRepo) ListRotationDue(ctx context.Context, asOf time.Time) ([]domain.Key, error) {
	var out []domain.Key
	for _, key := range r.keys {
		if key.Status == domain.KeyStatusActive && key.NextRotationDue != nil && asOf.After(*key.NextRotationDue) {
			out = append(out, key)
		}
	}
	return out, nil
}

type memoryCertRepo struct {
	certs map[string]domain.Certificate
}

func newMemoryCertRepo() *memoryCertRepo {
	return &memoryCertRepo{certs: make(map[string]domain.Certificate)}
}

func (r *memoryCertRepo) GetByID(ctx context.Context, id string) (*domain.Certificate, error) {
	cert, ok := r.certs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cert, nil
}

func (r *memoryCertRepo) FindLiveByContentHash(ctx context.Context, hash string) (*domain.Certificate, error) {
	for _, cert := range r.certs {
		if cert.ContentHash == hash && cert.Status != domain.CertStatusRevoked && cert.Status != domain.CertStatusExpired {
			copied := cert
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryCertRepo) Create(ctx context.Context, cert domain.Certificate) error {
	cert.Version = 1
	r.certs[cert.ID] = cert
	return nil
}

func (r *memoryCertRepo) Update(ctx context.Context, cert domain.Certificate) error {
	stored, ok := r.certs[cert.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Version != cert.Version {
		return domain.ErrConflict
	}
	cert.Version++
	r.certs[cert.ID] = cert
	return nil
}

func (r *memoryCertRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Certificate, error) {
	var out []domain.Certificate
	for _, cert := range r.certs {
		if cert.OwnerID == ownerID {
			out = append(out, cert)
		}
	}
	return out, nil
}

func (r *memoryCertRepo) ListExpiredValid(ctx context.Context, asOf time.Time) ([]domain.Certificate, error) {
	var out []domain.Certificate
	for _, cert := range r.certs {
		if cert.Status == domain.CertStatusValid && cert.IsExpired(asOf) {
			out = append(out, cert)
		}
	}
	return out, nil
}

type memoryAuthorityRepo struct {
	authorities map[string]domain.TrustAuthority
}

func newMemoryAuthorityRepo() *memoryAuthorityRepo {
	return &memoryAuthorityRepo{authorities: make(map[string]domain.TrustAuthority)}
}

func (r *memoryAuthorityRepo) GetByID(ctx context.Context, id string) (*domain.TrustAuthority, error) {
	authority, ok := r.authorities[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &authority, nil
}

func (r *memoryAuthorityRepo) GetDefault(ctx context.Context) (*domain.TrustAuthority, error) {
	for _, authority := range r.authorities {
		if authority.IsDefault {
			copied := authority
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryAuthorityRepo) Create(ctx context.Context, authority domain.TrustAuthority) error {
	authority.Version = 1
	r.authorities[authority.ID] = authority
	return nil
}

func (r *memoryAuthorityRepo) Update(ctx context.Context, authority domain.TrustAuthority) error {
	if _, ok := r.authorities[authority.ID]; !ok {
		return domain.ErrNotFound
	}
	authority.Version++
	r.authorities[authority.ID] = authority
	return nil
}

type memoryRootKeyRepo struct {
	keys map[string]domain.RootKey
}

func newMemoryRootKeyRepo() *memoryRootKeyRepo {
	return &memoryRootKeyRepo{keys: make(map[string]domain.RootKey)}
}

func (r *memoryRootKeyRepo) GetByID(ctx context.Context, id string) (*domain.RootKey, error) {
	key, ok := r.keys[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &key, nil
}

func (r *memoryRootKeyRepo) GetActiveByAuthority(ctx context.Context, authorityID string) (*domain.RootKey, error) {
	for _, key := range r.keys {
		if key.AuthorityID == authorityID && key.Status == domain.RootKeyStatusActive {
			copied := key
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *memoryRootKeyRepo) ListByAuthority(ctx context.Context, authorityID string) ([]domain.RootKey, error) {
	var out []domain.RootKey
	for _, key := range r.keys {
		if key.AuthorityID == authorityID {
			out = append(out, key)
		}
	}
	return out, nil
}

func (r *memoryRootKeyRepo) Create(ctx context.Context, key domain.RootKey) error {
	r.keys[key.ID] = key
	return nil
}

func (r *memoryRootKeyRepo) Update(ctx context.Context, key domain.RootKey) error {
	if _, ok := r.keys[key.ID]; !ok {
		return domain.ErrNotFound
	}
	r.keys[key.ID] = key
	return nil
}

type memoryPolicyRepo struct {
	policies map[string]domain.CryptoPolicy
}

func newMemoryPolicyRepo() *memoryPolicyRepo {
	return &memoryPolicyRepo{policies: make(map[string]domain.CryptoPolicy)}
}

func (r *memoryPolicyRepo) GetActiveByAuthority(ctx context.Context, authorityID string) (*domain.CryptoPolicy, error) {
	for _, policy := range r.policies {
		if policy.AuthorityID == authorityID && policy.Status == "active" {
			copied := policy
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *memoryPolicyRepo) Create(ctx context.Context, policy domain.CryptoPolicy) error {
	r.policies[policy.ID] = policy
	return nil
}

// memoryAuditRepo mirrors the chain-head semantics of the database repo:
// Append reads the last entry and links the new one under a lock.
type memoryAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	failing bool
}

func newMemoryAuditRepo() *memoryAuditRepo { return &memoryAuditRepo{} }

func (r *memoryAuditRepo) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return domain.AuditEntry{}, domain.ErrChainIntegrity
	}
	prev := domain.GenesisHash
	var seq int64 = 1
	if n := len(r.entries); n > 0 {
		prev = r.entries[n-1].LogHash
		seq = r.entries[n-1].Seq + 1
	}
	entry.ID = uuid.NewString()
	entry.Seq = seq
	entry.PreviousLogHash = prev
	entry.LogHash = domain.ChainHash(entry)
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *memoryAuditRepo) ListRange(ctx context.Context, fromSeq, toSeq int64) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEntry
	for _, entry := range r.entries {
		if entry.Seq >= fromSeq && entry.Seq <= toSeq {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *memoryAuditRepo) LastSeq(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return 0, nil
	}
	return r.entries[len(r.entries)-1].Seq, nil
}

func (r *memoryAuditRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []domain.AuditEntry
	var purged int64
	for _, entry := range r.entries {
		if entry.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, entry)
	}
	r.entries = kept
	return purged, nil
}

type memoryVerificationRepo struct {
	requests map[string]domain.VerificationRequest
}

func newMemoryVerificationRepo() *memoryVerificationRepo {
	return &memoryVerificationRepo{requests: make(map[string]domain.VerificationRequest)}
}

func (r *memoryVerificationRepo) Create(ctx context.Context, req domain.VerificationRequest) error {
	r.requests[req.ID] = req
	return nil
}

func (r *memoryVerificationRepo) GetByID(ctx context.Context, id string) (*domain.VerificationRequest, error) {
	req, ok := r.requests[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &req, nil
}

func (r *memoryVerificationRepo) ListByRequester(ctx context.Context, requesterID string) ([]domain.VerificationRequest, error) {
	var out []domain.VerificationRequest
	for _, req := range r.requests {
		if req.RequestedBy == requesterID {
			out = append(out, req)
		}
	}
	return out, nil
}

// allowAll grants every capability; per-test denials use denyAll.
type allowAll struct{}

func (allowAll) Allowed(ctx context.Context, actor domain.Actor, capability domain.Capability) (domain.PolicyDecision, error) {
	return domain.PolicyDecision{Allowed: true}, nil
}

type denyAll struct{}

func (denyAll) Allowed(ctx context.Context, actor domain.Actor, capability domain.Capability) (domain.PolicyDecision, error) {
	return domain.PolicyDecision{Allowed: false, Reasons: []string{"denied"}}, nil
}

type fixedTTLNonceStore struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	ttl   time.Duration
	clock Clock
}

func newFixedTTLNonceStore(ttl time.Duration, clock Clock) *fixedTTLNonceStore {
	return &fixedTTLNonceStore{seen: make(map[string]time.Time), ttl: ttl, clock: clock}
}

func (s *fixedTTLNonceStore) PutIfAbsent(ctx context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	if expiry, ok := s.seen[nonce]; ok && now.Before(expiry) {
		return false, nil
	}
	s.seen[nonce] = now.Add(s.ttl)
	return true, nil
}

func (s *fixedTTLNonceStore) TTL() time.Duration { return s.ttl }

// testEnv wires every service against the in-memory fakes with one clock.
type testEnv struct {
	keys          *memoryKeyRepo
	certs         *memoryCertRepo
	authorities   *memoryAuthorityRepo
	rootKeys      *memoryRootKeyRepo
	policies      *memoryPolicyRepo
	audit         *memoryAuditRepo
	verifications *memoryVerificationRepo

	keyLifecycle  *KeyLifecycle
	certLifecycle *CertLifecycle
	authority     *AuthorityService
	verifier      *Verifier

	clock   Clock
	advance func(time.Duration)
}

func newTestEnv() *testEnv {
	clock, advance := testClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	env := &testEnv{
		keys:          newMemoryKeyRepo(),
		certs:         newMemoryCertRepo(),
		authorities:   newMemoryAuthorityRepo(),
		rootKeys:      newMemoryRootKeyRepo(),
		policies:      newMemoryPolicyRepo(),
		audit:         newMemoryAuditRepo(),
		verifications: newMemoryVerificationRepo(),
		clock:         clock,
		advance:       advance,
	}
	auditLogger := NewAuditLogger(env.audit, clock, quietLogger())
	env.keyLifecycle = &KeyLifecycle{
		Keys:        env.keys,
		Policies:    env.policies,
		Authorities: env.authorities,
		Authorizer:  allowAll{},
		Audit:       auditLogger,
		MasterKey:   testMasterKey,
		Clock:       clock,
	}
	env.certLifecycle = &CertLifecycle{
		Certs:       env.certs,
		Authorities: env.authorities,
		RootKeys:    env.rootKeys,
		Policies:    env.policies,
		Authorizer:  allowAll{},
		Audit:       auditLogger,
		MasterKey:   testMasterKey,
		Clock:       clock,
	}
	env.authority = &AuthorityService{
		Authorities: env.authorities,
		RootKeys:    env.rootKeys,
		Audit:       auditLogger,
		MasterKey:   testMasterKey,
		Log:         quietLogger(),
		Clock:       clock,
	}
	env.verifier = &Verifier{
		Certs:         env.certs,
		Authorities:   env.authorities,
		RootKeys:      env.rootKeys,
		Verifications: env.verifications,
		Audit:         auditLogger,
		Clock:         clock,
	}
	return env
}
