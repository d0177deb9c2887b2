package http

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"keystone/internal/domain"
	"keystone/internal/usecase"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type generateKeyRequest struct {
	Name           string `json:"name"`
	Algorithm      string `json:"algorithm"`
	Length         int    `json:"length"`
	RotationPolicy string `json:"rotation_policy"`
	AuthorityID    string `json:"authority_id"`
}

type keyResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	AuthorityID     string `json:"authority_id"`
	Algorithm       string `json:"algorithm"`
	Length          int    `json:"length"`
	PublicKeyPEM    string `json:"public_key_pem,omitempty"`
	ContentHash     string `json:"content_hash"`
	Status          string `json:"status"`
	RotationPolicy  string `json:"rotation_policy"`
	ValidFrom       string `json:"valid_from"`
	ValidUntil      string `json:"valid_until"`
	NextRotationDue string `json:"next_rotation_due,omitempty"`
	RotatedTo       string `json:"rotated_to,omitempty"`
}

func buildKeyResponse(key domain.Key) keyResponse {
	out := keyResponse{
		ID:             key.ID,
		Name:           key.Name,
		AuthorityID:    key.AuthorityID,
		Algorithm:      string(key.Algorithm),
		Length:         key.Length,
		PublicKeyPEM:   key.PublicKeyPEM,
		ContentHash:    key.ContentHash,
		Status:         string(key.Status),
		RotationPolicy: string(key.RotationPolicy),
		ValidFrom:      key.ValidFrom.Format(timeFormat),
		ValidUntil:     key.ValidUntil.Format(timeFormat),
		RotatedTo:      key.RotatedTo,
	}
	if key.NextRotationDue != nil {
		out.NextRotationDue = key.NextRotationDue.Format(timeFormat)
	}
	return out
}

const timeFormat = "2006-01-02T15:04:05.999999999Z07:00"

func (s *Server) handleGenerateKey(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	var req generateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	authorityID := req.AuthorityID
	if authorityID == "" {
		authorityID = s.defaultAuthorityID(c)
	}
	key, err := s.keyLifecycle.Generate(c.Request.Context(), actor, usecase.GenerateKeyInput{
		Name:           req.Name,
		Algorithm:      domain.KeyAlgorithm(req.Algorithm),
		Length:         req.Length,
		RotationPolicy: domain.RotationPolicy(req.RotationPolicy),
		AuthorityID:    authorityID,
	})
	s.recordKeyMetric("generate", err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildKeyResponse(key))
}

func (s *Server) handleListKeys(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	keys, err := s.keyLifecycle.Keys.ListByOwner(c.Request.Context(), actor.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]keyResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, buildKeyResponse(key))
	}
	c.JSON(http.StatusOK, gin.H{"keys": out})
}

func (s *Server) handleRotateKey(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	result, err := s.keyLifecycle.Rotate(c.Request.Context(), actor, c.Param("id"))
	s.recordKeyMetric("rotate", err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"old_key_id": result.OldKeyID,
		"new_key":    buildKeyResponse(result.NewKey),
	})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleRevokeKey(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	key, err := s.keyLifecycle.Revoke(c.Request.Context(), actor, c.Param("id"), req.Reason)
	s.recordKeyMetric("revoke", err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildKeyResponse(key))
}

type encryptRequest struct {
	PlaintextBase64 string `json:"plaintext_base64"`
}

func (s *Server) handleEncryptData(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	var req encryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	plaintext, err := base64.StdEncoding.DecodeString(req.PlaintextBase64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ENCODING", "plaintext must be base64")
		return
	}
	envelope, err := s.keyLifecycle.EncryptData(c.Request.Context(), actor, c.Param("id"), plaintext)
	s.recordKeyMetric("encrypt", err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"envelope": envelope})
}

type decryptRequest struct {
	Envelope string `json:"envelope"`
}

func (s *Server) handleDecryptData(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	var req decryptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	plaintext, err := s.keyLifecycle.DecryptData(c.Request.Context(), actor, c.Param("id"), req.Envelope)
	s.recordKeyMetric("decrypt", err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"plaintext_base64": base64.StdEncoding.EncodeToString(plaintext)})
}

type issueCertRequest struct {
	Name          string `json:"name"`
	Data          string `json:"data"`
	AuthorityID   string `json:"authority_id"`
	HashAlgorithm string `json:"hash_algorithm"`
	ValidityDays  int    `json:"validity_days"`
}

type certResponse struct {
	ID               string                `json:"id"`
	Name             string                `json:"name"`
	AuthorityID      string                `json:"authority_id"`
	ContentHash      string                `json:"content_hash"`
	Status           string                `json:"status"`
	DigitalSignature string                `json:"digital_signature,omitempty"`
	SignedBy         string                `json:"signed_by,omitempty"`
	ValidFrom        string                `json:"valid_from"`
	ValidUntil       string                `json:"valid_until"`
	Revoked          bool                  `json:"revoked"`
	RevocationReason string                `json:"revocation_reason,omitempty"`
	ChainOfCustody   []domain.CustodyEntry `json:"chain_of_custody"`
}

func buildCertResponse(cert domain.Certificate) certResponse {
	return certResponse{
		ID:               cert.ID,
		Name:             cert.Name,
		AuthorityID:      cert.AuthorityID,
		ContentHash:      cert.ContentHash,
		Status:           string(cert.Status),
		DigitalSignature: cert.DigitalSignature,
		SignedBy:         cert.SignedBy,
		ValidFrom:        cert.ValidFrom.Format(timeFormat),
		ValidUntil:       cert.ValidUntil.Format(timeFormat),
		Revoked:          cert.Revocation.IsRevoked,
		RevocationReason: cert.Revocation.Reason,
		ChainOfCustody:   cert.ChainOfCustody,
	}
}

func (s *Server) handleIssueCert(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	var req issueCertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	authorityID := req.AuthorityID
	if authorityID == "" {
		authorityID = s.defaultAuthorityID(c)
	}
	cert, err := s.certLifecycle.Issue(c.Request.Context(), actor, usecase.IssueCertInput{
		Name:          req.Name,
		Data:          req.Data,
		AuthorityID:   authorityID,
		HashAlgorithm: req.HashAlgorithm,
		ValidityDays:  req.ValidityDays,
	})
	s.recordCertMetric("issue", err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildCertResponse(cert))
}

func (s *Server) handleGetCert(c *gin.Context) {
	if _, ok := s.requireActor(c); !ok {
		return
	}
	cert, err := s.certLifecycle.Certs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildCertResponse(*cert))
}

func (s *Server) handleCertSignatureStatus(c *gin.Context) {
	if _, ok := s.requireActor(c); !ok {
		return
	}
	cert, err := s.certLifecycle.Certs.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"verified":  cert.SignatureVerified(),
		"signed_by": cert.SignedBy,
	})
}

func (s *Server) handleSignCert(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	cert, err := s.certLifecycle.Sign(c.Request.Context(), actor, c.Param("id"))
	s.recordCertMetric("sign", err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildCertResponse(cert))
}

func (s *Server) handleRevokeCert(c *gin.Context) {
	s.handleCertTransition(c, "revoke", func(actor domain.Actor, id, reason string) (domain.Certificate, error) {
		return s.certLifecycle.Revoke(c.Request.Context(), actor, id, reason)
	})
}

func (s *Server) handleSuspendCert(c *gin.Context) {
	s.handleCertTransition(c, "suspend", func(actor domain.Actor, id, reason string) (domain.Certificate, error) {
		return s.certLifecycle.Suspend(c.Request.Context(), actor, id, reason)
	})
}

func (s *Server) handleReinstateCert(c *gin.Context) {
	s.handleCertTransition(c, "reinstate", func(actor domain.Actor, id, reason string) (domain.Certificate, error) {
		return s.certLifecycle.Reinstate(c.Request.Context(), actor, id, reason)
	})
}

func (s *Server) handleCertTransition(c *gin.Context, operation string, fn func(domain.Actor, string, string) (domain.Certificate, error)) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	var req reasonRequest
	_ = c.ShouldBindJSON(&req)
	cert, err := fn(actor, c.Param("id"), req.Reason)
	s.recordCertMetric(operation, err)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildCertResponse(cert))
}

type verifyRequest struct {
	CertificateID string `json:"certificate_id"`
	ContentBase64 string `json:"content_base64"`
	Signature     string `json:"signature"`
	Nonce         string `json:"nonce"`
}

func (s *Server) handleVerify(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.ContentBase64)
	if err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_ENCODING", "content must be base64")
		return
	}

	var replay *domain.ReplayCheck
	if req.Nonce != "" && s.replay != nil {
		check, err := s.replay.Check(c.Request.Context(), actor, req.Nonce)
		if err != nil {
			writeError(c, err)
			return
		}
		replay = &check
		if check.IsReplay {
			if s.metrics != nil {
				s.metrics.RecordReplayDetected()
			}
			c.JSON(http.StatusConflict, gin.H{
				"code":    "REPLAY_DETECTED",
				"message": "nonce was already used",
				"replay":  check,
			})
			return
		}
	}

	result, err := s.verifier.VerifyIntegrity(c.Request.Context(), actor, usecase.VerifyInput{
		CertificateID: req.CertificateID,
		Content:       content,
		Signature:     req.Signature,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.RecordVerification(string(result.Status))
	}
	c.JSON(http.StatusOK, gin.H{
		"request_id":  result.RequestID,
		"status":      result.Status,
		"verdict":     result.Verdict,
		"tamper":      result.Tamper,
		"trust_score": result.TrustScore,
		"replay":      replay,
	})
}

func (s *Server) handleListVerifications(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	history, err := s.verifier.History(c.Request.Context(), actor.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"verifications": history})
}

func (s *Server) handleGenerateNonce(c *gin.Context) {
	if _, ok := s.requireActor(c); !ok {
		return
	}
	nonce, err := s.replay.GenerateNonce()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"nonce":       nonce,
		"ttl_seconds": int(s.replay.Nonces.TTL().Seconds()),
	})
}

type checkReplayRequest struct {
	Nonce string `json:"nonce"`
}

func (s *Server) handleCheckReplay(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	var req checkReplayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	check, err := s.replay.Check(c.Request.Context(), actor, req.Nonce)
	if err != nil {
		writeError(c, err)
		return
	}
	if check.IsReplay && s.metrics != nil {
		s.metrics.RecordReplayDetected()
	}
	c.JSON(http.StatusOK, gin.H{
		"is_replay":  check.IsReplay,
		"risk_level": check.RiskLevel,
	})
}

type appendAuditRequest struct {
	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	ResourceName string `json:"resource_name"`
	Description  string `json:"description"`
	Status       string `json:"status"`
	Severity     string `json:"severity"`
}

// handleAppendAudit lets callers record their own ledger entries. The append
// is best-effort and never errors; the response says whether it was written.
func (s *Server) handleAppendAudit(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	var req appendAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	if req.Action == "" {
		writeErrorCode(c, http.StatusBadRequest, "VALIDATION_FAILED", "action is required")
		return
	}
	written := s.auditLogger.Record(c.Request.Context(), usecase.AuditRecord{
		Action:       domain.AuditAction(req.Action),
		Actor:        actor,
		ResourceType: domain.ResourceType(req.ResourceType),
		ResourceID:   req.ResourceID,
		ResourceName: req.ResourceName,
		Description:  req.Description,
		Status:       domain.AuditStatus(req.Status),
		Severity:     domain.AuditSeverity(req.Severity),
	})
	c.JSON(http.StatusOK, gin.H{"written": written})
}

type createAuthorityRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	KeyLength        int    `json:"key_length"`
	CertLifetimeDays int    `json:"cert_lifetime_days"`
	TrustLevel       int    `json:"trust_level"`
}

func (s *Server) handleCreateAuthority(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	var req createAuthorityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	authority, err := s.authoritySvc.Create(c.Request.Context(), actor, usecase.CreateAuthorityInput{
		Name:             req.Name,
		Description:      req.Description,
		KeyLength:        req.KeyLength,
		CertLifetimeDays: req.CertLifetimeDays,
		TrustLevel:       req.TrustLevel,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"id":             authority.ID,
		"name":           authority.Name,
		"root_key_id":    authority.RootKeyID,
		"public_key_pem": authority.PublicKeyPEM,
		"status":         authority.Status,
	})
}

func (s *Server) handleRotateRootKey(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	rootKey, err := s.authoritySvc.RotateRootKey(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"root_key_id":    rootKey.ID,
		"public_key_pem": rootKey.PublicKeyPEM,
		"status":         rootKey.Status,
	})
}

func (s *Server) handleListAudit(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	if actor.Role != domain.RoleSecurityAuthority && actor.Role != domain.RoleAuditor {
		writeError(c, domain.ErrForbidden)
		return
	}
	from := parseInt64Query(c, "from", 1)
	to := parseInt64Query(c, "to", 0)
	if to == 0 {
		last, err := s.auditRepo.LastSeq(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		to = last
	}
	entries, err := s.auditRepo.ListRange(c.Request.Context(), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (s *Server) handleVerifyAuditChain(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	if actor.Role != domain.RoleSecurityAuthority && actor.Role != domain.RoleAuditor {
		writeError(c, domain.ErrForbidden)
		return
	}
	from := parseInt64Query(c, "from", 1)
	to := parseInt64Query(c, "to", 0)
	brk, err := usecase.VerifyChain(c.Request.Context(), s.auditRepo, from, to)
	if err != nil && !errors.Is(err, domain.ErrChainIntegrity) {
		writeError(c, err)
		return
	}
	if brk != nil {
		c.JSON(http.StatusOK, gin.H{
			"intact": false,
			"break":  gin.H{"entry_id": brk.EntryID, "seq": brk.Seq, "reason": brk.Reason},
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"intact": true})
}

// Maintenance endpoints back the external periodic caller that sweeps
// rotation-due keys and expired certificates.

func (s *Server) handleRotationDue(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	if actor.Role != domain.RoleSecurityAuthority {
		writeError(c, domain.ErrForbidden)
		return
	}
	keys, err := s.keyLifecycle.RotationDue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]keyResponse, 0, len(keys))
	for _, key := range keys {
		out = append(out, buildKeyResponse(key))
	}
	c.JSON(http.StatusOK, gin.H{"keys": out})
}

func (s *Server) handleExpireCerts(c *gin.Context) {
	actor, ok := s.requireActor(c)
	if !ok {
		return
	}
	if actor.Role != domain.RoleSecurityAuthority {
		writeError(c, domain.ErrForbidden)
		return
	}
	expired, err := s.certLifecycle.ExpireDue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"expired": expired})
}

func (s *Server) handleNoRoute(c *gin.Context) {
	writeErrorCode(c, http.StatusNotFound, "NOT_FOUND", "route not found")
}

// requireActor resolves the caller identity forwarded by the authentication
// layer in front of this service.
func (s *Server) requireActor(c *gin.Context) (domain.Actor, bool) {
	actor := domain.Actor{
		ID:   c.GetHeader("X-Actor-ID"),
		Name: c.GetHeader("X-Actor-Name"),
		Role: domain.Role(c.GetHeader("X-Actor-Role")),
	}
	if actor.ID == "" {
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "actor identity headers are required")
		return domain.Actor{}, false
	}
	if actor.Role == "" {
		actor.Role = domain.RoleSystemClient
	}
	return actor, true
}

func (s *Server) defaultAuthorityID(c *gin.Context) string {
	if s.authoritySvc == nil || s.authoritySvc.Authorities == nil {
		return ""
	}
	authority, err := s.authoritySvc.Authorities.GetDefault(c.Request.Context())
	if err != nil {
		return ""
	}
	return authority.ID
}

func (s *Server) recordKeyMetric(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordKeyOperation(operation, err)
	}
}

func (s *Server) recordCertMetric(operation string, err error) {
	if s.metrics != nil {
		s.metrics.RecordCertOperation(operation, err)
	}
}

func parseInt64Query(c *gin.Context, name string, def int64) int64 {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func writeError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrValidation):
		status, code = http.StatusBadRequest, "VALIDATION_FAILED"
	case errors.Is(err, domain.ErrDuplicateResource):
		status, code = http.StatusConflict, "DUPLICATE_RESOURCE"
	case errors.Is(err, domain.ErrAlreadySigned):
		status, code = http.StatusConflict, "ALREADY_SIGNED"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrDecryption):
		status, code = http.StatusBadRequest, "DECRYPT_FAILED"
	case errors.Is(err, domain.ErrCryptoOperation):
		status, code = http.StatusBadRequest, "CRYPTO_OPERATION_FAILED"
	case errors.Is(err, domain.ErrChainIntegrity):
		status, code = http.StatusInternalServerError, "CHAIN_INTEGRITY"
	}
	writeErrorCode(c, status, code, err.Error())
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
