package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"keystone/internal/domain"
	"keystone/internal/infra/crypto"
)

// Verifier runs the integrity verification pipeline against a certified
// document. Tamper, expiry, revocation and MITM findings are delivered in
// the verdict rather than as errors; only infrastructure failures error out.
type Verifier struct {
	Certs         CertificateRepository
	Authorities   AuthorityRepository
	RootKeys      RootKeyRepository
	Verifications VerificationRepository
	Audit         *AuditLogger
	Clock         Clock
}

type VerifyInput struct {
	CertificateID string
	Content       []byte
	// Signature is optional extra evidence; when absent the certificate's own
	// stored signature is checked instead.
	Signature string
}

type VerifyResult struct {
	RequestID  string
	Verdict    domain.Verdict
	Tamper     domain.TamperCheck
	TrustScore int
	Status     domain.VerificationStatus
}

func (s *Verifier) VerifyIntegrity(ctx context.Context, actor domain.Actor, in VerifyInput) (VerifyResult, error) {
	if in.CertificateID == "" || len(in.Content) == 0 {
		return VerifyResult{}, fmt.Errorf("%w: certificate id and content are required", domain.ErrValidation)
	}
	cert, err := s.Certs.GetByID(ctx, in.CertificateID)
	if err != nil {
		return VerifyResult{}, err
	}

	now := s.now()
	computedHash := crypto.HashHex(in.Content)

	// A revoked certificate ends the pipeline immediately. Everything it
	// covers counts as tampered regardless of content state.
	if cert.Revocation.IsRevoked || cert.Status == domain.CertStatusRevoked {
		verdict := domain.Verdict{
			Tampered:           true,
			CertificateRevoked: true,
			MITMRisk:           domain.MITMAssessment{RiskLevel: domain.RiskCritical, Indicators: []string{"certificate revoked"}},
			Reasons:            []string{"certificate has been revoked"},
		}
		return s.finish(ctx, actor, cert, in, computedHash, verdict, domain.TamperCheck{
			OriginalHash: cert.ContentHash,
			CurrentHash:  computedHash,
			Match:        computedHash == cert.ContentHash,
			Detected:     true,
		}, domain.VerificationFailed, now)
	}

	verdict := domain.Verdict{SignatureValid: true}

	if cert.IsExpired(now) {
		verdict.CertificateExpired = true
		verdict.Reasons = append(verdict.Reasons, "certificate validity window has passed")
	}

	tamper := domain.TamperCheck{
		OriginalHash: cert.ContentHash,
		CurrentHash:  computedHash,
		Match:        computedHash == cert.ContentHash,
	}
	tamper.Detected = !tamper.Match
	verdict.Tampered = tamper.Detected
	if tamper.Detected {
		verdict.Reasons = append(verdict.Reasons, "content hash does not match certified hash")
	}

	signature := in.Signature
	if signature == "" {
		signature = cert.DigitalSignature
	}
	if signature != "" {
		verdict.SignatureValid = s.checkSignature(ctx, cert, signature, in.Content)
		if !verdict.SignatureValid {
			verdict.Reasons = append(verdict.Reasons, "digital signature did not verify against the authority key")
		}
	}

	verdict.MITMRisk = assessMITM(tamper, verdict.SignatureValid, cert)
	if verdict.MITMRisk.RiskLevel == domain.RiskHigh || verdict.MITMRisk.RiskLevel == domain.RiskCritical {
		verdict.Reasons = append(verdict.Reasons, "elevated interception risk")
	}

	verdict.IsValid = !verdict.Tampered &&
		verdict.SignatureValid &&
		!verdict.CertificateExpired &&
		!verdict.CertificateRevoked

	status := domain.VerificationVerified
	switch {
	case verdict.Tampered:
		status = domain.VerificationTampered
	case !verdict.IsValid:
		status = domain.VerificationFailed
	}
	return s.finish(ctx, actor, cert, in, computedHash, verdict, tamper, status, now)
}

// finish persists the immutable verification record and emits the audit
// entry, then returns the assembled result.
func (s *Verifier) finish(ctx context.Context, actor domain.Actor, cert *domain.Certificate, in VerifyInput, computedHash string, verdict domain.Verdict, tamper domain.TamperCheck, status domain.VerificationStatus, now time.Time) (VerifyResult, error) {
	score := trustScore(verdict)
	req := domain.VerificationRequest{
		ID:                 uuid.NewString(),
		CertificateID:      cert.ID,
		RequestedBy:        actor.ID,
		ComputedHash:       computedHash,
		HashAlgorithm:      cert.HashAlgorithm,
		SignatureAlgorithm: cert.SignatureAlgorithm,
		ProvidedSignature:  in.Signature,
		SignatureValid:     verdict.SignatureValid,
		Status:             status,
		Verdict:            verdict,
		Tamper:             tamper,
		TrustScore:         score,
		CreatedAt:          now,
	}
	if err := s.Verifications.Create(ctx, req); err != nil {
		return VerifyResult{}, err
	}

	action := domain.AuditActionVerifyIntegrity
	auditStatus := domain.AuditStatusSuccess
	if verdict.Tampered {
		action = domain.AuditActionDetectTamper
		auditStatus = domain.AuditStatusFailure
	} else if !verdict.IsValid {
		auditStatus = domain.AuditStatusFailure
	}
	s.Audit.Record(ctx, AuditRecord{
		Action:       action,
		Actor:        actor,
		ResourceType: domain.ResourceCertificate,
		ResourceID:   cert.ID,
		ResourceName: cert.Name,
		Status:       auditStatus,
		Description:  fmt.Sprintf("verification %s for certificate %q (trust score %d)", status, cert.Name, score),
	})

	return VerifyResult{
		RequestID:  req.ID,
		Verdict:    verdict,
		Tamper:     tamper,
		TrustScore: score,
		Status:     status,
	}, nil
}

// checkSignature validates the signature over the signing payload using the
// signing authority's root key history. It reports false on any failure;
// verification never errors on bad evidence.
func (s *Verifier) checkSignature(ctx context.Context, cert *domain.Certificate, signature string, content []byte) bool {
	authority, err := s.Authorities.GetByID(ctx, cert.AuthorityID)
	if err != nil {
		return false
	}
	// Retired root keys stay in the candidate set so signatures made before
	// a rotation keep verifying.
	keys := []string{authority.PublicKeyPEM}
	if history, err := s.RootKeys.ListByAuthority(ctx, cert.AuthorityID); err == nil {
		for _, rk := range history {
			if rk.Status == domain.RootKeyStatusRevoked || rk.Status == domain.RootKeyStatusCompromised {
				continue
			}
			if rk.PublicKeyPEM != authority.PublicKeyPEM {
				keys = append(keys, rk.PublicKeyPEM)
			}
		}
	}

	// A caller-provided signature is checked over the raw submitted content
	// first, then over the content hash. The certificate's own recorded
	// signature covers the signing payload, whose exact timestamp is unknown
	// to the verifier and gets rebuilt from the custody record.
	for _, pub := range keys {
		if crypto.VerifySignature(content, signature, pub) {
			return true
		}
		if signature == cert.DigitalSignature && cert.SignedBy != "" {
			for _, payload := range candidatePayloads(cert) {
				if crypto.VerifySignature([]byte(payload), signature, pub) {
					return true
				}
			}
		}
		if crypto.VerifySignature([]byte(cert.ContentHash), signature, pub) {
			return true
		}
	}
	return false
}

// candidatePayloads rebuilds the possible signed payloads from the custody
// record, since the signing timestamp is embedded in the payload.
func candidatePayloads(cert *domain.Certificate) []string {
	payloads := make([]string, 0, len(cert.ChainOfCustody))
	for _, entry := range cert.ChainOfCustody {
		if entry.Action != "signed" {
			continue
		}
		payloads = append(payloads, fmt.Sprintf("%s::%s::%s",
			cert.ContentHash, entry.Timestamp.UTC().Format(time.RFC3339Nano), cert.AuthorityID))
	}
	return payloads
}

// assessMITM grades interception risk from the combination of findings. A
// hash mismatch with a broken signature is the classic substitution pattern.
func assessMITM(tamper domain.TamperCheck, signatureValid bool, cert *domain.Certificate) domain.MITMAssessment {
	var indicators []string
	if tamper.Detected {
		indicators = append(indicators, "content hash mismatch")
	}
	if !signatureValid {
		indicators = append(indicators, "signature verification failed")
	}
	if !cert.Signed() {
		indicators = append(indicators, "certificate was never signed")
	}

	level := domain.RiskLow
	switch {
	case tamper.Detected && !signatureValid:
		level = domain.RiskCritical
	case tamper.Detected || !signatureValid:
		level = domain.RiskHigh
	}
	return domain.MITMAssessment{RiskLevel: level, Indicators: indicators}
}

// trustScore starts at 100 and deducts per adverse finding, floored at zero.
func trustScore(v domain.Verdict) int {
	score := 100
	if v.Tampered {
		score -= 50
	}
	if !v.SignatureValid {
		score -= 30
	}
	if v.CertificateExpired {
		score -= 20
	}
	if v.CertificateRevoked {
		score -= 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// History lists the persisted verification records for a requester.
func (s *Verifier) History(ctx context.Context, requesterID string) ([]domain.VerificationRequest, error) {
	return s.Verifications.ListByRequester(ctx, requesterID)
}

func (s *Verifier) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}
