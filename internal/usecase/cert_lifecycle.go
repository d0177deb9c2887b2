package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"keystone/internal/domain"
	"keystone/internal/infra/crypto"
)

// CertLifecycle manages certificate issuance, signing by a trust authority's
// root key, revocation and suspension. Every mutation appends to the
// certificate's chain of custody.
type CertLifecycle struct {
	Certs       CertificateRepository
	Authorities AuthorityRepository
	RootKeys    RootKeyRepository
	Policies    PolicyRepository
	Authorizer  Authorizer
	Audit       *AuditLogger
	MasterKey   string
	Validity    time.Duration
	Clock       Clock
}

type IssueCertInput struct {
	Name          string
	Data          string
	AuthorityID   string
	HashAlgorithm string
	ValidityDays  int
}

// Issue creates a pending certificate over the given content. The content
// hash must be unique among live certificates; a duplicate means the same
// payload was already certified.
func (s *CertLifecycle) Issue(ctx context.Context, actor domain.Actor, in IssueCertInput) (domain.Certificate, error) {
	if in.Name == "" || in.Data == "" {
		return domain.Certificate{}, fmt.Errorf("%w: name and data are required", domain.ErrValidation)
	}
	if in.AuthorityID == "" {
		return domain.Certificate{}, fmt.Errorf("%w: no trust authority assigned", domain.ErrValidation)
	}
	if err := s.authorize(ctx, actor, domain.CapabilityIssueCerts); err != nil {
		return domain.Certificate{}, err
	}
	authority, err := s.Authorities.GetByID(ctx, in.AuthorityID)
	if err != nil {
		return domain.Certificate{}, err
	}

	contentHash := crypto.HashHex([]byte(in.Data))
	if existing, err := s.Certs.FindLiveByContentHash(ctx, contentHash); err != nil {
		return domain.Certificate{}, err
	} else if existing != nil {
		return domain.Certificate{}, fmt.Errorf("%w: content already certified by %s", domain.ErrDuplicateResource, existing.ID)
	}

	now := s.now()
	cert := domain.Certificate{
		ID:                 uuid.NewString(),
		Name:               in.Name,
		AuthorityID:        authority.ID,
		Data:               in.Data,
		ContentHash:        contentHash,
		Status:             domain.CertStatusPending,
		SignatureAlgorithm: crypto.SignatureAlgorithmRSA,
		HashAlgorithm:      defaultString(in.HashAlgorithm, "sha256"),
		RequestedBy:        actor.ID,
		OwnerID:            actor.ID,
		ValidFrom:          now,
		ValidUntil:         now.Add(s.validityFor(ctx, authority, in.ValidityDays)),
		ChainOfCustody: []domain.CustodyEntry{{
			Action:    "issued",
			Actor:     actor.ID,
			Timestamp: now,
			Details:   "certificate request created",
		}},
		CreatedAt: now,
	}
	if err := s.Certs.Create(ctx, cert); err != nil {
		return domain.Certificate{}, err
	}

	authority.IssuedCertCount++
	if err := s.Authorities.Update(ctx, *authority); err != nil {
		return domain.Certificate{}, err
	}

	s.Audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionIssueCert,
		Actor:        actor,
		ResourceType: domain.ResourceCertificate,
		ResourceID:   cert.ID,
		ResourceName: cert.Name,
		Description:  fmt.Sprintf("issued certificate %q under authority %q", cert.Name, authority.Name),
	})
	return cert, nil
}

// Sign signs a pending certificate with the authority's active root key. The
// signed payload is contentHash::timestamp::signerID so the signature binds
// the content, the signing moment and the authority identity together.
func (s *CertLifecycle) Sign(ctx context.Context, actor domain.Actor, certID string) (domain.Certificate, error) {
	if err := s.authorize(ctx, actor, domain.CapabilitySignCerts); err != nil {
		return domain.Certificate{}, err
	}
	cert, err := s.Certs.GetByID(ctx, certID)
	if err != nil {
		return domain.Certificate{}, err
	}
	if cert.Signed() {
		return domain.Certificate{}, fmt.Errorf("%w: certificate %s", domain.ErrAlreadySigned, cert.ID)
	}
	if !cert.Status.CanTransitionTo(domain.CertStatusValid) {
		return domain.Certificate{}, fmt.Errorf("%w: cannot sign certificate in state %q", domain.ErrValidation, cert.Status)
	}

	rootKey, err := s.RootKeys.GetActiveByAuthority(ctx, cert.AuthorityID)
	if err != nil {
		return domain.Certificate{}, err
	}
	privatePEM, err := s.unwrapRootKey(rootKey)
	if err != nil {
		return domain.Certificate{}, err
	}

	now := s.now()
	payload := fmt.Sprintf("%s::%s::%s", cert.ContentHash, now.UTC().Format(time.RFC3339Nano), cert.AuthorityID)
	signature, err := crypto.Sign([]byte(payload), privatePEM)
	if err != nil {
		return domain.Certificate{}, err
	}

	cert.DigitalSignature = signature
	cert.SignedBy = cert.AuthorityID
	cert.Status = domain.CertStatusValid
	cert.ChainOfCustody = append(cert.ChainOfCustody, domain.CustodyEntry{
		Action:    "signed",
		Actor:     actor.ID,
		Timestamp: now,
		Details:   fmt.Sprintf("signed with root key %s", rootKey.ID),
	})
	if err := s.Certs.Update(ctx, *cert); err != nil {
		return domain.Certificate{}, err
	}

	rootKey.Usage.Signing++
	if err := s.RootKeys.Update(ctx, *rootKey); err != nil {
		return domain.Certificate{}, err
	}

	s.Audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionSignCert,
		Actor:        actor,
		ResourceType: domain.ResourceCertificate,
		ResourceID:   cert.ID,
		ResourceName: cert.Name,
		Description:  fmt.Sprintf("signed certificate %q with root key %s", cert.Name, rootKey.ID),
	})
	return *cert, nil
}

// Revoke is terminal: a revoked certificate can never return to service, and
// re-revoking is rejected.
func (s *CertLifecycle) Revoke(ctx context.Context, actor domain.Actor, certID, reason string) (domain.Certificate, error) {
	if err := s.authorize(ctx, actor, domain.CapabilityRevokeCerts); err != nil {
		return domain.Certificate{}, err
	}
	cert, err := s.Certs.GetByID(ctx, certID)
	if err != nil {
		return domain.Certificate{}, err
	}
	if cert.Revocation.IsRevoked || !cert.Status.CanTransitionTo(domain.CertStatusRevoked) {
		return domain.Certificate{}, fmt.Errorf("%w: certificate %s already revoked or not revocable", domain.ErrValidation, cert.ID)
	}

	now := s.now()
	cert.Status = domain.CertStatusRevoked
	cert.Revocation = domain.Revocation{
		IsRevoked: true,
		RevokedAt: &now,
		RevokedBy: actor.ID,
		Reason:    reason,
	}
	cert.ChainOfCustody = append(cert.ChainOfCustody, domain.CustodyEntry{
		Action:    "revoked",
		Actor:     actor.ID,
		Timestamp: now,
		Details:   reason,
	})
	if err := s.Certs.Update(ctx, *cert); err != nil {
		return domain.Certificate{}, err
	}

	if authority, err := s.Authorities.GetByID(ctx, cert.AuthorityID); err == nil {
		authority.RevokedCertCount++
		if err := s.Authorities.Update(ctx, *authority); err != nil {
			return domain.Certificate{}, err
		}
	}

	s.Audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionRevokeCert,
		Actor:        actor,
		ResourceType: domain.ResourceCertificate,
		ResourceID:   cert.ID,
		ResourceName: cert.Name,
		Description:  fmt.Sprintf("revoked certificate %q: %s", cert.Name, reason),
	})
	return *cert, nil
}

// Suspend takes a valid certificate out of service without revoking it.
func (s *CertLifecycle) Suspend(ctx context.Context, actor domain.Actor, certID, reason string) (domain.Certificate, error) {
	return s.transition(ctx, actor, certID, domain.CertStatusSuspended, "suspended", reason, domain.AuditActionSuspendCert)
}

// Reinstate returns a suspended certificate to valid. This is the only
// reversible edge in the state machine.
func (s *CertLifecycle) Reinstate(ctx context.Context, actor domain.Actor, certID, reason string) (domain.Certificate, error) {
	return s.transition(ctx, actor, certID, domain.CertStatusValid, "reinstated", reason, domain.AuditActionReinstateCert)
}

func (s *CertLifecycle) transition(ctx context.Context, actor domain.Actor, certID string, next domain.CertificateStatus, custodyAction, reason string, auditAction domain.AuditAction) (domain.Certificate, error) {
	if err := s.authorize(ctx, actor, domain.CapabilityRevokeCerts); err != nil {
		return domain.Certificate{}, err
	}
	cert, err := s.Certs.GetByID(ctx, certID)
	if err != nil {
		return domain.Certificate{}, err
	}
	if !cert.Status.CanTransitionTo(next) {
		return domain.Certificate{}, fmt.Errorf("%w: cannot move certificate from %q to %q", domain.ErrValidation, cert.Status, next)
	}
	cert.Status = next
	cert.ChainOfCustody = append(cert.ChainOfCustody, domain.CustodyEntry{
		Action:    custodyAction,
		Actor:     actor.ID,
		Timestamp: s.now(),
		Details:   reason,
	})
	if err := s.Certs.Update(ctx, *cert); err != nil {
		return domain.Certificate{}, err
	}
	s.Audit.Record(ctx, AuditRecord{
		Action:       auditAction,
		Actor:        actor,
		ResourceType: domain.ResourceCertificate,
		ResourceID:   cert.ID,
		ResourceName: cert.Name,
		Description:  fmt.Sprintf("%s certificate %q: %s", custodyAction, cert.Name, reason),
	})
	return *cert, nil
}

// ExpireDue marks valid certificates past their validity window as expired.
// Meant for the external scheduler.
func (s *CertLifecycle) ExpireDue(ctx context.Context) (int, error) {
	due, err := s.Certs.ListExpiredValid(ctx, s.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, cert := range due {
		cert.Status = domain.CertStatusExpired
		if err := s.Certs.Update(ctx, cert); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (s *CertLifecycle) unwrapRootKey(rk *domain.RootKey) (string, error) {
	env, err := crypto.ParseEnvelope(rk.PrivateKeyEncrypted)
	if err != nil {
		return "", err
	}
	plain, err := crypto.AEADDecrypt(env, s.MasterKey)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (s *CertLifecycle) validityFor(ctx context.Context, authority *domain.TrustAuthority, requestedDays int) time.Duration {
	if requestedDays > 0 {
		return time.Duration(requestedDays) * 24 * time.Hour
	}
	if s.Policies != nil {
		if policy, err := s.Policies.GetActiveByAuthority(ctx, authority.ID); err == nil && policy != nil && policy.CertValidityDays > 0 {
			return time.Duration(policy.CertValidityDays) * 24 * time.Hour
		}
	}
	if authority.CertLifetimeDays > 0 {
		return time.Duration(authority.CertLifetimeDays) * 24 * time.Hour
	}
	if s.Validity > 0 {
		return s.Validity
	}
	return 365 * 24 * time.Hour
}

func (s *CertLifecycle) authorize(ctx context.Context, actor domain.Actor, cap domain.Capability) error {
	if s.Authorizer == nil {
		return nil
	}
	decision, err := s.Authorizer.Allowed(ctx, actor, cap)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return fmt.Errorf("%w: role %q lacks %q", domain.ErrForbidden, actor.Role, cap)
	}
	return nil
}

func (s *CertLifecycle) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func defaultString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
