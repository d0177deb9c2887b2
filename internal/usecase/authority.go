package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"keystone/internal/domain"
	"keystone/internal/infra/crypto"
)

const (
	defaultAuthorityName = "Default Trust Authority"
	defaultRootKeyBits   = 2048
	defaultTrustScore    = 100
)

// AuthorityService manages trust authorities and their root keypairs. An
// authority's root private key is generated in-process, envelope-encrypted
// under the master key and never stored or returned in plaintext.
type AuthorityService struct {
	Authorities AuthorityRepository
	RootKeys    RootKeyRepository
	Audit       *AuditLogger
	MasterKey   string
	Log         *logrus.Logger
	Clock       Clock
}

type CreateAuthorityInput struct {
	Name             string
	Description      string
	KeyLength        int
	CertLifetimeDays int
	TrustLevel       int
	IsDefault        bool
}

func (s *AuthorityService) Create(ctx context.Context, actor domain.Actor, in CreateAuthorityInput) (domain.TrustAuthority, error) {
	if in.Name == "" {
		return domain.TrustAuthority{}, fmt.Errorf("%w: authority name is required", domain.ErrValidation)
	}
	if in.KeyLength == 0 {
		in.KeyLength = defaultRootKeyBits
	}

	rootKey, publicPEM, err := s.generateRootKey(actor, in.KeyLength)
	if err != nil {
		return domain.TrustAuthority{}, err
	}

	now := s.now()
	authority := domain.TrustAuthority{
		ID:               uuid.NewString(),
		Name:             in.Name,
		Description:      in.Description,
		AdministratorID:  actor.ID,
		RootKeyID:        rootKey.ID,
		PublicKeyPEM:     publicPEM,
		KeyLength:        in.KeyLength,
		Status:           domain.AuthorityStatusActive,
		CertLifetimeDays: in.CertLifetimeDays,
		TrustLevel:       in.TrustLevel,
		PolicyVersion:    1,
		IsDefault:        in.IsDefault,
		CreatedAt:        now,
	}
	rootKey.AuthorityID = authority.ID

	if err := s.Authorities.Create(ctx, authority); err != nil {
		return domain.TrustAuthority{}, err
	}
	if err := s.RootKeys.Create(ctx, rootKey); err != nil {
		return domain.TrustAuthority{}, err
	}

	s.Audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionCreateAuthority,
		Actor:        actor,
		ResourceType: domain.ResourceAuthority,
		ResourceID:   authority.ID,
		ResourceName: authority.Name,
		Description:  fmt.Sprintf("created trust authority %q", authority.Name),
	})
	s.Audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionGenerateRootKey,
		Actor:        actor,
		ResourceType: domain.ResourceRootKey,
		ResourceID:   rootKey.ID,
		ResourceName: authority.Name,
		Description:  fmt.Sprintf("generated %d-bit root key for authority %q", in.KeyLength, authority.Name),
	})
	return authority, nil
}

// EnsureDefault creates the default authority on first boot so key and
// certificate issuance has a root of trust to bind to. Idempotent.
func (s *AuthorityService) EnsureDefault(ctx context.Context, systemActor domain.Actor) (domain.TrustAuthority, error) {
	existing, err := s.Authorities.GetDefault(ctx)
	if err == nil && existing != nil {
		return *existing, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return domain.TrustAuthority{}, err
	}
	if s.Log != nil {
		s.Log.Info("no default trust authority found, bootstrapping one")
	}
	return s.Create(ctx, systemActor, CreateAuthorityInput{
		Name:        defaultAuthorityName,
		Description: "bootstrapped on first start",
		KeyLength:   defaultRootKeyBits,
		TrustLevel:  defaultTrustScore,
		IsDefault:   true,
	})
}

// RotateRootKey retires the authority's active root key to rotated and
// installs a fresh keypair of the same length. Certificates signed with the
// old key keep verifying against its retained public half.
func (s *AuthorityService) RotateRootKey(ctx context.Context, actor domain.Actor, authorityID string) (domain.RootKey, error) {
	authority, err := s.Authorities.GetByID(ctx, authorityID)
	if err != nil {
		return domain.RootKey{}, err
	}
	old, err := s.RootKeys.GetActiveByAuthority(ctx, authorityID)
	if err != nil {
		return domain.RootKey{}, err
	}

	newKey, publicPEM, err := s.generateRootKey(actor, old.Length)
	if err != nil {
		return domain.RootKey{}, err
	}
	newKey.AuthorityID = authorityID

	now := s.now()
	old.Status = domain.RootKeyStatusRotated
	old.LastRotated = &now
	if err := s.RootKeys.Update(ctx, *old); err != nil {
		return domain.RootKey{}, err
	}
	if err := s.RootKeys.Create(ctx, newKey); err != nil {
		return domain.RootKey{}, err
	}

	authority.RootKeyID = newKey.ID
	authority.PublicKeyPEM = publicPEM
	if err := s.Authorities.Update(ctx, *authority); err != nil {
		return domain.RootKey{}, err
	}

	s.Audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionRotateRootKey,
		Actor:        actor,
		ResourceType: domain.ResourceRootKey,
		ResourceID:   newKey.ID,
		ResourceName: authority.Name,
		Description:  fmt.Sprintf("rotated root key %s -> %s for authority %q", old.ID, newKey.ID, authority.Name),
	})
	return newKey, nil
}

func (s *AuthorityService) generateRootKey(actor domain.Actor, bits int) (domain.RootKey, string, error) {
	pair, err := crypto.GenerateRSAKeyPair(bits)
	if err != nil {
		return domain.RootKey{}, "", err
	}
	env, err := crypto.AEADEncrypt([]byte(pair.PrivateKeyPEM), s.MasterKey, "")
	if err != nil {
		return domain.RootKey{}, "", err
	}
	encrypted, err := env.Serialize()
	if err != nil {
		return domain.RootKey{}, "", err
	}

	now := s.now()
	key := domain.RootKey{
		ID:                  uuid.NewString(),
		PublicKeyPEM:        pair.PublicKeyPEM,
		PrivateKeyEncrypted: encrypted,
		Length:              bits,
		Algorithm:           string(domain.KeyAlgorithmRSA),
		Status:              domain.RootKeyStatusActive,
		TrustScore:          defaultTrustScore,
		RotationPolicy:      domain.RotationAnnually,
		ExpiresAt:           now.Add(365 * 24 * time.Hour),
		CreatedBy:           actor.ID,
		CreatedAt:           now,
	}
	if interval := key.RotationPolicy.Interval(); interval > 0 {
		due := now.Add(interval)
		key.NextRotationDue = &due
	}
	return key, pair.PublicKeyPEM, nil
}

func (s *AuthorityService) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}
