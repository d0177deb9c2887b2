package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"keystone/internal/domain"
	"keystone/internal/infra/crypto"
)

// KeyLifecycle owns the key state machine: generation, rotation, revocation
// and the data-plane encrypt/decrypt operations that consume key material.
type KeyLifecycle struct {
	Keys        KeyRepository
	Policies    PolicyRepository
	Authorities AuthorityRepository
	Authorizer  Authorizer
	Audit       *AuditLogger
	MasterKey   string
	Validity    time.Duration
	Clock       Clock
}

type GenerateKeyInput struct {
	Name           string
	Algorithm      domain.KeyAlgorithm
	Length         int
	RotationPolicy domain.RotationPolicy
	AuthorityID    string
}

func (s *KeyLifecycle) Generate(ctx context.Context, actor domain.Actor, in GenerateKeyInput) (domain.Key, error) {
	if in.Name == "" || in.Algorithm == "" || in.Length <= 0 && in.Algorithm != domain.KeyAlgorithmEdDSA {
		return domain.Key{}, fmt.Errorf("%w: name, algorithm and length are required", domain.ErrValidation)
	}
	if in.AuthorityID == "" {
		return domain.Key{}, fmt.Errorf("%w: no trust authority assigned", domain.ErrValidation)
	}
	if err := s.authorize(ctx, actor, domain.CapabilityIssueKeys); err != nil {
		return domain.Key{}, err
	}
	if _, err := s.Authorities.GetByID(ctx, in.AuthorityID); err != nil {
		return domain.Key{}, err
	}
	if err := s.checkPolicy(ctx, in.AuthorityID, in.Algorithm, in.Length); err != nil {
		return domain.Key{}, err
	}
	if in.RotationPolicy == "" {
		in.RotationPolicy = domain.RotationAnnually
	}

	key, err := s.buildKey(actor, in)
	if err != nil {
		return domain.Key{}, err
	}
	if existing, err := s.Keys.FindLiveByContentHash(ctx, key.ContentHash); err != nil {
		return domain.Key{}, err
	} else if existing != nil {
		return domain.Key{}, fmt.Errorf("%w: key material already exists", domain.ErrDuplicateResource)
	}
	if err := s.Keys.Create(ctx, key); err != nil {
		return domain.Key{}, err
	}

	s.Audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionCreateKey,
		Actor:        actor,
		ResourceType: domain.ResourceKey,
		ResourceID:   key.ID,
		ResourceName: key.Name,
		Description:  fmt.Sprintf("generated %s-%d key %q", key.Algorithm, key.Length, key.Name),
	})
	return key, nil
}

type RotationResult struct {
	OldKeyID string
	NewKeyID string
	NewKey   domain.Key
}

// Rotate generates a replacement key of the same shape and retires the old
// one to "rotated". The old key is kept so signatures and ciphertexts made
// before the rotation remain verifiable.
func (s *KeyLifecycle) Rotate(ctx context.Context, actor domain.Actor, keyID string) (RotationResult, error) {
	old, err := s.Keys.GetByID(ctx, keyID)
	if err != nil {
		return RotationResult{}, err
	}
	if err := s.checkOwnership(actor, old.OwnerID, old.CreatedBy); err != nil {
		return RotationResult{}, err
	}
	if !old.Status.CanTransitionTo(domain.KeyStatusRotated) {
		return RotationResult{}, fmt.Errorf("%w: cannot rotate key in state %q", domain.ErrValidation, old.Status)
	}

	newKey, err := s.buildKey(actor, GenerateKeyInput{
		Name:           old.Name,
		Algorithm:      old.Algorithm,
		Length:         old.Length,
		RotationPolicy: old.RotationPolicy,
		AuthorityID:    old.AuthorityID,
	})
	if err != nil {
		return RotationResult{}, err
	}
	newKey.OwnerID = old.OwnerID
	now := s.now()
	newKey.LastRotated = &now

	if existing, err := s.Keys.FindLiveByContentHash(ctx, newKey.ContentHash); err != nil {
		return RotationResult{}, err
	} else if existing != nil {
		return RotationResult{}, fmt.Errorf("%w: generated key material collides", domain.ErrDuplicateResource)
	}

	old.Status = domain.KeyStatusRotated
	old.RotatedTo = newKey.ID
	old.LastRotated = &now
	if err := s.Keys.Update(ctx, *old); err != nil {
		return RotationResult{}, err
	}
	if err := s.Keys.Create(ctx, newKey); err != nil {
		return RotationResult{}, err
	}

	s.Audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionRotateKey,
		Actor:        actor,
		ResourceType: domain.ResourceKey,
		ResourceID:   newKey.ID,
		ResourceName: newKey.Name,
		Description:  fmt.Sprintf("rotated key %s -> %s", old.ID, newKey.ID),
	})
	return RotationResult{OldKeyID: old.ID, NewKeyID: newKey.ID, NewKey: newKey}, nil
}

// Revoke transitions any non-terminal key to revoked. Irreversible.
func (s *KeyLifecycle) Revoke(ctx context.Context, actor domain.Actor, keyID, reason string) (domain.Key, error) {
	key, err := s.Keys.GetByID(ctx, keyID)
	if err != nil {
		return domain.Key{}, err
	}
	if err := s.checkOwnership(actor, key.OwnerID, key.CreatedBy); err != nil {
		return domain.Key{}, err
	}
	if !key.Status.CanTransitionTo(domain.KeyStatusRevoked) {
		return domain.Key{}, fmt.Errorf("%w: cannot revoke key in state %q", domain.ErrValidation, key.Status)
	}
	key.Status = domain.KeyStatusRevoked
	if err := s.Keys.Update(ctx, *key); err != nil {
		return domain.Key{}, err
	}
	s.Audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionRevokeKey,
		Actor:        actor,
		ResourceType: domain.ResourceKey,
		ResourceID:   key.ID,
		ResourceName: key.Name,
		Description:  fmt.Sprintf("revoked key %q: %s", key.Name, reason),
	})
	return *key, nil
}

// EncryptData AEAD-encrypts payload under an active symmetric key and returns
// the serialized envelope.
func (s *KeyLifecycle) EncryptData(ctx context.Context, actor domain.Actor, keyID string, payload []byte) (string, error) {
	key, material, err := s.activeSymmetricKey(ctx, keyID)
	if err != nil {
		return "", err
	}
	env, err := crypto.AEADEncrypt(payload, material, "")
	if err != nil {
		return "", err
	}
	serialized, err := env.Serialize()
	if err != nil {
		return "", err
	}
	key.Usage.Encrypt++
	if err := s.Keys.Update(ctx, *key); err != nil {
		return "", err
	}
	s.Audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionEncryptData,
		Actor:        actor,
		ResourceType: domain.ResourceKey,
		ResourceID:   key.ID,
		ResourceName: key.Name,
		Description:  fmt.Sprintf("encrypted data using key %q", key.Name),
	})
	return serialized, nil
}

func (s *KeyLifecycle) DecryptData(ctx context.Context, actor domain.Actor, keyID string, serializedEnvelope string) ([]byte, error) {
	key, material, err := s.activeSymmetricKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	env, err := crypto.ParseEnvelope(serializedEnvelope)
	if err != nil {
		return nil, err
	}
	plaintext, err := crypto.AEADDecrypt(env, material)
	if err != nil {
		return nil, err
	}
	key.Usage.Decrypt++
	if err := s.Keys.Update(ctx, *key); err != nil {
		return nil, err
	}
	s.Audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionDecryptData,
		Actor:        actor,
		ResourceType: domain.ResourceKey,
		ResourceID:   key.ID,
		ResourceName: key.Name,
		Description:  fmt.Sprintf("decrypted data using key %q", key.Name),
	})
	return plaintext, nil
}

// RotationDue lists keys whose rotation policy interval has elapsed; meant
// for the external scheduler that drives Rotate.
func (s *KeyLifecycle) RotationDue(ctx context.Context) ([]domain.Key, error) {
	return s.Keys.ListRotationDue(ctx, s.now())
}

func (s *KeyLifecycle) buildKey(actor domain.Actor, in GenerateKeyInput) (domain.Key, error) {
	var publicPEM, private string
	switch {
	case in.Algorithm.Asymmetric():
		pair, err := crypto.GenerateKeyPair(in.Algorithm, in.Length)
		if err != nil {
			return domain.Key{}, err
		}
		publicPEM, private = pair.PublicKeyPEM, pair.PrivateKeyPEM
	case in.Algorithm == domain.KeyAlgorithmAES:
		material, err := crypto.GenerateSymmetricKey(in.Length)
		if err != nil {
			return domain.Key{}, err
		}
		private = material
	default:
		return domain.Key{}, fmt.Errorf("%w: unsupported algorithm %q", domain.ErrValidation, in.Algorithm)
	}

	contentHash := crypto.HashHex([]byte(publicPEM + private))
	env, err := crypto.AEADEncrypt([]byte(private), s.MasterKey, "")
	if err != nil {
		return domain.Key{}, err
	}
	encrypted, err := env.Serialize()
	if err != nil {
		return domain.Key{}, err
	}

	now := s.now()
	key := domain.Key{
		ID:                  uuid.NewString(),
		Name:                in.Name,
		AuthorityID:         in.AuthorityID,
		Algorithm:           in.Algorithm,
		Length:              in.Length,
		PublicKeyPEM:        publicPEM,
		PrivateKeyEncrypted: encrypted,
		ContentHash:         contentHash,
		Status:              domain.KeyStatusActive,
		OwnerID:             actor.ID,
		CreatedBy:           actor.ID,
		ValidFrom:           now,
		ValidUntil:          now.Add(s.validity()),
		RotationPolicy:      in.RotationPolicy,
		CreatedAt:           now,
	}
	if interval := in.RotationPolicy.Interval(); interval > 0 {
		due := now.Add(interval)
		key.NextRotationDue = &due
	}
	return key, nil
}

func (s *KeyLifecycle) activeSymmetricKey(ctx context.Context, keyID string) (*domain.Key, string, error) {
	key, err := s.Keys.GetByID(ctx, keyID)
	if err != nil {
		return nil, "", err
	}
	if key.Status != domain.KeyStatusActive {
		return nil, "", fmt.Errorf("%w: key %q is not active", domain.ErrValidation, keyID)
	}
	if key.Algorithm != domain.KeyAlgorithmAES {
		return nil, "", fmt.Errorf("%w: key %q is not a symmetric key", domain.ErrValidation, keyID)
	}
	env, err := crypto.ParseEnvelope(key.PrivateKeyEncrypted)
	if err != nil {
		return nil, "", err
	}
	material, err := crypto.AEADDecrypt(env, s.MasterKey)
	if err != nil {
		return nil, "", err
	}
	return key, string(material), nil
}

func (s *KeyLifecycle) checkPolicy(ctx context.Context, authorityID string, alg domain.KeyAlgorithm, length int) error {
	if s.Policies == nil {
		return nil
	}
	policy, err := s.Policies.GetActiveByAuthority(ctx, authorityID)
	if err != nil || policy == nil {
		// Policies are consulted, not required; an authority without one
		// falls back to the engine defaults.
		return nil
	}
	if alg != domain.KeyAlgorithmAES && alg != domain.KeyAlgorithmEdDSA {
		if policy.KeyLengths.Minimum > 0 && length < policy.KeyLengths.Minimum {
			return fmt.Errorf("%w: key length %d below policy minimum %d", domain.ErrValidation, length, policy.KeyLengths.Minimum)
		}
		if policy.KeyLengths.Maximum > 0 && length > policy.KeyLengths.Maximum {
			return fmt.Errorf("%w: key length %d above policy maximum %d", domain.ErrValidation, length, policy.KeyLengths.Maximum)
		}
	}
	if len(policy.AllowedSigning) > 0 && alg.Asymmetric() {
		if !contains(policy.AllowedSigning, string(alg)) {
			return fmt.Errorf("%w: algorithm %q not allowed by policy", domain.ErrValidation, alg)
		}
	}
	return nil
}

func (s *KeyLifecycle) authorize(ctx context.Context, actor domain.Actor, cap domain.Capability) error {
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

func (s *KeyLifecycle) checkOwnership(actor domain.Actor, ownerID, createdBy string) error {
	if actor.ID == ownerID || actor.ID == createdBy || actor.Role == domain.RoleSecurityAuthority {
		return nil
	}
	return fmt.Errorf("%w: not the key owner", domain.ErrForbidden)
}

func (s *KeyLifecycle) validity() time.Duration {
	if s.Validity > 0 {
		return s.Validity
	}
	return 365 * 24 * time.Hour
}

func (s *KeyLifecycle) now() time.Time {
	if s.Clock != nil {
		return s.Clock().UTC()
	}
	return time.Now().UTC()
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
