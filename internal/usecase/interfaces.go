package usecase

import (
	"context"
	"time"

	"keystone/internal/domain"
)

type Clock func() time.Time

type KeyRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Key, error)
	// FindLiveByContentHash matches only keys that have not been revoked,
	// compromised or archived; rotated material no longer blocks reuse checks
	// performed against active keys.
	FindLiveByContentHash(ctx context.Context, hash string) (*domain.Key, error)
	Create(ctx context.Context, key domain.Key) error
	// Update must fail with domain.ErrConflict when the stored version does
	// not match key.Version.
	Update(ctx context.Context, key domain.Key) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Key, error)
	ListRotationDue(ctx context.Context, asOf time.Time) ([]domain.Key, error)
}

type CertificateRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Certificate, error)
	// FindLiveByContentHash ignores revoked and expired certificates so a
	// revoked payload can be re-certified.
	FindLiveByContentHash(ctx context.Context, hash string) (*domain.Certificate, error)
	Create(ctx context.Context, cert domain.Certificate) error
	Update(ctx context.Context, cert domain.Certificate) error
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Certificate, error)
	ListExpiredValid(ctx context.Context, asOf time.Time) ([]domain.Certificate, error)
}

type AuthorityRepository interface {
	GetByID(ctx context.Context, id string) (*domain.TrustAuthority, error)
	GetDefault(ctx context.Context) (*domain.TrustAuthority, error)
	Create(ctx context.Context, authority domain.TrustAuthority) error
	Update(ctx context.Context, authority domain.TrustAuthority) error
}

type RootKeyRepository interface {
	GetByID(ctx context.Context, id string) (*domain.RootKey, error)
	// GetActiveByAuthority returns the single active root key; rotation keeps
	// prior keys readable for historical signature verification.
	GetActiveByAuthority(ctx context.Context, authorityID string) (*domain.RootKey, error)
	// ListByAuthority returns the authority's full root key history so
	// signatures made before a rotation stay verifiable.
	ListByAuthority(ctx context.Context, authorityID string) ([]domain.RootKey, error)
	Create(ctx context.Context, key domain.RootKey) error
	Update(ctx context.Context, key domain.RootKey) error
}

type PolicyRepository interface {
	GetActiveByAuthority(ctx context.Context, authorityID string) (*domain.CryptoPolicy, error)
	Create(ctx context.Context, policy domain.CryptoPolicy) error
}

type AuditRepository interface {
	// Append assigns the entry's seq, previous hash and logHash inside one
	// serialized read-last+insert transaction.
	Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)
	// ListRange returns entries with fromSeq <= seq <= toSeq in seq order.
	ListRange(ctx context.Context, fromSeq, toSeq int64) ([]domain.AuditEntry, error)
	LastSeq(ctx context.Context) (int64, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type VerificationRepository interface {
	Create(ctx context.Context, req domain.VerificationRequest) error
	GetByID(ctx context.Context, id string) (*domain.VerificationRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]domain.VerificationRequest, error)
}

// NonceStore records nonces with a bounded TTL. PutIfAbsent must be atomic so
// replay detection stays correct under concurrent verification calls.
type NonceStore interface {
	PutIfAbsent(ctx context.Context, nonce string) (bool, error)
	TTL() time.Duration
}

// Authorizer evaluates the declarative role→capability policy.
type Authorizer interface {
	Allowed(ctx context.Context, actor domain.Actor, capability domain.Capability) (domain.PolicyDecision, error)
}
