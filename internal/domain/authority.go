package domain

import "time"

type AuthorityStatus string

const (
	AuthorityStatusActive    AuthorityStatus = "active"
	AuthorityStatusSuspended AuthorityStatus = "suspended"
	AuthorityStatusRevoked   AuthorityStatus = "revoked"
)

// TrustAuthority is the per-tenant root of trust. Its root keypair lives in a
// RootKey record with the private half envelope-encrypted under the master key.
type TrustAuthority struct {
	ID               string
	Name             string
	Description      string
	AdministratorID  string
	RootKeyID        string
	PublicKeyPEM     string
	KeyLength        int
	Status           AuthorityStatus
	IssuedCertCount  int64
	RevokedCertCount int64
	CertLifetimeDays int
	TrustLevel       int
	PolicyVersion    int64
	IsDefault        bool
	Version          int64
	CreatedAt        time.Time
}

type RootKeyStatus string

const (
	RootKeyStatusActive      RootKeyStatus = "active"
	RootKeyStatusRotated     RootKeyStatus = "rotated"
	RootKeyStatusRevoked     RootKeyStatus = "revoked"
	RootKeyStatusCompromised RootKeyStatus = "compromised"
)

type RootKeyUsage struct {
	Signing      int64
	Verification int64
	Encryption   int64
}

// RootKey is an authority's asymmetric root keypair. Exactly one root key per
// authority is active at a time; rotation retires the old key to "rotated" so
// signatures made before the rotation stay verifiable.
type RootKey struct {
	ID                  string
	AuthorityID         string
	PublicKeyPEM        string
	PrivateKeyEncrypted string
	Length              int
	Algorithm           string
	Status              RootKeyStatus
	Usage               RootKeyUsage
	TrustScore          int
	RotationPolicy      RotationPolicy
	LastRotated         *time.Time
	NextRotationDue     *time.Time
	ExpiresAt           time.Time
	CreatedBy           string
	CreatedAt           time.Time
}
