package domain

import "time"

type KeyAlgorithm string

const (
	KeyAlgorithmRSA   KeyAlgorithm = "RSA"
	KeyAlgorithmAES   KeyAlgorithm = "AES"
	KeyAlgorithmECDSA KeyAlgorithm = "ECDSA"
	KeyAlgorithmEdDSA KeyAlgorithm = "EdDSA"
)

type KeyStatus string

const (
	KeyStatusActive      KeyStatus = "active"
	KeyStatusRotated     KeyStatus = "rotated"
	KeyStatusRevoked     KeyStatus = "revoked"
	KeyStatusCompromised KeyStatus = "compromised"
	KeyStatusArchived    KeyStatus = "archived"
)

// Terminal reports whether the status can never transition again.
func (s KeyStatus) Terminal() bool {
	switch s {
	case KeyStatusRevoked, KeyStatusCompromised, KeyStatusArchived:
		return true
	}
	return false
}

// CanTransitionTo enforces monotonic key state: once a key leaves active it
// never returns, and terminal states accept nothing.
func (s KeyStatus) CanTransitionTo(next KeyStatus) bool {
	if s.Terminal() || next == s {
		return false
	}
	switch s {
	case KeyStatusActive:
		switch next {
		case KeyStatusRotated, KeyStatusRevoked, KeyStatusCompromised, KeyStatusArchived:
			return true
		}
	case KeyStatusRotated:
		switch next {
		case KeyStatusRevoked, KeyStatusCompromised, KeyStatusArchived:
			return true
		}
	}
	return false
}

type RotationPolicy string

const (
	RotationMonthly   RotationPolicy = "monthly"
	RotationQuarterly RotationPolicy = "quarterly"
	RotationAnnually  RotationPolicy = "annually"
	RotationManual    RotationPolicy = "manual"
)

// Interval returns the rotation-due interval, or zero for manual rotation.
func (p RotationPolicy) Interval() time.Duration {
	switch p {
	case RotationMonthly:
		return 30 * 24 * time.Hour
	case RotationQuarterly:
		return 90 * 24 * time.Hour
	case RotationAnnually:
		return 365 * 24 * time.Hour
	default:
		return 0
	}
}

type KeyUsage struct {
	Sign    int64
	Verify  int64
	Encrypt int64
	Decrypt int64
}

// Key is a managed cryptographic key. Private or symmetric material is only
// ever held as a serialized AEAD envelope; the plaintext never leaves the
// crypto layer.
type Key struct {
	ID                  string
	Name                string
	AuthorityID         string
	Algorithm           KeyAlgorithm
	Length              int
	PublicKeyPEM        string
	PrivateKeyEncrypted string
	ContentHash         string
	Status              KeyStatus
	OwnerID             string
	CreatedBy           string
	ValidFrom           time.Time
	ValidUntil          time.Time
	RotationPolicy      RotationPolicy
	LastRotated         *time.Time
	NextRotationDue     *time.Time
	RotatedTo           string
	Usage               KeyUsage
	Version             int64
	CreatedAt           time.Time
}

func (k Key) IsExpired(now time.Time) bool {
	if k.ValidUntil.IsZero() {
		return false
	}
	return now.After(k.ValidUntil)
}

// NeedsRotation compares the time since the last rotation (or creation)
// against the rotation policy interval.
func (k Key) NeedsRotation(now time.Time) bool {
	interval := k.RotationPolicy.Interval()
	if interval <= 0 {
		return false
	}
	since := k.CreatedAt
	if k.LastRotated != nil {
		since = *k.LastRotated
	}
	if since.IsZero() {
		return false
	}
	return now.Sub(since) > interval
}

func (a KeyAlgorithm) Asymmetric() bool {
	switch a {
	case KeyAlgorithmRSA, KeyAlgorithmECDSA, KeyAlgorithmEdDSA:
		return true
	}
	return false
}
