package domain

import "time"

type CertificateStatus string

const (
	CertStatusPending   CertificateStatus = "pending"
	CertStatusValid     CertificateStatus = "valid"
	CertStatusExpired   CertificateStatus = "expired"
	CertStatusRevoked   CertificateStatus = "revoked"
	CertStatusSuspended CertificateStatus = "suspended"
)

// CanTransitionTo enforces the certificate state machine. Suspension is the
// single reversible edge; expiry and revocation are terminal for validity.
func (s CertificateStatus) CanTransitionTo(next CertificateStatus) bool {
	if next == s {
		return false
	}
	switch s {
	case CertStatusPending:
		return next == CertStatusValid || next == CertStatusRevoked
	case CertStatusValid:
		switch next {
		case CertStatusExpired, CertStatusRevoked, CertStatusSuspended:
			return true
		}
	case CertStatusSuspended:
		return next == CertStatusValid || next == CertStatusRevoked
	}
	return false
}

type Revocation struct {
	IsRevoked bool
	RevokedAt *time.Time
	RevokedBy string
	Reason    string
}

type CustodyEntry struct {
	Action    string
	Actor     string
	Timestamp time.Time
	Details   string
}

type Certificate struct {
	ID                 string
	Name               string
	AuthorityID        string
	Data               string
	ContentHash        string
	Status             CertificateStatus
	SignatureAlgorithm string
	HashAlgorithm      string
	DigitalSignature   string
	SignedBy           string
	RequestedBy        string
	OwnerID            string
	ValidFrom          time.Time
	ValidUntil         time.Time
	Revocation         Revocation
	ChainOfCustody     []CustodyEntry
	Version            int64
	CreatedAt          time.Time
}

func (c Certificate) IsExpired(now time.Time) bool {
	if c.ValidUntil.IsZero() {
		return false
	}
	return now.After(c.ValidUntil)
}

func (c Certificate) Signed() bool {
	return c.DigitalSignature != ""
}

// SignatureVerified is an existence check: signature and signer are both
// recorded. Cryptographic verification is the verification engine's job.
func (c Certificate) SignatureVerified() bool {
	return c.DigitalSignature != "" && c.SignedBy != ""
}
