package domain

import "time"

type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationTampered VerificationStatus = "tampered"
	VerificationFailed   VerificationStatus = "failed"
)

type TamperCheck struct {
	Detected     bool
	OriginalHash string
	CurrentHash  string
	Match        bool
}

type MITMAssessment struct {
	RiskLevel  RiskLevel
	Indicators []string
}

type ReplayCheck struct {
	IsReplay  bool
	RiskLevel RiskLevel
	Nonce     string
	CheckedAt time.Time
}

// Verdict is the structured outcome of one verification run. Tamper, replay,
// expiry and revocation are reported here, never as errors, so callers can
// react with the right business response.
type Verdict struct {
	IsValid            bool
	SignatureValid     bool
	Tampered           bool
	CertificateExpired bool
	CertificateRevoked bool
	MITMRisk           MITMAssessment
	Reasons            []string
}

// VerificationRequest is the persisted point-in-time record of a verification
// call. Created once, never mutated.
type VerificationRequest struct {
	ID                 string
	CertificateID      string
	RequestedBy        string
	ComputedHash       string
	HashAlgorithm      string
	SignatureAlgorithm string
	ProvidedSignature  string
	SignatureValid     bool
	Status             VerificationStatus
	Verdict            Verdict
	Tamper             TamperCheck
	TrustScore         int
	CreatedAt          time.Time
}
