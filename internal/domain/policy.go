package domain

import "time"

type Role string

const (
	RoleSecurityAuthority Role = "security_authority"
	RoleSystemClient      Role = "system_client"
	RoleAuditor           Role = "auditor"
)

type Capability string

const (
	CapabilityIssueKeys   Capability = "issue_keys"
	CapabilityRotateKeys  Capability = "rotate_keys"
	CapabilityRevokeKeys  Capability = "revoke_keys"
	CapabilityIssueCerts  Capability = "issue_certs"
	CapabilitySignCerts   Capability = "sign_certs"
	CapabilityRevokeCerts Capability = "revoke_certs"
	CapabilityVerify      Capability = "verify"
	CapabilityReadAudit   Capability = "read_audit"
	CapabilityEncryptData Capability = "encrypt_data"
)

// Actor is the resolved caller identity handed to the engine by the excluded
// authorization layer. The engine still re-checks resource ownership on
// rotate/revoke.
type Actor struct {
	ID   string
	Name string
	Role Role
}

type KeyLengthRequirements struct {
	Minimum     int
	Recommended int
	Maximum     int
}

type ComplianceRequirements struct {
	RequireMFA       bool
	RequireAuditLog  bool
	RequireSignature bool
	RequireEncrypt   bool
}

type KeyRotationRules struct {
	Required     bool
	IntervalDays int
	AutoRotate   bool
}

// CryptoPolicy constrains what an authority's key and certificate managers
// may create. It is consulted at creation/rotation time, not re-enforced on
// existing records.
type CryptoPolicy struct {
	ID                string
	Name              string
	AuthorityID       string
	Version           int64
	KeyLengths        KeyLengthRequirements
	AllowedEncryption []string
	AllowedHashes     []string
	AllowedSigning    []string
	Rotation          KeyRotationRules
	Compliance        ComplianceRequirements
	CertValidityDays  int
	Status            string
	CreatedBy         string
	CreatedAt         time.Time
}

// PolicyDecision is the result of a role/capability evaluation.
type PolicyDecision struct {
	Allowed bool
	Reasons []string
}
