package domain

import "time"

type AuditAction string

const (
	AuditActionCreateKey       AuditAction = "CREATE_KEY"
	AuditActionRotateKey       AuditAction = "ROTATE_KEY"
	AuditActionRevokeKey       AuditAction = "REVOKE_KEY"
	AuditActionEncryptData     AuditAction = "ENCRYPT_DATA"
	AuditActionDecryptData     AuditAction = "DECRYPT_DATA"
	AuditActionIssueCert       AuditAction = "ISSUE_CERTIFICATE"
	AuditActionSignCert        AuditAction = "SIGN_CERTIFICATE"
	AuditActionRevokeCert      AuditAction = "REVOKE_CERT"
	AuditActionSuspendCert     AuditAction = "SUSPEND_CERT"
	AuditActionReinstateCert   AuditAction = "REINSTATE_CERT"
	AuditActionCreateAuthority AuditAction = "CREATE_TRUST_AUTHORITY"
	AuditActionGenerateRootKey AuditAction = "GENERATE_ROOT_KEY"
	AuditActionRotateRootKey   AuditAction = "ROTATE_ROOT_KEY"
	AuditActionVerifyIntegrity AuditAction = "VERIFY_INTEGRITY"
	AuditActionDetectTamper    AuditAction = "DETECT_TAMPER"
	AuditActionDetectReplay    AuditAction = "DETECT_REPLAY"
	AuditActionCreatePolicy    AuditAction = "CREATE_POLICY"
)

type AuditSeverity string

const (
	AuditSeverityLow      AuditSeverity = "low"
	AuditSeverityMedium   AuditSeverity = "medium"
	AuditSeverityHigh     AuditSeverity = "high"
	AuditSeverityCritical AuditSeverity = "critical"
)

// SeverityForAction maps an action to its default audit severity.
func SeverityForAction(action AuditAction) AuditSeverity {
	switch action {
	case AuditActionRevokeKey, AuditActionRevokeCert, AuditActionDetectReplay, AuditActionDetectTamper:
		return AuditSeverityCritical
	case AuditActionCreateKey, AuditActionRotateKey, AuditActionIssueCert, AuditActionSignCert,
		AuditActionGenerateRootKey, AuditActionRotateRootKey, AuditActionCreateAuthority,
		AuditActionSuspendCert:
		return AuditSeverityHigh
	default:
		return AuditSeverityMedium
	}
}

type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
	AuditStatusBlocked AuditStatus = "blocked"
)

type ResourceType string

const (
	ResourceKey          ResourceType = "Key"
	ResourceCertificate  ResourceType = "Certificate"
	ResourceAuthority    ResourceType = "TrustAuthority"
	ResourceRootKey      ResourceType = "RootKey"
	ResourcePolicy       ResourceType = "CryptoPolicy"
	ResourceVerification ResourceType = "VerificationRequest"
	ResourceSystem       ResourceType = "System"
)

// AuditEntry is one immutable link of the hash chain. LogHash covers the
// entry's identifying fields plus PreviousLogHash, so mutating any stored
// field after insertion breaks chain verification at that entry.
type AuditEntry struct {
	ID              string
	Seq             int64
	Action          AuditAction
	ActorID         string
	ActorName       string
	ActorRole       Role
	ResourceType    ResourceType
	ResourceID      string
	ResourceName    string
	Description     string
	Status          AuditStatus
	Severity        AuditSeverity
	LogHash         string
	PreviousLogHash string
	CreatedAt       time.Time
}

// ResourceRef is the resource reference folded into the chain hash.
func (e AuditEntry) ResourceRef() string {
	return string(e.ResourceType) + "/" + e.ResourceID
}
