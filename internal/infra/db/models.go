package db

import "time"

type KeyModel struct {
	ID                  string `gorm:"type:uuid;primaryKey"`
	Name                string `gorm:"not null"`
	AuthorityID         string `gorm:"type:uuid;index;not null"`
	Algorithm           string `gorm:"not null"`
	Length              int    `gorm:"not null"`
	PublicKeyPEM        string `gorm:"column:public_key_pem;type:text"`
	PrivateKeyEncrypted string `gorm:"type:text;not null"`
	ContentHash         string `gorm:"index;not null"`
	Status              string `gorm:"index;not null"`
	OwnerID             string `gorm:"index;not null"`
	CreatedBy           string `gorm:"not null"`
	ValidFrom           time.Time
	ValidUntil          time.Time
	RotationPolicy      string
	LastRotated         *time.Time
	NextRotationDue     *time.Time `gorm:"index"`
	RotatedTo           string
	UsageJSON           []byte    `gorm:"column:usage;type:jsonb"`
	Version             int64     `gorm:"not null;default:1"`
	CreatedAt           time.Time `gorm:"not null"`
}

func (KeyModel) TableName() string {
	return "keys"
}

type CertificateModel struct {
	ID                 string `gorm:"type:uuid;primaryKey"`
	Name               string `gorm:"not null"`
	AuthorityID        string `gorm:"type:uuid;index;not null"`
	Data               string `gorm:"type:text;not null"`
	ContentHash        string `gorm:"index;not null"`
	Status             string `gorm:"index;not null"`
	SignatureAlgorithm string
	HashAlgorithm      string
	DigitalSignature   string `gorm:"type:text"`
	SignedBy           string
	RequestedBy        string `gorm:"not null"`
	OwnerID            string `gorm:"index;not null"`
	ValidFrom          time.Time
	ValidUntil         time.Time `gorm:"index"`
	IsRevoked          bool      `gorm:"not null;default:false"`
	RevokedAt          *time.Time
	RevokedBy          string
	RevocationReason   string
	CustodyJSON        []byte    `gorm:"column:chain_of_custody;type:jsonb"`
	Version            int64     `gorm:"not null;default:1"`
	CreatedAt          time.Time `gorm:"not null"`
}

func (CertificateModel) TableName() string {
	return "certificates"
}

type AuthorityModel struct {
	ID               string `gorm:"type:uuid;primaryKey"`
	Name             string `gorm:"uniqueIndex;not null"`
	Description      string
	AdministratorID  string `gorm:"not null"`
	RootKeyID        string `gorm:"type:uuid"`
	PublicKeyPEM     string `gorm:"column:public_key_pem;type:text"`
	KeyLength        int
	Status           string `gorm:"not null"`
	IssuedCertCount  int64  `gorm:"not null;default:0"`
	RevokedCertCount int64  `gorm:"not null;default:0"`
	CertLifetimeDays int
	TrustLevel       int
	PolicyVersion    int64
	IsDefault        bool      `gorm:"index;not null;default:false"`
	Version          int64     `gorm:"not null;default:1"`
	CreatedAt        time.Time `gorm:"not null"`
}

func (AuthorityModel) TableName() string {
	return "trust_authorities"
}

type RootKeyModel struct {
	ID                  string `gorm:"type:uuid;primaryKey"`
	AuthorityID         string `gorm:"type:uuid;index;not null"`
	PublicKeyPEM        string `gorm:"column:public_key_pem;type:text;not null"`
	PrivateKeyEncrypted string `gorm:"type:text;not null"`
	Length              int    `gorm:"not null"`
	Algorithm           string `gorm:"not null"`
	Status              string `gorm:"index;not null"`
	UsageJSON           []byte `gorm:"column:usage;type:jsonb"`
	TrustScore          int
	RotationPolicy      string
	LastRotated         *time.Time
	NextRotationDue     *time.Time
	ExpiresAt           time.Time
	CreatedBy           string    `gorm:"not null"`
	CreatedAt           time.Time `gorm:"not null"`
}

func (RootKeyModel) TableName() string {
	return "root_keys"
}

type PolicyModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	Name        string `gorm:"not null"`
	AuthorityID string `gorm:"type:uuid;index;not null"`
	Version     int64  `gorm:"not null;default:1"`
	RulesJSON   []byte `gorm:"column:rules;type:jsonb;not null"`
	Status      string `gorm:"index;not null"`
	CreatedBy   string
	CreatedAt   time.Time `gorm:"not null"`
}

func (PolicyModel) TableName() string {
	return "crypto_policies"
}

type AuditEntryModel struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	Seq             int64  `gorm:"uniqueIndex;not null"`
	Action          string `gorm:"index;not null"`
	ActorID         string `gorm:"index;not null"`
	ActorName       string
	ActorRole       string
	ResourceType    string `gorm:"not null"`
	ResourceID      string `gorm:"index"`
	ResourceName    string
	Description     string    `gorm:"type:text"`
	Status          string    `gorm:"not null"`
	Severity        string    `gorm:"not null"`
	LogHash         string    `gorm:"uniqueIndex;not null"`
	PreviousLogHash string    `gorm:"not null"`
	CreatedAt       time.Time `gorm:"index;not null"`
}

func (AuditEntryModel) TableName() string {
	return "audit_entries"
}

// AuditSeqModel is the single-row chain head locked FOR UPDATE on append.
type AuditSeqModel struct {
	ID        int       `gorm:"primaryKey"`
	Seq       int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (AuditSeqModel) TableName() string {
	return "audit_seq"
}

type VerificationModel struct {
	ID                 string `gorm:"type:uuid;primaryKey"`
	CertificateID      string `gorm:"type:uuid;index;not null"`
	RequestedBy        string `gorm:"index;not null"`
	ComputedHash       string `gorm:"not null"`
	HashAlgorithm      string
	SignatureAlgorithm string
	ProvidedSignature  string `gorm:"type:text"`
	SignatureValid     bool
	Status             string    `gorm:"index;not null"`
	VerdictJSON        []byte    `gorm:"column:verdict;type:jsonb"`
	TamperJSON         []byte    `gorm:"column:tamper_check;type:jsonb"`
	TrustScore         int
	CreatedAt          time.Time `gorm:"not null"`
}

func (VerificationModel) TableName() string {
	return "verification_requests"
}
