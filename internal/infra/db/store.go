package db

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"keystone/internal/config"
)

var errDBUnavailable = errors.New("database is not configured")

type Store struct {
	DB *gorm.DB

	Keys          *KeyRepository
	Certs         *CertificateRepository
	Authorities   *AuthorityRepository
	RootKeys      *RootKeyRepository
	Policies      *PolicyRepository
	Audit         *AuditRepository
	Verifications *VerificationRepository
}

func NewStore(cfg config.Config) (*Store, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	gdb, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newStoreWithDB(gdb)
}

func newStoreWithDB(gdb *gorm.DB) (*Store, error) {
	return &Store{
		DB:            gdb,
		Keys:          NewKeyRepository(gdb),
		Certs:         NewCertificateRepository(gdb),
		Authorities:   NewAuthorityRepository(gdb),
		RootKeys:      NewRootKeyRepository(gdb),
		Policies:      NewPolicyRepository(gdb),
		Audit:         NewAuditRepository(gdb),
		Verifications: NewVerificationRepository(gdb),
	}, nil
}

// Migrate creates or updates the schema in dependency order.
func (s *Store) Migrate() error {
	if s.DB == nil {
		return errDBUnavailable
	}
	return s.DB.AutoMigrate(
		&AuthorityModel{},
		&RootKeyModel{},
		&KeyModel{},
		&CertificateModel{},
		&PolicyModel{},
		&AuditEntryModel{},
		&AuditSeqModel{},
		&VerificationModel{},
	)
}
