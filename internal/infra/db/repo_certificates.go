package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"keystone/internal/domain"
)

type CertificateRepository struct {
	db *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) *CertificateRepository {
	return &CertificateRepository{db: db}
}

func (r *CertificateRepository) GetByID(ctx context.Context, id string) (*domain.Certificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model CertificateModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	cert, err := certFromModel(model)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *CertificateRepository) FindLiveByContentHash(ctx context.Context, hash string) (*domain.Certificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model CertificateModel
	err := r.db.WithContext(ctx).
		Where("content_hash = ? AND status NOT IN ?", hash, []string{
			string(domain.CertStatusRevoked),
			string(domain.CertStatusExpired),
		}).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	cert, err := certFromModel(model)
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *CertificateRepository) Create(ctx context.Context, cert domain.Certificate) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := certToModel(cert)
	if err != nil {
		return err
	}
	model.Version = 1
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *CertificateRepository) Update(ctx context.Context, cert domain.Certificate) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := certToModel(cert)
	if err != nil {
		return err
	}
	model.Version = cert.Version + 1
	result := r.db.WithContext(ctx).
		Model(&CertificateModel{}).
		Where("id = ? AND version = ?", cert.ID, cert.Version).
		Select("*").Omit("id", "created_at").
		Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *CertificateRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Certificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []CertificateModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return certsFromModels(models)
}

func (r *CertificateRepository) ListExpiredValid(ctx context.Context, asOf time.Time) ([]domain.Certificate, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []CertificateModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND valid_until < ?", string(domain.CertStatusValid), asOf).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return certsFromModels(models)
}

func certsFromModels(models []CertificateModel) ([]domain.Certificate, error) {
	certs := make([]domain.Certificate, 0, len(models))
	for _, model := range models {
		cert, err := certFromModel(model)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func certToModel(cert domain.Certificate) (CertificateModel, error) {
	custody, err := json.Marshal(cert.ChainOfCustody)
	if err != nil {
		return CertificateModel{}, err
	}
	return CertificateModel{
		ID:                 cert.ID,
		Name:               cert.Name,
		AuthorityID:        cert.AuthorityID,
		Data:               cert.Data,
		ContentHash:        cert.ContentHash,
		Status:             string(cert.Status),
		SignatureAlgorithm: cert.SignatureAlgorithm,
		HashAlgorithm:      cert.HashAlgorithm,
		DigitalSignature:   cert.DigitalSignature,
		SignedBy:           cert.SignedBy,
		RequestedBy:        cert.RequestedBy,
		OwnerID:            cert.OwnerID,
		ValidFrom:          cert.ValidFrom,
		ValidUntil:         cert.ValidUntil,
		IsRevoked:          cert.Revocation.IsRevoked,
		RevokedAt:          cert.Revocation.RevokedAt,
		RevokedBy:          cert.Revocation.RevokedBy,
		RevocationReason:   cert.Revocation.Reason,
		CustodyJSON:        custody,
		Version:            cert.Version,
		CreatedAt:          cert.CreatedAt,
	}, nil
}

func certFromModel(model CertificateModel) (domain.Certificate, error) {
	var custody []domain.CustodyEntry
	if len(model.CustodyJSON) > 0 {
		if err := json.Unmarshal(model.CustodyJSON, &custody); err != nil {
			return domain.Certificate{}, err
		}
	}
	return domain.Certificate{
		ID:                 model.ID,
		Name:               model.Name,
		AuthorityID:        model.AuthorityID,
		Data:               model.Data,
		ContentHash:        model.ContentHash,
		Status:             domain.CertificateStatus(model.Status),
		SignatureAlgorithm: model.SignatureAlgorithm,
		HashAlgorithm:      model.HashAlgorithm,
		DigitalSignature:   model.DigitalSignature,
		SignedBy:           model.SignedBy,
		RequestedBy:        model.RequestedBy,
		OwnerID:            model.OwnerID,
		ValidFrom:          model.ValidFrom,
		ValidUntil:         model.ValidUntil,
		Revocation: domain.Revocation{
			IsRevoked: model.IsRevoked,
			RevokedAt: model.RevokedAt,
			RevokedBy: model.RevokedBy,
			Reason:    model.RevocationReason,
		},
		ChainOfCustody: custody,
		Version:        model.Version,
		CreatedAt:      model.CreatedAt,
	}, nil
}
