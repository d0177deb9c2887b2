package db

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"keystone/internal/domain"
)

type AuthorityRepository struct {
	db *gorm.DB
}

func NewAuthorityRepository(db *gorm.DB) *AuthorityRepository {
	return &AuthorityRepository{db: db}
}

func (r *AuthorityRepository) GetByID(ctx context.Context, id string) (*domain.TrustAuthority, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model AuthorityModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	authority := authorityFromModel(model)
	return &authority, nil
}

func (r *AuthorityRepository) GetDefault(ctx context.Context) (*domain.TrustAuthority, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model AuthorityModel
	err := r.db.WithContext(ctx).
		Where("is_default = ? AND status = ?", true, string(domain.AuthorityStatusActive)).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	authority := authorityFromModel(model)
	return &authority, nil
}

func (r *AuthorityRepository) Create(ctx context.Context, authority domain.TrustAuthority) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := authorityToModel(authority)
	model.Version = 1
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *AuthorityRepository) Update(ctx context.Context, authority domain.TrustAuthority) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model := authorityToModel(authority)
	model.Version = authority.Version + 1
	result := r.db.WithContext(ctx).
		Model(&AuthorityModel{}).
		Where("id = ? AND version = ?", authority.ID, authority.Version).
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

func authorityToModel(authority domain.TrustAuthority) AuthorityModel {
	return AuthorityModel{
		ID:               authority.ID,
		Name:             authority.Name,
		Description:      authority.Description,
		AdministratorID:  authority.AdministratorID,
		RootKeyID:        authority.RootKeyID,
		PublicKeyPEM:     authority.PublicKeyPEM,
		KeyLength:        authority.KeyLength,
		Status:           string(authority.Status),
		IssuedCertCount:  authority.IssuedCertCount,
		RevokedCertCount: authority.RevokedCertCount,
		CertLifetimeDays: authority.CertLifetimeDays,
		TrustLevel:       authority.TrustLevel,
		PolicyVersion:    authority.PolicyVersion,
		IsDefault:        authority.IsDefault,
		Version:          authority.Version,
		CreatedAt:        authority.CreatedAt,
	}
}

func authorityFromModel(model AuthorityModel) domain.TrustAuthority {
	return domain.TrustAuthority{
		ID:               model.ID,
		Name:             model.Name,
		Description:      model.Description,
		AdministratorID:  model.AdministratorID,
		RootKeyID:        model.RootKeyID,
		PublicKeyPEM:     model.PublicKeyPEM,
		KeyLength:        model.KeyLength,
		Status:           domain.AuthorityStatus(model.Status),
		IssuedCertCount:  model.IssuedCertCount,
		RevokedCertCount: model.RevokedCertCount,
		CertLifetimeDays: model.CertLifetimeDays,
		TrustLevel:       model.TrustLevel,
		PolicyVersion:    model.PolicyVersion,
		IsDefault:        model.IsDefault,
		Version:          model.Version,
		CreatedAt:        model.CreatedAt,
	}
}
