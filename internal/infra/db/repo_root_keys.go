package db

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"keystone/internal/domain"
)

type RootKeyRepository struct {
	db *gorm.DB
}

func NewRootKeyRepository(db *gorm.DB) *RootKeyRepository {
	return &RootKeyRepository{db: db}
}

func (r *RootKeyRepository) GetByID(ctx context.Context, id string) (*domain.RootKey, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model RootKeyModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	key, err := rootKeyFromModel(model)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *RootKeyRepository) GetActiveByAuthority(ctx context.Context, authorityID string) (*domain.RootKey, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model RootKeyModel
	err := r.db.WithContext(ctx).
		Where("authority_id = ? AND status = ?", authorityID, string(domain.RootKeyStatusActive)).
		Order("created_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	key, err := rootKeyFromModel(model)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *RootKeyRepository) ListByAuthority(ctx context.Context, authorityID string) ([]domain.RootKey, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []RootKeyModel
	err := r.db.WithContext(ctx).
		Where("authority_id = ?", authorityID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	keys := make([]domain.RootKey, 0, len(models))
	for _, model := range models {
		key, err := rootKeyFromModel(model)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (r *RootKeyRepository) Create(ctx context.Context, key domain.RootKey) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := rootKeyToModel(key)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *RootKeyRepository) Update(ctx context.Context, key domain.RootKey) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := rootKeyToModel(key)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).
		Model(&RootKeyModel{}).
		Where("id = ?", key.ID).
		Select("*").Omit("id", "created_at").
		Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func rootKeyToModel(key domain.RootKey) (RootKeyModel, error) {
	usage, err := json.Marshal(key.Usage)
	if err != nil {
		return RootKeyModel{}, err
	}
	return RootKeyModel{
		ID:                  key.ID,
		AuthorityID:         key.AuthorityID,
		PublicKeyPEM:        key.PublicKeyPEM,
		PrivateKeyEncrypted: key.PrivateKeyEncrypted,
		Length:              key.Length,
		Algorithm:           key.Algorithm,
		Status:              string(key.Status),
		UsageJSON:           usage,
		TrustScore:          key.TrustScore,
		RotationPolicy:      string(key.RotationPolicy),
		LastRotated:         key.LastRotated,
		NextRotationDue:     key.NextRotationDue,
		ExpiresAt:           key.ExpiresAt,
		CreatedBy:           key.CreatedBy,
		CreatedAt:           key.CreatedAt,
	}, nil
}

func rootKeyFromModel(model RootKeyModel) (domain.RootKey, error) {
	var usage domain.RootKeyUsage
	if len(model.UsageJSON) > 0 {
		if err := json.Unmarshal(model.UsageJSON, &usage); err != nil {
			return domain.RootKey{}, err
		}
	}
	return domain.RootKey{
		ID:                  model.ID,
		AuthorityID:         model.AuthorityID,
		PublicKeyPEM:        model.PublicKeyPEM,
		PrivateKeyEncrypted: model.PrivateKeyEncrypted,
		Length:              model.Length,
		Algorithm:           model.Algorithm,
		Status:              domain.RootKeyStatus(model.Status),
		Usage:               usage,
		TrustScore:          model.TrustScore,
		RotationPolicy:      domain.RotationPolicy(model.RotationPolicy),
		LastRotated:         model.LastRotated,
		NextRotationDue:     model.NextRotationDue,
		ExpiresAt:           model.ExpiresAt,
		CreatedBy:           model.CreatedBy,
		CreatedAt:           model.CreatedAt,
	}, nil
}
