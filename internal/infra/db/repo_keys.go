package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"keystone/internal/domain"
)

type KeyRepository struct {
	db *gorm.DB
}

func NewKeyRepository(db *gorm.DB) *KeyRepository {
	return &KeyRepository{db: db}
}

func (r *KeyRepository) GetByID(ctx context.Context, id string) (*domain.Key, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model KeyModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	key, err := keyFromModel(model)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *KeyRepository) FindLiveByContentHash(ctx context.Context, hash string) (*domain.Key, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model KeyModel
	err := r.db.WithContext(ctx).
		Where("content_hash = ? AND status NOT IN ?", hash, []string{
			string(domain.KeyStatusRevoked),
			string(domain.KeyStatusCompromised),
			string(domain.KeyStatusArchived),
		}).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	key, err := keyFromModel(model)
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *KeyRepository) Create(ctx context.Context, key domain.Key) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := keyToModel(key)
	if err != nil {
		return err
	}
	model.Version = 1
	return r.db.WithContext(ctx).Create(&model).Error
}

// Update matches on the caller's version and bumps it, failing with
// ErrConflict when a concurrent writer got there first.
func (r *KeyRepository) Update(ctx context.Context, key domain.Key) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := keyToModel(key)
	if err != nil {
		return err
	}
	model.Version = key.Version + 1
	result := r.db.WithContext(ctx).
		Model(&KeyModel{}).
		Where("id = ? AND version = ?", key.ID, key.Version).
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

func (r *KeyRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Key, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []KeyModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return keysFromModels(models)
}

func (r *KeyRepository) ListRotationDue(ctx context.Context, asOf time.Time) ([]domain.Key, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []KeyModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_rotation_due IS NOT NULL AND next_rotation_due < ?",
			string(domain.KeyStatusActive), asOf).
		Order("next_rotation_due ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return keysFromModels(models)
}

func keysFromModels(models []KeyModel) ([]domain.Key, error) {
	keys := make([]domain.Key, 0, len(models))
	for _, model := range models {
		key, err := keyFromModel(model)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func keyToModel(key domain.Key) (KeyModel, error) {
	usage, err := json.Marshal(key.Usage)
	if err != nil {
		return KeyModel{}, err
	}
	return KeyModel{
		ID:                  key.ID,
		Name:                key.Name,
		AuthorityID:         key.AuthorityID,
		Algorithm:           string(key.Algorithm),
		Length:              key.Length,
		PublicKeyPEM:        key.PublicKeyPEM,
		PrivateKeyEncrypted: key.PrivateKeyEncrypted,
		ContentHash:         key.ContentHash,
		Status:              string(key.Status),
		OwnerID:             key.OwnerID,
		CreatedBy:           key.CreatedBy,
		ValidFrom:           key.ValidFrom,
		ValidUntil:          key.ValidUntil,
		RotationPolicy:      string(key.RotationPolicy),
		LastRotated:         key.LastRotated,
		NextRotationDue:     key.NextRotationDue,
		RotatedTo:           key.RotatedTo,
		UsageJSON:           usage,
		Version:             key.Version,
		CreatedAt:           key.CreatedAt,
	}, nil
}

func keyFromModel(model KeyModel) (domain.Key, error) {
	var usage domain.KeyUsage
	if len(model.UsageJSON) > 0 {
		if err := json.Unmarshal(model.UsageJSON, &usage); err != nil {
			return domain.Key{}, err
		}
	}
	return domain.Key{
		ID:                  model.ID,
		Name:                model.Name,
		AuthorityID:         model.AuthorityID,
		Algorithm:           domain.KeyAlgorithm(model.Algorithm),
		Length:              model.Length,
		PublicKeyPEM:        model.PublicKeyPEM,
		PrivateKeyEncrypted: model.PrivateKeyEncrypted,
		ContentHash:         model.ContentHash,
		Status:              domain.KeyStatus(model.Status),
		OwnerID:             model.OwnerID,
		CreatedBy:           model.CreatedBy,
		ValidFrom:           model.ValidFrom,
		ValidUntil:          model.ValidUntil,
		RotationPolicy:      domain.RotationPolicy(model.RotationPolicy),
		LastRotated:         model.LastRotated,
		NextRotationDue:     model.NextRotationDue,
		RotatedTo:           model.RotatedTo,
		Usage:               usage,
		Version:             model.Version,
		CreatedAt:           model.CreatedAt,
	}, nil
}
