package db

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"keystone/internal/domain"
)

type PolicyRepository struct {
	db *gorm.DB
}

func NewPolicyRepository(db *gorm.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// policyRules is the jsonb payload; identity columns live on the row itself.
type policyRules struct {
	KeyLengths        domain.KeyLengthRequirements  `json:"keyLengths"`
	AllowedEncryption []string                      `json:"allowedEncryption"`
	AllowedHashes     []string                      `json:"allowedHashes"`
	AllowedSigning    []string                      `json:"allowedSigning"`
	Rotation          domain.KeyRotationRules       `json:"rotation"`
	Compliance        domain.ComplianceRequirements `json:"compliance"`
	CertValidityDays  int                           `json:"certValidityDays"`
}

func (r *PolicyRepository) GetActiveByAuthority(ctx context.Context, authorityID string) (*domain.CryptoPolicy, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model PolicyModel
	err := r.db.WithContext(ctx).
		Where("authority_id = ? AND status = ?", authorityID, "active").
		Order("version DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	policy, err := policyFromModel(model)
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *PolicyRepository) Create(ctx context.Context, policy domain.CryptoPolicy) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := policyToModel(policy)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func policyToModel(policy domain.CryptoPolicy) (PolicyModel, error) {
	rules, err := json.Marshal(policyRules{
		KeyLengths:        policy.KeyLengths,
		AllowedEncryption: policy.AllowedEncryption,
		AllowedHashes:     policy.AllowedHashes,
		AllowedSigning:    policy.AllowedSigning,
		Rotation:          policy.Rotation,
		Compliance:        policy.Compliance,
		CertValidityDays:  policy.CertValidityDays,
	})
	if err != nil {
		return PolicyModel{}, err
	}
	return PolicyModel{
		ID:          policy.ID,
		Name:        policy.Name,
		AuthorityID: policy.AuthorityID,
		Version:     policy.Version,
		RulesJSON:   rules,
		Status:      policy.Status,
		CreatedBy:   policy.CreatedBy,
		CreatedAt:   policy.CreatedAt,
	}, nil
}

func policyFromModel(model PolicyModel) (domain.CryptoPolicy, error) {
	var rules policyRules
	if len(model.RulesJSON) > 0 {
		if err := json.Unmarshal(model.RulesJSON, &rules); err != nil {
			return domain.CryptoPolicy{}, err
		}
	}
	return domain.CryptoPolicy{
		ID:                model.ID,
		Name:              model.Name,
		AuthorityID:       model.AuthorityID,
		Version:           model.Version,
		KeyLengths:        rules.KeyLengths,
		AllowedEncryption: rules.AllowedEncryption,
		AllowedHashes:     rules.AllowedHashes,
		AllowedSigning:    rules.AllowedSigning,
		Rotation:          rules.Rotation,
		Compliance:        rules.Compliance,
		CertValidityDays:  rules.CertValidityDays,
		Status:            model.Status,
		CreatedBy:         model.CreatedBy,
		CreatedAt:         model.CreatedAt,
	}, nil
}
