package db

import (
	"context"
	"encoding/json"
	"errors"

	"gorm.io/gorm"

	"keystone/internal/domain"
)

type VerificationRepository struct {
	db *gorm.DB
}

func NewVerificationRepository(db *gorm.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

func (r *VerificationRepository) Create(ctx context.Context, req domain.VerificationRequest) error {
	if r.db == nil {
		return errDBUnavailable
	}
	model, err := verificationToModel(req)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *VerificationRepository) GetByID(ctx context.Context, id string) (*domain.VerificationRequest, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var model VerificationModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	req, err := verificationFromModel(model)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *VerificationRepository) ListByRequester(ctx context.Context, requesterID string) ([]domain.VerificationRequest, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []VerificationModel
	err := r.db.WithContext(ctx).
		Where("requested_by = ?", requesterID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	requests := make([]domain.VerificationRequest, 0, len(models))
	for _, model := range models {
		req, err := verificationFromModel(model)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

func verificationToModel(req domain.VerificationRequest) (VerificationModel, error) {
	verdict, err := json.Marshal(req.Verdict)
	if err != nil {
		return VerificationModel{}, err
	}
	tamper, err := json.Marshal(req.Tamper)
	if err != nil {
		return VerificationModel{}, err
	}
	return VerificationModel{
		ID:                 req.ID,
		CertificateID:      req.CertificateID,
		RequestedBy:        req.RequestedBy,
		ComputedHash:       req.ComputedHash,
		HashAlgorithm:      req.HashAlgorithm,
		SignatureAlgorithm: req.SignatureAlgorithm,
		ProvidedSignature:  req.ProvidedSignature,
		SignatureValid:     req.SignatureValid,
		Status:             string(req.Status),
		VerdictJSON:        verdict,
		TamperJSON:         tamper,
		TrustScore:         req.TrustScore,
		CreatedAt:          req.CreatedAt,
	}, nil
}

func verificationFromModel(model VerificationModel) (domain.VerificationRequest, error) {
	var verdict domain.Verdict
	if len(model.VerdictJSON) > 0 {
		if err := json.Unmarshal(model.VerdictJSON, &verdict); err != nil {
			return domain.VerificationRequest{}, err
		}
	}
	var tamper domain.TamperCheck
	if len(model.TamperJSON) > 0 {
		if err := json.Unmarshal(model.TamperJSON, &tamper); err != nil {
			return domain.VerificationRequest{}, err
		}
	}
	return domain.VerificationRequest{
		ID:                 model.ID,
		CertificateID:      model.CertificateID,
		RequestedBy:        model.RequestedBy,
		ComputedHash:       model.ComputedHash,
		HashAlgorithm:      model.HashAlgorithm,
		SignatureAlgorithm: model.SignatureAlgorithm,
		ProvidedSignature:  model.ProvidedSignature,
		SignatureValid:     model.SignatureValid,
		Status:             domain.VerificationStatus(model.Status),
		Verdict:            verdict,
		Tamper:             tamper,
		TrustScore:         model.TrustScore,
		CreatedAt:          model.CreatedAt,
	}, nil
}
