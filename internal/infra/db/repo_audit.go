package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"keystone/internal/domain"
)

type AuditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append links the entry to the chain head inside one transaction. The head
// row is locked FOR UPDATE so concurrent appends serialize and every entry
// gets a unique seq and an unbroken previous-hash link.
func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if r.db == nil {
		return domain.AuditEntry{}, errDBUnavailable
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, prevHash, err := nextSeq(ctx, tx)
		if err != nil {
			return err
		}
		entry.Seq = seq
		entry.PreviousLogHash = prevHash
		entry.LogHash = domain.ChainHash(entry)

		model := auditEntryToModel(entry)
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.AuditEntry{}, err
	}
	return entry, nil
}

func nextSeq(ctx context.Context, tx *gorm.DB) (int64, string, error) {
	if err := tx.WithContext(ctx).Exec(
		"INSERT INTO audit_seq (id, seq, updated_at) VALUES (1, 0, NOW()) ON CONFLICT (id) DO NOTHING",
	).Error; err != nil {
		return 0, "", err
	}

	var currentSeq int64
	if err := tx.WithContext(ctx).Raw(
		"SELECT seq FROM audit_seq WHERE id = 1 FOR UPDATE",
	).Scan(&currentSeq).Error; err != nil {
		return 0, "", err
	}
	next := currentSeq + 1
	if err := tx.WithContext(ctx).Exec(
		"UPDATE audit_seq SET seq = ?, updated_at = NOW() WHERE id = 1", next,
	).Error; err != nil {
		return 0, "", err
	}

	prevHash := domain.GenesisHash
	if currentSeq > 0 {
		var prev AuditEntryModel
		if err := tx.WithContext(ctx).Where("seq = ?", currentSeq).Take(&prev).Error; err != nil {
			return 0, "", err
		}
		prevHash = prev.LogHash
	}
	return next, prevHash, nil
}

func (r *AuditRepository) ListRange(ctx context.Context, fromSeq, toSeq int64) ([]domain.AuditEntry, error) {
	if r.db == nil {
		return nil, errDBUnavailable
	}
	var models []AuditEntryModel
	err := r.db.WithContext(ctx).
		Where("seq >= ? AND seq <= ?", fromSeq, toSeq).
		Order("seq ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	entries := make([]domain.AuditEntry, 0, len(models))
	for _, model := range models {
		entries = append(entries, auditEntryFromModel(model))
	}
	return entries, nil
}

func (r *AuditRepository) LastSeq(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	var head AuditSeqModel
	err := r.db.WithContext(ctx).Where("id = 1").First(&head).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return head.Seq, nil
}

// PurgeOlderThan deletes aged entries without renumbering. The chain head
// keeps its seq so later appends still link to the newest surviving entry.
func (r *AuditRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.db == nil {
		return 0, errDBUnavailable
	}
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&AuditEntryModel{})
	return result.RowsAffected, result.Error
}

func auditEntryToModel(entry domain.AuditEntry) AuditEntryModel {
	return AuditEntryModel{
		ID:              entry.ID,
		Seq:             entry.Seq,
		Action:          string(entry.Action),
		ActorID:         entry.ActorID,
		ActorName:       entry.ActorName,
		ActorRole:       string(entry.ActorRole),
		ResourceType:    string(entry.ResourceType),
		ResourceID:      entry.ResourceID,
		ResourceName:    entry.ResourceName,
		Description:     entry.Description,
		Status:          string(entry.Status),
		Severity:        string(entry.Severity),
		LogHash:         entry.LogHash,
		PreviousLogHash: entry.PreviousLogHash,
		CreatedAt:       entry.CreatedAt,
	}
}

func auditEntryFromModel(model AuditEntryModel) domain.AuditEntry {
	return domain.AuditEntry{
		ID:              model.ID,
		Seq:             model.Seq,
		Action:          domain.AuditAction(model.Action),
		ActorID:         model.ActorID,
		ActorName:       model.ActorName,
		ActorRole:       domain.Role(model.ActorRole),
		ResourceType:    domain.ResourceType(model.ResourceType),
		ResourceID:      model.ResourceID,
		ResourceName:    model.ResourceName,
		Description:     model.Description,
		Status:          domain.AuditStatus(model.Status),
		Severity:        domain.AuditSeverity(model.Severity),
		LogHash:         model.LogHash,
		PreviousLogHash: model.PreviousLogHash,
		CreatedAt:       model.CreatedAt,
	}
}
