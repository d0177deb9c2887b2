package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"keystone/internal/domain"
)

// AuditLogger appends entries to the hash-chained ledger. Logging is
// best-effort: a failed or skipped append degrades observability but must
// never block or roll back the operation that triggered it.
type AuditLogger struct {
	Repo  AuditRepository
	Clock Clock
	Log   *logrus.Logger

	// OnResult, when set, observes whether each append was written or
	// dropped. Used for metrics.
	OnResult func(written bool)
}

func NewAuditLogger(repo AuditRepository, clock Clock, log *logrus.Logger) *AuditLogger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AuditLogger{Repo: repo, Clock: clock, Log: log}
}

type AuditRecord struct {
	Action       domain.AuditAction
	Actor        domain.Actor
	ResourceType domain.ResourceType
	ResourceID   string
	ResourceName string
	Description  string
	Status       domain.AuditStatus
	Severity     domain.AuditSeverity
}

// Record appends one chain entry. It returns whether the entry was written;
// it never returns an error to the caller.
func (l *AuditLogger) Record(ctx context.Context, rec AuditRecord) bool {
	if l == nil || l.Repo == nil {
		return false
	}
	if rec.Actor.ID == "" {
		l.Log.WithField("action", rec.Action).Warn("audit entry skipped: no actor identifiable")
		l.observe(false)
		return false
	}
	if rec.Status == "" {
		rec.Status = domain.AuditStatusSuccess
	}
	if rec.Severity == "" {
		rec.Severity = domain.SeverityForAction(rec.Action)
	}
	entry := domain.AuditEntry{
		Action:       rec.Action,
		ActorID:      rec.Actor.ID,
		ActorName:    rec.Actor.Name,
		ActorRole:    rec.Actor.Role,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		ResourceName: rec.ResourceName,
		Description:  rec.Description,
		Status:       rec.Status,
		Severity:     rec.Severity,
		CreatedAt:    l.now(),
	}
	if _, err := l.Repo.Append(ctx, entry); err != nil {
		l.Log.WithError(err).WithFields(logrus.Fields{
			"action":   rec.Action,
			"resource": string(rec.ResourceType) + "/" + rec.ResourceID,
		}).Warn("audit entry dropped")
		l.observe(false)
		return false
	}
	l.observe(true)
	return true
}

func (l *AuditLogger) observe(written bool) {
	if l.OnResult != nil {
		l.OnResult(written)
	}
}

func (l *AuditLogger) now() time.Time {
	if l.Clock != nil {
		return l.Clock().UTC()
	}
	return time.Now().UTC()
}

// ChainBreak describes the first entry at which chain verification failed.
type ChainBreak struct {
	EntryID string
	Seq     int64
	Reason  string
}

// VerifyChain recomputes every hash in [fromSeq, toSeq] and checks each link
// against its predecessor. Any mismatch is reported as ErrChainIntegrity with
// the offending entry identified.
func VerifyChain(ctx context.Context, repo AuditRepository, fromSeq, toSeq int64) (*ChainBreak, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: audit repository is required", domain.ErrValidation)
	}
	if fromSeq < 1 {
		fromSeq = 1
	}
	if toSeq == 0 {
		last, err := repo.LastSeq(ctx)
		if err != nil {
			return nil, err
		}
		toSeq = last
	}
	if toSeq < fromSeq {
		return nil, nil
	}

	prevHash := domain.GenesisHash
	start := fromSeq
	if fromSeq > 1 {
		anchor, err := repo.ListRange(ctx, fromSeq-1, fromSeq-1)
		if err != nil {
			return nil, err
		}
		if len(anchor) != 1 {
			return nil, fmt.Errorf("%w: missing anchor entry at seq %d", domain.ErrChainIntegrity, fromSeq-1)
		}
		prevHash = anchor[0].LogHash
	}

	entries, err := repo.ListRange(ctx, start, toSeq)
	if err != nil {
		return nil, err
	}
	expectedSeq := fromSeq
	for _, entry := range entries {
		if entry.Seq != expectedSeq {
			return chainBreak(entry, fmt.Sprintf("seq gap: expected %d got %d", expectedSeq, entry.Seq))
		}
		if entry.PreviousLogHash != prevHash {
			return chainBreak(entry, "previous hash does not match prior entry")
		}
		if recomputed := domain.ChainHash(entry); recomputed != entry.LogHash {
			return chainBreak(entry, "stored hash does not match recomputed hash")
		}
		prevHash = entry.LogHash
		expectedSeq++
	}
	return nil, nil
}

func chainBreak(entry domain.AuditEntry, reason string) (*ChainBreak, error) {
	return &ChainBreak{EntryID: entry.ID, Seq: entry.Seq, Reason: reason},
		fmt.Errorf("%w: entry %s (seq %d): %s", domain.ErrChainIntegrity, entry.ID, entry.Seq, reason)
}
