package usecase

import (
	"context"
	"fmt"
	"time"

	"keystone/internal/domain"
	"keystone/internal/infra/crypto"
)

// ReplayDetector tracks request nonces with a bounded lifetime. A nonce seen
// twice inside the window is a replay; after the window it is forgotten and
// the nonce may be admitted again.
type ReplayDetector struct {
	Nonces NonceStore
	Audit  *AuditLogger
	Clock  Clock
}

// GenerateNonce issues a fresh random nonce for a client to attach to its
// next verification request.
func (d *ReplayDetector) GenerateNonce() (string, error) {
	return crypto.RandomNonce(crypto.DefaultNonceBytes)
}

// Check admits a nonce exactly once per lifetime window. The replay verdict
// is data, not an error; errors mean the store itself failed.
func (d *ReplayDetector) Check(ctx context.Context, actor domain.Actor, nonce string) (domain.ReplayCheck, error) {
	if nonce == "" {
		return domain.ReplayCheck{}, fmt.Errorf("%w: nonce is required", domain.ErrValidation)
	}
	admitted, err := d.Nonces.PutIfAbsent(ctx, nonce)
	if err != nil {
		return domain.ReplayCheck{}, err
	}

	check := domain.ReplayCheck{
		IsReplay:  !admitted,
		RiskLevel: domain.RiskLow,
		Nonce:     nonce,
		CheckedAt: d.now(),
	}
	if check.IsReplay {
		check.RiskLevel = domain.RiskCritical
		d.Audit.Record(ctx, AuditRecord{
			Action:       domain.AuditActionDetectReplay,
			Actor:        actor,
			ResourceType: domain.ResourceSystem,
			ResourceID:   "replay-guard",
			Status:       domain.AuditStatusBlocked,
			Description:  fmt.Sprintf("replayed nonce %s rejected", nonce),
		})
	}
	return check, nil
}

func (d *ReplayDetector) now() time.Time {
	if d.Clock != nil {
		return d.Clock().UTC()
	}
	return time.Now().UTC()
}
