package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"keystone/internal/domain"
)

func newTestReplayDetector(ttl time.Duration) (*ReplayDetector, *memoryAuditRepo, func(time.Duration)) {
	clock, advance := testClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	audit := newMemoryAuditRepo()
	detector := &ReplayDetector{
		Nonces: newFixedTTLNonceStore(ttl, clock),
		Audit:  NewAuditLogger(audit, clock, quietLogger()),
		Clock:  clock,
	}
	return detector, audit, advance
}

func TestGenerateNonceIsUniqueHex(t *testing.T) {
	detector, _, _ := newTestReplayDetector(5 * time.Minute)

	first, err := detector.GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	second, err := detector.GenerateNonce()
	if err != nil {
		t.Fatalf("GenerateNonce: %v", err)
	}
	if len(first) != 32 {
		t.Fatalf("nonce length = %d, want 32 hex chars", len(first))
	}
	if first == second {
		t.Fatal("nonces must be unique")
	}
}

func TestFirstUseAdmitsSecondUseIsReplay(t *testing.T) {
	detector, audit, _ := newTestReplayDetector(5 * time.Minute)
	ctx := context.Background()

	first, err := detector.Check(ctx, testAdmin, "nonce-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if first.IsReplay || first.RiskLevel != domain.RiskLow {
		t.Fatalf("first use = %+v, want admitted at low risk", first)
	}

	second, err := detector.Check(ctx, testAdmin, "nonce-1")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if !second.IsReplay || second.RiskLevel != domain.RiskCritical {
		t.Fatalf("second use = %+v, want replay at critical risk", second)
	}

	entries, _ := audit.ListRange(ctx, 1, 10)
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d, want the single replay detection", len(entries))
	}
	if entries[0].Action != domain.AuditActionDetectReplay || entries[0].Status != domain.AuditStatusBlocked {
		t.Fatalf("entry = %+v", entries[0])
	}
}

func TestNonceReadmittedAfterTTL(t *testing.T) {
	detector, _, advance := newTestReplayDetector(5 * time.Minute)
	ctx := context.Background()

	if check, _ := detector.Check(ctx, testAdmin, "nonce-ttl"); check.IsReplay {
		t.Fatal("first use flagged as replay")
	}
	advance(4 * time.Minute)
	if check, _ := detector.Check(ctx, testAdmin, "nonce-ttl"); !check.IsReplay {
		t.Fatal("reuse inside the window must be a replay")
	}
	advance(2 * time.Minute)
	if check, _ := detector.Check(ctx, testAdmin, "nonce-ttl"); check.IsReplay {
		t.Fatal("nonce past its lifetime should be admitted again")
	}
}

func TestCheckRequiresNonce(t *testing.T) {
	detector, _, _ := newTestReplayDetector(time.Minute)
	if _, err := detector.Check(context.Background(), testAdmin, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}
