package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/ballotledger/ballotledger/internal/audit"
	"github.com/ballotledger/ballotledger/internal/ledger"
	"go.uber.org/zap"
)

var ctx = context.Background()

func seededStore(t *testing.T) *ledger.MemoryStore {
	t.Helper()
	store := ledger.NewMemoryStore()
	engine := ledger.NewEngine(store, zap.NewNop())

	_, err := engine.AppendDefinition(ctx, ledger.VoteDefinition{
		VoteID:         "v1",
		CreatorID:      "root",
		Title:          "Board election",
		Options:        []string{"A", "B"},
		EndDate:        time.Now().Add(time.Hour),
		EligibleGroups: []string{ledger.GroupAll},
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = engine.AppendBallot(ctx, ledger.Ballot{VoterID: "u1", VoteID: "v1", Candidate: "A"})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestAuditor_passes(t *testing.T) {
	store := seededStore(t)
	a := audit.New(store, audit.Config{}, zap.NewNop())

	var recorded []bool
	a.SetMetricsRecord(func(valid bool, entries int) {
		recorded = append(recorded, valid)
		if entries != 2 {
			t.Errorf("entries: got %d, want 2", entries)
		}
	})

	res, n := a.RunOnce(ctx)
	if !res.Valid || n != 2 {
		t.Fatalf("audit: %+v (%d entries)", res, n)
	}
	if len(recorded) != 1 || !recorded[0] {
		t.Errorf("metrics callback: %v", recorded)
	}
}

func TestAuditor_alertsOnceOnCorruption(t *testing.T) {
	store := seededStore(t)
	a := audit.New(store, audit.Config{}, zap.NewNop())

	alerts := 0
	a.SetAlert(func(_ context.Context, res ledger.ValidationResult) {
		alerts++
		if res.Reason != ledger.ReasonHashMismatch || res.Index != 1 {
			t.Errorf("alert detail: %+v", res)
		}
	})

	store.Tamper(1, func(e *ledger.Entry) {
		e.Ballot.Candidate = "B"
	})

	// The alert fires on the transition, not on every failing run.
	for i := 0; i < 3; i++ {
		if res, _ := a.RunOnce(ctx); res.Valid {
			t.Fatal("tampered chain passed audit")
		}
	}
	if alerts != 1 {
		t.Errorf("alerts: got %d, want 1", alerts)
	}
}
