package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
)

func TestApplyAction(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		start  float64
		kind   ActionKind
		want   float64
		wantOK bool
	}{
		{"correction from baseline", 1.0, ActionCorrection, 1.02, true},
		{"contradiction from baseline", 1.0, ActionContradiction, 0.95, true},
		{"spam attempt from baseline", 1.0, ActionSpamAttempt, 0.97, true},
		{"consistency from baseline", 1.0, ActionConsistency, 1.01, true},
		{"correction at the ceiling", 1.4, ActionCorrection, 1.42, true},
		{"unknown action", 1.0, ActionKind("bribe"), 1.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &model.TrustState{ReporterID: "r1", Weight: tt.start}
			ok := ApplyAction(state, tt.kind, now)
			if ok != tt.wantOK {
				t.Fatalf("ApplyAction ok = %v, want %v", ok, tt.wantOK)
			}
			if !approx(state.Weight, tt.want) {
				t.Errorf("stored weight = %.4f, want %.4f", state.Weight, tt.want)
			}
			if ok && !state.LastActionAt.Equal(now) {
				t.Errorf("LastActionAt = %s, want %s", state.LastActionAt, now)
			}
		})
	}
}

func TestEffectiveWeight(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	daysAgo := func(d int) time.Time { return now.AddDate(0, 0, -d) }

	tests := []struct {
		name   string
		weight float64
		last   time.Time
		want   float64
	}{
		{"no history", 1.0, time.Time{}, 1.0},
		{"active reporter", 1.3, daysAgo(3), 1.3},
		{"inside grace period", 1.3, daysAgo(30), 1.3},
		{"two weeks past grace", 1.3, daysAgo(44), 1.2},
		{"decay floors at baseline", 1.3, daysAgo(300), 1.0},
		{"low trust never decays", 0.8, daysAgo(300), 0.8},
		{"clamped to ceiling", 1.5, daysAgo(1), 1.4},
		{"clamped to floor", 0.4, daysAgo(1), 0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &model.TrustState{Weight: tt.weight, LastActionAt: tt.last}
			if got := EffectiveWeight(state, now); !approx(got, tt.want) {
				t.Errorf("EffectiveWeight = %.4f, want %.4f", got, tt.want)
			}
		})
	}

	if got := EffectiveWeight(nil, now); got != TrustBaseline {
		t.Errorf("EffectiveWeight(nil) = %.2f, want %.2f", got, TrustBaseline)
	}
}

func TestDaysInactive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := &model.TrustState{LastActionAt: now.Add(-49 * time.Hour)}
	if got := DaysInactive(state, now); got != 2 {
		t.Errorf("DaysInactive = %d, want 2", got)
	}
	if got := DaysInactive(&model.TrustState{}, now); got != 0 {
		t.Errorf("DaysInactive without history = %d, want 0", got)
	}
}

func TestTrustLedger_RecordAction(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	store := newMemStore()
	ledger := NewTrustLedger(store, zerolog.Nop())
	ledger.now = clock.Now

	if w, err := ledger.Weight(ctx, "r1"); err != nil || w != TrustBaseline {
		t.Fatalf("Weight of unknown reporter = %.2f, %v", w, err)
	}

	for i := 0; i < 3; i++ {
		if _, err := ledger.RecordAction(ctx, "r1", ActionCorrection); err != nil {
			t.Fatalf("RecordAction: %v", err)
		}
	}
	w, err := ledger.RecordAction(ctx, "r1", ActionContradiction)
	if err != nil {
		t.Fatalf("RecordAction: %v", err)
	}
	if !approx(w, 1.01) {
		t.Errorf("weight after 3 corrections and a contradiction = %.4f, want 1.01", w)
	}

	state, _ := store.GetTrust(ctx, "r1")
	if state == nil || len(state.Events) != 4 {
		t.Fatalf("stored state = %+v, want 4 events", state)
	}
}

func TestTrustLedger_EventHistoryBounded(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	ledger := NewTrustLedger(store, zerolog.Nop())

	for i := 0; i < model.MaxTrustEvents+10; i++ {
		ledger.RecordAction(ctx, "r1", ActionConsistency)
	}
	state, _ := ledger.State(ctx, "r1")
	if len(state.Events) != model.MaxTrustEvents {
		t.Errorf("events kept = %d, want %d", len(state.Events), model.MaxTrustEvents)
	}
	if w, _ := ledger.Weight(ctx, "r1"); w != TrustMax {
		t.Errorf("weight after many consistent actions = %.2f, want %.2f", w, TrustMax)
	}
}

func TestTrustLedger_PersistenceError(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failSaves = true
	ledger := NewTrustLedger(store, zerolog.Nop())

	w, err := ledger.RecordAction(ctx, "r1", ActionCorrection)
	var perr *PersistenceError
	if !errors.As(err, &perr) || perr.Op != "trust" {
		t.Fatalf("RecordAction error = %v, want *PersistenceError", err)
	}
	if !errors.Is(err, errStoreDown) {
		t.Errorf("error does not wrap the store failure: %v", err)
	}
	if !approx(w, 1.02) {
		t.Errorf("weight returned on failure = %.4f, want 1.02", w)
	}
}
