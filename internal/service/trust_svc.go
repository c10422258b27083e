package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
)

const (
	TrustBaseline = 1.0
	TrustMin      = 0.6
	TrustMax      = 1.4

	// Inactivity decay starts after this grace period.
	trustGraceDays = 30.0
	// Weight lost per full week of inactivity beyond the grace period.
	trustWeeklyDecay = 0.05
)

// ActionKind is a reputation-affecting reporter action.
type ActionKind string

const (
	ActionCorrection    ActionKind = "correction"
	ActionContradiction ActionKind = "contradiction"
	ActionSpamAttempt   ActionKind = "spam_attempt"
	ActionConsistency   ActionKind = "consistency"
)

var actionDeltas = map[ActionKind]float64{
	ActionCorrection:    0.02,
	ActionContradiction: -0.05,
	ActionSpamAttempt:   -0.03,
	ActionConsistency:   0.01,
}

// TrustLedger keeps one reputation weight per reporter across sessions.
type TrustLedger struct {
	store ReporterStore
	locks *KeyedMutex
	now   func() time.Time
	log   zerolog.Logger
}

func NewTrustLedger(store ReporterStore, logger zerolog.Logger) *TrustLedger {
	return &TrustLedger{
		store: store,
		locks: NewKeyedMutex(),
		now:   time.Now,
		log:   logger,
	}
}

// Weight returns the reporter's effective weight in [0.6, 1.4].
func (l *TrustLedger) Weight(ctx context.Context, reporterID string) (float64, error) {
	state, err := l.load(ctx, reporterID)
	if err != nil {
		return TrustBaseline, err
	}
	return EffectiveWeight(state, l.now()), nil
}

// State returns the stored trust state, or a fresh baseline state.
func (l *TrustLedger) State(ctx context.Context, reporterID string) (*model.TrustState, error) {
	return l.load(ctx, reporterID)
}

// RecordAction applies kind to the reporter's weight and returns the new
// effective weight.
func (l *TrustLedger) RecordAction(ctx context.Context, reporterID string, kind ActionKind) (float64, error) {
	unlock := l.locks.Lock(reporterID)
	defer unlock()

	state, err := l.load(ctx, reporterID)
	if err != nil {
		return TrustBaseline, err
	}

	if !ApplyAction(state, kind, l.now()) {
		return EffectiveWeight(state, l.now()), nil
	}

	if err := l.store.SaveTrust(ctx, state); err != nil {
		return EffectiveWeight(state, l.now()), &PersistenceError{Op: "trust", Err: err}
	}

	l.log.Debug().
		Str("reporter", shortID(reporterID)).
		Str("action", string(kind)).
		Float64("weight", state.Weight).
		Msg("trust action recorded")
	return EffectiveWeight(state, l.now()), nil
}

func (l *TrustLedger) load(ctx context.Context, reporterID string) (*model.TrustState, error) {
	state, err := l.store.GetTrust(ctx, reporterID)
	if err != nil {
		return nil, fmt.Errorf("load trust: %w", err)
	}
	if state == nil {
		state = &model.TrustState{ReporterID: reporterID, Weight: TrustBaseline}
	}
	return state, nil
}

// ApplyAction sets the stored weight to the current effective weight plus
// the action delta and logs the event. It reports false for unknown kinds.
func ApplyAction(state *model.TrustState, kind ActionKind, now time.Time) bool {
	delta, ok := actionDeltas[kind]
	if !ok {
		return false
	}
	current := EffectiveWeight(state, now)
	state.Weight = math.Round((current+delta)*10000) / 10000
	state.Push(model.TrustEvent{Kind: string(kind), Delta: delta, At: now})
	return true
}

// EffectiveWeight applies inactivity decay and clamps the stored weight.
//
//	after 30 days idle: weight -= 0.05 per full extra week, floored at 1.0
//
// A weight already below baseline is left as is.
func EffectiveWeight(state *model.TrustState, now time.Time) float64 {
	if state == nil {
		return TrustBaseline
	}
	w := state.Weight
	if !state.LastActionAt.IsZero() && w > TrustBaseline {
		idleDays := now.Sub(state.LastActionAt).Hours() / 24
		if idleDays > trustGraceDays {
			weeks := math.Floor((idleDays - trustGraceDays) / 7)
			w = math.Max(TrustBaseline, w-weeks*trustWeeklyDecay)
		}
	}
	return ClampTrust(w)
}

// ClampTrust bounds a weight to [0.6, 1.4].
func ClampTrust(w float64) float64 {
	return math.Min(TrustMax, math.Max(TrustMin, w))
}

// DaysInactive returns whole days since the reporter's last recorded action.
func DaysInactive(state *model.TrustState, now time.Time) int {
	if state == nil || state.LastActionAt.IsZero() {
		return 0
	}
	return int(math.Floor(now.Sub(state.LastActionAt).Hours() / 24))
}
