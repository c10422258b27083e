package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
)

var errStoreDown = errors.New("store unavailable")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memStore keeps copies of everything it is given so tests observe only what
// was actually persisted. failSaves breaks every write; failVotes and
// failTrust break only ledger or reputation writes.
type memStore struct {
	txMu      sync.Mutex
	mu        sync.Mutex
	ads       map[string]*model.AdRecord
	trust     map[string]model.TrustState
	votes     map[string]model.VoteLedger
	failSaves bool
	failVotes bool
	failTrust bool
}

func newMemStore() *memStore {
	return &memStore{
		ads:   make(map[string]*model.AdRecord),
		trust: make(map[string]model.TrustState),
		votes: make(map[string]model.VoteLedger),
	}
}

func (m *memStore) GetAd(_ context.Context, listingID string) (*model.AdRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ads[listingID].Clone(), nil
}

func (m *memStore) SaveAd(_ context.Context, rec *model.AdRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves {
		return errStoreDown
	}
	m.ads[rec.ListingID] = rec.Clone()
	return nil
}

// WithListing runs one transaction at a time across every service sharing
// the store, and applies staged writes only when fn succeeds.
func (m *memStore) WithListing(_ context.Context, _ string, fn func(tx ListingTx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	tx := &memTx{
		store: m,
		ads:   make(map[string]*model.AdRecord),
		votes: make(map[string]*model.VoteLedger),
	}
	if err := fn(tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range tx.ads {
		m.ads[id] = rec
	}
	for k, l := range tx.votes {
		m.votes[k] = *l
	}
	return nil
}

type memTx struct {
	store *memStore
	ads   map[string]*model.AdRecord
	votes map[string]*model.VoteLedger
}

func (t *memTx) GetAd(ctx context.Context, listingID string) (*model.AdRecord, error) {
	if rec, ok := t.ads[listingID]; ok {
		return rec.Clone(), nil
	}
	return t.store.GetAd(ctx, listingID)
}

func (t *memTx) SaveAd(_ context.Context, rec *model.AdRecord) error {
	t.store.mu.Lock()
	fail := t.store.failSaves
	t.store.mu.Unlock()
	if fail {
		return errStoreDown
	}
	t.ads[rec.ListingID] = rec.Clone()
	return nil
}

func (t *memTx) GetVotes(ctx context.Context, reporterID, listingID string) (*model.VoteLedger, error) {
	if l, ok := t.votes[reporterID+"|"+listingID]; ok {
		return copyLedger(l), nil
	}
	return t.store.GetVotes(ctx, reporterID, listingID)
}

func (t *memTx) SaveVotes(_ context.Context, ledger *model.VoteLedger) error {
	t.store.mu.Lock()
	fail := t.store.failSaves || t.store.failVotes
	t.store.mu.Unlock()
	if fail {
		return errStoreDown
	}
	t.votes[ledger.ReporterID+"|"+ledger.ListingID] = copyLedger(ledger)
	return nil
}

func copyLedger(l *model.VoteLedger) *model.VoteLedger {
	out := *l
	out.Active = make(map[string]model.ActiveVote, len(l.Active))
	for k, v := range l.Active {
		out.Active[k] = v
	}
	return &out
}

func (m *memStore) ChangedSince(_ context.Context, since time.Time, limit int) ([]*model.AdRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AdRecord
	for _, rec := range m.ads {
		if rec.LastSeen.After(since) && len(out) < limit {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (m *memStore) Stats(_ context.Context) (*model.StatsResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &model.StatsResponse{TotalListings: len(m.ads), TotalReporters: len(m.trust)}, nil
}

func (m *memStore) Ping(context.Context) error { return nil }

func (m *memStore) GetTrust(_ context.Context, reporterID string) (*model.TrustState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.trust[reporterID]
	if !ok {
		return nil, nil
	}
	st.Events = append([]model.TrustEvent(nil), st.Events...)
	return &st, nil
}

func (m *memStore) SaveTrust(_ context.Context, state *model.TrustState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves || m.failTrust {
		return errStoreDown
	}
	st := *state
	st.Events = append([]model.TrustEvent(nil), state.Events...)
	m.trust[state.ReporterID] = st
	return nil
}

func (m *memStore) GetVotes(_ context.Context, reporterID, listingID string) (*model.VoteLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.votes[reporterID+"|"+listingID]
	if !ok {
		return nil, nil
	}
	return copyLedger(&l), nil
}

func (m *memStore) SaveVotes(_ context.Context, ledger *model.VoteLedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSaves || m.failVotes {
		return errStoreDown
	}
	m.votes[ledger.ReporterID+"|"+ledger.ListingID] = *copyLedger(ledger)
	return nil
}

type testPipeline struct {
	clock     *fakeClock
	store     *memStore
	suspicion *SuspicionMonitor
	gate      *VoteGate
	trust     *TrustLedger
	engine    *ScoreEngine
	votes     *VoteService
	listings  *ListingService
}

func newTestPipeline() *testPipeline {
	clock := newFakeClock()
	store := newMemStore()
	log := zerolog.Nop()

	suspicion := NewSuspicionMonitor(log)
	suspicion.now = clock.Now
	gate := NewVoteGate(suspicion)
	gate.now = clock.Now
	trust := NewTrustLedger(store, log)
	trust.now = clock.Now
	engine := NewScoreEngine(log)
	locks := NewKeyedMutex()

	votes := NewVoteService(VoteDeps{
		Ads:       store,
		Reporters: store,
		Gate:      gate,
		Suspicion: suspicion,
		Trust:     trust,
		Engine:    engine,
		Listings:  locks,
	}, log)
	votes.now = clock.Now

	listings := NewListingService(store, nil, engine, suspicion, locks, log)
	listings.now = clock.Now

	return &testPipeline{
		clock:     clock,
		store:     store,
		suspicion: suspicion,
		gate:      gate,
		trust:     trust,
		engine:    engine,
		votes:     votes,
		listings:  listings,
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
