package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/service"
)

var (
	_ service.AdStore       = (*Store)(nil)
	_ service.ReporterStore = (*Store)(nil)
)

// Store implements both persistence ports on one SQLite database. Each
// listing is kept as a single JSON document next to the few columns that
// stats and delta sync filter on.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Open creates the database file if needed and returns a ready store.
func Open(path string) (*Store, error) {
	db, err := NewDB(path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithListing runs fn in one SQLite transaction. The database has a single
// connection, so the transaction excludes every other reader and writer
// until it ends; fn must only use tx.
func (s *Store) WithListing(ctx context.Context, listingID string, fn func(tx service.ListingTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin listing %s: %w", listingID, err)
	}
	defer tx.Rollback()

	if err := fn(listingTx{tx: tx, now: s.now}); err != nil {
		return err
	}
	return tx.Commit()
}

type listingTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t listingTx) GetAd(ctx context.Context, listingID string) (*model.AdRecord, error) {
	return getAd(ctx, t.tx, listingID)
}

func (t listingTx) SaveAd(ctx context.Context, rec *model.AdRecord) error {
	return saveAd(ctx, t.tx, rec, t.now())
}

func (t listingTx) GetVotes(ctx context.Context, reporterID, listingID string) (*model.VoteLedger, error) {
	return getVotes(ctx, t.tx, reporterID, listingID)
}

func (t listingTx) SaveVotes(ctx context.Context, ledger *model.VoteLedger) error {
	return saveVotes(ctx, t.tx, ledger)
}

func (s *Store) GetAd(ctx context.Context, listingID string) (*model.AdRecord, error) {
	return getAd(ctx, s.db, listingID)
}

func (s *Store) SaveAd(ctx context.Context, rec *model.AdRecord) error {
	return saveAd(ctx, s.db, rec, s.now())
}

func getAd(ctx context.Context, q dbtx, listingID string) (*model.AdRecord, error) {
	var doc string
	err := q.QueryRowContext(ctx,
		`SELECT record_json FROM listings WHERE listing_id = ?`, listingID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeListing(doc)
}

func saveAd(ctx context.Context, q dbtx, rec *model.AdRecord, now time.Time) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode listing: %w", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO listings (listing_id, first_seen, last_seen, record_json, risk_score, state, total_votes, updated_at_unix)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET
			last_seen = excluded.last_seen,
			record_json = excluded.record_json,
			risk_score = excluded.risk_score,
			state = excluded.state,
			total_votes = excluded.total_votes,
			updated_at_unix = excluded.updated_at_unix`,
		rec.ListingID, rec.FirstSeen.UnixMilli(), rec.LastSeen.UnixMilli(), string(doc),
		rec.RiskScore, rec.State, rec.CommunitySignals.TotalVotesRaw, now.UnixMilli())
	return err
}

func (s *Store) ChangedSince(ctx context.Context, since time.Time, limit int) ([]*model.AdRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_json FROM listings
		WHERE updated_at_unix > ?
		ORDER BY updated_at_unix ASC
		LIMIT ?`, since.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AdRecord
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		rec, err := decodeListing(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context) (*model.StatsResponse, error) {
	var st model.StatsResponse
	dayAgo := s.now().Add(-24 * time.Hour).UnixMilli()
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM listings),
			(SELECT COUNT(*) FROM reporters),
			(SELECT COALESCE(SUM(total_votes), 0) FROM listings),
			(SELECT COUNT(*) FROM listings WHERE state = ?),
			(SELECT COUNT(*) FROM listings WHERE updated_at_unix > ?)`,
		model.StateAttention, dayAgo,
	).Scan(&st.TotalListings, &st.TotalReporters, &st.TotalVotes, &st.AttentionRequired, &st.ActiveListings24h)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) GetTrust(ctx context.Context, reporterID string) (*model.TrustState, error) {
	var (
		st         model.TrustState
		events     string
		lastAction int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT reporter_id, weight, events_json, last_action_at
		FROM reporters WHERE reporter_id = ?`, reporterID,
	).Scan(&st.ReporterID, &st.Weight, &events, &lastAction)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(events), &st.Events); err != nil {
		return nil, fmt.Errorf("decode trust events: %w", err)
	}
	st.LastActionAt = fromMillis(lastAction)
	return &st, nil
}

func (s *Store) SaveTrust(ctx context.Context, state *model.TrustState) error {
	events := state.Events
	if events == nil {
		events = []model.TrustEvent{}
	}
	doc, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode trust events: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reporters (reporter_id, weight, events_json, last_action_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(reporter_id) DO UPDATE SET
			weight = excluded.weight,
			events_json = excluded.events_json,
			last_action_at = excluded.last_action_at`,
		state.ReporterID, state.Weight, string(doc), toMillis(state.LastActionAt))
	return err
}

func (s *Store) GetVotes(ctx context.Context, reporterID, listingID string) (*model.VoteLedger, error) {
	return getVotes(ctx, s.db, reporterID, listingID)
}

func (s *Store) SaveVotes(ctx context.Context, ledger *model.VoteLedger) error {
	return saveVotes(ctx, s.db, ledger)
}

func getVotes(ctx context.Context, q dbtx, reporterID, listingID string) (*model.VoteLedger, error) {
	var (
		l            model.VoteLedger
		active       string
		participated int
		updated      int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT reporter_id, listing_id, active_json, participated, updated_at_unix
		FROM reporter_votes WHERE reporter_id = ? AND listing_id = ?`, reporterID, listingID,
	).Scan(&l.ReporterID, &l.ListingID, &active, &participated, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(active), &l.Active); err != nil {
		return nil, fmt.Errorf("decode active votes: %w", err)
	}
	l.Participated = participated != 0
	l.UpdatedAt = fromMillis(updated)
	return &l, nil
}

func saveVotes(ctx context.Context, q dbtx, ledger *model.VoteLedger) error {
	active := ledger.Active
	if active == nil {
		active = map[string]model.ActiveVote{}
	}
	doc, err := json.Marshal(active)
	if err != nil {
		return fmt.Errorf("encode active votes: %w", err)
	}
	participated := 0
	if ledger.Participated {
		participated = 1
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO reporter_votes (reporter_id, listing_id, active_json, participated, updated_at_unix)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(reporter_id, listing_id) DO UPDATE SET
			active_json = excluded.active_json,
			participated = excluded.participated,
			updated_at_unix = excluded.updated_at_unix`,
		ledger.ReporterID, ledger.ListingID, string(doc), participated, toMillis(ledger.UpdatedAt))
	return err
}

func decodeListing(doc string) (*model.AdRecord, error) {
	var rec model.AdRecord
	if err := json.Unmarshal([]byte(doc), &rec); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	rec.EnsureMaps()
	return &rec, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
