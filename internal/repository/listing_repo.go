package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/service"
)

var (
	_ service.AdStore       = (*ListingRepo)(nil)
	_ service.ReporterStore = (*ReporterRepo)(nil)
)

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type ListingRepo struct {
	pool *pgxpool.Pool
}

func NewListingRepo(pool *pgxpool.Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

const listingColumns = `
	listing_id, first_seen, last_seen,
	community_signals, native_signals, behavior_signals, ad_signals, user_signals, context_stats,
	risk_score, quality_score, confidence_score, state`

func scanListing(row pgx.Row) (*model.AdRecord, error) {
	var r model.AdRecord
	err := row.Scan(
		&r.ListingID, &r.FirstSeen, &r.LastSeen,
		&r.CommunitySignals, &r.NativeSignals, &r.BehaviorSignals, &r.AdSignals, &r.UserSignals, &r.ContextStats,
		&r.RiskScore, &r.QualityScore, &r.ConfidenceScore, &r.State,
	)
	if err != nil {
		return nil, err
	}
	r.EnsureMaps()
	return &r, nil
}

// GetAd returns the stored record, or nil when the listing is unknown.
func (r *ListingRepo) GetAd(ctx context.Context, listingID string) (*model.AdRecord, error) {
	return getAd(ctx, r.pool, listingID, false)
}

// SaveAd upserts the whole record and notifies other instances in the same
// transaction, so listeners only hear about committed state.
func (r *ListingRepo) SaveAd(ctx context.Context, rec *model.AdRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := saveAd(ctx, tx, rec); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// WithListing serializes read-modify-write cycles on one listing across
// every API instance. The transaction takes an advisory lock keyed on the
// listing id, which also covers listings that have no row yet, and reads
// the row FOR UPDATE.
func (r *ListingRepo) WithListing(ctx context.Context, listingID string, fn func(tx service.ListingTx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, listingID); err != nil {
		return err
	}
	if err := fn(listingTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// listingTx runs listing and ledger statements on one transaction.
type listingTx struct {
	q querier
}

func (t listingTx) GetAd(ctx context.Context, listingID string) (*model.AdRecord, error) {
	return getAd(ctx, t.q, listingID, true)
}

func (t listingTx) SaveAd(ctx context.Context, rec *model.AdRecord) error {
	return saveAd(ctx, t.q, rec)
}

func (t listingTx) GetVotes(ctx context.Context, reporterID, listingID string) (*model.VoteLedger, error) {
	return getVotes(ctx, t.q, reporterID, listingID)
}

func (t listingTx) SaveVotes(ctx context.Context, ledger *model.VoteLedger) error {
	return saveVotes(ctx, t.q, ledger)
}

func getAd(ctx context.Context, q querier, listingID string, forUpdate bool) (*model.AdRecord, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE listing_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	rec, err := scanListing(q.QueryRow(ctx, query, listingID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// saveAd upserts rec and queues a change notification, which Postgres
// delivers only if the surrounding transaction commits.
func saveAd(ctx context.Context, q querier, rec *model.AdRecord) error {
	_, err := q.Exec(ctx, `
		INSERT INTO listings (
			listing_id, first_seen, last_seen,
			community_signals, native_signals, behavior_signals, ad_signals, user_signals, context_stats,
			risk_score, quality_score, confidence_score, state, total_votes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (listing_id) DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			community_signals = EXCLUDED.community_signals,
			native_signals = EXCLUDED.native_signals,
			behavior_signals = EXCLUDED.behavior_signals,
			ad_signals = EXCLUDED.ad_signals,
			user_signals = EXCLUDED.user_signals,
			context_stats = EXCLUDED.context_stats,
			risk_score = EXCLUDED.risk_score,
			quality_score = EXCLUDED.quality_score,
			confidence_score = EXCLUDED.confidence_score,
			state = EXCLUDED.state,
			total_votes = EXCLUDED.total_votes,
			updated_at = NOW()`,
		rec.ListingID, rec.FirstSeen, rec.LastSeen,
		rec.CommunitySignals, rec.NativeSignals, rec.BehaviorSignals, rec.AdSignals, rec.UserSignals, rec.ContextStats,
		rec.RiskScore, rec.QualityScore, rec.ConfidenceScore, rec.State, rec.CommunitySignals.TotalVotesRaw)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `SELECT pg_notify($1, $2)`, service.ChangeChannel, rec.ListingID)
	return err
}

// ChangedSince returns listings updated after since, oldest first.
func (r *ListingRepo) ChangedSince(ctx context.Context, since time.Time, limit int) ([]*model.AdRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE updated_at > $1
		ORDER BY updated_at ASC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.AdRecord
	for rows.Next() {
		rec, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats returns aggregate platform statistics.
func (r *ListingRepo) Stats(ctx context.Context) (*model.StatsResponse, error) {
	var s model.StatsResponse
	err := r.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM listings),
			(SELECT COUNT(*) FROM reporters),
			(SELECT COALESCE(SUM(total_votes), 0) FROM listings),
			(SELECT COUNT(*) FROM listings WHERE state = $1),
			(SELECT COUNT(*) FROM listings WHERE updated_at > NOW() - INTERVAL '24 hours')`,
		model.StateAttention,
	).Scan(&s.TotalListings, &s.TotalReporters, &s.TotalVotes, &s.AttentionRequired, &s.ActiveListings24h)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ListingRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
