package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
)

type ReporterRepo struct {
	pool *pgxpool.Pool
}

func NewReporterRepo(pool *pgxpool.Pool) *ReporterRepo {
	return &ReporterRepo{pool: pool}
}

// GetTrust returns the reporter's stored reputation, or nil if none.
func (r *ReporterRepo) GetTrust(ctx context.Context, reporterID string) (*model.TrustState, error) {
	var s model.TrustState
	var lastAction *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT reporter_id, weight, events, last_action_at
		FROM reporters
		WHERE reporter_id = $1`, reporterID,
	).Scan(&s.ReporterID, &s.Weight, &s.Events, &lastAction)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastAction != nil {
		s.LastActionAt = *lastAction
	}
	return &s, nil
}

func (r *ReporterRepo) SaveTrust(ctx context.Context, state *model.TrustState) error {
	events := state.Events
	if events == nil {
		events = []model.TrustEvent{}
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reporters (reporter_id, weight, events, last_action_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (reporter_id) DO UPDATE SET
			weight = EXCLUDED.weight,
			events = EXCLUDED.events,
			last_action_at = EXCLUDED.last_action_at,
			updated_at = NOW()`,
		state.ReporterID, state.Weight, events, nullTime(state.LastActionAt))
	return err
}

// GetVotes returns the reporter's active signals on a listing, or nil.
func (r *ReporterRepo) GetVotes(ctx context.Context, reporterID, listingID string) (*model.VoteLedger, error) {
	return getVotes(ctx, r.pool, reporterID, listingID)
}

func (r *ReporterRepo) SaveVotes(ctx context.Context, ledger *model.VoteLedger) error {
	return saveVotes(ctx, r.pool, ledger)
}

func getVotes(ctx context.Context, q querier, reporterID, listingID string) (*model.VoteLedger, error) {
	var l model.VoteLedger
	err := q.QueryRow(ctx, `
		SELECT reporter_id, listing_id, active, participated, updated_at
		FROM reporter_votes
		WHERE reporter_id = $1 AND listing_id = $2`, reporterID, listingID,
	).Scan(&l.ReporterID, &l.ListingID, &l.Active, &l.Participated, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func saveVotes(ctx context.Context, q querier, ledger *model.VoteLedger) error {
	active := ledger.Active
	if active == nil {
		active = map[string]model.ActiveVote{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO reporter_votes (reporter_id, listing_id, active, participated, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (reporter_id, listing_id) DO UPDATE SET
			active = EXCLUDED.active,
			participated = EXCLUDED.participated,
			updated_at = EXCLUDED.updated_at`,
		ledger.ReporterID, ledger.ListingID, active, ledger.Participated, ledger.UpdatedAt)
	return err
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
