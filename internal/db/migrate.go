package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaV1 stores each listing aggregate as one row. Sub-objects live in
// JSONB columns so new counters do not need a migration; the scalar columns
// exist for stats and delta sync.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS listings (
	listing_id        TEXT PRIMARY KEY,
	first_seen        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	last_seen         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	community_signals JSONB NOT NULL DEFAULT '{}',
	native_signals    JSONB NOT NULL DEFAULT '{}',
	behavior_signals  JSONB NOT NULL DEFAULT '{}',
	ad_signals        JSONB NOT NULL DEFAULT '{}',
	user_signals      JSONB NOT NULL DEFAULT '{}',
	context_stats     JSONB NOT NULL DEFAULT '{}',
	risk_score        INTEGER NOT NULL DEFAULT 100,
	quality_score     INTEGER NOT NULL DEFAULT 0,
	confidence_score  INTEGER NOT NULL DEFAULT 0,
	state             TEXT NOT NULL DEFAULT '',
	total_votes       INTEGER NOT NULL DEFAULT 0,
	updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_listings_updated_at ON listings(updated_at);
CREATE INDEX IF NOT EXISTS idx_listings_state ON listings(state);

CREATE TABLE IF NOT EXISTS reporters (
	reporter_id    TEXT PRIMARY KEY,
	weight         DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	events         JSONB NOT NULL DEFAULT '[]',
	last_action_at TIMESTAMPTZ,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS reporter_votes (
	reporter_id  TEXT NOT NULL,
	listing_id   TEXT NOT NULL,
	active       JSONB NOT NULL DEFAULT '{}',
	participated BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (reporter_id, listing_id)
);
CREATE INDEX IF NOT EXISTS idx_reporter_votes_listing ON reporter_votes(listing_id);
`

// Migrate creates the tables when they do not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaV1); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
