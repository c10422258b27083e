// Package localstore is the single-node SQLite backend for listings and
// reporter state, used when no PostgreSQL server is configured.
package localstore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS listings (
	listing_id       TEXT PRIMARY KEY,
	first_seen       INTEGER NOT NULL DEFAULT 0,
	last_seen        INTEGER NOT NULL DEFAULT 0,
	record_json      TEXT NOT NULL DEFAULT '{}',
	risk_score       INTEGER NOT NULL DEFAULT 100,
	state            TEXT NOT NULL DEFAULT '',
	total_votes      INTEGER NOT NULL DEFAULT 0,
	updated_at_unix  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_listings_updated ON listings(updated_at_unix);

CREATE TABLE IF NOT EXISTS reporters (
	reporter_id     TEXT PRIMARY KEY,
	weight          REAL NOT NULL DEFAULT 1.0,
	events_json     TEXT NOT NULL DEFAULT '[]',
	last_action_at  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS reporter_votes (
	reporter_id     TEXT NOT NULL,
	listing_id      TEXT NOT NULL,
	active_json     TEXT NOT NULL DEFAULT '{}',
	participated    INTEGER NOT NULL DEFAULT 0,
	updated_at_unix INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (reporter_id, listing_id)
);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// WAL allows concurrent readers but only one writer.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(schemaV1)
	return err
}
