package service

import (
	"context"
	"time"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
)

// ChangeChannel is notified with the listing id after every committed save.
const ChangeChannel = "listing_changes"

// AdStore persists listing aggregates. GetAd returns (nil, nil) for a
// listing that has never been stored.
type AdStore interface {
	GetAd(ctx context.Context, listingID string) (*model.AdRecord, error)
	SaveAd(ctx context.Context, rec *model.AdRecord) error
	ChangedSince(ctx context.Context, since time.Time, limit int) ([]*model.AdRecord, error)
	Stats(ctx context.Context) (*model.StatsResponse, error)
	Ping(ctx context.Context) error

	// WithListing runs fn in one transaction that holds the listing's lock
	// across every process sharing the store. Writes made through tx commit
	// together when fn returns nil and are discarded otherwise.
	WithListing(ctx context.Context, listingID string, fn func(tx ListingTx) error) error
}

// ListingTx reads and writes one listing and its vote ledgers inside a
// WithListing transaction. It must not be used after fn returns.
type ListingTx interface {
	GetAd(ctx context.Context, listingID string) (*model.AdRecord, error)
	SaveAd(ctx context.Context, rec *model.AdRecord) error
	GetVotes(ctx context.Context, reporterID, listingID string) (*model.VoteLedger, error)
	SaveVotes(ctx context.Context, ledger *model.VoteLedger) error
}

// ReporterStore persists per-reporter reputation and vote ledgers. Getters
// return (nil, nil) when nothing is stored yet.
type ReporterStore interface {
	GetTrust(ctx context.Context, reporterID string) (*model.TrustState, error)
	SaveTrust(ctx context.Context, state *model.TrustState) error
	GetVotes(ctx context.Context, reporterID, listingID string) (*model.VoteLedger, error)
	SaveVotes(ctx context.Context, ledger *model.VoteLedger) error
}
