package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/pkg/hash"
)

// listingCache is the part of CacheService listing reads and writes use.
type listingCache interface {
	GetListing(ctx context.Context, listingID string) (*model.AdRecord, error)
	SetListing(ctx context.Context, rec *model.AdRecord) error
	InvalidateListing(ctx context.Context, listingID string) error
}

// ListingService serves listing reads and merges externally supplied
// metrics. Writes share the vote pipeline's per-listing lock and store
// transaction.
type ListingService struct {
	ads       AdStore
	cache     listingCache
	engine    *ScoreEngine
	suspicion *SuspicionMonitor
	listings  *KeyedMutex
	now       func() time.Time
	log       zerolog.Logger
}

func NewListingService(ads AdStore, cache *CacheService, engine *ScoreEngine, suspicion *SuspicionMonitor, listings *KeyedMutex, logger zerolog.Logger) *ListingService {
	if listings == nil {
		listings = NewKeyedMutex()
	}
	return &ListingService{
		ads:       ads,
		cache:     cache,
		engine:    engine,
		suspicion: suspicion,
		listings:  listings,
		now:       time.Now,
		log:       logger,
	}
}

// Resolve returns the content-derived id of a listing.
func (s *ListingService) Resolve(title, price string) string {
	return hash.ListingID(title, price)
}

// Get returns the listing record, or a zeroed, scored default when the
// listing has never been seen. The default is not stored.
func (s *ListingService) Get(ctx context.Context, listingID string) (*model.AdRecord, error) {
	if rec, err := s.cache.GetListing(ctx, listingID); err != nil {
		s.log.Warn().Err(err).Str("listing", listingID).Msg("cache read failed")
	} else if rec != nil {
		return rec, nil
	}

	rec, err := s.ads.GetAd(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("load listing: %w", err)
	}
	if rec == nil {
		rec = model.NewAdRecord(listingID, s.now())
		s.engine.Apply(rec)
		return rec, nil
	}
	rec.EnsureMaps()

	if err := s.cache.SetListing(ctx, rec); err != nil {
		s.log.Warn().Err(err).Str("listing", listingID).Msg("cache write failed")
	}
	return rec, nil
}

// Explain returns the display projection of a listing.
func (s *ListingService) Explain(ctx context.Context, listingID string) (*model.ScoreExplanation, error) {
	rec, err := s.Get(ctx, listingID)
	if err != nil {
		return nil, err
	}
	exp := s.engine.Explain(rec)
	return &exp, nil
}

// ApplyMetrics deep-merges externally supplied counters into the record and
// rescores it. No admission or conflict checks apply.
func (s *ListingService) ApplyMetrics(ctx context.Context, listingID string, update model.MetricsUpdate) (*model.AdRecord, error) {
	return s.mutate(ctx, listingID, func(rec *model.AdRecord) {
		rec.Merge(update)
	})
}

// RecordVisit folds one finished page visit into the behavior aggregate.
// Contact opens and scroll completions that do not look human are dropped
// from the visit before folding.
func (s *ListingService) RecordVisit(ctx context.Context, reporterID, listingID string, visit model.Visit) (*model.AdRecord, error) {
	if s.suspicion != nil && reporterID != "" {
		if visit.CompletedScroll && !s.suspicion.ValidateQualityAction(reporterID, ActionScrollComplete) {
			visit.CompletedScroll = false
		}
		if visit.OpenedContact && !s.suspicion.ValidateQualityAction(reporterID, ActionContactOpen) {
			visit.OpenedContact = false
		}
	}
	return s.mutate(ctx, listingID, func(rec *model.AdRecord) {
		rec.BehaviorSignals.FoldVisit(visit)
	})
}

// mutate applies fn to the stored record inside a listing transaction. The
// cache entry is dropped only after the commit, so a concurrent read cannot
// repopulate it with the previous row.
func (s *ListingService) mutate(ctx context.Context, listingID string, fn func(*model.AdRecord)) (*model.AdRecord, error) {
	unlock := s.listings.Lock(listingID)
	defer unlock()

	var computed *model.AdRecord
	err := s.ads.WithListing(ctx, listingID, func(tx ListingTx) error {
		rec, err := tx.GetAd(ctx, listingID)
		if err != nil {
			return fmt.Errorf("load listing: %w", err)
		}
		now := s.now()
		if rec == nil {
			rec = model.NewAdRecord(listingID, now)
		}
		rec.EnsureMaps()

		fn(rec)
		rec.LastSeen = now
		s.engine.Apply(rec)
		computed = rec

		if err := tx.SaveAd(ctx, rec); err != nil {
			return &PersistenceError{Op: "listing", Err: err}
		}
		return nil
	})
	if err != nil {
		if computed == nil {
			return nil, err
		}
		var perr *PersistenceError
		if !errors.As(err, &perr) {
			perr = &PersistenceError{Op: "commit", Err: err}
		}
		return computed, perr
	}

	if err := s.cache.InvalidateListing(ctx, listingID); err != nil {
		s.log.Warn().Err(err).Str("listing", listingID).Msg("cache invalidate failed")
	}
	return computed, nil
}
