package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/signal"
)

// VoteService runs the vote pipeline: admission, conflict check, weighting,
// aggregation, rescoring and persistence, serialized per listing.
type VoteService struct {
	ads        AdStore
	reporters  ReporterStore
	cache      *CacheService
	gate       *VoteGate
	suspicion  *SuspicionMonitor
	trust      *TrustLedger
	aggregator *SignalAggregator
	engine     *ScoreEngine
	listings   *KeyedMutex
	reporterMu *KeyedMutex
	now        func() time.Time
	log        zerolog.Logger
}

// VoteDeps groups the collaborators of the vote pipeline.
type VoteDeps struct {
	Ads       AdStore
	Reporters ReporterStore
	Cache     *CacheService
	Gate      *VoteGate
	Suspicion *SuspicionMonitor
	Trust     *TrustLedger
	Engine    *ScoreEngine
	Listings  *KeyedMutex
}

func NewVoteService(d VoteDeps, logger zerolog.Logger) *VoteService {
	listings := d.Listings
	if listings == nil {
		listings = NewKeyedMutex()
	}
	return &VoteService{
		ads:        d.Ads,
		reporters:  d.Reporters,
		cache:      d.Cache,
		gate:       d.Gate,
		suspicion:  d.Suspicion,
		trust:      d.Trust,
		aggregator: NewSignalAggregator(),
		engine:     d.Engine,
		listings:   listings,
		reporterMu: NewKeyedMutex(),
		now:        time.Now,
		log:        logger,
	}
}

// Submit casts (delta +1) or retracts (delta -1) a signal for reporterID.
// Denials come back as a VoteResult with Allowed false. The listing and the
// reporter's ledger for it are stored in one transaction; when that fails
// after the record was computed, the unsaved result is returned together
// with a *PersistenceError and no session or trust state is touched.
func (s *VoteService) Submit(ctx context.Context, reporterID string, req model.VoteRequest) (*model.VoteResult, error) {
	sig := signal.Normalize(req.SignalType)
	if !signal.Known(sig) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSignal, req.SignalType)
	}
	if req.Delta != 1 && req.Delta != -1 {
		return nil, ErrInvalidDelta
	}
	listingID := req.ListingID
	key := string(sig)

	unlockListing := s.listings.Lock(listingID)
	defer unlockListing()
	unlockReporter := s.reporterMu.Lock(reporterID)
	defer unlockReporter()

	// Reporter-scoped reads stay outside the listing transaction.
	multiplier, trust := 1.0, 1.0
	if req.Delta > 0 && !signal.IsReaction(sig) {
		multiplier = s.suspicion.WeightMultiplier(reporterID)
		w, err := s.trust.Weight(ctx, reporterID)
		if err != nil {
			return nil, err
		}
		trust = w
	}

	var (
		settled  *model.VoteResult // no-op or denial, nothing written
		penalty  ActionKind
		computed *model.AdRecord
		now      = s.now()
	)
	err := s.ads.WithListing(ctx, listingID, func(tx ListingTx) error {
		ledger, err := loadLedger(ctx, tx, reporterID, listingID)
		if err != nil {
			return err
		}
		rec, err := s.loadRecord(ctx, tx, listingID)
		if err != nil {
			return err
		}

		prev, active := ledger.Active[key]
		if (req.Delta > 0 && active) || (req.Delta < 0 && !active) {
			s.engine.Apply(rec)
			settled = &model.VoteResult{Allowed: true, Persisted: true, Record: rec}
			return nil
		}

		if d := s.gate.CanVote(reporterID, listingID, sig, req.Delta, countWeighted(ledger)); d != nil {
			if d.Code == model.DenyRate {
				penalty = ActionSpamAttempt
			}
			s.log.Debug().Str("listing", listingID).Str("signal", key).Str("code", d.Code).Msg("vote denied")
			settled = deniedResult(d)
			return nil
		}

		if req.Delta > 0 {
			if with, ok := signal.CheckConflict(activeSignals(ledger), sig); ok {
				penalty = ActionContradiction
				s.log.Debug().Str("listing", listingID).Str("signal", key).Str("with", string(with)).Msg("vote conflicts")
				settled = deniedResult(&Denial{
					Code:         model.DenyConflict,
					Reason:       fmt.Sprintf("Contradictory vote: %s is already active. Remove it first.", displayName(string(with))),
					ConflictWith: string(with),
				})
				return nil
			}
			s.cast(rec, ledger, sig, req.Context, multiplier, trust, now)
		} else {
			s.aggregator.ApplyVote(rec, Vote{Signal: sig, Delta: -1, Weighted: -prev.Weighted, Context: prev.Context})
			delete(ledger.Active, key)
		}

		rec.LastSeen = now
		s.engine.Apply(rec)
		ledger.UpdatedAt = now
		computed = rec.Clone()

		if err := tx.SaveAd(ctx, rec); err != nil {
			return &PersistenceError{Op: "listing", Err: err}
		}
		if err := tx.SaveVotes(ctx, ledger); err != nil {
			return &PersistenceError{Op: "votes", Err: err}
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
		s.log.Error().Err(perr).Str("listing", listingID).Msg("vote computed but not persisted")
		return &model.VoteResult{Allowed: true, Changed: true, Record: computed}, perr
	}

	if settled != nil {
		if penalty != "" {
			s.recordTrust(ctx, reporterID, penalty)
		}
		return settled, nil
	}

	// Committed. Everything below is best effort and never fails the vote.
	s.gate.Commit(reporterID, listingID, sig, req.Delta)
	if !signal.IsReaction(sig) {
		action := ActionConsistency
		var reason string
		if req.Delta > 0 {
			reason = s.suspicion.ObserveCast(reporterID)
		} else {
			reason = s.suspicion.ObserveRetract(reporterID, key)
			action = ActionCorrection
		}
		if reason != "" {
			s.recordTrust(ctx, reporterID, ActionSpamAttempt)
		}
		s.recordTrust(ctx, reporterID, action)
	}
	if err := s.cache.InvalidateListing(ctx, listingID); err != nil {
		s.log.Warn().Err(err).Str("listing", listingID).Msg("cache invalidate failed")
	}

	return &model.VoteResult{
		Allowed:   true,
		Changed:   true,
		Persisted: true,
		Record:    computed,
	}, nil
}

// cast applies a new vote. A reaction first retracts the opposite reaction
// and is never scaled by trust or suspicion.
func (s *VoteService) cast(rec *model.AdRecord, ledger *model.VoteLedger, sig signal.Type, voteContext string, multiplier, trust float64, now time.Time) {
	if opp, ok := signal.Opposite(sig); ok {
		if prev, on := ledger.Active[string(opp)]; on {
			s.aggregator.ApplyVote(rec, Vote{Signal: opp, Delta: -1, Weighted: -prev.Weighted})
			delete(ledger.Active, string(opp))
		}
	}

	weighted := s.aggregator.WeightedDelta(sig, 1, multiplier, trust)
	s.aggregator.ApplyVote(rec, Vote{Signal: sig, Delta: 1, Weighted: weighted, Context: voteContext})
	ledger.Active[string(sig)] = model.ActiveVote{Weighted: weighted, Context: voteContext, CastAt: now}

	if !signal.IsReaction(sig) && !ledger.Participated {
		rec.CommunitySignals.UsersCount++
		ledger.Participated = true
	}
}

// ActiveVotes returns the signals reporterID currently has active on a listing.
func (s *VoteService) ActiveVotes(ctx context.Context, reporterID, listingID string) ([]string, error) {
	ledger, err := loadLedger(ctx, s.reporters, reporterID, listingID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ledger.Active))
	for k := range ledger.Active {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

type ledgerReader interface {
	GetVotes(ctx context.Context, reporterID, listingID string) (*model.VoteLedger, error)
}

func loadLedger(ctx context.Context, r ledgerReader, reporterID, listingID string) (*model.VoteLedger, error) {
	ledger, err := r.GetVotes(ctx, reporterID, listingID)
	if err != nil {
		return nil, fmt.Errorf("load votes: %w", err)
	}
	if ledger == nil {
		return model.NewVoteLedger(reporterID, listingID), nil
	}
	if ledger.Active == nil {
		ledger.Active = make(map[string]model.ActiveVote)
	}
	return ledger, nil
}

func (s *VoteService) loadRecord(ctx context.Context, tx ListingTx, listingID string) (*model.AdRecord, error) {
	rec, err := tx.GetAd(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("load listing: %w", err)
	}
	if rec == nil {
		return model.NewAdRecord(listingID, s.now()), nil
	}
	rec.EnsureMaps()
	return rec, nil
}

func (s *VoteService) recordTrust(ctx context.Context, reporterID string, kind ActionKind) {
	if _, err := s.trust.RecordAction(ctx, reporterID, kind); err != nil {
		s.log.Warn().Err(err).Str("action", string(kind)).Msg("trust action not recorded")
	}
}

func countWeighted(ledger *model.VoteLedger) int {
	n := 0
	for k := range ledger.Active {
		if !signal.IsReaction(signal.Type(k)) {
			n++
		}
	}
	return n
}

func activeSignals(ledger *model.VoteLedger) []signal.Type {
	out := make([]signal.Type, 0, len(ledger.Active))
	for k := range ledger.Active {
		out = append(out, signal.Type(k))
	}
	return out
}

func deniedResult(d *Denial) *model.VoteResult {
	return &model.VoteResult{
		Allowed:          false,
		Code:             d.Code,
		Reason:           d.Reason,
		RemainingSeconds: d.RemainingSeconds,
		ConflictWith:     d.ConflictWith,
	}
}
