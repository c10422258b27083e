package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
)

type ReporterService struct {
	trust     *TrustLedger
	suspicion *SuspicionMonitor
	ads       AdStore
	cache     *CacheService
	now       func() time.Time
	log       zerolog.Logger
}

func NewReporterService(trust *TrustLedger, suspicion *SuspicionMonitor, ads AdStore, cache *CacheService, logger zerolog.Logger) *ReporterService {
	return &ReporterService{
		trust:     trust,
		suspicion: suspicion,
		ads:       ads,
		cache:     cache,
		now:       time.Now,
		log:       logger,
	}
}

// Lookup returns the reporter's reputation and current session status.
func (s *ReporterService) Lookup(ctx context.Context, reporterID string) (*model.ReporterResponse, error) {
	state, err := s.trust.State(ctx, reporterID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	status := s.suspicion.Status(reporterID)

	reasons := status.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	return &model.ReporterResponse{
		ReporterID:       reporterID,
		TrustWeight:      EffectiveWeight(state, now),
		RecentEvents:     len(state.Events),
		DaysInactive:     DaysInactive(state, now),
		SuspicionLevel:   status.Level,
		BotLike:          status.BotLike,
		SuspicionReasons: reasons,
		ReportsCast:      status.ReportsCast,
		WeightMultiplier: status.Multiplier,
	}, nil
}

// Observe records page interactions for the reporter's session.
func (s *ReporterService) Observe(reporterID string, events []SessionEvent) {
	for _, ev := range events {
		s.suspicion.Observe(reporterID, ev)
	}
}

// GetStats returns aggregate platform statistics.
func (s *ReporterService) GetStats(ctx context.Context) (*model.StatsResponse, error) {
	if stats, err := s.cache.GetStats(ctx); err == nil && stats != nil {
		return stats, nil
	}
	stats, err := s.ads.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetStats(ctx, stats); err != nil {
		s.log.Warn().Err(err).Msg("cache stats write failed")
	}
	return stats, nil
}
