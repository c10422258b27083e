package service

import (
	"context"
	"time"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
)

// MaxSyncListings bounds one delta sync page.
const MaxSyncListings = 500

type SyncService struct {
	ads AdStore
	now func() time.Time
}

func NewSyncService(ads AdStore) *SyncService {
	return &SyncService{ads: ads, now: time.Now}
}

// DeltaSync returns the records changed since the given timestamp, oldest
// first. Clients pass the returned syncTimestamp on the next call.
func (s *SyncService) DeltaSync(ctx context.Context, since time.Time) (*model.SyncDeltaResponse, error) {
	stamp := s.now().UTC()
	listings, err := s.ads.ChangedSince(ctx, since, MaxSyncListings)
	if err != nil {
		return nil, err
	}
	if listings == nil {
		listings = []*model.AdRecord{}
	}
	return &model.SyncDeltaResponse{
		Listings:      listings,
		SyncTimestamp: stamp.Format(time.RFC3339),
	}, nil
}
