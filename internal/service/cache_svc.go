package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/model"
)

// Redis key TTLs.
const (
	ListingCacheTTL = 5 * time.Minute
	StatsCacheTTL   = time.Minute
)

// CacheService provides a Redis cache-aside layer for listing lookups.
type CacheService struct {
	rdb    *redis.Client
	log    zerolog.Logger
	hits   prometheus.Counter
	misses prometheus.Counter
}

// NewCacheService creates a new CacheService. If redisURL is empty or connection
// fails, it returns a CacheService with a nil client (cache operations become no-ops).
func NewCacheService(redisURL string, logger zerolog.Logger) *CacheService {
	if redisURL == "" {
		logger.Info().Msg("redis: no URL configured, caching disabled")
		return &CacheService{log: logger}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis: invalid URL, caching disabled")
		return &CacheService{log: logger}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis: connection failed, caching disabled")
		return &CacheService{log: logger}
	}

	logger.Info().Msg("redis: connected, caching enabled")
	return &CacheService{rdb: rdb, log: logger}
}

// NewCacheServiceWithClient wraps an existing client. A nil client disables caching.
func NewCacheServiceWithClient(rdb *redis.Client, logger zerolog.Logger) *CacheService {
	return &CacheService{rdb: rdb, log: logger}
}

// SetCounters attaches hit and miss counters for listing lookups.
func (c *CacheService) SetCounters(hits, misses prometheus.Counter) {
	c.hits = hits
	c.misses = misses
}

func (c *CacheService) count(counter prometheus.Counter) {
	if counter != nil {
		counter.Inc()
	}
}

// Client returns the underlying Redis client (for health checks). May be nil.
func (c *CacheService) Client() *redis.Client {
	return c.rdb
}

// Enabled reports whether a Redis client is configured.
func (c *CacheService) Enabled() bool {
	return c != nil && c.rdb != nil
}

// GetListing returns a cached record, or nil if not cached or cache is disabled.
func (c *CacheService) GetListing(ctx context.Context, listingID string) (*model.AdRecord, error) {
	if !c.Enabled() {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, listingKey(listingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.count(c.misses)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.count(c.hits)
	var rec model.AdRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode cached listing: %w", err)
	}
	rec.EnsureMaps()
	return &rec, nil
}

// SetListing stores a record in cache.
func (c *CacheService) SetListing(ctx context.Context, rec *model.AdRecord) error {
	if !c.Enabled() || rec == nil {
		return nil
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, listingKey(rec.ListingID), b, ListingCacheTTL).Err()
}

// InvalidateListing removes a record from cache (called after any change).
func (c *CacheService) InvalidateListing(ctx context.Context, listingID string) error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Del(ctx, listingKey(listingID)).Err()
}

// GetStats returns cached platform statistics, or nil.
func (c *CacheService) GetStats(ctx context.Context) (*model.StatsResponse, error) {
	if !c.Enabled() {
		return nil, nil
	}
	data, err := c.rdb.Get(ctx, statsKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stats model.StatsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SetStats stores platform statistics in cache.
func (c *CacheService) SetStats(ctx context.Context, stats *model.StatsResponse) error {
	if !c.Enabled() || stats == nil {
		return nil
	}
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statsKey, b, StatsCacheTTL).Err()
}

// Close shuts down the Redis connection.
func (c *CacheService) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.rdb.Close()
}

const statsKey = "stats:global"

func listingKey(listingID string) string {
	return fmt.Sprintf("listing:%s", listingID)
}
