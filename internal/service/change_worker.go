package service

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ChangeWorker listens for listing change notifications from other
// instances and evicts the affected cache entries in batches. A burst of
// votes on one listing costs a single eviction per window.
type ChangeWorker struct {
	pool   *pgxpool.Pool
	cache  *CacheService
	window time.Duration
	log    zerolog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

func NewChangeWorker(pool *pgxpool.Pool, cache *CacheService, window time.Duration, logger zerolog.Logger) *ChangeWorker {
	if window <= 0 {
		window = 2 * time.Second
	}
	return &ChangeWorker{
		pool:    pool,
		cache:   cache,
		window:  window,
		log:     logger,
		pending: make(map[string]struct{}),
	}
}

// Start blocks until ctx is cancelled, reconnecting after listen errors.
func (w *ChangeWorker) Start(ctx context.Context) {
	w.log.Info().Dur("window", w.window).Msg("change-worker: starting")

	for {
		err := w.listenLoop(ctx)
		if ctx.Err() != nil {
			w.log.Info().Msg("change-worker: stopping")
			return
		}
		w.log.Warn().Err(err).Msg("change-worker: listen error, reconnecting in 5s")
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			w.log.Info().Msg("change-worker: stopping")
			return
		}
	}
}

func (w *ChangeWorker) listenLoop(ctx context.Context) error {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		return err
	}

	flushCtx, flushCancel := context.WithCancel(ctx)
	defer flushCancel()
	go w.flushLoop(flushCtx)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		w.enqueue(n.Payload)
	}
}

func (w *ChangeWorker) enqueue(listingID string) {
	if listingID == "" {
		return
	}
	w.mu.Lock()
	w.pending[listingID] = struct{}{}
	w.mu.Unlock()
}

func (w *ChangeWorker) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(w.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.flush(ctx)
		case <-ctx.Done():
			w.flush(context.Background())
			return
		}
	}
}

// flush drains the pending set and returns how many entries were evicted.
func (w *ChangeWorker) flush(ctx context.Context) int {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return 0
	}
	batch := w.pending
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	evicted := 0
	for id := range batch {
		if err := w.cache.InvalidateListing(ctx, id); err != nil {
			w.log.Warn().Err(err).Str("listing", id).Msg("change-worker: invalidate failed")
			continue
		}
		evicted++
	}
	w.log.Debug().Int("evicted", evicted).Int("notifications", len(batch)).Msg("change-worker: batch complete")
	return evicted
}
