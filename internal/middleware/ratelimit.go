package middleware

import (
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
)

// ReporterHeader carries the hashed reporter id on every write request.
const ReporterHeader = "X-Reporter-ID"

// RateLimitConfig defines the limit for a specific route or group.
type RateLimitConfig struct {
	Max    int                      // Maximum requests allowed in the window
	Window time.Duration            // Time window for the limit
	KeyFn  func(c fiber.Ctx) string // Returns the key to rate limit on (IP, reporter id)
}

// entry tracks request count and window end for a single key.
type entry struct {
	count     int
	windowEnd time.Time
}

// RateLimiter is an in-memory fixed-window rate limiter for HTTP routes.
// It protects the transport; per-vote admission lives in service.VoteGate.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	config  RateLimitConfig
	now     func() time.Time
	stopCh  chan struct{}
	once    sync.Once
}

// NewRateLimiter creates a rate limiter and starts its cleanup loop.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		entries: make(map[string]*entry),
		config:  cfg,
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}
	go rl.cleanup(5 * time.Minute)
	return rl
}

// Stop ends the cleanup loop.
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stopCh) })
}

// hit counts one request for key and returns the remaining budget, which is
// negative once the limit is exceeded.
func (rl *RateLimiter) hit(key string) (remaining int, windowEnd time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, exists := rl.entries[key]
	if !exists || now.After(e.windowEnd) {
		e = &entry{windowEnd: now.Add(rl.config.Window)}
		rl.entries[key] = e
	}
	e.count++
	return rl.config.Max - e.count, e.windowEnd
}

// Handler returns a Fiber middleware handler that enforces the rate limit.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		remaining, windowEnd := rl.hit(rl.config.KeyFn(c))
		setRateLimitHeaders(c, rl.config.Max, remaining, windowEnd)

		if remaining < 0 {
			retryAfter := int(windowEnd.Sub(rl.now()).Seconds()) + 1
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fiber.Map{
					"code":       "RATE_LIMITED",
					"message":    fmt.Sprintf("Too many requests. Try again in %d seconds.", retryAfter),
					"retryAfter": retryAfter,
				},
			})
		}
		return c.Next()
	}
}

// Allow checks if a request with the given key is allowed.
func (rl *RateLimiter) Allow(key string) bool {
	remaining, _ := rl.hit(key)
	return remaining >= 0
}

func setRateLimitHeaders(c fiber.Ctx, limit, remaining int, resetAt time.Time) {
	c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
	c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", max(remaining, 0)))
	c.Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetAt.Unix()))
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.sweep()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *RateLimiter) sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	removed := 0
	for key, e := range rl.entries {
		if now.After(e.windowEnd) {
			delete(rl.entries, key)
			removed++
		}
	}
	return removed
}

// KeyByIP returns the client IP as the rate limit key.
func KeyByIP(c fiber.Ctx) string {
	return "ip:" + c.IP()
}

// KeyByReporterID keys on the X-Reporter-ID header, falling back to the IP.
func KeyByReporterID(c fiber.Ctx) string {
	if rid := c.Get(ReporterHeader); rid != "" {
		return "reporter:" + rid
	}
	return "ip:" + c.IP()
}

// --- Pre-configured rate limiters ---

// NewListingRateLimiter: 120 req/min per IP
func NewListingRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{Max: 120, Window: time.Minute, KeyFn: KeyByIP})
}

// NewVoteRateLimiter: 30 req/min per reporter
func NewVoteRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{Max: 30, Window: time.Minute, KeyFn: KeyByReporterID})
}

// NewMetricsRateLimiter: 60 req/min per IP
func NewMetricsRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{Max: 60, Window: time.Minute, KeyFn: KeyByIP})
}

// NewSessionRateLimiter: 120 req/min per reporter
func NewSessionRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{Max: 120, Window: time.Minute, KeyFn: KeyByReporterID})
}

// NewSyncRateLimiter: 2 req/min per reporter
func NewSyncRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{Max: 2, Window: time.Minute, KeyFn: KeyByReporterID})
}

// NewStatsRateLimiter: 10 req/min per IP
func NewStatsRateLimiter() *RateLimiter {
	return NewRateLimiter(RateLimitConfig{Max: 10, Window: time.Minute, KeyFn: KeyByIP})
}
