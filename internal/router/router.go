package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/handler"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/middleware"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Listing  *handler.ListingHandler
	Vote     *handler.VoteHandler
	Reporter *handler.ReporterHandler
	Sync     *handler.SyncHandler
	Health   *handler.HealthHandler
	Gatherer prometheus.Gatherer
}

// Setup configures the middleware stack and all API routes on the given Fiber
// app. The returned func stops the rate limiter cleanup loops.
func Setup(app *fiber.App, h *Handlers, corsOrigins string) (stop func()) {
	// Middleware stack (order matters)
	app.Use(recoverer.New())
	app.Use(middleware.NewRequestLogger())
	app.Use(handler.MetricsMiddleware())
	app.Use(middleware.NewCORS(corsOrigins))

	listingRL := middleware.NewListingRateLimiter()
	voteRL := middleware.NewVoteRateLimiter()
	metricsRL := middleware.NewMetricsRateLimiter()
	sessionRL := middleware.NewSessionRateLimiter()
	syncRL := middleware.NewSyncRateLimiter()
	statsRL := middleware.NewStatsRateLimiter()

	app.Get("/health/live", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)
	if h.Gatherer != nil {
		app.Get("/metrics", handler.MetricsHandler(h.Gatherer))
	}

	api := app.Group("/api")

	api.Get("/signals", handler.Catalog)

	// Listing routes. resolve is registered before the :listingId param.
	listings := api.Group("/listings")
	listings.Post("/resolve", listingRL.Handler(), h.Listing.Resolve)
	listings.Get("/:listingId", listingRL.Handler(), h.Listing.Get)
	listings.Get("/:listingId/explain", listingRL.Handler(), h.Listing.Explain)
	listings.Post("/:listingId/metrics", metricsRL.Handler(), h.Listing.ApplyMetrics)
	listings.Post("/:listingId/visits", metricsRL.Handler(), h.Listing.RecordVisit)
	listings.Get("/:listingId/votes", listingRL.Handler(), h.Vote.ActiveVotes)
	listings.Post("/:listingId/votes", voteRL.Handler(), h.Vote.Submit)

	// Reporter routes
	api.Get("/reporters/:reporterId", listingRL.Handler(), h.Reporter.Lookup)
	api.Post("/sessions/events", sessionRL.Handler(), h.Reporter.SessionEvents)

	// Stats routes
	api.Get("/stats", statsRL.Handler(), h.Reporter.GetStats)

	// Sync routes
	api.Get("/sync/delta", syncRL.Handler(), h.Sync.DeltaSync)

	return func() {
		for _, rl := range []*middleware.RateLimiter{listingRL, voteRL, metricsRL, sessionRL, syncRL, statsRL} {
			rl.Stop()
		}
	}
}
