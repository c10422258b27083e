package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/config"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/db"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/handler"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/localstore"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/middleware"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/repository"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/router"
	"github.com/NEWTOWN-BORGES/SCM-HUNTERS/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		middleware.InitLogger("info", "scm-hunters")
		middleware.Logger.Fatal().Err(err).Msg("invalid configuration")
	}

	middleware.InitLogger(cfg.LogLevel, "scm-hunters")
	middleware.SetIPSalt(cfg.IPHashSalt)
	log := middleware.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		ads       service.AdStore
		reporters service.ReporterStore
		pool      *pgxpool.Pool
	)

	switch cfg.StoreDriver {
	case config.DriverSQLite:
		store, err := localstore.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("failed to open sqlite store")
		}
		defer store.Close()
		ads, reporters = store, store
	default:
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, middleware.Component("db"))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		ads = repository.NewListingRepo(pool)
		reporters = repository.NewReporterRepo(pool)
	}

	handler.InitMetrics(prometheus.DefaultRegisterer, pool)

	cache := service.NewCacheService(cfg.RedisURL, middleware.Component("cache"))
	cache.SetCounters(handler.Metrics.CacheHits, handler.Metrics.CacheMisses)
	defer cache.Close()

	// Listing writes from votes and metrics share one lock table.
	listings := service.NewKeyedMutex()
	suspicion := service.NewSuspicionMonitor(middleware.Component("suspicion"))
	gate := service.NewVoteGate(suspicion)
	trust := service.NewTrustLedger(reporters, middleware.Component("trust"))
	engine := service.NewScoreEngine(middleware.Component("score"))

	voteSvc := service.NewVoteService(service.VoteDeps{
		Ads:       ads,
		Reporters: reporters,
		Cache:     cache,
		Gate:      gate,
		Suspicion: suspicion,
		Trust:     trust,
		Engine:    engine,
		Listings:  listings,
	}, middleware.Component("votes"))
	listingSvc := service.NewListingService(ads, cache, engine, suspicion, listings, middleware.Component("listings"))
	reporterSvc := service.NewReporterService(trust, suspicion, ads, cache, middleware.Component("reporters"))
	syncSvc := service.NewSyncService(ads)

	maintenance := service.NewMaintenanceWorker(gate, suspicion, cfg.MaintenanceInterval, middleware.Component("maintenance"))
	go maintenance.Start(ctx)

	if pool != nil && cache.Enabled() {
		changes := service.NewChangeWorker(pool, cache, cfg.ChangeBatchWindow, middleware.Component("changes"))
		go changes.Start(ctx)
	}

	app := fiber.New(fiber.Config{
		AppName:      "SCM Hunters API",
		ServerHeader: "SCM-Hunters",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	})

	stopLimiters := router.Setup(app, &router.Handlers{
		Listing:  handler.NewListingHandler(listingSvc),
		Vote:     handler.NewVoteHandler(voteSvc),
		Reporter: handler.NewReporterHandler(reporterSvc),
		Sync:     handler.NewSyncHandler(syncSvc),
		Health:   handler.NewHealthHandler(ads, cache.Client(), cfg.StoreDriver),
		Gatherer: prometheus.DefaultGatherer,
	}, cfg.CORSOrigins)
	defer stopLimiters()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down")
		maintenance.Stop()
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Str("store", cfg.StoreDriver).Msg("server starting")
	if err := app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true}); err != nil {
		log.Error().Err(err).Msg("server stopped")
	}
}
