package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/salesboard/backend/internal/application/dashboard"
	rollupapp "github.com/salesboard/backend/internal/application/rollup"
	"github.com/salesboard/backend/internal/infrastructure/auth"
	"github.com/salesboard/backend/internal/infrastructure/cache"
	"github.com/salesboard/backend/internal/infrastructure/config"
	"github.com/salesboard/backend/internal/infrastructure/logger"
	"github.com/salesboard/backend/internal/infrastructure/persistence"
	"github.com/salesboard/backend/internal/infrastructure/scheduler"
	"github.com/salesboard/backend/internal/infrastructure/telemetry"
	"github.com/salesboard/backend/internal/infrastructure/vendorapi"
	"github.com/salesboard/backend/internal/interfaces/http/handler"
	"github.com/salesboard/backend/internal/interfaces/http/middleware"
	"github.com/salesboard/backend/internal/interfaces/http/router"
)

//	@title			Salesboard Backend API
//	@version		1.0
//	@description	Daily sales rollup engine and dashboard API

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting Salesboard Backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Tracing (no-op unless enabled)
	tracerProvider, err := telemetry.NewTracerProvider(context.Background(), telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	// Database with zap-backed GORM logging
	gormLogLevel := logger.MapGormLogLevel(cfg.Log.Level)
	gormLog := logger.NewGormLogger(log, gormLogLevel)
	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Aggregate cache: Redis when reachable, in-memory otherwise
	cacheFactory := cache.NewAggregateCacheFactory(cfg.Redis, cache.WithLogger(log))
	aggregateCache, err := cacheFactory.CreateCache()
	if err != nil {
		log.Fatal("Failed to create aggregate cache", zap.Error(err))
	}

	// Vendor API client
	vendorClient, err := vendorapi.NewClient(cfg.Vendor, log)
	if err != nil {
		log.Fatal("Failed to create vendor API client", zap.Error(err))
	}

	// Rollup engine
	bucketRepo := persistence.NewGormBucketRepository(db.DB)
	timezone := cfg.Rollup.Location()

	builder := rollupapp.NewBucketBuilder(vendorClient, bucketRepo, rollupapp.BuilderConfig{
		Timezone:            timezone,
		LineItemConcurrency: cfg.Rollup.LineItemConcurrency,
		BuildTimeout:        cfg.Rollup.BuildTimeout,
	}, log)

	backfill := rollupapp.NewBackfillService(bucketRepo, builder, rollupapp.BackfillConfig{
		Concurrency: cfg.Rollup.BackfillConcurrency,
	}, log).WithAggregateCache(aggregateCache)

	assembler := dashboard.NewAssembler(backfill, bucketRepo, vendorClient, aggregateCache, dashboard.Config{
		Timezone: timezone,
		CacheTTL: cfg.Rollup.CacheTTL,
	}, log)

	// Nightly sweep scheduler
	var rollupScheduler *scheduler.RollupCronScheduler
	if cfg.Scheduler.Enabled {
		schedCfg := scheduler.DefaultRollupCronSchedulerConfig()
		schedCfg.DailyCronSchedule = cfg.Scheduler.DailyCronSchedule
		schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
		schedCfg.GapSweepDays = cfg.Rollup.GapSweepDays
		schedCfg.Timezone = timezone

		rollupScheduler = scheduler.NewRollupCronScheduler(schedCfg, backfill, log)
		if err := rollupScheduler.Start(context.Background()); err != nil {
			log.Fatal("Failed to start rollup scheduler", zap.Error(err))
		}
		defer func() {
			if err := rollupScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping rollup scheduler", zap.Error(err))
			}
		}()
		log.Info("Rollup scheduler started",
			zap.String("schedule", cfg.Scheduler.DailyCronSchedule),
			zap.Int("gap_sweep_days", cfg.Rollup.GapSweepDays),
		)
	}

	jwtService := auth.NewJWTService(cfg.JWT)

	// HTTP handlers
	dashboardHandler := handler.NewDashboardHandler(assembler)
	var sweeper handler.Sweeper
	if rollupScheduler != nil {
		sweeper = rollupScheduler
	}
	rollupHandler := handler.NewRollupHandler(assembler, backfill, sweeper)
	var statusReporter handler.StatusReporter
	if rollupScheduler != nil {
		statusReporter = rollupScheduler
	}
	systemHandler := handler.NewSystemHandler(db, statusReporter)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	engine.Use(middleware.CORSWithConfig(corsConfig))

	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Health check endpoint (outside API versioning)
	engine.GET("/health", systemHandler.Health)

	r := router.NewRouter(engine, router.WithAPIVersion("v1"))

	jwtConfig := middleware.JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/api/v1/health",
			"/api/v1/system/info",
		},
		Logger: log,
	}
	r.Use(middleware.JWTAuthMiddlewareWithConfig(jwtConfig))

	r.Register(dashboardHandler).
		Register(rollupHandler).
		Register(systemHandler)

	r.Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
