package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq" // PostgreSQL driver

	"fluxflag/internal/adminapi"
	"fluxflag/internal/audit"
	"fluxflag/internal/config"
	"fluxflag/internal/constants"
	"fluxflag/internal/engine"
	"fluxflag/internal/logger"
	"fluxflag/internal/persistence"
	"fluxflag/internal/telemetry"
	"fluxflag/pkg/bootstrap"
	"fluxflag/pkg/health"
	"fluxflag/pkg/middleware"
	"fluxflag/pkg/ratelimit"
	"fluxflag/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const migrationsPath = "migrations/postgres"

// App wires the rule-evaluation engine to a Redis/Postgres backing
// store and exposes it over the admin HTTP surface, following the
// usual Initialize/initRouter/initServer/Run/Shutdown shape.
type App struct {
	config         *config.Config
	logger         logger.Logger
	dbConnector    *bootstrap.DatabaseConnector
	redisClient    *redis.Client
	postgresDB     *sql.DB
	engine         *engine.Engine
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initStores(ctx); err != nil {
		return fmt.Errorf("failed to initialize stores: %w", err)
	}

	if err := a.initEngine(ctx); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	if err := a.initRouter(); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	if err := a.initServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	tp, err := tracing.Init(a.config.Tracing, "fluxflagd")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	return nil
}

func (a *App) initStores(ctx context.Context) error {
	if a.config.Persistence.Backend == "redis" {
		rdb, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.redisClient = rdb
	}

	if a.config.Persistence.Audit.Enabled {
		db, err := a.dbConnector.InitPostgreSQL(ctx)
		if err != nil {
			return err
		}
		a.postgresDB = db

		if a.config.Persistence.Audit.RunMigrations && db != nil {
			if err := audit.RunMigrations(db, migrationsPath); err != nil {
				return fmt.Errorf("failed to run audit migrations: %w", err)
			}
			a.logger.InfowCtx(ctx, "audit migrations applied")
		}
	}

	return nil
}

func (a *App) initEngine(ctx context.Context) error {
	var kv persistence.KVStore
	if a.redisClient != nil {
		ttl := time.Duration(a.config.Persistence.Redis.TTLSeconds) * time.Second
		kv = persistence.NewRedisStore(a.redisClient, ttl)
	} else {
		kv = persistence.NewMemoryStore()
	}

	var recorder audit.Recorder = audit.NopRecorder{}
	if a.postgresDB != nil {
		recorder = audit.NewPostgresRecorder(a.postgresDB)
	}

	var reporter telemetry.Reporter = telemetry.NoopReporter{}
	if a.config.Telemetry.Enabled {
		reporter = telemetry.NewKafkaReporter(a.config.Telemetry.Kafka.Brokers, a.config.Telemetry.Kafka.Topic, kv, a.logger)
	}

	eng := engine.New(kv, reporter, recorder, a.logger)

	if a.config.Lifecycle.LocalMode {
		if err := eng.InitializeLocal(ctx, "", a.config.Lifecycle.LocalRulesPath); err != nil {
			return fmt.Errorf("failed to install local rule document: %w", err)
		}
		a.engine = eng
		return nil
	}

	cfg := engine.Config{
		CompanyID:       "default",
		TenantID:        "default",
		Environment:     "production",
		APIKey:          a.config.Lifecycle.APIKey,
		BaseURL:         a.config.Lifecycle.BaseURL,
		AutoRefresh:     true,
		PollInterval:    a.config.Lifecycle.PollInterval,
		SessionTimeout:  a.config.Lifecycle.FetchTimeout,
		MaxEvents:       a.config.Retention.MaxEvents,
		MaxEventAgeDays: a.config.Retention.MaxAgeDays,
	}
	if err := eng.Initialize(ctx, cfg); err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}

	a.engine = eng
	return nil
}

func (a *App) initRouter() error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.LoggerMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.config.AdminRateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.config.AdminRateLimit.RPS,
			Burst:           a.config.AdminRateLimit.Burst,
			CleanupInterval: time.Duration(a.config.AdminRateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.config.AdminRateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.logger.InfowCtx(context.Background(), "rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	adminHandler := adminapi.NewHandler(a.engine, a.logger)
	adminHandler.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	if a.redisClient != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redisClient))
	}
	if a.postgresDB != nil {
		healthRegistry.Register(health.NewPostgreSQLChecker(a.postgresDB))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) initServer() error {
	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds,
	}
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.logger.InfowCtx(ctx, "server listening", "port", a.config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	a.logger.InfowCtx(ctx, "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	var errs []error

	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
		}
	}

	if a.engine != nil {
		errs = append(errs, a.engine.Shutdown(shutdownCtx)...)
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
		}
	}

	errs = append(errs, a.dbConnector.ShutdownDatabases(a.redisClient, a.postgresDB)...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	a.logger.InfowCtx(ctx, "server exited successfully")
	return nil
}
