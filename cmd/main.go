package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/duynhne/travel-portal/config"
	database "github.com/duynhne/travel-portal/internal/core"
	"github.com/duynhne/travel-portal/internal/core/cache"
	"github.com/duynhne/travel-portal/internal/core/domain"
	"github.com/duynhne/travel-portal/internal/core/identity"
	"github.com/duynhne/travel-portal/internal/core/repository"
	"github.com/duynhne/travel-portal/internal/logger"
	logicv1 "github.com/duynhne/travel-portal/internal/logic/v1"
	"github.com/duynhne/travel-portal/internal/web/health"
	v1 "github.com/duynhne/travel-portal/internal/web/v1"
	"github.com/duynhne/travel-portal/middleware"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Configuration load failed: " + err.Error())
	}
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	// Initialize Zerolog with LOG_LEVEL from config
	logger.Setup(cfg.Logging.Level)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Str("port", cfg.Service.Port).
		Str("identity_backend", cfg.Identity.Backend).
		Msg("Service starting")

	// Initialize OpenTelemetry tracing
	var tp interface{ Shutdown(context.Context) error }
	if cfg.Tracing.Enabled {
		provider, err := middleware.InitTracing(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			tp = provider
			log.Info().
				Str("endpoint", cfg.Tracing.Endpoint).
				Float64("sample_rate", cfg.Tracing.SampleRate).
				Msg("Tracing initialized")
		}
	} else {
		log.Info().Msg("Tracing disabled (TRACING_ENABLED=false)")
	}

	// Initialize Pyroscope profiling
	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize profiling")
		} else {
			log.Info().
				Str("endpoint", cfg.Profiling.Endpoint).
				Msg("Profiling initialized")
			defer middleware.StopProfiling()
		}
	} else {
		log.Info().Msg("Profiling disabled (PROFILING_ENABLED=false)")
	}

	// Initialize database connection pool (pgx)
	pool, err := database.Connect(context.Background(), cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()
	log.Info().Msg("Database connection pool established")

	// Redis holds the session cache record and content listings
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		// The session manager treats cache failures as misses.
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, continuing without cache")
	} else {
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis client connected")
	}

	var backend domain.IdentityBackend
	switch cfg.Identity.Backend {
	case config.IdentityBackendLocal:
		backend = logicv1.NewLocalIdentity(
			repository.NewUserRepository(pool),
			repository.NewSessionRepository(pool),
		)
	default:
		backend = identity.New(cfg.Identity.Endpoint, cfg.Identity.ProjectID, cfg.GetIdentityTimeoutDuration())
	}

	sessions := logicv1.NewSessionManager(
		backend,
		cache.NewSessionCache(rdb, cfg.Redis.KeyPrefix, logicv1.CacheDuration),
		cfg.Session.AccountUserID,
	)
	content := logicv1.NewContentService(
		repository.NewContentRepository(pool),
		cache.NewContentCache(rdb, cfg.Redis.KeyPrefix, cfg.GetContentCacheTTLDuration()),
	)

	// Resolve the session once so the first page load is served from state.
	// The identity client's own timeout (IDENTITY_TIMEOUT) bounds the call.
	sessions.CheckAuth(context.Background(), false)
	state := sessions.State()
	log.Info().
		Bool("authenticated", state.IsAuthenticated).
		Msg("Initial session check complete")

	r := gin.New()
	r.Use(gin.Recovery())

	// Tracing middleware
	r.Use(middleware.TracingMiddleware())

	// Logging middleware
	r.Use(middleware.LoggingMiddleware())

	// Prometheus middleware
	r.Use(middleware.PrometheusMiddleware())

	// Health, readiness and metrics endpoints
	checks := health.New(pool)
	checks.RegisterRoutes(r)

	// API v1
	h := v1.NewHandler(sessions, content)
	h.RegisterRoutes(r.Group("/api/v1"))

	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Service.Port).Msg("Starting travel portal")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	// Fail readiness first and wait for propagation.
	checks.StartShutdown()
	drainDelay := cfg.GetReadinessDrainDelayDuration()
	if drainDelay > 0 {
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay started")
		time.Sleep(drainDelay)
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay completed")
	}

	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down server...")

	// 1. Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		log.Info().Msg("HTTP server shutdown complete")
	}

	// 2. Close Redis client
	if err := rdb.Close(); err != nil {
		log.Error().Err(err).Msg("Redis client close error")
	} else {
		log.Info().Msg("Redis client closed")
	}

	// 3. Close database connections
	pool.Close()
	log.Info().Msg("Database pool closed")

	// 4. Shutdown tracer
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Tracer shutdown error")
		} else {
			log.Info().Msg("Tracer shutdown complete")
		}
	}

	log.Info().Msg("Graceful shutdown complete")
}
