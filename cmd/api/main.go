package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"manimrender/internal/config"
	"manimrender/internal/httpapi"
	"manimrender/internal/httpapi/handlers"
	"manimrender/internal/pkg/logger"
	"manimrender/internal/pkg/shutdown"
	"manimrender/internal/render"
	"manimrender/internal/renderer"
	"manimrender/internal/repositories"
	"manimrender/internal/storage"
	"manimrender/internal/worker/queue"
)

const version = "0.1.0"

func main() {
	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = "manimrender-api"
	log := logger.New(logCfg)

	log.Info("starting manimrender API", "version", version)

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	ctx := context.Background()
	shutdownMgr := shutdown.NewManager(log, 30*time.Second)

	// Initialize storage provider
	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}
	log.Info("storage provider initialized", "provider", sp.Provider())

	// Render workflow
	rc, err := renderer.New(cfg.Render.RendererBin, renderer.WithTimeout(cfg.Render.Timeout))
	if err != nil {
		log.LogFatal("failed to initialize renderer", err)
	}
	svc, err := render.NewService(render.Config{
		ScratchDir:    cfg.Render.ScratchDir,
		Quality:       cfg.Render.Quality,
		MaxConcurrent: cfg.Render.MaxConcurrent,
	}, rc, sp, log)
	if err != nil {
		log.LogFatal("failed to initialize render service", err)
	}
	log.Info("render service ready",
		"renderer", rc.Binary(),
		"scratch_dir", cfg.Render.ScratchDir,
		"max_concurrent", cfg.Render.MaxConcurrent,
	)

	deps := handlers.Deps{
		Render:  svc,
		Storage: sp,
		Checks:  map[string]handlers.HealthCheck{},
		Log:     log,
		Version: version,
	}

	if cfg.AsyncEnabled() {
		// Connect to PostgreSQL
		log.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.LogFatal("failed to connect to PostgreSQL", err)
		}
		shutdownMgr.Register("postgres", func(ctx context.Context) error {
			pool.Close()
			return nil
		})
		if err := pool.Ping(ctx); err != nil {
			log.LogFatal("failed to ping PostgreSQL", err)
		}

		jobs := repositories.NewRenderJobRepository(pool)
		if err := jobs.EnsureSchema(ctx); err != nil {
			log.LogFatal("failed to apply render_jobs schema", err)
		}
		log.Info("PostgreSQL connected")

		// Connect to Redis
		log.Info("connecting to Redis")
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		shutdownMgr.Register("redis", func(ctx context.Context) error {
			return rdb.Close()
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.LogFatal("failed to ping Redis", err)
		}
		log.Info("Redis connected", "queue", cfg.QueueName)

		deps.Jobs = jobs
		deps.Queue = queue.NewRedisQueue(rdb, cfg.QueueName)
		deps.Checks["database"] = postgresCheck(pool)
		deps.Checks["redis"] = redisCheck(rdb, cfg.QueueName)
	} else {
		log.Info("async render jobs disabled", "reason", "DATABASE_URL or REDIS_ADDR not set")
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Handler:        handlers.New(deps),
		CORSOrigins:    cfg.CORSOrigins,
		RequestTimeout: cfg.RequestTimeout,
	})

	// Renders hold the request open, so the write timeout follows the
	// request timeout.
	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	shutdownMgr.Register("http-server", func(ctx context.Context) error {
		log.Info("shutting down HTTP server")
		return server.Shutdown(ctx)
	})

	go func() {
		log.Info("HTTP server listening", "addr", server.Addr, "port", cfg.HTTPPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("HTTP server failed", err)
		}
	}()

	shutdownMgr.Wait()
}

func postgresCheck(pool *pgxpool.Pool) handlers.HealthCheck {
	return func(ctx context.Context) (map[string]any, error) {
		stats := pool.Stat()
		extra := map[string]any{
			"total_conns":    stats.TotalConns(),
			"idle_conns":     stats.IdleConns(),
			"acquired_conns": stats.AcquiredConns(),
		}
		return extra, pool.Ping(ctx)
	}
}

func redisCheck(rdb *redis.Client, queueName string) handlers.HealthCheck {
	return func(ctx context.Context) (map[string]any, error) {
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		depth, err := rdb.LLen(ctx, queueName).Result()
		return map[string]any{"queue_depth": depth}, err
	}
}
