package main

import (
	"context"
	stderrors "errors"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"manimrender/internal/config"
	"manimrender/internal/pkg/logger"
	"manimrender/internal/render"
	"manimrender/internal/renderer"
	"manimrender/internal/repositories"
	"manimrender/internal/storage"
	"manimrender/internal/worker"
	"manimrender/internal/worker/processor"
	"manimrender/internal/worker/queue"
)

func main() {
	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = "manimrender-worker"
	log := logger.New(logCfg)

	cfg, err := config.Load()
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}
	if !cfg.AsyncEnabled() {
		log.LogFatal("worker requires DATABASE_URL and REDIS_ADDR", stderrors.New("async jobs disabled"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.LogFatal("failed to connect to PostgreSQL", err)
	}
	defer pool.Close()

	jobs := repositories.NewRenderJobRepository(pool)
	if err := jobs.EnsureSchema(ctx); err != nil {
		log.LogFatal("failed to apply render_jobs schema", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.LogFatal("failed to ping Redis", err)
	}

	sp, err := storage.NewProvider(ctx, cfg.Storage)
	if err != nil {
		log.LogFatal("failed to initialize storage provider", err)
	}

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

	proc := processor.New(processor.Deps{
		Jobs:     jobs,
		Workflow: svc,
		Storage:  sp,
		Log:      log,
	})

	log.Info("manimrender worker started",
		"queue", cfg.QueueName,
		"storage", sp.Provider(),
		"concurrency", cfg.Render.MaxConcurrent,
	)

	err = worker.Run(ctx, worker.Deps{
		Queue:       queue.NewRedisQueue(rdb, cfg.QueueName),
		Processor:   proc,
		Log:         log,
		Concurrency: cfg.Render.MaxConcurrent,
	})
	if err != nil && !stderrors.Is(err, context.Canceled) {
		log.LogFatal("worker stopped", err)
	}
	log.Info("worker stopped")
}
