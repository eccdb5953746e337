package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"manimrender/internal/pkg/errors"
	"manimrender/internal/pkg/logger"
)

// Run consumes the queue until ctx is canceled. It always returns a
// non-nil error: ctx.Err() on shutdown.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	if d.Queue == nil || d.Processor == nil {
		return fmt.Errorf("worker requires a queue and a processor")
	}
	if d.Concurrency < 1 {
		d.Concurrency = 1
	}
	if d.PopTimeout <= 0 {
		d.PopTimeout = 30 * time.Second
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = time.Second
	}

	log.Info("worker started", "concurrency", d.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.Concurrency; i++ {
		loopLog := log.With("loop", i)
		g.Go(func() error {
			return consume(gctx, d, &logger.Logger{Logger: loopLog})
		})
	}
	return g.Wait()
}

func consume(ctx context.Context, d Deps, log *logger.Logger) error {
	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		jobID, err := d.Queue.Pop(ctx, d.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}

			log.Warn("queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.RetryDelay):
			}
			continue
		}

		if jobID == "" {
			continue
		}

		jobCtx := logger.ContextWithJobID(ctx, jobID)
		jobLog := log.WithJobID(jobID)

		jobLog.Info("processing job")
		startTime := time.Now()

		if err := d.Processor.ProcessJob(jobCtx, jobID); err != nil {
			jobLog.Error("job failed",
				"code", string(errors.GetCode(err)),
				"error", err.Error(),
				"duration_ms", time.Since(startTime).Milliseconds(),
			)
		} else {
			jobLog.Info("job completed",
				"duration_ms", time.Since(startTime).Milliseconds(),
			)
		}
	}
}
