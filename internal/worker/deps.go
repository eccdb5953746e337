package worker

import (
	"context"
	"time"

	"manimrender/internal/pkg/logger"
)

// Queue yields job ids. *queue.RedisQueue implements it.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

// JobProcessor runs one job. *processor.Processor implements it.
type JobProcessor interface {
	ProcessJob(ctx context.Context, jobID string) error
}

type Deps struct {
	Queue     Queue
	Processor JobProcessor
	Log       *logger.Logger

	// Concurrency is the number of consumer loops; defaults to 1.
	Concurrency int
	// PopTimeout bounds each blocking pop; defaults to 30s.
	PopTimeout time.Duration
	// RetryDelay is the pause after a queue error; defaults to 1s.
	RetryDelay time.Duration
}
