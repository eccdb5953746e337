package processor

import (
	"context"
	"fmt"
	"time"

	contract "manimrender/internal/contracts/render"
	"manimrender/internal/models"
	"manimrender/internal/pkg/errors"
	"manimrender/internal/pkg/logger"
	"manimrender/internal/ports"
	"manimrender/internal/render"
	"manimrender/internal/repositories"
)

// JobStore persists job state. *repositories.RenderJobRepository implements it.
type JobStore interface {
	Get(ctx context.Context, id string) (*models.RenderJob, error)
	MarkRunning(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id, objectKey, url string) error
	MarkFailed(ctx context.Context, id, code, msg string) error
}

// Workflow renders and publishes one video. *render.Service implements it.
type Workflow interface {
	Render(ctx context.Context, req contract.Request) render.Result
}

type Deps struct {
	Jobs     JobStore
	Workflow Workflow
	// Storage is used to remove a published video whose job could not be
	// marked DONE.
	Storage ports.StorageProvider
	Log     *logger.Logger
}

type Processor struct {
	jobs     JobStore
	workflow Workflow
	sp       ports.StorageProvider
	log      *logger.Logger
}

// statusTimeout bounds job row updates, which run even after the worker
// context was canceled.
const statusTimeout = 10 * time.Second

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Processor{
		jobs:     d.Jobs,
		workflow: d.Workflow,
		sp:       d.Storage,
		log:      log.WithComponent("processor"),
	}
}

// ProcessJob runs one queued job: RUNNING, render, then DONE or FAILED.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	job, err := p.jobs.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrJobNotFound) {
			return errors.NotFound("render job", jobID)
		}
		return errors.Wrap(err, "processor.fetch", "failed to load job")
	}

	if err := p.jobs.MarkRunning(ctx, jobID); err != nil {
		if errors.Is(err, repositories.ErrJobNotRunnable) {
			log.Info("job already finished, skipping", "status", string(job.Status))
			return nil
		}
		return p.failJob(ctx, jobID, errors.Wrap(err, "processor.status", "failed to mark job as running"))
	}

	log = log.WithVideoID(job.VideoID)
	log.Info("job running", "scene", job.SceneName, "quality", job.Quality)

	res := p.workflow.Render(ctx, contract.Request{
		VideoID:   job.VideoID,
		Script:    job.Script,
		SceneName: job.SceneName,
		Quality:   job.Quality,
	})
	if !res.Success {
		return p.failJob(ctx, jobID, errors.New(res.Code, res.Message))
	}

	sctx, cancel := statusContext(ctx)
	defer cancel()
	if err := p.jobs.MarkDone(sctx, jobID, res.Filename, res.URL); err != nil {
		// Nobody will ever learn this key; do not leave the object behind.
		if p.sp != nil {
			if delErr := p.sp.DeleteObject(sctx, res.Filename); delErr != nil {
				log.Error("orphaned video could not be removed", "key", res.Filename, "error", delErr.Error())
			}
		}
		return p.failJob(ctx, jobID, errors.Wrap(err, "processor.save", "failed to save job result"))
	}

	log.Info("job done", "key", res.Filename, "duration_ms", res.Duration.Milliseconds())
	return nil
}

// failJob records cause on the job row. The caller logs the returned error.
func (p *Processor) failJob(ctx context.Context, jobID string, cause *errors.Error) error {
	log := p.log.FromContext(ctx).WithJobID(jobID)

	sctx, cancel := statusContext(ctx)
	defer cancel()
	if err := p.jobs.MarkFailed(sctx, jobID, string(cause.Code), cause.Detail()); err != nil {
		log.Error("failed to record job failure", "error", err.Error())
		return fmt.Errorf("%w (recording failure: %v)", cause, err)
	}
	return cause
}

func statusContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), statusTimeout)
}
