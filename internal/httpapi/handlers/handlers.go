package handlers

import (
	"context"
	"time"

	contract "manimrender/internal/contracts/render"
	"manimrender/internal/models"
	"manimrender/internal/pkg/logger"
	"manimrender/internal/ports"
	"manimrender/internal/render"
)

// Renderer is the render workflow. *render.Service implements it.
type Renderer interface {
	Prepare(req contract.Request) (contract.Request, error)
	Render(ctx context.Context, req contract.Request) render.Result
}

// JobStore is the render_jobs table. *repositories.RenderJobRepository
// implements it.
type JobStore interface {
	Create(ctx context.Context, j *models.RenderJob) error
	Get(ctx context.Context, id string) (*models.RenderJob, error)
	List(ctx context.Context, status models.JobStatus, limit int) ([]models.RenderJob, error)
	MarkFailed(ctx context.Context, id, code, msg string) error
}

// JobQueue enqueues job ids. *queue.RedisQueue implements it.
type JobQueue interface {
	Push(ctx context.Context, jobID string) error
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) (map[string]any, error)

type Deps struct {
	Render  Renderer
	Storage ports.StorageProvider
	// Jobs and Queue are nil when async jobs are disabled.
	Jobs  JobStore
	Queue JobQueue
	// Checks run on GET /health?deep=true, keyed by dependency name.
	Checks map[string]HealthCheck
	Log    *logger.Logger

	Version      string
	SignedURLTTL time.Duration
}

type Handler struct {
	render  Renderer
	sp      ports.StorageProvider
	jobs    JobStore
	queue   JobQueue
	checks  map[string]HealthCheck
	log     *logger.Logger
	version string
	ttl     time.Duration
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	ttl := d.SignedURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	version := d.Version
	if version == "" {
		version = "dev"
	}
	return &Handler{
		render:  d.Render,
		sp:      d.Storage,
		jobs:    d.Jobs,
		queue:   d.Queue,
		checks:  d.Checks,
		log:     log.WithComponent("http"),
		version: version,
		ttl:     ttl,
	}
}

// Log returns the handler logger.
func (h *Handler) Log() *logger.Logger { return h.log }

// AsyncEnabled reports whether the job routes can be served.
func (h *Handler) AsyncEnabled() bool {
	return h.jobs != nil && h.queue != nil
}
