package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	contract "manimrender/internal/contracts/render"
	"manimrender/internal/httpkit"
	"manimrender/internal/models"
	"manimrender/internal/pkg/errors"
	"manimrender/internal/repositories"
)

func (h *Handler) PostRenderJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req contract.Request
	if err := httpkit.DecodeJSON(w, r, &req); err != nil {
		return err
	}
	req, err := h.render.Prepare(req)
	if err != nil {
		return err
	}

	job := &models.RenderJob{
		ID:        "job_" + uuid.NewString(),
		VideoID:   req.VideoID,
		SceneName: req.SceneName,
		Quality:   req.Quality,
		Script:    req.Script,
		Status:    models.JobQueued,
	}
	if err := h.jobs.Create(ctx, job); err != nil {
		if repositories.IsUndefinedTable(err) {
			return errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.create", "render_jobs table is missing")
		}
		return errors.Wrap(err, "jobs.create", "failed to create job")
	}

	if err := h.queue.Push(ctx, job.ID); err != nil {
		_ = h.jobs.MarkFailed(ctx, job.ID, string(errors.CodeUnavailable), "queue push failed")
		return errors.WrapWithCode(err, errors.CodeUnavailable, "jobs.enqueue", "failed to enqueue job")
	}

	h.log.FromContext(ctx).Info("render job queued", "job_id", job.ID, "video_id", job.VideoID)
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"job": jobView(*job)})
	return nil
}

func (h *Handler) GetRenderJob(w http.ResponseWriter, r *http.Request) error {
	jobID := chi.URLParam(r, "jobId")

	job, err := h.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrJobNotFound) {
			return errors.NotFound("render job", jobID)
		}
		return errors.Wrap(err, "jobs.get", "failed to load job")
	}

	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": jobView(*job)})
	return nil
}

func (h *Handler) ListRenderJobs(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	status := models.JobStatus(strings.ToUpper(strings.TrimSpace(q.Get("status"))))
	if status != "" && !status.Valid() {
		return errors.ValidationField("status", "status must be one of QUEUED, RUNNING, DONE, FAILED")
	}

	limit := 50
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 200 {
			return errors.ValidationField("limit", "limit must be between 1 and 200")
		}
		limit = v
	}

	jobs, err := h.jobs.List(r.Context(), status, limit)
	if err != nil {
		return errors.Wrap(err, "jobs.list", "failed to list jobs")
	}

	items := make([]contract.Job, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, jobView(j))
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"jobs": items})
	return nil
}

func jobView(j models.RenderJob) contract.Job {
	v := contract.Job{
		ID:        j.ID,
		VideoID:   j.VideoID,
		SceneName: j.SceneName,
		Quality:   j.Quality,
		Status:    string(j.Status),
		Filename:  j.ObjectKey,
		URL:       j.URL,
		ErrorCode: j.ErrorCode,
		Error:     j.ErrorText,
		CreatedAt: formatTime(&j.CreatedAt),
	}
	v.StartedAt = formatTime(j.StartedAt)
	v.FinishedAt = formatTime(j.FinishedAt)
	return v
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
