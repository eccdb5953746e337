package repositories

import (
	"context"
	_ "embed"
	"errors"
	"unicode/utf8"

	"manimrender/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrJobNotFound    = errors.New("render job not found")
	ErrJobExists      = errors.New("render job already exists")
	ErrJobNotRunnable = errors.New("render job already finished")
)

// MaxErrorText bounds error_text.
const MaxErrorText = 2000

//go:embed schema.sql
var schemaSQL string

// DB is the subset of *pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type RenderJobRepository struct {
	db DB
}

func NewRenderJobRepository(db DB) *RenderJobRepository {
	return &RenderJobRepository{db: db}
}

// EnsureSchema creates render_jobs when missing.
func (r *RenderJobRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schemaSQL)
	return err
}

func (r *RenderJobRepository) Create(ctx context.Context, j *models.RenderJob) error {
	if j.Status == "" {
		j.Status = models.JobQueued
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO render_jobs (id, video_id, scene_name, quality, script, status)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, j.ID, j.VideoID, j.SceneName, j.Quality, j.Script, string(j.Status)).Scan(&j.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return ErrJobExists
		}
		return err
	}
	return nil
}

const jobColumns = `id, video_id, scene_name, quality, script, status,
	COALESCE(object_key,''), COALESCE(url,''), COALESCE(error_code,''), COALESCE(error_text,''),
	created_at, started_at, finished_at`

func scanJob(row pgx.Row) (*models.RenderJob, error) {
	var j models.RenderJob
	var status string
	err := row.Scan(
		&j.ID,
		&j.VideoID,
		&j.SceneName,
		&j.Quality,
		&j.Script,
		&status,
		&j.ObjectKey,
		&j.URL,
		&j.ErrorCode,
		&j.ErrorText,
		&j.CreatedAt,
		&j.StartedAt,
		&j.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Status = models.JobStatus(status)
	return &j, nil
}

func (r *RenderJobRepository) Get(ctx context.Context, id string) (*models.RenderJob, error) {
	j, err := scanJob(r.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM render_jobs WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return j, nil
}

// List returns the newest jobs first, optionally filtered by status.
func (r *RenderJobRepository) List(ctx context.Context, status models.JobStatus, limit int) ([]models.RenderJob, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT `+jobColumns+`
		FROM render_jobs
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.RenderJob, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// MarkRunning moves an unfinished job to RUNNING. A job left RUNNING by a
// crashed worker can be picked up again.
func (r *RenderJobRepository) MarkRunning(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE render_jobs
		SET status='RUNNING', started_at=now(), finished_at=NULL, error_code=NULL, error_text=NULL
		WHERE id=$1 AND status IN ('QUEUED','RUNNING')
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJobNotRunnable
	}
	return nil
}

func (r *RenderJobRepository) MarkDone(ctx context.Context, id, objectKey, url string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE render_jobs
		SET status='DONE', finished_at=now(), object_key=$2, url=$3
		WHERE id=$1
	`, id, objectKey, url)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *RenderJobRepository) MarkFailed(ctx context.Context, id, code, msg string) error {
	cmd, err := r.db.Exec(ctx, `
		UPDATE render_jobs
		SET status='FAILED', finished_at=now(), error_code=$2, error_text=$3
		WHERE id=$1
	`, id, code, TruncateText(msg, MaxErrorText))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

// TruncateText cuts s to at most n bytes without splitting a rune.
func TruncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
