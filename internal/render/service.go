// Package render implements the render-and-publish workflow: materialize
// the script, run the renderer, upload the video, clean up.
package render

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	contract "manimrender/internal/contracts/render"
	"manimrender/internal/pkg/errors"
	"manimrender/internal/pkg/logger"
	"manimrender/internal/ports"
	"manimrender/internal/renderer"
)

// VideoContentType is stored with every uploaded video.
const VideoContentType = "video/mp4"

// Renderer runs one render. *renderer.Client implements it.
type Renderer interface {
	Render(ctx context.Context, req renderer.Request) (renderer.Result, error)
}

// Config tunes the service.
type Config struct {
	ScratchDir string
	// Quality is the preset used when a request names none.
	Quality       string
	MaxConcurrent int
}

// Result is the outcome of one workflow run. Failures carry a code and a
// caller-facing message; Err keeps the full chain for logs.
type Result struct {
	Success  bool
	VideoID  string
	Filename string
	URL      string
	Code     errors.Code
	Message  string
	Err      error
	Duration time.Duration
}

// Response converts r to the POST /render body.
func (r Result) Response() contract.Response {
	if r.Success {
		return contract.Response{Success: true, Filename: r.Filename, URL: r.URL}
	}
	return contract.Response{Success: false, Error: r.Message, Code: string(r.Code)}
}

// HTTPStatus maps the result to a response status.
func (r Result) HTTPStatus() int {
	if r.Success {
		return 200
	}
	return (&errors.Error{Code: r.Code}).HTTPStatus()
}

// Service runs renders. It is safe for concurrent use.
type Service struct {
	renderer Renderer
	storage  ports.StorageProvider
	log      *logger.Logger

	scratch string
	quality string
	sem     *semaphore.Weighted
	locks   *idLocks

	newID    func() string
	newToken func() string
}

// NewService creates the scratch directory and wires the workflow.
func NewService(cfg Config, r Renderer, sp ports.StorageProvider, log *logger.Logger) (*Service, error) {
	if r == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if sp == nil {
		return nil, fmt.Errorf("storage provider is required")
	}
	if cfg.ScratchDir == "" {
		return nil, fmt.Errorf("scratch dir is required")
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if _, err := renderer.LookupPreset(cfg.Quality); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &Service{
		renderer: r,
		storage:  sp,
		log:      log.WithComponent("render"),
		scratch:  cfg.ScratchDir,
		quality:  cfg.Quality,
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		locks:    newIDLocks(cfg.ScratchDir),
		newID:    hexUUID,
		newToken: hexUUID,
	}, nil
}

// Storage exposes the provider the service uploads to.
func (s *Service) Storage() ports.StorageProvider { return s.storage }

// Prepare normalizes and validates req, generating a video id when blank.
func (s *Service) Prepare(req contract.Request) (contract.Request, error) {
	req.Normalize()
	if req.VideoID == "" {
		req.VideoID = s.newID()
	}
	if req.Quality == "" {
		req.Quality = s.quality
	}
	if err := req.Validate(); err != nil {
		return req, err
	}
	if _, err := renderer.LookupPreset(req.Quality); err != nil {
		return req, errors.ValidationField("quality", err.Error())
	}
	return req, nil
}

// Render runs the whole workflow for req. It never returns a Go error;
// every failure is reported through Result.
func (s *Service) Render(ctx context.Context, req contract.Request) Result {
	start := time.Now()

	req, err := s.Prepare(req)
	ctx = logger.ContextWithVideoID(ctx, req.VideoID)
	if err != nil {
		return s.fail(ctx, req.VideoID, start, err)
	}
	log := s.log.FromContext(ctx)

	release, ok, err := s.locks.tryLock(req.VideoID)
	if err != nil {
		return s.fail(ctx, req.VideoID, start, errors.Wrap(err, "render.lock", "failed to lock video id"))
	}
	if !ok {
		return s.fail(ctx, req.VideoID, start, errors.Conflict("a render for this videoId is already in progress").WithField("videoId", req.VideoID))
	}
	defer func() {
		if err := release(); err != nil {
			log.Warn("release video lock failed", "error", err.Error())
		}
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return s.fail(ctx, req.VideoID, start, waitError(ctx, "render.queue"))
	}
	defer s.sem.Release(1)

	workspace := filepath.Join(s.scratch, req.VideoID)
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			log.Warn("workspace cleanup failed", "workspace", workspace, "error", err.Error())
			return
		}
		log.Debug("workspace removed", "workspace", workspace)
	}()

	scriptPath, err := materialize(workspace, req)
	if err != nil {
		return s.fail(ctx, req.VideoID, start, errors.Wrap(err, "render.materialize", "failed to write script"))
	}

	log.Info("render started", "scene", req.SceneName, "quality", req.Quality)
	out, err := s.renderer.Render(ctx, renderer.Request{
		ScriptPath: scriptPath,
		SceneName:  req.SceneName,
		MediaDir:   filepath.Join(workspace, "media"),
		Quality:    req.Quality,
	})
	if err != nil {
		return s.fail(ctx, req.VideoID, start, classifyRenderError(ctx, err))
	}
	log.Info("render finished", "video", out.VideoPath, "duration_ms", out.Duration.Milliseconds())

	key := ObjectKey(req.VideoID, s.newToken())
	put, err := s.upload(ctx, out.VideoPath, key)
	if err != nil {
		return s.fail(ctx, req.VideoID, start, errors.WrapWithCode(err, errors.CodeUploadFailed, "render.upload", "failed to upload video"))
	}

	res := Result{
		Success:  true,
		VideoID:  req.VideoID,
		Filename: put.ObjectKey,
		URL:      put.URL,
		Duration: time.Since(start),
	}
	log.Info("video published", "key", res.Filename, "provider", s.storage.Provider(), "duration_ms", res.Duration.Milliseconds())
	return res
}

// ObjectKey builds the storage key videos/<videoId>_<token>.mp4.
func ObjectKey(videoID, token string) string {
	return fmt.Sprintf("videos/%s_%s.mp4", videoID, token)
}

func materialize(workspace string, req contract.Request) (string, error) {
	// A leftover workspace can only come from a crashed run; we hold the id lock.
	if err := os.RemoveAll(workspace); err != nil {
		return "", err
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return "", err
	}
	scriptPath := filepath.Join(workspace, req.VideoID+".py")
	if err := os.WriteFile(scriptPath, []byte(req.Script), 0o644); err != nil {
		return "", err
	}
	return scriptPath, nil
}

func (s *Service) upload(ctx context.Context, path, key string) (ports.PutObjectOutput, error) {
	f, err := os.Open(path)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	return s.storage.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: VideoContentType,
		Reader:      f,
		Size:        st.Size(),
	})
}

func (s *Service) fail(ctx context.Context, videoID string, start time.Time, err error) Result {
	code := errors.GetCode(err)
	res := Result{
		VideoID:  videoID,
		Code:     code,
		Message:  errors.Describe(err),
		Err:      err,
		Duration: time.Since(start),
	}

	log := s.log.FromContext(ctx)
	args := []any{"code", string(code), "error", err.Error(), "duration_ms", res.Duration.Milliseconds()}
	if code == errors.CodeInternal || code == errors.CodeUploadFailed {
		log.Error("render failed", args...)
	} else {
		log.Warn("render failed", args...)
	}
	return res
}

func classifyRenderError(ctx context.Context, err error) error {
	var exitErr *renderer.ExitError
	switch {
	case stderrors.As(err, &exitErr):
		return errors.New(errors.CodeRenderFailed, exitErr.Error()).WithField("exit_code", exitErr.ExitCode)
	case stderrors.Is(err, renderer.ErrOutputMissing):
		return errors.WrapWithCode(err, errors.CodeRenderFailed, "render.output", "renderer finished without a video")
	case stderrors.Is(err, renderer.ErrTimeout):
		return errors.WrapWithCode(err, errors.CodeTimeout, "render.run", "render timed out")
	case ctx.Err() != nil:
		return waitError(ctx, "render.run")
	default:
		return errors.Wrap(err, "render.run", "failed to run renderer")
	}
}

// waitError reports why ctx ended while the workflow was blocked.
func waitError(ctx context.Context, op string) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, op, "request deadline exceeded")
	}
	return errors.WrapWithCode(ctx.Err(), errors.CodeUnavailable, op, "request canceled")
}

func hexUUID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
