// Package renderer wraps the manim command line.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrOutputMissing is returned when manim exits cleanly but the scene's
	// video cannot be found under the media directory.
	ErrOutputMissing = errors.New("renderer produced no video")
	// ErrTimeout is returned when the render outlives the client timeout.
	ErrTimeout = errors.New("render timed out")
)

const defaultStderrTail = 4 << 10

// ExitError reports a non-zero renderer exit together with the tail of
// its stderr.
type ExitError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("renderer exited with status %d", e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// Request describes one render.
type Request struct {
	ScriptPath string
	SceneName  string
	// MediaDir is passed to manim as --media_dir.
	MediaDir string
	// Quality is a preset name; empty means DefaultPreset.
	Quality string
	// Preview asks manim to open the result when done (-p).
	Preview bool
	// Stdout and Stderr receive the renderer's streams. Nil discards
	// stdout; stderr is always captured for ExitError.
	Stdout io.Writer
	Stderr io.Writer
}

// Result is a finished render.
type Result struct {
	VideoPath string
	Preset    Preset
	Duration  time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithTimeout bounds every render. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithStderrTail sets how many trailing stderr bytes ExitError keeps.
func WithStderrTail(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.stderrTail = n
		}
	}
}

// Client runs manim.
type Client struct {
	binary     string
	timeout    time.Duration
	stderrTail int
	exec       Executor
}

// New constructs a client for the given manim binary.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("renderer binary required")
	}
	c := &Client{
		binary:     binary,
		stderrTail: defaultStderrTail,
		exec:       commandExecutor{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Binary returns the configured executable.
func (c *Client) Binary() string { return c.binary }

// Render invokes manim and returns the path of the produced video.
func (c *Client) Render(ctx context.Context, req Request) (Result, error) {
	if req.ScriptPath == "" {
		return Result{}, errors.New("script path required")
	}
	if req.SceneName == "" {
		return Result{}, errors.New("scene name required")
	}
	if req.MediaDir == "" {
		return Result{}, errors.New("media directory required")
	}
	preset, err := LookupPreset(req.Quality)
	if err != nil {
		return Result{}, err
	}

	renderCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		renderCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	tail := newTailBuffer(c.stderrTail)
	var stderr io.Writer = tail
	if req.Stderr != nil {
		stderr = io.MultiWriter(req.Stderr, tail)
	}
	stdout := req.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	start := time.Now()
	runErr := c.exec.Run(renderCtx, c.binary, Args(req, preset), []string{"PYTHONDONTWRITEBYTECODE=1"}, stdout, stderr)
	elapsed := time.Since(start)

	if runErr != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("render canceled: %w", ctx.Err())
		}
		if errors.Is(renderCtx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w after %s", ErrTimeout, c.timeout)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return Result{}, &ExitError{
				ExitCode: exitErr.ExitCode(),
				Stderr:   strings.TrimSpace(tail.String()),
				Err:      runErr,
			}
		}
		return Result{}, fmt.Errorf("run %s: %w", c.binary, runErr)
	}

	path, err := ResolveOutput(req.MediaDir, req.ScriptPath, req.SceneName, preset)
	if err != nil {
		return Result{}, err
	}
	return Result{VideoPath: path, Preset: preset, Duration: elapsed}, nil
}

// Args builds the manim argument list for req.
func Args(req Request, preset Preset) []string {
	args := make([]string, 0, 6)
	if req.Preview {
		args = append(args, "-p")
	}
	return append(args, preset.Flag, req.ScriptPath, req.SceneName, "--media_dir", req.MediaDir)
}

// ResolveOutput finds the video manim wrote for sceneName. It checks the
// conventional <media>/videos/<script stem>/<label>/<scene>.mp4 first and
// otherwise searches <media>/videos for <scene>.mp4.
func ResolveOutput(mediaDir, scriptPath, sceneName string, preset Preset) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
	want := sceneName + ".mp4"

	expected := filepath.Join(mediaDir, "videos", stem, preset.Label, want)
	if st, err := os.Stat(expected); err == nil && st.Mode().IsRegular() {
		return expected, nil
	}

	var found string
	root := filepath.Join(mediaDir, "videos")
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == "partial_movie_files" {
				return fs.SkipDir
			}
			return nil
		}
		if d.Name() == want && d.Type().IsRegular() {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if found == "" {
		return "", fmt.Errorf("%w: %s not found under %s", ErrOutputMissing, want, root)
	}
	return found, nil
}
