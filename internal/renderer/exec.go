package renderer

import (
	"context"
	"io"
	"os"
	"os/exec"
	"time"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, env []string, stdout, stderr io.Writer) error
}

// commandExecutor runs the binary as a child process. The process is killed
// when ctx is done.
type commandExecutor struct{}

// waitDelay bounds how long Wait blocks on output pipes held open by
// grandchildren (ffmpeg, latex) after the renderer itself was killed.
const waitDelay = 5 * time.Second

func (commandExecutor) Run(ctx context.Context, binary string, args []string, env []string, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(os.Environ(), env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	return cmd.Run()
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n >= t.limit {
		t.buf = append(t.buf[:0], p[n-t.limit:]...)
		return n, nil
	}
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return n, nil
}

func (t *tailBuffer) String() string { return string(t.buf) }
