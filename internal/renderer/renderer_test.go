package renderer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// stubExecutor records the invocation and fakes manim's output layout.
type stubExecutor struct {
	binary string
	args   []string
	env    []string
	write  string // video path relative to the media dir
	stderr string
	err    error
	block  bool
}

func (s *stubExecutor) Run(ctx context.Context, binary string, args []string, env []string, stdout, stderr io.Writer) error {
	s.binary = binary
	s.args = append([]string(nil), args...)
	s.env = append([]string(nil), env...)

	if s.stderr != "" {
		_, _ = io.WriteString(stderr, s.stderr)
	}
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if s.err != nil {
		return s.err
	}
	if s.write != "" {
		media := args[len(args)-1]
		p := filepath.Join(media, s.write)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return err
		}
		return os.WriteFile(p, []byte("mp4"), 0o644)
	}
	return nil
}

func TestNewRequiresBinary(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatal("expected error for empty binary")
	}
}

func TestRenderBuildsManimInvocation(t *testing.T) {
	media := t.TempDir()
	stub := &stubExecutor{write: "videos/abc123/480p15/Intro.mp4"}
	c, err := New("manim", WithExecutor(stub))
	if err != nil {
		t.Fatal(err)
	}

	res, err := c.Render(context.Background(), Request{
		ScriptPath: "/scratch/abc123/abc123.py",
		SceneName:  "Intro",
		MediaDir:   media,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	wantArgs := []string{"-ql", "/scratch/abc123/abc123.py", "Intro", "--media_dir", media}
	if !reflect.DeepEqual(stub.args, wantArgs) {
		t.Errorf("args = %v, want %v", stub.args, wantArgs)
	}
	if stub.binary != "manim" {
		t.Errorf("binary = %s", stub.binary)
	}
	if len(stub.env) != 1 || stub.env[0] != "PYTHONDONTWRITEBYTECODE=1" {
		t.Errorf("env = %v", stub.env)
	}
	if want := filepath.Join(media, "videos", "abc123", "480p15", "Intro.mp4"); res.VideoPath != want {
		t.Errorf("VideoPath = %s, want %s", res.VideoPath, want)
	}
	if res.Preset.Label != "480p15" {
		t.Errorf("preset = %+v", res.Preset)
	}
}

func TestRenderPreviewAndQuality(t *testing.T) {
	media := t.TempDir()
	stub := &stubExecutor{write: "videos/scene/1080p60/MyScene.mp4"}
	c, _ := New("manim", WithExecutor(stub))

	res, err := c.Render(context.Background(), Request{
		ScriptPath: "scene.py",
		SceneName:  "MyScene",
		MediaDir:   media,
		Quality:    "HIGH",
		Preview:    true,
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if stub.args[0] != "-p" || stub.args[1] != "-qh" {
		t.Errorf("unexpected args %v", stub.args)
	}
	if !strings.HasSuffix(res.VideoPath, filepath.Join("1080p60", "MyScene.mp4")) {
		t.Errorf("unexpected path %s", res.VideoPath)
	}
}

func TestRenderFallsBackToSearch(t *testing.T) {
	media := t.TempDir()
	// Output landed under an unexpected label.
	stub := &stubExecutor{write: "videos/other/720p30/Intro.mp4"}
	c, _ := New("manim", WithExecutor(stub))

	res, err := c.Render(context.Background(), Request{ScriptPath: "abc.py", SceneName: "Intro", MediaDir: media})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if want := filepath.Join(media, "videos", "other", "720p30", "Intro.mp4"); res.VideoPath != want {
		t.Errorf("VideoPath = %s, want %s", res.VideoPath, want)
	}
}

func TestRenderMissingOutput(t *testing.T) {
	c, _ := New("manim", WithExecutor(&stubExecutor{}))
	_, err := c.Render(context.Background(), Request{ScriptPath: "abc.py", SceneName: "Intro", MediaDir: t.TempDir()})
	if !errors.Is(err, ErrOutputMissing) {
		t.Fatalf("expected ErrOutputMissing, got %v", err)
	}
}

func TestRenderNonZeroExitCarriesStderr(t *testing.T) {
	exitErr := exitError(t, 2)
	stub := &stubExecutor{stderr: "Traceback...\nNameError: Missing is not defined\n", err: exitErr}
	c, _ := New("manim", WithExecutor(stub))

	_, err := c.Render(context.Background(), Request{ScriptPath: "abc.py", SceneName: "Missing", MediaDir: t.TempDir()})
	var re *ExitError
	if !errors.As(err, &re) {
		t.Fatalf("expected *ExitError, got %T %v", err, err)
	}
	if re.ExitCode != 2 {
		t.Errorf("exit code = %d", re.ExitCode)
	}
	if !strings.Contains(re.Error(), "NameError: Missing is not defined") {
		t.Errorf("expected stderr in message, got %q", re.Error())
	}
}

func TestRenderTimeout(t *testing.T) {
	c, _ := New("manim", WithExecutor(&stubExecutor{block: true}), WithTimeout(20*time.Millisecond))
	_, err := c.Render(context.Background(), Request{ScriptPath: "abc.py", SceneName: "Intro", MediaDir: t.TempDir()})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestRenderCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c, _ := New("manim", WithExecutor(&stubExecutor{block: true}))
	_, err := c.Render(ctx, Request{ScriptPath: "abc.py", SceneName: "Intro", MediaDir: t.TempDir()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRenderValidatesRequest(t *testing.T) {
	c, _ := New("manim", WithExecutor(&stubExecutor{}))
	tests := []Request{
		{SceneName: "A", MediaDir: "m"},
		{ScriptPath: "a.py", MediaDir: "m"},
		{ScriptPath: "a.py", SceneName: "A"},
		{ScriptPath: "a.py", SceneName: "A", MediaDir: "m", Quality: "ultra"},
	}
	for i, req := range tests {
		if _, err := c.Render(context.Background(), req); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestLookupPreset(t *testing.T) {
	tests := []struct {
		name  string
		flag  string
		label string
	}{
		{"", "-ql", "480p15"},
		{"low", "-ql", "480p15"},
		{"medium", "-qm", "720p30"},
		{"high", "-qh", "1080p60"},
		{"production", "-qp", "1440p60"},
		{"4k", "-qk", "2160p60"},
	}
	for _, tt := range tests {
		p, err := LookupPreset(tt.name)
		if err != nil {
			t.Fatalf("LookupPreset(%q): %v", tt.name, err)
		}
		if p.Flag != tt.flag || p.Label != tt.label {
			t.Errorf("LookupPreset(%q) = %+v", tt.name, p)
		}
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	tb := newTailBuffer(5)
	fmt.Fprint(tb, "abc")
	fmt.Fprint(tb, "defg")
	if tb.String() != "cdefg" {
		t.Errorf("got %q", tb.String())
	}
	fmt.Fprint(tb, "0123456789")
	if tb.String() != "56789" {
		t.Errorf("got %q", tb.String())
	}
}

func TestCommandExecutorRunsProcess(t *testing.T) {
	var stdout, stderr strings.Builder
	err := commandExecutor{}.Run(context.Background(), os.Args[0],
		[]string{"-test.run=TestHelperProcess", "--", "ok"},
		[]string{"GO_WANT_HELPER_PROCESS=1", "PYTHONDONTWRITEBYTECODE=1"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("Run: %v (stderr %q)", err, stderr.String())
	}
	if !strings.Contains(stdout.String(), "bytecode=1") {
		t.Errorf("expected env to reach the child, stdout %q", stdout.String())
	}
}

// exitError produces a real *exec.ExitError with the given status.
func exitError(t *testing.T, code int) error {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=TestHelperProcess", "--", "exit", fmt.Sprint(code))
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	err := cmd.Run()
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		t.Fatalf("expected exit error from helper, got %v", err)
	}
	return err
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	switch args[0] {
	case "exit":
		var code int
		fmt.Sscan(args[1], &code)
		os.Exit(code)
	default:
		fmt.Printf("bytecode=%s\n", os.Getenv("PYTHONDONTWRITEBYTECODE"))
		os.Exit(0)
	}
}
