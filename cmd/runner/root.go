package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"manimrender/internal/renderer"
)

var errUsage = errors.New("usage")

type runnerOptions struct {
	quality   string
	noPreview bool
	binary    string
	timeout   time.Duration
}

// run executes the runner and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, extra ...renderer.Option) int {
	cmd := newRootCommand(extra...)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprint(stderr, cmd.UsageString())
	default:
		color.New(color.FgRed).Fprintf(stderr, "❌ Error: %s\n", errorMessage(err))
	}
	return 1
}

// errorMessage leaves out the renderer's stderr, which was already streamed
// to the terminal.
func errorMessage(err error) string {
	var exitErr *renderer.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Sprintf("renderer exited with status %d", exitErr.ExitCode)
	}
	return err.Error()
}

func newRootCommand(extra ...renderer.Option) *cobra.Command {
	var opts runnerOptions

	cmd := &cobra.Command{
		Use:           "runner <script_path> <class_name>",
		Short:         "Render one manim scene locally",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("%w: expected 2 arguments, got %d", errUsage, len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := renderScene(cmd, args[0], args[1], opts, extra)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✅ Video saved at: %s\n", path)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.quality, "quality", "q", renderer.DefaultPreset, "Render quality ("+strings.Join(renderer.PresetNames(), "|")+")")
	flags.BoolVar(&opts.noPreview, "no-preview", false, "Do not open the video when rendering finishes")
	flags.StringVar(&opts.binary, "renderer", "manim", "Renderer executable")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Abort the render after this long (0 disables)")

	return cmd
}

func renderScene(cmd *cobra.Command, scriptPath, sceneName string, opts runnerOptions, extra []renderer.Option) (string, error) {
	scriptPath, err := filepath.Abs(scriptPath)
	if err != nil {
		return "", err
	}

	clientOpts := append([]renderer.Option{renderer.WithTimeout(opts.timeout)}, extra...)
	client, err := renderer.New(opts.binary, clientOpts...)
	if err != nil {
		return "", err
	}

	res, err := client.Render(cmd.Context(), renderer.Request{
		ScriptPath: scriptPath,
		SceneName:  sceneName,
		MediaDir:   filepath.Join(filepath.Dir(scriptPath), "media", "videos"),
		Quality:    opts.quality,
		Preview:    !opts.noPreview,
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return "", err
	}
	return res.VideoPath, nil
}
