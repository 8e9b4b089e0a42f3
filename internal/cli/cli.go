package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/vk/assetgrid/internal/app"
	"github.com/vk/assetgrid/internal/hcl"
)

// Exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(err error) error {
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

// usageArgs marks argument validation failures as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

// toExitError maps an error to its exit code. Pipeline and configuration
// problems are usage errors, everything else is a run failure.
func toExitError(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	var cfgErr *app.ConfigError
	if errors.As(err, &cfgErr) {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	return &ExitError{Code: ExitFailure, Message: err.Error()}
}

// options collects the global flags on top of the environment defaults.
type options struct {
	cfg    app.Config
	envErr error
}

func (o *options) newApp(ctx context.Context, cmd *cobra.Command) (*app.App, error) {
	if o.envErr != nil {
		return nil, usageError(o.envErr)
	}
	cfg := o.cfg
	return app.NewApp(ctx, cmd.ErrOrStderr(), &cfg, hcl.NewLoader())
}

// NewRootCmd creates the root assetgrid command with all subcommands
// attached. Flag defaults come from ASSETGRID_* environment variables.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	opts.cfg, opts.envErr = app.ConfigFromEnv()

	cmd := &cobra.Command{
		Use:   "assetgrid",
		Short: "Front-end asset pipeline",
		Long: "assetgrid builds front-end assets from a declarative pipeline file.\n" +
			"It compiles styles and scripts, optimizes images, watches sources and\n" +
			"serves the site with live reload.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.cfg.ConfigPath, "config", "c", opts.cfg.ConfigPath, "Pipeline file or directory, relative to --dir.")
	f.StringVarP(&opts.cfg.Dir, "dir", "C", opts.cfg.Dir, "Project directory.")
	f.StringVar(&opts.cfg.LogLevel, "log-level", opts.cfg.LogLevel, "Logging level: debug, info, warn or error.")
	f.StringVar(&opts.cfg.LogFormat, "log-format", opts.cfg.LogFormat, "Log format: auto, text or json.")
	f.IntVar(&opts.cfg.Workers, "workers", opts.cfg.Workers, "Number of tasks run concurrently.")
	f.BoolVar(&opts.cfg.Cache, "cache", opts.cfg.Cache, "Skip pipes whose inputs are unchanged since the last run.")
	f.StringVar(&opts.cfg.CachePath, "cache-path", opts.cfg.CachePath, "Build cache database. Defaults to the user cache directory.")
	f.IntVar(&opts.cfg.HealthcheckPort, "healthcheck-port", opts.cfg.HealthcheckPort, "Port for the HTTP health check server. 0 is disabled.")

	cmd.AddCommand(
		newRunCmd(opts),
		newWatchCmd(opts),
		newServeCmd(opts),
		newListCmd(opts),
		newScaffoldCmd(opts),
	)
	return cmd
}

// Execute runs the CLI with args and returns nil or an *ExitError.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) *ExitError {
	cmd := NewRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	// Commands only return ExitErrors, so anything else is cobra rejecting
	// the command line.
	return &ExitError{Code: ExitUsage, Message: err.Error()}
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
