package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/vk/assetgrid/internal/app"
)

// withApp loads the pipeline, calls fn and releases the app afterwards.
func (o *options) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := o.newApp(ctx, cmd)
	if err != nil {
		return toExitError(err)
	}
	defer a.Close()
	return toExitError(fn(a.Context(ctx), a))
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run [task...]",
		Short: "Run tasks and their dependencies",
		Long:  "Run the named tasks together with everything they depend on.\nWithout arguments the pipeline's default task is run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Run(ctx, args)
			})
		},
	}
}

func newWatchCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [watch...]",
		Short: "Rebuild tasks when their sources change",
		Long:  "Start the named watches, or all of them, and rerun their tasks on\nevery change until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Watch(ctx, args)
			})
		},
	}
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the site with live reload",
		Long: "Run the server's before tasks, then proxy or serve the site, watch\n" +
			"sources and reload connected browsers when outputs change.",
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx)
			})
		},
	}
}
