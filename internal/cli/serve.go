package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/sqlscript/internal/config"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Listen string
	NoInit bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured calls, agents and queues",
		Long: `Run the init scripts, then serve every api call over HTTP while
agents refresh and URL queues send on their intervals. Stops on SIGINT or
SIGTERM.

Examples:
  sqlscript serve --config sqlscript.yaml
  sqlscript serve --listen :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides api.listen)")
	cmd.Flags().BoolVar(&opts.NoInit, "no-init", false, "skip the init scripts")

	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	logger := opts.Logger()

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	app, err := Build(cfg, logger)
	if err != nil {
		return WrapExitError(ExitFailure, "build", err)
	}

	if !opts.NoInit {
		if err := app.RunInit(ctx); err != nil {
			return WrapExitError(ExitFailure, "init", err)
		}
	}

	listen := cfg.API.Listen
	if opts.Listen != "" {
		listen = opts.Listen
	}
	logger.Info("serving",
		"engine", cfg.Database.Engine,
		"agents", len(app.Agents),
		"queues", len(app.Queues),
		"alerts", len(app.Alerts),
		"calls", len(cfg.API.Calls),
	)
	if err := app.Serve(ctx, listen); err != nil {
		return WrapExitError(ExitFailure, "serve", err)
	}
	logger.Info("stopped")
	return nil
}
