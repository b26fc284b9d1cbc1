package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/ordersync/internal/server"
	"github.com/roach88/ordersync/internal/telemetry"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Interval time.Duration
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP surface and the periodic trigger",
		Long: `Start the HTTP surface (trigger hook, order views, checkpoints, health,
metrics) and run a synchronization batch every scheduler interval.

SIGINT or SIGTERM stops the trigger loop and shuts the server down
gracefully.

Example:
  ordersync serve --config ordersync.yaml
  ordersync serve --addr :9090 --interval 30s`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "trigger interval (overrides scheduler.interval)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.Server.Addr = opts.Addr
	}
	if opts.Interval > 0 {
		cfg.Scheduler.Interval = opts.Interval
	}
	logger := opts.logger()

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	return opts.withApp(ctx, cfg, func(a *app) error {
		gin.SetMode(gin.ReleaseMode)
		srv := server.New(a.scheduler, a.views, a.store,
			server.WithLogger(logger),
			server.WithMetrics(a.metrics),
		)

		logger.Info("ordersync starting",
			"addr", cfg.Server.Addr,
			"interval", cfg.Scheduler.Interval,
			"source", cfg.Source.Kind,
			"cache", cfg.Cache.Backend,
		)
		fmt.Fprintf(cmd.OutOrStdout(), "Serving on %s. Press Ctrl-C to stop.\n", cfg.Server.Addr)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Server.Addr)
		})
		g.Go(func() error {
			return a.scheduler.Loop(gctx, cfg.Scheduler.Interval)
		})

		if err := g.Wait(); err != nil {
			return WrapExitError(ExitFailure, "server error", err)
		}
		logger.Info("ordersync stopped gracefully")
		return nil
	})
}
