package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ordersync/internal/scheduler"
)

// NewTriggerCommand creates the trigger command.
func NewTriggerCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Run one synchronization batch",
		Long: `Run one synchronization batch over every tracked entity and print the
report.

Exit codes:
  0 - Every entity was applied or skipped
  1 - One or more entities ended in error
  2 - Command error (bad config, store not reachable)`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrigger(rootOpts, cmd)
		},
	}
}

func runTrigger(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}

	return opts.withApp(cmd.Context(), cfg, func(a *app) error {
		report, err := a.scheduler.Run(cmd.Context())
		if err != nil {
			return WrapExitError(ExitCommandError, "trigger failed", err)
		}

		if err := opts.formatter(cmd).Success(report, func(w io.Writer) {
			printReport(w, report)
		}); err != nil {
			return err
		}

		if report.Failed() {
			return NewExitError(ExitFailure,
				fmt.Sprintf("%d entities failed", report.Count(scheduler.OutcomeError)))
		}
		return nil
	})
}

func printReport(w io.Writer, r scheduler.Report) {
	fmt.Fprintf(w, "Run %s: %d entities (%d applied, %d skipped, %d errors)\n",
		r.RunID, len(r.Entities),
		r.Count(scheduler.OutcomeApplied),
		r.Count(scheduler.OutcomeSkipped),
		r.Count(scheduler.OutcomeError),
	)
	for _, e := range r.Entities {
		switch e.Outcome {
		case scheduler.OutcomeApplied:
			var checkpoint int64
			if e.NewCheckpoint != nil {
				checkpoint = *e.NewCheckpoint
			}
			fmt.Fprintf(w, "  ✓ %s checkpoint=%d applied=%d skipped=%d\n",
				e.EntityID, checkpoint, e.EventsApplied, e.EventsSkipped)
		case scheduler.OutcomeSkipped:
			fmt.Fprintf(w, "  - %s skipped (%s)\n", e.EntityID, e.Reason)
		default:
			fmt.Fprintf(w, "  ✗ %s %s: %s\n", e.EntityID, e.ErrorCode, e.Error)
		}
	}
	if len(r.Untracked) > 0 {
		fmt.Fprintf(w, "Untracked: %v\n", r.Untracked)
	}
}
