package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ordersync/internal/view"
)

// NewOrderCommand creates the order command group.
func NewOrderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Read order views and manage tracking",
	}
	cmd.AddCommand(newOrderShowCommand(rootOpts))
	cmd.AddCommand(newOrderHistoryCommand(rootOpts))
	cmd.AddCommand(newOrderTrackCommand(rootOpts))
	return cmd
}

func newOrderShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <order-id>",
		Short:         "Show the order summary",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), cfg, func(a *app) error {
				summary, err := a.views.Summary(cmd.Context(), args[0])
				if err != nil {
					return viewError(err)
				}
				return opts.formatter(cmd).Success(summary, func(w io.Writer) {
					printSummary(w, summary)
				})
			})
		},
	}
}

func newOrderHistoryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "history <order-id>",
		Short:         "Show the order's change history",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), cfg, func(a *app) error {
				changes, err := a.views.History(cmd.Context(), args[0])
				if err != nil {
					return viewError(err)
				}
				return opts.formatter(cmd).Success(changes, func(w io.Writer) {
					printHistory(w, changes)
				})
			})
		},
	}
}

func newOrderTrackCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "track <order-id>",
		Short: "Add an order to the tracked set",
		Long: `Add an order to the tracked set so the next trigger fetches its events.
Tracking an order that retention dropped puts it back.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			return opts.withApp(cmd.Context(), cfg, func(a *app) error {
				if err := a.store.Track(cmd.Context(), args[0]); err != nil {
					return WrapExitError(ExitCommandError, "failed to track order", err)
				}
				data := map[string]any{"entityId": args[0], "tracked": true}
				return opts.formatter(cmd).Success(data, func(w io.Writer) {
					fmt.Fprintf(w, "✓ Tracking %s\n", args[0])
				})
			})
		},
	}
}

func viewError(err error) error {
	if errors.Is(err, view.ErrNotFound) {
		return WrapExitError(ExitFailure, "order not found", err)
	}
	return WrapExitError(ExitCommandError, "failed to read order", err)
}

func printSummary(w io.Writer, s view.Summary) {
	fmt.Fprintf(w, "Order %s\n", s.ID)
	fmt.Fprintf(w, "  State:               %s\n", s.State)
	fmt.Fprintf(w, "  Last sequence id:    %d\n", s.LastSequenceID)
	fmt.Fprintf(w, "  Changed after start: %t\n", s.ChangedAfterStart)
	if s.Currency != "" {
		fmt.Fprintf(w, "  Paid:                %s\n", s.PaidDisplay)
	}
	fmt.Fprintf(w, "  Updated at:          %s\n", s.UpdatedAt.UTC().Format(time.RFC3339))
	if len(s.SubOrders) == 0 {
		return
	}
	fmt.Fprintln(w, "  Sub-orders:")
	for _, so := range s.SubOrders {
		fmt.Fprintf(w, "    %s  %-10s total=%d changes=%d\n", so.DateKey, so.State, so.Total, so.Changes)
	}
}

func printHistory(w io.Writer, changes []view.Change) {
	if len(changes) == 0 {
		fmt.Fprintln(w, "No changes recorded.")
		return
	}
	for _, c := range changes {
		fmt.Fprintf(w, "#%d %s %s: %s -> %s (by %s at %s)\n",
			c.SequenceID, c.DateKey, c.FieldName,
			c.PreviousValue, c.NewValue,
			c.ChangedBy, c.ChangedAt.UTC().Format(time.RFC3339))
	}
}
