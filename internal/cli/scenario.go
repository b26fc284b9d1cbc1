package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ordersync/internal/harness"
)

// ScenarioOptions holds flags for the scenario command.
type ScenarioOptions struct {
	*RootOptions
	Snapshot bool
}

// NewScenarioCommand creates the scenario command.
func NewScenarioCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScenarioOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scenario <scenario.yaml>",
		Short: "Run a conformance scenario",
		Long: `Run a YAML scenario against a private in-process store and evaluate its
assertions. The scenario never touches the configured store or source.

Exit codes:
  0 - Every assertion held
  1 - One or more assertions failed
  2 - Command error (unreadable or invalid scenario)

Example:
  ordersync scenario testdata/scenarios/lifecycle_with_edits.yaml
  ordersync scenario --snapshot my_scenario.yaml > my_scenario.golden`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Snapshot, "snapshot", false, "print the golden snapshot instead of the summary")

	return cmd
}

// scenarioOutput is the JSON payload of the scenario command.
type scenarioOutput struct {
	Scenario string           `json:"scenario"`
	Pass     bool             `json:"pass"`
	Errors   []string         `json:"errors,omitempty"`
	Snapshot harness.Snapshot `json:"snapshot"`
}

func runScenario(opts *ScenarioOptions, cmd *cobra.Command, path string) error {
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	opts.formatter(cmd).VerboseLog("Loaded scenario %q from %s", scenario.Name, path)

	result, err := harness.Run(cmd.Context(), scenario)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenario", err)
	}

	snapshot := harness.NewSnapshot(scenario.Name, result)
	out := scenarioOutput{
		Scenario: scenario.Name,
		Pass:     result.Pass,
		Errors:   result.Errors,
		Snapshot: snapshot,
	}

	var renderErr error
	err = opts.formatter(cmd).Success(out, func(w io.Writer) {
		if opts.Snapshot {
			data, err := snapshot.Marshal()
			if err != nil {
				renderErr = err
				return
			}
			_, renderErr = w.Write(data)
			return
		}
		printScenarioResult(w, scenario, result)
	})
	if err != nil {
		return err
	}
	if renderErr != nil {
		return WrapExitError(ExitCommandError, "failed to encode snapshot", renderErr)
	}

	if !result.Pass {
		return NewExitError(ExitFailure,
			fmt.Sprintf("scenario %s: %d assertions failed", scenario.Name, len(result.Errors)))
	}
	return nil
}

func printScenarioResult(w io.Writer, s *harness.Scenario, r *harness.Result) {
	status := "PASS"
	if !r.Pass {
		status = "FAIL"
	}
	fmt.Fprintf(w, "%s %s (%d runs, %d orders)\n", status, s.Name, len(r.Runs), len(r.Orders))
	for i, run := range r.Runs {
		for _, e := range run {
			line := fmt.Sprintf("  run %d: %s %s", i+1, e.EntityID, e.Outcome)
			if e.Checkpoint != nil {
				line += fmt.Sprintf(" checkpoint=%d", *e.Checkpoint)
			}
			if e.Reason != "" {
				line += " (" + e.Reason + ")"
			}
			if e.ErrorCode != "" {
				line += " " + e.ErrorCode
			}
			fmt.Fprintln(w, line)
		}
	}
	for _, o := range r.Orders {
		fmt.Fprintf(w, "  order %s: state=%s checkpoint=%d changes=%d\n",
			o.EntityID, o.State, o.Checkpoint, len(o.History))
	}
	for _, msg := range r.Errors {
		fmt.Fprintf(w, "  %s\n", msg)
	}
}
