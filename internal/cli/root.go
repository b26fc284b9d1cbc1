package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/ordersync/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"

	// Logger is installed by the root command before any subcommand runs.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the ordersync CLI.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCommand()
	return cmd
}

// Execute runs ordersync with args, reports a failure in the selected
// format and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, opts := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	f := opts.formatter(cmd)
	if !isValidFormat(opts.Format) {
		f.Format = "text"
	}
	if werr := f.Fail(err); werr != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return GetExitCode(err)
}

func newRootCommand() (*cobra.Command, *RootOptions) {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "ordersync",
		Short: "ordersync - marketplace order-state synchronization",
		Long: `ordersync consumes marketplace lifecycle events, advances a durable
checkpoint per order, and persists order and sub-order state with an
append-only change history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.setLogger(cmd.ErrOrStderr(), level)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewTriggerCommand(opts))
	cmd.AddCommand(NewCheckpointCommand(opts))
	cmd.AddCommand(NewOrderCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd, opts
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// setLogger installs the process logger: text records on stderr, JSON
// records with --format json.
func (o *RootOptions) setLogger(w io.Writer, level slog.Level) {
	handlerOpts := &slog.HandlerOptions{Level: level}
	if o.Format == "json" {
		o.Logger = slog.New(slog.NewJSONHandler(w, handlerOpts))
	} else {
		o.Logger = slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	slog.SetDefault(o.Logger)
}

// loadConfig reads the configuration named by --config. The log level from
// the file applies unless --verbose was given.
func (o *RootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if !o.Verbose {
		if level, err := cfg.Log.SlogLevel(); err == nil {
			o.setLogger(cmd.ErrOrStderr(), level)
		}
	}
	return cfg, nil
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
