package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/franklinacm/synapse/internal/config"
)

// RootOptions holds global flags and the configuration they resolve to.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	DBPath    string
	LogFormat string

	// Config is populated before any subcommand runs.
	Config config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the synapse CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "synapse",
		Short: "Synapse - community activity ledger",
		Long: `Synapse records a Discord guild's activity and rewards it.

Gateway events are normalised into a SQLite ledger, reconciled against the
guild's live state at startup, and evaluated against user-defined rules that
award currency, achievements and announcements.

Configuration comes from SYNAPSE_* environment variables; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.prepare(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "path to SQLite database (overrides SYNAPSE_DB_PATH)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (text|json, overrides SYNAPSE_LOG_FORMAT)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewBackfillCommand(opts))
	cmd.AddCommand(NewRulesCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// prepare loads the environment, applies flag overrides and installs the
// logger.
func (o *RootOptions) prepare(cmd *cobra.Command) error {
	if !slices.Contains(ValidFormats, o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	cfg, err := config.Load()
	if err != nil {
		return WrapExitError(ExitCommandError, "load configuration", err)
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.LogFormat != "" {
		cfg.LogFormat = o.LogFormat
	}
	if o.Verbose {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	level, _ := cfg.Level()
	setupLogging(cmd.ErrOrStderr(), level, cfg.LogFormat)
	o.Config = cfg
	return nil
}
