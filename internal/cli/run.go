package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/franklinacm/synapse/internal/backfill"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	RulesFile string
	Backfill  bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and record activity",
		Long: `Connect to the configured guild and record its activity.

Startup imports the rules file when one is given, reconciles the store
against the guild's current members, roles, channels, threads and voice
sessions, and only then starts ingesting live events. Each new event is
evaluated against the enabled rules.

Example:
  SYNAPSE_DISCORD_TOKEN=... SYNAPSE_GUILD_ID=... synapse run --rules rules.yaml
  synapse run --db /var/lib/synapse.db --backfill`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.RulesFile, "rules", "", "rules file imported before connecting (overrides SYNAPSE_RULES_FILE)")
	cmd.Flags().BoolVar(&opts.Backfill, "backfill", false, "scan channel history after reconciling (overrides SYNAPSE_BACKFILL_ON_START)")

	return cmd
}

func runService(opts *RunOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	cfg := opts.Config
	if opts.RulesFile != "" {
		cfg.RulesFile = opts.RulesFile
	}
	if opts.Backfill {
		cfg.BackfillOnStart = true
	}
	if err := cfg.ValidateDiscord(); err != nil {
		return f.Fail(ExitCommandError, ErrCodeConfig, "discord is not configured", err, nil)
	}

	st, err := openStore(f, cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, cancel := withSignals(cmd.Context())
	defer cancel()

	if cfg.RulesFile != "" {
		rep, err := importRules(ctx, st, cfg.RulesFile)
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeRules, "import rules", err, nil)
		}
		slog.Info("rules file imported", "path", cfg.RulesFile, "rules", len(rep.Rules))
	}

	p := startPipeline(ctx, st, cfg)
	defer func() {
		if err := p.shutdown(); err != nil {
			slog.Error("rule engine stopped with error", "error", err)
		}
	}()

	gw, err := connect(ctx, f, cfg, p.ingester)
	if err != nil {
		return err
	}
	defer closeGateway(gw)

	rep, err := startupReconcile(ctx, f, st, p.ingester, gw)
	if err != nil {
		return err
	}
	gw.StartDelivery()
	slog.Info("live ingestion started", "members", rep.Members)

	if cfg.BackfillOnStart {
		scanner := backfill.New(gw, p.ingester, st, backfill.WithPageSize(cfg.BackfillPageSize))
		// Runs before the gateway and store are closed.
		defer startBackfill(ctx, scanner).wait()
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Synapse running. Press Ctrl-C to stop.")
	<-ctx.Done()
	if ctx.Err() != context.Canceled {
		return WrapExitError(ExitFailure, "service stopped", ctx.Err())
	}
	slog.Info("service stopped gracefully")
	return nil
}
