package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/franklinacm/synapse/internal/backfill"
	"github.com/franklinacm/synapse/internal/config"
)

// BackfillOptions holds flags for the backfill command.
type BackfillOptions struct {
	*RootOptions
	PageSize int
}

// BackfillResult is the output of the backfill command.
type BackfillResult struct {
	Channels int `json:"channels"`
	Pages    int `json:"pages"`
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Failed   int `json:"failed"`
}

func (r BackfillResult) String() string {
	return fmt.Sprintf("Scanned %d channel(s) in %d page(s): %d new, %d updated, %d failed",
		r.Channels, r.Pages, r.Created, r.Updated, r.Failed)
}

// NewBackfillCommand creates the backfill command.
func NewBackfillCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackfillOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Import message history",
		Long: `Page through every text channel's history from its last checkpoint and
store the messages. New messages are evaluated against rules that apply to
historic events, using each message's own timestamp as the current time.
Interrupted scans resume where they stopped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackfill(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, fmt.Sprintf("messages per request, 1..%d (overrides SYNAPSE_BACKFILL_PAGE_SIZE)", config.MaxBackfillPageSize))

	return cmd
}

func runBackfill(opts *BackfillOptions, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout())
	cfg := opts.Config
	if opts.PageSize != 0 {
		cfg.BackfillPageSize = opts.PageSize
		if err := cfg.Validate(); err != nil {
			return f.Fail(ExitCommandError, ErrCodeConfig, "invalid page size", err, nil)
		}
	}

	st, err := openStore(f, cfg.DBPath)
	if err != nil {
		return err
	}
	defer closeStore(st)

	ctx, cancel := withSignals(cmd.Context())
	defer cancel()

	gw, err := connect(ctx, f, cfg, nil)
	if err != nil {
		return err
	}
	defer closeGateway(gw)

	p := startPipeline(ctx, st, cfg)
	rep, scanErr := backfill.New(gw, p.ingester, st, backfill.WithPageSize(cfg.BackfillPageSize)).Run(ctx)
	engineErr := p.shutdown()

	result := BackfillResult(rep)
	if scanErr != nil {
		return f.Fail(ExitFailure, ErrCodeDiscord, "backfill incomplete", scanErr, result)
	}
	if engineErr != nil {
		return f.Fail(ExitFailure, ErrCodeStore, "rule evaluation failed", engineErr, result)
	}
	return f.Success(result)
}
