package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/franklinacm/synapse/internal/activity"
)

// StatusResult is the output of the status command.
type StatusResult struct {
	GuildID            int64      `json:"guild_id,omitempty"`
	GuildName          string     `json:"guild_name,omitempty"`
	LastReconciledAt   *time.Time `json:"last_reconciled_at,omitempty"`
	ReconcileCount     int64      `json:"reconcile_count"`
	MembersReconciled  int64      `json:"members_reconciled"`
	MessagesBackfilled int64      `json:"messages_backfilled"`
	Rules              int        `json:"rules"`
	EnabledRules       int        `json:"enabled_rules"`
}

func (s StatusResult) String() string {
	var b strings.Builder
	if s.GuildName != "" {
		fmt.Fprintf(&b, "Guild %s (%d)\n", s.GuildName, s.GuildID)
	} else {
		fmt.Fprintln(&b, "Guild not yet reconciled")
	}
	last := "never"
	if s.LastReconciledAt != nil {
		last = activity.FormatTime(*s.LastReconciledAt)
	}
	fmt.Fprintf(&b, "  last reconciled:     %s (%d run(s), %d member(s))\n", last, s.ReconcileCount, s.MembersReconciled)
	fmt.Fprintf(&b, "  messages backfilled: %d\n", s.MessagesBackfilled)
	fmt.Fprintf(&b, "  rules:               %d (%d enabled)", s.Rules, s.EnabledRules)
	return b.String()
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show bookkeeping counters from the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout())
			st, err := openStore(f, rootOpts.Config.DBPath)
			if err != nil {
				return err
			}
			defer closeStore(st)

			ctx := cmd.Context()
			stats, err := st.Statistics(ctx)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "read statistics", err, nil)
			}
			guild, _, err := st.GuildMetadata(ctx)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "read guild metadata", err, nil)
			}
			stored, err := st.Rules(ctx)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeStore, "read rules", err, nil)
			}

			result := StatusResult{
				GuildID:            guild.ExtID,
				GuildName:          guild.Name,
				LastReconciledAt:   stats.LastReconciledAt,
				ReconcileCount:     stats.ReconcileCount,
				MembersReconciled:  stats.MembersReconciled,
				MessagesBackfilled: stats.MessagesBackfilled,
				Rules:              len(stored),
			}
			for _, r := range stored {
				if r.Enabled {
					result.EnabledRules++
				}
			}
			return f.Success(result)
		},
	}
}
