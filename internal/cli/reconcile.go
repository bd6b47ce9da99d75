package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/franklinacm/synapse/internal/ingest"
	"github.com/franklinacm/synapse/internal/reconcile"
	"github.com/franklinacm/synapse/internal/rules"
)

// ReconcileResult is the output of the reconcile command.
type ReconcileResult struct {
	Members             int      `json:"members"`
	RolesDeactivated    int64    `json:"roles_deactivated"`
	SessionsClosed      int64    `json:"sessions_closed"`
	SessionsOpened      int      `json:"sessions_opened"`
	ChannelsDeactivated int64    `json:"channels_deactivated"`
	ThreadsUpserted     int      `json:"threads_upserted"`
	ThreadsDeactivated  int64    `json:"threads_deactivated"`
	FailedPhases        []string `json:"failed_phases,omitempty"`
}

func reconcileResult(r reconcile.Report) ReconcileResult {
	return ReconcileResult{
		Members:             r.Members,
		RolesDeactivated:    r.RolesDeactivated,
		SessionsClosed:      r.SessionsClosed,
		SessionsOpened:      r.SessionsOpened,
		ChannelsDeactivated: r.ChannelsDeactivated,
		ThreadsUpserted:     r.ThreadsUpserted,
		ThreadsDeactivated:  r.ThreadsDeactivated,
		FailedPhases:        r.FailedPhases,
	}
}

func (r ReconcileResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Reconciled %d member(s)\n", r.Members)
	fmt.Fprintf(&b, "  roles deactivated:    %d\n", r.RolesDeactivated)
	fmt.Fprintf(&b, "  sessions closed:      %d\n", r.SessionsClosed)
	fmt.Fprintf(&b, "  sessions opened:      %d\n", r.SessionsOpened)
	fmt.Fprintf(&b, "  channels deactivated: %d\n", r.ChannelsDeactivated)
	fmt.Fprintf(&b, "  threads upserted:     %d\n", r.ThreadsUpserted)
	fmt.Fprintf(&b, "  threads deactivated:  %d", r.ThreadsDeactivated)
	if len(r.FailedPhases) > 0 {
		fmt.Fprintf(&b, "\n  failed phases:        %s", strings.Join(r.FailedPhases, ", "))
	}
	return b.String()
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Bring the store in line with the guild's current state",
		Long: `Fetch the guild's members, roles, channels, threads and voice states
once and apply them to the store, then exit. Entities missing from the guild
are deactivated, never deleted. No rules are evaluated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(rootOpts, cmd)
		},
	}
}

func runReconcile(opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout())
	cfg := opts.Config

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

	in := ingest.New(st, nil)
	rep, err := reconcile.New(st, in, rules.SystemClock{}).Run(ctx, gw)
	result := reconcileResult(rep)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeDiscord, "reconciliation incomplete", err, result)
	}
	return f.Success(result)
}
