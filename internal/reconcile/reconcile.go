// Package reconcile brings stored guild state into agreement with a fresh
// snapshot at startup.
//
// Phases run in a fixed order and each is idempotent. A failing phase is
// logged and skipped; the next phase still runs, and the live handlers keep
// that entity class current until the next restart.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/franklinacm/synapse/internal/activity"
	"github.com/franklinacm/synapse/internal/ingest"
	"github.com/franklinacm/synapse/internal/rules"
	"github.com/franklinacm/synapse/internal/source"
	"github.com/franklinacm/synapse/internal/store"
)

// Phase names, in execution order.
const (
	PhaseGuild    = "guild"
	PhaseMembers  = "members"
	PhaseRoles    = "roles"
	PhaseVoice    = "voice"
	PhaseChannels = "channels"
	PhaseThreads  = "threads"
)

// ErrSnapshot marks a failure to fetch the snapshot. Nothing was reconciled.
var ErrSnapshot = errors.New("fetch snapshot")

// Report summarizes one reconciliation.
type Report struct {
	Members             int
	RolesDeactivated    int64
	SessionsClosed      int64
	SessionsOpened      int
	ChannelsDeactivated int64
	ThreadsUpserted     int
	ThreadsDeactivated  int64
	FailedPhases        []string
}

// Reconciler applies snapshots to the store.
type Reconciler struct {
	store    *store.Store
	ingester *ingest.Ingester
	clock    rules.Clock
}

// New creates a Reconciler. Channel and thread upserts go through in so they
// cascade exactly as live events do.
func New(s *store.Store, in *ingest.Ingester, clock rules.Clock) *Reconciler {
	if clock == nil {
		clock = rules.SystemClock{}
	}
	return &Reconciler{store: s, ingester: in, clock: clock}
}

// Run fetches a snapshot and reconciles it. A fetch failure wraps
// ErrSnapshot and nothing is mutated.
func (r *Reconciler) Run(ctx context.Context, fetcher source.SnapshotFetcher) (Report, error) {
	snap, err := fetcher.FetchSnapshot(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	return r.Reconcile(ctx, snap)
}

// Reconcile runs every phase against snap. The returned error joins the
// failures of individual phases; the report covers the phases that ran.
func (r *Reconciler) Reconcile(ctx context.Context, snap *source.Snapshot) (Report, error) {
	now := r.clock.Now()
	var rep Report

	phases := []struct {
		name string
		fn   func(context.Context, *source.Snapshot, time.Time, *Report) error
	}{
		{PhaseGuild, r.guild},
		{PhaseMembers, r.members},
		{PhaseRoles, r.roles},
		{PhaseVoice, r.voice},
		{PhaseChannels, r.channels},
		{PhaseThreads, r.threads},
	}

	var errs []error
	for _, p := range phases {
		start := time.Now()
		if err := p.fn(ctx, snap, now, &rep); err != nil {
			slog.Error("reconcile phase failed", "phase", p.name, "error", err)
			rep.FailedPhases = append(rep.FailedPhases, p.name)
			errs = append(errs, fmt.Errorf("reconcile %s: %w", p.name, err))
			continue
		}
		slog.Debug("reconcile phase done", "phase", p.name, "elapsed", time.Since(start))
	}

	if err := r.store.RecordReconciliation(ctx, now, rep.Members); err != nil {
		errs = append(errs, err)
	}

	slog.Info("reconciliation finished",
		"members", rep.Members,
		"roles_deactivated", rep.RolesDeactivated,
		"sessions_closed", rep.SessionsClosed,
		"sessions_opened", rep.SessionsOpened,
		"channels_deactivated", rep.ChannelsDeactivated,
		"threads", rep.ThreadsUpserted,
		"threads_deactivated", rep.ThreadsDeactivated,
		"failed", len(rep.FailedPhases))
	return rep, errors.Join(errs...)
}

func (r *Reconciler) guild(ctx context.Context, snap *source.Snapshot, now time.Time, _ *Report) error {
	g := activity.GuildMetadata{ExtID: snap.Guild.ID, Name: snap.Guild.Name}
	if !snap.Guild.CreatedAt.IsZero() {
		created := snap.Guild.CreatedAt.UTC()
		g.CreatedAt = &created
	}
	return r.store.UpsertGuildMetadata(ctx, g, now)
}

// members deactivates everyone and reactivates exactly the fetched set in
// one transaction, replacing each member's roles.
func (r *Reconciler) members(ctx context.Context, snap *source.Snapshot, _ time.Time, rep *Report) error {
	profiles := make([]activity.MemberProfile, 0, len(snap.Members))
	for _, m := range snap.Members {
		profiles = append(profiles, ingest.Profile(m))
	}
	if err := r.store.ReplaceActiveMembers(ctx, profiles); err != nil {
		return err
	}
	rep.Members = len(profiles)
	return nil
}

func (r *Reconciler) roles(ctx context.Context, snap *source.Snapshot, _ time.Time, rep *Report) error {
	observed := make([]int64, 0, len(snap.Roles))
	for _, role := range snap.Roles {
		if _, err := r.store.UpsertRole(ctx, role.ID, role.Name); err != nil {
			return err
		}
		observed = append(observed, role.ID)
	}
	stored, err := r.store.ActiveRoleExtIDs(ctx)
	if err != nil {
		return err
	}
	n, err := r.store.DeactivateRoles(ctx, difference(stored, observed))
	if err != nil {
		return err
	}
	rep.RolesDeactivated = n
	return nil
}

// voice closes every open session as orphaned, then opens one session per
// member currently connected.
func (r *Reconciler) voice(ctx context.Context, snap *source.Snapshot, now time.Time, rep *Report) error {
	closed, err := r.store.CloseOrphanedVoiceSessions(ctx, now)
	if err != nil {
		return err
	}
	rep.SessionsClosed = closed

	for _, vs := range snap.VoiceStates {
		memberID, err := r.store.UpsertMemberIdentity(ctx, vs.Member.User.ID, vs.Member.User.Name, vs.Member.User.Bot)
		if err != nil {
			return err
		}
		channelID, err := r.ingester.UpsertChannel(ctx, vs.Channel)
		if err != nil {
			return err
		}
		_, opened, err := r.store.OpenVoiceSession(ctx, memberID, channelID, now)
		if err != nil {
			return err
		}
		if opened {
			rep.SessionsOpened++
		}
	}
	return nil
}

func (r *Reconciler) channels(ctx context.Context, snap *source.Snapshot, _ time.Time, rep *Report) error {
	categoryIDs := make([]int64, 0, len(snap.Categories))
	for _, c := range snap.Categories {
		categoryIDs = append(categoryIDs, c.ID)
	}
	channelIDs := make([]int64, 0, len(snap.Channels))
	for _, ch := range snap.Channels {
		channelIDs = append(channelIDs, ch.ID)
	}

	storedChannels, err := r.store.ActiveChannelExtIDs(ctx)
	if err != nil {
		return err
	}
	n, err := r.store.DeactivateChannels(ctx, difference(storedChannels, channelIDs))
	if err != nil {
		return err
	}
	rep.ChannelsDeactivated = n

	storedCategories, err := r.store.ActiveCategoryExtIDs(ctx)
	if err != nil {
		return err
	}
	if _, err := r.store.DeactivateCategories(ctx, difference(storedCategories, categoryIDs)); err != nil {
		return err
	}

	for _, c := range snap.Categories {
		if err := r.ingester.Ingest(ctx, source.CategoryUpserted{Category: c}); err != nil {
			return err
		}
	}
	for _, ch := range snap.Channels {
		if _, err := r.ingester.UpsertChannel(ctx, ch); err != nil {
			return err
		}
	}
	return nil
}

// threads upserts every thread the snapshot enumerates, with their applied
// forum tags, then deactivates previously active threads it did not list.
func (r *Reconciler) threads(ctx context.Context, snap *source.Snapshot, _ time.Time, rep *Report) error {
	stored, err := r.store.ActiveThreadExtIDs(ctx)
	if err != nil {
		return err
	}

	observed := make([]int64, 0, len(snap.Threads))
	for _, th := range snap.Threads {
		if _, err := r.ingester.UpsertThread(ctx, th); err != nil {
			return err
		}
		observed = append(observed, th.ID)
		rep.ThreadsUpserted++
	}

	n, err := r.store.DeactivateThreads(ctx, difference(stored, observed))
	if err != nil {
		return err
	}
	rep.ThreadsDeactivated = n
	return nil
}

// difference returns the ids in a that are not in b.
func difference(a, b []int64) []int64 {
	var out []int64
	for _, id := range a {
		if !slices.Contains(b, id) {
			out = append(out, id)
		}
	}
	return out
}
