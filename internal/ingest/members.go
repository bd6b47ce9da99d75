package ingest

import (
	"context"
	"fmt"
	"slices"

	"github.com/franklinacm/synapse/internal/rules"
	"github.com/franklinacm/synapse/internal/source"
)

func (in *Ingester) memberJoined(ctx context.Context, m source.Member) error {
	p := Profile(m)
	memberID, err := in.store.UpsertMemberProfile(ctx, p)
	if err != nil {
		return err
	}
	if err := in.store.ReplaceMemberRoles(ctx, memberID, p.Roles); err != nil {
		return err
	}

	at := m.JoinedAt.UTC()
	if m.JoinedAt.IsZero() {
		at = in.clock.Now()
	}
	eventID, err := in.store.RecordMemberJoin(ctx, memberID, at)
	if err != nil {
		return err
	}
	return in.publishMemberEvent(ctx, eventID, nil)
}

func (in *Ingester) memberLeft(ctx context.Context, u source.User) error {
	memberID, err := in.store.UpsertMemberIdentity(ctx, u.ID, u.Name, u.Bot)
	if err != nil {
		return err
	}
	eventID, err := in.store.RecordMemberLeave(ctx, memberID, in.clock.Now())
	if err != nil {
		return err
	}
	return in.publishMemberEvent(ctx, eventID, nil)
}

// memberUpdated refreshes the profile and replaces the member's roles,
// recording a MEMBER_ROLE_CHANGE first when the role set differs.
func (in *Ingester) memberUpdated(ctx context.Context, m source.Member) error {
	p := Profile(m)
	existing, known, err := in.store.MemberByExtID(ctx, p.ExtID)
	if err != nil {
		return err
	}
	var stored []int64
	if known {
		if stored, err = in.store.MemberRoleExtIDs(ctx, existing.ID); err != nil {
			return err
		}
	}

	memberID, err := in.store.UpsertMemberProfile(ctx, p)
	if err != nil {
		return err
	}

	added, removed := diffRoles(stored, RoleIDs(m))
	var eventID int64
	if known && (len(added) > 0 || len(removed) > 0) {
		eventID, err = in.store.RecordRoleChange(ctx, memberID, in.clock.Now(), added, removed)
		if err != nil {
			return err
		}
	}

	if err := in.store.ReplaceMemberRoles(ctx, memberID, p.Roles); err != nil {
		return err
	}
	if eventID == 0 {
		return nil
	}
	return in.publishMemberEvent(ctx, eventID, rules.RoleChangeDetail{Added: added, Removed: removed})
}

// diffRoles returns the ids in observed but not stored, and in stored but
// not observed, each sorted.
func diffRoles(stored, observed []int64) (added, removed []int64) {
	for _, id := range observed {
		if !slices.Contains(stored, id) {
			added = append(added, id)
		}
	}
	for _, id := range stored {
		if !slices.Contains(observed, id) {
			removed = append(removed, id)
		}
	}
	slices.Sort(added)
	slices.Sort(removed)
	return added, removed
}

func (in *Ingester) publishMemberEvent(ctx context.Context, eventID int64, detail rules.Detail) error {
	ev, err := in.store.Event(ctx, eventID)
	if err != nil {
		return err
	}
	member, err := in.store.Member(ctx, ev.MemberID)
	if err != nil {
		return fmt.Errorf("load member %d: %w", ev.MemberID, err)
	}
	in.publish(rules.Build(rules.PathLive, ev, &member, nil, detail))
	return nil
}

// memberRef resolves a member by identity, for events that only carry the
// user (voice, leaves).
func (in *Ingester) memberRef(ctx context.Context, m source.Member) (int64, error) {
	return in.store.UpsertMemberIdentity(ctx, m.User.ID, m.User.Name, m.User.Bot)
}
