package ingest

import (
	"context"
	"fmt"

	"github.com/franklinacm/synapse/internal/source"
	"github.com/franklinacm/synapse/internal/store"
)

// UpsertChannel writes a channel, cascading to its category, and upserts the
// forum tags it defines. Returns the channel's internal id.
func (in *Ingester) UpsertChannel(ctx context.Context, ch source.Channel) (int64, error) {
	c, cat := channelFrom(ch)
	id, err := in.store.UpsertChannel(ctx, c, cat)
	if err != nil {
		return 0, err
	}
	for _, tag := range ch.Tags {
		if _, err := in.store.UpsertForumTag(ctx, id, forumTagFrom(tag)); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// UpsertThread writes a thread, cascading to its parent channel and
// replacing its applied tags. Returns the thread's internal id.
func (in *Ingester) UpsertThread(ctx context.Context, th source.Thread) (int64, error) {
	parent, cat := channelFrom(th.Parent)
	w := store.ThreadWrite{
		Parent:         parent,
		ParentCategory: cat,
	}
	w.Thread.ExtID = th.ID
	w.Thread.Name = th.Name
	w.Thread.Type = th.Type
	w.Thread.IsArchived = th.Archived
	w.Thread.IsLocked = th.Locked
	w.Thread.IsPinned = th.Pinned
	w.Thread.MessageCount = th.MessageCount
	w.Thread.SlowmodeSecs = th.SlowmodeSecs
	w.Thread.AutoArchiveMinutes = th.AutoArchiveMinutes
	w.Thread.CreatedAt = timeOrNil(th.CreatedAt)

	if th.OwnerID != nil {
		owner, ok, err := in.store.MemberByExtID(ctx, *th.OwnerID)
		if err != nil {
			return 0, fmt.Errorf("resolve thread owner: %w", err)
		}
		if ok {
			w.Thread.OwnerMemberID = &owner.ID
		}
	}
	for _, tag := range th.AppliedTags {
		w.Tags = append(w.Tags, forumTagFrom(tag))
	}
	return in.store.UpsertThread(ctx, w)
}
