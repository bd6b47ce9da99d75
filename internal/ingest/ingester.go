package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/franklinacm/synapse/internal/rules"
	"github.com/franklinacm/synapse/internal/source"
	"github.com/franklinacm/synapse/internal/store"
)

// Publisher receives rule contexts for committed events.
// *rules.Engine satisfies it.
type Publisher interface {
	Publish(rc *rules.Context) bool
}

// Ingester applies source events to the store.
type Ingester struct {
	store     *store.Store
	publisher Publisher
	clock     rules.Clock
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithClock sets the clock used to timestamp events that carry no time of
// their own (leaves, role changes, voice transitions). Default: rules.SystemClock.
func WithClock(c rules.Clock) Option {
	return func(in *Ingester) {
		in.clock = c
	}
}

// New creates an Ingester writing to s and publishing to p.
// p may be nil, in which case nothing is published.
func New(s *store.Store, p Publisher, opts ...Option) *Ingester {
	in := &Ingester{
		store:     s,
		publisher: p,
		clock:     rules.SystemClock{},
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest applies one live event. Errors abandon this event only; callers
// log them and move on.
func (in *Ingester) Ingest(ctx context.Context, ev source.Event) error {
	var err error
	switch e := ev.(type) {
	case source.MessageCreated:
		_, err = in.IngestMessage(ctx, e.Message, rules.PathLive)
	case source.MemberJoined:
		err = in.memberJoined(ctx, e.Member)
	case source.MemberLeft:
		err = in.memberLeft(ctx, e.User)
	case source.MemberUpdated:
		err = in.memberUpdated(ctx, e.Member)
	case source.VoiceStateChanged:
		err = in.voiceStateChanged(ctx, e)
	case source.CategoryUpserted:
		_, err = in.store.UpsertCategory(ctx, categoryFrom(e.Category))
	case source.ChannelUpserted:
		_, err = in.UpsertChannel(ctx, e.Channel)
	case source.ChannelDeleted:
		err = in.store.MarkChannelInactive(ctx, e.ID)
	case source.ThreadUpserted:
		_, err = in.UpsertThread(ctx, e.Thread)
	case source.ThreadDeleted:
		err = in.store.MarkThreadInactive(ctx, e.ID)
	case source.ReactionAdded:
		err = in.reaction(ctx, e.MessageID, e.Emoji, true)
	case source.ReactionRemoved:
		err = in.reaction(ctx, e.MessageID, e.Emoji, false)
	default:
		return fmt.Errorf("ingest: unsupported event %T", ev)
	}
	if err != nil {
		return fmt.Errorf("ingest %s: %w", ev.Kind(), err)
	}
	return nil
}

func (in *Ingester) publish(rc *rules.Context) {
	if in.publisher == nil {
		return
	}
	in.publisher.Publish(rc)
}

func (in *Ingester) reaction(ctx context.Context, messageID int64, emoji source.Emoji, add bool) error {
	var (
		found bool
		err   error
	)
	if add {
		found, err = in.store.IncrementReaction(ctx, messageID, emoji.Name, emoji.ID)
	} else {
		found, err = in.store.DecrementReaction(ctx, messageID, emoji.Name, emoji.ID)
	}
	if err != nil {
		return err
	}
	if !found {
		slog.Debug("reaction on unknown message", "message", messageID, "emoji", emoji.Name)
	}
	return nil
}
