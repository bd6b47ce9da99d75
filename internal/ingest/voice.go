package ingest

import (
	"context"
	"fmt"

	"github.com/franklinacm/synapse/internal/activity"
	"github.com/franklinacm/synapse/internal/rules"
	"github.com/franklinacm/synapse/internal/source"
)

// voiceStateChanged maps a connection transition to join, leave or move.
// Changes that keep the member in the same channel (mute, deafen) are
// ignored.
func (in *Ingester) voiceStateChanged(ctx context.Context, e source.VoiceStateChanged) error {
	switch {
	case e.Before == nil && e.After == nil:
		return nil
	case e.Before != nil && e.After != nil && e.Before.ID == e.After.ID:
		return nil
	}

	memberID, err := in.memberRef(ctx, e.Member)
	if err != nil {
		return err
	}
	now := in.clock.Now()

	switch {
	case e.Before == nil:
		channelID, err := in.UpsertChannel(ctx, *e.After)
		if err != nil {
			return err
		}
		eventID, opened, err := in.store.OpenVoiceSession(ctx, memberID, channelID, now)
		if err != nil {
			return err
		}
		if !opened {
			return nil
		}
		return in.publishVoiceEvent(ctx, eventID, rules.VoiceDetail{ChannelExtID: e.After.ID})

	case e.After == nil:
		channelID, err := in.UpsertChannel(ctx, *e.Before)
		if err != nil {
			return err
		}
		eventID, duration, err := in.store.RecordVoiceLeave(ctx, memberID, channelID, now)
		if err != nil {
			return err
		}
		return in.publishVoiceEvent(ctx, eventID, rules.VoiceDetail{ChannelExtID: e.Before.ID, DurationSecs: duration})

	default:
		fromID, err := in.UpsertChannel(ctx, *e.Before)
		if err != nil {
			return err
		}
		toID, err := in.UpsertChannel(ctx, *e.After)
		if err != nil {
			return err
		}
		eventID, err := in.store.RecordVoiceMove(ctx, memberID, fromID, toID, now)
		if err != nil {
			return err
		}
		return in.publishVoiceEvent(ctx, eventID, rules.VoiceDetail{ChannelExtID: e.After.ID})
	}
}

func (in *Ingester) publishVoiceEvent(ctx context.Context, eventID int64, detail rules.VoiceDetail) error {
	ev, err := in.store.Event(ctx, eventID)
	if err != nil {
		return err
	}
	member, err := in.store.Member(ctx, ev.MemberID)
	if err != nil {
		return fmt.Errorf("load member %d: %w", ev.MemberID, err)
	}
	var channel *activity.ChannelState
	if ev.ChannelID != nil {
		state, ok, err := in.store.ChannelState(ctx, *ev.ChannelID)
		if err != nil {
			return err
		}
		if ok {
			channel = &state
		}
	}
	in.publish(rules.Build(rules.PathLive, ev, &member, channel, detail))
	return nil
}
