package ingest

import (
	"context"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/franklinacm/synapse/internal/activity"
	"github.com/franklinacm/synapse/internal/rules"
	"github.com/franklinacm/synapse/internal/source"
	"github.com/franklinacm/synapse/internal/store"
)

// IngestMessage persists m and, when it is new, publishes its rule context
// on path. The author is upserted by identity only, so a backfilled message
// from a departed member does not reactivate them.
func (in *Ingester) IngestMessage(ctx context.Context, m source.Message, path rules.Path) (store.PersistResult, error) {
	memberID, err := in.store.UpsertMemberIdentity(ctx, m.Author.User.ID, m.Author.User.Name, m.Author.User.Bot)
	if err != nil {
		return store.PersistResult{}, err
	}

	channelID, err := in.UpsertChannel(ctx, m.Channel)
	if err != nil {
		return store.PersistResult{}, err
	}

	detail := messageFrom(m)
	if m.Thread != nil {
		threadID, err := in.UpsertThread(ctx, *m.Thread)
		if err != nil {
			return store.PersistResult{}, err
		}
		detail.ThreadID = &threadID
	}

	attachments := attachmentsFrom(m.Attachments)
	res, err := in.store.PersistMessage(ctx, store.MessageWrite{
		MemberID:    memberID,
		ChannelID:   channelID,
		CreatedAt:   m.CreatedAt.UTC(),
		Message:     detail,
		Attachments: attachments,
		Reactions:   reactionsFrom(m.Reactions),
	})
	if err != nil {
		return store.PersistResult{}, err
	}
	if !res.Created {
		// An edit or redelivery: the event was evaluated when first seen.
		return res, nil
	}

	rc, err := in.messageContext(ctx, path, res, detail, attachments)
	if err != nil {
		return res, err
	}
	in.publish(rc)
	return res, nil
}

func (in *Ingester) messageContext(ctx context.Context, path rules.Path, res store.PersistResult, detail activity.Message, attachments []activity.Attachment) (*rules.Context, error) {
	ev, err := in.store.Event(ctx, res.EventID)
	if err != nil {
		return nil, err
	}
	member, err := in.store.Member(ctx, ev.MemberID)
	if err != nil {
		return nil, err
	}
	var channel *activity.ChannelState
	if ev.ChannelID != nil {
		state, ok, err := in.store.ChannelState(ctx, *ev.ChannelID)
		if err != nil {
			return nil, fmt.Errorf("channel state: %w", err)
		}
		if ok {
			channel = &state
		}
	}

	md := rules.MessageDetail{Message: detail}
	if len(attachments) > 0 {
		md.FirstAttachment = &attachments[0]
	}
	return rules.Build(path, ev, &member, channel, md), nil
}

// messageFrom builds the detail row. Content is stored NFC-normalized and
// its length counted in code points.
func messageFrom(m source.Message) activity.Message {
	content := norm.NFC.String(m.Content)
	reactions := 0
	for _, r := range m.Reactions {
		reactions += r.Count
	}
	return activity.Message{
		ExtID:           m.ID,
		Type:            m.Type,
		Content:         content,
		ContentLength:   utf8.RuneCountInString(content),
		EditedAt:        m.EditedAt,
		ReplyToExtID:    m.ReplyToID,
		StartedThread:   m.StartedThread,
		AuthorIsBot:     m.Author.User.Bot,
		IsWebhook:       m.Webhook,
		HasAttachments:  len(m.Attachments) > 0,
		AttachmentCount: len(m.Attachments),
		ReactionCount:   reactions,
		MentionUsers:    m.MentionUsers,
		MentionRoles:    m.MentionRoles,
		MentionChannels: m.MentionChannels,
		MentionEveryone: m.MentionEveryone,
		IsTTS:           m.TTS,
		IsPinned:        m.Pinned,
		HasStickers:     m.HasStickers,
		HasPoll:         m.HasPoll,
		EmbedCount:      m.EmbedCount,
		IsVoiceMessage:  m.IsVoiceMessage,
		Flags:           m.Flags,
	}
}
