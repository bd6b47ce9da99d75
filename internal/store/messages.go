package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/franklinacm/synapse/internal/activity"
)

// MessageWrite is one message occurrence as the normalizer resolved it:
// internal member/channel ids, the detail row, and its child collections.
type MessageWrite struct {
	MemberID    int64
	ChannelID   int64
	CreatedAt   time.Time
	Message     activity.Message
	Attachments []activity.Attachment
	Reactions   []activity.Reaction
}

// PersistResult reports what PersistMessage wrote.
// Created is false when the message was already stored and only its mutable
// fields were refreshed; EventID then names the original Event.
type PersistResult struct {
	EventID   int64
	MessageID int64
	Created   bool
}

// PersistMessage atomically writes a message occurrence.
//
// On first sight it inserts the Event and the message detail row. When the
// external message id is already stored, the existing Event is reused and the
// mutable detail columns are overwritten in place. Non-empty attachment and
// reaction sets replace the stored sets wholesale. Any failure rolls back the
// whole write.
func (s *Store) PersistMessage(ctx context.Context, w MessageWrite) (PersistResult, error) {
	var res PersistResult
	err := s.withTx(ctx, "persist message", func(tx *sql.Tx) error {
		m := w.Message

		var existingEvent int64
		err := tx.QueryRowContext(ctx,
			`SELECT event_id FROM message_events WHERE ext_id = ?`, m.ExtID).Scan(&existingEvent)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			channelID := w.ChannelID
			res.EventID, err = insertEvent(ctx, tx, activity.Event{
				MemberID:  w.MemberID,
				ChannelID: &channelID,
				Type:      activity.EventMessageCreate,
				CreatedAt: w.CreatedAt,
			})
			if err != nil {
				return err
			}
			res.Created = true
		case err != nil:
			return fmt.Errorf("look up message %d: %w", m.ExtID, err)
		default:
			res.EventID = existingEvent
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO message_events
			(event_id, ext_id, thread_id, type, content, content_length, edited_at, reply_to_ext_id,
			 started_thread, author_is_bot, is_webhook, has_attachments, attachment_count, reaction_count,
			 mention_user_count, mention_role_count, mention_channel_count, mention_everyone,
			 is_tts, is_pinned, has_stickers, has_poll, embed_count, is_voice_message, flags)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(ext_id) DO UPDATE SET
				content = excluded.content,
				content_length = excluded.content_length,
				edited_at = excluded.edited_at,
				has_attachments = excluded.has_attachments,
				attachment_count = excluded.attachment_count,
				reaction_count = excluded.reaction_count,
				mention_user_count = excluded.mention_user_count,
				mention_role_count = excluded.mention_role_count,
				mention_channel_count = excluded.mention_channel_count,
				mention_everyone = excluded.mention_everyone,
				is_tts = excluded.is_tts,
				is_pinned = excluded.is_pinned,
				has_stickers = excluded.has_stickers,
				has_poll = excluded.has_poll,
				embed_count = excluded.embed_count,
				is_voice_message = excluded.is_voice_message,
				flags = excluded.flags
			RETURNING id
		`,
			res.EventID, m.ExtID, nullInt64(m.ThreadID), m.Type, m.Content, m.ContentLength,
			nullTime(m.EditedAt), nullInt64(m.ReplyToExtID), boolToInt(m.StartedThread),
			boolToInt(m.AuthorIsBot), boolToInt(m.IsWebhook), boolToInt(m.HasAttachments),
			m.AttachmentCount, m.ReactionCount, m.MentionUsers, m.MentionRoles, m.MentionChannels,
			boolToInt(m.MentionEveryone), boolToInt(m.IsTTS), boolToInt(m.IsPinned),
			boolToInt(m.HasStickers), boolToInt(m.HasPoll), m.EmbedCount,
			boolToInt(m.IsVoiceMessage), m.Flags,
		).Scan(&res.MessageID)
		if err != nil {
			return fmt.Errorf("upsert message %d: %w", m.ExtID, err)
		}

		if len(w.Attachments) > 0 {
			if err := replaceAttachments(ctx, tx, res.MessageID, w.Attachments); err != nil {
				return err
			}
		}
		if len(w.Reactions) > 0 {
			if err := replaceReactions(ctx, tx, res.MessageID, w.Reactions); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return PersistResult{}, err
	}
	return res, nil
}

func replaceAttachments(ctx context.Context, tx *sql.Tx, messageID int64, atts []activity.Attachment) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM message_attachments WHERE message_event_id = ?`, messageID); err != nil {
		return fmt.Errorf("clear attachments: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO message_attachments
		(message_event_id, ext_id, filename, description, content_type, size, width, height, duration_secs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare attachment insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range atts {
		_, err := stmt.ExecContext(ctx, messageID, a.ExtID, a.Filename, nullString(a.Description),
			nullString(a.ContentType), a.Size, a.Width, a.Height, nullFloat64(a.DurationSecs))
		if err != nil {
			return fmt.Errorf("insert attachment %d: %w", a.ExtID, err)
		}
	}
	return nil
}

func replaceReactions(ctx context.Context, tx *sql.Tx, messageID int64, reactions []activity.Reaction) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM message_reactions WHERE message_event_id = ?`, messageID); err != nil {
		return fmt.Errorf("clear reactions: %w", err)
	}
	for _, r := range reactions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO message_reactions (message_event_id, emoji_name, emoji_ext_id, count, burst_count)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(message_event_id, emoji_name, emoji_ext_id) DO UPDATE SET
				count = excluded.count,
				burst_count = excluded.burst_count
		`, messageID, r.EmojiName, emojiKey(r.EmojiExtID), max(r.Count, 0), r.BurstCount)
		if err != nil {
			return fmt.Errorf("insert reaction %s: %w", r.EmojiName, err)
		}
	}
	return nil
}

// Message reads a message detail row by external id.
func (s *Store) Message(ctx context.Context, extID int64) (activity.Message, bool, error) {
	var (
		m                                               activity.Message
		threadID, replyTo                               sql.NullInt64
		editedAt                                        sql.NullString
		startedThread, isBot, webhook, hasAtt, everyone int
		tts, pinned, stickers, poll, voice              int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, ext_id, thread_id, type, content, content_length, edited_at, reply_to_ext_id,
			started_thread, author_is_bot, is_webhook, has_attachments, attachment_count, reaction_count,
			mention_user_count, mention_role_count, mention_channel_count, mention_everyone,
			is_tts, is_pinned, has_stickers, has_poll, embed_count, is_voice_message, flags
		FROM message_events WHERE ext_id = ?
	`, extID).Scan(&m.ID, &m.EventID, &m.ExtID, &threadID, &m.Type, &m.Content, &m.ContentLength,
		&editedAt, &replyTo, &startedThread, &isBot, &webhook, &hasAtt, &m.AttachmentCount,
		&m.ReactionCount, &m.MentionUsers, &m.MentionRoles, &m.MentionChannels, &everyone,
		&tts, &pinned, &stickers, &poll, &m.EmbedCount, &voice, &m.Flags)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.Message{}, false, nil
	}
	if err != nil {
		return activity.Message{}, false, fmt.Errorf("read message %d: %w", extID, err)
	}
	m.ThreadID = int64Ptr(threadID)
	m.ReplyToExtID = int64Ptr(replyTo)
	if m.EditedAt, err = timePtr(editedAt); err != nil {
		return activity.Message{}, false, fmt.Errorf("read message %d: %w", extID, err)
	}
	m.StartedThread = startedThread == 1
	m.AuthorIsBot = isBot == 1
	m.IsWebhook = webhook == 1
	m.HasAttachments = hasAtt == 1
	m.MentionEveryone = everyone == 1
	m.IsTTS = tts == 1
	m.IsPinned = pinned == 1
	m.HasStickers = stickers == 1
	m.HasPoll = poll == 1
	m.IsVoiceMessage = voice == 1
	return m, true, nil
}

// CountMessages counts stored message detail rows with the given external id.
func (s *Store) CountMessages(ctx context.Context, extID int64) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM message_events WHERE ext_id = ?`, extID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count message %d: %w", extID, err)
	}
	return n, nil
}

// Attachments returns a message's attachments ordered by external id.
func (s *Store) Attachments(ctx context.Context, messageID int64) ([]activity.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_event_id, ext_id, filename, description, content_type, size,
			COALESCE(width, 0), COALESCE(height, 0), duration_secs
		FROM message_attachments WHERE message_event_id = ?
		ORDER BY ext_id, id
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("read attachments: %w", err)
	}
	defer rows.Close()

	var out []activity.Attachment
	for rows.Next() {
		var (
			a                 activity.Attachment
			desc, contentType sql.NullString
			duration          sql.NullFloat64
		)
		if err := rows.Scan(&a.ID, &a.MessageID, &a.ExtID, &a.Filename, &desc, &contentType,
			&a.Size, &a.Width, &a.Height, &duration); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		a.Description = desc.String
		a.ContentType = contentType.String
		a.DurationSecs = float64Ptr(duration)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read attachments: rows: %w", err)
	}
	return out, nil
}

// Reactions returns a message's reaction counts ordered by emoji.
func (s *Store) Reactions(ctx context.Context, messageID int64) ([]activity.Reaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_event_id, emoji_name, emoji_ext_id, count, burst_count
		FROM message_reactions WHERE message_event_id = ?
		ORDER BY emoji_name, emoji_ext_id
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("read reactions: %w", err)
	}
	defer rows.Close()

	var out []activity.Reaction
	for rows.Next() {
		var (
			r     activity.Reaction
			emoji int64
		)
		if err := rows.Scan(&r.ID, &r.MessageID, &r.EmojiName, &emoji, &r.Count, &r.BurstCount); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		if emoji != 0 {
			r.EmojiExtID = &emoji
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read reactions: rows: %w", err)
	}
	return out, nil
}

// IncrementReaction adds one to the emoji's count on the message identified by
// its external id, creating the row at 1. Returns false when the message is
// not stored.
func (s *Store) IncrementReaction(ctx context.Context, messageExtID int64, emojiName string, emojiExtID *int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO message_reactions (message_event_id, emoji_name, emoji_ext_id, count)
		SELECT id, ?, ?, 1 FROM message_events WHERE ext_id = ?
		ON CONFLICT(message_event_id, emoji_name, emoji_ext_id) DO UPDATE SET count = count + 1
	`, emojiName, emojiKey(emojiExtID), messageExtID)
	if err != nil {
		return false, fmt.Errorf("increment reaction %s on message %d: %w", emojiName, messageExtID, err)
	}
	return affected(res)
}

// DecrementReaction subtracts one from the emoji's count, never going below
// zero. Returns false when no such reaction row exists.
func (s *Store) DecrementReaction(ctx context.Context, messageExtID int64, emojiName string, emojiExtID *int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE message_reactions
		SET count = MAX(count - 1, 0)
		WHERE emoji_name = ? AND emoji_ext_id = ?
		  AND message_event_id = (SELECT id FROM message_events WHERE ext_id = ?)
	`, emojiName, emojiKey(emojiExtID), messageExtID)
	if err != nil {
		return false, fmt.Errorf("decrement reaction %s on message %d: %w", emojiName, messageExtID, err)
	}
	return affected(res)
}

func emojiKey(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
