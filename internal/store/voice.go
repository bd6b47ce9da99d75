package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/franklinacm/synapse/internal/activity"
)

// OpenVoiceSession appends a VOICE_JOIN event and opens a session for it.
// If the member already has an open session in the channel (a redelivered
// join), nothing is written and opened is false.
func (s *Store) OpenVoiceSession(ctx context.Context, memberID, channelID int64, at time.Time) (eventID int64, opened bool, err error) {
	err = s.withTx(ctx, "open voice session", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT event_id FROM voice_sessions
			WHERE member_id = ? AND channel_id = ? AND left_at IS NULL
		`, memberID, channelID).Scan(&eventID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check open session: %w", err)
		}

		eventID, err = openSession(ctx, tx, activity.EventVoiceJoin, memberID, channelID, at)
		if err != nil {
			return err
		}
		opened = true
		return nil
	})
	return eventID, opened, err
}

// RecordVoiceLeave closes the member's open session in the channel and
// appends a VOICE_LEAVE event. durationSecs is nil when there was no open
// session to close.
func (s *Store) RecordVoiceLeave(ctx context.Context, memberID, channelID int64, at time.Time) (eventID int64, durationSecs *float64, err error) {
	err = s.withTx(ctx, "record voice leave", func(tx *sql.Tx) error {
		var err error
		durationSecs, err = closeSession(ctx, tx, memberID, channelID, at)
		if err != nil {
			return err
		}
		eventID, err = insertEvent(ctx, tx, activity.Event{
			MemberID:  memberID,
			ChannelID: &channelID,
			Type:      activity.EventVoiceLeave,
			CreatedAt: at,
		})
		return err
	})
	return eventID, durationSecs, err
}

// RecordVoiceMove closes the session in fromChannelID, appends a VOICE_MOVE
// event for toChannelID and opens the new session against that event.
func (s *Store) RecordVoiceMove(ctx context.Context, memberID, fromChannelID, toChannelID int64, at time.Time) (int64, error) {
	var eventID int64
	err := s.withTx(ctx, "record voice move", func(tx *sql.Tx) error {
		if _, err := closeSession(ctx, tx, memberID, fromChannelID, at); err != nil {
			return err
		}
		// A redelivered move finds the destination session already open.
		if _, err := closeSession(ctx, tx, memberID, toChannelID, at); err != nil {
			return err
		}
		var err error
		eventID, err = openSession(ctx, tx, activity.EventVoiceMove, memberID, toChannelID, at)
		return err
	})
	return eventID, err
}

// CloseMemberVoiceSessions closes every open session of a member.
func (s *Store) CloseMemberVoiceSessions(ctx context.Context, memberID int64, at time.Time) (int64, error) {
	return closeSessions(ctx, s.db, at, `member_id = ?`, memberID)
}

// CloseOrphanedVoiceSessions closes every session still open. Used at startup
// before sessions are reopened from the live voice state.
func (s *Store) CloseOrphanedVoiceSessions(ctx context.Context, at time.Time) (int64, error) {
	return closeSessions(ctx, s.db, at, `1 = 1`)
}

// OpenVoiceSessions lists open sessions, optionally restricted to one member
// (memberID 0 lists all).
func (s *Store) OpenVoiceSessions(ctx context.Context, memberID int64) ([]activity.VoiceSession, error) {
	query := `
		SELECT id, event_id, member_id, channel_id, joined_at, left_at, duration_secs
		FROM voice_sessions WHERE left_at IS NULL`
	var args []any
	if memberID != 0 {
		query += ` AND member_id = ?`
		args = append(args, memberID)
	}
	return s.readSessions(ctx, query+` ORDER BY id`, args...)
}

// VoiceSessions lists every session of a member, oldest first.
func (s *Store) VoiceSessions(ctx context.Context, memberID int64) ([]activity.VoiceSession, error) {
	return s.readSessions(ctx, `
		SELECT id, event_id, member_id, channel_id, joined_at, left_at, duration_secs
		FROM voice_sessions WHERE member_id = ? ORDER BY id
	`, memberID)
}

func (s *Store) readSessions(ctx context.Context, query string, args ...any) ([]activity.VoiceSession, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("read voice sessions: %w", err)
	}
	defer rows.Close()

	var out []activity.VoiceSession
	for rows.Next() {
		var (
			v        activity.VoiceSession
			joinedAt string
			leftAt   sql.NullString
			duration sql.NullFloat64
		)
		if err := rows.Scan(&v.ID, &v.EventID, &v.MemberID, &v.ChannelID, &joinedAt, &leftAt, &duration); err != nil {
			return nil, fmt.Errorf("scan voice session: %w", err)
		}
		if v.JoinedAt, err = activity.ParseTime(joinedAt); err != nil {
			return nil, fmt.Errorf("scan voice session: %w", err)
		}
		if v.LeftAt, err = timePtr(leftAt); err != nil {
			return nil, fmt.Errorf("scan voice session: %w", err)
		}
		v.DurationSecs = float64Ptr(duration)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read voice sessions: rows: %w", err)
	}
	return out, nil
}

func openSession(ctx context.Context, q querier, et activity.EventType, memberID, channelID int64, at time.Time) (int64, error) {
	eventID, err := insertEvent(ctx, q, activity.Event{
		MemberID:  memberID,
		ChannelID: &channelID,
		Type:      et,
		CreatedAt: at,
	})
	if err != nil {
		return 0, err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO voice_sessions (event_id, member_id, channel_id, joined_at) VALUES (?, ?, ?, ?)
	`, eventID, memberID, channelID, activity.FormatTime(at))
	if err != nil {
		return 0, fmt.Errorf("open voice session: %w", err)
	}
	return eventID, nil
}

func closeSession(ctx context.Context, q querier, memberID, channelID int64, at time.Time) (*float64, error) {
	var duration float64
	err := q.QueryRowContext(ctx, `
		UPDATE voice_sessions
		SET left_at = ?,
			duration_secs = (julianday(?) - julianday(joined_at)) * 86400.0
		WHERE member_id = ? AND channel_id = ? AND left_at IS NULL
		RETURNING duration_secs
	`, activity.FormatTime(at), activity.FormatTime(at), memberID, channelID).Scan(&duration)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("close voice session: %w", err)
	}
	return &duration, nil
}

func closeSessions(ctx context.Context, q querier, at time.Time, where string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE voice_sessions
		SET left_at = ?,
			duration_secs = (julianday(?) - julianday(joined_at)) * 86400.0
		WHERE left_at IS NULL AND `+where,
		append([]any{activity.FormatTime(at), activity.FormatTime(at)}, args...)...)
	if err != nil {
		return 0, fmt.Errorf("close voice sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("close voice sessions: rows affected: %w", err)
	}
	return n, nil
}
