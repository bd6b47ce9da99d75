package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/franklinacm/synapse/internal/activity"
)

// InsertEvent appends an Event row and returns its id.
func (s *Store) InsertEvent(ctx context.Context, ev activity.Event) (int64, error) {
	return insertEvent(ctx, s.db, ev)
}

func insertEvent(ctx context.Context, q querier, ev activity.Event) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO events (member_id, channel_id, event_type, created_at)
		VALUES (?, ?, ?, ?)
	`, ev.MemberID, nullInt64(ev.ChannelID), string(ev.Type), activity.FormatTime(ev.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert %s event: %w", ev.Type, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert %s event: last insert id: %w", ev.Type, err)
	}
	return id, nil
}

// Event reads an Event by id. Returns sql.ErrNoRows (wrapped) if absent.
func (s *Store) Event(ctx context.Context, id int64) (activity.Event, error) {
	var (
		ev        activity.Event
		channelID sql.NullInt64
		eventType string
		createdAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, member_id, channel_id, event_type, created_at FROM events WHERE id = ?
	`, id).Scan(&ev.ID, &ev.MemberID, &channelID, &eventType, &createdAt)
	if err != nil {
		return activity.Event{}, fmt.Errorf("read event %d: %w", id, err)
	}
	ev.ChannelID = int64Ptr(channelID)
	ev.Type = activity.EventType(eventType)
	if ev.CreatedAt, err = activity.ParseTime(createdAt); err != nil {
		return activity.Event{}, fmt.Errorf("read event %d: %w", id, err)
	}
	return ev, nil
}

// CountEvents counts a member's events of one type.
func (s *Store) CountEvents(ctx context.Context, memberID int64, et activity.EventType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM events WHERE member_id = ? AND event_type = ?
	`, memberID, string(et)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s events for member %d: %w", et, memberID, err)
	}
	return n, nil
}

// RecordMemberJoin appends a MEMBER_JOIN event.
func (s *Store) RecordMemberJoin(ctx context.Context, memberID int64, at time.Time) (int64, error) {
	return insertEvent(ctx, s.db, activity.Event{MemberID: memberID, Type: activity.EventMemberJoin, CreatedAt: at})
}

// RecordMemberLeave appends a MEMBER_LEAVE event, closes every open voice
// session of the member and deactivates them, in one transaction.
func (s *Store) RecordMemberLeave(ctx context.Context, memberID int64, at time.Time) (int64, error) {
	var eventID int64
	err := s.withTx(ctx, "record member leave", func(tx *sql.Tx) error {
		var err error
		eventID, err = insertEvent(ctx, tx, activity.Event{MemberID: memberID, Type: activity.EventMemberLeave, CreatedAt: at})
		if err != nil {
			return err
		}
		if _, err := closeSessions(ctx, tx, at, `member_id = ?`, memberID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE members SET is_active = 0 WHERE id = ?`, memberID); err != nil {
			return fmt.Errorf("deactivate member %d: %w", memberID, err)
		}
		return nil
	})
	return eventID, err
}

// RecordRoleChange appends a MEMBER_ROLE_CHANGE event with its added/removed
// role lists, in one transaction.
func (s *Store) RecordRoleChange(ctx context.Context, memberID int64, at time.Time, added, removed []int64) (int64, error) {
	var eventID int64
	err := s.withTx(ctx, "record role change", func(tx *sql.Tx) error {
		var err error
		eventID, err = insertEvent(ctx, tx, activity.Event{MemberID: memberID, Type: activity.EventMemberRoleChange, CreatedAt: at})
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO role_change_events (event_id, roles_added, roles_removed) VALUES (?, ?, ?)
		`, eventID, joinIDs(added), joinIDs(removed))
		if err != nil {
			return fmt.Errorf("insert role change detail: %w", err)
		}
		return nil
	})
	return eventID, err
}

// RoleChange reads the role-change detail of an event.
func (s *Store) RoleChange(ctx context.Context, eventID int64) (activity.RoleChange, error) {
	var (
		rc             activity.RoleChange
		added, removed string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, event_id, roles_added, roles_removed FROM role_change_events WHERE event_id = ?
	`, eventID).Scan(&rc.ID, &rc.EventID, &added, &removed)
	if err != nil {
		return activity.RoleChange{}, fmt.Errorf("read role change for event %d: %w", eventID, err)
	}
	if rc.Added, err = splitIDs(added); err != nil {
		return activity.RoleChange{}, fmt.Errorf("read role change for event %d: %w", eventID, err)
	}
	if rc.Removed, err = splitIDs(removed); err != nil {
		return activity.RoleChange{}, fmt.Errorf("read role change for event %d: %w", eventID, err)
	}
	return rc, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse id list %q: %w", s, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
