package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/franklinacm/synapse/internal/activity"
)

// ThreadWrite is everything a thread upsert cascades through: the parent
// channel (and its category), the thread row, and the applied forum tags.
type ThreadWrite struct {
	Thread         activity.Thread
	Parent         activity.Channel
	ParentCategory *activity.Category
	Tags           []activity.ForumTag
}

// UpsertCategory inserts or refreshes a category and marks it active.
func (s *Store) UpsertCategory(ctx context.Context, c activity.Category) (int64, error) {
	return upsertCategory(ctx, s.db, c)
}

func upsertCategory(ctx context.Context, q querier, c activity.Category) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO categories (ext_id, name, is_active, created_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(ext_id) DO UPDATE SET
			name = excluded.name,
			is_active = 1,
			created_at = COALESCE(categories.created_at, excluded.created_at)
		RETURNING id
	`, c.ExtID, c.Name, nullTime(c.CreatedAt)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert category %d: %w", c.ExtID, err)
	}
	return id, nil
}

// UpsertChannel resolves the channel's category (upserting it when given),
// then inserts or refreshes the channel and marks it active. A nil category
// detaches the channel from any category.
func (s *Store) UpsertChannel(ctx context.Context, ch activity.Channel, category *activity.Category) (int64, error) {
	var id int64
	err := s.withTx(ctx, "upsert channel", func(tx *sql.Tx) error {
		var err error
		id, err = upsertChannel(ctx, tx, ch, category)
		return err
	})
	return id, err
}

func upsertChannel(ctx context.Context, q querier, ch activity.Channel, category *activity.Category) (int64, error) {
	var categoryID sql.NullInt64
	if category != nil {
		cid, err := upsertCategory(ctx, q, *category)
		if err != nil {
			return 0, err
		}
		categoryID = sql.NullInt64{Int64: cid, Valid: true}
	}

	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO channels (ext_id, category_id, name, type, is_active, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
		ON CONFLICT(ext_id) DO UPDATE SET
			category_id = excluded.category_id,
			name = excluded.name,
			type = excluded.type,
			is_active = 1,
			created_at = COALESCE(channels.created_at, excluded.created_at)
		RETURNING id
	`, ch.ExtID, categoryID, ch.Name, ch.Type, nullTime(ch.CreatedAt)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert channel %d: %w", ch.ExtID, err)
	}
	return id, nil
}

// ChannelState reads the rule-context view of a channel.
func (s *Store) ChannelState(ctx context.Context, channelID int64) (activity.ChannelState, bool, error) {
	var (
		st            activity.ChannelState
		categoryExtID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.ext_id, c.type, cat.ext_id
		FROM channels c
		LEFT JOIN categories cat ON cat.id = c.category_id
		WHERE c.id = ?
	`, channelID).Scan(&st.ID, &st.ExtID, &st.Type, &categoryExtID)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.ChannelState{}, false, nil
	}
	if err != nil {
		return activity.ChannelState{}, false, fmt.Errorf("read channel state %d: %w", channelID, err)
	}
	st.CategoryExtID = int64Ptr(categoryExtID)
	return st, true, nil
}

// ChannelByExtID reads a channel by external id.
func (s *Store) ChannelByExtID(ctx context.Context, extID int64) (activity.Channel, bool, error) {
	var (
		ch         activity.Channel
		categoryID sql.NullInt64
		createdAt  sql.NullString
		isActive   int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, ext_id, category_id, name, type, is_active, created_at
		FROM channels WHERE ext_id = ?
	`, extID).Scan(&ch.ID, &ch.ExtID, &categoryID, &ch.Name, &ch.Type, &isActive, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.Channel{}, false, nil
	}
	if err != nil {
		return activity.Channel{}, false, fmt.Errorf("read channel %d: %w", extID, err)
	}
	ch.CategoryID = int64Ptr(categoryID)
	ch.IsActive = isActive == 1
	if ch.CreatedAt, err = timePtr(createdAt); err != nil {
		return activity.Channel{}, false, fmt.Errorf("read channel %d: %w", extID, err)
	}
	return ch, true, nil
}

// CategoryActive reports whether a category with extID exists and is active.
func (s *Store) CategoryActive(ctx context.Context, extID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categories WHERE ext_id = ? AND is_active = 1`, extID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("read category %d: %w", extID, err)
	}
	return n > 0, nil
}

// MarkChannelInactive deactivates a deleted channel or category. The delete
// notification does not say which, so both tables are updated.
func (s *Store) MarkChannelInactive(ctx context.Context, extID int64) error {
	return s.withTx(ctx, "mark channel inactive", func(tx *sql.Tx) error {
		if _, err := deactivateByExtID(ctx, tx, "channels", []int64{extID}); err != nil {
			return err
		}
		_, err := deactivateByExtID(ctx, tx, "categories", []int64{extID})
		return err
	})
}

// ActiveChannelExtIDs returns the external ids of every active channel.
func (s *Store) ActiveChannelExtIDs(ctx context.Context) ([]int64, error) {
	return queryInt64s(ctx, s.db, "active channel ids",
		`SELECT ext_id FROM channels WHERE is_active = 1 ORDER BY ext_id`)
}

// ActiveCategoryExtIDs returns the external ids of every active category.
func (s *Store) ActiveCategoryExtIDs(ctx context.Context) ([]int64, error) {
	return queryInt64s(ctx, s.db, "active category ids",
		`SELECT ext_id FROM categories WHERE is_active = 1 ORDER BY ext_id`)
}

// DeactivateChannels marks the given channels inactive.
func (s *Store) DeactivateChannels(ctx context.Context, extIDs []int64) (int64, error) {
	return deactivateByExtID(ctx, s.db, "channels", extIDs)
}

// DeactivateCategories marks the given categories inactive.
func (s *Store) DeactivateCategories(ctx context.Context, extIDs []int64) (int64, error) {
	return deactivateByExtID(ctx, s.db, "categories", extIDs)
}

// UpsertForumTag inserts or refreshes a tag defined on channelID.
func (s *Store) UpsertForumTag(ctx context.Context, channelID int64, tag activity.ForumTag) (int64, error) {
	return upsertForumTag(ctx, s.db, channelID, tag)
}

func upsertForumTag(ctx context.Context, q querier, channelID int64, tag activity.ForumTag) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO forum_tags (ext_id, channel_id, name, emoji_name, emoji_ext_id, is_moderated, is_active)
		VALUES (?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(ext_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			name = excluded.name,
			emoji_name = excluded.emoji_name,
			emoji_ext_id = excluded.emoji_ext_id,
			is_moderated = excluded.is_moderated,
			is_active = 1
		RETURNING id
	`, tag.ExtID, channelID, tag.Name, nullString(tag.EmojiName), nullInt64(tag.EmojiExtID),
		boolToInt(tag.IsModerated)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert forum tag %d: %w", tag.ExtID, err)
	}
	return id, nil
}

// UpsertThread resolves the parent channel, upserts the thread, and replaces
// its applied tags when the write carries any. Runs as one transaction.
func (s *Store) UpsertThread(ctx context.Context, w ThreadWrite) (int64, error) {
	var id int64
	err := s.withTx(ctx, "upsert thread", func(tx *sql.Tx) error {
		channelID, err := upsertChannel(ctx, tx, w.Parent, w.ParentCategory)
		if err != nil {
			return err
		}

		t := w.Thread
		err = tx.QueryRowContext(ctx, `
			INSERT INTO threads
			(ext_id, channel_id, owner_member_id, name, type, is_archived, is_locked, is_pinned,
			 is_active, message_count, slowmode_secs, auto_archive_minutes, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
			ON CONFLICT(ext_id) DO UPDATE SET
				channel_id = excluded.channel_id,
				owner_member_id = COALESCE(excluded.owner_member_id, threads.owner_member_id),
				name = excluded.name,
				type = excluded.type,
				is_archived = excluded.is_archived,
				is_locked = excluded.is_locked,
				is_pinned = excluded.is_pinned,
				is_active = 1,
				message_count = excluded.message_count,
				slowmode_secs = excluded.slowmode_secs,
				auto_archive_minutes = excluded.auto_archive_minutes,
				created_at = COALESCE(threads.created_at, excluded.created_at)
			RETURNING id
		`,
			t.ExtID, channelID, nullInt64(t.OwnerMemberID), t.Name, t.Type,
			boolToInt(t.IsArchived), boolToInt(t.IsLocked), boolToInt(t.IsPinned),
			t.MessageCount, t.SlowmodeSecs, t.AutoArchiveMinutes, nullTime(t.CreatedAt),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("upsert thread %d: %w", t.ExtID, err)
		}

		// Only forum posts carry tags.
		if len(w.Tags) == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM thread_tags WHERE thread_id = ?`, id); err != nil {
			return fmt.Errorf("clear tags of thread %d: %w", t.ExtID, err)
		}
		for _, tag := range w.Tags {
			tagID, err := upsertForumTag(ctx, tx, channelID, tag)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO thread_tags (thread_id, tag_id) VALUES (?, ?)
				ON CONFLICT DO NOTHING
			`, id, tagID)
			if err != nil {
				return fmt.Errorf("tag thread %d: %w", t.ExtID, err)
			}
		}
		return nil
	})
	return id, err
}

// ThreadIDByExtID resolves a thread's internal id.
func (s *Store) ThreadIDByExtID(ctx context.Context, extID int64) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM threads WHERE ext_id = ?`, extID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read thread %d: %w", extID, err)
	}
	return id, true, nil
}

// ThreadTagExtIDs returns the external ids of the tags applied to a thread.
func (s *Store) ThreadTagExtIDs(ctx context.Context, threadID int64) ([]int64, error) {
	return queryInt64s(ctx, s.db, "thread tag ids", `
		SELECT ft.ext_id FROM thread_tags tt
		JOIN forum_tags ft ON ft.id = tt.tag_id
		WHERE tt.thread_id = ?
		ORDER BY ft.ext_id
	`, threadID)
}

// MarkThreadInactive deactivates a deleted thread.
func (s *Store) MarkThreadInactive(ctx context.Context, extID int64) error {
	_, err := deactivateByExtID(ctx, s.db, "threads", []int64{extID})
	return err
}

// ActiveThreadExtIDs returns the external ids of every active thread.
func (s *Store) ActiveThreadExtIDs(ctx context.Context) ([]int64, error) {
	return queryInt64s(ctx, s.db, "active thread ids",
		`SELECT ext_id FROM threads WHERE is_active = 1 ORDER BY ext_id`)
}

// DeactivateThreads marks the given threads inactive.
func (s *Store) DeactivateThreads(ctx context.Context, extIDs []int64) (int64, error) {
	return deactivateByExtID(ctx, s.db, "threads", extIDs)
}
