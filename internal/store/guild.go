package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/franklinacm/synapse/internal/activity"
)

// UpsertGuildMetadata writes the single guild row.
func (s *Store) UpsertGuildMetadata(ctx context.Context, g activity.GuildMetadata, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO guild_metadata (id, ext_id, name, created_at, updated_at) VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			ext_id = excluded.ext_id,
			name = excluded.name,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at
	`, g.ExtID, g.Name, nullTime(g.CreatedAt), activity.FormatTime(at))
	if err != nil {
		return fmt.Errorf("upsert guild metadata: %w", err)
	}
	return nil
}

// GuildMetadata reads the guild row.
func (s *Store) GuildMetadata(ctx context.Context) (activity.GuildMetadata, bool, error) {
	var (
		g         activity.GuildMetadata
		createdAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT ext_id, name, created_at FROM guild_metadata WHERE id = 1`).
		Scan(&g.ExtID, &g.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.GuildMetadata{}, false, nil
	}
	if err != nil {
		return activity.GuildMetadata{}, false, fmt.Errorf("read guild metadata: %w", err)
	}
	if g.CreatedAt, err = timePtr(createdAt); err != nil {
		return activity.GuildMetadata{}, false, fmt.Errorf("read guild metadata: %w", err)
	}
	return g, true, nil
}

// RecordReconciliation stamps the statistics row after a reconciliation.
func (s *Store) RecordReconciliation(ctx context.Context, at time.Time, membersReconciled int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO synapse_statistics (id, last_reconciled_at, reconcile_count, members_reconciled)
		VALUES (1, ?, 1, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_reconciled_at = excluded.last_reconciled_at,
			reconcile_count = reconcile_count + 1,
			members_reconciled = excluded.members_reconciled
	`, activity.FormatTime(at), membersReconciled)
	if err != nil {
		return fmt.Errorf("record reconciliation: %w", err)
	}
	return nil
}

// AddBackfilledMessages adds n to the backfilled message counter.
func (s *Store) AddBackfilledMessages(ctx context.Context, n int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO synapse_statistics (id, messages_backfilled) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET messages_backfilled = messages_backfilled + excluded.messages_backfilled
	`, n)
	if err != nil {
		return fmt.Errorf("add backfilled messages: %w", err)
	}
	return nil
}

// Statistics reads the statistics row; a zero value if none was written yet.
func (s *Store) Statistics(ctx context.Context) (activity.Statistics, error) {
	var (
		st     activity.Statistics
		lastAt sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT last_reconciled_at, reconcile_count, members_reconciled, messages_backfilled
		FROM synapse_statistics WHERE id = 1
	`).Scan(&lastAt, &st.ReconcileCount, &st.MembersReconciled, &st.MessagesBackfilled)
	if errors.Is(err, sql.ErrNoRows) {
		return activity.Statistics{}, nil
	}
	if err != nil {
		return activity.Statistics{}, fmt.Errorf("read statistics: %w", err)
	}
	if st.LastReconciledAt, err = timePtr(lastAt); err != nil {
		return activity.Statistics{}, fmt.Errorf("read statistics: %w", err)
	}
	return st, nil
}

// BackfillCheckpoint returns the last scanned message id of a channel, 0 if none.
func (s *Store) BackfillCheckpoint(ctx context.Context, channelExtID int64) (int64, error) {
	var last int64
	err := s.db.QueryRowContext(ctx, `
		SELECT last_message_ext_id FROM backfill_checkpoints WHERE channel_ext_id = ?
	`, channelExtID).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read backfill checkpoint %d: %w", channelExtID, err)
	}
	return last, nil
}

// SaveBackfillCheckpoint advances a channel's checkpoint. It never moves backwards.
func (s *Store) SaveBackfillCheckpoint(ctx context.Context, channelExtID, messageExtID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backfill_checkpoints (channel_ext_id, last_message_ext_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(channel_ext_id) DO UPDATE SET
			last_message_ext_id = MAX(last_message_ext_id, excluded.last_message_ext_id),
			updated_at = excluded.updated_at
	`, channelExtID, messageExtID, activity.FormatTime(at))
	if err != nil {
		return fmt.Errorf("save backfill checkpoint %d: %w", channelExtID, err)
	}
	return nil
}
