package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/franklinacm/synapse/internal/activity"
)

// t0 is the fixed reference instant for store tests.
var t0 = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

// createTestStore opens a store in a temp directory, closed on cleanup.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "synapse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestMember inserts an active member with the given external id.
func createTestMember(t *testing.T, s *Store, extID int64) int64 {
	t.Helper()
	joined := t0.AddDate(0, -1, 0)
	id, err := s.UpsertMemberProfile(context.Background(), activity.MemberProfile{
		ExtID:    extID,
		Name:     "member",
		JoinedAt: &joined,
	})
	require.NoError(t, err)
	return id
}

// createTestChannel inserts an active text channel with the given external id.
func createTestChannel(t *testing.T, s *Store, extID int64) int64 {
	t.Helper()
	id, err := s.UpsertChannel(context.Background(), activity.Channel{
		ExtID: extID,
		Name:  "general",
		Type:  "TEXT",
	}, nil)
	require.NoError(t, err)
	return id
}

func int64p(v int64) *int64 { return &v }
