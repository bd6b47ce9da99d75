package ingest

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franklinacm/synapse/internal/activity"
	"github.com/franklinacm/synapse/internal/rules"
	"github.com/franklinacm/synapse/internal/source"
	"github.com/franklinacm/synapse/internal/store"
	"github.com/franklinacm/synapse/internal/testutil"
)

var t0 = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu       sync.Mutex
	contexts []*rules.Context
}

func (p *recordingPublisher) Publish(rc *rules.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.contexts = append(p.contexts, rc)
	return true
}

func (p *recordingPublisher) types() []activity.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []activity.EventType
	for _, rc := range p.contexts {
		out = append(out, rc.EventType)
	}
	return out
}

func (p *recordingPublisher) last() *rules.Context {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.contexts[len(p.contexts)-1]
}

func setup(t *testing.T) (*Ingester, *store.Store, *recordingPublisher, *testutil.Clock) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	pub := &recordingPublisher{}
	clock := testutil.NewClock(t0)
	return New(s, pub, WithClock(clock)), s, pub, clock
}

var (
	general = source.Channel{
		ID:       500,
		Name:     "general",
		Type:     source.ChannelText,
		Category: &source.Category{ID: 400, Name: "Community"},
	}
	lounge = source.Channel{ID: 600, Name: "lounge", Type: source.ChannelVoice}
	stage  = source.Channel{ID: 601, Name: "stage", Type: source.ChannelStage}
	ada    = source.Member{
		User:     source.User{ID: 1001, Name: "ada"},
		JoinedAt: t0.AddDate(0, -1, 0),
		Roles:    []source.Role{{ID: 10, Name: "regular"}},
	}
)

func message(id int64, content string) source.Message {
	return source.Message{
		ID:        id,
		Author:    ada,
		Channel:   general,
		Content:   content,
		CreatedAt: t0,
	}
}

func TestIngestMessage_PublishesNewMessage(t *testing.T) {
	in, s, pub, _ := setup(t)
	ctx := context.Background()

	m := message(9001, "e\u0301clair")
	m.Attachments = []source.Attachment{{ID: 1, Filename: "photo.png", ContentType: "image/png"}}
	m.Reactions = []source.Reaction{{EmojiName: "👍", Count: 2}, {EmojiName: "🎉", Count: 1}}
	require.NoError(t, in.Ingest(ctx, source.MessageCreated{Message: m}))

	stored, ok, err := s.Message(ctx, 9001)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "\u00e9clair", stored.Content)
	assert.Equal(t, 6, stored.ContentLength)
	assert.Equal(t, 3, stored.ReactionCount)

	require.Len(t, pub.contexts, 1)
	rc := pub.last()
	assert.Equal(t, activity.EventMessageCreate, rc.EventType)
	assert.Equal(t, rules.PathLive, rc.Path)
	assert.Equal(t, 6, *rc.ContentLength)
	assert.Equal(t, "photo.png", *rc.AttachmentFilename)
	assert.Equal(t, int64(500), *rc.ChannelExtID)
	assert.Equal(t, int64(400), *rc.CategoryExtID)
	assert.Equal(t, int64(1001), *rc.MemberExtID)
}

func TestIngestMessage_RedeliveryUpdatesWithoutPublishing(t *testing.T) {
	in, s, pub, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, in.Ingest(ctx, source.MessageCreated{Message: message(9001, "first")}))

	edited := message(9001, "second, longer")
	editedAt := t0.Add(time.Minute)
	edited.EditedAt = &editedAt
	require.NoError(t, in.Ingest(ctx, source.MessageCreated{Message: edited}))

	n, err := s.CountMessages(ctx, 9001)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, _, err := s.Message(ctx, 9001)
	require.NoError(t, err)
	assert.Equal(t, "second, longer", stored.Content)
	assert.Len(t, pub.contexts, 1)
}

func TestIngestMessage_ThreadMessage(t *testing.T) {
	in, s, _, _ := setup(t)
	ctx := context.Background()

	m := message(9002, "in a thread")
	m.Thread = &source.Thread{ID: 700, Parent: general, Name: "Help", Type: source.ChannelPublicThread, CreatedAt: t0}
	require.NoError(t, in.Ingest(ctx, source.MessageCreated{Message: m}))

	threadID, ok, err := s.ThreadIDByExtID(ctx, 700)
	require.NoError(t, err)
	require.True(t, ok)

	stored, _, err := s.Message(ctx, 9002)
	require.NoError(t, err)
	require.NotNil(t, stored.ThreadID)
	assert.Equal(t, threadID, *stored.ThreadID)
}

func TestIngestMessage_HistoricPath(t *testing.T) {
	in, _, pub, _ := setup(t)

	res, err := in.IngestMessage(context.Background(), message(9003, "old"), rules.PathHistoric)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, rules.PathHistoric, pub.last().Path)
	assert.True(t, t0.Equal(pub.last().CreatedAt))
}

func TestMembers_JoinUpdateLeave(t *testing.T) {
	in, s, pub, clock := setup(t)
	ctx := context.Background()

	require.NoError(t, in.Ingest(ctx, source.MemberJoined{Member: ada}))
	m, ok, err := s.MemberByExtID(ctx, 1001)
	require.NoError(t, err)
	require.True(t, ok)
	roles, err := s.MemberRoleExtIDs(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, roles)

	// Same roles: profile refresh only.
	clock.Advance(time.Minute)
	require.NoError(t, in.Ingest(ctx, source.MemberUpdated{Member: ada}))
	assert.Equal(t, []activity.EventType{activity.EventMemberJoin}, pub.types())

	promoted := ada
	promoted.Nickname = "Countess"
	promoted.Roles = []source.Role{{ID: 20, Name: "moderator"}}
	require.NoError(t, in.Ingest(ctx, source.MemberUpdated{Member: promoted}))

	rc := pub.last()
	assert.Equal(t, activity.EventMemberRoleChange, rc.EventType)
	assert.Equal(t, []int64{20}, rc.RolesAdded)
	assert.Equal(t, []int64{10}, rc.RolesRemoved)

	change, err := s.RoleChange(ctx, rc.EventID)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, change.Added)

	roles, err = s.MemberRoleExtIDs(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, roles)

	require.NoError(t, in.Ingest(ctx, source.VoiceStateChanged{Member: ada, After: &lounge}))
	require.NoError(t, in.Ingest(ctx, source.MemberLeft{User: ada.User}))

	m, err = s.Member(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, m.IsActive)
	open, err := s.OpenVoiceSessions(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
	assert.Equal(t, activity.EventMemberLeave, pub.last().EventType)
}

func TestVoice_JoinMoveLeave(t *testing.T) {
	in, s, pub, clock := setup(t)
	ctx := context.Background()

	require.NoError(t, in.Ingest(ctx, source.VoiceStateChanged{Member: ada, After: &lounge}))
	// Redelivered join.
	require.NoError(t, in.Ingest(ctx, source.VoiceStateChanged{Member: ada, After: &lounge}))
	// Mute toggles keep the channel.
	require.NoError(t, in.Ingest(ctx, source.VoiceStateChanged{Member: ada, Before: &lounge, After: &lounge}))

	m, _, err := s.MemberByExtID(ctx, 1001)
	require.NoError(t, err)
	assertOpen := func(want int) {
		t.Helper()
		open, err := s.OpenVoiceSessions(ctx, m.ID)
		require.NoError(t, err)
		assert.Len(t, open, want)
	}
	assertOpen(1)

	clock.Advance(10 * time.Minute)
	require.NoError(t, in.Ingest(ctx, source.VoiceStateChanged{Member: ada, Before: &lounge, After: &stage}))
	assertOpen(1)

	clock.Advance(30 * time.Minute)
	require.NoError(t, in.Ingest(ctx, source.VoiceStateChanged{Member: ada, Before: &stage}))
	assertOpen(0)

	assert.Equal(t, []activity.EventType{
		activity.EventVoiceJoin,
		activity.EventVoiceMove,
		activity.EventVoiceLeave,
	}, pub.types())

	leave := pub.last()
	require.NotNil(t, leave.SessionDurationMinutes)
	assert.InDelta(t, 30, *leave.SessionDurationMinutes, 0.01)
	assert.Equal(t, int64(601), *leave.VoiceChannelExtID)
}

func TestReactions_AddRemoveClamped(t *testing.T) {
	in, s, _, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, in.Ingest(ctx, source.MessageCreated{Message: message(9004, "hi")}))

	wave := source.Emoji{Name: "👋"}
	require.NoError(t, in.Ingest(ctx, source.ReactionAdded{MessageID: 9004, Emoji: wave}))
	require.NoError(t, in.Ingest(ctx, source.ReactionRemoved{MessageID: 9004, Emoji: wave}))
	require.NoError(t, in.Ingest(ctx, source.ReactionRemoved{MessageID: 9004, Emoji: wave}))
	// Unknown message is not an error.
	require.NoError(t, in.Ingest(ctx, source.ReactionAdded{MessageID: 1, Emoji: wave}))

	stored, _, err := s.Message(ctx, 9004)
	require.NoError(t, err)
	reactions, err := s.Reactions(ctx, stored.ID)
	require.NoError(t, err)
	require.Len(t, reactions, 1)
	assert.Equal(t, 0, reactions[0].Count)
}

func TestChannels_UpsertAndDelete(t *testing.T) {
	in, s, _, _ := setup(t)
	ctx := context.Background()

	forum := source.Channel{
		ID:   800,
		Name: "ideas",
		Type: source.ChannelForum,
		Tags: []source.ForumTag{{ID: 801, Name: "bug"}},
	}
	require.NoError(t, in.Ingest(ctx, source.ChannelUpserted{Channel: forum}))
	require.NoError(t, in.Ingest(ctx, source.ThreadUpserted{Thread: source.Thread{
		ID:          810,
		Parent:      forum,
		Name:        "Crash on start",
		Type:        source.ChannelPublicThread,
		AppliedTags: []source.ForumTag{{ID: 801, Name: "bug"}},
	}}))

	threadID, ok, err := s.ThreadIDByExtID(ctx, 810)
	require.NoError(t, err)
	require.True(t, ok)
	tags, err := s.ThreadTagExtIDs(ctx, threadID)
	require.NoError(t, err)
	assert.Equal(t, []int64{801}, tags)

	require.NoError(t, in.Ingest(ctx, source.ThreadDeleted{ID: 810}))
	require.NoError(t, in.Ingest(ctx, source.ChannelDeleted{ID: 800}))

	active, err := s.ActiveThreadExtIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	ch, _, err := s.ChannelByExtID(ctx, 800)
	require.NoError(t, err)
	assert.False(t, ch.IsActive)
}

func TestIngest_NilPublisher(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	defer s.Close()

	in := New(s, nil)
	assert.NoError(t, in.Ingest(context.Background(), source.MessageCreated{Message: message(1, "quiet")}))
}

func TestDiffRoles(t *testing.T) {
	added, removed := diffRoles([]int64{3, 1, 2}, []int64{2, 5, 4})
	assert.Equal(t, []int64{4, 5}, added)
	assert.Equal(t, []int64{1, 3}, removed)

	added, removed = diffRoles(nil, nil)
	assert.Empty(t, added)
	assert.Empty(t, removed)
}
