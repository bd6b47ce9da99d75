package rules

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/franklinacm/synapse/internal/activity"
	"github.com/franklinacm/synapse/internal/store"
	"github.com/franklinacm/synapse/internal/testutil"
)

// t0 is the fixed reference instant for rule tests.
var t0 = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

// memberExtID is a snowflake minted on 2016-04-30.
const memberExtID int64 = 175928847299117063

type testEnv struct {
	store     *store.Store
	clock     *testutil.Clock
	engine    *Engine
	memberID  int64
	channelID int64
}

func newTestEnv(t *testing.T, opts ...EngineOption) *testEnv {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	joined := t0.AddDate(0, 0, -30)
	memberID, err := s.UpsertMemberProfile(ctx, activity.MemberProfile{
		ExtID:    memberExtID,
		Name:     "ada",
		JoinedAt: &joined,
	})
	require.NoError(t, err)
	channelID, err := s.UpsertChannel(ctx, activity.Channel{ExtID: 500, Name: "general", Type: "TEXT"}, nil)
	require.NoError(t, err)

	clock := testutil.NewClock(t0)
	opts = append([]EngineOption{WithClock(clock)}, opts...)
	return &testEnv{
		store:     s,
		clock:     clock,
		engine:    New(s, s, opts...),
		memberID:  memberID,
		channelID: channelID,
	}
}

// saveRule stores a live MESSAGE_CREATE rule granting 5 primary currency.
func (env *testEnv) saveRule(t *testing.T, name string, cooldown int, preds ...activity.RulePredicate) int64 {
	t.Helper()
	id, err := env.store.SaveRuleDefinition(context.Background(), activity.RuleDefinition{
		Rule: activity.Rule{
			Name:            name,
			EventType:       activity.EventMessageCreate,
			Enabled:         true,
			AppliesLive:     true,
			CooldownSeconds: cooldown,
		},
		Predicates: preds,
		Outcomes: []activity.RuleOutcome{
			{Type: activity.OutcomeCurrency, PCurrency: ptr(int64(5))},
		},
	})
	require.NoError(t, err)
	return id
}

// messageContext inserts a MESSAGE_CREATE event at `at` and returns its
// live-path context with the given content length.
func (env *testEnv) messageContext(t *testing.T, at time.Time, contentLength int) *Context {
	t.Helper()
	ev := activity.Event{
		MemberID:  env.memberID,
		ChannelID: &env.channelID,
		Type:      activity.EventMessageCreate,
		CreatedAt: at,
	}
	id, err := env.store.InsertEvent(context.Background(), ev)
	require.NoError(t, err)
	ev.ID = id

	member, err := env.store.Member(context.Background(), env.memberID)
	require.NoError(t, err)
	return Build(PathLive, ev, &member, &activity.ChannelState{ID: env.channelID, ExtID: 500, Type: "TEXT"},
		MessageDetail{Message: activity.Message{ContentLength: contentLength}})
}

func (env *testEnv) currency(t *testing.T) int64 {
	t.Helper()
	m, err := env.store.Member(context.Background(), env.memberID)
	require.NoError(t, err)
	return m.PCurrency
}

func pred(typ, params string) activity.RulePredicate {
	p := activity.RulePredicate{Type: typ}
	if params != "" {
		p.Params = json.RawMessage(params)
	}
	return p
}

func statusOf(t *testing.T, results []Result, rule string) Result {
	t.Helper()
	for _, r := range results {
		if r.RuleName == rule {
			return r
		}
	}
	t.Fatalf("no result for rule %q", rule)
	return Result{}
}
