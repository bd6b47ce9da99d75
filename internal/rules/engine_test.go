package rules

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franklinacm/synapse/internal/activity"
	"github.com/franklinacm/synapse/internal/testutil"
)

func TestEvaluate_ContentLengthThresholds(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.saveRule(t, "long-message", 0, pred("MIN_CONTENT_LENGTH", `{"threshold":100}`))
	env.saveRule(t, "short-message", 0, pred("MAX_CONTENT_LENGTH", `{"threshold":100}`))

	results, err := env.engine.Evaluate(ctx, env.messageContext(t, t0, 150))
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, StatusFired, statusOf(t, results, "long-message").Status)
	short := statusOf(t, results, "short-message")
	assert.Equal(t, StatusSkipped, short.Status)
	assert.Equal(t, ReasonPredicate, short.Reason)

	assert.Equal(t, int64(5), env.currency(t))
}

func TestEvaluate_RulesOrderedByName(t *testing.T) {
	env := newTestEnv(t)
	env.saveRule(t, "b-rule", 0)
	env.saveRule(t, "a-rule", 0)

	results, err := env.engine.Evaluate(context.Background(), env.messageContext(t, t0, 10))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a-rule", results[0].RuleName)
	assert.Equal(t, "b-rule", results[1].RuleName)
}

func TestEvaluate_NoRulesForEventType(t *testing.T) {
	env := newTestEnv(t)
	env.saveRule(t, "long-message", 0)

	rc := env.messageContext(t, t0, 10)
	rc.EventType = activity.EventVoiceJoin

	results, err := env.engine.Evaluate(context.Background(), rc)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEvaluate_DedupSecondAttemptIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ruleID := env.saveRule(t, "any-message", 0)
	rc := env.messageContext(t, t0, 10)

	first, err := env.engine.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, StatusFired, first[0].Status)

	second, err := env.engine.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, second[0].Status)
	assert.Equal(t, ReasonDuplicate, second[0].Reason)

	evals, err := env.store.Evaluations(ctx, ruleID)
	require.NoError(t, err)
	assert.Len(t, evals, 1)
	assert.Equal(t, int64(5), env.currency(t))
}

func TestEvaluate_Cooldown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.saveRule(t, "cooled", 60)

	results, err := env.engine.Evaluate(ctx, env.messageContext(t, t0, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusFired, results[0].Status)

	env.clock.Set(t0.Add(30 * time.Second))
	results, err = env.engine.Evaluate(ctx, env.messageContext(t, env.clock.Now(), 10))
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Equal(t, ReasonCooldown, results[0].Reason)

	env.clock.Set(t0.Add(61 * time.Second))
	results, err = env.engine.Evaluate(ctx, env.messageContext(t, env.clock.Now(), 10))
	require.NoError(t, err)
	assert.Equal(t, StatusFired, results[0].Status)

	assert.Equal(t, int64(10), env.currency(t))
}

func TestEvaluate_UnknownPredicateNeverFires(t *testing.T) {
	logs := testutil.CaptureLogs(t)
	env := newTestEnv(t)
	env.saveRule(t, "mystery", 0,
		pred("MIN_CONTENT_LENGTH", `{"threshold":1}`),
		pred("NO_SUCH_PREDICATE", ""),
	)

	results, err := env.engine.Evaluate(context.Background(), env.messageContext(t, t0, 500))
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Equal(t, ReasonPredicate, results[0].Reason)
	assert.Contains(t, logs.String(), "no evaluator for predicate")
	assert.Equal(t, int64(0), env.currency(t))
}

func TestEvaluate_MalformedParamsFailClosed(t *testing.T) {
	logs := testutil.CaptureLogs(t)
	env := newTestEnv(t)
	env.saveRule(t, "broken", 0, pred("MIN_CONTENT_LENGTH", `{"limit":1}`))

	results, err := env.engine.Evaluate(context.Background(), env.messageContext(t, t0, 500))
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Contains(t, logs.String(), "level=WARN")
	assert.Contains(t, logs.String(), ErrCodeInvalidParams)
}

func TestEvaluate_PathGate(t *testing.T) {
	env := newTestEnv(t)
	env.saveRule(t, "live-only", 0)

	rc := env.messageContext(t, t0, 10)
	rc.Path = PathHistoric

	results, err := env.engine.Evaluate(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, results[0].Status)
	assert.Equal(t, ReasonPath, results[0].Reason)
}

type failingEvaluator struct{}

func (failingEvaluator) Handles(t string) bool { return t == "EXPLODE" }

func (failingEvaluator) Evaluate(context.Context, string, *Context, json.RawMessage) (bool, error) {
	return false, errors.New("store unavailable")
}

type panickingEvaluator struct{}

func (panickingEvaluator) Handles(t string) bool { return t == "PANIC" }

func (panickingEvaluator) Evaluate(context.Context, string, *Context, json.RawMessage) (bool, error) {
	panic("boom")
}

func TestEvaluate_RuleFailureDoesNotStopOthers(t *testing.T) {
	env := newTestEnv(t, func(e *Engine) {
		lookups := e.store.(LookupStore)
		e.evaluators = append(DefaultEvaluators(lookups, e.clock), failingEvaluator{}, panickingEvaluator{})
	})
	env.saveRule(t, "a-explodes", 0, pred("EXPLODE", ""))
	env.saveRule(t, "b-panics", 0, pred("PANIC", ""))
	env.saveRule(t, "c-fires", 0)

	results, err := env.engine.Evaluate(context.Background(), env.messageContext(t, t0, 10))
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, StatusErrored, results[0].Status)
	assert.ErrorContains(t, results[0].Err, "store unavailable")
	assert.Equal(t, StatusErrored, results[1].Status)
	assert.ErrorContains(t, results[1].Err, "boom")
	assert.Equal(t, StatusFired, results[2].Status)
}

func TestEvaluate_HistoricUsesEventTime(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.store.SaveRuleDefinition(ctx, activity.RuleDefinition{
		Rule: activity.Rule{
			Name:            "morning",
			EventType:       activity.EventMessageCreate,
			Enabled:         true,
			AppliesHistoric: true,
			CooldownSeconds: 3600,
		},
		Predicates: []activity.RulePredicate{pred("HOUR_OF_DAY_BETWEEN", `{"from":9,"to":10}`)},
	})
	require.NoError(t, err)

	eventAt := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)
	rc := env.messageContext(t, eventAt, 10)
	rc.Path = PathHistoric

	results, err := env.engine.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, StatusFired, results[0].Status)

	evals, err := env.store.Evaluations(ctx, id)
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.True(t, eventAt.Equal(evals[0].FiredAt), "fired_at = %s", evals[0].FiredAt)

	// A second historic message two hours later is outside the cooldown
	// measured in event time, even though the wall clock has not moved.
	later := env.messageContext(t, eventAt.Add(2*time.Hour), 10)
	later.Path = PathHistoric
	results, err = env.engine.Evaluate(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, ReasonPredicate, results[0].Reason)
}

func TestEvaluate_CurrencyOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.store.SaveRuleDefinition(ctx, activity.RuleDefinition{
		Rule: activity.Rule{Name: "mixed", EventType: activity.EventMessageCreate, Enabled: true, AppliesLive: true},
		Outcomes: []activity.RuleOutcome{
			{Type: activity.OutcomeCurrency, PCurrency: ptr(int64(3)), SCurrency: ptr(int64(-1))},
			{Type: activity.OutcomeCurrency},
			{Type: activity.OutcomeAchievement, Params: json.RawMessage(`{"badge":"chatty"}`)},
			{Type: activity.OutcomeType("TELEPORT")},
		},
	})
	require.NoError(t, err)

	results, err := env.engine.Evaluate(ctx, env.messageContext(t, t0, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusFired, results[0].Status)

	m, err := env.store.Member(ctx, env.memberID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.PCurrency)
	assert.Equal(t, int64(-1), m.SCurrency)
}

func TestEvaluate_CurrencySkipsInactiveMember(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.saveRule(t, "any-message", 0)
	rc := env.messageContext(t, t0, 10)

	_, err := env.store.RecordMemberLeave(ctx, env.memberID, t0)
	require.NoError(t, err)

	results, err := env.engine.Evaluate(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, StatusFired, results[0].Status)
	assert.Equal(t, int64(0), env.currency(t))
}

func TestRun_DrainsQueueAfterStop(t *testing.T) {
	env := newTestEnv(t, WithTraceGenerator(NewFixedGenerator("trace-1", "trace-2")))
	ctx := context.Background()
	ruleID := env.saveRule(t, "any-message", 0)

	require.True(t, env.engine.Publish(env.messageContext(t, t0, 10)))
	require.True(t, env.engine.Publish(env.messageContext(t, t0, 20)))
	assert.Equal(t, 2, env.engine.Pending())

	env.engine.Stop()
	require.NoError(t, env.engine.Run(ctx))

	assert.Equal(t, 0, env.engine.Pending())
	evals, err := env.store.Evaluations(ctx, ruleID)
	require.NoError(t, err)
	assert.Len(t, evals, 2)
}

func TestRun_ReturnsOnCancelAndEvaluatesBacklog(t *testing.T) {
	env := newTestEnv(t)
	ruleID := env.saveRule(t, "any-message", 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.engine.Run(ctx) }()

	require.True(t, env.engine.Publish(env.messageContext(t, t0, 10)))
	require.Eventually(t, func() bool { return env.engine.Pending() == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	evals, err := env.store.Evaluations(context.Background(), ruleID)
	require.NoError(t, err)
	assert.Len(t, evals, 1)
	assert.False(t, env.engine.Publish(env.messageContext(t, t0, 10)))
}

func TestPublish_WarnsAboveBacklogDepth(t *testing.T) {
	logs := testutil.CaptureLogs(t)
	env := newTestEnv(t, WithQueueWarnDepth(1))

	env.engine.Publish(env.messageContext(t, t0, 10))
	assert.NotContains(t, logs.String(), "rule engine backlog")

	env.engine.Publish(env.messageContext(t, t0, 10))
	assert.Contains(t, logs.String(), "rule engine backlog")
}
