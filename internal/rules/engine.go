package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/franklinacm/synapse/internal/activity"
)

// DefaultQueueWarnDepth is the backlog size above which Publish warns.
const DefaultQueueWarnDepth = 1000

// Status is the terminal state of one rule for one event.
type Status string

const (
	StatusSkipped Status = "skipped"
	StatusFired   Status = "fired"
	StatusErrored Status = "errored"
)

// Skip reasons reported in Result.Reason.
const (
	ReasonPath      = "path"
	ReasonDuplicate = "duplicate"
	ReasonCooldown  = "cooldown"
	ReasonPredicate = "predicate"
)

// Result reports what happened to one candidate rule.
type Result struct {
	RuleID   int64
	RuleName string
	Status   Status
	Reason   string // set when Status is skipped
	Err      error  // set when Status is errored
}

// Engine evaluates rules for published contexts.
//
// Publish is safe for concurrent use. Run must be called from a single
// goroutine; it is the only caller of Evaluate in production.
type Engine struct {
	store      Store
	evaluators []PredicateEvaluator
	clock      Clock
	traceGen   TraceGenerator
	queue      *requestQueue
	warnDepth  int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the clock used for live-path reference time.
// Default: SystemClock.
func WithClock(c Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithEvaluators replaces the default predicate evaluators.
func WithEvaluators(evaluators ...PredicateEvaluator) EngineOption {
	return func(e *Engine) {
		e.evaluators = evaluators
	}
}

// WithTraceGenerator sets the generator for request trace ids.
// Default: UUIDv7Generator.
func WithTraceGenerator(g TraceGenerator) EngineOption {
	return func(e *Engine) {
		e.traceGen = g
	}
}

// WithQueueWarnDepth sets the backlog size above which Publish logs a
// warning. Zero or less disables the warning.
func WithQueueWarnDepth(n int) EngineOption {
	return func(e *Engine) {
		e.warnDepth = n
	}
}

// New creates an Engine over s. lookups backs the default evaluators and is
// ignored when WithEvaluators is given.
func New(s Store, lookups LookupStore, opts ...EngineOption) *Engine {
	e := &Engine{
		store:     s,
		clock:     SystemClock{},
		traceGen:  UUIDv7Generator{},
		queue:     newRequestQueue(),
		warnDepth: DefaultQueueWarnDepth,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.evaluators == nil {
		e.evaluators = DefaultEvaluators(lookups, e.clock)
	}
	return e
}

// Publish enqueues rc for evaluation and returns immediately. Call it only
// after the transaction that wrote the event has committed. Returns false
// if the engine has been stopped.
func (e *Engine) Publish(rc *Context) bool {
	req := Request{TraceID: e.traceGen.Generate(), Context: rc}
	if !e.queue.Enqueue(req) {
		slog.Warn("rule engine stopped, dropping event",
			"trace", req.TraceID,
			"event_id", rc.EventID,
			"event_type", rc.EventType)
		return false
	}
	if n := e.queue.Len(); e.warnDepth > 0 && n > e.warnDepth {
		slog.Warn("rule engine backlog", "depth", n, "warn_depth", e.warnDepth)
	}
	return true
}

// Pending returns the number of queued requests.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Run processes published contexts until ctx is cancelled or Stop is
// called, then evaluates whatever is still queued before returning.
// A dequeued request always runs to completion; cancellation is only
// observed between requests.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("rule engine starting")
	work := context.WithoutCancel(ctx)

	for {
		if req, ok := e.queue.TryDequeue(); ok {
			e.process(work, req)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("rule engine stopping: context cancelled", "pending", e.queue.Len())
			e.queue.Close()
			e.drain(work)
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel is closed by Stop, so an empty closed
			// queue ends the loop here.
			if e.queue.IsClosed() && e.queue.Len() == 0 {
				slog.Info("rule engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run finishes the backlog and returns.
func (e *Engine) Stop() {
	e.queue.Close()
}

func (e *Engine) drain(ctx context.Context) {
	for {
		req, ok := e.queue.TryDequeue()
		if !ok {
			return
		}
		e.process(ctx, req)
	}
}

func (e *Engine) process(ctx context.Context, req Request) {
	results, err := e.Evaluate(ctx, req.Context)
	if err != nil {
		slog.Error("rule evaluation abandoned",
			"trace", req.TraceID,
			"event_id", req.Context.EventID,
			"event_type", req.Context.EventType,
			"error", err)
		return
	}
	for _, r := range results {
		if r.Status == StatusErrored {
			slog.Error("rule errored",
				"trace", req.TraceID,
				"rule", r.RuleName,
				"event_id", req.Context.EventID,
				"error", r.Err)
		}
	}
}

// Evaluate runs every enabled rule for rc's event type and reports one
// Result per rule. The returned error is set only when the rule list
// itself cannot be loaded.
func (e *Engine) Evaluate(ctx context.Context, rc *Context) ([]Result, error) {
	candidates, err := e.store.EnabledRules(ctx, rc.EventType)
	if err != nil {
		return nil, fmt.Errorf("load rules for %s: %w", rc.EventType, err)
	}

	now := rc.ReferenceTime(e.clock.Now())
	results := make([]Result, 0, len(candidates))
	for _, rule := range candidates {
		results = append(results, e.evaluateRule(ctx, rule, rc, now))
	}
	return results, nil
}

func (e *Engine) evaluateRule(ctx context.Context, rule activity.Rule, rc *Context, now time.Time) (res Result) {
	res = Result{RuleID: rule.ID, RuleName: rule.Name}
	skip := func(reason string) Result {
		res.Status = StatusSkipped
		res.Reason = reason
		slog.Debug("rule skipped", "rule", rule.Name, "event_id", rc.EventID, "reason", reason)
		return res
	}
	fail := func(err error) Result {
		res.Status = StatusErrored
		res.Err = err
		return res
	}

	defer func() {
		if p := recover(); p != nil {
			res = fail(fmt.Errorf("panic: %v", p))
		}
	}()

	if !appliesTo(rule, rc.Path) {
		return skip(ReasonPath)
	}

	seen, err := e.store.HasEvaluation(ctx, rule.ID, rc.EventID)
	if err != nil {
		return fail(fmt.Errorf("dedup check: %w", err))
	}
	if seen {
		return skip(ReasonDuplicate)
	}

	if rule.CooldownSeconds > 0 {
		since := now.Add(-time.Duration(rule.CooldownSeconds) * time.Second)
		cooling, err := e.store.HasEvaluationSince(ctx, rule.ID, rc.MemberID, since)
		if err != nil {
			return fail(fmt.Errorf("cooldown check: %w", err))
		}
		if cooling {
			return skip(ReasonCooldown)
		}
	}

	passed, err := e.predicatesPass(ctx, rule, rc)
	if err != nil {
		return fail(err)
	}
	if !passed {
		return skip(ReasonPredicate)
	}

	_, inserted, err := e.store.RecordEvaluation(ctx, activity.RuleEvaluation{
		RuleID:   rule.ID,
		EventID:  rc.EventID,
		MemberID: rc.MemberID,
		FiredAt:  now,
	})
	if err != nil {
		return fail(fmt.Errorf("record evaluation: %w", err))
	}
	if !inserted {
		// Another delivery of the same event won the race.
		return skip(ReasonDuplicate)
	}

	slog.Info("rule fired", "rule", rule.Name, "event_id", rc.EventID, "member_id", rc.MemberID)
	if err := e.dispatchOutcomes(ctx, rule, rc); err != nil {
		return fail(err)
	}
	res.Status = StatusFired
	return res
}

func appliesTo(rule activity.Rule, path Path) bool {
	switch path {
	case PathLive:
		return rule.AppliesLive
	case PathHistoric:
		return rule.AppliesHistoric
	}
	return false
}

// predicatesPass evaluates the rule's AND-chain in sort order, stopping at
// the first false predicate. Predicate errors count as false; any other
// error aborts the rule.
func (e *Engine) predicatesPass(ctx context.Context, rule activity.Rule, rc *Context) (bool, error) {
	preds, err := e.store.RulePredicates(ctx, rule.ID)
	if err != nil {
		return false, fmt.Errorf("load predicates: %w", err)
	}

	for _, p := range preds {
		ev := findEvaluator(e.evaluators, p.Type)
		if ev == nil {
			slog.Warn("no evaluator for predicate", "rule", rule.Name, "predicate", p.Type)
			return false, nil
		}

		ok, err := ev.Evaluate(ctx, p.Type, rc, p.Params)
		if err != nil {
			var pe *PredicateError
			if errors.As(err, &pe) {
				slog.Warn("predicate failed", "rule", rule.Name, "predicate", p.Type, "error", err)
				return false, nil
			}
			return false, fmt.Errorf("predicate %s: %w", p.Type, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
