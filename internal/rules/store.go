package rules

import (
	"context"
	"time"

	"github.com/franklinacm/synapse/internal/activity"
)

// Store is the rule-ledger surface the engine reads and writes.
// *store.Store satisfies it.
type Store interface {
	EnabledRules(ctx context.Context, et activity.EventType) ([]activity.Rule, error)
	RulePredicates(ctx context.Context, ruleID int64) ([]activity.RulePredicate, error)
	RuleOutcomes(ctx context.Context, ruleID int64) ([]activity.RuleOutcome, error)
	HasEvaluation(ctx context.Context, ruleID, eventID int64) (bool, error)
	HasEvaluationSince(ctx context.Context, ruleID, memberID int64, since time.Time) (bool, error)
	RecordEvaluation(ctx context.Context, ev activity.RuleEvaluation) (id int64, inserted bool, err error)
	AddCurrency(ctx context.Context, memberID, pDelta, sDelta int64) (bool, error)
}

// LookupStore is the read surface behind store-lookup and season predicates.
// *store.Store satisfies it.
type LookupStore interface {
	Member(ctx context.Context, id int64) (activity.Member, error)
	MemberRoleExtIDs(ctx context.Context, memberID int64) ([]int64, error)
	MemberJoinedAt(ctx context.Context, memberID int64) (*time.Time, error)
	CountEvents(ctx context.Context, memberID int64, et activity.EventType) (int, error)
	SeasonActiveAt(ctx context.Context, seasonID int64, at time.Time) (bool, error)
	AnySeasonActiveAt(ctx context.Context, at time.Time) (bool, error)
}
