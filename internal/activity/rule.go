package activity

import (
	"encoding/json"
	"time"
)

// Rule is a user-defined trigger evaluated against events of one type.
type Rule struct {
	ID              int64
	Name            string
	Description     string
	EventType       EventType
	Enabled         bool
	AppliesLive     bool
	AppliesHistoric bool
	CooldownSeconds int
}

// RulePredicate is one step of a rule's AND-chain. SortOrder fixes the
// evaluation sequence; Params is the predicate's JSON parameter document.
type RulePredicate struct {
	ID        int64
	RuleID    int64
	Type      string
	Params    json.RawMessage
	SortOrder int
}

// OutcomeType tags what a fired rule does.
type OutcomeType string

const (
	OutcomeCurrency     OutcomeType = "CURRENCY"
	OutcomeAchievement  OutcomeType = "ACHIEVEMENT"
	OutcomeAnnouncement OutcomeType = "ANNOUNCEMENT"
)

// RuleOutcome is a side effect dispatched when its rule fires.
// PCurrency and SCurrency are signed deltas used by CURRENCY outcomes.
type RuleOutcome struct {
	ID        int64
	RuleID    int64
	Type      OutcomeType
	PCurrency *int64
	SCurrency *int64
	Params    json.RawMessage
}

// RuleEvaluation records one firing of a rule for an event.
type RuleEvaluation struct {
	ID       int64
	RuleID   int64
	EventID  int64
	MemberID int64
	FiredAt  time.Time
}

// RuleDefinition is a rule together with its predicates and outcomes,
// the unit in which rules are imported.
type RuleDefinition struct {
	Rule       Rule
	Predicates []RulePredicate
	Outcomes   []RuleOutcome
}
