package rules

import (
	"context"
	"encoding/json"
)

// PredicateEvaluator evaluates the predicate types it handles.
//
// Evaluate returns a *PredicateError when the predicate itself is malformed;
// any other error is a failure to read state and marks the rule errored.
type PredicateEvaluator interface {
	Handles(predicateType string) bool
	Evaluate(ctx context.Context, predicateType string, rc *Context, params json.RawMessage) (bool, error)
}

// DefaultEvaluators returns the built-in evaluators. lookups backs the
// predicates that need stored state; clock supplies the live reference time.
func DefaultEvaluators(lookups LookupStore, clock Clock) []PredicateEvaluator {
	return []PredicateEvaluator{
		BooleanEvaluator{},
		NumericEvaluator{},
		StringEvaluator{},
		&LookupEvaluator{store: lookups, clock: clock},
		&TemporalEvaluator{store: lookups, clock: clock},
	}
}

// PredicateTypes lists every predicate type the default evaluators handle.
func PredicateTypes() []string {
	var types []string
	for _, table := range []map[string]struct{}{
		keys(booleanPredicates),
		keys(numericPredicates),
		keys(stringPredicates),
		keys(lookupPredicates),
		keys(temporalPredicates),
	} {
		for t := range table {
			types = append(types, t)
		}
	}
	return types
}

func keys[V any](m map[string]V) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

func findEvaluator(evaluators []PredicateEvaluator, predicateType string) PredicateEvaluator {
	for _, ev := range evaluators {
		if ev.Handles(predicateType) {
			return ev
		}
	}
	return nil
}
