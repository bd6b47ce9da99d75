// Package rules evaluates user-defined rules against persisted events.
//
// The ingestion side builds a Context for every stored event (see Build) and
// hands it to Engine.Publish, which enqueues it and returns immediately. A
// single worker goroutine in Engine.Run drains the queue and, per event:
//
//  1. Loads enabled rules for the event type (ordered by name).
//  2. Skips rules whose ingestion path (live or historic) does not apply.
//  3. Skips rules that already fired for this event (dedup gate).
//  4. Skips rules that fired for this member inside the cooldown window.
//  5. Evaluates the rule's predicates in order; the first false one stops
//     the chain. A predicate no evaluator handles counts as false.
//  6. Records the firing in the ledger, then dispatches the outcomes.
//
// Each rule is evaluated in isolation: a failure in one rule is logged and
// the remaining rules still run.
//
// # Predicate evaluators
//
// Predicates are matched by type name against a list of PredicateEvaluator
// values; the first whose Handles reports true evaluates it. The default
// list covers boolean fields, numeric thresholds, string matches, store
// lookups (roles, ages, join history, role-change diffs) and temporal
// checks (hour, weekday, seasons).
//
// Malformed parameters and absent context fields fail closed: the predicate
// is false and a warning is logged. Store failures mark the rule errored.
//
// # Reference time
//
// Cooldown windows, temporal predicates and age predicates measure against
// the engine clock on the live path, and against the event's own timestamp
// on the historic path, so a backfill fires the same way regardless of when
// it runs.
package rules
