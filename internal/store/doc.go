// Package store provides the SQLite-backed Synapse entity store.
//
// The store holds:
//   - Entities keyed by external id: members, roles, categories, channels,
//     threads, forum tags. Soft-deleted through is_active, never erased.
//   - The event lake: one immutable events row per occurrence, with message,
//     role-change and voice-session detail rows referencing it.
//   - Rule definitions (rules, rule_predicates, rule_outcomes) and the
//     append-only rule_evaluations ledger.
//   - Seasons, guild metadata, statistics and backfill checkpoints.
//
// # Critical Patterns
//
// Idempotent upserts
//   - Entities use INSERT ... ON CONFLICT(ext_id) DO UPDATE ... RETURNING id
//   - Re-ingesting a message reuses its existing Event and refreshes only the
//     mutable detail columns
//
// Atomic multi-row writes
//   - An Event and its detail rows (attachments, reactions, voice session,
//     role change) commit together or not at all
//   - Junction sets (member_roles, thread_tags) are replaced wholesale
//
// Atomic counters
//   - Currency and reaction counts change via single UPDATE statements,
//     never read-modify-write; reaction decrement clamps at zero
//
// Firing ledger
//   - UNIQUE(rule_id, event_id) on rule_evaluations; RecordEvaluation reports
//     whether it claimed the slot
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
