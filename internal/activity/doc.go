// Package activity defines the records held in the Synapse event store.
//
// Every community occurrence is an Event: a lean, immutable parent row carrying
// who, where, what kind and when. Type-specific data lives in detail records
// (Message, RoleChange, VoiceSession) that reference the Event by id. Entities
// observed on the platform (members, roles, channels, categories, threads,
// forum tags) are keyed by their external id and soft-deleted through an
// IsActive flag rather than erased.
//
// Rules, their ordered predicates and their outcomes are also modelled here,
// together with RuleEvaluation, the append-only ledger used for dedup and
// cooldown checks.
package activity
