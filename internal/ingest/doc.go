// Package ingest normalizes source events into the entity store and hands
// the resulting rule contexts to the rule engine.
//
// Every handler is idempotent under redelivery: a message id seen before
// updates its detail row in place and reuses its event, a redelivered voice
// join finds the session already open, and entity upserts are keyed by
// external id. A rule context is published only for events that were newly
// written, and only after the write committed.
package ingest
