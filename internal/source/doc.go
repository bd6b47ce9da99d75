// Package source holds the platform-neutral shapes the chat gateway hands to
// Synapse: entity payloads, the typed event variants delivered in real time,
// the startup Snapshot, and the capabilities that fetch them.
//
// Identifiers are the platform's external ids. Nothing in this package knows
// about the store's internal surrogate keys.
package source
