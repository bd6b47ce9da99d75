// Package gateway connects the ingester to Discord.
//
// A Gateway owns one discordgo session scoped to a single guild. It turns
// gateway events into source events, serves guild snapshots for the
// reconciler and channel history for the backfill scanner. Live events are
// held until StartDelivery so nothing is ingested before startup
// reconciliation has finished.
package gateway
