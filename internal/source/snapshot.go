package source

import "context"

// Snapshot is the guild state enumerated at startup. It is fully fetched
// before reconciliation mutates anything.
type Snapshot struct {
	Guild       Guild
	Members     []Member
	Roles       []Role
	Categories  []Category
	Channels    []Channel
	Threads     []Thread
	VoiceStates []VoiceState
}

// SnapshotFetcher enumerates the current guild state.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context) (*Snapshot, error)
}

// HistorySource pages through stored channel history.
type HistorySource interface {
	// TextChannels lists the channels whose history can be scanned.
	TextChannels(ctx context.Context) ([]Channel, error)
	// MessagesAfter returns up to limit messages posted after afterID
	// (0 for the beginning of the channel), oldest first.
	MessagesAfter(ctx context.Context, channel Channel, afterID int64, limit int) ([]Message, error)
}
