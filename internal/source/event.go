package source

// Event is one of the typed real-time events the gateway delivers.
// The set is closed; Kind names the variant for logging.
type Event interface {
	Kind() string
}

// MessageCreated is a new message, or an existing message delivered again
// (edits and redeliveries carry the same message id).
type MessageCreated struct{ Message Message }

// MemberJoined is a member entering the guild.
type MemberJoined struct{ Member Member }

// MemberLeft is a member leaving the guild.
type MemberLeft struct{ User User }

// MemberUpdated carries a member's current profile and role list.
type MemberUpdated struct{ Member Member }

// VoiceStateChanged is a member's voice connection changing. Before and After
// are nil when the member was, or now is, disconnected.
type VoiceStateChanged struct {
	Member Member
	Before *Channel
	After  *Channel
}

// CategoryUpserted is a category created or updated.
type CategoryUpserted struct{ Category Category }

// ChannelUpserted is a channel created or updated.
type ChannelUpserted struct{ Channel Channel }

// ChannelDeleted is a channel or category removed.
type ChannelDeleted struct{ ID int64 }

// ThreadUpserted is a thread created or updated.
type ThreadUpserted struct{ Thread Thread }

// ThreadDeleted is a thread removed.
type ThreadDeleted struct{ ID int64 }

// ReactionAdded is one reaction added to a message.
type ReactionAdded struct {
	MessageID int64
	Emoji     Emoji
}

// ReactionRemoved is one reaction removed from a message.
type ReactionRemoved struct {
	MessageID int64
	Emoji     Emoji
}

func (MessageCreated) Kind() string    { return "message-created" }
func (MemberJoined) Kind() string      { return "member-joined" }
func (MemberLeft) Kind() string        { return "member-left" }
func (MemberUpdated) Kind() string     { return "member-updated" }
func (VoiceStateChanged) Kind() string { return "voice-state-changed" }
func (CategoryUpserted) Kind() string  { return "category-upserted" }
func (ChannelUpserted) Kind() string   { return "channel-upserted" }
func (ChannelDeleted) Kind() string    { return "channel-deleted" }
func (ThreadUpserted) Kind() string    { return "thread-upserted" }
func (ThreadDeleted) Kind() string     { return "thread-deleted" }
func (ReactionAdded) Kind() string     { return "reaction-added" }
func (ReactionRemoved) Kind() string   { return "reaction-removed" }
