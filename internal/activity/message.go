package activity

import "time"

// Message is the detail record of a MESSAGE_CREATE event, keyed by ExtID.
//
// EventID, ExtID, Type and AuthorIsBot are fixed when the row is first
// written. The remaining fields are refreshed whenever the same message is
// ingested again, which is how edits land.
type Message struct {
	ID              int64
	EventID         int64
	ExtID           int64
	ThreadID        *int64
	Type            int
	Content         string
	ContentLength   int
	EditedAt        *time.Time
	ReplyToExtID    *int64
	StartedThread   bool
	AuthorIsBot     bool
	IsWebhook       bool
	HasAttachments  bool
	AttachmentCount int
	ReactionCount   int
	MentionUsers    int
	MentionRoles    int
	MentionChannels int
	MentionEveryone bool
	IsTTS           bool
	IsPinned        bool
	HasStickers     bool
	HasPoll         bool
	EmbedCount      int
	IsVoiceMessage  bool
	Flags           int64
}

// IsReply reports whether the message references another message.
func (m *Message) IsReply() bool {
	return m.ReplyToExtID != nil
}

// Attachment is a file attached to a message.
type Attachment struct {
	ID           int64
	MessageID    int64
	ExtID        int64
	Filename     string
	Description  string
	ContentType  string
	Size         int
	Width        int
	Height       int
	DurationSecs *float64
}

// Reaction is the count of one emoji on one message.
// EmojiExtID is nil for unicode emoji.
type Reaction struct {
	ID         int64
	MessageID  int64
	EmojiName  string
	EmojiExtID *int64
	Count      int
	BurstCount int
}
