package source

import "time"

// Channel kinds as stored and matched by CHANNEL_TYPE_IS.
const (
	ChannelText          = "TEXT"
	ChannelVoice         = "VOICE"
	ChannelStage         = "STAGE"
	ChannelCategory      = "CATEGORY"
	ChannelNews          = "NEWS"
	ChannelForum         = "FORUM"
	ChannelMedia         = "MEDIA"
	ChannelPublicThread  = "PUBLIC_THREAD"
	ChannelPrivateThread = "PRIVATE_THREAD"
	ChannelNewsThread    = "NEWS_THREAD"
	ChannelUnknown       = "UNKNOWN"
)

// User is the account behind a member.
type User struct {
	ID         int64
	Name       string
	GlobalName string
	AvatarHash string
	Bot        bool
}

// Role is a guild role.
type Role struct {
	ID   int64
	Name string
}

// Member is a user's membership in the guild.
type Member struct {
	User         User
	Nickname     string
	JoinedAt     time.Time
	PremiumSince *time.Time
	Pending      bool
	Roles        []Role
}

// Category groups channels.
type Category struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// ForumTag is a tag defined on a forum channel and applied to its posts.
type ForumTag struct {
	ID        int64
	Name      string
	EmojiName string
	EmojiID   *int64
	Moderated bool
}

// Channel is a non-thread guild channel. Category is nil for top-level channels.
type Channel struct {
	ID        int64
	Name      string
	Type      string
	Category  *Category
	CreatedAt time.Time
	Tags      []ForumTag
}

// Thread is a thread or forum post inside Parent.
type Thread struct {
	ID                 int64
	Parent             Channel
	OwnerID            *int64
	Name               string
	Type               string
	Archived           bool
	Locked             bool
	Pinned             bool
	MessageCount       int
	SlowmodeSecs       int
	AutoArchiveMinutes int
	CreatedAt          time.Time
	AppliedTags        []ForumTag
}

// Attachment is a file on a message.
type Attachment struct {
	ID           int64
	Filename     string
	Description  string
	ContentType  string
	Size         int
	Width        int
	Height       int
	DurationSecs *float64
}

// Reaction is a per-emoji count on a message.
type Reaction struct {
	EmojiName  string
	EmojiID    *int64
	Count      int
	BurstCount int
}

// Emoji identifies the emoji of a single reaction add or remove.
type Emoji struct {
	Name string
	ID   *int64
}

// Message is a guild message. Channel is the containing non-thread channel;
// Thread is set when the message was posted inside a thread.
type Message struct {
	ID              int64
	Author          Member
	Channel         Channel
	Thread          *Thread
	Type            int
	Content         string
	CreatedAt       time.Time
	EditedAt        *time.Time
	ReplyToID       *int64
	StartedThread   bool
	Webhook         bool
	MentionUsers    int
	MentionRoles    int
	MentionChannels int
	MentionEveryone bool
	TTS             bool
	Pinned          bool
	HasStickers     bool
	HasPoll         bool
	EmbedCount      int
	IsVoiceMessage  bool
	Flags           int64
	Attachments     []Attachment
	Reactions       []Reaction
}

// Guild describes the guild itself.
type Guild struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// VoiceState is a member currently connected to a voice or stage channel.
type VoiceState struct {
	Member  Member
	Channel Channel
}
