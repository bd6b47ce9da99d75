package activity

import "time"

// Category is a channel category keyed by external id.
type Category struct {
	ID        int64
	ExtID     int64
	Name      string
	IsActive  bool
	CreatedAt *time.Time
}

// Channel is a guild channel. Type is the platform channel kind
// (for example "TEXT", "VOICE", "FORUM").
type Channel struct {
	ID         int64
	ExtID      int64
	CategoryID *int64
	Name       string
	Type       string
	IsActive   bool
	CreatedAt  *time.Time
}

// ChannelState is the channel view the rule context needs:
// the channel's own identity plus its category's external id.
type ChannelState struct {
	ID            int64
	ExtID         int64
	Type          string
	CategoryExtID *int64
}

// Thread is a thread or forum post under a parent channel.
type Thread struct {
	ID                 int64
	ExtID              int64
	ChannelID          int64
	OwnerMemberID      *int64
	Name               string
	Type               string
	IsArchived         bool
	IsLocked           bool
	IsPinned           bool
	IsActive           bool
	MessageCount       int
	SlowmodeSecs       int
	AutoArchiveMinutes int
	CreatedAt          *time.Time
}

// ForumTag is a tag defined on a forum channel.
type ForumTag struct {
	ID          int64
	ExtID       int64
	ChannelID   int64
	Name        string
	EmojiName   string
	EmojiExtID  *int64
	IsModerated bool
	IsActive    bool
}

// VoiceSession is the detail record of a VOICE_JOIN event.
// LeftAt and DurationSecs are set when the session closes.
type VoiceSession struct {
	ID           int64
	EventID      int64
	MemberID     int64
	ChannelID    int64
	JoinedAt     time.Time
	LeftAt       *time.Time
	DurationSecs *float64
}

// Open reports whether the session has not been closed yet.
func (v *VoiceSession) Open() bool {
	return v.LeftAt == nil
}

// Season is a named time window used by season predicates.
// A nil EndsAt means the season is open-ended.
type Season struct {
	ID       int64
	Name     string
	StartsAt time.Time
	EndsAt   *time.Time
}

// ActiveAt reports whether the season covers t: StartsAt <= t < EndsAt.
func (s *Season) ActiveAt(t time.Time) bool {
	if t.Before(s.StartsAt) {
		return false
	}
	return s.EndsAt == nil || t.Before(*s.EndsAt)
}
