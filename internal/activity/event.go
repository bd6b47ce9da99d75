package activity

import "time"

// EventType tags the kind of occurrence an Event records.
type EventType string

const (
	EventMessageCreate    EventType = "MESSAGE_CREATE"
	EventMemberJoin       EventType = "MEMBER_JOIN"
	EventMemberLeave      EventType = "MEMBER_LEAVE"
	EventMemberRoleChange EventType = "MEMBER_ROLE_CHANGE"
	EventVoiceJoin        EventType = "VOICE_JOIN"
	EventVoiceLeave       EventType = "VOICE_LEAVE"
	EventVoiceMove        EventType = "VOICE_MOVE"
)

// EventTypes lists every known event type in a stable order.
var EventTypes = []EventType{
	EventMessageCreate,
	EventMemberJoin,
	EventMemberLeave,
	EventMemberRoleChange,
	EventVoiceJoin,
	EventVoiceLeave,
	EventVoiceMove,
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event is the parent row of every activity occurrence. Written once, never updated.
type Event struct {
	ID        int64
	MemberID  int64
	ChannelID *int64
	Type      EventType
	CreatedAt time.Time
}
