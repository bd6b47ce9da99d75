package rules

import (
	"strconv"
	"time"

	"github.com/franklinacm/synapse/internal/activity"
)

// Path names the ingestion path that produced an event.
type Path string

const (
	PathLive     Path = "live"
	PathHistoric Path = "historic"
)

// Context is the flat field bag predicates read.
//
// Fields that do not apply to the event type are nil rather than zero, so a
// predicate can tell "does not apply" from "false" or "0".
type Context struct {
	EventType activity.EventType `json:"event_type"`
	EventID   int64              `json:"event_id"`
	MemberID  int64              `json:"member_id"`
	ChannelID *int64             `json:"channel_id,omitempty"`
	Path      Path               `json:"path"`
	CreatedAt time.Time          `json:"created_at"`

	// Message events.
	ContentLength         *int    `json:"content_length,omitempty"`
	AuthorIsBot           *bool   `json:"author_is_bot,omitempty"`
	IsReply               *bool   `json:"is_reply,omitempty"`
	HasPoll               *bool   `json:"has_poll,omitempty"`
	HasStickers           *bool   `json:"has_stickers,omitempty"`
	IsTTS                 *bool   `json:"is_tts,omitempty"`
	IsPinned              *bool   `json:"is_pinned,omitempty"`
	HasAttachments        *bool   `json:"has_attachments,omitempty"`
	AttachmentCount       *int    `json:"attachment_count,omitempty"`
	ReactionCount         *int    `json:"reaction_count,omitempty"`
	MentionUserCount      *int    `json:"mention_user_count,omitempty"`
	MentionEveryone       *bool   `json:"mention_everyone,omitempty"`
	EmbedCount            *int    `json:"embed_count,omitempty"`
	IsVoiceMessage        *bool   `json:"is_voice_message,omitempty"`
	MessageType           *int    `json:"message_type,omitempty"`
	AttachmentFilename    *string `json:"attachment_filename,omitempty"`
	AttachmentContentType *string `json:"attachment_content_type,omitempty"`

	// Member state.
	MemberExtID      *int64     `json:"member_ext_id,omitempty"`
	MemberIsBoosting *bool      `json:"member_is_boosting,omitempty"`
	MemberJoinedAt   *time.Time `json:"member_joined_at,omitempty"`
	MemberPCurrency  *int64     `json:"member_p_currency,omitempty"`
	MemberSCurrency  *int64     `json:"member_s_currency,omitempty"`

	// Channel state.
	ChannelExtID  *int64  `json:"channel_ext_id,omitempty"`
	ChannelType   *string `json:"channel_type,omitempty"`
	CategoryExtID *int64  `json:"category_ext_id,omitempty"`

	// Role-change events. A nil slice means the event is not a role change.
	RolesAdded   []int64 `json:"roles_added,omitempty"`
	RolesRemoved []int64 `json:"roles_removed,omitempty"`

	// Voice events.
	VoiceChannelExtID      *int64   `json:"voice_channel_ext_id,omitempty"`
	SessionDurationMinutes *float64 `json:"session_duration_minutes,omitempty"`
}

// ReferenceTime is the instant time-based checks measure against:
// the event's own timestamp on the historic path, now otherwise.
func (c *Context) ReferenceTime(now time.Time) time.Time {
	if c.Path == PathHistoric && !c.CreatedAt.IsZero() {
		return c.CreatedAt
	}
	return now
}

// BoolField returns a boolean field by name; ok is false when the field is
// unknown or unset.
func (c *Context) BoolField(name string) (value, ok bool) {
	switch name {
	case "author_is_bot":
		return deref(c.AuthorIsBot)
	case "is_reply":
		return deref(c.IsReply)
	case "has_poll":
		return deref(c.HasPoll)
	case "has_stickers":
		return deref(c.HasStickers)
	case "is_tts":
		return deref(c.IsTTS)
	case "is_pinned":
		return deref(c.IsPinned)
	case "has_attachments":
		return deref(c.HasAttachments)
	case "mention_everyone":
		return deref(c.MentionEveryone)
	case "is_voice_message":
		return deref(c.IsVoiceMessage)
	case "has_embed":
		if c.EmbedCount == nil {
			return false, false
		}
		return *c.EmbedCount > 0, true
	case "member_is_boosting":
		return deref(c.MemberIsBoosting)
	}
	return false, false
}

// NumberField returns a numeric field by name as float64.
func (c *Context) NumberField(name string) (float64, bool) {
	switch name {
	case "content_length":
		return intField(c.ContentLength)
	case "attachment_count":
		return intField(c.AttachmentCount)
	case "reaction_count":
		return intField(c.ReactionCount)
	case "mention_user_count":
		return intField(c.MentionUserCount)
	case "embed_count":
		return intField(c.EmbedCount)
	case "message_type":
		return intField(c.MessageType)
	case "p_currency":
		return int64Field(c.MemberPCurrency)
	case "s_currency":
		return int64Field(c.MemberSCurrency)
	case "session_duration_minutes":
		return deref(c.SessionDurationMinutes)
	}
	return 0, false
}

// StringField returns a string-valued field by name. Identifiers are
// rendered in decimal.
func (c *Context) StringField(name string) (string, bool) {
	switch name {
	case "channel_ext_id":
		return idField(c.ChannelExtID)
	case "channel_type":
		return deref(c.ChannelType)
	case "category_ext_id":
		return idField(c.CategoryExtID)
	case "message_type":
		if c.MessageType == nil {
			return "", false
		}
		return strconv.Itoa(*c.MessageType), true
	case "attachment_filename":
		return deref(c.AttachmentFilename)
	case "attachment_content_type":
		return deref(c.AttachmentContentType)
	case "voice_channel_ext_id":
		return idField(c.VoiceChannelExtID)
	case "member_ext_id":
		return idField(c.MemberExtID)
	}
	return "", false
}

func deref[T any](p *T) (T, bool) {
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}

func intField(p *int) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return float64(*p), true
}

func int64Field(p *int64) (float64, bool) {
	if p == nil {
		return 0, false
	}
	return float64(*p), true
}

func idField(p *int64) (string, bool) {
	if p == nil {
		return "", false
	}
	return strconv.FormatInt(*p, 10), true
}

func ptr[T any](v T) *T { return &v }
