package rules

import (
	"github.com/franklinacm/synapse/internal/activity"
)

// Detail is the type-specific part of an event fed to Build.
// Implemented by MessageDetail, RoleChangeDetail and VoiceDetail.
type Detail interface {
	applyTo(c *Context)
}

// MessageDetail carries a stored message and its first attachment, if any.
type MessageDetail struct {
	Message         activity.Message
	FirstAttachment *activity.Attachment
}

// RoleChangeDetail carries the role external ids a member gained and lost.
type RoleChangeDetail struct {
	Added   []int64
	Removed []int64
}

// VoiceDetail carries the voice channel and, for a closed session, its length.
type VoiceDetail struct {
	ChannelExtID int64
	DurationSecs *float64
}

// Build projects a persisted event and the state around it into a Context.
// member, channel and detail may be nil; their fields are then left unset.
func Build(path Path, ev activity.Event, member *activity.Member, channel *activity.ChannelState, detail Detail) *Context {
	c := &Context{
		EventType: ev.Type,
		EventID:   ev.ID,
		MemberID:  ev.MemberID,
		ChannelID: ev.ChannelID,
		Path:      path,
		CreatedAt: ev.CreatedAt.UTC(),
	}

	if member != nil {
		c.MemberExtID = ptr(member.ExtID)
		c.MemberIsBoosting = ptr(member.IsBoosting())
		if member.JoinedAt != nil {
			c.MemberJoinedAt = ptr(member.JoinedAt.UTC())
		}
		c.MemberPCurrency = ptr(member.PCurrency)
		c.MemberSCurrency = ptr(member.SCurrency)
	}

	if channel != nil {
		c.ChannelExtID = ptr(channel.ExtID)
		c.ChannelType = ptr(channel.Type)
		c.CategoryExtID = channel.CategoryExtID
	}

	if detail != nil {
		detail.applyTo(c)
	}
	return c
}

func (d MessageDetail) applyTo(c *Context) {
	m := d.Message
	c.ContentLength = ptr(m.ContentLength)
	c.AuthorIsBot = ptr(m.AuthorIsBot)
	c.IsReply = ptr(m.IsReply())
	c.HasPoll = ptr(m.HasPoll)
	c.HasStickers = ptr(m.HasStickers)
	c.IsTTS = ptr(m.IsTTS)
	c.IsPinned = ptr(m.IsPinned)
	c.HasAttachments = ptr(m.HasAttachments)
	c.AttachmentCount = ptr(m.AttachmentCount)
	c.ReactionCount = ptr(m.ReactionCount)
	c.MentionUserCount = ptr(m.MentionUsers)
	c.MentionEveryone = ptr(m.MentionEveryone)
	c.EmbedCount = ptr(m.EmbedCount)
	c.IsVoiceMessage = ptr(m.IsVoiceMessage)
	c.MessageType = ptr(m.Type)
	if a := d.FirstAttachment; a != nil {
		c.AttachmentFilename = ptr(a.Filename)
		if a.ContentType != "" {
			c.AttachmentContentType = ptr(a.ContentType)
		}
	}
}

func (d RoleChangeDetail) applyTo(c *Context) {
	// Non-nil even when empty: the event is a role change.
	c.RolesAdded = append(make([]int64, 0, len(d.Added)), d.Added...)
	c.RolesRemoved = append(make([]int64, 0, len(d.Removed)), d.Removed...)
}

func (d VoiceDetail) applyTo(c *Context) {
	c.VoiceChannelExtID = ptr(d.ChannelExtID)
	if d.DurationSecs != nil {
		c.SessionDurationMinutes = ptr(*d.DurationSecs / 60)
	}
}
