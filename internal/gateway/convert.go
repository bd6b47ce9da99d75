package gateway

import (
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/franklinacm/synapse/internal/source"
)

// Raw flag bits read directly so older and newer client versions agree.
const (
	messageFlagVoiceMessage = 1 << 13
	channelFlagPinned       = 1 << 1
	channelTypeMedia        = 16
)

// resolver looks up guild objects referenced by id from other payloads.
type resolver interface {
	Channel(id string) *discordgo.Channel
	RoleName(id string) string
}

// index is a resolver over already fetched channels and roles.
type index struct {
	channels map[string]*discordgo.Channel
	roles    map[string]string
}

func newIndex(channels []*discordgo.Channel, roles []*discordgo.Role) *index {
	ix := &index{
		channels: make(map[string]*discordgo.Channel, len(channels)),
		roles:    make(map[string]string, len(roles)),
	}
	for _, c := range channels {
		ix.channels[c.ID] = c
	}
	for _, r := range roles {
		ix.roles[r.ID] = r.Name
	}
	return ix
}

func (ix *index) Channel(id string) *discordgo.Channel { return ix.channels[id] }
func (ix *index) RoleName(id string) string           { return ix.roles[id] }

// parseID decodes a snowflake string. Malformed or empty ids become 0.
func parseID(s string) int64 {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func parseIDPtr(s string) *int64 {
	if id := parseID(s); id != 0 {
		return &id
	}
	return nil
}

// createdAt is the creation instant encoded in a snowflake.
func createdAt(id string) time.Time {
	t, err := discordgo.SnowflakeTimestamp(id)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

func channelType(t discordgo.ChannelType) string {
	switch t {
	case discordgo.ChannelTypeGuildText:
		return source.ChannelText
	case discordgo.ChannelTypeGuildVoice:
		return source.ChannelVoice
	case discordgo.ChannelTypeGuildStageVoice:
		return source.ChannelStage
	case discordgo.ChannelTypeGuildCategory:
		return source.ChannelCategory
	case discordgo.ChannelTypeGuildNews:
		return source.ChannelNews
	case discordgo.ChannelTypeGuildForum:
		return source.ChannelForum
	case channelTypeMedia:
		return source.ChannelMedia
	case discordgo.ChannelTypeGuildPublicThread:
		return source.ChannelPublicThread
	case discordgo.ChannelTypeGuildPrivateThread:
		return source.ChannelPrivateThread
	case discordgo.ChannelTypeGuildNewsThread:
		return source.ChannelNewsThread
	default:
		return source.ChannelUnknown
	}
}

func isThread(c *discordgo.Channel) bool {
	switch c.Type {
	case discordgo.ChannelTypeGuildPublicThread,
		discordgo.ChannelTypeGuildPrivateThread,
		discordgo.ChannelTypeGuildNewsThread:
		return true
	}
	return false
}

func convertUser(u *discordgo.User) source.User {
	if u == nil {
		return source.User{}
	}
	return source.User{
		ID:         parseID(u.ID),
		Name:       u.Username,
		GlobalName: u.GlobalName,
		AvatarHash: u.Avatar,
		Bot:        u.Bot,
	}
}

// convertMember converts m. Message and voice payloads carry a member
// without its user, so the user is passed separately and wins when set.
func convertMember(m *discordgo.Member, u *discordgo.User, r resolver) source.Member {
	if m == nil {
		return source.Member{User: convertUser(u)}
	}
	if u == nil {
		u = m.User
	}
	out := source.Member{
		User:         convertUser(u),
		Nickname:     m.Nick,
		JoinedAt:     m.JoinedAt.UTC(),
		PremiumSince: m.PremiumSince,
		Pending:      m.Pending,
	}
	for _, id := range m.Roles {
		out.Roles = append(out.Roles, source.Role{ID: parseID(id), Name: r.RoleName(id)})
	}
	return out
}

func convertCategory(c *discordgo.Channel) source.Category {
	return source.Category{ID: parseID(c.ID), Name: c.Name, CreatedAt: createdAt(c.ID)}
}

func convertTags(tags []discordgo.ForumTag) []source.ForumTag {
	var out []source.ForumTag
	for _, t := range tags {
		out = append(out, source.ForumTag{
			ID:        parseID(t.ID),
			Name:      t.Name,
			EmojiName: t.EmojiName,
			EmojiID:   parseIDPtr(t.EmojiID),
			Moderated: t.Moderated,
		})
	}
	return out
}

func convertChannel(c *discordgo.Channel, r resolver) source.Channel {
	out := source.Channel{
		ID:        parseID(c.ID),
		Name:      c.Name,
		Type:      channelType(c.Type),
		CreatedAt: createdAt(c.ID),
		Tags:      convertTags(c.AvailableTags),
	}
	if c.ParentID != "" {
		if parent := r.Channel(c.ParentID); parent != nil && parent.Type == discordgo.ChannelTypeGuildCategory {
			cat := convertCategory(parent)
			out.Category = &cat
		}
	}
	return out
}

// convertThread converts a thread channel. The parent must resolve, since
// a thread row cannot exist without one.
func convertThread(c *discordgo.Channel, r resolver) (source.Thread, bool) {
	parent := r.Channel(c.ParentID)
	if parent == nil {
		return source.Thread{}, false
	}
	t := source.Thread{
		ID:           parseID(c.ID),
		Parent:       convertChannel(parent, r),
		OwnerID:      parseIDPtr(c.OwnerID),
		Name:         c.Name,
		Type:         channelType(c.Type),
		Pinned:       int(c.Flags)&channelFlagPinned != 0,
		MessageCount: c.MessageCount,
		SlowmodeSecs: c.RateLimitPerUser,
		CreatedAt:    createdAt(c.ID),
	}
	if md := c.ThreadMetadata; md != nil {
		t.Archived = md.Archived
		t.Locked = md.Locked
		t.AutoArchiveMinutes = md.AutoArchiveDuration
	}

	applied := make(map[string]bool, len(c.AppliedTags))
	for _, id := range c.AppliedTags {
		applied[id] = true
	}
	for _, tag := range convertTags(parent.AvailableTags) {
		if applied[strconv.FormatInt(tag.ID, 10)] {
			t.AppliedTags = append(t.AppliedTags, tag)
		}
	}
	return t, true
}

// convertMessage converts a guild message. Messages posted in a thread are
// attributed to the thread's parent channel with Thread set. The second
// result is false when the channel cannot be resolved.
func convertMessage(m *discordgo.Message, r resolver) (source.Message, bool) {
	ch := r.Channel(m.ChannelID)
	if ch == nil {
		return source.Message{}, false
	}

	out := source.Message{
		ID:              parseID(m.ID),
		Author:          convertMember(m.Member, m.Author, r),
		Type:            int(m.Type),
		Content:         m.Content,
		CreatedAt:       m.Timestamp.UTC(),
		EditedAt:        m.EditedTimestamp,
		Webhook:         m.WebhookID != "",
		MentionUsers:    len(m.Mentions),
		MentionRoles:    len(m.MentionRoles),
		MentionChannels: len(m.MentionChannels),
		MentionEveryone: m.MentionEveryone,
		TTS:             m.TTS,
		Pinned:          m.Pinned,
		HasStickers:     len(m.StickerItems) > 0,
		EmbedCount:      len(m.Embeds),
		Flags:           int64(m.Flags),
		IsVoiceMessage:  int64(m.Flags)&messageFlagVoiceMessage != 0,
		StartedThread:   m.Thread != nil,
		HasPoll:         m.Poll != nil,
	}

	if isThread(ch) {
		t, ok := convertThread(ch, r)
		if !ok {
			return source.Message{}, false
		}
		out.Channel = t.Parent
		out.Thread = &t
	} else {
		out.Channel = convertChannel(ch, r)
	}

	if ref := m.MessageReference; ref != nil && ref.MessageID != "" {
		out.ReplyToID = parseIDPtr(ref.MessageID)
	}
	for _, a := range m.Attachments {
		out.Attachments = append(out.Attachments, source.Attachment{
			ID:          parseID(a.ID),
			Filename:    a.Filename,
			ContentType: a.ContentType,
			Size:        a.Size,
			Width:       a.Width,
			Height:      a.Height,
		})
	}
	for _, re := range m.Reactions {
		if re.Emoji == nil {
			continue
		}
		out.Reactions = append(out.Reactions, source.Reaction{
			EmojiName: re.Emoji.Name,
			EmojiID:   parseIDPtr(re.Emoji.ID),
			Count:     re.Count,
		})
	}
	return out, true
}

func convertEmoji(e discordgo.Emoji) source.Emoji {
	return source.Emoji{Name: e.Name, ID: parseIDPtr(e.ID)}
}

// voiceChannel resolves the channel a voice state points at, nil when
// disconnected or unknown.
func voiceChannel(vs *discordgo.VoiceState, r resolver) *source.Channel {
	if vs == nil || vs.ChannelID == "" {
		return nil
	}
	c := r.Channel(vs.ChannelID)
	if c == nil {
		return nil
	}
	out := convertChannel(c, r)
	return &out
}

func convertVoiceUpdate(v *discordgo.VoiceStateUpdate, r resolver) source.VoiceStateChanged {
	member := convertMember(v.Member, nil, r)
	if member.User.ID == 0 {
		member.User.ID = parseID(v.UserID)
	}
	return source.VoiceStateChanged{
		Member: member,
		Before: voiceChannel(v.BeforeUpdate, r),
		After:  voiceChannel(v.VoiceState, r),
	}
}
