package gateway

import (
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/franklinacm/synapse/internal/source"
)

var t0 = time.Date(2024, 10, 1, 12, 0, 0, 0, time.UTC)

func fixtureIndex() *index {
	channels := []*discordgo.Channel{
		{ID: "400", Name: "community", Type: discordgo.ChannelTypeGuildCategory},
		{ID: "500", Name: "general", Type: discordgo.ChannelTypeGuildText, ParentID: "400"},
		{ID: "510", Name: "announcements", Type: discordgo.ChannelTypeGuildNews},
		{ID: "520", Name: "help", Type: discordgo.ChannelTypeGuildForum, ParentID: "400",
			AvailableTags: []discordgo.ForumTag{
				{ID: "91", Name: "solved", EmojiName: "✅"},
				{ID: "92", Name: "bug", EmojiID: "77", Moderated: true},
			}},
		{ID: "600", Name: "lounge", Type: discordgo.ChannelTypeGuildVoice},
		{ID: "601", Name: "stage", Type: discordgo.ChannelTypeGuildStageVoice},
		{ID: "700", Name: "crash on start", Type: discordgo.ChannelTypeGuildPublicThread, ParentID: "520",
			OwnerID: "1001", MessageCount: 12, RateLimitPerUser: 5, Flags: discordgo.ChannelFlags(channelFlagPinned),
			AppliedTags:    []string{"92"},
			ThreadMetadata: &discordgo.ThreadMetadata{Archived: true, AutoArchiveDuration: 1440}},
		{ID: "701", Name: "orphan", Type: discordgo.ChannelTypeGuildPublicThread, ParentID: "999"},
	}
	roles := []*discordgo.Role{{ID: "1", Name: "@everyone"}, {ID: "10", Name: "regular"}}
	return newIndex(channels, roles)
}

func TestParseID(t *testing.T) {
	assert.Equal(t, int64(175928847299117063), parseID("175928847299117063"))
	assert.Zero(t, parseID(""))
	assert.Zero(t, parseID("abc"))
	assert.Nil(t, parseIDPtr(""))
	require.NotNil(t, parseIDPtr("42"))
	assert.Equal(t, int64(42), *parseIDPtr("42"))
}

func TestCreatedAt(t *testing.T) {
	got := createdAt("175928847299117063")
	assert.Equal(t, time.Date(2016, 4, 30, 11, 18, 25, 796000000, time.UTC), got)
	assert.True(t, createdAt("junk").IsZero())
}

func TestChannelType(t *testing.T) {
	tests := []struct {
		in   discordgo.ChannelType
		want string
	}{
		{discordgo.ChannelTypeGuildText, source.ChannelText},
		{discordgo.ChannelTypeGuildVoice, source.ChannelVoice},
		{discordgo.ChannelTypeGuildStageVoice, source.ChannelStage},
		{discordgo.ChannelTypeGuildCategory, source.ChannelCategory},
		{discordgo.ChannelTypeGuildNews, source.ChannelNews},
		{discordgo.ChannelTypeGuildForum, source.ChannelForum},
		{channelTypeMedia, source.ChannelMedia},
		{discordgo.ChannelTypeGuildPublicThread, source.ChannelPublicThread},
		{discordgo.ChannelTypeGuildPrivateThread, source.ChannelPrivateThread},
		{discordgo.ChannelTypeGuildNewsThread, source.ChannelNewsThread},
		{discordgo.ChannelTypeDM, source.ChannelUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, channelType(tt.in), "type %d", tt.in)
	}
}

func TestConvertMember(t *testing.T) {
	ix := fixtureIndex()
	since := t0.Add(-time.Hour)
	m := &discordgo.Member{
		User:         &discordgo.User{ID: "1001", Username: "ada", GlobalName: "Ada", Avatar: "abc"},
		Nick:         "countess",
		JoinedAt:     t0.AddDate(0, -1, 0),
		PremiumSince: &since,
		Roles:        []string{"10", "11"},
	}

	got := convertMember(m, nil, ix)
	assert.Equal(t, int64(1001), got.User.ID)
	assert.Equal(t, "ada", got.User.Name)
	assert.Equal(t, "Ada", got.User.GlobalName)
	assert.Equal(t, "abc", got.User.AvatarHash)
	assert.Equal(t, "countess", got.Nickname)
	assert.Equal(t, t0.AddDate(0, -1, 0), got.JoinedAt)
	assert.Equal(t, &since, got.PremiumSince)
	assert.Equal(t, []source.Role{{ID: 10, Name: "regular"}, {ID: 11}}, got.Roles)

	// Message payloads carry the member without a user.
	author := &discordgo.User{ID: "1002", Username: "grace", Bot: true}
	got = convertMember(&discordgo.Member{Nick: "g"}, author, ix)
	assert.Equal(t, int64(1002), got.User.ID)
	assert.True(t, got.User.Bot)
	assert.Equal(t, "g", got.Nickname)

	got = convertMember(nil, author, ix)
	assert.Equal(t, "grace", got.User.Name)
	assert.True(t, got.JoinedAt.IsZero())
}

func TestConvertChannel(t *testing.T) {
	ix := fixtureIndex()

	general := convertChannel(ix.Channel("500"), ix)
	assert.Equal(t, int64(500), general.ID)
	assert.Equal(t, source.ChannelText, general.Type)
	require.NotNil(t, general.Category)
	assert.Equal(t, int64(400), general.Category.ID)
	assert.Equal(t, "community", general.Category.Name)

	news := convertChannel(ix.Channel("510"), ix)
	assert.Nil(t, news.Category)

	forum := convertChannel(ix.Channel("520"), ix)
	require.Len(t, forum.Tags, 2)
	assert.Equal(t, source.ForumTag{ID: 91, Name: "solved", EmojiName: "✅"}, forum.Tags[0])
	require.NotNil(t, forum.Tags[1].EmojiID)
	assert.Equal(t, int64(77), *forum.Tags[1].EmojiID)
	assert.True(t, forum.Tags[1].Moderated)

	// A parent that is not a category is not a category.
	thread := convertChannel(ix.Channel("700"), ix)
	assert.Nil(t, thread.Category)
}

func TestConvertThread(t *testing.T) {
	ix := fixtureIndex()

	th, ok := convertThread(ix.Channel("700"), ix)
	require.True(t, ok)
	assert.Equal(t, int64(700), th.ID)
	assert.Equal(t, int64(520), th.Parent.ID)
	assert.Equal(t, source.ChannelForum, th.Parent.Type)
	require.NotNil(t, th.OwnerID)
	assert.Equal(t, int64(1001), *th.OwnerID)
	assert.Equal(t, source.ChannelPublicThread, th.Type)
	assert.True(t, th.Archived)
	assert.False(t, th.Locked)
	assert.True(t, th.Pinned)
	assert.Equal(t, 12, th.MessageCount)
	assert.Equal(t, 5, th.SlowmodeSecs)
	assert.Equal(t, 1440, th.AutoArchiveMinutes)
	require.Len(t, th.AppliedTags, 1)
	assert.Equal(t, "bug", th.AppliedTags[0].Name)

	_, ok = convertThread(ix.Channel("701"), ix)
	assert.False(t, ok, "thread without a resolvable parent")
}

func TestConvertMessage(t *testing.T) {
	ix := fixtureIndex()
	edited := t0.Add(time.Minute)
	m := &discordgo.Message{
		ID:              "9001",
		ChannelID:       "500",
		GuildID:         "1",
		Content:         "hello there",
		Timestamp:       t0,
		EditedTimestamp: &edited,
		Author:          &discordgo.User{ID: "1001", Username: "ada"},
		Member:          &discordgo.Member{Roles: []string{"10"}, JoinedAt: t0.AddDate(0, -1, 0)},
		Mentions:        []*discordgo.User{{ID: "1002"}, {ID: "1003"}},
		MentionRoles:    []string{"10"},
		MentionEveryone: true,
		TTS:             true,
		Embeds:          []*discordgo.MessageEmbed{{Title: "a"}},
		StickerItems:    []*discordgo.StickerItem{{ID: "5"}},
		Flags:           discordgo.MessageFlags(messageFlagVoiceMessage),
		Poll:            &discordgo.Poll{AllowMultiselect: true},
		MessageReference: &discordgo.MessageReference{
			MessageID: "8000",
		},
		Attachments: []*discordgo.MessageAttachment{
			{ID: "31", Filename: "cat.png", ContentType: "image/png", Size: 2048, Width: 64, Height: 48},
		},
		Reactions: []*discordgo.MessageReactions{
			{Count: 3, Emoji: &discordgo.Emoji{Name: "👍"}},
			{Count: 1, Emoji: &discordgo.Emoji{Name: "party", ID: "55"}},
			{Count: 2},
		},
	}

	got, ok := convertMessage(m, ix)
	require.True(t, ok)
	assert.Equal(t, int64(9001), got.ID)
	assert.Equal(t, int64(1001), got.Author.User.ID)
	assert.Equal(t, []source.Role{{ID: 10, Name: "regular"}}, got.Author.Roles)
	assert.Equal(t, int64(500), got.Channel.ID)
	assert.Nil(t, got.Thread)
	assert.Equal(t, "hello there", got.Content)
	assert.Equal(t, t0, got.CreatedAt)
	assert.Equal(t, &edited, got.EditedAt)
	require.NotNil(t, got.ReplyToID)
	assert.Equal(t, int64(8000), *got.ReplyToID)
	assert.Equal(t, 2, got.MentionUsers)
	assert.Equal(t, 1, got.MentionRoles)
	assert.True(t, got.MentionEveryone)
	assert.True(t, got.TTS)
	assert.True(t, got.HasStickers)
	assert.True(t, got.HasPoll)
	assert.True(t, got.IsVoiceMessage)
	assert.Equal(t, 1, got.EmbedCount)
	assert.False(t, got.Webhook)
	require.Len(t, got.Attachments, 1)
	assert.Equal(t, source.Attachment{ID: 31, Filename: "cat.png", ContentType: "image/png", Size: 2048, Width: 64, Height: 48}, got.Attachments[0])
	require.Len(t, got.Reactions, 2, "reactions without an emoji are dropped")
	assert.Equal(t, 3, got.Reactions[0].Count)
	require.NotNil(t, got.Reactions[1].EmojiID)
	assert.Equal(t, int64(55), *got.Reactions[1].EmojiID)
}

func TestConvertMessage_InThread(t *testing.T) {
	ix := fixtureIndex()
	m := &discordgo.Message{
		ID:        "9002",
		ChannelID: "700",
		Timestamp: t0,
		Author:    &discordgo.User{ID: "1001"},
	}

	got, ok := convertMessage(m, ix)
	require.True(t, ok)
	assert.Equal(t, int64(520), got.Channel.ID, "attributed to the thread's parent")
	require.NotNil(t, got.Thread)
	assert.Equal(t, int64(700), got.Thread.ID)
	assert.Nil(t, got.ReplyToID)
	assert.False(t, got.IsVoiceMessage)
	assert.False(t, got.HasPoll)
}

func TestConvertMessage_Unresolved(t *testing.T) {
	ix := fixtureIndex()

	_, ok := convertMessage(&discordgo.Message{ID: "1", ChannelID: "404"}, ix)
	assert.False(t, ok)

	_, ok = convertMessage(&discordgo.Message{ID: "2", ChannelID: "701"}, ix)
	assert.False(t, ok, "thread whose parent is unknown")
}

func TestConvertVoiceUpdate(t *testing.T) {
	ix := fixtureIndex()
	member := &discordgo.Member{User: &discordgo.User{ID: "1001", Username: "ada"}}

	join := convertVoiceUpdate(&discordgo.VoiceStateUpdate{
		VoiceState: &discordgo.VoiceState{UserID: "1001", ChannelID: "600", Member: member},
	}, ix)
	assert.Equal(t, int64(1001), join.Member.User.ID)
	assert.Nil(t, join.Before)
	require.NotNil(t, join.After)
	assert.Equal(t, source.ChannelVoice, join.After.Type)

	move := convertVoiceUpdate(&discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{UserID: "1001", ChannelID: "601"},
		BeforeUpdate: &discordgo.VoiceState{UserID: "1001", ChannelID: "600"},
	}, ix)
	assert.Equal(t, int64(1001), move.Member.User.ID, "user id falls back to the voice state")
	require.NotNil(t, move.Before)
	require.NotNil(t, move.After)
	assert.Equal(t, int64(600), move.Before.ID)
	assert.Equal(t, int64(601), move.After.ID)

	leave := convertVoiceUpdate(&discordgo.VoiceStateUpdate{
		VoiceState:   &discordgo.VoiceState{UserID: "1001"},
		BeforeUpdate: &discordgo.VoiceState{UserID: "1001", ChannelID: "601"},
	}, ix)
	require.NotNil(t, leave.Before)
	assert.Nil(t, leave.After)
}

func TestConvertEmoji(t *testing.T) {
	assert.Equal(t, source.Emoji{Name: "👍"}, convertEmoji(discordgo.Emoji{Name: "👍"}))
	e := convertEmoji(discordgo.Emoji{Name: "party", ID: "55"})
	require.NotNil(t, e.ID)
	assert.Equal(t, int64(55), *e.ID)
}
