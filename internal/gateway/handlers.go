package gateway

import (
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/franklinacm/synapse/internal/source"
)

func (g *Gateway) registerHandlers() {
	s := g.session

	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord ready", "user", r.User.Username, "guilds", len(r.Guilds))
	})

	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildCreate) {
		if !g.ours(e.ID) {
			return
		}
		slog.Info("guild available", "guild", e.ID, "name", e.Name,
			"members", e.MemberCount, "voice_states", len(e.VoiceStates))
		g.readyOnce.Do(func() { close(g.ready) })
	})

	// Without an ingester the session only serves REST reads.
	if g.ingester == nil {
		return
	}

	s.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) {
		if e.Message == nil || !g.ours(e.GuildID) {
			return
		}
		msg, ok := convertMessage(e.Message, g.resolver())
		if !ok {
			slog.Warn("message channel unresolved", "message", e.ID, "channel", e.ChannelID)
			return
		}
		g.deliver(source.MessageCreated{Message: msg})
	})

	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
		if e.Member == nil || !g.ours(e.GuildID) {
			return
		}
		g.deliver(source.MemberJoined{Member: convertMember(e.Member, nil, g.resolver())})
	})

	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
		if e.Member == nil || !g.ours(e.GuildID) {
			return
		}
		g.deliver(source.MemberUpdated{Member: convertMember(e.Member, nil, g.resolver())})
	})

	s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
		if e.Member == nil || e.User == nil || !g.ours(e.GuildID) {
			return
		}
		g.deliver(source.MemberLeft{User: convertUser(e.User)})
	})

	s.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
		if e.VoiceState == nil || !g.ours(e.GuildID) {
			return
		}
		g.deliver(convertVoiceUpdate(e, g.resolver()))
	})

	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelCreate) {
		g.channelChanged(e.Channel)
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelUpdate) {
		g.channelChanged(e.Channel)
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelDelete) {
		if e.Channel == nil || !g.ours(e.GuildID) {
			return
		}
		g.deliver(source.ChannelDeleted{ID: parseID(e.ID)})
	})

	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ThreadCreate) {
		g.threadChanged(e.Channel)
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ThreadUpdate) {
		g.threadChanged(e.Channel)
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.ThreadDelete) {
		if e.Channel == nil || !g.ours(e.GuildID) {
			return
		}
		g.deliver(source.ThreadDeleted{ID: parseID(e.ID)})
	})

	s.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageReactionAdd) {
		if e.MessageReaction == nil || !g.ours(e.GuildID) {
			return
		}
		g.deliver(source.ReactionAdded{MessageID: parseID(e.MessageID), Emoji: convertEmoji(e.Emoji)})
	})
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageReactionRemove) {
		if e.MessageReaction == nil || !g.ours(e.GuildID) {
			return
		}
		g.deliver(source.ReactionRemoved{MessageID: parseID(e.MessageID), Emoji: convertEmoji(e.Emoji)})
	})
}

func (g *Gateway) channelChanged(c *discordgo.Channel) {
	if c == nil || !g.ours(c.GuildID) {
		return
	}
	if c.Type == discordgo.ChannelTypeGuildCategory {
		g.deliver(source.CategoryUpserted{Category: convertCategory(c)})
		return
	}
	g.deliver(source.ChannelUpserted{Channel: convertChannel(c, g.resolver())})
}

func (g *Gateway) threadChanged(c *discordgo.Channel) {
	if c == nil || !g.ours(c.GuildID) {
		return
	}
	t, ok := convertThread(c, g.resolver())
	if !ok {
		slog.Warn("thread parent unresolved", "thread", c.ID, "parent", c.ParentID)
		return
	}
	g.deliver(source.ThreadUpserted{Thread: t})
}
