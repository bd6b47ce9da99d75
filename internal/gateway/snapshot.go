package gateway

import (
	"context"
	"fmt"
	"slices"

	"github.com/bwmarrin/discordgo"

	"github.com/franklinacm/synapse/internal/source"
)

const memberPageSize = 1000

// FetchSnapshot reads the guild's current members, roles, channels, active
// threads and voice states. Voice states are not available over REST and
// come from the session state, so call it after WaitReady.
func (g *Gateway) FetchSnapshot(ctx context.Context) (*source.Snapshot, error) {
	opt := discordgo.WithContext(ctx)

	guild, err := g.session.Guild(g.guildID, opt)
	if err != nil {
		return nil, fmt.Errorf("fetch guild: %w", err)
	}
	roles, err := g.session.GuildRoles(g.guildID, opt)
	if err != nil {
		return nil, fmt.Errorf("fetch roles: %w", err)
	}
	channels, err := g.session.GuildChannels(g.guildID, opt)
	if err != nil {
		return nil, fmt.Errorf("fetch channels: %w", err)
	}
	threads, err := g.session.GuildThreadsActive(g.guildID, opt)
	if err != nil {
		return nil, fmt.Errorf("fetch active threads: %w", err)
	}
	members, err := g.fetchMembers(ctx)
	if err != nil {
		return nil, err
	}

	var voice []*discordgo.VoiceState
	if st, err := g.session.State.Guild(g.guildID); err == nil {
		voice = st.VoiceStates
	}

	return buildSnapshot(guild, members, roles, channels, threads.Threads, voice), nil
}

func (g *Gateway) fetchMembers(ctx context.Context) ([]*discordgo.Member, error) {
	var (
		out   []*discordgo.Member
		after string
	)
	for {
		page, err := g.session.GuildMembers(g.guildID, after, memberPageSize, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("fetch members after %q: %w", after, err)
		}
		out = append(out, page...)
		if len(page) < memberPageSize {
			return out, nil
		}
		after = page[len(page)-1].User.ID
	}
}

// buildSnapshot converts fetched guild objects. The @everyone role shares
// the guild's id and is left out of the role list.
func buildSnapshot(
	guild *discordgo.Guild,
	members []*discordgo.Member,
	roles []*discordgo.Role,
	channels []*discordgo.Channel,
	threads []*discordgo.Channel,
	voice []*discordgo.VoiceState,
) *source.Snapshot {
	ix := newIndex(slices.Concat(channels, threads), roles)

	snap := &source.Snapshot{
		Guild: source.Guild{
			ID:        parseID(guild.ID),
			Name:      guild.Name,
			CreatedAt: createdAt(guild.ID),
		},
	}

	for _, r := range roles {
		if r.ID == guild.ID {
			continue
		}
		snap.Roles = append(snap.Roles, source.Role{ID: parseID(r.ID), Name: r.Name})
	}

	byUser := make(map[string]source.Member, len(members))
	for _, m := range members {
		if m.User == nil {
			continue
		}
		sm := convertMember(m, nil, ix)
		byUser[m.User.ID] = sm
		snap.Members = append(snap.Members, sm)
	}

	for _, c := range channels {
		switch {
		case c.Type == discordgo.ChannelTypeGuildCategory:
			snap.Categories = append(snap.Categories, convertCategory(c))
		case isThread(c):
		default:
			snap.Channels = append(snap.Channels, convertChannel(c, ix))
		}
	}

	for _, c := range threads {
		if t, ok := convertThread(c, ix); ok {
			snap.Threads = append(snap.Threads, t)
		}
	}

	for _, vs := range voice {
		ch := voiceChannel(vs, ix)
		if ch == nil {
			continue
		}
		member, ok := byUser[vs.UserID]
		if !ok {
			member = convertMember(vs.Member, nil, ix)
		}
		if member.User.ID == 0 {
			continue
		}
		snap.VoiceStates = append(snap.VoiceStates, source.VoiceState{Member: member, Channel: *ch})
	}
	return snap
}
