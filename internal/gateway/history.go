package gateway

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/franklinacm/synapse/internal/source"
)

// maxHistoryPage is the largest page the messages endpoint serves.
const maxHistoryPage = 100

// TextChannels lists the channels whose history can be scanned.
func (g *Gateway) TextChannels(ctx context.Context) ([]source.Channel, error) {
	channels, err := g.session.GuildChannels(g.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch channels: %w", err)
	}
	return textChannels(channels), nil
}

func textChannels(channels []*discordgo.Channel) []source.Channel {
	ix := newIndex(channels, nil)
	var out []source.Channel
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText || c.Type == discordgo.ChannelTypeGuildNews {
			out = append(out, convertChannel(c, ix))
		}
	}
	return out
}

// MessagesAfter returns up to limit messages posted in channel after
// afterID, oldest first.
func (g *Gateway) MessagesAfter(ctx context.Context, channel source.Channel, afterID int64, limit int) ([]source.Message, error) {
	limit = min(max(limit, 1), maxHistoryPage)
	channelID := strconv.FormatInt(channel.ID, 10)

	page, err := g.session.ChannelMessages(channelID, limit, "", strconv.FormatInt(afterID, 10), "",
		discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch messages of %s after %d: %w", channelID, afterID, err)
	}
	return historyPage(page, g.resolver()), nil
}

// historyPage converts a page of messages and orders it by id. The API
// returns newest first.
func historyPage(page []*discordgo.Message, r resolver) []source.Message {
	out := make([]source.Message, 0, len(page))
	for _, m := range page {
		msg, ok := convertMessage(m, r)
		if !ok {
			continue
		}
		out = append(out, msg)
	}
	slices.SortFunc(out, func(a, b source.Message) int { return cmp.Compare(a.ID, b.ID) })
	return out
}
