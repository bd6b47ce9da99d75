package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/franklinacm/synapse/internal/source"
)

// Intents requested on connect. Message content is privileged and must be
// enabled for the bot in the developer portal.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsGuildMessageReactions |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsMessageContent

// Ingester consumes converted events.
type Ingester interface {
	Ingest(ctx context.Context, ev source.Event) error
}

// Gateway is a guild-scoped Discord connection.
type Gateway struct {
	session  *discordgo.Session
	guildID  string
	ingester Ingester

	ready     chan struct{}
	readyOnce sync.Once
	gate      chan struct{}
	gateOnce  sync.Once

	mu  sync.Mutex
	ctx context.Context
}

// New creates a gateway for guildID. Nothing connects until Open. in may be
// nil when the gateway is only used for snapshots and history.
func New(token, guildID string, in Ingester) (*Gateway, error) {
	if token == "" {
		return nil, errors.New("gateway: bot token is required")
	}
	if guildID == "" {
		return nil, errors.New("gateway: guild id is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents
	s.StateEnabled = true
	s.State.TrackVoice = true

	return &Gateway{
		session:  s,
		guildID:  guildID,
		ingester: in,
		ready:    make(chan struct{}),
		gate:     make(chan struct{}),
		ctx:      context.Background(),
	}, nil
}

// Open registers handlers and connects. ctx bounds the handlers' ingest
// calls for the life of the connection.
func (g *Gateway) Open(ctx context.Context) error {
	g.mu.Lock()
	g.ctx = ctx
	g.mu.Unlock()

	g.registerHandlers()
	if err := g.session.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}
	slog.Info("discord connection opened", "guild", g.guildID)
	return nil
}

// Close disconnects.
func (g *Gateway) Close() error {
	return g.session.Close()
}

// WaitReady blocks until the guild's create payload has populated the
// session state.
func (g *Gateway) WaitReady(ctx context.Context) error {
	select {
	case <-g.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for guild %s: %w", g.guildID, ctx.Err())
	}
}

// StartDelivery releases held events and lets new ones through.
func (g *Gateway) StartDelivery() {
	g.gateOnce.Do(func() { close(g.gate) })
}

func (g *Gateway) deliveryContext() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctx
}

// deliver waits for the gate and hands ev to the ingester. discordgo runs
// each handler on its own goroutine, so waiting here does not stall the
// websocket reader.
func (g *Gateway) deliver(ev source.Event) {
	ctx := g.deliveryContext()
	select {
	case <-g.gate:
	case <-ctx.Done():
		slog.Warn("event dropped on shutdown", "kind", ev.Kind())
		return
	}
	if err := g.ingester.Ingest(ctx, ev); err != nil {
		slog.Error("ingest failed", "kind", ev.Kind(), "error", err)
	}
}

func (g *Gateway) ours(guildID string) bool {
	return guildID == g.guildID
}

// live resolves ids through the session state, falling back to REST for
// channels the state has not seen.
type live struct {
	s       *discordgo.Session
	guildID string
}

func (l live) Channel(id string) *discordgo.Channel {
	if c, err := l.s.State.Channel(id); err == nil {
		return c
	}
	c, err := l.s.Channel(id)
	if err != nil {
		slog.Debug("channel lookup failed", "channel", id, "error", err)
		return nil
	}
	return c
}

func (l live) RoleName(id string) string {
	if r, err := l.s.State.Role(l.guildID, id); err == nil {
		return r.Name
	}
	return ""
}

func (g *Gateway) resolver() resolver {
	return live{s: g.session, guildID: g.guildID}
}
