package discord

import (
	"context"
	"log"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/worker"
)

const gatewayIntents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers | discordgo.IntentsDirectMessages

// Handler receives the guild events the linker reacts to
type Handler interface {
	HandleDirectMessage(ctx context.Context, chat domain.Identity, text string) error
	HandleMemberJoined(ctx context.Context, chat domain.Identity) error
	HandleMemberLeft(ctx context.Context, chat domain.Identity) error
}

// Gateway keeps the client's session connected to the Discord gateway and
// hands direct messages and member changes to a Handler on a worker pool.
type Gateway struct {
	client  *Client
	handler Handler
	pool    *worker.Pool
}

// NewGateway registers the event handlers on client's session
func NewGateway(client *Client, handler Handler, pool *worker.Pool) *Gateway {
	g := &Gateway{client: client, handler: handler, pool: pool}

	s := client.Session()
	s.Identify.Intents = gatewayIntents
	s.AddHandler(g.onReady)
	s.AddHandler(g.onGuildCreate)
	s.AddHandler(g.onMessageCreate)
	s.AddHandler(g.onMemberAdd)
	s.AddHandler(g.onMemberRemove)
	return g
}

// Run opens the gateway and holds it until ctx is cancelled. Opening is
// retried with backoff; once connected discordgo resumes and reconnects on
// its own.
func (g *Gateway) Run(ctx context.Context) error {
	s := g.client.Session()
	backoff := time.Second
	for {
		err := s.Open()
		if err == nil {
			break
		}
		log.Printf("Discord gateway connect failed: %v (retrying in %v)", err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}

	<-ctx.Done()
	return s.Close()
}

func (g *Gateway) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	if r.User == nil {
		log.Printf("Discord gateway ready without a user")
		return
	}
	log.Printf("Discord gateway ready as %s", r.User.Username)
}

func (g *Gateway) onGuildCreate(_ *discordgo.Session, gc *discordgo.GuildCreate) {
	if gc.Guild == nil || gc.ID != g.client.GuildID() {
		return
	}
	g.client.SetGuild(gc.Name, gc.Roles)
	log.Printf("Discord guild %s loaded with %d roles", gc.Name, len(gc.Roles))
}

func (g *Gateway) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	// Only direct messages from people count as code submissions.
	if m.Message == nil || m.GuildID != "" || m.Author == nil || m.Author.Bot {
		return
	}
	chat := domain.Identity(m.Author.ID)
	text := m.Content
	g.submit(func(ctx context.Context) error {
		return g.handler.HandleDirectMessage(ctx, chat, text)
	})
}

func (g *Gateway) onMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if chat, ok := g.guildMember(m.Member); ok {
		g.submit(func(ctx context.Context) error { return g.handler.HandleMemberJoined(ctx, chat) })
	}
}

func (g *Gateway) onMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if chat, ok := g.guildMember(m.Member); ok {
		g.submit(func(ctx context.Context) error { return g.handler.HandleMemberLeft(ctx, chat) })
	}
}

// guildMember returns the identity of a human member of the managed guild
func (g *Gateway) guildMember(m *discordgo.Member) (domain.Identity, bool) {
	if m == nil || m.User == nil || m.User.Bot || m.GuildID != g.client.GuildID() {
		return "", false
	}
	return domain.Identity(m.User.ID), true
}

func (g *Gateway) submit(fn func(ctx context.Context) error) {
	g.pool.Submit(func(ctx context.Context) {
		if err := fn(ctx); err != nil && domain.Kind(err) != domain.KindValidation && domain.Kind(err) != domain.KindNotFound {
			log.Printf("Error handling Discord event: %v", err)
		}
	})
}
