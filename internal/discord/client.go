package discord

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/ernie/trinity-link/internal/domain"
)

// Embed colors per notice tone
const (
	ColorError   = 16098851
	ColorInfo    = 4886754
	ColorSuccess = 11523722
	ColorDeauth  = 9905970
)

func toneColor(t domain.Tone) int {
	switch t {
	case domain.ToneSuccess:
		return ColorSuccess
	case domain.ToneError:
		return ColorError
	case domain.ToneDeauth:
		return ColorDeauth
	default:
		return ColorInfo
	}
}

// Client wraps a discordgo session bound to one guild. It caches the guild
// name, the role name to ID table and DM channel IDs.
type Client struct {
	session *discordgo.Session
	guildID string

	mu         sync.RWMutex
	guildName  string
	roles      map[string]string // role name -> ID
	dmChannels map[domain.Identity]string
}

// NewClient creates a client for the bot token. A non-empty apiURL sends
// REST calls there instead of discord.com.
func NewClient(token, guildID, apiURL string) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating Discord session: %w", err)
	}
	// Handlers only queue work, so run them in arrival order.
	session.SyncEvents = true
	session.StateEnabled = false

	if apiURL != "" {
		transport, err := newAPITransport(apiURL)
		if err != nil {
			return nil, err
		}
		session.Client.Transport = transport
	}

	return &Client{
		session:    session,
		guildID:    guildID,
		roles:      make(map[string]string),
		dmChannels: make(map[domain.Identity]string),
	}, nil
}

// Session returns the underlying discordgo session
func (c *Client) Session() *discordgo.Session {
	return c.session
}

// GuildID returns the guild this client manages
func (c *Client) GuildID() string {
	return c.guildID
}

// GuildName returns the cached guild name
func (c *Client) GuildName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.guildName == "" {
		return "Discord"
	}
	return c.guildName
}

// SetGuild replaces the cached guild name and roles
func (c *Client) SetGuild(name string, roles []*discordgo.Role) {
	byName := make(map[string]string, len(roles))
	for _, r := range roles {
		byName[r.Name] = r.ID
	}
	c.mu.Lock()
	if name != "" {
		c.guildName = name
	}
	c.roles = byName
	c.mu.Unlock()
}

// RefreshGuild loads the guild name and roles
func (c *Client) RefreshGuild(ctx context.Context) error {
	guild, err := c.session.Guild(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("loading guild %s: %w", c.guildID, err)
	}
	c.SetGuild(guild.Name, guild.Roles)
	return nil
}

// ResolveRole returns the ID of the role named name. The role list is
// re-fetched once when the name is not cached.
func (c *Client) ResolveRole(ctx context.Context, name string) (string, error) {
	if id, ok := c.cachedRole(name); ok {
		return id, nil
	}

	roles, err := c.session.GuildRoles(c.guildID, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("listing roles: %w", err)
	}
	c.mu.Lock()
	c.roles = make(map[string]string, len(roles))
	for _, r := range roles {
		c.roles[r.Name] = r.ID
	}
	c.mu.Unlock()

	if id, ok := c.cachedRole(name); ok {
		return id, nil
	}
	return "", fmt.Errorf("%w: %q", domain.ErrRoleNotFound, name)
}

func (c *Client) cachedRole(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.roles[name]
	return id, ok
}

// AddRole adds a role to a guild member
func (c *Client) AddRole(ctx context.Context, chat domain.Identity, roleID string) error {
	return c.session.GuildMemberRoleAdd(c.guildID, string(chat), roleID, discordgo.WithContext(ctx))
}

// RemoveRole removes a role from a guild member
func (c *Client) RemoveRole(ctx context.Context, chat domain.Identity, roleID string) error {
	return c.session.GuildMemberRoleRemove(c.guildID, string(chat), roleID, discordgo.WithContext(ctx))
}

// SendDirectMessage sends notice to a user as an embed in their DM channel
func (c *Client) SendDirectMessage(ctx context.Context, chat domain.Identity, notice domain.Notice) error {
	channelID, err := c.dmChannel(ctx, chat)
	if err != nil {
		return err
	}

	embed := &discordgo.MessageEmbed{Description: notice.Text, Color: toneColor(notice.Tone)}
	if _, err := c.session.ChannelMessageSendEmbed(channelID, embed, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("sending DM to %s: %w", chat, err)
	}
	return nil
}

func (c *Client) dmChannel(ctx context.Context, chat domain.Identity) (string, error) {
	c.mu.RLock()
	id, ok := c.dmChannels[chat]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	channel, err := c.session.UserChannelCreate(string(chat), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("opening DM channel: %w", err)
	}

	c.mu.Lock()
	c.dmChannels[chat] = channel.ID
	c.mu.Unlock()
	return channel.ID, nil
}

// apiTransport rewrites requests for discordgo.EndpointAPI onto another
// base URL, such as a proxy.
type apiTransport struct {
	base   *url.URL
	prefix string
	next   http.RoundTripper
}

func newAPITransport(apiURL string) (*apiTransport, error) {
	base, err := url.Parse(strings.TrimRight(apiURL, "/"))
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid Discord api_url %q", apiURL)
	}
	def, err := url.Parse(discordgo.EndpointAPI)
	if err != nil {
		return nil, err
	}
	return &apiTransport{base: base, prefix: def.Path, next: http.DefaultTransport}, nil
}

func (t *apiTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.URL.Scheme = t.base.Scheme
	out.URL.Host = t.base.Host
	out.URL.Path = t.base.Path + "/" + strings.TrimPrefix(req.URL.Path, t.prefix)
	out.URL.RawPath = ""
	out.Host = t.base.Host
	return t.next.RoundTrip(out)
}
