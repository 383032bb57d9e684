package linker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/linkcode"
	"github.com/ernie/trinity-link/internal/links"
	"github.com/ernie/trinity-link/internal/metrics"
	"github.com/ernie/trinity-link/internal/rolesync"
	"github.com/ernie/trinity-link/internal/worker"
)

// Players delivers text to connected game players. Tell fails when the
// player is not reachable.
type Players interface {
	Tell(game domain.Identity, message string) error
}

// Chat delivers notices to chat identities
type Chat interface {
	SendDirectMessage(ctx context.Context, chat domain.Identity, notice domain.Notice) error
	GuildName() string
}

// Permissions answers permission checks for game identities
type Permissions interface {
	HasPermission(ctx context.Context, game domain.Identity, permission string) (bool, error)
}

// Groups toggles local authorization group membership. Both calls are idempotent.
type Groups interface {
	AddToGroup(ctx context.Context, game domain.Identity, group string) error
	RemoveFromGroup(ctx context.Context, game domain.Identity, group string) error
}

// RoleSync applies the configured chat-platform roles
type RoleSync interface {
	Apply(chat domain.Identity, mode domain.RoleMode) <-chan rolesync.Report
}

// Config holds the engine's policy settings
type Config struct {
	Group                 string
	RevokeGroupOnLeave    bool
	DeauthenticateOnLeave bool
	ChatPrefix            string
	Messages              map[string]string
	SubmitRatePerMinute   int
	SubmitBurst           int
	NotifyWorkers         int
}

// Deps are the engine's collaborators. Metrics may be nil.
type Deps struct {
	Pending     *linkcode.Store
	Links       *links.Store
	Players     Players
	Chat        Chat
	Permissions Permissions
	Groups      Groups
	Roles       RoleSync
	Metrics     metrics.Recorder
}

// Engine drives the code handshake between game and chat identities and
// keeps group membership and roles in step with the link set. Work for one
// game identity is serialized; unrelated identities proceed in parallel.
type Engine struct {
	cfg      Config
	messages Messages

	pending *linkcode.Store
	links   *links.Store
	players Players
	chat    Chat
	perms   Permissions
	groups  Groups
	roles   RoleSync
	metrics metrics.Recorder

	locks   *principalLocks
	limiter *submitLimiter
	notify  *worker.Pool
	events  chan domain.Event

	hooksMu     sync.RWMutex
	linkHooks   []LinkHook
	unlinkHooks []UnlinkHook
}

// New creates an engine and subscribes it to code expiry
func New(cfg Config, deps Deps) *Engine {
	if cfg.Group == "" {
		cfg.Group = "authenticated"
	}
	if cfg.NotifyWorkers <= 0 {
		cfg.NotifyWorkers = 4
	}
	rec := deps.Metrics
	if rec == nil {
		rec = metrics.Nop{}
	}

	e := &Engine{
		cfg:      cfg,
		messages: NewMessages(cfg.Messages),
		pending:  deps.Pending,
		links:    deps.Links,
		players:  deps.Players,
		chat:     deps.Chat,
		perms:    deps.Permissions,
		groups:   deps.Groups,
		roles:    deps.Roles,
		metrics:  rec,
		locks:    newPrincipalLocks(),
		limiter:  newSubmitLimiter(cfg.SubmitRatePerMinute, cfg.SubmitBurst),
		notify:   worker.NewPool("notify", cfg.NotifyWorkers, 256),
		events:   make(chan domain.Event, 100),
	}
	e.pending.OnExpire(e.handleExpired)
	return e
}

// Events returns the link lifecycle event channel
func (e *Engine) Events() <-chan domain.Event {
	return e.events
}

// NotifyDropped returns the number of notifications dropped by a full queue
func (e *Engine) NotifyDropped() int64 {
	return e.notify.Dropped()
}

// Close waits for queued notifications and saves the link set
func (e *Engine) Close(ctx context.Context) error {
	if err := e.notify.Close(ctx); err != nil {
		log.Printf("Error draining notifications: %v", err)
	}
	if err := e.links.Save(ctx); err != nil {
		return fmt.Errorf("saving links: %w", err)
	}
	return nil
}

// --- Exposed read operations ---

// IsAuthenticated reports whether id is linked, as either a game or a chat identity
func (e *Engine) IsAuthenticated(id domain.Identity) bool {
	if _, ok := e.links.LookupByGame(id); ok {
		return true
	}
	_, ok := e.links.LookupByChat(id)
	return ok
}

// GetLinkedChat returns the chat identity linked to game
func (e *Engine) GetLinkedChat(game domain.Identity) (domain.Identity, bool) {
	return e.links.LookupByGame(game)
}

// GetLinkedGame returns the game identity linked to chat
func (e *Engine) GetLinkedGame(chat domain.Identity) (domain.Identity, bool) {
	return e.links.LookupByChat(chat)
}

// LinkCount returns the number of links
func (e *Engine) LinkCount() int {
	return e.links.Count()
}

// AllGameIdentities returns every linked game identity
func (e *Engine) AllGameIdentities() []domain.Identity {
	return e.links.AllGame()
}

// AllChatIdentities returns every linked chat identity
func (e *Engine) AllChatIdentities() []domain.Identity {
	return e.links.AllChat()
}

// Links returns every link ordered by game identity
func (e *Engine) Links() []domain.Link {
	return e.links.All()
}

// --- Exposed mutations ---

// Deauthenticate removes the link for game, revoking its group and roles.
// Calling it for an unlinked identity is a no-op.
func (e *Engine) Deauthenticate(ctx context.Context, game domain.Identity) error {
	unlock := e.locks.lock(game)
	defer unlock()

	chat, ok := e.links.LookupByGame(game)
	if !ok {
		return nil
	}
	if err := e.unlink(ctx, game, chat, domain.ReasonAPI, true); err != nil {
		return err
	}
	e.tellGame(game, MsgGameDeauthenticated, Vars{ID: game})
	return nil
}

// DeauthenticateChat is Deauthenticate keyed by the chat identity
func (e *Engine) DeauthenticateChat(ctx context.Context, chat domain.Identity) error {
	game, ok := e.links.LookupByChat(chat)
	if !ok {
		return nil
	}
	return e.Deauthenticate(ctx, game)
}

// --- Internal transitions ---

// commitLink records the link and grants group and roles. The caller holds
// the principal lock for game.
func (e *Engine) commitLink(ctx context.Context, game, chat domain.Identity) error {
	if !e.linkAllowed(ctx, game, chat) {
		log.Printf("Link of %s to %s vetoed by hook", game, chat)
		return domain.ErrVetoed
	}

	if _, err := e.links.Link(ctx, game, chat); err != nil {
		if domain.Kind(err) == domain.KindPersistence {
			log.Printf("ERROR: failed to persist link %s -> %s: %v", game, chat, err)
		}
		return err
	}

	e.pending.Remove(game)
	e.addGroup(ctx, game)
	e.roles.Apply(chat, domain.RoleGrant)

	e.metrics.RecordLinkCreated()
	e.emitEvent(domain.NewEvent(domain.EventLinkCreated, domain.LinkEvent{Game: game, Chat: chat}))
	log.Printf("Link successful: %s linked to %s", game, chat)
	return nil
}

// unlink removes the link and the group. Roles are revoked only when
// revokeRoles is set. The caller holds the principal lock for game.
func (e *Engine) unlink(ctx context.Context, game, chat domain.Identity, reason string, revokeRoles bool) error {
	if !e.unlinkAllowed(ctx, game, chat) {
		log.Printf("Unlink of %s from %s vetoed by hook", game, chat)
		return domain.ErrVetoed
	}

	removed, err := e.links.Unlink(ctx, game)
	if err != nil {
		log.Printf("ERROR: failed to persist unlink of %s: %v", game, err)
		return err
	}
	if removed == nil {
		return nil
	}

	e.removeGroup(ctx, game)
	if revokeRoles {
		e.roles.Apply(chat, domain.RoleRevoke)
	}

	e.metrics.RecordLinkRemoved(reason)
	e.emitEvent(domain.NewEvent(domain.EventLinkRemoved, domain.LinkEvent{Game: game, Chat: chat, Reason: reason}))
	log.Printf("Unlinked %s from %s (%s)", game, chat, reason)
	return nil
}

func (e *Engine) addGroup(ctx context.Context, game domain.Identity) {
	if err := e.groups.AddToGroup(ctx, game, e.cfg.Group); err != nil {
		log.Printf("Error adding %s to group %s: %v", game, e.cfg.Group, err)
	}
}

func (e *Engine) removeGroup(ctx context.Context, game domain.Identity) {
	if err := e.groups.RemoveFromGroup(ctx, game, e.cfg.Group); err != nil {
		log.Printf("Error removing %s from group %s: %v", game, e.cfg.Group, err)
	}
}

// handleExpired runs after the pending store dropped an expired code
func (e *Engine) handleExpired(pc domain.PendingCode) {
	unlock := e.locks.lock(pc.Requester)
	defer unlock()

	// A link committed while this waited on the lock used the code.
	if _, linked := e.links.LookupByGame(pc.Requester); linked {
		return
	}

	e.metrics.RecordCodeExpired()
	e.emitEvent(domain.NewEvent(domain.EventCodeExpired, domain.CodeEvent{Game: pc.Requester}))
	e.tellGame(pc.Requester, MsgCodeExpired, Vars{ID: pc.Requester})
}

func (e *Engine) allowed(ctx context.Context, game domain.Identity, permission string) bool {
	ok, err := e.perms.HasPermission(ctx, game, permission)
	if err != nil {
		log.Printf("Error checking permission %s for %s: %v", permission, game, err)
		return false
	}
	return ok
}

// tellGame sends a prefixed message to a game player in the background
func (e *Engine) tellGame(game domain.Identity, key string, v Vars) {
	message := e.messages.Render(key, e.fill(v))
	if e.cfg.ChatPrefix != "" {
		message = e.cfg.ChatPrefix + " " + message
	}
	e.notify.Submit(func(ctx context.Context) {
		if err := e.players.Tell(game, message); err != nil {
			log.Printf("Unable to tell %s: %v", game, err)
		}
	})
}

// sendChat sends a notice to a chat identity in the background
func (e *Engine) sendChat(chat domain.Identity, key string, v Vars, tone domain.Tone) {
	notice := domain.Notice{Text: e.messages.RenderPlain(key, e.fill(v)), Tone: tone}
	e.notify.Submit(func(ctx context.Context) {
		if err := e.chat.SendDirectMessage(ctx, chat, notice); err != nil {
			log.Printf("Error sending direct message to %s: %v", chat, err)
		}
	})
}

func (e *Engine) fill(v Vars) Vars {
	v.Group = e.cfg.Group
	if v.Guild == "" {
		v.Guild = e.chat.GuildName()
	}
	return v
}

// emitEvent sends an event to the event channel
func (e *Engine) emitEvent(event domain.Event) {
	select {
	case e.events <- event:
	default:
		// Channel full, drop event
	}
}

// errorOutcome maps a submission error to a metrics outcome
func errorOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrVetoed):
		return metrics.OutcomeVetoed
	case errors.Is(err, domain.ErrAlreadyLinked), errors.Is(err, domain.ErrChatAlreadyLinked):
		return metrics.OutcomeAlreadyLinked
	default:
		return metrics.OutcomeError
	}
}
