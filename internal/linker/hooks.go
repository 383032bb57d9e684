package linker

import (
	"context"

	"github.com/ernie/trinity-link/internal/domain"
)

// Decision is a hook's verdict on a pending link change
type Decision int

const (
	Allow Decision = iota
	Deny
)

// LinkHook is consulted before a link is committed
type LinkHook interface {
	BeforeLink(ctx context.Context, game, chat domain.Identity) Decision
}

// UnlinkHook is consulted before a link is removed
type UnlinkHook interface {
	BeforeUnlink(ctx context.Context, game, chat domain.Identity) Decision
}

// LinkHookFunc adapts a function to LinkHook
type LinkHookFunc func(ctx context.Context, game, chat domain.Identity) Decision

func (f LinkHookFunc) BeforeLink(ctx context.Context, game, chat domain.Identity) Decision {
	return f(ctx, game, chat)
}

// UnlinkHookFunc adapts a function to UnlinkHook
type UnlinkHookFunc func(ctx context.Context, game, chat domain.Identity) Decision

func (f UnlinkHookFunc) BeforeUnlink(ctx context.Context, game, chat domain.Identity) Decision {
	return f(ctx, game, chat)
}

// AddLinkHook registers h. Any hook returning Deny vetoes the link.
func (e *Engine) AddLinkHook(h LinkHook) {
	e.hooksMu.Lock()
	e.linkHooks = append(e.linkHooks, h)
	e.hooksMu.Unlock()
}

// AddUnlinkHook registers h. Any hook returning Deny vetoes the removal.
func (e *Engine) AddUnlinkHook(h UnlinkHook) {
	e.hooksMu.Lock()
	e.unlinkHooks = append(e.unlinkHooks, h)
	e.hooksMu.Unlock()
}

func (e *Engine) linkAllowed(ctx context.Context, game, chat domain.Identity) bool {
	e.hooksMu.RLock()
	hooks := e.linkHooks
	e.hooksMu.RUnlock()

	for _, h := range hooks {
		if h.BeforeLink(ctx, game, chat) == Deny {
			return false
		}
	}
	return true
}

func (e *Engine) unlinkAllowed(ctx context.Context, game, chat domain.Identity) bool {
	e.hooksMu.RLock()
	hooks := e.unlinkHooks
	e.hooksMu.RUnlock()

	for _, h := range hooks {
		if h.BeforeUnlink(ctx, game, chat) == Deny {
			return false
		}
	}
	return true
}
