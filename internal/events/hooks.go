package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/linker"
)

// HookRequest is sent to hook responders before a link change
type HookRequest struct {
	Game domain.Identity `json:"game_id"`
	Chat domain.Identity `json:"chat_id"`
}

// HookReply is a responder's verdict
type HookReply struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// Hooks asks external services over NATS request/reply whether a link may
// be created or removed. Subjects are <prefix>.hooks.before_link and
// <prefix>.hooks.before_unlink. With no responders subscribed the change is
// allowed; a responder that times out or replies garbage denies it.
type Hooks struct {
	nc      *nats.Conn
	prefix  string
	timeout time.Duration
}

// NewHooks creates a hook requester on nc
func NewHooks(nc *nats.Conn, prefix string, timeout time.Duration) *Hooks {
	return &Hooks{nc: nc, prefix: prefix, timeout: timeout}
}

func (h *Hooks) BeforeLink(ctx context.Context, game, chat domain.Identity) linker.Decision {
	return h.ask(ctx, h.prefix+".hooks.before_link", game, chat)
}

func (h *Hooks) BeforeUnlink(ctx context.Context, game, chat domain.Identity) linker.Decision {
	return h.ask(ctx, h.prefix+".hooks.before_unlink", game, chat)
}

func (h *Hooks) ask(ctx context.Context, subject string, game, chat domain.Identity) linker.Decision {
	data, err := json.Marshal(HookRequest{Game: game, Chat: chat})
	if err != nil {
		return linker.Deny
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	msg, err := h.nc.RequestWithContext(ctx, subject, data)
	if errors.Is(err, nats.ErrNoResponders) {
		return linker.Allow
	}
	if err != nil {
		log.Printf("Hook %s for %s/%s failed: %v", subject, game, chat, err)
		return linker.Deny
	}

	var reply HookReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		log.Printf("Hook %s returned invalid reply: %v", subject, err)
		return linker.Deny
	}
	if !reply.Allow {
		log.Printf("Hook %s denied %s/%s: %s", subject, game, chat, reply.Reason)
		return linker.Deny
	}
	return linker.Allow
}
