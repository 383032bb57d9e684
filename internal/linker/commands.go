package linker

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/metrics"
)

// AuthCommand handles a player's request for a link code and returns the
// code the player was told. Re-requesting returns the outstanding code.
func (e *Engine) AuthCommand(ctx context.Context, game domain.Identity) (string, error) {
	unlock := e.locks.lock(game)
	defer unlock()

	if !e.allowed(ctx, game, domain.PermAuth) {
		e.tellGame(game, MsgNoPermission, Vars{ID: game})
		return "", domain.ErrNoPermission
	}

	if _, linked := e.links.LookupByGame(game); linked {
		e.tellGame(game, MsgAlreadyAuthenticated, Vars{ID: game})
		return "", domain.ErrAlreadyLinked
	}

	code, issued, err := e.pending.RequestCode(game)
	if err != nil {
		log.Printf("Error issuing code for %s: %v", game, err)
		return "", err
	}
	if issued {
		e.metrics.RecordCodeIssued()
		e.emitEvent(domain.NewEvent(domain.EventCodeIssued, domain.CodeEvent{Game: game}))
		log.Printf("Issued link code for %s", game)
	}

	e.tellGame(game, MsgCodeGeneration, Vars{Code: code, ID: game})
	return code, nil
}

// DeauthCommand handles a player's request to remove their own link
func (e *Engine) DeauthCommand(ctx context.Context, game domain.Identity) error {
	unlock := e.locks.lock(game)
	defer unlock()

	if !e.allowed(ctx, game, domain.PermDeauth) {
		e.tellGame(game, MsgNoPermission, Vars{ID: game})
		return domain.ErrNoPermission
	}

	chat, ok := e.links.LookupByGame(game)
	if !ok {
		e.tellGame(game, MsgNotAuthenticated, Vars{ID: game})
		return domain.ErrNotLinked
	}

	if err := e.unlink(ctx, game, chat, domain.ReasonCommand, true); err != nil {
		e.tellGame(game, MsgDeauthFailed, Vars{ID: game})
		return err
	}
	e.tellGame(game, MsgGameDeauthenticated, Vars{ID: game})
	return nil
}

// HandleDirectMessage treats a direct message as a code submission. Messages
// whose length differs from the code length are ignored without a reply.
func (e *Engine) HandleDirectMessage(ctx context.Context, chat domain.Identity, text string) error {
	code := strings.TrimSpace(text)
	if len(code) != e.pending.CodeLength() {
		e.metrics.RecordSubmission(metrics.OutcomeInvalid)
		return domain.ErrInvalidCode
	}

	if !e.limiter.allow(chat) {
		e.metrics.RecordSubmission(metrics.OutcomeRateLimited)
		log.Printf("Rate limited code submission from %s", chat)
		return domain.ErrRateLimited
	}

	game, ok := e.pending.Match(code)
	if !ok {
		e.metrics.RecordSubmission(metrics.OutcomeNotFound)
		e.sendChat(chat, MsgUnableToFindCode, Vars{ID: chat}, domain.ToneError)
		return domain.ErrCodeNotFound
	}

	unlock := e.locks.lock(game)
	defer unlock()

	// The code may have expired or been used while the lock was contended.
	if current, ok := e.pending.Code(game); !ok || current != code {
		e.metrics.RecordSubmission(metrics.OutcomeNotFound)
		e.sendChat(chat, MsgUnableToFindCode, Vars{ID: chat}, domain.ToneError)
		return domain.ErrCodeNotFound
	}

	// The code stays pending so its owner can still use it from another account.
	if _, linked := e.links.LookupByChat(chat); linked {
		e.metrics.RecordSubmission(metrics.OutcomeAlreadyLinked)
		e.sendChat(chat, MsgAlreadyAuthenticated, Vars{ID: chat}, domain.ToneInfo)
		return domain.ErrChatAlreadyLinked
	}

	if err := e.commitLink(ctx, game, chat); err != nil {
		e.metrics.RecordSubmission(errorOutcome(err))
		if errors.Is(err, domain.ErrAlreadyLinked) {
			e.pending.Remove(game)
			e.sendChat(chat, MsgAlreadyAuthenticated, Vars{ID: chat}, domain.ToneInfo)
		}
		return err
	}

	e.metrics.RecordSubmission(metrics.OutcomeLinked)
	e.sendChat(chat, MsgAuthenticated, Vars{ID: chat}, domain.ToneSuccess)
	e.tellGame(game, MsgAuthenticated, Vars{ID: game})
	return nil
}

// HandleMemberLeft applies the leave policy to a chat identity that left the guild
func (e *Engine) HandleMemberLeft(ctx context.Context, chat domain.Identity) error {
	game, ok := e.links.LookupByChat(chat)
	if !ok {
		return nil
	}

	unlock := e.locks.lock(game)
	defer unlock()

	if current, ok := e.links.LookupByGame(game); !ok || current != chat {
		return nil
	}

	switch {
	case e.cfg.DeauthenticateOnLeave:
		// The member is gone, so there are no roles left to revoke.
		if err := e.unlink(ctx, game, chat, domain.ReasonLeft, false); err != nil {
			return err
		}
		e.sendChat(chat, MsgDiscordDeauthenticated, Vars{ID: game}, domain.ToneDeauth)

	case e.cfg.RevokeGroupOnLeave:
		e.removeGroup(ctx, game)
		e.emitEvent(domain.NewEvent(domain.EventGroupRevoked, domain.GroupEvent{Game: game, Chat: chat, Group: e.cfg.Group}))
		e.sendChat(chat, MsgGroupRevoked, Vars{ID: game}, domain.ToneError)
		log.Printf("Revoked group %s from %s after %s left", e.cfg.Group, game, chat)
	}
	return nil
}

// HandleMemberJoined re-applies group and roles for a linked member joining the guild
func (e *Engine) HandleMemberJoined(ctx context.Context, chat domain.Identity) error {
	game, ok := e.links.LookupByChat(chat)
	if !ok {
		return nil
	}

	unlock := e.locks.lock(game)
	defer unlock()

	if current, ok := e.links.LookupByGame(game); !ok || current != chat {
		return nil
	}

	e.addGroup(ctx, game)
	e.roles.Apply(chat, domain.RoleGrant)

	if e.cfg.RevokeGroupOnLeave {
		e.emitEvent(domain.NewEvent(domain.EventGroupGranted, domain.GroupEvent{Game: game, Chat: chat, Group: e.cfg.Group}))
		e.sendChat(chat, MsgGroupGranted, Vars{ID: game}, domain.ToneInfo)
	}
	return nil
}
