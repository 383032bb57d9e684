package links

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ernie/trinity-link/internal/domain"
)

// Persister is the durable representation of the link set. WriteLinks must
// fully replace whatever was stored before.
type Persister interface {
	ReadLinks(ctx context.Context) ([]domain.Link, error)
	WriteLinks(ctx context.Context, links []domain.Link) error
}

// Store is a bijection between game and chat identities. Every mutation is
// written through to the Persister before it is reported as successful; a
// failed write rolls the in-memory change back.
type Store struct {
	persister Persister
	now       func() time.Time

	mu     sync.RWMutex
	byGame map[domain.Identity]domain.Link
	byChat map[domain.Identity]domain.Identity
}

// Open loads the persisted links
func Open(ctx context.Context, p Persister) (*Store, error) {
	loaded, err := p.ReadLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading links: %w", err)
	}

	s := &Store{
		persister: p,
		now:       time.Now,
		byGame:    make(map[domain.Identity]domain.Link, len(loaded)),
		byChat:    make(map[domain.Identity]domain.Identity, len(loaded)),
	}
	for _, l := range loaded {
		if _, dup := s.byGame[l.Game]; dup {
			return nil, fmt.Errorf("duplicate game identity %s in persisted links", l.Game)
		}
		if _, dup := s.byChat[l.Chat]; dup {
			return nil, fmt.Errorf("duplicate chat identity %s in persisted links", l.Chat)
		}
		s.byGame[l.Game] = l
		s.byChat[l.Chat] = l.Game
	}
	return s, nil
}

// Link pairs game with chat. It fails without overwriting if either side is
// already linked.
func (s *Store) Link(ctx context.Context, game, chat domain.Identity) (domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byGame[game]; ok {
		return domain.Link{}, domain.ErrAlreadyLinked
	}
	if _, ok := s.byChat[chat]; ok {
		return domain.Link{}, domain.ErrChatAlreadyLinked
	}

	l := domain.Link{Game: game, Chat: chat, LinkedAt: s.now().UTC().Truncate(time.Second)}
	s.byGame[game] = l
	s.byChat[chat] = game

	if err := s.persistLocked(ctx); err != nil {
		delete(s.byGame, game)
		delete(s.byChat, chat)
		return domain.Link{}, err
	}
	return l, nil
}

// Unlink removes the link for a game identity. Removing an absent link is a
// no-op. The removed link is returned when one existed.
func (s *Store) Unlink(ctx context.Context, game domain.Identity) (*domain.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.byGame[game]
	if !ok {
		return nil, nil
	}
	delete(s.byGame, game)
	delete(s.byChat, l.Chat)

	if err := s.persistLocked(ctx); err != nil {
		s.byGame[game] = l
		s.byChat[l.Chat] = game
		return nil, err
	}
	return &l, nil
}

// UnlinkByChat removes the link for a chat identity
func (s *Store) UnlinkByChat(ctx context.Context, chat domain.Identity) (*domain.Link, error) {
	s.mu.RLock()
	game, ok := s.byChat[chat]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return s.Unlink(ctx, game)
}

// LookupByGame returns the chat identity linked to game
func (s *Store) LookupByGame(game domain.Identity) (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.byGame[game]
	return l.Chat, ok
}

// LookupByChat returns the game identity linked to chat
func (s *Store) LookupByChat(chat domain.Identity) (domain.Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.byChat[chat]
	return game, ok
}

// Count returns the number of links
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byGame)
}

// All returns every link ordered by game identity
func (s *Store) All() []domain.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// AllGame returns every linked game identity
func (s *Store) AllGame() []domain.Identity {
	all := s.All()
	ids := make([]domain.Identity, len(all))
	for i, l := range all {
		ids[i] = l.Game
	}
	return ids
}

// AllChat returns every linked chat identity, in the same order as AllGame
func (s *Store) AllChat() []domain.Identity {
	all := s.All()
	ids := make([]domain.Identity, len(all))
	for i, l := range all {
		ids[i] = l.Chat
	}
	return ids
}

// Save writes the current link set, used at shutdown
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persistLocked(ctx)
}

func (s *Store) persistLocked(ctx context.Context) error {
	if err := s.persister.WriteLinks(ctx, s.snapshotLocked()); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (s *Store) snapshotLocked() []domain.Link {
	all := make([]domain.Link, 0, len(s.byGame))
	for _, l := range s.byGame {
		all = append(all, l)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Game < all[j].Game })
	return all
}
