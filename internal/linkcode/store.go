package linkcode

import (
	"fmt"
	"sync"
	"time"

	"github.com/ernie/trinity-link/internal/domain"
	"github.com/ernie/trinity-link/internal/schedule"
)

// CodeGenerator produces new codes for the store
type CodeGenerator interface {
	Generate(length int, lowercase bool) string
}

// Options configures a Store
type Options struct {
	Length    int
	Lowercase bool
	Lifetime  time.Duration
}

// Store keeps the outstanding code for each requester. Entries are never
// persisted and are removed eagerly when their expiration callback fires.
type Store struct {
	opts  Options
	gen   CodeGenerator
	sched schedule.Scheduler
	now   func() time.Time

	mu       sync.Mutex
	pending  map[domain.Identity]domain.PendingCode
	onExpire func(domain.PendingCode)
}

// NewStore creates a pending code store
func NewStore(opts Options, gen CodeGenerator, sched schedule.Scheduler) *Store {
	if opts.Length <= 0 {
		opts.Length = 5
	}
	if opts.Lifetime <= 0 {
		opts.Lifetime = 60 * time.Minute
	}
	return &Store{
		opts:    opts,
		gen:     gen,
		sched:   sched,
		now:     time.Now,
		pending: make(map[domain.Identity]domain.PendingCode),
	}
}

// OnExpire registers fn to run after an entry has expired and been removed
func (s *Store) OnExpire(fn func(domain.PendingCode)) {
	s.mu.Lock()
	s.onExpire = fn
	s.mu.Unlock()
}

// CodeLength returns the configured code length
func (s *Store) CodeLength() int {
	return s.opts.Length
}

// RequestCode returns the requester's pending code, issuing a new one if none
// exists. The second return value is true only when a new code was issued.
func (s *Store) RequestCode(requester domain.Identity) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pc, ok := s.pending[requester]; ok {
		return pc.Code, false, nil
	}

	pc := domain.PendingCode{
		Requester: requester,
		Code:      s.gen.Generate(s.opts.Length, s.opts.Lowercase),
		IssuedAt:  s.now(),
	}
	s.pending[requester] = pc

	if err := s.sched.Schedule(expiryKey(requester), s.opts.Lifetime, func() {
		s.expire(requester, pc.Code)
	}); err != nil {
		delete(s.pending, requester)
		return "", false, fmt.Errorf("scheduling code expiration: %w", err)
	}
	return pc.Code, true, nil
}

// Match returns the requester owning the submitted code. When two requesters
// hold the same code the first one found wins; map order makes that choice
// non-deterministic.
func (s *Store) Match(submitted string) (domain.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for requester, pc := range s.pending {
		if pc.Code == submitted {
			return requester, true
		}
	}
	return "", false
}

// Code returns the requester's pending code
func (s *Store) Code(requester domain.Identity) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pc, ok := s.pending[requester]
	return pc.Code, ok
}

// Remove clears the requester's entry and cancels its expiration.
// It reports whether an entry was present.
func (s *Store) Remove(requester domain.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[requester]
	delete(s.pending, requester)
	s.sched.Cancel(expiryKey(requester))
	return ok
}

// Len returns the number of pending codes
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// expire removes the entry only if it still holds the code the timer was armed for
func (s *Store) expire(requester domain.Identity, code string) {
	s.mu.Lock()
	pc, ok := s.pending[requester]
	if !ok || pc.Code != code {
		s.mu.Unlock()
		return
	}
	delete(s.pending, requester)
	onExpire := s.onExpire
	s.mu.Unlock()

	if onExpire != nil {
		onExpire(pc)
	}
}

func expiryKey(requester domain.Identity) string {
	return "code:" + string(requester)
}
