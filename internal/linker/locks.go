package linker

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ernie/trinity-link/internal/domain"
)

// principalLocks serializes work per game identity. Entries are dropped once
// no goroutine holds or waits on them.
type principalLocks struct {
	mu    sync.Mutex
	locks map[domain.Identity]*principalLock
}

type principalLock struct {
	sync.Mutex
	refs int
}

func newPrincipalLocks() *principalLocks {
	return &principalLocks{locks: make(map[domain.Identity]*principalLock)}
}

// lock acquires the lock for id and returns its release function
func (p *principalLocks) lock(id domain.Identity) func() {
	p.mu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &principalLock{}
		p.locks[id] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, id)
		}
		p.mu.Unlock()
	}
}

// submitLimiter throttles code submissions per chat identity
type submitLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[domain.Identity]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

const limiterIdle = 10 * time.Minute

func newSubmitLimiter(perMinute, burst int) *submitLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &submitLimiter{
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[domain.Identity]*limiterEntry),
	}
}

// allow reports whether chat may submit another code now. A nil limiter
// allows everything.
func (s *submitLimiter) allow(chat domain.Identity) bool {
	if s == nil {
		return true
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.limiters[chat]
	if !ok {
		if len(s.limiters) >= 1024 {
			s.pruneLocked(now)
		}
		entry = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[chat] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func (s *submitLimiter) pruneLocked(now time.Time) {
	for id, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > limiterIdle {
			delete(s.limiters, id)
		}
	}
}
