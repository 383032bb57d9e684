package schedule

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
)

// Scheduler runs one-shot callbacks keyed by an identifier. Scheduling a key
// that is already pending replaces the earlier callback.
type Scheduler interface {
	Schedule(key string, delay time.Duration, fn func()) error
	Cancel(key string) bool
}

// CronScheduler is a Scheduler backed by a gocron scheduler
type CronScheduler struct {
	cron gocron.Scheduler

	mu   sync.Mutex
	jobs map[string]uuid.UUID
}

// NewCronScheduler creates and starts a gocron-backed scheduler
func NewCronScheduler(opts ...gocron.SchedulerOption) (*CronScheduler, error) {
	cron, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	cron.Start()
	return &CronScheduler{
		cron: cron,
		jobs: make(map[string]uuid.UUID),
	}, nil
}

// Schedule fires fn once after delay
func (s *CronScheduler) Schedule(key string, delay time.Duration, fn func()) error {
	s.Cancel(key)

	// Held across NewJob so a callback firing immediately still sees its own ID.
	s.mu.Lock()
	defer s.mu.Unlock()

	start := gocron.OneTimeJobStartImmediately()
	if delay > 0 {
		start = gocron.OneTimeJobStartDateTime(time.Now().Add(delay))
	}

	var id uuid.UUID
	job, err := s.cron.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() {
			// Only the job that still owns the key may fire; a replaced job is stale.
			s.mu.Lock()
			current, ok := s.jobs[key]
			if !ok || current != id {
				s.mu.Unlock()
				return
			}
			delete(s.jobs, key)
			s.mu.Unlock()
			fn()
		}),
		gocron.WithName(key),
		gocron.WithLimitedRuns(1),
	)
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", key, err)
	}

	id = job.ID()
	s.jobs[key] = id
	return nil
}

// Cancel removes a pending callback. It reports whether one was pending.
func (s *CronScheduler) Cancel(key string) bool {
	s.mu.Lock()
	id, ok := s.jobs[key]
	delete(s.jobs, key)
	s.mu.Unlock()

	if !ok {
		return false
	}
	if err := s.cron.RemoveJob(id); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		log.Printf("Error removing scheduled job %s: %v", key, err)
	}
	return true
}

// Pending returns the number of callbacks that have not fired yet
func (s *CronScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Shutdown stops the scheduler; pending callbacks never fire
func (s *CronScheduler) Shutdown() error {
	s.mu.Lock()
	s.jobs = make(map[string]uuid.UUID)
	s.mu.Unlock()
	return s.cron.Shutdown()
}
