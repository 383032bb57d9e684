package schedule

import (
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler driven by an explicit clock. Callbacks run
// synchronously from Advance, which makes expiry deterministic in tests and
// in replay tooling.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	tasks map[string]manualTask
}

type manualTask struct {
	at time.Time
	fn func()
}

// NewManual creates a manual scheduler starting at start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, tasks: make(map[string]manualTask)}
}

// Schedule registers fn to run once the clock passes now+delay
func (m *Manual) Schedule(key string, delay time.Duration, fn func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[key] = manualTask{at: m.now.Add(delay), fn: fn}
	return nil
}

// Cancel drops a pending callback
func (m *Manual) Cancel(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tasks[key]
	delete(m.tasks, key)
	return ok
}

// Now returns the scheduler's clock
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Pending returns the number of callbacks not yet fired
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Advance moves the clock forward and runs every callback that became due,
// earliest first
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	type due struct {
		key string
		manualTask
	}
	var ready []due
	for key, task := range m.tasks {
		if !task.at.After(m.now) {
			ready = append(ready, due{key, task})
			delete(m.tasks, key)
		}
	}
	m.mu.Unlock()

	sort.Slice(ready, func(i, j int) bool { return ready[i].at.Before(ready[j].at) })
	for _, task := range ready {
		task.fn()
	}
}
