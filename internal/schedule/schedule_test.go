package schedule

import (
	"sync/atomic"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T) *CronScheduler {
	t.Helper()
	s, err := NewCronScheduler()
	if err != nil {
		t.Fatalf("NewCronScheduler: %v", err)
	}
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func TestScheduleFiresOnce(t *testing.T) {
	s := newTestScheduler(t)

	fired := make(chan struct{}, 2)
	if err := s.Schedule("g1", 20*time.Millisecond, func() { fired <- struct{}{} }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not fire")
	}

	select {
	case <-fired:
		t.Fatal("callback fired twice")
	case <-time.After(100 * time.Millisecond):
	}

	if n := s.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

func TestCancelPreventsCallback(t *testing.T) {
	s := newTestScheduler(t)

	var calls atomic.Int32
	if err := s.Schedule("g1", 150*time.Millisecond, func() { calls.Add(1) }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !s.Cancel("g1") {
		t.Fatal("Cancel() = false, want true for a pending key")
	}
	if s.Cancel("g1") {
		t.Error("second Cancel() = true, want false")
	}

	time.Sleep(300 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("callback ran %d times after cancel", n)
	}
}

func TestRescheduleReplacesPrevious(t *testing.T) {
	s := newTestScheduler(t)

	var first, second atomic.Int32
	done := make(chan struct{})
	if err := s.Schedule("g1", 100*time.Millisecond, func() { first.Add(1) }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := s.Schedule("g1", 150*time.Millisecond, func() { second.Add(1); close(done) }); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement callback did not fire")
	}
	time.Sleep(50 * time.Millisecond)

	if first.Load() != 0 {
		t.Error("replaced callback fired")
	}
	if second.Load() != 1 {
		t.Errorf("replacement fired %d times, want 1", second.Load())
	}
}
