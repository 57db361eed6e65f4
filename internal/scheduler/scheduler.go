package scheduler

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Scheduler runs one callback per key at a wall-clock deadline.
// Scheduling a key again replaces its pending timer.
type Scheduler struct {
	clock clock.Clock

	mu      sync.Mutex
	timers  map[string]*task
	stopped bool
}

type task struct {
	timer *clock.Timer
	at    time.Time
}

// New returns a scheduler driven by clk. Pass clock.New() in production and
// clock.NewMock() in tests.
func New(clk clock.Clock) *Scheduler {
	return &Scheduler{
		clock:  clk,
		timers: make(map[string]*task),
	}
}

// Schedule arranges for fn to run at (or shortly after) at. A deadline in the
// past fires as soon as the clock allows. fn runs on its own goroutine.
func (s *Scheduler) Schedule(key string, at time.Time, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if old, ok := s.timers[key]; ok {
		old.timer.Stop()
	}

	t := &task{at: at}
	t.timer = s.clock.AfterFunc(at.Sub(s.clock.Now()), func() {
		s.mu.Lock()
		current, ok := s.timers[key]
		if !ok || current != t || s.stopped {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()

		fn()
	})
	s.timers[key] = t
}

// Cancel drops the pending timer for key, if any.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[key]; ok {
		t.timer.Stop()
		delete(s.timers, key)
	}
}

// Deadline reports when key is due to fire.
func (s *Scheduler) Deadline(key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key]
	if !ok {
		return time.Time{}, false
	}
	return t.at, true
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every timer; later Schedule calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for key, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, key)
	}
}
