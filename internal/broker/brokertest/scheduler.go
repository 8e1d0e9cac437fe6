package brokertest

import (
	"sync"
	"time"

	"portal-bus/internal/broker"
)

// Scheduler records AfterFunc calls; timers only fire through Fire
type Scheduler struct {
	mu     sync.Mutex
	timers []*Timer
}

// Timer is a scheduled call held by Scheduler
type Timer struct {
	Delay time.Duration

	s       *Scheduler
	f       func()
	stopped bool
	fired   bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

func (s *Scheduler) AfterFunc(d time.Duration, f func()) broker.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &Timer{Delay: d, s: s, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (t *Timer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Pending returns the timers that were neither stopped nor fired
func (s *Scheduler) Pending() []*Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Timer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// Fire runs every pending timer and returns how many ran
func (s *Scheduler) Fire() int {
	s.mu.Lock()
	var due []*Timer
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()

	for _, t := range due {
		t.f()
	}
	return len(due)
}

// Run invokes the timer's function even if it was stopped, as a runtime
// timer racing with Stop would.
func (t *Timer) Run() {
	t.s.mu.Lock()
	t.fired = true
	t.s.mu.Unlock()
	t.f()
}
