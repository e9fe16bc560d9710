package userauth

import (
	"sync"
	"time"

	"github.com/streamkit/kickhooks"
)

// Scheduler arms and cancels the per-identity renewal timers. Arming always
// replaces any timer already pending for that identity, so at most one renewal is
// ever outstanding per identity. The interface exists so that tests can drive
// renewals deterministically instead of waiting on real timers.
type Scheduler interface {
	Arm(identity kickhooks.Identity, delay time.Duration, fn func())
	Cancel(identity kickhooks.Identity)
}

type timerScheduler struct {
	mu     sync.Mutex
	timers map[kickhooks.Identity]*time.Timer
}

func NewScheduler() Scheduler {
	return &timerScheduler{
		timers: make(map[kickhooks.Identity]*time.Timer),
	}
}

func (s *timerScheduler) Arm(identity kickhooks.Identity, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[identity]; ok {
		t.Stop()
	}
	s.timers[identity] = time.AfterFunc(delay, fn)
}

func (s *timerScheduler) Cancel(identity kickhooks.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[identity]; ok {
		t.Stop()
		delete(s.timers, identity)
	}
}
