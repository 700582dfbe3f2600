package services

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dakotastrand/BackTrack-CS-499-Team-9/apperrors"
)

// Scheduler owns one live countdown per armed alert. The race between
// cancellation and natural expiry is decided by a per-alert atomic claim:
// whichever side wins the CompareAndSwap executes its effect, the loser is a
// no-op. The mutex only guards map bookkeeping and never serializes the
// countdowns of unrelated alerts.
type Scheduler struct {
	mu       sync.Mutex
	timers   map[string]*alertTimer
	onExpire func(alertID string)
}

type alertTimer struct {
	claimed atomic.Bool
	timer   *time.Timer
}

// NewScheduler registers the callback invoked exactly once when an alert's
// countdown expires without being cancelled. The callback runs on the timer's
// own goroutine.
func NewScheduler(onExpire func(alertID string)) *Scheduler {
	return &Scheduler{
		timers:   make(map[string]*alertTimer),
		onExpire: onExpire,
	}
}

// Arm starts an independent countdown for alertID. Re-arming an id whose
// previous timer is still live replaces it (used by Extend after a claim, so
// in practice the old timer is already claimed or gone).
func (s *Scheduler) Arm(alertID string, d time.Duration) error {
	if d <= 0 {
		return apperrors.ValidationFailed("duration", "duration must be positive")
	}

	at := &alertTimer{}
	at.timer = time.AfterFunc(d, func() {
		if !at.claimed.CompareAndSwap(false, true) {
			return // a cancel won the race
		}
		s.remove(alertID, at)
		s.onExpire(alertID)
	})

	s.mu.Lock()
	if old, ok := s.timers[alertID]; ok && old.claimed.CompareAndSwap(false, true) {
		old.timer.Stop()
	}
	s.timers[alertID] = at
	s.mu.Unlock()
	return nil
}

// Cancel claims alertID's timer before it fires. It returns true iff the
// cancellation won: the timer existed, had not fired, and will never fire.
// A false return means either the expiry already claimed the timer or the
// scheduler has no timer for that id (e.g. after a restart); callers that
// need to tell those apart use Armed.
func (s *Scheduler) Cancel(alertID string) bool {
	s.mu.Lock()
	at, ok := s.timers[alertID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if !at.claimed.CompareAndSwap(false, true) {
		return false
	}
	at.timer.Stop()
	s.remove(alertID, at)
	return true
}

// Armed reports whether the scheduler is tracking a timer for alertID. Once
// expiry or cancellation claims the timer it is removed, so Armed going false
// means the race (if any) has been decided.
func (s *Scheduler) Armed(alertID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[alertID]
	return ok
}

func (s *Scheduler) remove(alertID string, at *alertTimer) {
	s.mu.Lock()
	if cur, ok := s.timers[alertID]; ok && cur == at {
		delete(s.timers, alertID)
	}
	s.mu.Unlock()
}
