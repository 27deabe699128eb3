package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/Deepreo/zeit/core"
)

const DefaultTickSize = time.Second

type stubTimer struct {
	id  core.TimerID
	due time.Time
	seq uint64
	fn  func()
}

// Stub is a virtual clock. Time only moves through Tick, Step, SetNow or implicit
// ticking, and timers only fire from Tick, Step or TriggerAll, on the caller's goroutine.
type Stub struct {
	mu       sync.Mutex
	current  time.Time
	tickSize time.Duration
	implicit bool
	seq      uint64
	pending  []*stubTimer
}

type StubOption func(*Stub)

// WithStart sets the initial virtual time. The default is the Unix epoch.
func WithStart(t time.Time) StubOption {
	return func(s *Stub) {
		s.current = t
	}
}

func WithTickSize(d time.Duration) StubOption {
	return func(s *Stub) {
		if d > 0 {
			s.tickSize = d
		}
	}
}

func WithImplicitTick(enabled bool) StubOption {
	return func(s *Stub) {
		s.implicit = enabled
	}
}

func NewStub(options ...StubOption) *Stub {
	s := &Stub{
		current:  time.Unix(0, 0).UTC(),
		tickSize: DefaultTickSize,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Now returns the virtual time, advancing it by the tick size first when
// implicit ticking is on.
func (s *Stub) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.implicit {
		s.current = s.current.Add(s.tickSize)
	}
	return s.current
}

// SetNow moves the virtual time to t without firing timers.
func (s *Stub) SetNow(t time.Time) {
	s.mu.Lock()
	s.current = t
	s.mu.Unlock()
}

func (s *Stub) TimeIn(d time.Duration) time.Time {
	return s.Now().Add(d)
}

func (s *Stub) DurationUntil(t time.Time) time.Duration {
	return t.Sub(s.Now())
}

func (s *Stub) Milliseconds(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (s *Stub) SetTimer(fn func(), d time.Duration) core.TimerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &stubTimer{
		id:  core.TimerID(fmt.Sprintf("stub-timer-%d", s.seq)),
		due: s.current.Add(d),
		seq: s.seq,
		fn:  fn,
	}
	s.pending = append(s.pending, t)
	return t.id
}

func (s *Stub) ClearTimer(id core.TimerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(id)
}

func (s *Stub) removeLocked(id core.TimerID) bool {
	for i, t := range s.pending {
		if t.id == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return true
		}
	}
	return false
}

// Tick advances the virtual time by d and fires every timer that falls due on the
// way, earliest first. Ties fire in registration order. Timers armed by a callback
// fire in the same tick if they fall due later in it. A timer armed for the instant
// being processed waits until a later instant of this tick or the next Tick or
// TriggerAll, so zero-delay rearming cannot stall the tick.
func (s *Stub) Tick(d time.Duration) time.Time {
	s.mu.Lock()
	target := s.current.Add(d)
	instant := s.current
	horizon := s.seq
	s.mu.Unlock()

	for {
		s.mu.Lock()
		next := s.nextDueLocked(target, instant, horizon)
		if next == nil {
			if target.After(s.current) {
				s.current = target
			}
			now := s.current
			s.mu.Unlock()
			return now
		}
		s.removeLocked(next.id)
		if next.due.After(instant) {
			instant = next.due
			horizon = s.seq
		}
		if next.due.After(s.current) {
			s.current = next.due
		}
		s.mu.Unlock()

		next.fn()
	}
}

// Step ticks by the configured tick size.
func (s *Stub) Step() time.Time {
	return s.Tick(s.TickSize())
}

// nextDueLocked picks the earliest timer due by limit. Timers registered after
// horizon are skipped while they are due at or before instant.
func (s *Stub) nextDueLocked(limit, instant time.Time, horizon uint64) *stubTimer {
	var next *stubTimer
	for _, t := range s.pending {
		if t.due.After(limit) {
			continue
		}
		if t.seq > horizon && !t.due.After(instant) {
			continue
		}
		if next == nil || t.due.Before(next.due) || (t.due.Equal(next.due) && t.seq < next.seq) {
			next = t
		}
	}
	return next
}

// TriggerAll fires every timer pending at the time of the call exactly once, in
// registration order, regardless of due time. Timers armed during the pass wait for
// the next one; timers cleared during the pass are skipped. Time does not move.
func (s *Stub) TriggerAll() []core.TimerID {
	s.mu.Lock()
	batch := make([]*stubTimer, len(s.pending))
	copy(batch, s.pending)
	s.mu.Unlock()

	fired := make([]core.TimerID, 0, len(batch))
	for _, t := range batch {
		s.mu.Lock()
		stillPending := s.removeLocked(t.id)
		s.mu.Unlock()
		if !stillPending {
			continue
		}
		t.fn()
		fired = append(fired, t.id)
	}
	return fired
}

// Pending returns the handles of armed timers in registration order.
func (s *Stub) Pending() []core.TimerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]core.TimerID, len(s.pending))
	for i, t := range s.pending {
		ids[i] = t.id
	}
	return ids
}

func (s *Stub) TickSize() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickSize
}

func (s *Stub) SetTickSize(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.tickSize = d
	s.mu.Unlock()
}

func (s *Stub) ImplicitTick() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.implicit
}

func (s *Stub) SetImplicitTick(enabled bool) {
	s.mu.Lock()
	s.implicit = enabled
	s.mu.Unlock()
}
