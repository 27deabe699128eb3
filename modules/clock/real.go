package clock

import (
	"sync"
	"time"

	"github.com/Deepreo/zeit/core"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Real is a wall clock. Timers run on their own goroutines via AfterFunc.
type Real struct {
	clock  clockwork.Clock
	mu     sync.Mutex
	timers map[core.TimerID]*realTimer
}

type realTimer struct {
	timer clockwork.Timer // nil until AfterFunc returns
}

type RealOption func(*Real)

// WithClockwork swaps the time source, e.g. for clockwork.NewFakeClock() in tests.
func WithClockwork(c clockwork.Clock) RealOption {
	return func(r *Real) {
		if c != nil {
			r.clock = c
		}
	}
}

func NewReal(options ...RealOption) *Real {
	r := &Real{
		clock:  clockwork.NewRealClock(),
		timers: make(map[core.TimerID]*realTimer),
	}
	for _, option := range options {
		option(r)
	}
	return r
}

func (r *Real) Now() time.Time {
	return r.clock.Now()
}

func (r *Real) TimeIn(d time.Duration) time.Time {
	return r.clock.Now().Add(d)
}

func (r *Real) DurationUntil(t time.Time) time.Duration {
	return r.clock.Until(t)
}

func (r *Real) Milliseconds(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (r *Real) SetTimer(fn func(), d time.Duration) core.TimerID {
	id := core.TimerID(uuid.NewString())

	r.mu.Lock()
	r.timers[id] = &realTimer{}
	r.mu.Unlock()

	// AfterFunc is called without the lock: a zero duration may fire right away.
	t := r.clock.AfterFunc(d, func() {
		r.mu.Lock()
		_, ok := r.timers[id]
		delete(r.timers, id)
		r.mu.Unlock()
		if !ok {
			return // Cleared before firing
		}
		fn()
	})

	r.mu.Lock()
	if e, ok := r.timers[id]; ok {
		e.timer = t
	} else {
		t.Stop()
	}
	r.mu.Unlock()
	return id
}

func (r *Real) ClearTimer(id core.TimerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.timers[id]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(r.timers, id)
	}
}

// Pending returns the number of armed timers.
func (r *Real) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}
