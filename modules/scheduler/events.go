package scheduler

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Deepreo/zeit/core"
)

type observerEntry struct {
	id       uint64
	observer core.Observer
}

// observers is a synchronous, ordered fan-out of lifecycle events.
type observers struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []observerEntry
	logger  *slog.Logger
}

func (o *observers) add(observer core.Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	id := o.nextID
	o.entries = append(o.entries, observerEntry{id: id, observer: observer})

	var once sync.Once
	return func() {
		once.Do(func() { o.remove(id) })
	}
}

func (o *observers) remove(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, e := range o.entries {
		if e.id == id {
			o.entries = append(o.entries[:i:i], o.entries[i+1:]...)
			return
		}
	}
}

func (o *observers) snapshot() []observerEntry {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.entries
}

func (o *observers) start(state core.ScheduleState) {
	for _, e := range o.snapshot() {
		o.notify(core.EventStart, state, func() { e.observer.OnStart(state) })
	}
}

func (o *observers) finish(state core.ScheduleState, result any) {
	for _, e := range o.snapshot() {
		o.notify(core.EventFinish, state, func() { e.observer.OnFinish(state, result) })
	}
}

func (o *observers) failure(state core.ScheduleState, err error) {
	for _, e := range o.snapshot() {
		o.notify(core.EventError, state, func() { e.observer.OnError(state, err) })
	}
}

// notify contains observer panics so one faulty observer cannot stall a schedule.
func (o *observers) notify(kind core.EventKind, state core.ScheduleState, call func()) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("schedule observer panicked", "event", kind.String(), "schedule_id", state.ID, "panic", fmt.Sprint(r))
		}
	}()
	call()
}
