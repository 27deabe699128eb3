package core

import "context"

// EventKind identifies a schedule lifecycle event.
type EventKind int

const (
	EventStart EventKind = iota
	EventFinish
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventFinish:
		return "finish"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a lifecycle notification. Result is set for finish events, Err for error events.
type Event struct {
	Kind   EventKind
	State  ScheduleState
	Result any
	Err    error
}

// Observer receives schedule lifecycle events synchronously, in subscription order.
type Observer interface {
	OnStart(state ScheduleState)
	OnFinish(state ScheduleState, result any)
	OnError(state ScheduleState, err error)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Start  func(state ScheduleState)
	Finish func(state ScheduleState, result any)
	Error  func(state ScheduleState, err error)
}

func (o ObserverFuncs) OnStart(state ScheduleState) {
	if o.Start != nil {
		o.Start(state)
	}
}

func (o ObserverFuncs) OnFinish(state ScheduleState, result any) {
	if o.Finish != nil {
		o.Finish(state, result)
	}
}

func (o ObserverFuncs) OnError(state ScheduleState, err error) {
	if o.Error != nil {
		o.Error(state, err)
	}
}

// Scheduler is the read and cancel surface of a scheduler, consumed by outer layers
// such as the admin API.
type Scheduler interface {
	ActiveSchedule(id string) (ScheduleState, bool)
	ActiveSchedules() []ScheduleState
	Cancel(id string) (ScheduleState, bool)
	CancelStrict(id string) (ScheduleState, error)
	CancelAll() map[string]ScheduleState
	Subscribe(observer Observer) (unsubscribe func())
}

type contextKey string

const scheduleStateKey contextKey = "schedule_state"

// WithScheduleState stores the state of the schedule being invoked in ctx.
func WithScheduleState(ctx context.Context, state ScheduleState) context.Context {
	return context.WithValue(ctx, scheduleStateKey, state)
}

// ScheduleStateFromContext returns the state stored by WithScheduleState.
func ScheduleStateFromContext(ctx context.Context) (ScheduleState, bool) {
	state, ok := ctx.Value(scheduleStateKey).(ScheduleState)
	return state, ok
}
