package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Deepreo/zeit/core"
	"github.com/Deepreo/zeit/errors"
	"github.com/google/uuid"
)

// Scheduler runs callbacks according to the timing rules of their schedules.
// All time and timer operations go through its Clock.
type Scheduler struct {
	clock       core.Clock
	logger      *slog.Logger
	ctx         context.Context
	newID       func() string
	middlewares []core.Middleware
	observers   observers

	mu     sync.Mutex
	active map[string]*schedule
}

// schedule is the mutable record of one active schedule. state is guarded by Scheduler.mu.
type schedule struct {
	cfg   core.ScheduleConfig
	task  core.AsyncTask
	state core.ScheduleState
	gen   uint64
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithContext sets the parent context of every invocation.
func WithContext(ctx context.Context) Option {
	return func(s *Scheduler) {
		if ctx != nil {
			s.ctx = ctx
		}
	}
}

// WithIDGenerator replaces the UUID generator used for schedule ids.
func WithIDGenerator(fn func() string) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func WithMiddleware(middleware ...core.Middleware) Option {
	return func(s *Scheduler) {
		s.middlewares = append(s.middlewares, middleware...)
	}
}

func New(clock core.Clock, options ...Option) *Scheduler {
	s := &Scheduler{
		clock:  clock,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		ctx:    context.Background(),
		newID:  uuid.NewString,
		active: make(map[string]*schedule),
	}
	for _, option := range options {
		option(s)
	}
	s.observers.logger = s.logger
	return s
}

// Clock returns the clock the scheduler was bound to.
func (s *Scheduler) Clock() core.Clock {
	return s.clock
}

// Use adds middlewares to schedules started from now on. The first one is outermost.
func (s *Scheduler) Use(middleware ...core.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, middleware...)
}

func (s *Scheduler) applyMiddlewares(task core.AsyncTask) core.AsyncTask {
	chain := task
	for i := len(s.middlewares) - 1; i >= 0; i-- {
		chain = s.middlewares[i](chain)
	}
	return chain
}

// Execute starts building a schedule for a callback that completes before returning.
func (s *Scheduler) Execute(task core.Task) *Builder {
	var async core.AsyncTask
	if task != nil {
		async = func(ctx context.Context, settle core.Settle) {
			settle(task(ctx))
		}
	}
	return newBuilder(s, async)
}

// ExecuteAsync starts building a schedule for a callback that settles on its own time.
func (s *Scheduler) ExecuteAsync(task core.AsyncTask) *Builder {
	return newBuilder(s, task)
}

// Subscribe registers an observer for lifecycle events.
func (s *Scheduler) Subscribe(observer core.Observer) (unsubscribe func()) {
	return s.observers.add(observer)
}

// On registers fn for a single kind of lifecycle event.
func (s *Scheduler) On(kind core.EventKind, fn func(core.Event)) (unsubscribe func()) {
	var observer core.ObserverFuncs
	switch kind {
	case core.EventStart:
		observer.Start = func(state core.ScheduleState) {
			fn(core.Event{Kind: kind, State: state})
		}
	case core.EventFinish:
		observer.Finish = func(state core.ScheduleState, result any) {
			fn(core.Event{Kind: kind, State: state, Result: result})
		}
	case core.EventError:
		observer.Error = func(state core.ScheduleState, err error) {
			fn(core.Event{Kind: kind, State: state, Err: err})
		}
	}
	return s.observers.add(observer)
}

func (s *Scheduler) add(cfg core.ScheduleConfig, task core.AsyncTask) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.newID()
	sc := &schedule{
		cfg:  cfg,
		task: s.applyMiddlewares(task),
		state: core.ScheduleState{
			ID:             id,
			Name:           cfg.Name,
			RepeatMode:     cfg.Mode,
			RepeatInterval: cfg.Interval,
			InitialDelay:   cfg.InitialDelay,
			CreationTime:   s.clock.Now(),
		},
	}
	if cfg.Limit > 0 {
		sc.state.Limited = true
		sc.state.InvocationsLeft = cfg.Limit
	}

	s.active[id] = sc
	s.armLocked(sc, cfg.InitialDelay)
	s.logger.Debug("schedule started", "schedule_id", id, "name", cfg.Name, "repeat_mode", cfg.Mode.String(), "initial_delay", cfg.InitialDelay)
	return id
}

// armLocked replaces the schedule's timer. Only the most recently armed timer may drive it.
func (s *Scheduler) armLocked(sc *schedule, d time.Duration) {
	if d < 0 {
		d = 0
	}
	sc.gen++
	gen := sc.gen
	sc.state.NextTriggerTime = s.clock.TimeIn(d)
	sc.state.TimerID = s.clock.SetTimer(func() { s.fire(sc, gen) }, d)
}

func (s *Scheduler) ownsLocked(sc *schedule, gen uint64) bool {
	return s.active[sc.state.ID] == sc && sc.gen == gen
}

func (s *Scheduler) isActiveLocked(sc *schedule) bool {
	return s.active[sc.state.ID] == sc
}

// fire runs one timer expiry of a schedule.
func (s *Scheduler) fire(sc *schedule, gen uint64) {
	s.mu.Lock()
	if !s.ownsLocked(sc, gen) {
		s.mu.Unlock()
		return
	}
	state := sc.state
	s.mu.Unlock()

	if state.Exhausted() {
		s.terminate(sc, "invocation limit reached")
		return
	}
	whilst, ok := s.check(sc, "whilst", func() bool { return sc.cfg.Whilst(state) })
	if !ok {
		s.terminate(sc, "predicate panicked")
		return
	}
	if !whilst {
		s.terminate(sc, "precondition not met")
		return
	}

	continueFixed := false
	if sc.cfg.Mode == core.RepeatFixedInterval {
		until, ok := s.check(sc, "until", func() bool { return sc.cfg.Until(nil, nil) })
		if !ok {
			s.terminate(sc, "predicate panicked")
			return
		}
		continueFixed = !until
	}

	s.mu.Lock()
	if !s.ownsLocked(sc, gen) {
		// Cancelled while the pre-predicate ran.
		s.mu.Unlock()
		return
	}
	sc.state.LatestStartTime = s.clock.Now()
	sc.state.InvocationCount++
	if continueFixed && !sc.state.Exhausted() {
		s.armLocked(sc, sc.cfg.Interval)
	}
	if sc.state.Limited {
		sc.state.InvocationsLeft--
	}
	started := sc.state
	s.mu.Unlock()

	s.observers.start(started)

	ctx := core.WithScheduleState(s.ctx, started)
	invoke(ctx, sc.task, func(outcome core.Outcome) {
		s.settle(sc, outcome)
	})
}

// settle handles the outcome of one invocation.
func (s *Scheduler) settle(sc *schedule, outcome core.Outcome) {
	s.mu.Lock()
	sc.state.LatestEndTime = s.clock.Now()
	state := sc.state
	s.mu.Unlock()

	if outcome.Failed() {
		s.observers.failure(state, outcome.Err)
	} else {
		s.observers.finish(state, outcome.Result)
	}

	s.mu.Lock()
	state = sc.state
	active := s.isActiveLocked(sc)
	s.mu.Unlock()
	if !active {
		return
	}

	whilst, ok := s.check(sc, "whilst", func() bool { return sc.cfg.Whilst(state) })
	if !ok {
		s.terminate(sc, "predicate panicked")
		return
	}
	until := false
	if whilst {
		if until, ok = s.check(sc, "until", func() bool { return sc.cfg.Until(outcome.Err, outcome.Result) }); !ok {
			s.terminate(sc, "predicate panicked")
			return
		}
	}

	var reason string
	switch {
	case !whilst:
		reason = "precondition not met"
	case until:
		reason = "postcondition met"
	case state.Exhausted():
		reason = "invocation limit reached"
	case !state.Limited && sc.cfg.Mode == core.RepeatNone:
		reason = "completed"
	}
	if reason != "" {
		s.terminate(sc, reason)
		return
	}

	// Fixed-interval schedules were rearmed when the invocation started. Limited
	// schedules without a repeat mode run back to back.
	if sc.cfg.Mode != core.RepeatFixedInterval {
		s.mu.Lock()
		if s.isActiveLocked(sc) {
			s.armLocked(sc, sc.cfg.Interval)
		}
		s.mu.Unlock()
	}
}

// check evaluates a Whilst or Until predicate. A panicking predicate is logged and
// reported with ok false.
func (s *Scheduler) check(sc *schedule, predicate string, fn func() bool) (result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("schedule predicate panicked", "schedule_id", sc.state.ID, "name", sc.state.Name, "predicate", predicate, "panic", r)
			result, ok = false, false
		}
	}()
	return fn(), true
}

func (s *Scheduler) terminate(sc *schedule, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isActiveLocked(sc) {
		return
	}
	s.removeLocked(sc)
	s.logger.Debug("schedule terminated", "schedule_id", sc.state.ID, "name", sc.state.Name, "reason", reason, "invocations", sc.state.InvocationCount)
}

func (s *Scheduler) removeLocked(sc *schedule) core.ScheduleState {
	if sc.state.TimerID != "" {
		s.clock.ClearTimer(sc.state.TimerID)
	}
	delete(s.active, sc.state.ID)
	return sc.state
}

// ActiveSchedule returns a snapshot of an active schedule.
func (s *Scheduler) ActiveSchedule(id string) (core.ScheduleState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.active[id]
	if !ok {
		return core.ScheduleState{}, false
	}
	return sc.state, true
}

// ActiveSchedules returns snapshots of all active schedules, oldest first.
func (s *Scheduler) ActiveSchedules() []core.ScheduleState {
	s.mu.Lock()
	states := make([]core.ScheduleState, 0, len(s.active))
	for _, sc := range s.active {
		states = append(states, sc.state)
	}
	s.mu.Unlock()

	sort.Slice(states, func(i, j int) bool {
		if states[i].CreationTime.Equal(states[j].CreationTime) {
			return states[i].ID < states[j].ID
		}
		return states[i].CreationTime.Before(states[j].CreationTime)
	})
	return states
}

// Cancel clears the schedule's timer and removes it. Unknown ids, including schedules
// that already terminated on their own, report false.
func (s *Scheduler) Cancel(id string) (core.ScheduleState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.active[id]
	if !ok {
		return core.ScheduleState{}, false
	}
	state := s.removeLocked(sc)
	s.logger.Debug("schedule cancelled", "schedule_id", id, "name", state.Name)
	return state, true
}

// CancelStrict is Cancel with a not-found error for unknown ids.
func (s *Scheduler) CancelStrict(id string) (core.ScheduleState, error) {
	state, ok := s.Cancel(id)
	if !ok {
		return core.ScheduleState{}, errors.NotFoundError(fmt.Errorf("%w: %s", ErrScheduleNotFound, id))
	}
	return state, nil
}

// CancelAll cancels every active schedule and returns their last states by id.
func (s *Scheduler) CancelAll() map[string]core.ScheduleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancelled := make(map[string]core.ScheduleState, len(s.active))
	for id, sc := range s.active {
		cancelled[id] = s.removeLocked(sc)
	}
	if len(cancelled) > 0 {
		s.logger.Debug("schedules cancelled", "count", len(cancelled))
	}
	return cancelled
}
