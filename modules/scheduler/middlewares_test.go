package scheduler_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/Deepreo/zeit/core"
	"github.com/Deepreo/zeit/modules/clock"
	"github.com/Deepreo/zeit/modules/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordingMiddleware(name string, calls *[]string) core.Middleware {
	return func(next core.AsyncTask) core.AsyncTask {
		return func(ctx context.Context, settle core.Settle) {
			*calls = append(*calls, name+":before")
			next(ctx, func(result any, err error) {
				*calls = append(*calls, name+":after")
				settle(result, err)
			})
		}
	}
}

func TestMiddleware_Order(t *testing.T) {
	var calls []string
	c := clock.NewStub()
	s := scheduler.New(c, scheduler.WithMiddleware(recordingMiddleware("outer", &calls)))
	s.Use(recordingMiddleware("inner", &calls))

	_, err := s.Execute(func(ctx context.Context) (any, error) {
		calls = append(calls, "task")
		return nil, nil
	}).Once().Start()
	require.NoError(t, err)

	c.Tick(0)
	assert.Equal(t, []string{"outer:before", "inner:before", "task", "inner:after", "outer:after"}, calls)
}

func TestMiddleware_ContextCarriesState(t *testing.T) {
	c := clock.NewStub()
	type key struct{}
	parent := context.WithValue(context.Background(), key{}, "parent")
	s := scheduler.New(c, scheduler.WithContext(parent))

	var got []core.ScheduleState
	id, err := s.Execute(func(ctx context.Context) (any, error) {
		state, ok := core.ScheduleStateFromContext(ctx)
		require.True(t, ok)
		assert.Equal(t, "parent", ctx.Value(key{}))
		got = append(got, state)
		return nil, nil
	}).Named("ctx").Exactly(2).Start()
	require.NoError(t, err)

	c.Tick(0)
	c.Tick(0)
	require.Len(t, got, 2)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, 1, got[0].InvocationCount)
	assert.Equal(t, 2, got[1].InvocationCount)
	assert.Equal(t, 0, got[1].InvocationsLeft)
}

func TestTracingMiddleware(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	c := clock.NewStub()
	s := scheduler.New(c, scheduler.WithMiddleware(scheduler.TracingMiddleware(tp)))

	calls := 0
	_, err := s.ExecuteAsync(func(ctx context.Context, settle core.Settle) {
		calls++
		if calls == 1 {
			c.SetTimer(func() { settle("ok", nil) }, 100*time.Millisecond)
			return
		}
		settle(nil, errors.New("boom"))
	}).Named("nightly").AndRepeatAfter(time.Second).Exactly(2).Start()
	require.NoError(t, err)

	c.Tick(50 * time.Millisecond)
	assert.Empty(t, recorder.Ended(), "span stays open until the invocation settles")

	c.Tick(2 * time.Second)
	spans := recorder.Ended()
	require.Len(t, spans, 2)

	assert.Equal(t, "schedule.invoke nightly", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "boom", spans[1].Status().Description)

	attrs := map[string]any{}
	for _, kv := range spans[1].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "nightly", attrs["schedule.name"])
	assert.Equal(t, int64(2), attrs["schedule.invocation"])
	assert.Equal(t, "after_completion", attrs["schedule.repeat_mode"])
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	c := clock.NewStub()
	s := scheduler.New(c, scheduler.WithMiddleware(scheduler.LoggingMiddleware(logger, c)))

	_, err := s.ExecuteAsync(func(ctx context.Context, settle core.Settle) {
		c.SetTimer(func() { settle(nil, errors.New("disk full")) }, 250*time.Millisecond)
	}).Named("backup").Once().Start()
	require.NoError(t, err)

	c.Tick(time.Second)
	out := buf.String()
	assert.Contains(t, out, "invocation started")
	assert.Contains(t, out, "invocation failed")
	assert.Contains(t, out, "name=backup")
	assert.Contains(t, out, "disk full")
	assert.Contains(t, out, "duration=250ms", "duration is measured on the scheduler clock")
}

func TestLoggingMiddleware_Defaults(t *testing.T) {
	c := clock.NewStub()
	s := scheduler.New(c, scheduler.WithMiddleware(scheduler.LoggingMiddleware(nil, nil)))

	calls := 0
	_, err := s.Execute(func(ctx context.Context) (any, error) {
		calls++
		return nil, nil
	}).Once().Start()
	require.NoError(t, err)

	assert.NotPanics(t, func() { c.Tick(0) })
	assert.Equal(t, 1, calls)
}
