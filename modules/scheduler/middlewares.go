package scheduler

import (
	"context"
	"io"
	"log/slog"

	"github.com/Deepreo/zeit/core"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "zeit-scheduler"

// TracingMiddleware opens a span per invocation that ends when the invocation settles.
// A nil provider uses the global one.
func TracingMiddleware(tp trace.TracerProvider) core.Middleware {
	return func(next core.AsyncTask) core.AsyncTask {
		return func(ctx context.Context, settle core.Settle) {
			provider := tp
			if provider == nil {
				provider = otel.GetTracerProvider()
			}
			attrs := []attribute.KeyValue{
				attribute.String("scheduler.system", "zeit"),
			}
			spanName := "schedule.invoke"
			if state, ok := core.ScheduleStateFromContext(ctx); ok {
				attrs = append(attrs,
					attribute.String("schedule.id", state.ID),
					attribute.String("schedule.name", state.Name),
					attribute.String("schedule.repeat_mode", state.RepeatMode.String()),
					attribute.Int("schedule.invocation", state.InvocationCount),
				)
				if state.Name != "" {
					spanName = "schedule.invoke " + state.Name
				}
			}

			ctx, span := provider.Tracer(tracerName).Start(ctx, spanName,
				trace.WithAttributes(attrs...),
				trace.WithSpanKind(trace.SpanKindInternal),
			)
			defer func() {
				if r := recover(); r != nil {
					span.SetStatus(codes.Error, "callback panicked")
					span.End()
					panic(r)
				}
			}()

			next(ctx, func(result any, err error) {
				if err != nil {
					span.RecordError(err)
					span.SetStatus(codes.Error, err.Error())
				}
				span.End()
				settle(result, err)
			})
		}
	}
}

// LoggingMiddleware logs every invocation and how long it took to settle, measured on
// clock. A nil clock measures wall time; a nil logger discards.
func LoggingMiddleware(logger *slog.Logger, clock core.Clock) core.Middleware {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	now := clockwork.NewRealClock().Now
	if clock != nil {
		now = clock.Now
	}

	return func(next core.AsyncTask) core.AsyncTask {
		return func(ctx context.Context, settle core.Settle) {
			l := logger
			if state, ok := core.ScheduleStateFromContext(ctx); ok {
				l = logger.With("schedule_id", state.ID, "name", state.Name, "invocation", state.InvocationCount)
			}
			started := now()
			l.Debug("invocation started")

			next(ctx, func(result any, err error) {
				duration := now().Sub(started)
				if err != nil {
					l.Warn("invocation failed", "error", err, "duration", duration)
				} else {
					l.Debug("invocation finished", "duration", duration)
				}
				settle(result, err)
			})
		}
	}
}
