package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Deepreo/zeit/core"
	"github.com/Deepreo/zeit/errors"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const DefaultTopicPrefix = "zeit.schedule."

type Config struct {
	Enabled      bool   `mapstructure:"enabled"`
	TopicPrefix  string `mapstructure:"topic_prefix"`
	OutputBuffer int64  `mapstructure:"output_buffer"`
	// SignalsHandler closes the router on SIGINT/SIGTERM.
	SignalsHandler bool `mapstructure:"signals_handler"`
}

// Message is the payload published for every schedule lifecycle event.
type Message struct {
	ID         string             `json:"id"`
	Kind       string             `json:"kind"`
	OccurredOn time.Time          `json:"occurred_on"`
	State      core.ScheduleState `json:"state"`
	Error      string             `json:"error,omitempty"`
}

// Handler consumes decoded lifecycle messages. A returned error is retried and finally
// sent to the poison topic.
type Handler func(ctx context.Context, msg Message) error

type Option func(*InMemory)

// WithClock stamps messages with the scheduler's clock instead of the wall clock.
func WithClock(clock core.Clock) Option {
	return func(b *InMemory) {
		if clock != nil {
			b.now = clock.Now
		}
	}
}

// InMemory publishes scheduler events on a watermill gochannel and routes them to
// subscribed handlers. It implements core.Observer.
type InMemory struct {
	cfg       Config
	router    *message.Router
	pubSub    *gochannel.GoChannel
	publisher message.Publisher
	logger    watermill.LoggerAdapter
	sl        *slog.Logger
	now       func() time.Time
	handlers  atomic.Int64
}

var _ core.Observer = (*InMemory)(nil)

func NewInMemory(sl *slog.Logger, cfg Config, options ...Option) (*InMemory, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	logger := watermill.NewSlogLogger(sl)
	router, err := message.NewRouter(message.RouterConfig{}, logger)
	if err != nil {
		return nil, errors.InfraError(err)
	}
	//Not: PreserveContext true yaparak context'in event handler'lara geçmesini sağlıyoruz. bunu trace vb. işlemler için kullanmak için yapıyoruz.
	pubSub := gochannel.NewGoChannel(gochannel.Config{
		PreserveContext:     true,
		OutputChannelBuffer: cfg.OutputBuffer,
	}, logger)
	if cfg.SignalsHandler {
		router.AddPlugin(plugin.SignalsHandler)
	}
	publisher, err := TraceContextDecorator(pubSub)
	if err != nil {
		return nil, errors.InfraError(err)
	}

	b := &InMemory{
		cfg:       cfg,
		router:    router,
		pubSub:    pubSub,
		publisher: publisher,
		logger:    logger,
		sl:        sl,
		now:       time.Now,
	}
	for _, option := range options {
		option(b)
	}
	return b, nil
}

// Topic returns the topic events of the given kind are published on.
func (b *InMemory) Topic(kind core.EventKind) string {
	return b.cfg.TopicPrefix + kind.String()
}

func (b *InMemory) PoisonTopic() string {
	return b.cfg.TopicPrefix + "poison"
}

// Poisoned subscribes to messages whose handlers kept failing after retries.
func (b *InMemory) Poisoned(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubSub.Subscribe(ctx, b.PoisonTopic())
}

func (b *InMemory) Use(middleware ...message.HandlerMiddleware) {
	b.router.AddMiddleware(middleware...)
}

func (b *InMemory) OnStart(state core.ScheduleState) {
	b.publish(core.EventStart, state, nil)
}

func (b *InMemory) OnFinish(state core.ScheduleState, _ any) {
	b.publish(core.EventFinish, state, nil)
}

func (b *InMemory) OnError(state core.ScheduleState, err error) {
	b.publish(core.EventError, state, err)
}

func (b *InMemory) publish(kind core.EventKind, state core.ScheduleState, cause error) {
	if err := b.Publish(context.Background(), kind, state, cause); err != nil {
		b.sl.Error("failed to publish schedule event", "kind", kind.String(), "schedule_id", state.ID, "error", err)
	}
}

// Publish sends one lifecycle message. Observers go through it with a background context.
func (b *InMemory) Publish(ctx context.Context, kind core.EventKind, state core.ScheduleState, cause error) error {
	m := Message{
		ID:         watermill.NewUUID(),
		Kind:       kind.String(),
		OccurredOn: b.now(),
		State:      state,
	}
	if cause != nil {
		m.Error = cause.Error()
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return errors.InfraError(fmt.Errorf("encode %s event: %w", m.Kind, err))
	}
	msg := message.NewMessageWithContext(ctx, m.ID, payload)
	if err := b.publisher.Publish(b.Topic(kind), msg); err != nil {
		return errors.InfraError(err)
	}
	return nil
}

// Subscribe routes messages of one kind to handler. Handlers must be added before Run.
func (b *InMemory) Subscribe(kind core.EventKind, handler Handler) {
	topic := b.Topic(kind)
	name := fmt.Sprintf("%s_%d", topic, b.handlers.Add(1))

	b.router.AddNoPublisherHandler(
		name,
		topic,
		b.pubSub,
		func(msg *message.Message) error {
			var m Message
			if err := json.Unmarshal(msg.Payload, &m); err != nil {
				// Undecodable payloads are never going to succeed; skip retries.
				b.sl.Error("dropping malformed schedule event", "topic", topic, "message_id", msg.UUID, "error", err)
				return nil
			}
			return handler(msg.Context(), m)
		},
	)
}

// Run starts the router and blocks until ctx is done or the bus is closed.
func (b *InMemory) Run(ctx context.Context) error {
	poisonQueueMiddleware, err := middleware.PoisonQueue(b.pubSub, b.PoisonTopic())
	if err != nil {
		return errors.InfraError(err)
	}

	retryMiddleware := middleware.Retry{
		MaxRetries:      3,
		InitialInterval: time.Millisecond * 100,
		MaxInterval:     time.Second * 1,
		Multiplier:      2.0,
		Logger:          b.logger,
	}

	b.router.AddMiddleware(
		poisonQueueMiddleware,
		retryMiddleware.Middleware,
		OTelMiddleware,
	)

	return b.router.Run(ctx)
}

// Running is closed once every handler is subscribed and consuming.
func (b *InMemory) Running() chan struct{} {
	return b.router.Running()
}

func (b *InMemory) Close() error {
	if err := b.router.Close(); err != nil {
		return errors.InfraError(err)
	}
	return b.pubSub.Close()
}
