// Bookshelf - Collaborative Filtering Book Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/bookshelf

// Package events carries in-process notifications between the retrain
// worker and the components that react to a new model.
//
// Messages travel over a Watermill GoChannel pub/sub and are dispatched by
// a Watermill router, so handlers get the same recovery and timeout
// middleware the rest of the service relies on. Nothing leaves the
// process.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"

	"github.com/tomtom215/bookshelf/internal/logging"
	"github.com/tomtom215/bookshelf/internal/metrics"
)

// TopicModelTrained is published after a retrain job persisted a new model.
const TopicModelTrained = "model.trained"

// ModelTrained describes a freshly persisted model.
type ModelTrained struct {
	JobID     string    `json:"job_id"`
	Reason    string    `json:"reason"`
	Checksum  string    `json:"checksum"`
	BookCount int       `json:"book_count"`
	Shape     string    `json:"shape"`
	TrainedAt time.Time `json:"trained_at"`
}

// ModelTrainedHandler reacts to a ModelTrained event. Errors are logged;
// the event is not redelivered.
type ModelTrainedHandler func(ctx context.Context, ev ModelTrained) error

// Config tunes the bus.
type Config struct {
	// Buffer is the per-subscriber channel buffer.
	Buffer int64

	// HandlerTimeout bounds a single handler call.
	HandlerTimeout time.Duration

	// CloseTimeout is how long the router waits for running handlers on
	// shutdown.
	CloseTimeout time.Duration
}

// DefaultConfig returns defaults suitable for the server.
func DefaultConfig() Config {
	return Config{
		Buffer:         64,
		HandlerTimeout: 30 * time.Second,
		CloseTimeout:   10 * time.Second,
	}
}

type subscription struct {
	name    string
	handler ModelTrainedHandler
}

// Bus publishes and dispatches events. Serve runs the dispatching router
// and can be restarted by a supervisor; Publish works whether or not a
// router is running, but events published with no router running are
// dropped. Events are notifications only: nothing that serves requests
// depends on their delivery.
type Bus struct {
	config Config
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu        sync.Mutex
	subs      []subscription
	ready     chan struct{}
	readyOnce sync.Once
}

// NewBus creates a bus.
func NewBus(cfg Config) *Bus {
	def := DefaultConfig()
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = def.HandlerTimeout
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = def.CloseTimeout
	}

	logger := watermill.NewSlogLogger(slog.New(logging.NewSlogHandlerWithLogger(logging.WithComponent("events"))))
	return &Bus{
		config: cfg,
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: cfg.Buffer}, logger),
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// OnModelTrained registers a handler. Handlers registered after Serve
// started take effect on the next restart.
func (b *Bus) OnModelTrained(name string, h ModelTrainedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, handler: h})
}

// PublishModelTrained publishes ev. The context's correlation id travels
// with the message.
func (b *Bus) PublishModelTrained(ctx context.Context, ev ModelTrained) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", TopicModelTrained, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		middleware.SetCorrelationID(id, msg)
	}
	if err := b.pubsub.Publish(TopicModelTrained, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicModelTrained, err)
	}
	metrics.EventsPublished.WithLabelValues(TopicModelTrained).Inc()
	return nil
}

// Ready is closed once a router has subscribed to every registered topic.
func (b *Bus) Ready() <-chan struct{} {
	return b.ready
}

// Serve implements suture.Service. Each call builds a fresh router over
// the shared pub/sub, so a restart resubscribes every handler.
func (b *Bus) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: b.config.CloseTimeout}, b.logger)
	if err != nil {
		return fmt.Errorf("create router: %w", err)
	}
	router.AddMiddleware(
		middleware.Recoverer,
		middleware.Timeout(b.config.HandlerTimeout),
	)

	b.mu.Lock()
	subs := append([]subscription(nil), b.subs...)
	b.mu.Unlock()

	if len(subs) == 0 {
		b.readyOnce.Do(func() { close(b.ready) })
		<-ctx.Done()
		return ctx.Err()
	}

	sub := keepOpen{b.pubsub}
	for _, s := range subs {
		router.AddNoPublisherHandler(s.name, TopicModelTrained, sub, b.dispatch(s))
	}

	go func() {
		select {
		case <-router.Running():
			b.readyOnce.Do(func() { close(b.ready) })
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("event router: %w", err)
	}
	return ctx.Err()
}

func (b *Bus) dispatch(s subscription) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		ctx := msg.Context()
		if id := middleware.MessageCorrelationID(msg); id != "" {
			ctx = logging.ContextWithCorrelationID(ctx, id)
		}
		logger := logging.Ctx(ctx).With().
			Str("component", "events").
			Str("handler", s.name).
			Str("message_uuid", msg.UUID).
			Logger()

		var ev ModelTrained
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			logger.Error().Err(err).Msg("dropping undecodable event")
			return nil
		}
		if err := s.handler(ctx, ev); err != nil {
			logger.Warn().Err(err).Str("job_id", ev.JobID).Msg("event handler failed")
		}
		return nil
	}
}

// Close shuts the pub/sub down. Publish fails afterwards.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// String returns the service name for logging.
func (b *Bus) String() string {
	return "event-bus"
}

// keepOpen stops the router from closing the shared pub/sub when it shuts
// down, which would make a restarted router unable to subscribe.
type keepOpen struct {
	message.Subscriber
}

func (keepOpen) Close() error { return nil }
