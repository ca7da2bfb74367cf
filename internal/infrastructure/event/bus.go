package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/erp/stockengine/internal/domain/shared"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// InMemoryEventBus dispatches committed events to in-process handlers such
// as the low-stock alert handler. Handler failures and panics are logged and
// never reach the publisher.
type InMemoryEventBus struct {
	registry *HandlerRegistry
	logger   *zap.Logger
	running  atomic.Bool
	failures atomic.Int64
}

// NewInMemoryEventBus creates a new in-memory event bus
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{
		registry: NewHandlerRegistry(),
		logger:   logger,
	}
}

// Publish dispatches events synchronously, in order
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	for _, event := range events {
		for _, handler := range b.registry.GetHandlers(event.EventType()) {
			if err := b.dispatch(ctx, handler, event); err != nil {
				b.failures.Add(1)
				b.logger.Error("handler failed to process event",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.String("aggregate_id", event.AggregateID().String()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

// Subscribe registers a handler. Without explicit types the handler's own
// EventTypes are used.
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.registry.Register(handler, eventTypes...)
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes a handler
func (b *InMemoryEventBus) Unsubscribe(handler shared.EventHandler) {
	b.registry.Unregister(handler)
}

// Start marks the bus running
func (b *InMemoryEventBus) Start(ctx context.Context) error {
	b.running.Store(true)
	b.logger.Info("event bus started")
	return nil
}

// Stop marks the bus stopped
func (b *InMemoryEventBus) Stop(ctx context.Context) error {
	b.running.Store(false)
	b.logger.Info("event bus stopped", zap.Int64("handler_failures", b.failures.Load()))
	return nil
}

// HandlerFailures returns the number of failed or panicked dispatches
func (b *InMemoryEventBus) HandlerFailures() int64 {
	return b.failures.Load()
}

func (b *InMemoryEventBus) dispatch(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// FanOutPublisher publishes to several publishers in turn. Every publisher
// is attempted and the failures are combined.
type FanOutPublisher struct {
	publishers []shared.EventPublisher
}

// NewFanOutPublisher creates a publisher over the non-nil publishers given
func NewFanOutPublisher(publishers ...shared.EventPublisher) *FanOutPublisher {
	out := make([]shared.EventPublisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			out = append(out, p)
		}
	}
	return &FanOutPublisher{publishers: out}
}

// Publish forwards events to every publisher
func (f *FanOutPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	var errs error
	for _, p := range f.publishers {
		errs = multierr.Append(errs, p.Publish(ctx, events...))
	}
	return errs
}

var _ shared.EventPublisher = (*FanOutPublisher)(nil)
