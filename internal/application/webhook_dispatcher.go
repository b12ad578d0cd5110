package application

import (
	"context"
	"sync"

	"donation-square-connect/internal/domain"
	"donation-square-connect/internal/infrastructure/metrics"

	"github.com/rs/zerolog"
)

// EventHandler reconciles one event type family against local state.
type EventHandler interface {
	Handle(ctx context.Context, event *domain.Event) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *domain.Event) error

// Handle calls f(ctx, event).
func (f EventHandlerFunc) Handle(ctx context.Context, event *domain.Event) error {
	return f(ctx, event)
}

// WebhookDispatcher routes a typed event to exactly one registered handler
// based on its event-type string. Register is the extension point for
// event types the core does not natively understand.
type WebhookDispatcher struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
	logger   zerolog.Logger
	metrics  *metrics.Metrics
}

// NewWebhookDispatcher creates a new webhook dispatcher.
func NewWebhookDispatcher(logger zerolog.Logger, m *metrics.Metrics) *WebhookDispatcher {
	return &WebhookDispatcher{
		handlers: make(map[string]EventHandler),
		logger:   logger,
		metrics:  m,
	}
}

// Register binds a handler to an event-type string. Registering the same
// type twice replaces the earlier handler.
func (d *WebhookDispatcher) Register(eventType string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = handler
}

// RegisterAll binds one handler to several event types.
func (d *WebhookDispatcher) RegisterAll(eventTypes []string, handler EventHandler) {
	for _, t := range eventTypes {
		d.Register(t, handler)
	}
}

// Dispatch routes the event. Returns handled=false for event types with
// no registered handler; the caller still acknowledges those so the
// provider does not retry an event the system deliberately ignores.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, event *domain.Event) (handled bool, err error) {
	d.mu.RLock()
	handler, ok := d.handlers[event.Type]
	d.mu.RUnlock()

	if !ok {
		d.logger.Info().
			Str("type", event.Type).
			Str("eventId", event.EventID).
			Msg("No handler registered for event type, ignoring")
		if d.metrics != nil {
			d.metrics.WebhookEventsIgnored.Inc()
		}
		return false, nil
	}

	if err := handler.Handle(ctx, event); err != nil {
		if d.metrics != nil {
			d.metrics.WebhookEventsProcessed.WithLabelValues(event.Type, "error").Inc()
		}
		return true, err
	}

	if d.metrics != nil {
		d.metrics.WebhookEventsProcessed.WithLabelValues(event.Type, "ok").Inc()
	}
	return true, nil
}
