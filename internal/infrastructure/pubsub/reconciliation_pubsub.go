package pubsub

import (
	"context"
	"fmt"
	"sync"

	"donation-square-connect/internal/domain"

	"github.com/rs/zerolog"
)

// ReconciliationChannel represents a subscription channel.
type ReconciliationChannel struct {
	ID     string
	Filter *ReconciliationFilter
	Events chan *domain.ReconciliationEvent
	Done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// ReconciliationFilter filters reconciliation events.
type ReconciliationFilter struct {
	EntityKinds []string // Filter by entity kind (donation, subscription)
	AppliedOnly bool     // Only transitions that changed local state
}

// ReconciliationPubSub fans applied (and skipped) reconciliation
// transitions out to in-process subscribers, feeding the admin activity
// stream.
type ReconciliationPubSub struct {
	mu       sync.RWMutex
	channels map[string]*ReconciliationChannel
	logger   zerolog.Logger
	nextID   int64
	idMu     sync.Mutex
}

// NewReconciliationPubSub creates a new reconciliation pub/sub system.
func NewReconciliationPubSub(logger zerolog.Logger) *ReconciliationPubSub {
	return &ReconciliationPubSub{
		channels: make(map[string]*ReconciliationChannel),
		logger:   logger,
	}
}

// Subscribe creates a new subscription channel.
func (ps *ReconciliationPubSub) Subscribe(ctx context.Context, filter *ReconciliationFilter) *ReconciliationChannel {
	ps.idMu.Lock()
	id := ps.generateID()
	ps.idMu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)

	channel := &ReconciliationChannel{
		ID:     id,
		Filter: filter,
		Events: make(chan *domain.ReconciliationEvent, 10), // Buffered channel
		Done:   make(chan struct{}),
		ctx:    subCtx,
		cancel: cancel,
	}

	ps.mu.Lock()
	ps.channels[id] = channel
	ps.mu.Unlock()

	ps.logger.Info().
		Str("channelId", id).
		Interface("filter", filter).
		Msg("Reconciliation subscription created")

	// Cleanup when context is cancelled
	go func() {
		<-subCtx.Done()
		ps.Unsubscribe(id)
	}()

	return channel
}

// Unsubscribe removes a subscription channel.
func (ps *ReconciliationPubSub) Unsubscribe(channelID string) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	channel, exists := ps.channels[channelID]
	if !exists {
		return
	}

	close(channel.Events)
	close(channel.Done)
	channel.cancel()
	delete(ps.channels, channelID)

	ps.logger.Info().
		Str("channelId", channelID).
		Msg("Reconciliation subscription removed")
}

// Publish broadcasts a reconciliation event to all matching subscribers.
func (ps *ReconciliationPubSub) Publish(event *domain.ReconciliationEvent) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	publishedCount := 0
	for _, channel := range ps.channels {
		if ps.matchesFilter(event, channel.Filter) {
			select {
			case channel.Events <- event:
				publishedCount++
			case <-channel.ctx.Done():
				// Channel is closed, skip
			default:
				// Channel buffer full, skip (non-blocking)
				ps.logger.Warn().
					Str("channelId", channel.ID).
					Msg("Channel buffer full, dropping event")
			}
		}
	}

	if publishedCount > 0 {
		ps.logger.Debug().
			Str("eventType", event.EventType).
			Str("entityKind", event.EntityKind).
			Int("subscribers", publishedCount).
			Msg("Published reconciliation event to subscribers")
	}
}

// matchesFilter checks if an event matches the subscription filter.
func (ps *ReconciliationPubSub) matchesFilter(event *domain.ReconciliationEvent, filter *ReconciliationFilter) bool {
	if filter == nil {
		return true // No filter, match all
	}

	if filter.AppliedOnly && !event.Applied {
		return false
	}

	if len(filter.EntityKinds) > 0 {
		kindMatch := false
		for _, kind := range filter.EntityKinds {
			if event.EntityKind == kind {
				kindMatch = true
				break
			}
		}
		if !kindMatch {
			return false
		}
	}

	return true
}

func (ps *ReconciliationPubSub) generateID() string {
	ps.nextID++
	return fmt.Sprintf("sub-%d", ps.nextID)
}
