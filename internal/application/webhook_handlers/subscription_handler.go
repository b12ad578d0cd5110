package webhook_handlers

import (
	"context"
	"fmt"
	"time"

	"donation-square-connect/internal/domain"
	"donation-square-connect/internal/infrastructure/pubsub"
	"donation-square-connect/internal/ports"

	"github.com/rs/zerolog"
)

// SubscriptionHandler reconciles subscription lifecycle events against
// local subscription records.
type SubscriptionHandler struct {
	subscriptions ports.SubscriptionRepository
	donations     ports.DonationRepository
	events        *pubsub.ReconciliationPubSub
	logger        zerolog.Logger
}

// NewSubscriptionHandler creates a new subscription webhook handler.
func NewSubscriptionHandler(
	subscriptions ports.SubscriptionRepository,
	donations ports.DonationRepository,
	events *pubsub.ReconciliationPubSub,
	logger zerolog.Logger,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		donations:     donations,
		events:        events,
		logger:        logger,
	}
}

// EventTypes returns the event types this handler reconciles.
func (h *SubscriptionHandler) EventTypes() []string {
	return []string{"subscription.created", "subscription.updated"}
}

// Handle processes a subscription webhook event.
func (h *SubscriptionHandler) Handle(ctx context.Context, event *domain.Event) error {
	sub := event.Data.Object.Subscription
	if sub == nil {
		return fmt.Errorf("subscription event %s carries no subscription object", event.EventID)
	}

	mode := domain.GetModeFromContext(ctx)
	local, err := h.subscriptions.GetSubscriptionByProviderID(ctx, mode, sub.ID)
	if err != nil {
		return fmt.Errorf("failed subscription lookup: %w", err)
	}
	if local == nil {
		h.logger.Warn().
			Str("eventId", event.EventID).
			Str("providerSubscriptionId", sub.ID).
			Msg("No local subscription for event, ignoring")
		return nil
	}

	canceledDateSet := sub.CanceledDate != ""
	if canceledDateSet && !local.CancelPending {
		if err := h.subscriptions.SetCancelPending(ctx, local.ID, true); err != nil {
			return fmt.Errorf("failed to set cancel pending: %w", err)
		}
	}

	target, ok := domain.SubscriptionStatusFromProvider(sub.Status, canceledDateSet)
	if !ok {
		h.logger.Debug().
			Str("providerStatus", sub.Status).
			Msg("Subscription event maps to no local transition")
		return nil
	}

	applied, err := h.subscriptions.UpdateSubscriptionStatus(ctx, local.ID, target)
	if err != nil {
		return fmt.Errorf("failed to apply subscription transition: %w", err)
	}

	// An in-flight payment for a subscription that was just cancelled
	// cannot be expected to complete.
	if applied && target == domain.SubscriptionCancelled {
		if err := h.failLatestPendingChild(ctx, local.ID); err != nil {
			return err
		}
	}

	h.logger.Info().
		Str("eventId", event.EventID).
		Str("subscriptionId", local.ID).
		Str("from", string(local.Status)).
		Str("to", string(target)).
		Bool("applied", applied).
		Msg("Processed subscription webhook event")

	if h.events != nil {
		h.events.Publish(&domain.ReconciliationEvent{
			EventType:  event.Type,
			EntityKind: "subscription",
			EntityID:   local.ID,
			OldStatus:  string(local.Status),
			NewStatus:  string(target),
			Applied:    applied,
			OccurredAt: time.Now(),
		})
	}

	return nil
}

func (h *SubscriptionHandler) failLatestPendingChild(ctx context.Context, subscriptionID string) error {
	child, err := h.donations.GetLatestPendingDonationBySubscription(ctx, subscriptionID)
	if err != nil {
		return fmt.Errorf("failed pending child lookup: %w", err)
	}
	if child == nil {
		return nil
	}

	applied, err := h.donations.UpdateDonationStatus(ctx, child.ID, domain.DonationFailed)
	if err != nil {
		return fmt.Errorf("failed to fail pending child donation: %w", err)
	}

	h.logger.Info().
		Str("subscriptionId", subscriptionID).
		Str("donationId", child.ID).
		Bool("applied", applied).
		Msg("Failed in-flight donation of cancelled subscription")

	return nil
}
