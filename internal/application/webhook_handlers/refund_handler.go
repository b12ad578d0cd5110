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

// RefundHandler reconciles refund events. Refunded is a one-way door: the
// repository's guarded update keeps a later out-of-order payment event
// from reversing it.
type RefundHandler struct {
	donations ports.DonationRepository
	events    *pubsub.ReconciliationPubSub
	logger    zerolog.Logger
}

// NewRefundHandler creates a new refund webhook handler.
func NewRefundHandler(
	donations ports.DonationRepository,
	events *pubsub.ReconciliationPubSub,
	logger zerolog.Logger,
) *RefundHandler {
	return &RefundHandler{
		donations: donations,
		events:    events,
		logger:    logger,
	}
}

// EventTypes returns the event types this handler reconciles.
func (h *RefundHandler) EventTypes() []string {
	return []string{"refund.created", "refund.updated"}
}

// Handle processes a refund webhook event.
func (h *RefundHandler) Handle(ctx context.Context, event *domain.Event) error {
	refund := event.Data.Object.Refund
	if refund == nil {
		return fmt.Errorf("refund event %s carries no refund object", event.EventID)
	}

	// A rejected or failed refund never moves the donation.
	if refund.Status == "REJECTED" || refund.Status == "FAILED" {
		h.logger.Info().
			Str("eventId", event.EventID).
			Str("refundId", refund.ID).
			Str("status", refund.Status).
			Msg("Refund did not complete, no transition")
		return nil
	}

	mode := domain.GetModeFromContext(ctx)
	donation, err := h.donations.GetDonationByTransactionID(ctx, mode, refund.OrderID)
	if err != nil {
		return fmt.Errorf("failed transaction lookup: %w", err)
	}
	if donation == nil {
		h.logger.Warn().
			Str("eventId", event.EventID).
			Str("orderId", refund.OrderID).
			Str("paymentId", refund.PaymentID).
			Msg("No local donation for refund event, ignoring")
		return nil
	}

	applied, err := h.donations.UpdateDonationStatus(ctx, donation.ID, domain.DonationRefunded)
	if err != nil {
		return fmt.Errorf("failed to apply refund transition: %w", err)
	}

	h.logger.Info().
		Str("eventId", event.EventID).
		Str("donationId", donation.ID).
		Str("refundId", refund.ID).
		Bool("applied", applied).
		Msg("Processed refund webhook event")

	if h.events != nil {
		h.events.Publish(&domain.ReconciliationEvent{
			EventType:  event.Type,
			EntityKind: "donation",
			EntityID:   donation.ID,
			OldStatus:  string(donation.Status),
			NewStatus:  string(domain.DonationRefunded),
			Applied:    applied,
			OccurredAt: time.Now(),
		})
	}

	return nil
}
