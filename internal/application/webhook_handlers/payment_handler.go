package webhook_handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"donation-square-connect/internal/domain"
	"donation-square-connect/internal/infrastructure/pubsub"
	"donation-square-connect/internal/ports"

	"github.com/rs/zerolog"
)

// PaymentHandler reconciles payment lifecycle events against local
// donation records.
type PaymentHandler struct {
	donations ports.DonationRepository
	events    *pubsub.ReconciliationPubSub
	logger    zerolog.Logger
}

// NewPaymentHandler creates a new payment webhook handler.
func NewPaymentHandler(
	donations ports.DonationRepository,
	events *pubsub.ReconciliationPubSub,
	logger zerolog.Logger,
) *PaymentHandler {
	return &PaymentHandler{
		donations: donations,
		events:    events,
		logger:    logger,
	}
}

// EventTypes returns the event types this handler reconciles.
func (h *PaymentHandler) EventTypes() []string {
	return []string{"payment.created", "payment.updated"}
}

// Handle processes a payment webhook event. Written as a last-known-good
// state applier: the same event delivered twice leaves the donation
// unchanged the second time, and an event for an unknown payment is
// acknowledged without touching anything.
func (h *PaymentHandler) Handle(ctx context.Context, event *domain.Event) error {
	payment := event.Data.Object.Payment
	if payment == nil {
		return fmt.Errorf("payment event %s carries no payment object", event.EventID)
	}

	donation, err := h.locateDonation(ctx, event, payment)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			h.logger.Warn().
				Str("eventId", event.EventID).
				Str("paymentId", payment.ID).
				Str("orderId", payment.OrderID).
				Msg("No local donation for payment event, ignoring")
			return nil
		}
		return err
	}

	target, ok := domain.DonationStatusFromPayment(payment.Status, payment.CardDetails.Status)
	applied := false
	if ok {
		applied, err = h.donations.UpdateDonationStatus(ctx, donation.ID, target)
		if err != nil {
			return fmt.Errorf("failed to apply payment transition: %w", err)
		}
	} else {
		h.logger.Debug().
			Str("paymentStatus", payment.Status).
			Str("cardStatus", payment.CardDetails.Status).
			Msg("Payment event maps to no local transition")
	}

	// Receipt URL and card fields are recorded on every delivery, even
	// when the status transition was a no-op.
	details := domain.PaymentDetails{
		PaymentID:  payment.ID,
		ReceiptURL: payment.ReceiptURL,
		CardStatus: payment.CardDetails.Status,
		CardBrand:  payment.CardDetails.Card.Brand,
		CardLast4:  payment.CardDetails.Card.Last4,
	}
	if err := h.donations.RecordPaymentDetails(ctx, donation.ID, details); err != nil {
		return fmt.Errorf("failed to record payment details: %w", err)
	}

	h.logger.Info().
		Str("eventId", event.EventID).
		Str("donationId", donation.ID).
		Str("from", string(donation.Status)).
		Str("to", string(target)).
		Bool("applied", applied).
		Msg("Processed payment webhook event")

	if h.events != nil {
		h.events.Publish(&domain.ReconciliationEvent{
			EventType:  event.Type,
			EntityKind: "donation",
			EntityID:   donation.ID,
			OldStatus:  string(donation.Status),
			NewStatus:  string(target),
			Applied:    applied,
			OccurredAt: time.Now(),
		})
	}

	return nil
}

// locateDonation resolves a payment event to a local donation. Two-tiered:
// exact provider transaction ID first, then the most recent donation owned
// by the provider customer, which covers the first payment on a new
// subscription where the checkout donation only has a customer ID yet.
// The fallback backfills the transaction ID onto the matched donation.
func (h *PaymentHandler) locateDonation(ctx context.Context, event *domain.Event, payment *domain.PaymentPayload) (*domain.Donation, error) {
	mode := domain.GetModeFromContext(ctx)

	if payment.OrderID != "" {
		donation, err := h.donations.GetDonationByTransactionID(ctx, mode, payment.OrderID)
		if err != nil {
			return nil, fmt.Errorf("failed transaction lookup: %w", err)
		}
		if donation != nil {
			return donation, nil
		}
	}

	if payment.CustomerID == "" {
		return nil, domain.ErrNotFound
	}

	donation, err := h.donations.GetLatestDonationByCustomerID(ctx, mode, payment.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("failed customer fallback lookup: %w", err)
	}
	if donation == nil {
		return nil, domain.ErrNotFound
	}

	if donation.TransactionID == "" && payment.OrderID != "" {
		if err := h.donations.SetDonationTransactionID(ctx, donation.ID, payment.OrderID); err != nil {
			return nil, fmt.Errorf("failed to backfill transaction id: %w", err)
		}
		donation.TransactionID = payment.OrderID
		h.logger.Info().
			Str("donationId", donation.ID).
			Str("transactionId", payment.OrderID).
			Msg("Backfilled transaction id via customer fallback")
	}

	return donation, nil
}
