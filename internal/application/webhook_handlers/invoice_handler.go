package webhook_handlers

import (
	"context"
	"fmt"
	"time"

	"donation-square-connect/internal/domain"
	"donation-square-connect/internal/infrastructure/pubsub"
	"donation-square-connect/internal/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InvoiceHandler reconciles invoice/billing-cycle events. The first
// invoice of a subscription promotes the checkout donation; every later
// invoice synthesizes a fresh donation parented to the subscription.
type InvoiceHandler struct {
	subscriptions ports.SubscriptionRepository
	donations     ports.DonationRepository
	events        *pubsub.ReconciliationPubSub
	logger        zerolog.Logger
}

// NewInvoiceHandler creates a new invoice webhook handler.
func NewInvoiceHandler(
	subscriptions ports.SubscriptionRepository,
	donations ports.DonationRepository,
	events *pubsub.ReconciliationPubSub,
	logger zerolog.Logger,
) *InvoiceHandler {
	return &InvoiceHandler{
		subscriptions: subscriptions,
		donations:     donations,
		events:        events,
		logger:        logger,
	}
}

// EventTypes returns the event types this handler reconciles.
func (h *InvoiceHandler) EventTypes() []string {
	return []string{"invoice.payment_made", "invoice.updated"}
}

// Handle processes an invoice webhook event.
func (h *InvoiceHandler) Handle(ctx context.Context, event *domain.Event) error {
	invoice := event.Data.Object.Invoice
	if invoice == nil {
		return fmt.Errorf("invoice event %s carries no invoice object", event.EventID)
	}
	if invoice.SubscriptionID == "" {
		h.logger.Info().
			Str("eventId", event.EventID).
			Str("invoiceId", invoice.ID).
			Msg("Invoice without subscription, ignoring")
		return nil
	}

	mode := domain.GetModeFromContext(ctx)
	sub, err := h.subscriptions.GetSubscriptionByProviderID(ctx, mode, invoice.SubscriptionID)
	if err != nil {
		return fmt.Errorf("failed subscription lookup: %w", err)
	}
	if sub == nil {
		h.logger.Warn().
			Str("eventId", event.EventID).
			Str("providerSubscriptionId", invoice.SubscriptionID).
			Msg("No local subscription for invoice event, ignoring")
		return nil
	}

	// The order ID is the only stable correlation key for a billing
	// cycle. Without one the event can neither claim the first-invoice
	// marker nor be matched on redelivery, so it is acknowledged and the
	// cycle waits for a delivery that carries it.
	if invoice.OrderID == "" {
		h.logger.Info().
			Str("eventId", event.EventID).
			Str("invoiceId", invoice.ID).
			Str("status", invoice.Status).
			Msg("Invoice without order id, awaiting a correlatable delivery")
		return nil
	}

	target := domain.DonationStatusFromInvoice(invoice.Status)

	// First invoice: promote the donation created at checkout instead of
	// duplicating it. The claim unsets the marker and backfills the
	// transaction ID in one atomic update, so a concurrent duplicate
	// delivery that loses the claim is guaranteed to find the checkout
	// donation through the transaction-ID lookup below.
	checkout, err := h.donations.ClaimFirstInvoice(ctx, sub.ID, invoice.OrderID)
	if err != nil {
		return fmt.Errorf("failed first-invoice claim: %w", err)
	}
	if checkout != nil {
		return h.promoteCheckoutDonation(ctx, event, sub, checkout, target)
	}

	// Redelivery of an invoice already reconciled: apply the status to
	// the existing donation rather than synthesizing a duplicate.
	existing, err := h.donations.GetDonationByTransactionID(ctx, mode, invoice.OrderID)
	if err != nil {
		return fmt.Errorf("failed transaction lookup: %w", err)
	}
	if existing != nil {
		applied, err := h.donations.UpdateDonationStatus(ctx, existing.ID, target)
		if err != nil {
			return fmt.Errorf("failed to apply invoice transition: %w", err)
		}
		if err := h.activatePendingSubscription(ctx, sub, target); err != nil {
			return err
		}
		h.publish(event, existing.ID, string(existing.Status), string(target), applied)
		return nil
	}

	return h.synthesizeRenewalDonation(ctx, event, sub, invoice, target)
}

func (h *InvoiceHandler) promoteCheckoutDonation(
	ctx context.Context,
	event *domain.Event,
	sub *domain.Subscription,
	checkout *domain.Donation,
	target domain.DonationStatus,
) error {
	applied, err := h.donations.UpdateDonationStatus(ctx, checkout.ID, target)
	if err != nil {
		return fmt.Errorf("failed to promote checkout donation: %w", err)
	}

	// Activation does not hinge on applied: a duplicate delivery may have
	// completed the donation first, but the claim winner still owns the
	// subscription transition. The guarded update makes this idempotent.
	if err := h.activatePendingSubscription(ctx, sub, target); err != nil {
		return err
	}

	h.logger.Info().
		Str("eventId", event.EventID).
		Str("subscriptionId", sub.ID).
		Str("donationId", checkout.ID).
		Str("to", string(target)).
		Bool("applied", applied).
		Msg("Promoted checkout donation for first invoice")

	h.publish(event, checkout.ID, string(checkout.Status), string(target), applied)
	return nil
}

// activatePendingSubscription moves a subscription out of pending once its
// first cycle settles.
func (h *InvoiceHandler) activatePendingSubscription(ctx context.Context, sub *domain.Subscription, target domain.DonationStatus) error {
	if target != domain.DonationCompleted || sub.Status != domain.SubscriptionPending {
		return nil
	}
	if _, err := h.subscriptions.UpdateSubscriptionStatus(ctx, sub.ID, domain.SubscriptionActive); err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}
	return nil
}

func (h *InvoiceHandler) synthesizeRenewalDonation(
	ctx context.Context,
	event *domain.Event,
	sub *domain.Subscription,
	invoice *domain.InvoicePayload,
	target domain.DonationStatus,
) error {
	amount := sub.Amount
	currency := sub.Currency
	if len(invoice.PaymentRequests) > 0 {
		if m := invoice.PaymentRequests[0].ComputedAmountMoney; m.Amount > 0 {
			amount = m.Amount
			currency = m.Currency
		}
	}

	donation := &domain.Donation{
		ID:             uuid.NewString(),
		Mode:           sub.Mode,
		Status:         target,
		Amount:         amount,
		Currency:       currency,
		CampaignID:     sub.CampaignID,
		SubscriptionID: sub.ID,
		TransactionID:  invoice.OrderID,
		CustomerID:     invoice.PrimaryRecipient.CustomerID,
		CreatedAt:      time.Now(),
	}
	if donation.CustomerID == "" {
		donation.CustomerID = sub.CustomerID
	}

	if err := h.donations.CreateDonation(ctx, donation); err != nil {
		return fmt.Errorf("failed to synthesize renewal donation: %w", err)
	}

	h.logger.Info().
		Str("eventId", event.EventID).
		Str("subscriptionId", sub.ID).
		Str("donationId", donation.ID).
		Str("status", string(target)).
		Str("invoiceId", invoice.ID).
		Msg("Synthesized donation for new billing cycle")

	h.publish(event, donation.ID, "", string(target), true)
	return nil
}

func (h *InvoiceHandler) publish(event *domain.Event, donationID, from, to string, applied bool) {
	if h.events == nil {
		return
	}
	h.events.Publish(&domain.ReconciliationEvent{
		EventType:  event.Type,
		EntityKind: "donation",
		EntityID:   donationID,
		OldStatus:  from,
		NewStatus:  to,
		Applied:    applied,
		OccurredAt: time.Now(),
	})
}
