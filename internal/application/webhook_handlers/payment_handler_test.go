package webhook_handlers

import (
	"context"
	"testing"
	"time"

	"donation-square-connect/internal/domain"

	"github.com/rs/zerolog"
)

func testContext() context.Context {
	return domain.WithMode(context.Background(), domain.ModeTest)
}

func paymentEvent(eventID, paymentStatus, cardStatus, orderID, customerID string) *domain.Event {
	payment := &domain.PaymentPayload{
		ID:         "pay_" + eventID,
		Status:     paymentStatus,
		OrderID:    orderID,
		CustomerID: customerID,
		ReceiptURL: "https://squareup.com/receipt/" + eventID,
	}
	payment.CardDetails.Status = cardStatus
	payment.CardDetails.Card.Brand = "VISA"
	payment.CardDetails.Card.Last4 = "1111"
	return &domain.Event{
		MerchantID: "MERCHANT1",
		EventID:    eventID,
		Type:       "payment.updated",
		CreatedAt:  time.Now(),
		Data: domain.EventData{
			Type:   "payment",
			ID:     payment.ID,
			Object: domain.EventObject{Payment: payment},
		},
	}
}

func TestPaymentHandlerCardLifecycle(t *testing.T) {
	repo := newFakeDonationRepo()
	repo.put(&domain.Donation{
		ID:            "don1",
		Mode:          domain.ModeTest,
		Status:        domain.DonationPending,
		TransactionID: "order1",
		CreatedAt:     time.Now(),
	})
	handler := NewPaymentHandler(repo, nil, zerolog.Nop())
	ctx := testContext()

	// Authorization keeps the donation pending.
	if err := handler.Handle(ctx, paymentEvent("evt1", "APPROVED", "AUTHORIZED", "order1", "")); err != nil {
		t.Fatalf("authorized event: %v", err)
	}
	if got := repo.get("don1"); got.Status != domain.DonationPending {
		t.Fatalf("after authorization: status = %s, want pending", got.Status)
	}

	// Capture completes it.
	if err := handler.Handle(ctx, paymentEvent("evt2", "COMPLETED", "CAPTURED", "order1", "")); err != nil {
		t.Fatalf("captured event: %v", err)
	}
	got := repo.get("don1")
	if got.Status != domain.DonationCompleted {
		t.Fatalf("after capture: status = %s, want completed", got.Status)
	}
	if got.ReceiptURL == "" || got.CardBrand != "VISA" || got.CardLast4 != "1111" {
		t.Fatalf("payment details not recorded: %+v", got)
	}
}

func TestPaymentHandlerIdempotentRedelivery(t *testing.T) {
	repo := newFakeDonationRepo()
	repo.put(&domain.Donation{
		ID:            "don1",
		Mode:          domain.ModeTest,
		Status:        domain.DonationPending,
		TransactionID: "order1",
		CreatedAt:     time.Now(),
	})
	handler := NewPaymentHandler(repo, nil, zerolog.Nop())
	ctx := testContext()

	event := paymentEvent("evt1", "COMPLETED", "CAPTURED", "order1", "")
	for i := 0; i < 3; i++ {
		if err := handler.Handle(ctx, event); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}
	if got := repo.get("don1"); got.Status != domain.DonationCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
}

func TestPaymentHandlerRefundedIsTerminal(t *testing.T) {
	repo := newFakeDonationRepo()
	repo.put(&domain.Donation{
		ID:            "don1",
		Mode:          domain.ModeTest,
		Status:        domain.DonationRefunded,
		TransactionID: "order1",
		CreatedAt:     time.Now(),
	})
	handler := NewPaymentHandler(repo, nil, zerolog.Nop())

	// A stale capture delivered after the refund must not resurrect it.
	if err := handler.Handle(testContext(), paymentEvent("evt1", "COMPLETED", "CAPTURED", "order1", "")); err != nil {
		t.Fatalf("stale capture: %v", err)
	}
	if got := repo.get("don1"); got.Status != domain.DonationRefunded {
		t.Fatalf("status = %s, want refunded", got.Status)
	}
}

func TestPaymentHandlerCustomerFallbackBackfill(t *testing.T) {
	repo := newFakeDonationRepo()
	repo.put(&domain.Donation{
		ID:         "old",
		Mode:       domain.ModeTest,
		Status:     domain.DonationCompleted,
		CustomerID: "cust1",
		CreatedAt:  time.Now().Add(-time.Hour),
	})
	repo.put(&domain.Donation{
		ID:         "fresh",
		Mode:       domain.ModeTest,
		Status:     domain.DonationPending,
		CustomerID: "cust1",
		CreatedAt:  time.Now(),
	})
	handler := NewPaymentHandler(repo, nil, zerolog.Nop())

	// No donation knows order9 yet; the customer fallback must pick the
	// most recent donation and backfill the transaction id onto it.
	if err := handler.Handle(testContext(), paymentEvent("evt1", "COMPLETED", "CAPTURED", "order9", "cust1")); err != nil {
		t.Fatalf("fallback event: %v", err)
	}

	fresh := repo.get("fresh")
	if fresh.Status != domain.DonationCompleted {
		t.Fatalf("fresh donation status = %s, want completed", fresh.Status)
	}
	if fresh.TransactionID != "order9" {
		t.Fatalf("transaction id not backfilled: %q", fresh.TransactionID)
	}
	if old := repo.get("old"); old.TransactionID != "" {
		t.Fatalf("older donation touched: %+v", old)
	}

	// Redelivery now resolves through the exact transaction lookup.
	if err := handler.Handle(testContext(), paymentEvent("evt2", "COMPLETED", "CAPTURED", "order9", "cust1")); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
}

func TestPaymentHandlerUnknownPaymentAcknowledged(t *testing.T) {
	repo := newFakeDonationRepo()
	handler := NewPaymentHandler(repo, nil, zerolog.Nop())

	if err := handler.Handle(testContext(), paymentEvent("evt1", "COMPLETED", "CAPTURED", "order1", "")); err != nil {
		t.Fatalf("unknown payment should be acknowledged, got %v", err)
	}
}

func TestPaymentHandlerUnmappedStatusRecordsDetails(t *testing.T) {
	repo := newFakeDonationRepo()
	repo.put(&domain.Donation{
		ID:            "don1",
		Mode:          domain.ModeTest,
		Status:        domain.DonationPending,
		TransactionID: "order1",
		CreatedAt:     time.Now(),
	})
	handler := NewPaymentHandler(repo, nil, zerolog.Nop())

	if err := handler.Handle(testContext(), paymentEvent("evt1", "UNKNOWN_STATE", "", "order1", "")); err != nil {
		t.Fatalf("unmapped status: %v", err)
	}
	got := repo.get("don1")
	if got.Status != domain.DonationPending {
		t.Fatalf("status changed on unmapped event: %s", got.Status)
	}
	if got.ReceiptURL == "" {
		t.Fatal("receipt url not recorded on unmapped event")
	}
}
