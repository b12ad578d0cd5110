package ports

import (
	"context"

	"donation-square-connect/internal/domain"
)

// DonationRepository defines the interface for donation persistence.
// Lookups return (nil, nil) when no record matches; callers decide whether
// absence is an error. Status mutations are single atomic updates.
type DonationRepository interface {
	CreateDonation(ctx context.Context, donation *domain.Donation) error
	GetDonationByID(ctx context.Context, id string) (*domain.Donation, error)
	GetDonationByTransactionID(ctx context.Context, mode domain.Mode, transactionID string) (*domain.Donation, error)

	// GetLatestDonationByCustomerID returns the most recent donation owned
	// by the provider customer, used as the narrow fallback when a payment
	// event arrives before the transaction ID was backfilled.
	GetLatestDonationByCustomerID(ctx context.Context, mode domain.Mode, customerID string) (*domain.Donation, error)

	// GetLatestPendingDonationBySubscription returns the most recent child
	// donation of the subscription still in pending, if any.
	GetLatestPendingDonationBySubscription(ctx context.Context, subscriptionID string) (*domain.Donation, error)

	// UpdateDonationStatus applies the transition in one atomic call.
	// Returns false when nothing changed: the donation already had the
	// status, or it is in a terminal status the transition may not leave.
	UpdateDonationStatus(ctx context.Context, id string, status domain.DonationStatus) (bool, error)

	// RecordPaymentDetails stores receipt URL and card fields. Called on
	// every payment event delivery, including ones whose status transition
	// was a no-op.
	RecordPaymentDetails(ctx context.Context, id string, details domain.PaymentDetails) error

	SetDonationTransactionID(ctx context.Context, id string, transactionID string) error

	// ClaimFirstInvoice atomically claims the awaiting-first-invoice marker
	// on the subscription's originating donation and backfills the provider
	// transaction ID in the same update. At most one caller wins; later
	// calls return (nil, nil) and can resolve the donation by the
	// transaction ID the winner just wrote.
	ClaimFirstInvoice(ctx context.Context, subscriptionID, transactionID string) (*domain.Donation, error)
}

// SubscriptionRepository defines the interface for subscription persistence.
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, subscription *domain.Subscription) error
	GetSubscriptionByProviderID(ctx context.Context, mode domain.Mode, providerSubscriptionID string) (*domain.Subscription, error)

	// UpdateSubscriptionStatus applies the transition atomically, refusing
	// to leave a terminal status. Returns false when nothing changed.
	UpdateSubscriptionStatus(ctx context.Context, id string, status domain.SubscriptionStatus) (bool, error)

	SetCancelPending(ctx context.Context, id string, pending bool) error
}

// WebhookLogRepository persists validated webhook events for auditing.
type WebhookLogRepository interface {
	LogEvent(ctx context.Context, event *domain.Event) error
}
