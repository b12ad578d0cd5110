package domain

import "time"

// SubscriptionStatus is the local subscription state machine. Cancelled and
// completed are terminal.
type SubscriptionStatus string

const (
	SubscriptionPending SubscriptionStatus = "pending"
	SubscriptionActive  SubscriptionStatus = "active"
	// SubscriptionCancel means past due but still billing.
	SubscriptionCancel    SubscriptionStatus = "cancel"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionCompleted SubscriptionStatus = "completed"
)

// Terminal reports whether the subscription can no longer transition.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionCancelled || s == SubscriptionCompleted
}

// Subscription is the local record of a recurring donation plan.
type Subscription struct {
	ID                     string             `json:"id" bson:"_id"`
	Mode                   Mode               `json:"mode" bson:"mode"`
	Status                 SubscriptionStatus `json:"status" bson:"status"`
	ProviderSubscriptionID string             `json:"provider_subscription_id" bson:"provider_subscription_id"`
	CustomerID             string             `json:"customer_id,omitempty" bson:"customer_id,omitempty"`
	Amount                 int64              `json:"amount" bson:"amount"`
	Currency               string             `json:"currency" bson:"currency"`
	CampaignID             string             `json:"campaign_id" bson:"campaign_id"`
	CancelPending          bool               `json:"cancel_pending" bson:"cancel_pending"`
	CreatedAt              time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at" bson:"updated_at"`
}

// SubscriptionStatusFromProvider maps the provider's subscription status
// (plus an observed cancellation date on an otherwise-active record) onto
// the local state machine.
func SubscriptionStatusFromProvider(providerStatus string, canceledDateSet bool) (SubscriptionStatus, bool) {
	switch providerStatus {
	case "PENDING", "INCOMPLETE", "TRIALING":
		return SubscriptionPending, true
	case "ACTIVE":
		if canceledDateSet {
			return SubscriptionCancelled, true
		}
		return SubscriptionActive, true
	case "PAST_DUE":
		return SubscriptionCancel, true
	case "CANCELED", "UNPAID", "EXPIRED", "DEACTIVATED":
		return SubscriptionCancelled, true
	}
	return "", false
}
