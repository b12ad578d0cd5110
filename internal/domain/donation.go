package domain

import "time"

// DonationStatus is the local donation state machine. Refunded is terminal:
// once set it is never reversed by a later payment event.
type DonationStatus string

const (
	DonationPending   DonationStatus = "pending"
	DonationCompleted DonationStatus = "completed"
	DonationFailed    DonationStatus = "failed"
	DonationRefunded  DonationStatus = "refunded"
)

// Terminal reports whether no further automatic transition is permitted.
func (s DonationStatus) Terminal() bool {
	return s == DonationRefunded
}

// Donation is the local record of a single one-time gift or one billing
// cycle of a subscription. Created at checkout (or synthesized by the
// invoice handler for later cycles); mutated only by reconciliation.
type Donation struct {
	ID             string         `json:"id" bson:"_id"`
	Mode           Mode           `json:"mode" bson:"mode"`
	Status         DonationStatus `json:"status" bson:"status"`
	Amount         int64          `json:"amount" bson:"amount"` // minor units
	Currency       string         `json:"currency" bson:"currency"`
	CampaignID     string         `json:"campaign_id" bson:"campaign_id"`
	SubscriptionID string         `json:"subscription_id,omitempty" bson:"subscription_id,omitempty"`
	// TransactionID is the provider order/transaction identifier. Empty
	// until the first payment event for a new subscription arrives.
	TransactionID string    `json:"transaction_id,omitempty" bson:"transaction_id,omitempty"`
	PaymentID     string    `json:"payment_id,omitempty" bson:"payment_id,omitempty"`
	CustomerID    string    `json:"customer_id,omitempty" bson:"customer_id,omitempty"`
	ReceiptURL    string    `json:"receipt_url,omitempty" bson:"receipt_url,omitempty"`
	CardStatus    string    `json:"card_status,omitempty" bson:"card_status,omitempty"`
	CardBrand     string    `json:"card_brand,omitempty" bson:"card_brand,omitempty"`
	CardLast4     string    `json:"card_last4,omitempty" bson:"card_last4,omitempty"`
	// AwaitingFirstInvoice is set at checkout on a subscription's
	// originating donation and claimed exactly once by the invoice handler.
	AwaitingFirstInvoice bool      `json:"awaiting_first_invoice,omitempty" bson:"awaiting_first_invoice,omitempty"`
	CreatedAt            time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" bson:"updated_at"`
}

// PaymentDetails carries the non-status fields recorded on every payment
// event delivery, even when the status itself is unchanged.
type PaymentDetails struct {
	PaymentID  string
	ReceiptURL string
	CardStatus string
	CardBrand  string
	CardLast4  string
}

// DonationStatusFromPayment maps a payment event onto the local donation
// status. The card-processing sub-status drives the transition; the
// top-level payment status is only consulted when no card status is
// present.
func DonationStatusFromPayment(paymentStatus, cardStatus string) (DonationStatus, bool) {
	switch cardStatus {
	case "AUTHORIZED":
		return DonationPending, true
	case "CAPTURED":
		return DonationCompleted, true
	case "FAILED", "VOIDED":
		return DonationFailed, true
	}
	switch paymentStatus {
	case "CANCELED", "FAILED":
		return DonationFailed, true
	case "APPROVED", "PENDING":
		return DonationPending, true
	case "COMPLETED":
		return DonationCompleted, true
	}
	return "", false
}

// DonationStatusFromInvoice translates an invoice status onto the donation
// synthesized (or promoted) for that billing cycle.
func DonationStatusFromInvoice(invoiceStatus string) DonationStatus {
	switch invoiceStatus {
	case "PAID":
		return DonationCompleted
	case "FAILED":
		return DonationFailed
	default:
		return DonationPending
	}
}
