package domain

import (
	"encoding/json"
	"time"
)

// Event is a single typed webhook notification from the payment provider.
// Transient: validated, dispatched once, never persisted beyond the audit
// log.
type Event struct {
	MerchantID string
	EventID    string
	Type       string
	CreatedAt  time.Time
	Data       EventData
	// Raw is the original request body, kept for the audit log.
	Raw json.RawMessage
}

// EventData is the typed nested object of a webhook envelope. Exactly one
// of the payload pointers is set, matching the event type family.
type EventData struct {
	Type   string
	ID     string
	Object EventObject
}

// EventObject holds the type-specific payload of an event.
type EventObject struct {
	Payment      *PaymentPayload      `json:"payment,omitempty"`
	Refund       *RefundPayload       `json:"refund,omitempty"`
	Subscription *SubscriptionPayload `json:"subscription,omitempty"`
	Invoice      *InvoicePayload      `json:"invoice,omitempty"`
}

// Money is a provider amount in minor units.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// PaymentPayload is the payment object carried by payment.* events.
type PaymentPayload struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	OrderID     string `json:"order_id"`
	CustomerID  string `json:"customer_id"`
	ReceiptURL  string `json:"receipt_url"`
	AmountMoney Money  `json:"amount_money"`
	CardDetails struct {
		Status string `json:"status"`
		Card   struct {
			Brand string `json:"card_brand"`
			Last4 string `json:"last_4"`
		} `json:"card"`
	} `json:"card_details"`
}

// RefundPayload is the refund object carried by refund.* events.
type RefundPayload struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	AmountMoney Money  `json:"amount_money"`
}

// SubscriptionPayload is the subscription object carried by
// subscription.* events.
type SubscriptionPayload struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	CustomerID   string `json:"customer_id"`
	CanceledDate string `json:"canceled_date"`
	PlanID       string `json:"plan_id"`
}

// InvoicePayload is the invoice object carried by invoice.* events, one
// per billing cycle of a subscription.
type InvoicePayload struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	SubscriptionID string `json:"subscription_id"`
	OrderID        string `json:"order_id"`
	InvoiceNumber  string `json:"invoice_number"`
	PrimaryRecipient struct {
		CustomerID string `json:"customer_id"`
	} `json:"primary_recipient"`
	PaymentRequests []struct {
		ComputedAmountMoney Money `json:"computed_amount_money"`
	} `json:"payment_requests"`
}

// ReconciliationEvent is published after a handler applies (or skips) a
// local transition, feeding the admin activity stream.
type ReconciliationEvent struct {
	EventType  string    `json:"event_type"`
	EntityKind string    `json:"entity_kind"`
	EntityID   string    `json:"entity_id"`
	OldStatus  string    `json:"old_status,omitempty"`
	NewStatus  string    `json:"new_status,omitempty"`
	Applied    bool      `json:"applied"`
	OccurredAt time.Time `json:"occurred_at"`
}
