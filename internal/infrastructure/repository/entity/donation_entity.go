package entity

import (
	"time"

	"donation-square-connect/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoDonationDoc is the MongoDB document for a donation record.
type MongoDonationDoc struct {
	ID                   string    `bson:"_id"`
	Mode                 string    `bson:"mode"`
	Status               string    `bson:"status"`
	Amount               int64     `bson:"amount"`
	Currency             string    `bson:"currency"`
	CampaignID           string    `bson:"campaign_id"`
	SubscriptionID       string    `bson:"subscription_id,omitempty"`
	TransactionID        string    `bson:"transaction_id,omitempty"`
	PaymentID            string    `bson:"payment_id,omitempty"`
	CustomerID           string    `bson:"customer_id,omitempty"`
	ReceiptURL           string    `bson:"receipt_url,omitempty"`
	CardStatus           string    `bson:"card_status,omitempty"`
	CardBrand            string    `bson:"card_brand,omitempty"`
	CardLast4            string    `bson:"card_last4,omitempty"`
	AwaitingFirstInvoice bool      `bson:"awaiting_first_invoice,omitempty"`
	CreatedAt            time.Time `bson:"created_at"`
	UpdatedAt            time.Time `bson:"updated_at"`
}

// ToDomain converts the document to a domain donation.
func (d *MongoDonationDoc) ToDomain() *domain.Donation {
	return &domain.Donation{
		ID:                   d.ID,
		Mode:                 domain.Mode(d.Mode),
		Status:               domain.DonationStatus(d.Status),
		Amount:               d.Amount,
		Currency:             d.Currency,
		CampaignID:           d.CampaignID,
		SubscriptionID:       d.SubscriptionID,
		TransactionID:        d.TransactionID,
		PaymentID:            d.PaymentID,
		CustomerID:           d.CustomerID,
		ReceiptURL:           d.ReceiptURL,
		CardStatus:           d.CardStatus,
		CardBrand:            d.CardBrand,
		CardLast4:            d.CardLast4,
		AwaitingFirstInvoice: d.AwaitingFirstInvoice,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}

// MongoDonationDocFromDomain converts a domain donation to a document.
func MongoDonationDocFromDomain(don *domain.Donation) *MongoDonationDoc {
	return &MongoDonationDoc{
		ID:                   don.ID,
		Mode:                 string(don.Mode),
		Status:               string(don.Status),
		Amount:               don.Amount,
		Currency:             don.Currency,
		CampaignID:           don.CampaignID,
		SubscriptionID:       don.SubscriptionID,
		TransactionID:        don.TransactionID,
		PaymentID:            don.PaymentID,
		CustomerID:           don.CustomerID,
		ReceiptURL:           don.ReceiptURL,
		CardStatus:           don.CardStatus,
		CardBrand:            don.CardBrand,
		CardLast4:            don.CardLast4,
		AwaitingFirstInvoice: don.AwaitingFirstInvoice,
		CreatedAt:            don.CreatedAt,
		UpdatedAt:            don.UpdatedAt,
	}
}

// MongoSubscriptionDoc is the MongoDB document for a subscription record.
type MongoSubscriptionDoc struct {
	ID                     string    `bson:"_id"`
	Mode                   string    `bson:"mode"`
	Status                 string    `bson:"status"`
	ProviderSubscriptionID string    `bson:"provider_subscription_id"`
	CustomerID             string    `bson:"customer_id,omitempty"`
	Amount                 int64     `bson:"amount"`
	Currency               string    `bson:"currency"`
	CampaignID             string    `bson:"campaign_id"`
	CancelPending          bool      `bson:"cancel_pending"`
	CreatedAt              time.Time `bson:"created_at"`
	UpdatedAt              time.Time `bson:"updated_at"`
}

// ToDomain converts the document to a domain subscription.
func (d *MongoSubscriptionDoc) ToDomain() *domain.Subscription {
	return &domain.Subscription{
		ID:                     d.ID,
		Mode:                   domain.Mode(d.Mode),
		Status:                 domain.SubscriptionStatus(d.Status),
		ProviderSubscriptionID: d.ProviderSubscriptionID,
		CustomerID:             d.CustomerID,
		Amount:                 d.Amount,
		Currency:               d.Currency,
		CampaignID:             d.CampaignID,
		CancelPending:          d.CancelPending,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}

// MongoSubscriptionDocFromDomain converts a domain subscription to a
// document.
func MongoSubscriptionDocFromDomain(s *domain.Subscription) *MongoSubscriptionDoc {
	return &MongoSubscriptionDoc{
		ID:                     s.ID,
		Mode:                   string(s.Mode),
		Status:                 string(s.Status),
		ProviderSubscriptionID: s.ProviderSubscriptionID,
		CustomerID:             s.CustomerID,
		Amount:                 s.Amount,
		Currency:               s.Currency,
		CampaignID:             s.CampaignID,
		CancelPending:          s.CancelPending,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
	}
}

// MongoWebhookEventDoc is the MongoDB document for an audited webhook
// event.
type MongoWebhookEventDoc struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	MerchantID string             `bson:"merchant_id"`
	EventID    string             `bson:"event_id"`
	Type       string             `bson:"type"`
	OccurredAt time.Time          `bson:"occurred_at"`
	Payload    []byte             `bson:"payload"`
	CreatedAt  time.Time          `bson:"created_at"`
}

// MongoWebhookEventDocFromDomain converts a domain event to a document.
func MongoWebhookEventDocFromDomain(e *domain.Event) *MongoWebhookEventDoc {
	return &MongoWebhookEventDoc{
		MerchantID: e.MerchantID,
		EventID:    e.EventID,
		Type:       e.Type,
		OccurredAt: e.CreatedAt,
		Payload:    e.Raw,
	}
}
