package repository

import (
	"context"
	"fmt"
	"time"

	"donation-square-connect/internal/domain"
	"donation-square-connect/internal/infrastructure/repository/entity"
	"donation-square-connect/internal/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDonationRepository implements DonationRepository using MongoDB.
// Every status mutation is a single guarded update so concurrent webhook
// deliveries cannot race each other into a lost update.
type MongoDonationRepository struct {
	collection *mongo.Collection
}

// NewMongoDonationRepository creates a new MongoDB donation repository.
func NewMongoDonationRepository(db *mongo.Database) ports.DonationRepository {
	return &MongoDonationRepository{
		collection: db.Collection("donations"),
	}
}

// CreateDonation inserts a new donation record.
func (r *MongoDonationRepository) CreateDonation(ctx context.Context, donation *domain.Donation) error {
	doc := entity.MongoDonationDocFromDomain(donation)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.UpdatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create donation: %w", err)
	}
	return nil
}

// GetDonationByID retrieves a donation by internal ID, or (nil, nil).
func (r *MongoDonationRepository) GetDonationByID(ctx context.Context, id string) (*domain.Donation, error) {
	return r.findOne(ctx, bson.M{"_id": id}, nil)
}

// GetDonationByTransactionID retrieves a donation by provider transaction
// ID, or (nil, nil).
func (r *MongoDonationRepository) GetDonationByTransactionID(ctx context.Context, mode domain.Mode, transactionID string) (*domain.Donation, error) {
	return r.findOne(ctx, bson.M{"mode": string(mode), "transaction_id": transactionID}, nil)
}

// GetLatestDonationByCustomerID retrieves the most recent donation owned
// by the provider customer. Latest-by-time only, to keep the fallback
// narrowly scoped.
func (r *MongoDonationRepository) GetLatestDonationByCustomerID(ctx context.Context, mode domain.Mode, customerID string) (*domain.Donation, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.findOne(ctx, bson.M{"mode": string(mode), "customer_id": customerID}, opts)
}

// GetLatestPendingDonationBySubscription retrieves the most recent child
// donation of the subscription still in pending.
func (r *MongoDonationRepository) GetLatestPendingDonationBySubscription(ctx context.Context, subscriptionID string) (*domain.Donation, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "created_at", Value: -1}})
	filter := bson.M{
		"subscription_id": subscriptionID,
		"status":          string(domain.DonationPending),
	}
	return r.findOne(ctx, filter, opts)
}

func (r *MongoDonationRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*domain.Donation, error) {
	var doc entity.MongoDonationDoc
	var err error
	if opts != nil {
		err = r.collection.FindOne(ctx, filter, opts).Decode(&doc)
	} else {
		err = r.collection.FindOne(ctx, filter).Decode(&doc)
	}
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	return doc.ToDomain(), nil
}

// UpdateDonationStatus applies the transition in one atomic call. The
// filter refuses a no-op (already that status) and refuses to leave the
// terminal refunded status, so an out-of-order payment event can never
// resurrect a refunded donation.
func (r *MongoDonationRepository) UpdateDonationStatus(ctx context.Context, id string, status domain.DonationStatus) (bool, error) {
	filter := bson.M{
		"_id": id,
		"status": bson.M{"$nin": bson.A{
			string(status),
			string(domain.DonationRefunded),
		}},
	}
	update := bson.M{"$set": bson.M{
		"status":     string(status),
		"updated_at": time.Now(),
	}}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update donation status: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// RecordPaymentDetails stores receipt URL and card fields, independent of
// any status transition. Empty fields are left untouched.
func (r *MongoDonationRepository) RecordPaymentDetails(ctx context.Context, id string, details domain.PaymentDetails) error {
	set := bson.M{"updated_at": time.Now()}
	if details.PaymentID != "" {
		set["payment_id"] = details.PaymentID
	}
	if details.ReceiptURL != "" {
		set["receipt_url"] = details.ReceiptURL
	}
	if details.CardStatus != "" {
		set["card_status"] = details.CardStatus
	}
	if details.CardBrand != "" {
		set["card_brand"] = details.CardBrand
	}
	if details.CardLast4 != "" {
		set["card_last4"] = details.CardLast4
	}

	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set}); err != nil {
		return fmt.Errorf("failed to record payment details: %w", err)
	}
	return nil
}

// SetDonationTransactionID backfills the provider transaction ID.
func (r *MongoDonationRepository) SetDonationTransactionID(ctx context.Context, id string, transactionID string) error {
	update := bson.M{"$set": bson.M{
		"transaction_id": transactionID,
		"updated_at":     time.Now(),
	}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("failed to set transaction id: %w", err)
	}
	return nil
}

// ClaimFirstInvoice atomically claims the awaiting-first-invoice marker on
// the subscription's originating donation, writing the provider transaction
// ID in the same update. The claim and the backfill must land together: a
// duplicate delivery that loses the claim resolves the checkout donation
// through the transaction-ID lookup, which only works if the winner's
// backfill is already visible.
func (r *MongoDonationRepository) ClaimFirstInvoice(ctx context.Context, subscriptionID, transactionID string) (*domain.Donation, error) {
	filter := bson.M{
		"subscription_id":        subscriptionID,
		"awaiting_first_invoice": true,
	}
	update := bson.M{
		"$set": bson.M{
			"transaction_id": transactionID,
			"updated_at":     time.Now(),
		},
		"$unset": bson.M{"awaiting_first_invoice": ""},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc entity.MongoDonationDoc
	err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim first invoice: %w", err)
	}
	return doc.ToDomain(), nil
}
