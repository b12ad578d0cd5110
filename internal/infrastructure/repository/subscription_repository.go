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
)

// MongoSubscriptionRepository implements SubscriptionRepository using
// MongoDB.
type MongoSubscriptionRepository struct {
	collection *mongo.Collection
}

// NewMongoSubscriptionRepository creates a new MongoDB subscription
// repository.
func NewMongoSubscriptionRepository(db *mongo.Database) ports.SubscriptionRepository {
	return &MongoSubscriptionRepository{
		collection: db.Collection("subscriptions"),
	}
}

// CreateSubscription inserts a new subscription record.
func (r *MongoSubscriptionRepository) CreateSubscription(ctx context.Context, subscription *domain.Subscription) error {
	doc := entity.MongoSubscriptionDocFromDomain(subscription)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	doc.UpdatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}
	return nil
}

// GetSubscriptionByProviderID retrieves a subscription by provider
// subscription ID, or (nil, nil).
func (r *MongoSubscriptionRepository) GetSubscriptionByProviderID(ctx context.Context, mode domain.Mode, providerSubscriptionID string) (*domain.Subscription, error) {
	var doc entity.MongoSubscriptionDoc
	filter := bson.M{"mode": string(mode), "provider_subscription_id": providerSubscriptionID}

	err := r.collection.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return doc.ToDomain(), nil
}

// UpdateSubscriptionStatus applies the transition atomically. The filter
// refuses a no-op and refuses to leave the terminal cancelled/completed
// states.
func (r *MongoSubscriptionRepository) UpdateSubscriptionStatus(ctx context.Context, id string, status domain.SubscriptionStatus) (bool, error) {
	filter := bson.M{
		"_id": id,
		"status": bson.M{"$nin": bson.A{
			string(status),
			string(domain.SubscriptionCancelled),
			string(domain.SubscriptionCompleted),
		}},
	}
	update := bson.M{"$set": bson.M{
		"status":     string(status),
		"updated_at": time.Now(),
	}}

	res, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to update subscription status: %w", err)
	}
	return res.ModifiedCount > 0, nil
}

// SetCancelPending flips the cancellation-pending flag.
func (r *MongoSubscriptionRepository) SetCancelPending(ctx context.Context, id string, pending bool) error {
	update := bson.M{"$set": bson.M{
		"cancel_pending": pending,
		"updated_at":     time.Now(),
	}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return fmt.Errorf("failed to set cancel pending: %w", err)
	}
	return nil
}

// MongoWebhookLogRepository implements WebhookLogRepository using MongoDB.
type MongoWebhookLogRepository struct {
	collection *mongo.Collection
}

// NewMongoWebhookLogRepository creates a new webhook audit log repository.
func NewMongoWebhookLogRepository(db *mongo.Database) ports.WebhookLogRepository {
	return &MongoWebhookLogRepository{
		collection: db.Collection("webhook_events"),
	}
}

// LogEvent appends a validated event to the audit log.
func (r *MongoWebhookLogRepository) LogEvent(ctx context.Context, event *domain.Event) error {
	doc := entity.MongoWebhookEventDocFromDomain(event)
	doc.CreatedAt = time.Now()

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to log webhook event: %w", err)
	}
	return nil
}
