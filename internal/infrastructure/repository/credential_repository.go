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

// MongoCredentialRepository implements CredentialRepository using MongoDB.
// One document per mode in the square_credentials collection.
type MongoCredentialRepository struct {
	collection *mongo.Collection
}

// NewMongoCredentialRepository creates a new MongoDB credential repository.
func NewMongoCredentialRepository(db *mongo.Database) ports.CredentialRepository {
	return &MongoCredentialRepository{
		collection: db.Collection("square_credentials"),
	}
}

// Get retrieves the credential for a mode, or (nil, nil) when absent.
func (r *MongoCredentialRepository) Get(ctx context.Context, mode domain.Mode) (*domain.Credential, error) {
	var doc entity.MongoCredentialDoc
	err := r.collection.FindOne(ctx, bson.M{"mode": string(mode)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return doc.ToDomain(), nil
}

// Save upserts the credential for its mode in a single call.
func (r *MongoCredentialRepository) Save(ctx context.Context, credential *domain.Credential) error {
	doc := entity.MongoCredentialDocFromDomain(credential)
	doc.UpdatedAt = time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	update := bson.M{
		"$set": bson.M{
			"access_token":  doc.AccessToken,
			"refresh_token": doc.RefreshToken,
			"app_id":        doc.AppID,
			"merchant_id":   doc.MerchantID,
			"scopes_at":     doc.ScopesAt,
			"currency":      doc.Currency,
			"location_id":   doc.LocationID,
			"status":        doc.Status,
			"renew_at":      doc.RenewAt,
			"encrypted":     doc.Encrypted,
			"updated_at":    doc.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"mode":       doc.Mode,
			"created_at": doc.CreatedAt,
		},
	}

	opts := options.Update().SetUpsert(true)
	if _, err := r.collection.UpdateOne(ctx, bson.M{"mode": doc.Mode}, update, opts); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Delete removes the credential for a mode.
func (r *MongoCredentialRepository) Delete(ctx context.Context, mode domain.Mode) error {
	if _, err := r.collection.DeleteOne(ctx, bson.M{"mode": string(mode)}); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

// MarkInvalid escalates the credential to the terminal invalid status.
func (r *MongoCredentialRepository) MarkInvalid(ctx context.Context, mode domain.Mode) error {
	update := bson.M{"$set": bson.M{
		"status":     string(domain.CredentialInvalid),
		"updated_at": time.Now(),
	}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"mode": string(mode)}, update); err != nil {
		return fmt.Errorf("failed to mark credential invalid: %w", err)
	}
	return nil
}

// SetLocation persists the selected location id and currency.
func (r *MongoCredentialRepository) SetLocation(ctx context.Context, mode domain.Mode, locationID, currency string) error {
	update := bson.M{"$set": bson.M{
		"location_id": locationID,
		"currency":    currency,
		"updated_at":  time.Now(),
	}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"mode": string(mode)}, update); err != nil {
		return fmt.Errorf("failed to set location: %w", err)
	}
	return nil
}

// ClearLocation resets the selected location id and currency.
func (r *MongoCredentialRepository) ClearLocation(ctx context.Context, mode domain.Mode) error {
	update := bson.M{"$set": bson.M{
		"location_id": "",
		"currency":    "",
		"updated_at":  time.Now(),
	}}
	if _, err := r.collection.UpdateOne(ctx, bson.M{"mode": string(mode)}, update); err != nil {
		return fmt.Errorf("failed to clear location: %w", err)
	}
	return nil
}

// MongoAuthStateRepository implements AuthorizationStateRepository using
// MongoDB.
type MongoAuthStateRepository struct {
	collection *mongo.Collection
}

// NewMongoAuthStateRepository creates a new authorization state repository.
func NewMongoAuthStateRepository(db *mongo.Database) ports.AuthorizationStateRepository {
	return &MongoAuthStateRepository{
		collection: db.Collection("oauth_states"),
	}
}

// Create stores a pending authorization keyed by its state token.
func (r *MongoAuthStateRepository) Create(ctx context.Context, state *domain.AuthorizationState) error {
	doc := entity.MongoAuthStateDocFromDomain(state)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create authorization state: %w", err)
	}
	return nil
}

// Consume looks up and deletes the state record in one shot. Expired
// states are treated as unknown.
func (r *MongoAuthStateRepository) Consume(ctx context.Context, state string) (*domain.AuthorizationState, error) {
	var doc entity.MongoAuthStateDoc
	err := r.collection.FindOneAndDelete(ctx, bson.M{"_id": state}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization state: %w", err)
	}
	if time.Now().After(doc.ExpiresAt) {
		return nil, nil
	}
	return doc.ToDomain(), nil
}
