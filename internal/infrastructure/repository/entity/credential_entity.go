package entity

import (
	"time"

	"donation-square-connect/internal/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MongoCredentialDoc is the MongoDB document for a per-mode credential.
type MongoCredentialDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Mode         string             `bson:"mode"`
	AccessToken  string             `bson:"access_token"`
	RefreshToken string             `bson:"refresh_token"`
	AppID        string             `bson:"app_id"`
	MerchantID   string             `bson:"merchant_id"`
	ScopesAt     time.Time          `bson:"scopes_at"`
	Currency     string             `bson:"currency"`
	LocationID   string             `bson:"location_id"`
	Status       string             `bson:"status"`
	RenewAt      time.Time          `bson:"renew_at"`
	Encrypted    bool               `bson:"encrypted"`
	CreatedAt    time.Time          `bson:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at"`
}

// ToDomain converts the document to a domain credential.
func (d *MongoCredentialDoc) ToDomain() *domain.Credential {
	return &domain.Credential{
		ID:           d.ID.Hex(),
		Mode:         domain.Mode(d.Mode),
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		AppID:        d.AppID,
		MerchantID:   d.MerchantID,
		ScopesAt:     d.ScopesAt,
		Currency:     d.Currency,
		LocationID:   d.LocationID,
		Status:       domain.CredentialStatus(d.Status),
		RenewAt:      d.RenewAt,
		Encrypted:    d.Encrypted,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// MongoCredentialDocFromDomain converts a domain credential to a document.
func MongoCredentialDocFromDomain(c *domain.Credential) *MongoCredentialDoc {
	doc := &MongoCredentialDoc{
		Mode:         string(c.Mode),
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		AppID:        c.AppID,
		MerchantID:   c.MerchantID,
		ScopesAt:     c.ScopesAt,
		Currency:     c.Currency,
		LocationID:   c.LocationID,
		Status:       string(c.Status),
		RenewAt:      c.RenewAt,
		Encrypted:    c.Encrypted,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if oid, err := primitive.ObjectIDFromHex(c.ID); err == nil {
		doc.ID = oid
	}
	return doc
}

// MongoAuthStateDoc is the MongoDB document for a pending OAuth
// authorization.
type MongoAuthStateDoc struct {
	State     string    `bson:"_id"`
	Mode      string    `bson:"mode"`
	Scopes    []string  `bson:"scopes"`
	ReturnURL string    `bson:"return_url"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
}

// ToDomain converts the document to a domain authorization state.
func (d *MongoAuthStateDoc) ToDomain() *domain.AuthorizationState {
	return &domain.AuthorizationState{
		State:     d.State,
		Mode:      domain.Mode(d.Mode),
		Scopes:    d.Scopes,
		ReturnURL: d.ReturnURL,
		ExpiresAt: d.ExpiresAt,
		CreatedAt: d.CreatedAt,
	}
}

// MongoAuthStateDocFromDomain converts a domain authorization state to a
// document.
func MongoAuthStateDocFromDomain(s *domain.AuthorizationState) *MongoAuthStateDoc {
	return &MongoAuthStateDoc{
		State:     s.State,
		Mode:      string(s.Mode),
		Scopes:    s.Scopes,
		ReturnURL: s.ReturnURL,
		ExpiresAt: s.ExpiresAt,
		CreatedAt: s.CreatedAt,
	}
}
