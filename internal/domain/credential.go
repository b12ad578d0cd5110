package domain

import "time"

// CredentialStatus tracks whether the stored token pair is still accepted
// by the provider.
type CredentialStatus string

const (
	CredentialValid CredentialStatus = "valid"
	// CredentialInvalid is terminal: the provider rejected the refresh
	// token, so only a fresh authorization can recover the connection.
	CredentialInvalid CredentialStatus = "invalid"
)

// Credential holds the OAuth token pair and identity metadata for one
// operating mode. Tokens are stored encrypted; Encrypted marks whether the
// AccessToken/RefreshToken fields currently hold ciphertext.
type Credential struct {
	ID           string           `json:"id" bson:"_id,omitempty"`
	Mode         Mode             `json:"mode" bson:"mode"`
	AccessToken  string           `json:"-" bson:"access_token"`
	RefreshToken string           `json:"-" bson:"refresh_token"`
	AppID        string           `json:"app_id" bson:"app_id"`
	MerchantID   string           `json:"merchant_id" bson:"merchant_id"`
	ScopesAt     time.Time        `json:"scopes_at" bson:"scopes_at"`
	Currency     string           `json:"currency" bson:"currency"`
	LocationID   string           `json:"location_id" bson:"location_id"`
	Status       CredentialStatus `json:"status" bson:"status"`
	RenewAt      time.Time        `json:"renew_at" bson:"renew_at"`
	Encrypted    bool             `json:"-" bson:"encrypted"`
	CreatedAt    time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" bson:"updated_at"`
}

// Configured reports whether all four identity/token fields are present.
func (c *Credential) Configured() bool {
	if c == nil {
		return false
	}
	return c.AccessToken != "" && c.RefreshToken != "" && c.AppID != "" && c.MerchantID != ""
}

// Usable reports whether the credential can back live donation processing:
// configured, still valid, and matching the site's configured currency.
func (c *Credential) Usable(siteCurrency string) bool {
	return c.Configured() && c.Status == CredentialValid && c.Currency == siteCurrency
}

// NeedsRenewal reports whether the renewal deadline falls within the given
// margin from now.
func (c *Credential) NeedsRenewal(now time.Time, margin time.Duration) bool {
	if c == nil || c.RenewAt.IsZero() {
		return true
	}
	return !now.Add(margin).Before(c.RenewAt)
}

// AuthorizationState is a pending OAuth authorization, keyed by the opaque
// state token sent to the provider. Expires shortly after creation.
type AuthorizationState struct {
	State     string    `json:"state" bson:"_id"`
	Mode      Mode      `json:"mode" bson:"mode"`
	Scopes    []string  `json:"scopes" bson:"scopes"`
	ReturnURL string    `json:"return_url" bson:"return_url"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
