package ports

import (
	"context"

	"donation-square-connect/internal/domain"
)

// TokenGrant is the provider's response to a successful token exchange or
// refresh.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	MerchantID   string
	ExpiresAt    string
	ShortLived   bool
}

// SquareClient defines the outbound operations against the payment
// provider's API. Implementations set short explicit timeouts since these
// calls run inline with webhook processing and scheduled ticks.
type SquareClient interface {
	// AuthorizeURL builds the provider authorization URL carrying the
	// opaque state token and the requested permission scopes.
	AuthorizeURL(mode domain.Mode, state string, scopes []string) string

	// ExchangeCode exchanges an authorization code for a token grant.
	ExchangeCode(ctx context.Context, mode domain.Mode, code string) (*TokenGrant, error)

	// RefreshToken obtains a fresh token pair from the stored refresh
	// token. A provider rejection (not a transport failure) is returned as
	// *domain.ProviderRejection.
	RefreshToken(ctx context.Context, mode domain.Mode, refreshToken string) (*TokenGrant, error)

	// RevokeToken revokes the merchant's access token upstream.
	RevokeToken(ctx context.Context, mode domain.Mode, accessToken string) error

	// ListLocations fetches the merchant's business locations.
	ListLocations(ctx context.Context, mode domain.Mode, accessToken string) ([]domain.Location, error)
}
