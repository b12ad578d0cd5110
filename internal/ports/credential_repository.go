package ports

import (
	"context"

	"donation-square-connect/internal/domain"
)

// CredentialRepository defines the interface for per-mode credential
// persistence. Get returns (nil, nil) when no credential exists for the
// mode. Tokens are stored encrypted by the caller.
type CredentialRepository interface {
	Get(ctx context.Context, mode domain.Mode) (*domain.Credential, error)
	Save(ctx context.Context, credential *domain.Credential) error
	Delete(ctx context.Context, mode domain.Mode) error

	// MarkInvalid escalates the credential to the terminal invalid status
	// in a single update.
	MarkInvalid(ctx context.Context, mode domain.Mode) error

	// SetLocation persists the selected location id and its currency onto
	// the credential in a single update.
	SetLocation(ctx context.Context, mode domain.Mode, locationID, currency string) error

	// ClearLocation resets the selected location id and currency, used
	// when the provider reports no usable locations.
	ClearLocation(ctx context.Context, mode domain.Mode) error
}

// AuthorizationStateRepository stores pending OAuth authorizations keyed by
// the opaque state token.
type AuthorizationStateRepository interface {
	Create(ctx context.Context, state *domain.AuthorizationState) error

	// Consume looks up and deletes the state record in one shot. Returns
	// (nil, nil) for unknown or expired states.
	Consume(ctx context.Context, state string) (*domain.AuthorizationState, error)
}
