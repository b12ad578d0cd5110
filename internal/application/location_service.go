package application

import (
	"context"
	"fmt"

	"donation-square-connect/internal/domain"
	"donation-square-connect/internal/ports"

	"github.com/rs/zerolog"
)

// backoffClassLocations is the failure tracker class for location fetches.
const backoffClassLocations = "locations"

// LocationService resolves the merchant's business locations, keeps the
// selected location sticky, and caches the result with a TTL.
type LocationService struct {
	credentials   ports.CredentialRepository
	client        ports.SquareClient
	cache         ports.LocationCache
	encryptionSvc ports.EncryptionService
	tracker       ports.FailureTracker
	logger        zerolog.Logger
}

// NewLocationService creates a new location service.
func NewLocationService(
	credentials ports.CredentialRepository,
	client ports.SquareClient,
	cache ports.LocationCache,
	encryptionSvc ports.EncryptionService,
	tracker ports.FailureTracker,
	logger zerolog.Logger,
) *LocationService {
	return &LocationService{
		credentials:   credentials,
		client:        client,
		cache:         cache,
		encryptionSvc: encryptionSvc,
		tracker:       tracker,
		logger:        logger,
	}
}

// ResolveLocations returns the active card-capable locations for a mode.
// Served from cache inside the TTL. When the filtered set is empty, the
// stored selection and currency are reset so donation flows can detect
// "no usable location" instead of silently using a stale one.
func (s *LocationService) ResolveLocations(ctx context.Context, mode domain.Mode) ([]domain.Location, error) {
	if cached, ok := s.cache.Get(ctx, mode); ok {
		return cached, nil
	}

	credential, err := s.credentials.Get(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if !credential.Configured() {
		return nil, domain.ErrNotConfigured
	}

	if s.tracker.ShouldSkip(ctx, backoffClassLocations) {
		return nil, &domain.TransientError{Op: "list locations", Err: fmt.Errorf("inside backoff window")}
	}

	accessToken := credential.AccessToken
	if credential.Encrypted {
		accessToken, err = s.encryptionSvc.Decrypt(credential.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt access token: %w", err)
		}
	}

	all, err := s.client.ListLocations(ctx, mode, accessToken)
	if err != nil {
		if domain.IsTransient(err) {
			if recErr := s.tracker.RecordFailure(ctx, backoffClassLocations); recErr != nil {
				s.logger.Warn().Err(recErr).Msg("Failed to record location fetch failure")
			}
		}
		return nil, err
	}
	if err := s.tracker.Clear(ctx, backoffClassLocations); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear location backoff marker")
	}

	// Filter to active locations capable of card processing, keeping the
	// provider's stable ordering.
	active := make([]domain.Location, 0, len(all))
	for _, loc := range all {
		if loc.CanProcessCards() {
			active = append(active, loc)
		}
	}

	if len(active) == 0 {
		if err := s.credentials.ClearLocation(ctx, mode); err != nil {
			return nil, fmt.Errorf("failed to reset location selection: %w", err)
		}
		s.logger.Warn().
			Str("mode", string(mode)).
			Int("reported", len(all)).
			Msg("No active card-capable locations, selection reset")
		if err := s.cache.Set(ctx, mode, active); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to cache empty location set")
		}
		return active, nil
	}

	if err := s.persistSelection(ctx, mode, credential, active); err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, mode, active); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to cache locations")
	}

	return active, nil
}

// persistSelection keeps the previously selected location when it is still
// in the active set, otherwise picks the first remaining one.
func (s *LocationService) persistSelection(ctx context.Context, mode domain.Mode, credential *domain.Credential, active []domain.Location) error {
	selected := active[0]
	for _, loc := range active {
		if loc.ID == credential.LocationID {
			selected = loc
			break
		}
	}

	if selected.ID == credential.LocationID && selected.Currency == credential.Currency {
		return nil
	}

	if err := s.credentials.SetLocation(ctx, mode, selected.ID, selected.Currency); err != nil {
		return fmt.Errorf("failed to persist location selection: %w", err)
	}

	s.logger.Info().
		Str("mode", string(mode)).
		Str("locationId", selected.ID).
		Str("currency", selected.Currency).
		Msg("Persisted selected location")

	return nil
}
