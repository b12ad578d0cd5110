package application

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	mathrand "math/rand/v2"
	"time"

	"donation-square-connect/internal/domain"
	"donation-square-connect/internal/infrastructure/metrics"
	"donation-square-connect/internal/ports"

	"github.com/rs/zerolog"
)

// backoffClassOAuth is the failure tracker class for token endpoint calls.
const backoffClassOAuth = "oauth"

const (
	// stateTTL bounds how long an OAuth authorization can stay pending.
	stateTTL = 10 * time.Minute

	// refreshMargin is how close to the renewal deadline the scheduler
	// refreshes instead of waiting for the next tick.
	refreshMargin = 24 * time.Hour

	// tickInterval is the periodic background re-validation cadence.
	tickInterval = time.Hour

	// The renewal deadline is deliberately short of the provider's real
	// token lifetime and jittered so refreshes spread out across tenants.
	renewBase   = 5 * 24 * time.Hour
	renewJitter = 3 * 24 * time.Hour
)

// requestedScopes are the permission scopes asked for during
// authorization.
var requestedScopes = []string{
	"MERCHANT_PROFILE_READ",
	"PAYMENTS_READ",
	"PAYMENTS_WRITE",
	"ORDERS_READ",
	"ORDERS_WRITE",
	"CUSTOMERS_READ",
	"SUBSCRIPTIONS_READ",
	"SUBSCRIPTIONS_WRITE",
	"INVOICES_READ",
}

// nextRenewalDeadline returns now plus a jittered 5-8 days.
func nextRenewalDeadline(now time.Time) time.Time {
	return now.Add(renewBase + mathrand.N(renewJitter))
}

// ConnectionStatus is the settings-view summary of one mode's connection.
type ConnectionStatus struct {
	Mode       domain.Mode `json:"mode"`
	Configured bool        `json:"configured"`
	Usable     bool        `json:"usable"`
	Status     string      `json:"status,omitempty"`
	MerchantID string      `json:"merchant_id,omitempty"`
	LocationID string      `json:"location_id,omitempty"`
	Currency   string      `json:"currency,omitempty"`
	RenewAt    *time.Time  `json:"renew_at,omitempty"`
}

// ConnectionService drives the OAuth connection lifecycle: authorization,
// persisted credentials, background refresh, and disconnection.
type ConnectionService struct {
	credentials   ports.CredentialRepository
	authStates    ports.AuthorizationStateRepository
	client        ports.SquareClient
	encryptionSvc ports.EncryptionService
	locations     *LocationService
	tracker       ports.FailureTracker
	metrics       *metrics.Metrics
	logger        zerolog.Logger
	appID         string
	siteCurrency  string
}

// NewConnectionService creates a new connection service.
func NewConnectionService(
	credentials ports.CredentialRepository,
	authStates ports.AuthorizationStateRepository,
	client ports.SquareClient,
	encryptionSvc ports.EncryptionService,
	locations *LocationService,
	tracker ports.FailureTracker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	appID string,
	siteCurrency string,
) *ConnectionService {
	return &ConnectionService{
		credentials:   credentials,
		authStates:    authStates,
		client:        client,
		encryptionSvc: encryptionSvc,
		locations:     locations,
		tracker:       tracker,
		metrics:       m,
		logger:        logger,
		appID:         appID,
		siteCurrency:  siteCurrency,
	}
}

// BeginAuthorization stores a pending authorization and returns the
// provider URL to redirect the operator to.
func (s *ConnectionService) BeginAuthorization(ctx context.Context, mode domain.Mode, returnURL string) (string, error) {
	if !mode.Valid() {
		return "", &domain.ConfigurationError{Detail: fmt.Sprintf("unknown mode %q", mode)}
	}

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	state := hex.EncodeToString(stateBytes)

	record := &domain.AuthorizationState{
		State:     state,
		Mode:      mode,
		Scopes:    requestedScopes,
		ReturnURL: returnURL,
		ExpiresAt: time.Now().Add(stateTTL),
		CreatedAt: time.Now(),
	}
	if err := s.authStates.Create(ctx, record); err != nil {
		return "", fmt.Errorf("failed to store authorization state: %w", err)
	}

	s.logger.Info().
		Str("mode", string(mode)).
		Strs("scopes", requestedScopes).
		Msg("Beginning provider authorization")

	return s.client.AuthorizeURL(mode, state, requestedScopes), nil
}

// AuthorizationResult is the outcome of a completed authorization.
type AuthorizationResult struct {
	Credential *domain.Credential
	Mode       domain.Mode
	ReturnURL  string
}

// CompleteAuthorization exchanges the callback state and code for a
// credential. A provider response missing any required field is a
// configuration error surfaced to the operator and never persisted.
func (s *ConnectionService) CompleteAuthorization(ctx context.Context, state, code string) (*AuthorizationResult, error) {
	pending, err := s.authStates.Consume(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization state: %w", err)
	}
	if pending == nil {
		return nil, &domain.ConfigurationError{Detail: "unknown or expired authorization state"}
	}

	grant, err := s.client.ExchangeCode(ctx, pending.Mode, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" || grant.MerchantID == "" {
		return nil, &domain.ConfigurationError{Detail: "token response missing required fields"}
	}

	credential, err := s.buildCredential(pending.Mode, grant)
	if err != nil {
		return nil, err
	}
	if err := s.credentials.Save(ctx, credential); err != nil {
		return nil, fmt.Errorf("failed to persist credential: %w", err)
	}

	if err := s.tracker.Clear(ctx, backoffClassOAuth); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear oauth backoff marker")
	}

	s.logger.Info().
		Str("mode", string(pending.Mode)).
		Str("merchantId", grant.MerchantID).
		Time("renewAt", credential.RenewAt).
		Msg("Provider connection established")

	// Resolve locations right away so the selected location and currency
	// land on the fresh credential. Best effort: the scheduler retries.
	if _, err := s.locations.ResolveLocations(ctx, pending.Mode); err != nil {
		s.logger.Warn().Err(err).Str("mode", string(pending.Mode)).Msg("Initial location resolution failed")
	}

	return &AuthorizationResult{
		Credential: credential,
		Mode:       pending.Mode,
		ReturnURL:  pending.ReturnURL,
	}, nil
}

func (s *ConnectionService) buildCredential(mode domain.Mode, grant *ports.TokenGrant) (*domain.Credential, error) {
	encryptedAccess, err := s.encryptionSvc.Encrypt(grant.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encryptedRefresh, err := s.encryptionSvc.Encrypt(grant.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	now := time.Now()
	return &domain.Credential{
		Mode:         mode,
		AccessToken:  encryptedAccess,
		RefreshToken: encryptedRefresh,
		AppID:        s.appID,
		MerchantID:   grant.MerchantID,
		ScopesAt:     now,
		Status:       domain.CredentialValid,
		RenewAt:      nextRenewalDeadline(now),
		Encrypted:    true,
		CreatedAt:    now,
	}, nil
}

// RefreshIfNeeded refreshes the mode's token pair when the renewal
// deadline is imminent. A provider-reported rejection escalates the
// credential to invalid; a transport failure leaves it untouched so the
// next scheduled attempt can retry.
func (s *ConnectionService) RefreshIfNeeded(ctx context.Context, mode domain.Mode) error {
	credential, err := s.credentials.Get(ctx, mode)
	if err != nil {
		return fmt.Errorf("failed to load credential: %w", err)
	}
	if !credential.Configured() || credential.Status == domain.CredentialInvalid {
		return nil
	}
	if !credential.NeedsRenewal(time.Now(), refreshMargin) {
		return nil
	}

	if s.tracker.ShouldSkip(ctx, backoffClassOAuth) {
		if s.metrics != nil {
			s.metrics.OutboundSkipped.WithLabelValues(backoffClassOAuth).Inc()
		}
		s.logger.Info().Str("mode", string(mode)).Msg("Token refresh inside backoff window, skipping")
		return nil
	}

	refreshToken := credential.RefreshToken
	if credential.Encrypted {
		refreshToken, err = s.encryptionSvc.Decrypt(credential.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to decrypt refresh token: %w", err)
		}
	}

	grant, err := s.client.RefreshToken(ctx, mode, refreshToken)
	if err != nil {
		return s.handleRefreshFailure(ctx, mode, err)
	}
	if grant.AccessToken == "" || grant.RefreshToken == "" {
		return s.handleRefreshFailure(ctx, mode, &domain.ProviderRejection{
			Op:     "token refresh",
			Detail: "token response missing required fields",
		})
	}

	updated, err := s.buildCredential(mode, grant)
	if err != nil {
		return err
	}
	updated.ID = credential.ID
	updated.Currency = credential.Currency
	updated.LocationID = credential.LocationID
	updated.CreatedAt = credential.CreatedAt
	if updated.MerchantID == "" {
		updated.MerchantID = credential.MerchantID
	}

	if err := s.credentials.Save(ctx, updated); err != nil {
		return fmt.Errorf("failed to persist refreshed credential: %w", err)
	}
	if err := s.tracker.Clear(ctx, backoffClassOAuth); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear oauth backoff marker")
	}
	if s.metrics != nil {
		s.metrics.TokenRefreshes.WithLabelValues("ok").Inc()
	}

	s.logger.Info().
		Str("mode", string(mode)).
		Time("renewAt", updated.RenewAt).
		Msg("Refreshed provider tokens")

	return nil
}

func (s *ConnectionService) handleRefreshFailure(ctx context.Context, mode domain.Mode, err error) error {
	if domain.IsProviderRejection(err) {
		// An explicit rejection means the refresh token is dead; only a
		// fresh authorization can recover, so stop retrying.
		if markErr := s.credentials.MarkInvalid(ctx, mode); markErr != nil {
			return fmt.Errorf("failed to mark credential invalid: %w", markErr)
		}
		if s.metrics != nil {
			s.metrics.TokenRefreshes.WithLabelValues("rejected").Inc()
		}
		s.logger.Error().Err(err).Str("mode", string(mode)).Msg("Provider rejected token refresh, re-authorization required")
		return err
	}

	// Timeouts and 5xx leave the credential status untouched.
	if recErr := s.tracker.RecordFailure(ctx, backoffClassOAuth); recErr != nil {
		s.logger.Warn().Err(recErr).Msg("Failed to record oauth backoff marker")
	}
	if s.metrics != nil {
		s.metrics.TokenRefreshes.WithLabelValues("transient").Inc()
	}
	s.logger.Warn().Err(err).Str("mode", string(mode)).Msg("Token refresh failed transiently, will retry")
	return err
}

// Disconnect revokes the connection upstream best-effort, then tears down
// the local side unconditionally: credential, cached locations, and the
// mode-scoped selection. Returns partial=true when the upstream revoke
// failed but local teardown succeeded.
func (s *ConnectionService) Disconnect(ctx context.Context, mode domain.Mode) (partial bool, err error) {
	credential, getErr := s.credentials.Get(ctx, mode)
	if getErr != nil {
		return false, fmt.Errorf("failed to load credential: %w", getErr)
	}

	if credential.Configured() {
		if s.tracker.ShouldSkip(ctx, backoffClassOAuth) {
			partial = true
			if s.metrics != nil {
				s.metrics.OutboundSkipped.WithLabelValues(backoffClassOAuth).Inc()
			}
			s.logger.Warn().Str("mode", string(mode)).Msg("Upstream revoke inside backoff window, skipping")
		} else {
			accessToken := credential.AccessToken
			if credential.Encrypted {
				if decrypted, decErr := s.encryptionSvc.Decrypt(credential.AccessToken); decErr == nil {
					accessToken = decrypted
				} else {
					s.logger.Warn().Err(decErr).Msg("Failed to decrypt access token for revoke")
					accessToken = ""
				}
			}
			if accessToken != "" {
				if revokeErr := s.client.RevokeToken(ctx, mode, accessToken); revokeErr != nil {
					partial = true
					if domain.IsTransient(revokeErr) {
						if recErr := s.tracker.RecordFailure(ctx, backoffClassOAuth); recErr != nil {
							s.logger.Warn().Err(recErr).Msg("Failed to record oauth backoff marker")
						}
					}
					s.logger.Warn().Err(revokeErr).Str("mode", string(mode)).Msg("Upstream revoke failed, continuing local teardown")
				}
			}
		}
	}

	// Local teardown must proceed even when the revoke call failed: the
	// local side may never be left connected-looking after a
	// user-initiated disconnect.
	if err := s.credentials.Delete(ctx, mode); err != nil {
		return partial, fmt.Errorf("failed to delete credential: %w", err)
	}
	if err := s.locations.cache.Purge(ctx, mode); err != nil {
		s.logger.Warn().Err(err).Str("mode", string(mode)).Msg("Failed to purge location cache")
	}

	s.logger.Info().
		Str("mode", string(mode)).
		Bool("partial", partial).
		Msg("Provider connection disconnected")

	return partial, nil
}

// Status summarizes one mode's connection for the settings view.
func (s *ConnectionService) Status(ctx context.Context, mode domain.Mode) (*ConnectionStatus, error) {
	credential, err := s.credentials.Get(ctx, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}

	status := &ConnectionStatus{Mode: mode}
	if credential == nil {
		return status, nil
	}

	status.Configured = credential.Configured()
	status.Usable = credential.Usable(s.siteCurrency)
	status.Status = string(credential.Status)
	status.MerchantID = credential.MerchantID
	status.LocationID = credential.LocationID
	status.Currency = credential.Currency
	if !credential.RenewAt.IsZero() {
		renewAt := credential.RenewAt
		status.RenewAt = &renewAt
	}

	return status, nil
}

// RunScheduler re-validates the live-mode credential periodically: it
// refreshes when the renewal deadline is imminent, otherwise re-pulls
// locations to detect silent revocation on the provider's side. The loop
// unschedules itself once the credential is invalid or gone.
func (s *ConnectionService) RunScheduler(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", tickInterval).Msg("Connection scheduler started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Connection scheduler stopping")
			return
		case <-ticker.C:
			if !s.tick(ctx) {
				s.logger.Info().Msg("Connection scheduler unscheduled: credential invalid or unconfigured")
				return
			}
		}
	}
}

// tick runs one scheduled re-validation. Returns false when the loop
// should unschedule itself.
func (s *ConnectionService) tick(ctx context.Context) bool {
	mode := domain.ModeLive

	credential, err := s.credentials.Get(ctx, mode)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Scheduler failed to load credential")
		return true
	}
	if !credential.Configured() || credential.Status == domain.CredentialInvalid {
		return false
	}

	if credential.NeedsRenewal(time.Now(), refreshMargin) {
		if err := s.RefreshIfNeeded(ctx, mode); err != nil {
			s.logger.Warn().Err(err).Msg("Scheduled refresh failed")
		}
		return true
	}

	// Not close to expiry: probe the provider to surface a silently
	// revoked connection.
	if _, err := s.locations.ResolveLocations(ctx, mode); err != nil {
		if domain.IsProviderRejection(err) {
			if markErr := s.credentials.MarkInvalid(ctx, mode); markErr != nil {
				s.logger.Error().Err(markErr).Msg("Failed to mark credential invalid after revocation probe")
				return true
			}
			s.logger.Error().Err(err).Msg("Provider rejected location probe, connection marked invalid")
			return false
		}
		s.logger.Warn().Err(err).Msg("Scheduled location probe failed")
	}

	return true
}
