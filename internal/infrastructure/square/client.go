package square

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"donation-square-connect/internal/domain"
	"donation-square-connect/internal/ports"

	"github.com/rs/zerolog"
)

const (
	liveBaseURL    = "https://connect.squareup.com"
	sandboxBaseURL = "https://connect.squareupsandbox.com"

	// Outbound calls run inline with webhook processing and scheduled
	// ticks, so the provider expects them to finish quickly.
	requestTimeout = 8 * time.Second
)

type client struct {
	appID      string
	appSecret  string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new Square REST adapter.
func NewClient(appID, appSecret string, logger zerolog.Logger) ports.SquareClient {
	return &client{
		appID:     appID,
		appSecret: appSecret,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		logger: logger,
	}
}

func baseURL(mode domain.Mode) string {
	if mode == domain.ModeLive {
		return liveBaseURL
	}
	return sandboxBaseURL
}

// AuthorizeURL builds the provider authorization URL. Scopes are
// space-separated per Square's OAuth documentation.
func (c *client) AuthorizeURL(mode domain.Mode, state string, scopes []string) string {
	return fmt.Sprintf(
		"%s/oauth2/authorize?client_id=%s&scope=%s&session=false&state=%s",
		baseURL(mode),
		url.QueryEscape(c.appID),
		url.QueryEscape(strings.Join(scopes, " ")),
		url.QueryEscape(state),
	)
}

// tokenResponse is the provider's token endpoint response body.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	MerchantID   string `json:"merchant_id"`
	ExpiresAt    string `json:"expires_at"`
	ShortLived   bool   `json:"short_lived"`
}

// ExchangeCode exchanges an authorization code for a token grant.
func (c *client) ExchangeCode(ctx context.Context, mode domain.Mode, code string) (*ports.TokenGrant, error) {
	body := map[string]string{
		"client_id":     c.appID,
		"client_secret": c.appSecret,
		"grant_type":    "authorization_code",
		"code":          code,
	}
	return c.obtainToken(ctx, mode, "token exchange", body)
}

// RefreshToken obtains a fresh token pair from the stored refresh token.
func (c *client) RefreshToken(ctx context.Context, mode domain.Mode, refreshToken string) (*ports.TokenGrant, error) {
	body := map[string]string{
		"client_id":     c.appID,
		"client_secret": c.appSecret,
		"grant_type":    "refresh_token",
		"refresh_token": refreshToken,
	}
	return c.obtainToken(ctx, mode, "token refresh", body)
}

func (c *client) obtainToken(ctx context.Context, mode domain.Mode, op string, body map[string]string) (*ports.TokenGrant, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(mode)+"/oauth2/token", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransientError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &domain.TransientError{Op: op, Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		detail := readErrorDetail(resp.Body)
		c.logger.Warn().
			Str("op", op).
			Str("mode", string(mode)).
			Int("status", resp.StatusCode).
			Str("detail", detail).
			Msg("Provider rejected token request")
		return nil, &domain.ProviderRejection{Op: op, Status: resp.StatusCode, Detail: detail}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", op, err)
	}

	return &ports.TokenGrant{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		MerchantID:   tr.MerchantID,
		ExpiresAt:    tr.ExpiresAt,
		ShortLived:   tr.ShortLived,
	}, nil
}

// RevokeToken revokes the merchant's access token upstream.
func (c *client) RevokeToken(ctx context.Context, mode domain.Mode, accessToken string) error {
	payload, err := json.Marshal(map[string]string{
		"client_id":    c.appID,
		"access_token": accessToken,
	})
	if err != nil {
		return fmt.Errorf("failed to encode revoke request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL(mode)+"/oauth2/revoke", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Client "+c.appSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.TransientError{Op: "token revoke", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return &domain.TransientError{Op: "token revoke", Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return &domain.ProviderRejection{Op: "token revoke", Status: resp.StatusCode, Detail: readErrorDetail(resp.Body)}
	}

	return nil
}

// locationDoc mirrors the provider's location object.
type locationDoc struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Status       string   `json:"status"`
	Currency     string   `json:"currency"`
	Capabilities []string `json:"capabilities"`
}

// ListLocations fetches the merchant's business locations.
func (c *client) ListLocations(ctx context.Context, mode domain.Mode, accessToken string) ([]domain.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL(mode)+"/v2/locations", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create locations request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.TransientError{Op: "list locations", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &domain.TransientError{Op: "list locations", Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &domain.ProviderRejection{Op: "list locations", Status: resp.StatusCode, Detail: readErrorDetail(resp.Body)}
	}

	var body struct {
		Locations []locationDoc `json:"locations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode locations response: %w", err)
	}

	locations := make([]domain.Location, 0, len(body.Locations))
	for _, doc := range body.Locations {
		locations = append(locations, domain.Location{
			ID:           doc.ID,
			Name:         doc.Name,
			Status:       doc.Status,
			Currency:     doc.Currency,
			Capabilities: doc.Capabilities,
		})
	}

	c.logger.Debug().
		Str("mode", string(mode)).
		Int("count", len(locations)).
		Msg("Fetched provider locations")

	return locations, nil
}

func readErrorDetail(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	return string(raw)
}
