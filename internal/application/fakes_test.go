package application

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"donation-square-connect/internal/domain"
	"donation-square-connect/internal/ports"
)

// memCredentialRepo is an in-memory CredentialRepository.
type memCredentialRepo struct {
	mu          sync.Mutex
	credentials map[domain.Mode]*domain.Credential
	deleted     []domain.Mode
}

func newMemCredentialRepo() *memCredentialRepo {
	return &memCredentialRepo{credentials: make(map[domain.Mode]*domain.Credential)}
}

func (r *memCredentialRepo) put(c *domain.Credential) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *c
	r.credentials[c.Mode] = &copied
}

func (r *memCredentialRepo) get(mode domain.Mode) *domain.Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.credentials[mode]; ok {
		copied := *c
		return &copied
	}
	return nil
}

func (r *memCredentialRepo) Get(ctx context.Context, mode domain.Mode) (*domain.Credential, error) {
	return r.get(mode), nil
}

func (r *memCredentialRepo) Save(ctx context.Context, credential *domain.Credential) error {
	r.put(credential)
	return nil
}

func (r *memCredentialRepo) Delete(ctx context.Context, mode domain.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.credentials, mode)
	r.deleted = append(r.deleted, mode)
	return nil
}

func (r *memCredentialRepo) MarkInvalid(ctx context.Context, mode domain.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.credentials[mode]; ok {
		c.Status = domain.CredentialInvalid
	}
	return nil
}

func (r *memCredentialRepo) SetLocation(ctx context.Context, mode domain.Mode, locationID, currency string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.credentials[mode]; ok {
		c.LocationID = locationID
		c.Currency = currency
	}
	return nil
}

func (r *memCredentialRepo) ClearLocation(ctx context.Context, mode domain.Mode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.credentials[mode]; ok {
		c.LocationID = ""
		c.Currency = ""
	}
	return nil
}

// memAuthStateRepo is an in-memory AuthorizationStateRepository.
type memAuthStateRepo struct {
	mu     sync.Mutex
	states map[string]*domain.AuthorizationState
}

func newMemAuthStateRepo() *memAuthStateRepo {
	return &memAuthStateRepo{states: make(map[string]*domain.AuthorizationState)}
}

func (r *memAuthStateRepo) Create(ctx context.Context, state *domain.AuthorizationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *state
	r.states[state.State] = &copied
	return nil
}

func (r *memAuthStateRepo) Consume(ctx context.Context, state string) (*domain.AuthorizationState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.states[state]
	if !ok {
		return nil, nil
	}
	delete(r.states, state)
	if time.Now().After(record.ExpiresAt) {
		return nil, nil
	}
	copied := *record
	return &copied, nil
}

// stubSquareClient fakes the provider API with per-call function hooks and
// call counters.
type stubSquareClient struct {
	ExchangeCodeFn  func(ctx context.Context, mode domain.Mode, code string) (*ports.TokenGrant, error)
	RefreshTokenFn  func(ctx context.Context, mode domain.Mode, refreshToken string) (*ports.TokenGrant, error)
	RevokeTokenFn   func(ctx context.Context, mode domain.Mode, accessToken string) error
	ListLocationsFn func(ctx context.Context, mode domain.Mode, accessToken string) ([]domain.Location, error)

	RefreshCalls  int
	RevokeCalls   int
	ListCalls     int
	LastListToken string
}

func (c *stubSquareClient) AuthorizeURL(mode domain.Mode, state string, scopes []string) string {
	return "https://connect.squareupsandbox.com/oauth2/authorize?state=" + state
}

func (c *stubSquareClient) ExchangeCode(ctx context.Context, mode domain.Mode, code string) (*ports.TokenGrant, error) {
	if c.ExchangeCodeFn == nil {
		return nil, fmt.Errorf("unexpected ExchangeCode call")
	}
	return c.ExchangeCodeFn(ctx, mode, code)
}

func (c *stubSquareClient) RefreshToken(ctx context.Context, mode domain.Mode, refreshToken string) (*ports.TokenGrant, error) {
	c.RefreshCalls++
	if c.RefreshTokenFn == nil {
		return nil, fmt.Errorf("unexpected RefreshToken call")
	}
	return c.RefreshTokenFn(ctx, mode, refreshToken)
}

func (c *stubSquareClient) RevokeToken(ctx context.Context, mode domain.Mode, accessToken string) error {
	c.RevokeCalls++
	if c.RevokeTokenFn == nil {
		return nil
	}
	return c.RevokeTokenFn(ctx, mode, accessToken)
}

func (c *stubSquareClient) ListLocations(ctx context.Context, mode domain.Mode, accessToken string) ([]domain.Location, error) {
	c.ListCalls++
	c.LastListToken = accessToken
	if c.ListLocationsFn == nil {
		return nil, nil
	}
	return c.ListLocationsFn(ctx, mode, accessToken)
}

// stubEncryption prefixes plaintext instead of encrypting, so tests can
// assert that the ciphertext path was taken.
type stubEncryption struct{}

func (stubEncryption) Encrypt(plaintext string) (string, error) {
	return "enc:" + plaintext, nil
}

func (stubEncryption) Decrypt(ciphertext string) (string, error) {
	if !strings.HasPrefix(ciphertext, "enc:") {
		return "", fmt.Errorf("not ciphertext: %q", ciphertext)
	}
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

// memFailureTracker is an in-memory FailureTracker.
type memFailureTracker struct {
	mu       sync.Mutex
	skipping map[string]bool
	Recorded []string
	Cleared  []string
}

func newMemFailureTracker() *memFailureTracker {
	return &memFailureTracker{skipping: make(map[string]bool)}
}

func (t *memFailureTracker) RecordFailure(ctx context.Context, class string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.skipping[class] = true
	t.Recorded = append(t.Recorded, class)
	return nil
}

func (t *memFailureTracker) ShouldSkip(ctx context.Context, class string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.skipping[class]
}

func (t *memFailureTracker) Clear(ctx context.Context, class string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.skipping, class)
	t.Cleared = append(t.Cleared, class)
	return nil
}

// memLocationCache is an in-memory LocationCache.
type memLocationCache struct {
	mu      sync.Mutex
	entries map[domain.Mode][]domain.Location
	Purged  []domain.Mode
}

func newMemLocationCache() *memLocationCache {
	return &memLocationCache{entries: make(map[domain.Mode][]domain.Location)}
}

func (c *memLocationCache) Get(ctx context.Context, mode domain.Mode) ([]domain.Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	locations, ok := c.entries[mode]
	return locations, ok
}

func (c *memLocationCache) Set(ctx context.Context, mode domain.Mode, locations []domain.Location) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[mode] = locations
	return nil
}

func (c *memLocationCache) Purge(ctx context.Context, mode domain.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, mode)
	c.Purged = append(c.Purged, mode)
	return nil
}
