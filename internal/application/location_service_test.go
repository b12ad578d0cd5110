package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"donation-square-connect/internal/domain"

	"github.com/rs/zerolog"
)

type locationFixture struct {
	service     *LocationService
	credentials *memCredentialRepo
	client      *stubSquareClient
	tracker     *memFailureTracker
	cache       *memLocationCache
}

func newLocationFixture() *locationFixture {
	credentials := newMemCredentialRepo()
	client := &stubSquareClient{}
	tracker := newMemFailureTracker()
	cache := newMemLocationCache()
	service := NewLocationService(credentials, client, cache, stubEncryption{}, tracker, zerolog.Nop())
	return &locationFixture{
		service:     service,
		credentials: credentials,
		client:      client,
		tracker:     tracker,
		cache:       cache,
	}
}

func TestResolveLocationsFiltersAndSelects(t *testing.T) {
	f := newLocationFixture()
	credential := validCredential(domain.ModeLive, time.Now().Add(6*24*time.Hour))
	credential.LocationID = ""
	credential.Currency = ""
	f.credentials.put(credential)
	f.client.ListLocationsFn = func(ctx context.Context, mode domain.Mode, accessToken string) ([]domain.Location, error) {
		return []domain.Location{
			cardLocation("loc1", "USD"),
			{ID: "loc2", Status: "INACTIVE", Currency: "USD", Capabilities: []string{domain.CapabilityCardProcessing}},
			{ID: "loc3", Status: domain.LocationStatusActive, Currency: "USD"},
		}, nil
	}

	locations, err := f.service.ResolveLocations(context.Background(), domain.ModeLive)
	if err != nil {
		t.Fatalf("ResolveLocations: %v", err)
	}
	if len(locations) != 1 || locations[0].ID != "loc1" {
		t.Fatalf("locations = %+v, want only loc1", locations)
	}
	if f.client.LastListToken != "access" {
		t.Fatalf("access token not decrypted for provider call: %q", f.client.LastListToken)
	}

	stored := f.credentials.get(domain.ModeLive)
	if stored.LocationID != "loc1" || stored.Currency != "USD" {
		t.Fatalf("selection not persisted: %+v", stored)
	}

	// Second call is served from cache without dialing out.
	if _, err := f.service.ResolveLocations(context.Background(), domain.ModeLive); err != nil {
		t.Fatalf("cached resolve: %v", err)
	}
	if f.client.ListCalls != 1 {
		t.Fatalf("list calls = %d, want 1", f.client.ListCalls)
	}
}

func TestResolveLocationsKeepsStickySelection(t *testing.T) {
	f := newLocationFixture()
	credential := validCredential(domain.ModeLive, time.Now().Add(6*24*time.Hour))
	credential.LocationID = "loc2"
	f.credentials.put(credential)
	f.client.ListLocationsFn = func(ctx context.Context, mode domain.Mode, accessToken string) ([]domain.Location, error) {
		return []domain.Location{cardLocation("loc1", "USD"), cardLocation("loc2", "USD")}, nil
	}

	if _, err := f.service.ResolveLocations(context.Background(), domain.ModeLive); err != nil {
		t.Fatalf("ResolveLocations: %v", err)
	}
	if stored := f.credentials.get(domain.ModeLive); stored.LocationID != "loc2" {
		t.Fatalf("selection moved off loc2: %+v", stored)
	}
}

func TestResolveLocationsReplacesVanishedSelection(t *testing.T) {
	f := newLocationFixture()
	credential := validCredential(domain.ModeLive, time.Now().Add(6*24*time.Hour))
	credential.LocationID = "gone"
	f.credentials.put(credential)
	f.client.ListLocationsFn = func(ctx context.Context, mode domain.Mode, accessToken string) ([]domain.Location, error) {
		return []domain.Location{cardLocation("loc1", "CAD"), cardLocation("loc2", "CAD")}, nil
	}

	if _, err := f.service.ResolveLocations(context.Background(), domain.ModeLive); err != nil {
		t.Fatalf("ResolveLocations: %v", err)
	}
	stored := f.credentials.get(domain.ModeLive)
	if stored.LocationID != "loc1" || stored.Currency != "CAD" {
		t.Fatalf("selection not replaced: %+v", stored)
	}
}

func TestResolveLocationsEmptySetResetsSelection(t *testing.T) {
	f := newLocationFixture()
	f.credentials.put(validCredential(domain.ModeLive, time.Now().Add(6*24*time.Hour)))
	f.client.ListLocationsFn = func(ctx context.Context, mode domain.Mode, accessToken string) ([]domain.Location, error) {
		return []domain.Location{{ID: "loc1", Status: "INACTIVE"}}, nil
	}

	locations, err := f.service.ResolveLocations(context.Background(), domain.ModeLive)
	if err != nil {
		t.Fatalf("ResolveLocations: %v", err)
	}
	if len(locations) != 0 {
		t.Fatalf("locations = %+v, want empty", locations)
	}

	stored := f.credentials.get(domain.ModeLive)
	if stored.LocationID != "" || stored.Currency != "" {
		t.Fatalf("selection not reset: %+v", stored)
	}

	// The empty outcome is cached too, so the next call does not hammer
	// the provider.
	if _, err := f.service.ResolveLocations(context.Background(), domain.ModeLive); err != nil {
		t.Fatalf("cached empty resolve: %v", err)
	}
	if f.client.ListCalls != 1 {
		t.Fatalf("list calls = %d, want 1", f.client.ListCalls)
	}
}

func TestResolveLocationsUnconfiguredMode(t *testing.T) {
	f := newLocationFixture()

	if _, err := f.service.ResolveLocations(context.Background(), domain.ModeTest); !errors.Is(err, domain.ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
	if f.client.ListCalls != 0 {
		t.Fatalf("list calls = %d, want 0", f.client.ListCalls)
	}
}

func TestResolveLocationsBackoffWindow(t *testing.T) {
	f := newLocationFixture()
	f.credentials.put(validCredential(domain.ModeLive, time.Now().Add(6*24*time.Hour)))
	f.tracker.RecordFailure(context.Background(), backoffClassLocations)

	_, err := f.service.ResolveLocations(context.Background(), domain.ModeLive)
	if !domain.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if f.client.ListCalls != 0 {
		t.Fatalf("list calls = %d, want 0 inside backoff window", f.client.ListCalls)
	}
}

func TestResolveLocationsTransientFailureRecordsBackoff(t *testing.T) {
	f := newLocationFixture()
	f.credentials.put(validCredential(domain.ModeLive, time.Now().Add(6*24*time.Hour)))
	f.client.ListLocationsFn = func(ctx context.Context, mode domain.Mode, accessToken string) ([]domain.Location, error) {
		return nil, &domain.TransientError{Op: "list locations", Err: errors.New("connection reset")}
	}

	if _, err := f.service.ResolveLocations(context.Background(), domain.ModeLive); !domain.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}
	if len(f.tracker.Recorded) != 1 || f.tracker.Recorded[0] != backoffClassLocations {
		t.Fatalf("backoff not recorded: %v", f.tracker.Recorded)
	}

	// A rejection is not a transient fault and must not arm the backoff.
	f.tracker.Clear(context.Background(), backoffClassLocations)
	f.tracker.Recorded = nil
	f.client.ListLocationsFn = func(ctx context.Context, mode domain.Mode, accessToken string) ([]domain.Location, error) {
		return nil, &domain.ProviderRejection{Op: "list locations", Status: 401, Detail: "token revoked"}
	}
	if _, err := f.service.ResolveLocations(context.Background(), domain.ModeLive); !domain.IsProviderRejection(err) {
		t.Fatalf("err = %v, want provider rejection", err)
	}
	if len(f.tracker.Recorded) != 0 {
		t.Fatalf("rejection armed the backoff: %v", f.tracker.Recorded)
	}
}
