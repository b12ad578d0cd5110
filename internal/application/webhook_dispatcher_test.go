package application

import (
	"context"
	"errors"
	"testing"

	"donation-square-connect/internal/domain"

	"github.com/rs/zerolog"
)

func TestDispatcherRoutesToRegisteredHandler(t *testing.T) {
	d := NewWebhookDispatcher(zerolog.Nop(), nil)

	var seen []string
	d.RegisterAll([]string{"payment.created", "payment.updated"}, EventHandlerFunc(func(ctx context.Context, event *domain.Event) error {
		seen = append(seen, event.EventID)
		return nil
	}))

	handled, err := d.Dispatch(context.Background(), &domain.Event{Type: "payment.updated", EventID: "evt1"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !handled {
		t.Fatal("event not marked handled")
	}
	if len(seen) != 1 || seen[0] != "evt1" {
		t.Fatalf("handler calls = %v", seen)
	}
}

func TestDispatcherIgnoresUnknownEventType(t *testing.T) {
	d := NewWebhookDispatcher(zerolog.Nop(), nil)
	d.Register("payment.updated", EventHandlerFunc(func(ctx context.Context, event *domain.Event) error {
		t.Fatal("handler must not run for another event type")
		return nil
	}))

	handled, err := d.Dispatch(context.Background(), &domain.Event{Type: "card.created", EventID: "evt1"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if handled {
		t.Fatal("unknown event type marked handled")
	}
}

func TestDispatcherPropagatesHandlerError(t *testing.T) {
	d := NewWebhookDispatcher(zerolog.Nop(), nil)
	wantErr := errors.New("boom")
	d.Register("payment.updated", EventHandlerFunc(func(ctx context.Context, event *domain.Event) error {
		return wantErr
	}))

	handled, err := d.Dispatch(context.Background(), &domain.Event{Type: "payment.updated", EventID: "evt1"})
	if !handled {
		t.Fatal("failing event must still be marked handled")
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
}

func TestDispatcherRegisterReplacesHandler(t *testing.T) {
	d := NewWebhookDispatcher(zerolog.Nop(), nil)
	d.Register("payment.updated", EventHandlerFunc(func(ctx context.Context, event *domain.Event) error {
		t.Fatal("replaced handler must not run")
		return nil
	}))

	var called bool
	d.Register("payment.updated", EventHandlerFunc(func(ctx context.Context, event *domain.Event) error {
		called = true
		return nil
	}))

	if _, err := d.Dispatch(context.Background(), &domain.Event{Type: "payment.updated"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !called {
		t.Fatal("replacement handler not called")
	}
}
