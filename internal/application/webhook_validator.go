package application

import (
	"encoding/json"
	"time"

	"donation-square-connect/internal/domain"

	"github.com/rs/zerolog"
)

// envelope mirrors the provider's webhook notification body.
type envelope struct {
	MerchantID string    `json:"merchant_id"`
	Type       string    `json:"type"`
	EventID    string    `json:"event_id"`
	CreatedAt  time.Time `json:"created_at"`
	Data       struct {
		Type   string             `json:"type"`
		ID     string             `json:"id"`
		Object domain.EventObject `json:"object"`
	} `json:"data"`
}

// WebhookValidator converts a raw inbound payload into a typed event
// before any business logic runs. Validation failures are reported to the
// caller with a client-error status, not silently dropped, so the
// provider's delivery retries are not accidentally suppressed.
type WebhookValidator struct {
	logger zerolog.Logger
}

// NewWebhookValidator creates a new webhook validator.
func NewWebhookValidator(logger zerolog.Logger) *WebhookValidator {
	return &WebhookValidator{logger: logger}
}

// Validate parses and structurally checks the payload. Signature
// verification, when configured, runs before this at the transport layer.
func (v *WebhookValidator) Validate(rawBody []byte) (*domain.Event, error) {
	var env envelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, &domain.ValidationError{Detail: "body is not valid JSON"}
	}

	if env.MerchantID == "" {
		return nil, &domain.ValidationError{Field: "merchant_id", Detail: "missing merchant identifier"}
	}
	if env.Type == "" {
		return nil, &domain.ValidationError{Field: "type", Detail: "missing event type"}
	}
	if env.EventID == "" {
		return nil, &domain.ValidationError{Field: "event_id", Detail: "missing event id"}
	}
	if env.CreatedAt.IsZero() {
		return nil, &domain.ValidationError{Field: "created_at", Detail: "missing creation timestamp"}
	}
	if env.Data.Type == "" || env.Data.ID == "" {
		return nil, &domain.ValidationError{Field: "data", Detail: "missing nested data object"}
	}

	event := &domain.Event{
		MerchantID: env.MerchantID,
		EventID:    env.EventID,
		Type:       env.Type,
		CreatedAt:  env.CreatedAt,
		Data: domain.EventData{
			Type:   env.Data.Type,
			ID:     env.Data.ID,
			Object: env.Data.Object,
		},
		Raw: rawBody,
	}

	v.logger.Debug().
		Str("eventId", event.EventID).
		Str("type", event.Type).
		Str("merchantId", event.MerchantID).
		Msg("Validated webhook event")

	return event, nil
}
