package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// WebhookVerifier verifies webhook signatures using the signature key from
// the provider's developer dashboard. The signature is
// base64(HMAC-SHA256(key, notificationURL + body)).
type WebhookVerifier struct {
	signatureKey    string
	notificationURL string
}

// NewWebhookVerifier creates a new webhook verifier.
func NewWebhookVerifier(signatureKey, notificationURL string) *WebhookVerifier {
	return &WebhookVerifier{
		signatureKey:    signatureKey,
		notificationURL: notificationURL,
	}
}

// Verify checks the signature header against the raw request body.
func (v *WebhookVerifier) Verify(body []byte, signature string) error {
	if signature == "" {
		return fmt.Errorf("missing signature header")
	}

	mac := hmac.New(sha256.New, []byte(v.signatureKey))
	mac.Write([]byte(v.notificationURL))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("signature mismatch")
	}

	return nil
}
