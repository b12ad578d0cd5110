package domain

// LocationStatusActive is the provider-side status of a usable location.
const LocationStatusActive = "ACTIVE"

// CapabilityCardProcessing marks a location able to take card payments.
const CapabilityCardProcessing = "CREDIT_CARD_PROCESSING"

// Location is a business location reported by the provider. Ephemeral:
// derived on demand and cached with a TTL, never the source of truth.
type Location struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Currency     string   `json:"currency"`
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities"`
}

// CanProcessCards reports whether the location is active and capable of
// card processing.
func (l Location) CanProcessCards() bool {
	if l.Status != LocationStatusActive {
		return false
	}
	for _, c := range l.Capabilities {
		if c == CapabilityCardProcessing {
			return true
		}
	}
	return false
}
