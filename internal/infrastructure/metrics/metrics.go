package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the prometheus collectors for the connection and
// reconciliation subsystem.
type Metrics struct {
	WebhookEventsReceived  *prometheus.CounterVec
	WebhookEventsProcessed *prometheus.CounterVec
	WebhookEventsIgnored   prometheus.Counter
	WebhookEventsRejected  prometheus.Counter
	TokenRefreshes         *prometheus.CounterVec
	OutboundSkipped        *prometheus.CounterVec
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		WebhookEventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "square_webhook_events_received_total",
			Help: "Webhook events that passed validation, by event type.",
		}, []string{"type"}),
		WebhookEventsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "square_webhook_events_processed_total",
			Help: "Webhook events handled to completion, by event type and outcome.",
		}, []string{"type", "outcome"}),
		WebhookEventsIgnored: factory.NewCounter(prometheus.CounterOpts{
			Name: "square_webhook_events_ignored_total",
			Help: "Webhook events with no registered handler.",
		}),
		WebhookEventsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "square_webhook_events_rejected_total",
			Help: "Webhook deliveries rejected as malformed.",
		}),
		TokenRefreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "square_token_refreshes_total",
			Help: "OAuth token refresh attempts, by outcome.",
		}, []string{"outcome"}),
		OutboundSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "square_outbound_calls_skipped_total",
			Help: "Outbound provider calls skipped by the backoff tracker, by class.",
		}, []string{"class"}),
	}
}
