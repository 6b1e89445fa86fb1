package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	apiRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_client_api_requests_total",
			Help: "Requests sent to the ticketing API",
		},
		[]string{"operation", "code"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ticket_client_api_request_duration_seconds",
			Help:    "Round-trip time of ticketing API requests",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"operation"},
	)

	degradedTiers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_client_availability_degraded_total",
			Help: "Tier availability fetches that failed and were degraded",
		},
		[]string{"event_id"},
	)

	purchaseOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_client_purchase_outcomes_total",
			Help: "Purchase attempts by outcome",
		},
		[]string{"outcome"},
	)

	ticketActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_client_ticket_actions_total",
			Help: "Activation and refund attempts by outcome",
		},
		[]string{"action", "outcome"},
	)
)

// Monitor is the single entry point components use to record metrics.
// A nil *Monitor is valid and records nothing.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

// TrackRequest records one API round trip. code is 0 when no response
// was received.
func (m *Monitor) TrackRequest(operation string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	apiRequests.WithLabelValues(operation, label).Inc()
	apiRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Monitor) TrackDegradedTier(eventID int64) {
	if m == nil {
		return
	}
	degradedTiers.WithLabelValues(strconv.FormatInt(eventID, 10)).Inc()
}

// TrackPurchase outcome is one of succeeded, failed, invalid, discarded.
func (m *Monitor) TrackPurchase(outcome string) {
	if m == nil {
		return
	}
	purchaseOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Monitor) TrackTicketAction(action, outcome string) {
	if m == nil {
		return
	}
	ticketActions.WithLabelValues(action, outcome).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
