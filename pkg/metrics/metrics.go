package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Booking related metrics
	BookingAttempts *prometheus.CounterVec
	BookingLatency  prometheus.Histogram
	SlotConflicts   prometheus.Counter

	// Billing metrics
	PaymentsVerified *prometheus.CounterVec
	InvoicesCreated  prometheus.Counter

	// Outbox relay metrics
	RelayEventsProcessed prometheus.Counter
	RelayEventsFailed    prometheus.Counter
	RelayLatency         prometheus.Histogram
	RelayRetries         *prometheus.CounterVec
}

// New creates and registers all application metrics. A nil registerer
// falls back to the default prometheus registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		BookingAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_attempts_total",
			Help:      "Total number of booking attempts by outcome",
		}, []string{"outcome"}),
		BookingLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_duration_seconds",
			Help:      "Time spent booking an appointment",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		SlotConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_conflicts_total",
			Help:      "Total number of bookings rejected for a slot conflict",
		}),
		PaymentsVerified: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_verified_total",
			Help:      "Total number of payment verifications by outcome",
		}, []string{"outcome"}),
		InvoicesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_created_total",
			Help:      "Total number of invoices created",
		}),
		RelayEventsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_processed_total",
			Help:      "Total number of successfully relayed outbox events",
		}),
		RelayEventsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_events_failed_total",
			Help:      "Total number of outbox events that failed to relay",
		}),
		RelayLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_processing_duration_seconds",
			Help:      "Time spent draining the outbox",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		RelayRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_retry_attempts_total",
			Help:      "Total number of publish retry attempts by event type",
		}, []string{"event_type"}),
	}
}
