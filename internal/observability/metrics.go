package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cargo_space"

var (
	MatchesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "candidate_listings_total", Help: "Total driver candidate listings served"})
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "candidate_listing_latency_seconds", Help: "Candidate listing latency seconds"})

	PostsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cargo_posts_submitted_total", Help: "Cargo post submissions by result"},
		[]string{"result"},
	)
	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "wizard_validation_failures_total", Help: "Rejected wizard step advances"},
		[]string{"wizard", "stage"},
	)
	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "booking_transitions_total", Help: "Booking status transitions by target status"},
		[]string{"status"},
	)
	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "payments_total", Help: "Payment attempts by method and result"},
		[]string{"method", "result"},
	)
	LoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "logins_total", Help: "Login attempts by result"},
		[]string{"result"},
	)

	TrackingTicks   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "tracking_ticks_total", Help: "Simulated position updates"})
	ActiveTrackers  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "active_trackers", Help: "Deliveries currently being tracked"})
	WSSessions      = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "ws_sessions", Help: "Open websocket sessions"})
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "events_published_total", Help: "Booking events published by result"},
		[]string{"result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
