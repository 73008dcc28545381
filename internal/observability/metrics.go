package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TripsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carpool", Name: "trips_created_total", Help: "Trips published by drivers"})

	TripTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "trip_transitions_total", Help: "Explicit trip status changes"},
		[]string{"to"},
	)

	// ReservationOutcomes counts join and leave attempts by outcome label.
	ReservationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "reservation_attempts_total", Help: "Join and leave attempts"},
		[]string{"op", "outcome"},
	)

	SeatsReserved = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "carpool", Name: "seats_reserved", Help: "Seats reserved minus seats released since process start"})

	PaymentsReconciled = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "payments_reconciled_total", Help: "Processor outcomes applied to payments"},
		[]string{"outcome", "applied"},
	)

	// TripLockOutcomes counts distributed lock attempts: acquired, busy or unavailable.
	TripLockOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "trip_lock_attempts_total", Help: "Distributed trip lock attempts"},
		[]string{"result"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "notifications_total", Help: "Notifications persisted by type"},
		[]string{"type"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carpool", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carpool",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
