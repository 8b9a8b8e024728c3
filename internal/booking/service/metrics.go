package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "booking_reservations_total",
		Help: "Reservation attempts grouped by execution path and outcome.",
	}, []string{"path", "result"})

	reservationFallbackTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_reservation_fallback_total",
		Help: "Reservations that degraded to the non-atomic check-then-insert path.",
	})

	availabilityDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "booking_availability_seconds",
		Help:    "Time spent answering availability queries.",
		Buckets: prometheus.DefBuckets,
	})
)
