package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResetsTotal counts password reset attempts by outcome
	// (success, failed).
	ResetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentkeeper_resets_total",
		Help: "Password reset attempts by outcome.",
	}, []string{"outcome"})

	// ExceptionsTotal counts accounts moved into the exception state.
	ExceptionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentkeeper_exceptions_total",
		Help: "Accounts flagged as exceptions by the reset orchestrator.",
	})

	// RentalsTotal counts rental operations by action (rent, return).
	RentalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentkeeper_rentals_total",
		Help: "Rental operations by action.",
	}, []string{"action"})

	// ActiveRentals tracks the number of currently active rentals.
	ActiveRentals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rentkeeper_active_rentals",
		Help: "Currently active rentals.",
	})

	// APIRequestsTotal counts authenticated rental API requests by route
	// and status code.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rentkeeper_api_requests_total",
		Help: "Rental API requests by route and status.",
	}, []string{"route", "status"})

	// ExpiredSweeps counts accounts flipped back to available by the
	// expiry reconciler.
	ExpiredSweeps = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rentkeeper_expired_rentals_swept_total",
		Help: "Rentals expired and returned to the available pool.",
	})
)
