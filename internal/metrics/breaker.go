// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "eitcorr_breaker_state",
		Help: "Channel store breaker state by component (0=closed, 1=half-open, 2=open)",
	}, []string{"component"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eitcorr_breaker_trips_total",
		Help: "Transitions into the open state",
	}, []string{"component", "reason"}) // reason=threshold_exceeded|half_open_failure

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eitcorr_breaker_rejected_total",
		Help: "Calls refused without reaching the dependency",
	}, []string{"component"})
)

var breakerStateValues = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// SetBreakerState publishes the current state of a component's breaker.
// Unknown states are ignored.
func SetBreakerState(component, state string) {
	if v, ok := breakerStateValues[state]; ok {
		breakerState.WithLabelValues(component).Set(v)
	}
}

func RecordBreakerTrip(component, reason string) {
	breakerTrips.WithLabelValues(component, reason).Inc()
}

func IncBreakerRejected(component string) { breakerRejected.WithLabelValues(component).Inc() }
