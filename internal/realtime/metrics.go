package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// connectionState exposes the current state as a one-hot gauge.
	connectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "realtime_connection_state",
			Help: "Current connection state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	// reconnectsTotal counts channel dial attempts by result.
	reconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_reconnects_total",
			Help: "Channel dial attempts by result",
		},
		[]string{"result"}, // result: success | failure
	)

	// heartbeatLatency tracks the rolling heartbeat latency estimate.
	heartbeatLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "realtime_heartbeat_latency_seconds",
			Help:    "Heartbeat latency estimate",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0, 30.0},
		},
	)

	// invalidationsTotal counts domain-change events forwarded to the host.
	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_invalidations_total",
			Help: "Domain-change events forwarded to the invalidation callback",
		},
		[]string{"event"},
	)
)

// allStates is used to keep the one-hot state gauge consistent.
var allStates = []State{StateIdle, StateConnecting, StateOpen, StateDegraded, StateClosed}

// setConnectionState records the current connection state.
func setConnectionState(current State) {
	for _, s := range allStates {
		value := 0.0
		if s == current {
			value = 1.0
		}
		connectionState.WithLabelValues(s.String()).Set(value)
	}
}

// recordReconnect records a channel dial attempt.
func recordReconnect(result string) {
	reconnectsTotal.WithLabelValues(result).Inc()
}

// observeHeartbeatLatency records a heartbeat latency sample.
func observeHeartbeatLatency(seconds float64) {
	heartbeatLatency.Observe(seconds)
}

// recordInvalidation records a forwarded domain-change event.
func recordInvalidation(event string) {
	invalidationsTotal.WithLabelValues(event).Inc()
}
