// Package metrics defines the Prometheus instrumentation points the
// Controller feeds. The counter incremented whenever a
// component's state report is dropped for a full queue lives here as
// StateReportsDropped.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// StateReportsDropped counts state-report events discarded because
	// the Keymaster subscription callback's try_put found the internal
	// SemFIFO full.
	StateReportsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "matrixcore_state_reports_dropped_total",
		Help: "Component state-change notifications dropped because the internal state-report queue was full.",
	})

	// QuorumWaitSeconds records how long each lifecycle call's
	// wait_all_in_state blocked, labeled by the event name that triggered it.
	QuorumWaitSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "matrixcore_quorum_wait_seconds",
		Help:    "Time spent waiting for all active components to reach the expected state after a lifecycle event.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event"})

	// ActiveComponents reports the current size of the active component
	// set for the current mode.
	ActiveComponents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "matrixcore_active_components",
		Help: "Number of components active in the current mode.",
	})
)

// NewRegistry returns the Prometheus registry the daemon serves on /metrics. A
// dedicated registry (rather than the global default) keeps repeated test
// construction of Controllers from panicking on duplicate registration.
func NewRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(StateReportsDropped, QuorumWaitSeconds, ActiveComponents)
	return r
}
