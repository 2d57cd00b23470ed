package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for lifecycle passes.
type Metrics struct {
	HookFailures     *prometheus.CounterVec   // failed hooks by phase and component
	HookDuration     *prometheus.HistogramVec // hook latency by phase
	ActiveComponents prometheus.Gauge         // components whose last activate succeeded
}

// NewMetrics creates and registers lifecycle metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	hookFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bdcraft_lifecycle_hook_failures_total",
		Help: "Total number of component hooks that returned an error or panicked",
	}, []string{"phase", "component"})

	hookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bdcraft_lifecycle_hook_duration_seconds",
		Help:    "Duration of component lifecycle hooks",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	activeComponents := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bdcraft_lifecycle_active_components",
		Help: "Number of components currently active",
	})

	reg.MustRegister(hookFailures, hookDuration, activeComponents)

	return &Metrics{
		HookFailures:     hookFailures,
		HookDuration:     hookDuration,
		ActiveComponents: activeComponents,
	}
}
