package events

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for event dispatch.
type Metrics struct {
	Published        *prometheus.CounterVec
	Cancelled        *prometheus.CounterVec
	ListenerFailures *prometheus.CounterVec
}

// NewMetrics creates and registers event bus metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	published := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bdcraft_events_published_total",
		Help: "Total number of events published, by event name",
	}, []string{"event"})

	cancelled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bdcraft_events_cancelled_total",
		Help: "Total number of events cancelled by a listener",
	}, []string{"event"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bdcraft_events_listener_failures_total",
		Help: "Total number of listener invocations that returned an error or panicked",
	}, []string{"event"})

	reg.MustRegister(published, cancelled, failures)

	return &Metrics{
		Published:        published,
		Cancelled:        cancelled,
		ListenerFailures: failures,
	}
}
