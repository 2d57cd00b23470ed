package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus metrics for registered caches.
// Every series is labelled with the cache's registered name.
type Metrics struct {
	Hits      *prometheus.CounterVec
	Misses    *prometheus.CounterVec
	Evictions *prometheus.CounterVec // reason: expired | capacity
	Entries   *prometheus.GaugeVec   // stored entries after the last sweep
	Sweeps    prometheus.Counter
}

// NewMetrics creates and registers cache metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	hits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bdcraft_cache_hits_total",
		Help: "Total number of cache lookups served from a live entry",
	}, []string{"cache"})

	misses := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bdcraft_cache_misses_total",
		Help: "Total number of cache lookups that found no live entry",
	}, []string{"cache"})

	evictions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bdcraft_cache_evictions_total",
		Help: "Total number of entries removed by sweeps or capacity limits",
	}, []string{"cache", "reason"})

	entries := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bdcraft_cache_entries",
		Help: "Number of stored entries, expired ones included",
	}, []string{"cache"})

	sweeps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bdcraft_cache_sweeps_total",
		Help: "Total number of registry-wide cleanup sweeps",
	})

	reg.MustRegister(hits, misses, evictions, entries, sweeps)

	return &Metrics{
		Hits:      hits,
		Misses:    misses,
		Evictions: evictions,
		Entries:   entries,
		Sweeps:    sweeps,
	}
}
