package cache

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/moolen/bdcraft/internal/logging"
	"github.com/robfig/cron/v3"
)

// DefaultSweepInterval is the registry sweep period when none is configured.
const DefaultSweepInterval = 5 * time.Minute

// ErrRegistryShutdown is returned by operations that need a running sweep.
var ErrRegistryShutdown = errors.New("cache registry is shut down")

// Managed is the type-erased view of a Cache the registry works with.
type Managed interface {
	Cleanup() int
	InvalidateAll()
	Size() int
	ActiveSize() int
	DefaultTTL() time.Duration
	Mode() Mode
}

type metricsBinder interface {
	bind(name string, metrics *Metrics)
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// SweepInterval is the period of the background cleanup. cron schedules
	// are second-granular, so intervals below one second are rounded up.
	SweepInterval time.Duration
}

// RegistryOption configures optional Registry dependencies.
type RegistryOption func(*Registry)

// WithRegistryMetrics records hit, miss, eviction and sweep metrics.
func WithRegistryMetrics(m *Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithRegistryLogger overrides the default "cache.registry" logger.
func WithRegistryLogger(l *logging.Logger) RegistryOption {
	return func(r *Registry) {
		r.logger = l
	}
}

// Registry owns a named collection of caches and sweeps them periodically.
//
// The registry stores caches of different key and value types under one
// string-keyed map. Producers and consumers of a cache agree on its name and
// its types; Lookup reports a mismatch instead of panicking.
type Registry struct {
	mu     sync.RWMutex
	caches map[string]Managed

	interval time.Duration
	sched    *cron.Cron

	shutdownOnce sync.Once
	stopped      chan struct{}

	metrics *Metrics
	logger  *logging.Logger
}

// NewRegistry creates a registry and starts its background sweep.
func NewRegistry(cfg RegistryConfig, opts ...RegistryOption) (*Registry, error) {
	interval := cfg.SweepInterval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	r := &Registry{
		caches:   make(map[string]Managed),
		interval: interval,
		stopped:  make(chan struct{}),
		logger:   logging.GetLogger("cache.registry"),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.sched = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := r.sched.AddFunc(fmt.Sprintf("@every %s", interval), r.sweep); err != nil {
		return nil, fmt.Errorf("failed to schedule cache sweep: %w", err)
	}
	r.sched.Start()

	r.logger.Debug("Cache sweep scheduled every %s", interval)
	return r, nil
}

// SweepInterval returns the configured sweep period.
func (r *Registry) SweepInterval() time.Duration {
	return r.interval
}

// Register stores c under name, replacing any cache already registered there.
func (r *Registry) Register(name string, c Managed) error {
	if name == "" {
		return fmt.Errorf("cache name must not be empty")
	}
	if c == nil {
		return fmt.Errorf("cache %q must not be nil", name)
	}

	r.mu.Lock()
	old, exists := r.caches[name]
	r.caches[name] = c
	r.mu.Unlock()

	if exists && old != c {
		r.logger.Warn("Cache %s already registered, replacing it", name)
		if b, ok := old.(metricsBinder); ok {
			b.bind(name, nil)
		}
	}
	if b, ok := c.(metricsBinder); ok && r.metrics != nil {
		b.bind(name, r.metrics)
	}
	if c.Mode() == Exclusive {
		r.logger.Warn("Cache %s is exclusive; its owner must not use it while the sweep runs", name)
	}

	r.logger.DebugWithFields("Registered cache",
		logging.Field("cache", name),
		logging.Field("ttl", c.DefaultTTL().String()),
		logging.Field("mode", c.Mode().String()))
	return nil
}

// Get returns the cache registered under name.
func (r *Registry) Get(name string) (Managed, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caches[name]
	return c, ok
}

// Names returns the registered cache names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.caches))
	for name := range r.caches {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Lookup returns the cache registered under name as a *Cache[K, V].
// It reports false if nothing is registered there or the registered cache
// has different type arguments.
func Lookup[K comparable, V any](r *Registry, name string) (*Cache[K, V], bool) {
	m, ok := r.Get(name)
	if !ok {
		return nil, false
	}
	c, ok := m.(*Cache[K, V])
	return c, ok
}

// CleanupAll runs Cleanup on every registered cache, one after another, and
// returns the total number of evicted entries.
func (r *Registry) CleanupAll() int {
	total := 0
	for _, name := range r.Names() {
		c, ok := r.Get(name)
		if !ok {
			continue
		}
		removed := c.Cleanup()
		total += removed
		if removed > 0 {
			r.logger.DebugWithFields("Evicted expired cache entries",
				logging.Field("cache", name),
				logging.Field("evicted", removed))
		}
		if r.metrics != nil {
			r.metrics.Entries.WithLabelValues(name).Set(float64(c.Size()))
		}
	}
	return total
}

// ClearAll removes every entry from every registered cache.
func (r *Registry) ClearAll() {
	for _, name := range r.Names() {
		c, ok := r.Get(name)
		if !ok {
			continue
		}
		size := c.Size()
		c.InvalidateAll()
		r.logger.InfoWithFields("Cleared cache",
			logging.Field("cache", name),
			logging.Field("entries", size))
		if r.metrics != nil {
			r.metrics.Entries.WithLabelValues(name).Set(0)
		}
	}
}

// Shutdown stops the background sweep, waits for a running sweep to finish
// and clears every cache. Calling it more than once is safe.
func (r *Registry) Shutdown() {
	r.shutdownOnce.Do(func() {
		<-r.sched.Stop().Done()
		close(r.stopped)
		r.ClearAll()
		r.logger.Info("Cache registry shut down")
	})
}

// Done is closed once Shutdown has stopped the sweep.
func (r *Registry) Done() <-chan struct{} {
	return r.stopped
}

// SweepNow runs a cleanup pass outside the schedule. It fails after Shutdown.
func (r *Registry) SweepNow() (int, error) {
	select {
	case <-r.stopped:
		return 0, ErrRegistryShutdown
	default:
	}
	return r.CleanupAll(), nil
}

func (r *Registry) sweep() {
	removed := r.CleanupAll()
	if r.metrics != nil {
		r.metrics.Sweeps.Inc()
	}
	if removed > 0 {
		r.logger.Debug("Cache sweep evicted %d entries", removed)
	}
}
