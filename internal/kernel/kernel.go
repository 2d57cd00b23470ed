// Package kernel bundles the lifecycle manager, cache registry and event bus
// a host process constructs once and hands to its components.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/moolen/bdcraft/internal/cache"
	"github.com/moolen/bdcraft/internal/events"
	"github.com/moolen/bdcraft/internal/lifecycle"
	"github.com/moolen/bdcraft/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrComponentVersion is returned when a component fails the minimum
	// version constraint.
	ErrComponentVersion = errors.New("component version rejected")

	// ErrReloadVetoed is returned when a listener cancels ReloadRequested.
	ErrReloadVetoed = errors.New("reload vetoed")

	// ErrStopped is returned by operations on a stopped kernel.
	ErrStopped = errors.New("kernel is stopped")
)

// Versioned is implemented by components that report a version.
type Versioned interface {
	Version() string
}

// Config holds kernel configuration.
type Config struct {
	// SweepInterval is the cache registry cleanup period.
	SweepInterval time.Duration

	// MinComponentVersion is a go-version constraint, e.g. ">= 1.0.0".
	// Empty disables version checks.
	MinComponentVersion string

	// Caches are created and registered at construction.
	Caches []cache.Spec
}

// Option configures a Kernel.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
	tracer     trace.Tracer
}

// WithRegisterer registers lifecycle, cache and event metrics with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithTracer sets the tracer used for lifecycle hook spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		o.tracer = tracer
	}
}

// Kernel owns one lifecycle manager, one cache registry and one event bus.
type Kernel struct {
	manager *lifecycle.Manager
	caches  *cache.Registry
	bus     *events.Bus
	logger  *logging.Logger

	mu         sync.Mutex
	minVersion version.Constraints
	stopped    bool
	stopOnce   sync.Once
	stopReport *lifecycle.Report
}

// New creates a kernel and starts its cache sweep.
func New(cfg Config, opts ...Option) (*Kernel, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var (
		managerOpts  []lifecycle.Option
		registryOpts []cache.RegistryOption
		busOpts      []events.Option
	)
	if o.registerer != nil {
		managerOpts = append(managerOpts, lifecycle.WithMetrics(lifecycle.NewMetrics(o.registerer)))
		registryOpts = append(registryOpts, cache.WithRegistryMetrics(cache.NewMetrics(o.registerer)))
		busOpts = append(busOpts, events.WithMetrics(events.NewMetrics(o.registerer)))
	}
	if o.tracer != nil {
		managerOpts = append(managerOpts, lifecycle.WithTracer(o.tracer))
	}

	k := &Kernel{
		manager: lifecycle.NewManager(managerOpts...),
		bus:     events.NewBus(busOpts...),
		logger:  logging.GetLogger("kernel"),
	}
	if err := k.SetMinComponentVersion(cfg.MinComponentVersion); err != nil {
		return nil, err
	}

	registry, err := cache.NewRegistry(cache.RegistryConfig{SweepInterval: cfg.SweepInterval}, registryOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache registry: %w", err)
	}
	if err := registry.RegisterSpecs(cfg.Caches); err != nil {
		registry.Shutdown()
		return nil, fmt.Errorf("failed to register caches: %w", err)
	}
	k.caches = registry

	return k, nil
}

// Manager returns the lifecycle manager.
func (k *Kernel) Manager() *lifecycle.Manager { return k.manager }

// Caches returns the cache registry.
func (k *Kernel) Caches() *cache.Registry { return k.caches }

// Bus returns the event bus.
func (k *Kernel) Bus() *events.Bus { return k.bus }

// SetMinComponentVersion replaces the version constraint applied by Register.
// Already registered components are not re-checked.
func (k *Kernel) SetMinComponentVersion(constraint string) error {
	var parsed version.Constraints
	if constraint != "" {
		c, err := version.NewConstraint(constraint)
		if err != nil {
			return fmt.Errorf("invalid minimum component version %q: %w", constraint, err)
		}
		parsed = c
		k.logger.Debug("Minimum component version: %s", constraint)
	}
	k.mu.Lock()
	k.minVersion = parsed
	k.mu.Unlock()
	return nil
}

// Register validates the component's version, if it reports one, and
// registers it with the lifecycle manager.
func (k *Kernel) Register(c lifecycle.Component) error {
	if c == nil {
		return fmt.Errorf("component must not be nil")
	}
	if err := k.checkVersion(c); err != nil {
		return err
	}
	return k.manager.Register(c)
}

func (k *Kernel) checkVersion(c lifecycle.Component) error {
	k.mu.Lock()
	constraint := k.minVersion
	k.mu.Unlock()

	v, ok := c.(Versioned)
	if constraint == nil || !ok || v.Version() == "" {
		return nil
	}

	parsed, err := version.NewVersion(v.Version())
	if err != nil {
		return fmt.Errorf("%w: component %s has invalid version %q: %v", ErrComponentVersion, c.Name(), v.Version(), err)
	}
	if !constraint.Check(parsed) {
		return fmt.Errorf("%w: component %s version %s does not satisfy %s", ErrComponentVersion, c.Name(), parsed, constraint)
	}

	k.logger.Debug("Component %s version %s validated (%s)", c.Name(), parsed, constraint)
	return nil
}

// Start resolves the activation order and activates every component.
// A dependency cycle aborts before any hook runs.
func (k *Kernel) Start(ctx context.Context) (*lifecycle.Report, error) {
	if k.isStopped() {
		return nil, ErrStopped
	}
	if err := k.manager.Initialize(); err != nil {
		return nil, err
	}
	report := k.manager.Activate(ctx)
	k.bus.Publish(newPhaseCompleted(report))
	return report, nil
}

// Reload publishes ReloadRequested and, unless a listener cancels it, runs a
// reload pass.
func (k *Kernel) Reload(ctx context.Context, reason string) (*lifecycle.Report, error) {
	if k.isStopped() {
		return nil, ErrStopped
	}

	req := events.Publish(k.bus, newReloadRequested(reason))
	if req.IsCancelled() {
		k.logger.Info("Reload (%s) vetoed by a listener", reason)
		return nil, ErrReloadVetoed
	}

	k.logger.Info("Reloading components (%s)", reason)
	report := k.manager.Reload(ctx)
	k.bus.Publish(newPhaseCompleted(report))
	return report, nil
}

// Stop deactivates components in reverse order, shuts the cache registry down
// and drops all listeners. Later calls return the first call's report.
func (k *Kernel) Stop(ctx context.Context) *lifecycle.Report {
	k.stopOnce.Do(func() {
		report := k.manager.Deactivate(ctx)
		k.bus.Publish(newPhaseCompleted(report))

		k.caches.Shutdown()
		k.bus.Clear()

		k.mu.Lock()
		k.stopped = true
		k.stopReport = report
		k.mu.Unlock()
		k.logger.Info("Kernel stopped: %s", report.Summary())
	})
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stopReport
}

func (k *Kernel) isStopped() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.stopped
}
