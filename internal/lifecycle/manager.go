package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/moolen/bdcraft/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/moolen/bdcraft/internal/lifecycle"

// Manager registers components, resolves a dependency-respecting activation
// order and drives activate, deactivate and reload passes over it.
//
// Passes are meant to be driven from a single goroutine. Hooks are invoked
// without holding the manager's lock, so a hook may call back into Component,
// Components or IsActive.
type Manager struct {
	mu sync.RWMutex

	components map[string]Component
	// registered keeps first-registration order so resolution is deterministic.
	registered []string
	order      []string
	resolved   bool
	active     map[string]bool

	logger  *logging.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics records hook failures and latency.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithTracer overrides the tracer used for hook spans.
// Defaults to the global OpenTelemetry provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

// WithLogger overrides the manager's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates an empty lifecycle manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		components: make(map[string]Component),
		active:     make(map[string]bool),
		logger:     logging.GetLogger("lifecycle.manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	return m
}

// Register adds a component keyed by its name. Registering a name again
// replaces the earlier component. Dependencies are not validated here.
func (m *Manager) Register(component Component) error {
	if component == nil {
		return fmt.Errorf("cannot register nil component")
	}
	name := component.Name()
	if name == "" {
		return fmt.Errorf("component must have a non-empty name")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.components[name]; exists {
		m.logger.Warn("Component %s registered again, replacing previous registration", name)
	} else {
		m.registered = append(m.registered, name)
	}
	m.components[name] = component

	m.logger.Debug("Registered component %s with dependencies [%s]", name, strings.Join(component.Dependencies(), ", "))
	return nil
}

// Initialize resolves the activation order, replacing any previous one.
//
// Dependencies on unregistered names are logged as warnings and ignored for
// ordering. A cycle among registered components is fatal: the previous order
// is discarded, no partial order is kept, and a *CycleError is returned.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Resolving component dependencies")
	m.order = nil
	m.resolved = false

	deps := make(map[string][]string, len(m.components))
	for _, name := range m.registered {
		deps[name] = m.components[name].Dependencies()
	}

	for _, name := range m.registered {
		for _, dep := range deps[name] {
			if _, ok := m.components[dep]; !ok {
				m.logger.WarnWithFields(fmt.Sprintf("Component %s depends on %s, but it is not registered", name, dep),
					logging.Field("component", name),
					logging.Field("dependency", dep),
				)
			}
		}
	}

	r := &resolver{
		deps:       deps,
		registered: m.components,
		state:      make(map[string]visitState, len(deps)),
		order:      make([]string, 0, len(deps)),
	}
	for _, name := range m.registered {
		if r.state[name] != unvisited {
			continue
		}
		if err := r.visit(name); err != nil {
			m.logger.Error("Dependency resolution failed: %v", err)
			return err
		}
	}

	m.order = r.order
	m.resolved = true
	m.logger.Info("Component initialization completed. Activation order: %s", strings.Join(m.order, ", "))
	return nil
}

type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

// resolver performs the depth-first topological sort. stack mirrors the
// recursion so a cycle can be reported with its full path.
type resolver struct {
	deps       map[string][]string
	registered map[string]Component
	state      map[string]visitState
	stack      []string
	order      []string
}

func (r *resolver) visit(name string) error {
	r.state[name] = inProgress
	r.stack = append(r.stack, name)

	for _, dep := range r.deps[name] {
		if _, ok := r.registered[dep]; !ok {
			continue
		}
		switch r.state[dep] {
		case done:
			continue
		case inProgress:
			return &CycleError{Path: r.cyclePath(dep)}
		}
		if err := r.visit(dep); err != nil {
			return err
		}
	}

	r.stack = r.stack[:len(r.stack)-1]
	r.state[name] = done
	r.order = append(r.order, name)
	return nil
}

// cyclePath returns the stack suffix starting at dep, closed with dep again.
func (r *resolver) cyclePath(dep string) []string {
	start := 0
	for i, n := range r.stack {
		if n == dep {
			start = i
			break
		}
	}
	path := make([]string, 0, len(r.stack)-start+1)
	path = append(path, r.stack[start:]...)
	return append(path, dep)
}

// Activate invokes every component's Activate hook in activation order.
// Failures are contained per component; earlier activations are not rolled back.
func (m *Manager) Activate(ctx context.Context) *Report {
	return m.runPass(ctx, PhaseActivate, false, func(ctx context.Context, c Component) error {
		return c.Activate(ctx)
	})
}

// Deactivate invokes every component's Deactivate hook in reverse activation order.
func (m *Manager) Deactivate(ctx context.Context) *Report {
	return m.runPass(ctx, PhaseDeactivate, true, func(ctx context.Context, c Component) error {
		return c.Deactivate(ctx)
	})
}

// Reload invokes every component's Reload hook in activation order.
// The order is not recomputed.
func (m *Manager) Reload(ctx context.Context) *Report {
	return m.runPass(ctx, PhaseReload, false, func(ctx context.Context, c Component) error {
		return c.Reload(ctx)
	})
}

func (m *Manager) runPass(ctx context.Context, phase Phase, reverse bool, hook func(context.Context, Component) error) *Report {
	m.mu.RLock()
	resolved := m.resolved
	order := make([]string, len(m.order))
	copy(order, m.order)
	components := make(map[string]Component, len(m.components))
	for k, v := range m.components {
		components[k] = v
	}
	m.mu.RUnlock()

	report := &Report{Phase: phase}
	if !resolved {
		m.logger.Warn("Skipping %s pass: %v", phase, ErrNotInitialized)
		return report
	}

	if reverse {
		for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
			order[i], order[j] = order[j], order[i]
		}
	}

	start := time.Now()
	for _, name := range order {
		component, ok := components[name]
		if !ok {
			continue
		}
		report.Visited = append(report.Visited, name)

		m.logger.Info("%s component: %s", phaseVerb(phase), name)
		if err := m.invoke(ctx, phase, component, hook); err != nil {
			hookErr := &HookError{Component: name, Phase: phase, Err: err}
			report.Failures = append(report.Failures, hookErr)
			m.logger.ErrorWithFields(fmt.Sprintf("Error during %s of component %s: %v", phase, name, err),
				logging.Field("component", name),
				logging.Field("phase", string(phase)),
			)
			if m.metrics != nil {
				m.metrics.HookFailures.WithLabelValues(string(phase), name).Inc()
			}
			if phase == PhaseDeactivate {
				m.setActive(name, false)
			}
			continue
		}

		report.Succeeded = append(report.Succeeded, name)
		switch phase {
		case PhaseActivate:
			m.setActive(name, true)
		case PhaseDeactivate:
			m.setActive(name, false)
		}
	}
	report.Duration = time.Since(start)

	if report.Failed() {
		m.logger.Warn("%s (%d failed)", report.Summary(), len(report.Failures))
	} else {
		m.logger.Info("%s", report.Summary())
	}
	return report
}

// invoke runs one hook inside a span and converts a panic into an error.
func (m *Manager) invoke(ctx context.Context, phase Phase, c Component, hook func(context.Context, Component) error) (err error) {
	ctx, span := m.tracer.Start(ctx, "lifecycle."+string(phase),
		trace.WithAttributes(attribute.String("component", c.Name())))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s hook: %v", phase, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if m.metrics != nil {
			m.metrics.HookDuration.WithLabelValues(string(phase)).Observe(time.Since(start).Seconds())
		}
	}()

	return hook(ctx, c)
}

func (m *Manager) setActive(name string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if active {
		m.active[name] = true
	} else {
		delete(m.active, name)
	}
	if m.metrics != nil {
		m.metrics.ActiveComponents.Set(float64(len(m.active)))
	}
}

func phaseVerb(phase Phase) string {
	switch phase {
	case PhaseActivate:
		return "Activating"
	case PhaseDeactivate:
		return "Deactivating"
	default:
		return "Reloading"
	}
}

// Order returns a copy of the resolved activation order.
func (m *Manager) Order() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	order := make([]string, len(m.order))
	copy(order, m.order)
	return order
}

// Component returns the component registered under name.
func (m *Manager) Component(name string) (Component, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.components[name]
	return c, ok
}

// Components returns all registered components in registration order.
func (m *Manager) Components() []Component {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Component, 0, len(m.registered))
	for _, name := range m.registered {
		out = append(out, m.components[name])
	}
	return out
}

// IsActive reports whether the component's last Activate succeeded and it
// has not been deactivated since.
func (m *Manager) IsActive(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[name]
}
