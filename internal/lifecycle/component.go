package lifecycle

import "context"

// Component is the unit managed by the Manager.
//
// Hooks run synchronously on the caller's goroutine. An error or panic from
// a hook is contained: it is logged against the component's name and the
// pass continues with the next component.
type Component interface {
	// Name returns the unique, non-empty identity used as the graph node key.
	Name() string

	// Dependencies lists the names of components that must be activated first.
	// Unregistered names are reported but not enforced.
	Dependencies() []string

	// Activate brings the component up.
	Activate(ctx context.Context) error

	// Deactivate tears the component down. Called in reverse activation order.
	Deactivate(ctx context.Context) error

	// Reload refreshes configuration or cached state without changing the
	// dependency structure.
	Reload(ctx context.Context) error
}

// Base carries a component's identity and declared dependencies and
// provides no-op hooks. Embed it and override only the hooks you need:
//
//	type Economy struct {
//	    lifecycle.Base
//	}
//
//	func (e *Economy) Activate(ctx context.Context) error { ... }
type Base struct {
	name      string
	dependsOn []string
}

// NewBase returns a Base for a component named name.
func NewBase(name string, dependsOn ...string) Base {
	deps := make([]string, len(dependsOn))
	copy(deps, dependsOn)
	return Base{name: name, dependsOn: deps}
}

// Name implements Component.
func (b Base) Name() string {
	return b.name
}

// Dependencies implements Component. The returned slice is a copy.
func (b Base) Dependencies() []string {
	deps := make([]string, len(b.dependsOn))
	copy(deps, b.dependsOn)
	return deps
}

// Activate implements Component.
func (Base) Activate(context.Context) error { return nil }

// Deactivate implements Component.
func (Base) Deactivate(context.Context) error { return nil }

// Reload implements Component.
func (Base) Reload(context.Context) error { return nil }

var _ Component = Base{}
