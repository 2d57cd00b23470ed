package kernel

import (
	"context"

	"github.com/moolen/bdcraft/internal/lifecycle"
	"github.com/moolen/bdcraft/internal/logging"
)

// DeclaredComponent is a component known only from the config manifest. Its
// hooks log the transition, which lets an operator check the resolved order
// of a deployment before the real features are wired in.
type DeclaredComponent struct {
	lifecycle.Base
	version string
	logger  *logging.Logger
}

var (
	_ lifecycle.Component = (*DeclaredComponent)(nil)
	_ Versioned           = (*DeclaredComponent)(nil)
)

// NewDeclaredComponent creates a manifest component.
func NewDeclaredComponent(name, version string, dependsOn ...string) *DeclaredComponent {
	return &DeclaredComponent{
		Base:    lifecycle.NewBase(name, dependsOn...),
		version: version,
		logger:  logging.GetLogger("kernel.component").WithField("component", name),
	}
}

// Version implements Versioned.
func (d *DeclaredComponent) Version() string {
	return d.version
}

func (d *DeclaredComponent) Activate(context.Context) error {
	d.logger.Info("Activated %s", d.Name())
	return nil
}

func (d *DeclaredComponent) Deactivate(context.Context) error {
	d.logger.Info("Deactivated %s", d.Name())
	return nil
}

func (d *DeclaredComponent) Reload(context.Context) error {
	d.logger.Info("Reloaded %s", d.Name())
	return nil
}
