package kernel

import (
	"github.com/moolen/bdcraft/internal/events"
	"github.com/moolen/bdcraft/internal/lifecycle"
)

// PhaseCompleted is published after every lifecycle pass the kernel drives.
type PhaseCompleted struct {
	events.Base
	Report *lifecycle.Report
}

func newPhaseCompleted(report *lifecycle.Report) *PhaseCompleted {
	return &PhaseCompleted{Base: events.NewBase(false), Report: report}
}

// EventName implements events.Named.
func (e *PhaseCompleted) EventName() string {
	return "phase-completed"
}

// ReloadRequested is published before a reload pass. Cancelling it skips the
// reload.
type ReloadRequested struct {
	events.Base
	Reason string
}

func newReloadRequested(reason string) *ReloadRequested {
	return &ReloadRequested{Base: events.NewBase(true), Reason: reason}
}

// EventName implements events.Named.
func (e *ReloadRequested) EventName() string {
	return "reload-requested"
}
