package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

// Phase names one pass over the activation order.
type Phase string

const (
	PhaseActivate   Phase = "activate"
	PhaseDeactivate Phase = "deactivate"
	PhaseReload     Phase = "reload"
)

// Report summarises one pass. Failures never abort a pass, so Visited always
// holds every component in the order its hook was invoked.
type Report struct {
	Phase     Phase
	Visited   []string
	Succeeded []string
	Failures  []*HookError
	Duration  time.Duration
}

// Failed reports whether any hook in the pass failed.
func (r *Report) Failed() bool {
	return len(r.Failures) > 0
}

// Err joins all hook failures, or returns nil.
func (r *Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// Summary is the operator-facing one-liner, e.g. "activate: 4/5 components succeeded".
func (r *Report) Summary() string {
	return fmt.Sprintf("%s: %d/%d components succeeded", r.Phase, len(r.Succeeded), len(r.Visited))
}
