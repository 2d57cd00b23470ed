package lifecycle

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCircularDependency is matched by every *CycleError.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrNotInitialized is reported when a pass runs before Initialize succeeded.
	ErrNotInitialized = errors.New("activation order has not been resolved")
)

// CycleError reports a dependency cycle found while resolving the activation order.
type CycleError struct {
	// Path starts and ends with the same component, e.g. [a b c a].
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCircularDependency.Error(), strings.Join(e.Path, " -> "))
}

// Is makes errors.Is(err, ErrCircularDependency) true.
func (e *CycleError) Is(target error) bool {
	return target == ErrCircularDependency
}

// HookError attributes a failed or panicking hook to its component.
type HookError struct {
	Component string
	Phase     Phase
	Err       error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Phase, e.Component, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}
