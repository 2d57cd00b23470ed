// Package events implements a synchronous, in-process event bus.
//
// Listeners are keyed by the concrete type of the event they accept and run
// in registration order on the publishing goroutine. A listener may cancel a
// cancellable event, which stops delivery to the listeners after it.
package events

import (
	"errors"
	"reflect"
)

// ErrNotCancellable is returned when cancelling an event that does not allow it.
var ErrNotCancellable = errors.New("event is not cancellable")

// Event is implemented by every payload published on a Bus.
// Embed *Base or Base in a struct and publish a pointer to it.
type Event interface {
	Cancellable() bool
	IsCancelled() bool
	SetCancelled(cancelled bool) error
}

// Base carries the cancellation state of an event.
type Base struct {
	cancellable bool
	cancelled   bool
}

// NewBase returns cancellation state fixed to cancellable.
func NewBase(cancellable bool) Base {
	return Base{cancellable: cancellable}
}

// Cancellable reports whether listeners may cancel the event.
func (b *Base) Cancellable() bool {
	return b.cancellable
}

// IsCancelled reports whether a listener has cancelled the event.
func (b *Base) IsCancelled() bool {
	return b.cancelled
}

// SetCancelled sets the cancelled flag. It returns ErrNotCancellable, leaving
// the flag untouched, if the event was created non-cancellable.
func (b *Base) SetCancelled(cancelled bool) error {
	if !b.cancellable {
		return ErrNotCancellable
	}
	b.cancelled = cancelled
	return nil
}

// Cancel cancels the event and panics if it is not cancellable.
func (b *Base) Cancel() {
	if err := b.SetCancelled(true); err != nil {
		panic(err)
	}
}

// Named is implemented by events that report their own name.
type Named interface {
	EventName() string
}

// Name returns the name used for e in logs and metrics: EventName if e
// implements Named, otherwise the name of its concrete type.
func Name(e Event) string {
	if n, ok := e.(Named); ok {
		return n.EventName()
	}
	return kindName(reflect.TypeOf(e))
}

func kindName(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
