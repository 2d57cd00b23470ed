package events

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/moolen/bdcraft/internal/logging"
)

// Listener handles one event. A returned error is logged and does not stop
// delivery to the remaining listeners.
type Listener func(Event) error

// Subscription identifies one registered listener.
// The zero Subscription is valid and unregistering it does nothing.
type Subscription struct {
	ID   uuid.UUID
	kind reflect.Type
}

// Kind returns the event type the listener was registered for.
func (s Subscription) Kind() reflect.Type {
	return s.kind
}

type listenerEntry struct {
	id uuid.UUID
	fn Listener
}

// Option configures a Bus.
type Option func(*Bus)

// WithMetrics records publish, cancel and failure counts.
func WithMetrics(m *Metrics) Option {
	return func(b *Bus) {
		b.metrics = m
	}
}

// WithLogger overrides the default "events.bus" logger.
func WithLogger(l *logging.Logger) Option {
	return func(b *Bus) {
		b.logger = l
	}
}

// Bus dispatches events to listeners registered for their concrete type.
//
// Listener slices are never mutated in place. Publish iterates a snapshot,
// so registering or unregistering from inside a listener is safe; a listener
// added during a dispatch is not called by that dispatch.
type Bus struct {
	mu        sync.RWMutex
	listeners map[reflect.Type][]listenerEntry

	metrics *Metrics
	logger  *logging.Logger
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[reflect.Type][]listenerEntry),
		logger:    logging.GetLogger("events.bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register appends fn to the listeners for events of type kind.
// Dispatch matches the concrete type of a published event, so kind must not
// be an interface type.
func (b *Bus) Register(kind reflect.Type, fn Listener) (Subscription, error) {
	if kind == nil {
		return Subscription{}, fmt.Errorf("event kind must not be nil")
	}
	if kind.Kind() == reflect.Interface {
		return Subscription{}, fmt.Errorf("event kind %s is an interface; listen on a concrete event type", kind)
	}
	if fn == nil {
		return Subscription{}, fmt.Errorf("listener for %s must not be nil", kindName(kind))
	}

	sub := Subscription{ID: uuid.New(), kind: kind}

	b.mu.Lock()
	current := b.listeners[kind]
	next := make([]listenerEntry, len(current), len(current)+1)
	copy(next, current)
	b.listeners[kind] = append(next, listenerEntry{id: sub.ID, fn: fn})
	b.mu.Unlock()

	b.logger.Debug("Registered listener %s for %s", sub.ID, kindName(kind))
	return sub, nil
}

// Unregister removes the listener identified by sub. Unknown or already
// removed subscriptions are ignored.
func (b *Bus) Unregister(sub Subscription) {
	if sub.kind == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.listeners[sub.kind]
	for i, l := range current {
		if l.id != sub.ID {
			continue
		}
		if len(current) == 1 {
			delete(b.listeners, sub.kind)
			return
		}
		next := make([]listenerEntry, 0, len(current)-1)
		next = append(next, current[:i]...)
		next = append(next, current[i+1:]...)
		b.listeners[sub.kind] = next
		return
	}
}

// Publish delivers e to every listener registered for its concrete type, in
// registration order, and returns it. Delivery stops after the first listener
// that leaves the event cancelled.
func (b *Bus) Publish(e Event) Event {
	if e == nil {
		return nil
	}
	kind := reflect.TypeOf(e)

	b.mu.RLock()
	snapshot := b.listeners[kind]
	b.mu.RUnlock()

	if len(snapshot) == 0 {
		return e
	}

	name := Name(e)
	if b.metrics != nil {
		b.metrics.Published.WithLabelValues(name).Inc()
	}

	for i, l := range snapshot {
		if err := b.invoke(l, e); err != nil {
			b.logger.ErrorWithFields("Event listener failed",
				logging.Field("event", name),
				logging.Field("listener", l.id.String()),
				logging.Field("error", err.Error()))
			if b.metrics != nil {
				b.metrics.ListenerFailures.WithLabelValues(name).Inc()
			}
		}
		if e.IsCancelled() {
			if b.metrics != nil {
				b.metrics.Cancelled.WithLabelValues(name).Inc()
			}
			if skipped := len(snapshot) - i - 1; skipped > 0 {
				b.logger.Debug("Event %s cancelled, skipping %d listeners", name, skipped)
			}
			break
		}
	}
	return e
}

func (b *Bus) invoke(l listenerEntry, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return l.fn(e)
}

// ListenerCount returns the number of listeners registered for kind.
func (b *Bus) ListenerCount(kind reflect.Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[kind])
}

// Clear drops every registered listener.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.listeners = make(map[reflect.Type][]listenerEntry)
	b.mu.Unlock()
	b.logger.Debug("Cleared all event listeners")
}

// KindOf returns the kind key for events of type E.
func KindOf[E Event]() reflect.Type {
	return reflect.TypeFor[E]()
}

// Listen registers fn for events of type E.
func Listen[E Event](b *Bus, fn func(E) error) (Subscription, error) {
	if fn == nil {
		return Subscription{}, fmt.Errorf("listener for %s must not be nil", kindName(KindOf[E]()))
	}
	return b.Register(KindOf[E](), func(e Event) error {
		return fn(e.(E))
	})
}

// Publish publishes e and returns it with its concrete type.
func Publish[E Event](b *Bus, e E) E {
	b.Publish(e)
	return e
}
