package events

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tradeEvent struct {
	Base
	Item  string
	Price int
}

func newTradeEvent(cancellable bool) *tradeEvent {
	return &tradeEvent{Base: NewBase(cancellable), Item: "emerald", Price: 5}
}

type joinEvent struct {
	Base
	Player string
}

func (e *joinEvent) EventName() string {
	return "player-join"
}

func TestPublishWithoutListenersReturnsEventUnchanged(t *testing.T) {
	bus := NewBus()
	e := newTradeEvent(true)

	got := Publish(bus, e)
	assert.Same(t, e, got)
	assert.False(t, got.IsCancelled())
	assert.Equal(t, 5, got.Price)
}

func TestRegistrationOrderAndCancellation(t *testing.T) {
	bus := NewBus()
	var calls []string

	_, err := Listen(bus, func(e *tradeEvent) error {
		calls = append(calls, "L1")
		e.Price *= 2
		return nil
	})
	require.NoError(t, err)
	_, err = Listen(bus, func(e *tradeEvent) error {
		calls = append(calls, "L2")
		e.Cancel()
		return nil
	})
	require.NoError(t, err)
	_, err = Listen(bus, func(e *tradeEvent) error {
		calls = append(calls, "L3")
		return nil
	})
	require.NoError(t, err)

	got := Publish(bus, newTradeEvent(true))
	assert.Equal(t, []string{"L1", "L2"}, calls)
	assert.True(t, got.IsCancelled())
	assert.Equal(t, 10, got.Price)
}

func TestNonCancellableGuard(t *testing.T) {
	e := newTradeEvent(false)

	err := e.SetCancelled(true)
	assert.ErrorIs(t, err, ErrNotCancellable)
	assert.False(t, e.IsCancelled())

	assert.PanicsWithError(t, ErrNotCancellable.Error(), func() { e.Cancel() })
	assert.False(t, e.IsCancelled())
}

func TestCancelledFlagCanBeCleared(t *testing.T) {
	e := newTradeEvent(true)
	require.NoError(t, e.SetCancelled(true))
	assert.True(t, e.IsCancelled())
	require.NoError(t, e.SetCancelled(false))
	assert.False(t, e.IsCancelled())
}

func TestNonCancellableMisuseInsideListenerIsContained(t *testing.T) {
	bus := NewBus()
	var calls []string

	_, _ = Listen(bus, func(e *tradeEvent) error {
		calls = append(calls, "canceller")
		e.Cancel()
		return nil
	})
	_, _ = Listen(bus, func(e *tradeEvent) error {
		calls = append(calls, "observer")
		return nil
	})

	got := Publish(bus, newTradeEvent(false))
	assert.False(t, got.IsCancelled())
	assert.Equal(t, []string{"canceller", "observer"}, calls)
}

func TestListenerFailuresAreIsolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	bus := NewBus(WithMetrics(metrics))
	var calls []string

	_, _ = Listen(bus, func(e *tradeEvent) error {
		calls = append(calls, "error")
		return errors.New("ledger offline")
	})
	_, _ = Listen(bus, func(e *tradeEvent) error {
		calls = append(calls, "panic")
		panic("nil ledger")
	})
	_, _ = Listen(bus, func(e *tradeEvent) error {
		calls = append(calls, "ok")
		return nil
	})

	Publish(bus, newTradeEvent(true))
	assert.Equal(t, []string{"error", "panic", "ok"}, calls)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.ListenerFailures.WithLabelValues("tradeEvent")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Published.WithLabelValues("tradeEvent")))
}

func TestCancellationCountedOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	bus := NewBus(WithMetrics(metrics))

	_, _ = Listen(bus, func(e *joinEvent) error {
		e.Cancel()
		return nil
	})
	Publish(bus, &joinEvent{Base: NewBase(true), Player: "alex"})

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Cancelled.WithLabelValues("player-join")))
}

func TestDispatchIsKeyedByConcreteType(t *testing.T) {
	bus := NewBus()
	trades, joins := 0, 0
	_, _ = Listen(bus, func(*tradeEvent) error { trades++; return nil })
	_, _ = Listen(bus, func(*joinEvent) error { joins++; return nil })

	Publish(bus, newTradeEvent(true))
	Publish(bus, newTradeEvent(true))
	Publish(bus, &joinEvent{Base: NewBase(false)})

	assert.Equal(t, 2, trades)
	assert.Equal(t, 1, joins)
	assert.Equal(t, 1, bus.ListenerCount(KindOf[*tradeEvent]()))
}

func TestUnregister(t *testing.T) {
	bus := NewBus()
	var calls []string

	first, _ := Listen(bus, func(*tradeEvent) error { calls = append(calls, "first"); return nil })
	_, _ = Listen(bus, func(*tradeEvent) error { calls = append(calls, "second"); return nil })

	bus.Unregister(first)
	bus.Unregister(first)
	bus.Unregister(Subscription{})

	Publish(bus, newTradeEvent(true))
	assert.Equal(t, []string{"second"}, calls)
	assert.Equal(t, 1, bus.ListenerCount(first.Kind()))
}

func TestRegisterDuringDispatch(t *testing.T) {
	bus := NewBus()
	late := 0

	_, _ = Listen(bus, func(*tradeEvent) error {
		_, err := Listen(bus, func(*tradeEvent) error { late++; return nil })
		return err
	})

	Publish(bus, newTradeEvent(true))
	assert.Equal(t, 0, late, "listeners added during a dispatch are not called by it")
	assert.Equal(t, 2, bus.ListenerCount(KindOf[*tradeEvent]()))

	Publish(bus, newTradeEvent(true))
	assert.Equal(t, 1, late)
}

func TestConcurrentRegisterAndPublish(t *testing.T) {
	bus := NewBus()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				sub, err := Listen(bus, func(*tradeEvent) error { return nil })
				if err == nil && j%2 == 0 {
					bus.Unregister(sub)
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Publish(bus, newTradeEvent(true))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8*50, bus.ListenerCount(KindOf[*tradeEvent]()))
}

func TestClear(t *testing.T) {
	bus := NewBus()
	called := false
	_, _ = Listen(bus, func(*tradeEvent) error { called = true; return nil })

	bus.Clear()
	Publish(bus, newTradeEvent(true))
	assert.False(t, called)
	assert.Zero(t, bus.ListenerCount(KindOf[*tradeEvent]()))
}

func TestRegisterRejectsNil(t *testing.T) {
	bus := NewBus()
	_, err := bus.Register(nil, func(Event) error { return nil })
	assert.Error(t, err)
	_, err = bus.Register(KindOf[*tradeEvent](), nil)
	assert.Error(t, err)
	_, err = Listen[*tradeEvent](bus, nil)
	assert.Error(t, err)
}

func TestRegisterRejectsInterfaceKinds(t *testing.T) {
	bus := NewBus()
	_, err := Listen[Event](bus, func(Event) error { return nil })
	assert.ErrorContains(t, err, "interface")
	_, err = bus.Register(reflect.TypeFor[Named](), func(Event) error { return nil })
	assert.Error(t, err)
	assert.Zero(t, bus.ListenerCount(KindOf[Event]()))

	called := false
	_, err = Listen[*tradeEvent](bus, func(*tradeEvent) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	bus.Publish(newTradeEvent(false))
	assert.True(t, called)
}

func TestName(t *testing.T) {
	assert.Equal(t, "tradeEvent", Name(newTradeEvent(true)))
	assert.Equal(t, "player-join", Name(&joinEvent{}))
}
