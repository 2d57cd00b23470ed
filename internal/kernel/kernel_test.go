package kernel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moolen/bdcraft/internal/cache"
	"github.com/moolen/bdcraft/internal/events"
	"github.com/moolen/bdcraft/internal/lifecycle"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type feature struct {
	lifecycle.Base
	version string
	calls   *[]string
	failOn  lifecycle.Phase
}

func newFeature(name, version string, calls *[]string, deps ...string) *feature {
	return &feature{Base: lifecycle.NewBase(name, deps...), version: version, calls: calls}
}

func (f *feature) Version() string { return f.version }

func (f *feature) record(phase lifecycle.Phase) error {
	*f.calls = append(*f.calls, string(phase)+":"+f.Name())
	if f.failOn == phase {
		return errors.New("boom")
	}
	return nil
}

func (f *feature) Activate(context.Context) error   { return f.record(lifecycle.PhaseActivate) }
func (f *feature) Deactivate(context.Context) error { return f.record(lifecycle.PhaseDeactivate) }
func (f *feature) Reload(context.Context) error     { return f.record(lifecycle.PhaseReload) }

func newTestKernel(t *testing.T, cfg Config) *Kernel {
	t.Helper()
	k, err := New(cfg, WithRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { k.Stop(context.Background()) })
	return k
}

func TestKernelEndToEnd(t *testing.T) {
	k := newTestKernel(t, Config{SweepInterval: time.Hour, Caches: cache.DefaultSpecs()})
	var calls []string

	require.NoError(t, k.Register(newFeature("C", "", &calls, "B", "A")))
	require.NoError(t, k.Register(newFeature("B", "", &calls, "A")))
	require.NoError(t, k.Register(newFeature("A", "", &calls)))

	var phases []lifecycle.Phase
	_, err := events.Listen(k.Bus(), func(e *PhaseCompleted) error {
		phases = append(phases, e.Report.Phase)
		return nil
	})
	require.NoError(t, err)

	report, err := k.Start(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Failed())
	assert.Equal(t, []string{"A", "B", "C"}, k.Manager().Order())

	players, ok := cache.Lookup[string, any](k.Caches(), cache.PlayerDataCache)
	require.True(t, ok)
	players.Put("p", 1)

	stop := k.Stop(context.Background())
	assert.Equal(t, lifecycle.PhaseDeactivate, stop.Phase)
	assert.Equal(t, []string{
		"activate:A", "activate:B", "activate:C",
		"deactivate:C", "deactivate:B", "deactivate:A",
	}, calls)
	assert.Equal(t, []lifecycle.Phase{lifecycle.PhaseActivate, lifecycle.PhaseDeactivate}, phases)

	assert.Equal(t, 0, players.Size(), "caches are cleared on stop")
	assert.Zero(t, k.Bus().ListenerCount(events.KindOf[*PhaseCompleted]()))
}

func TestKernelStartAbortsOnCycle(t *testing.T) {
	k := newTestKernel(t, Config{SweepInterval: time.Hour})
	var calls []string
	require.NoError(t, k.Register(newFeature("A", "", &calls, "B")))
	require.NoError(t, k.Register(newFeature("B", "", &calls, "A")))

	_, err := k.Start(context.Background())
	assert.ErrorIs(t, err, lifecycle.ErrCircularDependency)
	assert.Empty(t, calls)
}

func TestKernelReload(t *testing.T) {
	k := newTestKernel(t, Config{SweepInterval: time.Hour})
	var calls []string
	require.NoError(t, k.Register(newFeature("A", "", &calls)))
	_, err := k.Start(context.Background())
	require.NoError(t, err)

	var reasons []string
	_, err = events.Listen(k.Bus(), func(e *ReloadRequested) error {
		reasons = append(reasons, e.Reason)
		return nil
	})
	require.NoError(t, err)

	report, err := k.Reload(context.Background(), "SIGHUP")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.PhaseReload, report.Phase)
	assert.Equal(t, []string{"SIGHUP"}, reasons)
	assert.Contains(t, calls, "reload:A")
}

func TestKernelReloadVeto(t *testing.T) {
	k := newTestKernel(t, Config{SweepInterval: time.Hour})
	var calls []string
	require.NoError(t, k.Register(newFeature("A", "", &calls)))
	_, err := k.Start(context.Background())
	require.NoError(t, err)

	_, err = events.Listen(k.Bus(), func(e *ReloadRequested) error {
		e.Cancel()
		return nil
	})
	require.NoError(t, err)

	report, err := k.Reload(context.Background(), "config changed")
	assert.ErrorIs(t, err, ErrReloadVetoed)
	assert.Nil(t, report)
	assert.NotContains(t, calls, "reload:A")
}

func TestKernelVersionGate(t *testing.T) {
	k := newTestKernel(t, Config{SweepInterval: time.Hour, MinComponentVersion: ">= 1.0.0"})
	var calls []string

	assert.NoError(t, k.Register(newFeature("current", "1.2.0", &calls)))
	assert.NoError(t, k.Register(newFeature("unversioned", "", &calls)))

	err := k.Register(newFeature("old", "0.9.1", &calls))
	assert.ErrorIs(t, err, ErrComponentVersion)

	err = k.Register(newFeature("garbage", "not-a-version", &calls))
	assert.ErrorIs(t, err, ErrComponentVersion)

	_, ok := k.Manager().Component("old")
	assert.False(t, ok)

	require.NoError(t, k.SetMinComponentVersion(""))
	assert.NoError(t, k.Register(newFeature("old", "0.9.1", &calls)))
	assert.Error(t, k.SetMinComponentVersion("~> nope"))
}

func TestKernelHookFailureIsContained(t *testing.T) {
	k := newTestKernel(t, Config{SweepInterval: time.Hour})
	var calls []string
	broken := newFeature("B", "", &calls, "A")
	broken.failOn = lifecycle.PhaseActivate
	require.NoError(t, k.Register(newFeature("A", "", &calls)))
	require.NoError(t, k.Register(broken))
	require.NoError(t, k.Register(newFeature("C", "", &calls, "B")))

	report, err := k.Start(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Failed())
	assert.Equal(t, "activate: 2/3 components succeeded", report.Summary())
	assert.Contains(t, calls, "activate:C")
}

func TestKernelStopIsIdempotent(t *testing.T) {
	k, err := New(Config{SweepInterval: time.Hour})
	require.NoError(t, err)

	first := k.Stop(context.Background())
	second := k.Stop(context.Background())
	assert.Same(t, first, second)

	_, err = k.Start(context.Background())
	assert.ErrorIs(t, err, ErrStopped)
	_, err = k.Reload(context.Background(), "late")
	assert.ErrorIs(t, err, ErrStopped)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(Config{MinComponentVersion: "~> nope"})
	assert.Error(t, err)

	_, err = New(Config{SweepInterval: time.Hour, Caches: []cache.Spec{{Name: "x", TTL: time.Minute, MaxEntries: -1}}})
	assert.Error(t, err)
}

func TestDeclaredComponent(t *testing.T) {
	k := newTestKernel(t, Config{SweepInterval: time.Hour, MinComponentVersion: ">= 1.0.0"})

	require.NoError(t, k.Register(NewDeclaredComponent("vital", "")))
	require.NoError(t, k.Register(NewDeclaredComponent("economy", "1.2.0", "vital")))
	assert.ErrorIs(t, k.Register(NewDeclaredComponent("legacy", "0.1.0")), ErrComponentVersion)

	report, err := k.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"vital", "economy"}, report.Succeeded)
	assert.True(t, k.Manager().IsActive("economy"))
}
