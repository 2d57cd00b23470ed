package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/moolen/bdcraft/internal/config"
	"github.com/moolen/bdcraft/internal/kernel"
	"github.com/moolen/bdcraft/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevelFlags(t *testing.T) {
	t.Setenv("LOG_LEVEL_CACHE_REGISTRY", "warn")
	t.Setenv("LOG_LEVEL_EVENTS_BUS", "error")

	level, packages, err := parseLogLevelFlags([]string{"debug", "events.bus=info", "lifecycle.*=error"})
	require.NoError(t, err)
	assert.Equal(t, "debug", level)
	assert.Equal(t, "warn", packages["cache.registry"])
	assert.Equal(t, "info", packages["events.bus"], "flags override environment")
	assert.Equal(t, "error", packages["lifecycle.*"])
}

func TestParseLogLevelFlagsDefault(t *testing.T) {
	level, _, err := parseLogLevelFlags([]string{"default=warn"})
	require.NoError(t, err)
	assert.Equal(t, "warn", level)

	level, _, err = parseLogLevelFlags(nil)
	require.NoError(t, err)
	assert.Equal(t, "info", level)
}

func TestParseLogLevelFlagsInvalid(t *testing.T) {
	_, _, err := parseLogLevelFlags([]string{"verbose"})
	assert.Error(t, err)

	_, _, err = parseLogLevelFlags([]string{"info", "cache=chatty"})
	assert.ErrorContains(t, err, `package "cache"`)
}

func TestConvertEnvKeyToPackageName(t *testing.T) {
	assert.Equal(t, "cache.registry", convertEnvKeyToPackageName("LOG_LEVEL_CACHE_REGISTRY"))
	assert.Equal(t, "kernel", convertEnvKeyToPackageName("LOG_LEVEL_KERNEL"))
}

func TestPrintOrder(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Components = []config.ComponentConfig{
		{Name: "economy", DependsOn: []string{"permissions", "vital"}},
		{Name: "permissions", DependsOn: []string{"vital"}},
		{Name: "vital"},
	}

	var out bytes.Buffer
	require.NoError(t, printOrder(&out, cfg))
	assert.Equal(t, "1. vital\n2. permissions (after vital)\n3. economy (after permissions, vital)\n", out.String())
}

func TestPrintOrderCycle(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Components = []config.ComponentConfig{
		{Name: "a", DependsOn: []string{"b"}},
		{Name: "b", DependsOn: []string{"a"}},
	}

	var out bytes.Buffer
	err := printOrder(&out, cfg)
	assert.ErrorIs(t, err, lifecycle.ErrCircularDependency)
	assert.Empty(t, out.String())
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bdcraft.yaml")

	require.NoError(t, initConfig(path, false))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Caches, cfg.Caches)

	assert.Error(t, initConfig(path, false))
	assert.NoError(t, initConfig(path, true))
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Equal(t, "bdcraft v"+Version+"\n", out.String())
}

func startedKernel(t *testing.T) *kernel.Kernel {
	t.Helper()
	k, err := kernel.New(kernel.Config{SweepInterval: time.Hour})
	require.NoError(t, err)
	require.NoError(t, k.Register(kernel.NewDeclaredComponent("vital", "1.0.0")))
	require.NoError(t, k.Register(kernel.NewDeclaredComponent("economy", "1.0.0", "vital")))

	report, err := k.Start(context.Background())
	require.NoError(t, err)
	require.False(t, report.Failed())
	require.True(t, k.Manager().IsActive("economy"))
	return k
}

func TestHostStopsKernelWhenConfigWatchFails(t *testing.T) {
	k := startedKernel(t)

	err := host(context.Background(), k, hostOptions{
		ConfigPath:      filepath.Join(t.TempDir(), "missing.yaml"),
		ShutdownTimeout: time.Second,
	})
	assert.ErrorContains(t, err, "failed to watch config")

	assert.False(t, k.Manager().IsActive("economy"))
	assert.False(t, k.Manager().IsActive("vital"))
	_, err = k.Reload(context.Background(), "after stop")
	assert.ErrorIs(t, err, kernel.ErrStopped)
}

func TestHostStopsKernelOnCancel(t *testing.T) {
	k := startedKernel(t)
	path := filepath.Join(t.TempDir(), "bdcraft.yaml")
	require.NoError(t, initConfig(path, false))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- host(ctx, k, hostOptions{ConfigPath: path, ShutdownTimeout: time.Second})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("host did not return after cancel")
	}
	assert.False(t, k.Manager().IsActive("economy"))
}

func TestHostWithCancelledContext(t *testing.T) {
	k := startedKernel(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "bdcraft.yaml")
	require.NoError(t, initConfig(path, false))
	assert.NoError(t, host(ctx, k, hostOptions{ConfigPath: path}))
	assert.False(t, k.Manager().IsActive("vital"))
}
