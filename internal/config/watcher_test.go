package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const watchedConfig = `schema_version: v1
sweep_interval: 1m
components:
  - name: vital
`

func startWatcher(t *testing.T, path string, cb ReloadFunc) *Watcher {
	t.Helper()
	w, err := NewWatcher(WatcherConfig{FilePath: path, Debounce: 100 * time.Millisecond}, cb)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, w.Start(ctx))
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcherDetectsFileChange(t *testing.T) {
	path := writeFile(t, watchedConfig)

	var mu sync.Mutex
	var last *Config
	var calls atomic.Int32
	startWatcher(t, path, func(cfg *Config) error {
		mu.Lock()
		last = cfg
		mu.Unlock()
		calls.Add(1)
		return nil
	})

	updated := watchedConfig + "  - name: economy\n    depends_on: [vital]\n"
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, last.Components, 2)
	assert.Equal(t, "economy", last.Components[1].Name)
}

func TestWatcherDebouncing(t *testing.T) {
	path := writeFile(t, watchedConfig)

	var calls atomic.Int32
	startWatcher(t, path, func(*Config) error {
		calls.Add(1)
		return nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte(watchedConfig), 0o600))
		time.Sleep(20 * time.Millisecond)
	}

	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "rapid writes are coalesced into one reload")
}

func TestWatcherKeepsPreviousConfigOnInvalidEdit(t *testing.T) {
	path := writeFile(t, watchedConfig)

	var calls atomic.Int32
	startWatcher(t, path, func(*Config) error {
		calls.Add(1)
		return nil
	})

	require.NoError(t, os.WriteFile(path, []byte("schema_version: v999\n"), 0o600))
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, calls.Load())

	require.NoError(t, os.WriteFile(path, []byte(watchedConfig), 0o600))
	assert.Eventually(t, func() bool { return calls.Load() == 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherDetectsAtomicWrite(t *testing.T) {
	path := writeFile(t, watchedConfig)

	var calls atomic.Int32
	startWatcher(t, path, func(*Config) error {
		calls.Add(1)
		return nil
	})

	cfg := DefaultConfig()
	cfg.SweepInterval = 2 * time.Minute
	require.NoError(t, WriteConfig(path, cfg))
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	// The watch must survive the rename and see a second replacement.
	time.Sleep(200 * time.Millisecond)
	before := calls.Load()
	cfg.SweepInterval = 3 * time.Minute
	require.NoError(t, WriteConfig(path, cfg))
	assert.Eventually(t, func() bool { return calls.Load() > before }, 3*time.Second, 20*time.Millisecond)
}

func TestWatcherStop(t *testing.T) {
	path := writeFile(t, watchedConfig)
	w, err := NewWatcher(WatcherConfig{FilePath: path}, func(*Config) error { return nil })
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	assert.NoError(t, w.Stop())
}

func TestNewWatcherValidation(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{}, func(*Config) error { return nil })
	assert.Error(t, err)

	_, err = NewWatcher(WatcherConfig{FilePath: filepath.Join(t.TempDir(), "x.yaml")}, nil)
	assert.Error(t, err)

	w, err := NewWatcher(WatcherConfig{FilePath: "x.yaml"}, func(*Config) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, DefaultDebounce, w.config.Debounce)
}

func TestWatcherStartFailsForMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	w, err := NewWatcher(WatcherConfig{FilePath: path}, func(*Config) error { return nil })
	require.NoError(t, err)

	err = w.Start(context.Background())
	assert.ErrorContains(t, err, "missing.yaml")
	assert.NoError(t, w.Stop(), "a failed watch has already exited")
}
