package tracing

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/moolen/bdcraft/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderValidation(t *testing.T) {
	_, err := NewProvider(Config{Enabled: true})
	assert.Error(t, err)

	p, err := NewProvider(Config{})
	require.NoError(t, err)
	assert.Equal(t, ComponentName, p.Name())
	assert.Empty(t, p.Dependencies())
	assert.False(t, p.IsEnabled())
}

func TestDisabledProviderLifecycle(t *testing.T) {
	p, err := NewProvider(Config{})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, p.Activate(ctx))
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Reload(ctx))
	require.NoError(t, p.Deactivate(ctx))
	assert.NotNil(t, p.Tracer("test"))
}

func TestExporterOptions(t *testing.T) {
	logger := logging.GetLogger("tracing")

	badPEM := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(badPEM, []byte("not a certificate"), 0o600))

	tests := []struct {
		name        string
		cfg         Config
		expectError bool
	}{
		{
			name:        "TLS with insecure skip verify",
			cfg:         Config{Enabled: true, Endpoint: "localhost:4317", TLSInsecure: true},
			expectError: false,
		},
		{
			name:        "TLS with missing CA certificate",
			cfg:         Config{Enabled: true, Endpoint: "localhost:4317", TLSCAPath: "/path/to/ca.crt"},
			expectError: true,
		},
		{
			name:        "TLS with invalid CA certificate",
			cfg:         Config{Enabled: true, Endpoint: "localhost:4317", TLSCAPath: badPEM},
			expectError: true,
		},
		{
			name:        "No TLS",
			cfg:         Config{Enabled: true, Endpoint: "localhost:4317"},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := exporterOptions(tt.cfg, logger)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, opts)
		})
	}
}

func TestEnabledProviderLifecycle(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, Endpoint: "localhost:4317", ServiceVersion: "test"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, p.Activate(ctx))
	assert.True(t, p.IsRunning())

	require.NoError(t, p.Reload(ctx))
	assert.True(t, p.IsRunning())

	// No spans were recorded, so shutdown has nothing to flush to the
	// unreachable collector.
	require.NoError(t, p.Deactivate(ctx))
	assert.False(t, p.IsRunning())
}

func TestConfigureRejectsInvalid(t *testing.T) {
	p, err := NewProvider(Config{})
	require.NoError(t, err)
	assert.Error(t, p.Configure(Config{Enabled: true}))
	require.NoError(t, p.Configure(Config{Enabled: true, Endpoint: "collector:4317"}))
	assert.True(t, p.IsEnabled())
}
