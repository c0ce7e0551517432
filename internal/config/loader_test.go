package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Environment)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "libsql", cfg.Limiter.Driver)
	require.Equal(t, 10, cfg.Limiter.FreeRequests)
	require.Equal(t, 86400, cfg.Limiter.WindowSeconds)
	require.Equal(t, 2*time.Second, cfg.Limiter.StoreTimeout)
	require.Equal(t, time.Hour, cfg.Limiter.SweepInterval)
	require.Equal(t, "eip155:8453", cfg.Payment.Network)
	require.False(t, cfg.Payment.TestMode)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, 9090, cfg.Metrics.Port)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DATAGATE_LIMITER_FREE_REQUESTS", "3")
	t.Setenv("DATAGATE_LIMITER_DRIVER", "redis")
	t.Setenv("DATAGATE_PAYMENT_PAY_TO", "0xOverride")

	cfg, err := Load("", zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, 3, cfg.Limiter.FreeRequests)
	require.Equal(t, "redis", cfg.Limiter.Driver)
	require.Equal(t, "0xOverride", cfg.Payment.PayTo)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "datagate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: staging
limiter:
  free_requests: 25
payment:
  network: eip155:84532
`), 0o644))

	cfg, err := Load(path, zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, "staging", cfg.Environment)
	require.Equal(t, 25, cfg.Limiter.FreeRequests)
	require.Equal(t, "eip155:84532", cfg.Payment.Network)
	// untouched keys keep defaults
	require.Equal(t, 86400, cfg.Limiter.WindowSeconds)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), zap.NewNop())
	require.Error(t, err)
}

func TestProductionForcesTestModeOff(t *testing.T) {
	t.Setenv("DATAGATE_ENVIRONMENT", "production")
	t.Setenv("DATAGATE_PAYMENT_TEST_MODE", "true")

	cfg, err := Load("", zap.NewNop())
	require.NoError(t, err)

	require.Equal(t, "production", cfg.Environment)
	require.False(t, cfg.Payment.TestMode)
}

func TestDevelopmentKeepsTestMode(t *testing.T) {
	t.Setenv("DATAGATE_PAYMENT_TEST_MODE", "true")

	cfg, err := Load("", zap.NewNop())
	require.NoError(t, err)
	require.True(t, cfg.Payment.TestMode)
}
