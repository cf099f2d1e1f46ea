package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/qaforge/pkg/qaerrors"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, 32, cfg.Pool.GlobalMaxAgents)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qaforge.yaml")
	content := `
logging:
  level: debug
metrics:
  enabled: true
  addr: ":8081"
pool:
  global_max_agents: 10
  warmup_strategy: lazy
  health_check_interval: 15s
  types:
    perf-tester:
      min_size: 2
      max_size: 5
      warmup_count: 2
      growth_increment: 2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":8081", cfg.Metrics.Addr)
	assert.Equal(t, 10, cfg.Pool.GlobalMaxAgents)
	assert.Equal(t, 15*time.Second, cfg.Pool.HealthCheckInterval)
	assert.Equal(t, 5, cfg.Pool.Types["perf-tester"].MaxSize)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, qaerrors.IsType(err, qaerrors.ErrorTypeConfig))
}

func TestLoadRejectsInvalidPoolConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pool:\n  global_max_agents: -1\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, qaerrors.IsType(err, qaerrors.ErrorTypeConfig))
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("QAFORGE_LOG_LEVEL", "warn")
	t.Setenv("QAFORGE_METRICS_ADDR", ":7070")
	t.Setenv("QAFORGE_GLOBAL_MAX_AGENTS", "3")
	t.Setenv("QAFORGE_HEALTH_CHECK_INTERVAL", "45s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, ":7070", cfg.Metrics.Addr)
	assert.Equal(t, 3, cfg.Pool.GlobalMaxAgents)
	assert.Equal(t, 45*time.Second, cfg.Pool.HealthCheckInterval)
}

func TestEnvironmentOverrideRejectsBadDuration(t *testing.T) {
	t.Setenv("QAFORGE_HEALTH_CHECK_INTERVAL", "soon")

	_, err := Load("")
	require.Error(t, err)
	assert.True(t, qaerrors.IsType(err, qaerrors.ErrorTypeConfig))
}
