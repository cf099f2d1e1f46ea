package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitWritesStructuredOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "qaforge.log")
	require.NoError(t, Init(Config{Level: "debug", OutputPaths: []string{path}}))

	Get().Info("sub-pool warmed", zap.String("agent_type", "perf-tester"), zap.Int("count", 2))
	require.NoError(t, Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sub-pool warmed"`)
	assert.Contains(t, string(data), `"perf-tester"`)
	assert.Contains(t, string(data), `"level":"info"`)
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	require.Error(t, Init(Config{Level: "loud"}))
}

func TestGetAlwaysReturnsLogger(t *testing.T) {
	assert.NotNil(t, Get())
}
