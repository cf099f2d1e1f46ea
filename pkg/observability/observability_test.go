package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotResources(t *testing.T) {
	snap, err := SnapshotResources(context.Background())
	require.NoError(t, err)

	assert.False(t, snap.Timestamp.IsZero())
	assert.Greater(t, snap.Goroutines, 0)
	assert.GreaterOrEqual(t, snap.MemoryPercent, 0.0)
	assert.NotEmpty(t, snap.Fields())
}

func TestInitTracing(t *testing.T) {
	shutdown, err := InitTracing(TracingConfig{ServiceName: "qaforge-test", SamplingRate: 0.5})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
