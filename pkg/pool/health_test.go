package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/qaforge/pkg/testutil"
)

func TestSweepEvictsIdleEntriesDownToMinSize(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	factory := &testutil.FakeFactory{}
	cfg := testConfig(1, 4, 8)
	cfg.Default.IdleTTL = time.Millisecond
	p := newTestPool(t, cfg, factory)

	// Grow to three entries, then idle them all.
	var leases []*Lease
	for i := 0; i < 3; i++ {
		lease, err := p.Acquire(ctx, workerType)
		require.NoError(t, err)
		leases = append(leases, lease)
	}
	for _, lease := range leases {
		p.Release(ctx, lease.PoolID)
	}

	time.Sleep(10 * time.Millisecond)
	p.sweep()

	stats := p.Stats().Types[workerType]
	assert.Equal(t, 1, stats.Available, "eviction must stop at the minimum size")
	assert.EqualValues(t, 2, factory.Disposed())
}

func TestSweepKeepsFreshEntries(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	factory := &testutil.FakeFactory{}
	cfg := testConfig(1, 4, 8)
	cfg.Default.IdleTTL = time.Hour
	p := newTestPool(t, cfg, factory)
	require.NoError(t, p.Warmup(ctx, workerType))

	p.sweep()

	assert.Equal(t, 1, p.Stats().Types[workerType].Available)
	assert.EqualValues(t, 0, factory.Disposed())
}

func TestSweepReplacesUnhealthyEntries(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	factory := &testutil.FakeFactory{}
	cfg := testConfig(2, 4, 8)
	cfg.Default.WarmupCount = 2
	cfg.Default.GrowthIncrement = 2
	p := newTestPool(t, cfg, factory)
	require.NoError(t, p.Warmup(ctx, workerType))

	for _, a := range factory.Agents() {
		a.MarkUnhealthy()
	}

	p.sweep()

	testutil.Eventually(t, func() bool {
		stats := p.Stats().Types[workerType]
		return stats.Available == 2 && factory.Disposed() == 2
	}, 2*time.Second, "unhealthy entries were not replaced")

	lease, err := p.Acquire(ctx, workerType)
	require.NoError(t, err)
	assert.True(t, lease.Agent.IsHealthy())
	p.Release(ctx, lease.PoolID)
}

func TestSweepLeavesLeasedEntriesAlone(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	factory := &testutil.FakeFactory{}
	cfg := testConfig(0, 2, 4)
	cfg.Default.IdleTTL = time.Millisecond
	p := newTestPool(t, cfg, factory)

	lease, err := p.Acquire(ctx, workerType)
	require.NoError(t, err)
	factory.Agents()[0].MarkUnhealthy()

	time.Sleep(5 * time.Millisecond)
	p.sweep()

	assert.Equal(t, 1, p.Stats().Types[workerType].InUse)
	assert.EqualValues(t, 0, factory.Disposed())
	p.Release(ctx, lease.PoolID)
}

func TestSweepPublishesHealthCheckSnapshot(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	factory := &testutil.FakeFactory{}
	p := newTestPool(t, testConfig(1, 2, 4), factory)
	require.NoError(t, p.Warmup(ctx, workerType))

	events, stop := p.Events().Subscribe(16)
	defer stop()

	p.sweep()

	select {
	case ev := <-events:
		require.Equal(t, EventPoolHealthCheck, ev.Type)
		require.NotNil(t, ev.Stats)
		assert.Equal(t, 1, ev.Stats.TotalAgents)
	case <-time.After(2 * time.Second):
		t.Fatal("no health check event published")
	}
}

func TestBackgroundMonitorReplacesUnhealthyEntries(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	factory := &testutil.FakeFactory{}
	cfg := testConfig(1, 2, 4)
	cfg.HealthCheckInterval = 10 * time.Millisecond
	p := newTestPool(t, cfg, factory)
	require.NoError(t, p.Warmup(ctx, workerType))

	factory.Agents()[0].MarkUnhealthy()

	testutil.Eventually(t, func() bool {
		return factory.Disposed() == 1 && p.Stats().Types[workerType].Available == 1
	}, 3*time.Second, "monitor did not replace the unhealthy entry")

	require.NoError(t, p.Shutdown(context.Background()))
}
