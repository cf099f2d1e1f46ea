package metrics

import (
	"context"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qaforge/qaforge/pkg/pool"
	"github.com/qaforge/qaforge/pkg/testutil"
)

func TestApplySnapshotSetsGauges(t *testing.T) {
	applySnapshot(&pool.Stats{
		Acquisitions: 10,
		Misses:       2,
		HitRate:      0.8,
		Types: map[string]pool.TypeStats{
			"perf-tester": {Available: 3, InUse: 1, Waiting: 2},
		},
	})

	assert.Equal(t, 3.0, promtest.ToFloat64(PooledAgents.WithLabelValues("perf-tester", "available")))
	assert.Equal(t, 1.0, promtest.ToFloat64(PooledAgents.WithLabelValues("perf-tester", "in_use")))
	assert.Equal(t, 2.0, promtest.ToFloat64(WaitingRequests.WithLabelValues("perf-tester")))
	assert.Equal(t, 0.8, promtest.ToFloat64(HitRate))
}

func TestObserverCountsPoolEvents(t *testing.T) {
	ctx, cancel := testutil.TestContext(t)
	defer cancel()

	cfg := pool.DefaultConfig()
	cfg.HealthCheckInterval = 0
	p, err := pool.New(cfg, &testutil.FakeFactory{}, testutil.TestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	before := promtest.ToFloat64(AcquisitionsTotal.WithLabelValues("risk-scorer"))

	observer := NewObserver(p)
	lease, err := p.Acquire(ctx, "risk-scorer")
	require.NoError(t, err)
	p.Release(ctx, lease.PoolID)

	testutil.Eventually(t, func() bool {
		return promtest.ToFloat64(AcquisitionsTotal.WithLabelValues("risk-scorer")) == before+1
	}, 2*time.Second, "acquisition was not counted")
	assert.Equal(t, 1, promtest.CollectAndCount(AcquireDuration, "qaforge_pool_acquire_duration_seconds"))

	observer.Stop()
}

func TestTimer(t *testing.T) {
	timer := NewTimer()
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), 5*time.Millisecond)
}
