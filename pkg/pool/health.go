package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// healthMonitor runs the periodic maintenance sweep: evict unhealthy and
// idle entries, replenish types below their minimum, and publish a
// pool:healthCheck snapshot.
type healthMonitor struct {
	pool     *Pool
	interval time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func newHealthMonitor(p *Pool, interval time.Duration) *healthMonitor {
	return &healthMonitor{
		pool:     p,
		interval: interval,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (m *healthMonitor) start() {
	go m.run()
}

func (m *healthMonitor) run() {
	defer close(m.done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.pool.sweep()
		case <-m.stopCh:
			return
		}
	}
}

// stop halts the monitor and waits for an in-flight sweep to finish.
func (m *healthMonitor) stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.done
}

// sweep is one maintenance pass over every sub-pool. Unhealthy available
// entries are always evicted; healthy entries idle beyond the type's TTL are
// evicted only while the sub-pool stays at or above its minimum size.
// Entries that are leased, resetting, or initializing are left alone.
func (p *Pool) sweep() {
	ctx := context.Background()

	p.mu.RLock()
	sps := make([]*subPool, 0, len(p.subPools))
	for _, sp := range p.subPools {
		sps = append(sps, sp)
	}
	p.mu.RUnlock()

	for _, sp := range sps {
		var evict []*pooledEntry
		var reasons []string

		sp.mu.Lock()
		size := len(sp.entries)
		for _, e := range sp.entries {
			if e.state != StateAvailable {
				continue
			}
			if !e.instance.IsHealthy() {
				e.setState(StateDisposing)
				evict = append(evict, e)
				reasons = append(reasons, DisposeReasonUnhealthy)
				size--
				continue
			}
			if sp.cfg.IdleTTL > 0 && size > sp.cfg.MinSize && time.Since(e.idleSince()) > sp.cfg.IdleTTL {
				e.setState(StateDisposing)
				evict = append(evict, e)
				reasons = append(reasons, DisposeReasonIdleTimeout)
				size--
			}
		}
		sp.mu.Unlock()

		for i, e := range evict {
			p.disposeEntry(ctx, e, reasons[i], false)
		}
		p.replenish(sp)
		p.dispatch(sp)
	}

	stats := p.Stats()
	p.bus.Publish(Event{Type: EventPoolHealthCheck, Stats: &stats})
	p.log.Debug("health check complete",
		zap.Int("total_agents", stats.TotalAgents),
		zap.Int64("acquisitions", stats.Acquisitions),
		zap.Float64("hit_rate", stats.HitRate))
}

// replenish restores a sub-pool toward its minimum size, creating at most
// one growth increment per pass. Creation failures are logged and retried on
// the next sweep rather than propagated. At most one replenishment pass runs
// per sub-pool at a time.
func (p *Pool) replenish(sp *subPool) {
	if p.draining.Load() {
		return
	}
	if !sp.replenishing.CompareAndSwap(false, true) {
		return
	}
	defer sp.replenishing.Store(false)

	sp.mu.Lock()
	need := sp.cfg.MinSize - len(sp.entries)
	sp.mu.Unlock()
	if need <= 0 {
		return
	}
	if inc := sp.cfg.GrowthIncrement; inc > 0 && need > inc {
		need = inc
	}

	var created atomic.Int64
	g, gctx := errgroup.WithContext(context.Background())
	for i := 0; i < need; i++ {
		g.Go(func() error {
			e, err := p.spawn(gctx, sp, sp.cfg.PreInitialize)
			if err != nil {
				if !errors.Is(err, errNoCapacity) {
					p.log.Warn("replenishment failed",
						zap.String("agent_type", sp.agentType),
						zap.Error(err))
				}
				return nil
			}
			if p.commitAvailable(gctx, sp, e) {
				created.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := int(created.Load()); n > 0 {
		p.bus.Publish(Event{Type: EventPoolExpanded, AgentType: sp.agentType, Count: n})
		p.log.Info("sub-pool replenished",
			zap.String("agent_type", sp.agentType),
			zap.Int("count", n))
		p.dispatch(sp)
	}
}
