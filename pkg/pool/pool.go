// Package pool manages pre-allocated, reusable agent instances grouped by
// type, so that acquiring a ready-to-use agent costs milliseconds instead of
// full construction and initialization on every request.
//
// The pool enforces bounded growth with global and per-type caps, applies
// priority-ordered backpressure when a type is exhausted, evicts idle and
// unhealthy instances on a background sweep, and drives every entry through a
// strict lifecycle state machine. Observability events are published on a
// typed bus for external collectors.
//
// Example:
//
//	p, err := pool.New(pool.DefaultConfig(), factory, nil)
//	if err != nil {
//	    return err
//	}
//	if err := p.Warmup(ctx); err != nil {
//	    return err
//	}
//
//	lease, err := p.Acquire(ctx, "test-generator")
//	if err != nil {
//	    return err
//	}
//	defer p.Release(ctx, lease.PoolID)
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qaforge/qaforge/pkg/agent"
	"github.com/qaforge/qaforge/pkg/logger"
	"github.com/qaforge/qaforge/pkg/qaerrors"
)

// errNoCapacity is an internal sentinel: the growth path found both the
// per-type and global caps exhausted.
var errNoCapacity = errors.New("pool: no capacity")

// AcquireOptions tunes a single acquire request. The zero value gives the
// default behavior: wait up to DefaultAcquireTimeout at priority 0 with no
// capability requirements.
type AcquireOptions struct {
	// Timeout bounds the time spent waiting in the queue. Zero means
	// DefaultAcquireTimeout.
	Timeout time.Duration
	// NoWait fails immediately with an exhaustion error instead of queueing
	// when no capacity exists.
	NoWait bool
	// Priority orders waiting requests; higher values are served first,
	// FIFO among equals.
	Priority int
	// RequiredCapabilities restricts the request to instances advertising
	// all of the listed capabilities.
	RequiredCapabilities []string
}

// ReleaseOptions tunes a single release. Use DefaultReleaseOptions as the
// starting point; the zero value skips the reset step.
type ReleaseOptions struct {
	// Reset runs the instance's reset before returning it to the pool. When
	// false, the entry goes straight back to available on the caller's
	// assertion of cleanliness.
	Reset bool
	// HasError marks the lease as having failed; the instance is disposed
	// rather than reused.
	HasError bool
	// Dispose removes the instance from the pool regardless of health.
	Dispose bool
}

// DefaultReleaseOptions returns the standard release behavior: reset and
// return to the pool.
func DefaultReleaseOptions() ReleaseOptions {
	return ReleaseOptions{Reset: true}
}

// Lease is the exclusive right to use one pooled agent. The holder must call
// Release with the lease's PoolID exactly once; the pool performs no
// automatic reclamation of abandoned leases.
type Lease struct {
	// Agent is the leased instance.
	Agent agent.Agent
	// PoolID identifies the lease for Release.
	PoolID string
	// AgentType is the type the instance belongs to.
	AgentType string
	// FromPool is true when the instance was reused from the pool rather
	// than created for this request.
	FromPool bool
	// AcquisitionTime is how long the acquire took end to end.
	AcquisitionTime time.Duration
	// Meta is a snapshot of the entry's metadata at hand-off.
	Meta EntryMeta
}

// subPool is the set of entries for one agent type plus its waiting queue.
// mu serializes all state mutation for the type; it is never held across a
// factory call or an instance reset.
type subPool struct {
	agentType string
	cfg       TypePoolConfig

	mu      sync.Mutex
	entries []*pooledEntry
	queue   waitQueue

	replenishing atomic.Bool
}

// countLocked tallies entries by state. Callers must hold sp.mu.
func (sp *subPool) countLocked() (available, inUse, initializing, resetting int) {
	for _, e := range sp.entries {
		switch e.state {
		case StateAvailable:
			available++
		case StateInUse:
			inUse++
		case StateInitializing:
			initializing++
		case StateResetting:
			resetting++
		}
	}
	return
}

// Pool is the orchestrator that owns every pooled agent instance except
// during the in-use window of a lease. A single Pool serves many concurrent
// callers; each agent type's bookkeeping is independently serialized.
type Pool struct {
	cfg     Config
	factory agent.Factory
	log     *zap.Logger
	bus     *Bus
	tracer  trace.Tracer

	mu       sync.RWMutex
	subPools map[string]*subPool
	byID     map[string]*pooledEntry

	total    atomic.Int64
	draining atomic.Bool

	monitor     atomic.Pointer[healthMonitor]
	monitorOnce sync.Once

	acquisitions atomic.Int64
	misses       atomic.Int64
	acquireNanos atomic.Int64
}

// New creates a pool with the given configuration and factory. A nil log
// falls back to the global logger. The pool starts empty; call Warmup to
// pre-create instances and start the health monitor.
func New(cfg Config, factory agent.Factory, log *zap.Logger) (*Pool, error) {
	if cfg.WarmupStrategy == "" {
		cfg.WarmupStrategy = WarmupEager
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, qaerrors.New(qaerrors.ErrorTypeValidation, "factory is required")
	}
	if log == nil {
		log = logger.Get()
	}

	return &Pool{
		cfg:      cfg,
		factory:  factory,
		log:      log.With(zap.String("component", "agent_pool")),
		bus:      NewBus(),
		tracer:   otel.Tracer("github.com/qaforge/qaforge/pkg/pool"),
		subPools: make(map[string]*subPool),
		byID:     make(map[string]*pooledEntry),
	}, nil
}

// Events returns the pool's event bus.
func (p *Pool) Events() *Bus {
	return p.bus
}

// subPool returns the sub-pool for an agent type, creating it on first use
// with the type's configured (or default) policy.
func (p *Pool) subPool(agentType string) *subPool {
	p.mu.RLock()
	sp, ok := p.subPools[agentType]
	p.mu.RUnlock()
	if ok {
		return sp
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if sp, ok = p.subPools[agentType]; ok {
		return sp
	}
	sp = &subPool{
		agentType: agentType,
		cfg:       p.cfg.typeConfig(agentType),
	}
	p.subPools[agentType] = sp
	return sp
}

// reserveSlot claims one unit of global capacity, failing when the global
// ceiling is reached.
func (p *Pool) reserveSlot() bool {
	if p.cfg.GlobalMaxAgents <= 0 {
		p.total.Add(1)
		return true
	}
	for {
		cur := p.total.Load()
		if cur >= int64(p.cfg.GlobalMaxAgents) {
			return false
		}
		if p.total.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

func (p *Pool) releaseSlot() {
	p.total.Add(-1)
}

// Warmup pre-creates the configured number of entries for the given types,
// or for every configured type when none are named. Creation is parallel;
// initialization runs eagerly only under the eager warmup strategy for types
// that request pre-initialization. Warmup also starts the health monitor
// when a check interval is configured.
func (p *Pool) Warmup(ctx context.Context, types ...string) error {
	if p.draining.Load() {
		return qaerrors.New(qaerrors.ErrorTypeShuttingDown, "pool is shutting down")
	}
	ctx, span := p.tracer.Start(ctx, "pool.warmup")
	defer span.End()

	if len(types) == 0 {
		types = p.cfg.configuredTypes()
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, agentType := range types {
		sp := p.subPool(agentType)
		initialize := p.cfg.WarmupStrategy == WarmupEager && sp.cfg.PreInitialize
		warmed := new(atomic.Int64)

		for i := 0; i < sp.cfg.WarmupCount; i++ {
			g.Go(func() error {
				e, err := p.spawn(gctx, sp, initialize)
				if err != nil {
					if errors.Is(err, errNoCapacity) {
						return nil
					}
					return err
				}
				if p.commitAvailable(gctx, sp, e) {
					warmed.Add(1)
				}
				return nil
			})
		}

		// Capture for the per-type event after the group finishes.
		agentType := agentType
		defer func() {
			p.bus.Publish(Event{Type: EventPoolWarmed, AgentType: agentType, Count: int(warmed.Load())})
			p.log.Info("sub-pool warmed",
				zap.String("agent_type", agentType),
				zap.Int64("count", warmed.Load()))
		}()
	}

	if err := g.Wait(); err != nil {
		return qaerrors.Wrap(err, qaerrors.ErrorTypeInitialization, "warmup failed")
	}

	if p.cfg.HealthCheckInterval > 0 {
		p.monitorOnce.Do(func() {
			m := newHealthMonitor(p, p.cfg.HealthCheckInterval)
			p.monitor.Store(m)
			m.start()
		})
	}
	return nil
}

// spawn reserves capacity and creates a new entry, optionally running the
// expensive initialization step. The returned entry is registered and in the
// initializing state; the caller commits it to available or in-use. Returns
// errNoCapacity when the per-type or global cap blocks creation.
func (p *Pool) spawn(ctx context.Context, sp *subPool, initialize bool) (*pooledEntry, error) {
	sp.mu.Lock()
	if len(sp.entries) >= sp.cfg.MaxSize {
		sp.mu.Unlock()
		return nil, errNoCapacity
	}
	if !p.reserveSlot() {
		sp.mu.Unlock()
		return nil, errNoCapacity
	}
	e := &pooledEntry{
		poolID:    uuid.NewString(),
		agentType: sp.agentType,
		state:     StateInitializing,
		createdAt: time.Now(),
		sp:        sp,
	}
	sp.entries = append(sp.entries, e)
	sp.mu.Unlock()

	p.mu.Lock()
	p.byID[e.poolID] = e
	p.mu.Unlock()

	instance, err := p.factory.Create(ctx, sp.agentType)
	if err != nil {
		p.retireEntry(e)
		return nil, qaerrors.Wrap(err, qaerrors.ErrorTypeInitialization, "agent creation failed").
			WithDetail("agent_type", sp.agentType)
	}
	sp.mu.Lock()
	e.instance = instance
	sp.mu.Unlock()

	if initialize {
		if err := p.factory.Initialize(ctx, instance); err != nil {
			if owned := p.claimInstance(e); owned != nil {
				p.disposeInstance(ctx, owned, sp.agentType)
			}
			p.retireEntry(e)
			return nil, qaerrors.Wrap(err, qaerrors.ErrorTypeInitialization, "agent initialization failed").
				WithDetail("agent_type", sp.agentType).
				WithDetail("agent_id", instance.ID())
		}
		sp.mu.Lock()
		e.isInitialized = true
		sp.mu.Unlock()
	}

	sp.mu.Lock()
	live := e.state == StateInitializing
	initialized := e.isInitialized
	sp.mu.Unlock()
	if live {
		p.bus.Publish(Event{Type: EventAgentCreated, AgentType: sp.agentType, PoolID: e.poolID})
		p.log.Debug("agent created",
			zap.String("agent_type", sp.agentType),
			zap.String("pool_id", e.poolID),
			zap.Bool("initialized", initialized))
	}
	return e, nil
}

// claimInstance takes sole disposal ownership of the entry's instance.
// Exactly one claimant gets the non-nil instance; every other path sees nil
// and must not dispose. Shutdown tearing down an in-flight spawn and the
// spawner's own failure or commit path race for the same instance, and the
// factory contract is one dispose per instance.
func (p *Pool) claimInstance(e *pooledEntry) agent.Agent {
	e.sp.mu.Lock()
	instance := e.instance
	e.instance = nil
	e.sp.mu.Unlock()
	return instance
}

// commitAvailable flips a freshly spawned entry to available. Returns false
// when shutdown claimed the entry first; whichever side wins the instance
// claim disposes it exactly once.
func (p *Pool) commitAvailable(ctx context.Context, sp *subPool, e *pooledEntry) bool {
	sp.mu.Lock()
	if e.state != StateInitializing {
		instance := e.instance
		e.instance = nil
		sp.mu.Unlock()
		if instance != nil {
			p.disposeInstance(ctx, instance, sp.agentType)
		}
		return false
	}
	e.setState(StateAvailable)
	sp.mu.Unlock()
	return true
}

// Acquire leases an agent of the given type with default options.
func (p *Pool) Acquire(ctx context.Context, agentType string) (*Lease, error) {
	return p.AcquireWithOptions(ctx, agentType, AcquireOptions{})
}

// AcquireWithOptions leases an agent of the given type. It first reuses an
// available healthy instance, then grows the sub-pool under the caps, and
// finally queues the request (unless NoWait) until a slot frees or the
// timeout fires.
func (p *Pool) AcquireWithOptions(ctx context.Context, agentType string, opts AcquireOptions) (*Lease, error) {
	if p.draining.Load() {
		return nil, qaerrors.New(qaerrors.ErrorTypeShuttingDown, "pool is shutting down")
	}

	start := time.Now()
	ctx, span := p.tracer.Start(ctx, "pool.acquire", trace.WithAttributes(
		attribute.String("agent.type", agentType),
		attribute.Int("acquire.priority", opts.Priority),
	))
	defer span.End()

	sp := p.subPool(agentType)

	// Fast path: first healthy available entry, no LRU/MRU guarantee.
	lease, err := p.tryAcquireAvailable(ctx, sp, opts.RequiredCapabilities)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if lease != nil {
		p.finishAcquire(span, lease, start, false)
		return lease, nil
	}

	// Growth path: create under the caps.
	lease, growErr := p.tryGrow(ctx, sp)
	if lease != nil {
		p.finishAcquire(span, lease, start, true)
		return lease, nil
	}
	if growErr != nil && !errors.Is(growErr, errNoCapacity) {
		// Creation or initialization failed. Queueing remains a fallback
		// when the caller is willing to wait; otherwise the failure is
		// theirs.
		if opts.NoWait {
			span.RecordError(growErr)
			return nil, growErr
		}
		p.log.Warn("growth path failed, falling back to wait queue",
			zap.String("agent_type", agentType),
			zap.Error(growErr))
	}

	// Backpressure path.
	p.bus.Publish(Event{Type: EventPoolExhausted, AgentType: agentType})
	if opts.NoWait {
		err := qaerrors.Newf(qaerrors.ErrorTypeExhausted, "no capacity for agent type %q", agentType).
			WithDetail("max_size", sp.cfg.MaxSize).
			WithDetail("global_max", p.cfg.GlobalMaxAgents)
		span.RecordError(err)
		return nil, err
	}

	lease, err = p.waitForSlot(ctx, sp, opts, start)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	// A queued acquire is a miss even when the eventual lease reuses an
	// instance: the fast path produced nothing.
	p.finishAcquire(span, lease, start, true)
	return lease, nil
}

// finishAcquire stamps latency, records hit/miss accounting, and emits the
// acquired event.
func (p *Pool) finishAcquire(span trace.Span, lease *Lease, start time.Time, miss bool) {
	lease.AcquisitionTime = time.Since(start)
	p.acquisitions.Add(1)
	if miss {
		p.misses.Add(1)
	}
	p.acquireNanos.Add(lease.AcquisitionTime.Nanoseconds())

	span.SetAttributes(
		attribute.Bool("acquire.from_pool", lease.FromPool),
		attribute.String("acquire.pool_id", lease.PoolID),
	)
	p.bus.Publish(Event{
		Type:      EventAgentAcquired,
		AgentType: lease.AgentType,
		PoolID:    lease.PoolID,
		Duration:  lease.AcquisitionTime,
	})
	p.log.Debug("agent acquired",
		zap.String("agent_type", lease.AgentType),
		zap.String("pool_id", lease.PoolID),
		zap.Bool("from_pool", lease.FromPool),
		zap.Duration("acquisition_time", lease.AcquisitionTime))
}

// tryAcquireAvailable scans for the first available entry that passes the
// liveness check and capability filter. Unhealthy entries are disposed and
// the scan continues; an uninitialized entry is initialized here, and an
// initialization failure likewise disposes it and continues the scan.
func (p *Pool) tryAcquireAvailable(ctx context.Context, sp *subPool, requiredCaps []string) (*Lease, error) {
	for {
		sp.mu.Lock()
		var candidate *pooledEntry
		for _, e := range sp.entries {
			if e.state == StateAvailable && agent.HasCapabilities(e.instance, requiredCaps) {
				candidate = e
				break
			}
		}
		if candidate == nil {
			sp.mu.Unlock()
			return nil, nil
		}

		if !candidate.instance.IsHealthy() {
			candidate.setState(StateDisposing)
			sp.mu.Unlock()
			p.disposeEntry(ctx, candidate, DisposeReasonUnhealthy, true)
			continue
		}

		if !candidate.isInitialized {
			candidate.setState(StateInitializing)
			sp.mu.Unlock()
			if err := p.factory.Initialize(ctx, candidate.instance); err != nil {
				p.bus.Publish(Event{Type: EventAgentError, AgentType: sp.agentType, PoolID: candidate.poolID, Err: err})
				p.log.Warn("deferred initialization failed",
					zap.String("agent_type", sp.agentType),
					zap.String("pool_id", candidate.poolID),
					zap.Error(err))
				sp.mu.Lock()
				if candidate.state == StateInitializing {
					candidate.lastError = err
					candidate.setState(StateDisposing)
					sp.mu.Unlock()
					p.disposeEntry(ctx, candidate, DisposeReasonInitFailed, true)
				} else {
					sp.mu.Unlock()
				}
				continue
			}
			sp.mu.Lock()
			if candidate.state != StateInitializing {
				// Shutdown claimed the entry while it initialized.
				sp.mu.Unlock()
				return nil, qaerrors.New(qaerrors.ErrorTypeShuttingDown, "pool is shutting down")
			}
			candidate.isInitialized = true
		}

		candidate.setState(StateInUse)
		candidate.lastAcquiredAt = time.Now()
		lease := &Lease{
			Agent:     candidate.instance,
			PoolID:    candidate.poolID,
			AgentType: candidate.agentType,
			FromPool:  true,
			Meta:      candidate.meta(),
		}
		sp.mu.Unlock()
		return lease, nil
	}
}

// tryGrow creates and initializes a new entry under the caps, handing it
// straight to the caller.
func (p *Pool) tryGrow(ctx context.Context, sp *subPool) (*Lease, error) {
	e, err := p.spawn(ctx, sp, true)
	if err != nil {
		return nil, err
	}

	sp.mu.Lock()
	if e.state != StateInitializing {
		instance := e.instance
		e.instance = nil
		sp.mu.Unlock()
		if instance != nil {
			p.disposeInstance(ctx, instance, sp.agentType)
		}
		return nil, qaerrors.New(qaerrors.ErrorTypeShuttingDown, "pool is shutting down")
	}
	e.setState(StateInUse)
	e.lastAcquiredAt = time.Now()
	lease := &Lease{
		Agent:     e.instance,
		PoolID:    e.poolID,
		AgentType: e.agentType,
		FromPool:  false,
		Meta:      e.meta(),
	}
	sp.mu.Unlock()
	return lease, nil
}

// waitForSlot parks the request in the type's priority queue until a release
// frees a slot, the timeout fires, the context is canceled, or the pool
// shuts down.
func (p *Pool) waitForSlot(ctx context.Context, sp *subPool, opts AcquireOptions, start time.Time) (*Lease, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}

	req := newWaitingRequest(sp.agentType, opts.Priority, opts.RequiredCapabilities)

	sp.mu.Lock()
	if p.draining.Load() {
		sp.mu.Unlock()
		return nil, qaerrors.New(qaerrors.ErrorTypeShuttingDown, "pool is shutting down")
	}
	// The timer is armed before the request is visible to dispatchers, so
	// req.timer is never written concurrently with a resolve.
	req.timer = time.AfterFunc(timeout, func() {
		sp.mu.Lock()
		switch req.status {
		case waitQueued:
			sp.queue.remove(req)
			req.status = waitDone
			sp.mu.Unlock()
			req.result <- waitResult{err: qaerrors.Newf(qaerrors.ErrorTypeAcquireTimeout,
				"acquire timed out after %s waiting for agent type %q", timeout, sp.agentType).
				WithDetail("priority", req.priority)}
		case waitDispatching:
			// The dispatcher owns the request; let it observe the timeout.
			req.timedOut = true
			sp.mu.Unlock()
		default:
			sp.mu.Unlock()
		}
	})
	sp.queue.push(req)
	sp.mu.Unlock()

	select {
	case res := <-req.result:
		if res.err != nil {
			return nil, res.err
		}
		return res.lease, nil
	case <-ctx.Done():
		sp.mu.Lock()
		if req.status == waitQueued {
			sp.queue.remove(req)
			req.status = waitDone
			sp.mu.Unlock()
			req.timer.Stop()
			return nil, qaerrors.Wrap(ctx.Err(), qaerrors.ErrorTypeAcquireTimeout, "acquire canceled while waiting").
				WithDetail("agent_type", sp.agentType)
		}
		sp.mu.Unlock()
		// Resolution is in flight; take it. A lease the caller no longer
		// wants goes straight back.
		res := <-req.result
		if res.lease != nil {
			p.Release(context.Background(), res.lease.PoolID)
		}
		if res.err != nil {
			return nil, res.err
		}
		return nil, qaerrors.Wrap(ctx.Err(), qaerrors.ErrorTypeAcquireTimeout, "acquire canceled while waiting").
			WithDetail("agent_type", sp.agentType)
	}
}

// dispatch serves waiting requests from available entries. It runs as a side
// effect of releases and replenishment; there is no periodic queue sweep. A
// request whose claimed entry fails liveness or initialization is reinserted
// at the queue head.
func (p *Pool) dispatch(sp *subPool) {
	ctx := context.Background()
	for {
		sp.mu.Lock()
		if sp.queue.len() == 0 {
			sp.mu.Unlock()
			return
		}

		// Oldest eligible waiter: first in priority order with a matching
		// available entry.
		var req *waitingRequest
		var entry *pooledEntry
		reqIdx := -1
		for i, r := range sp.queue.items {
			for _, e := range sp.entries {
				if e.state == StateAvailable && agent.HasCapabilities(e.instance, r.requiredCaps) {
					req, entry, reqIdx = r, e, i
					break
				}
			}
			if req != nil {
				break
			}
		}
		if req == nil {
			// No available entry matches any waiter. Disposal may have freed
			// capacity, so try to grow for the head of the queue.
			req = sp.queue.popAt(0)
			req.status = waitDispatching
			sp.mu.Unlock()
			if !p.growForWaiter(ctx, sp, req) {
				return
			}
			continue
		}

		sp.queue.popAt(reqIdx)
		req.status = waitDispatching

		if !entry.instance.IsHealthy() {
			entry.setState(StateDisposing)
			p.settleFailedDispatch(sp, req)
			sp.mu.Unlock()
			p.disposeEntry(ctx, entry, DisposeReasonUnhealthy, true)
			continue
		}

		if !entry.isInitialized {
			entry.setState(StateInitializing)
			sp.mu.Unlock()
			if err := p.factory.Initialize(ctx, entry.instance); err != nil {
				p.bus.Publish(Event{Type: EventAgentError, AgentType: sp.agentType, PoolID: entry.poolID, Err: err})
				sp.mu.Lock()
				claimed := entry.state == StateInitializing
				if claimed {
					entry.lastError = err
					entry.setState(StateDisposing)
				}
				p.settleFailedDispatch(sp, req)
				sp.mu.Unlock()
				if claimed {
					p.disposeEntry(ctx, entry, DisposeReasonInitFailed, true)
				}
				continue
			}
			sp.mu.Lock()
			if entry.state != StateInitializing {
				p.settleFailedDispatch(sp, req)
				sp.mu.Unlock()
				continue
			}
			entry.isInitialized = true
		}

		entry.setState(StateInUse)
		entry.lastAcquiredAt = time.Now()
		lease := &Lease{
			Agent:     entry.instance,
			PoolID:    entry.poolID,
			AgentType: entry.agentType,
			FromPool:  true,
			Meta:      entry.meta(),
		}
		req.status = waitDone
		sp.mu.Unlock()
		req.resolve(waitResult{lease: lease})
	}
}

// growForWaiter creates a fresh instance for a dispatched waiter when no
// pooled entry matched. Returns true when the waiter got a lease and the
// dispatch loop should keep going; false when the sub-pool is out of
// capacity (the waiter is re-queued) or creation failed (retried on the
// next release).
func (p *Pool) growForWaiter(ctx context.Context, sp *subPool, req *waitingRequest) bool {
	e, err := p.spawn(ctx, sp, true)
	if err != nil {
		if !errors.Is(err, errNoCapacity) {
			p.log.Warn("growth for waiter failed",
				zap.String("agent_type", sp.agentType),
				zap.Error(err))
		}
		sp.mu.Lock()
		p.settleFailedDispatch(sp, req)
		sp.mu.Unlock()
		return false
	}

	sp.mu.Lock()
	if e.state != StateInitializing {
		// Shutdown claimed the placeholder while the instance was built.
		instance := e.instance
		e.instance = nil
		p.settleFailedDispatch(sp, req)
		sp.mu.Unlock()
		if instance != nil {
			p.disposeInstance(ctx, instance, sp.agentType)
		}
		return false
	}
	e.setState(StateInUse)
	e.lastAcquiredAt = time.Now()
	lease := &Lease{
		Agent:     e.instance,
		PoolID:    e.poolID,
		AgentType: e.agentType,
		FromPool:  false,
		Meta:      e.meta(),
	}
	req.status = waitDone
	sp.mu.Unlock()
	req.resolve(waitResult{lease: lease})
	return true
}

// settleFailedDispatch decides what happens to a waiter whose claimed entry
// fell through. Callers must hold sp.mu. The request is re-queued at the
// head unless its timeout fired or the pool is draining, in which case it is
// resolved with the matching error.
func (p *Pool) settleFailedDispatch(sp *subPool, req *waitingRequest) {
	switch {
	case req.timedOut:
		req.status = waitDone
		req.resolve(waitResult{err: qaerrors.Newf(qaerrors.ErrorTypeAcquireTimeout,
			"acquire timed out waiting for agent type %q", sp.agentType)})
	case p.draining.Load():
		req.status = waitDone
		req.resolve(waitResult{err: qaerrors.New(qaerrors.ErrorTypeShuttingDown, "pool is shutting down")})
	default:
		req.status = waitQueued
		sp.queue.pushFront(req)
	}
}

// Release returns a leased agent to the pool with default options (reset and
// reuse).
func (p *Pool) Release(ctx context.Context, poolID string) {
	p.ReleaseWithOptions(ctx, poolID, DefaultReleaseOptions())
}

// ReleaseWithOptions returns a leased agent to the pool. Release is
// best-effort cleanup: an unknown pool ID or a non-leased entry is a logged
// no-op, and reset failures dispose the instance rather than surfacing to
// the caller.
func (p *Pool) ReleaseWithOptions(ctx context.Context, poolID string, opts ReleaseOptions) {
	ctx, span := p.tracer.Start(ctx, "pool.release", trace.WithAttributes(
		attribute.String("acquire.pool_id", poolID),
	))
	defer span.End()

	p.mu.RLock()
	e := p.byID[poolID]
	p.mu.RUnlock()
	if e == nil {
		p.log.Debug("release of unknown pool id", zap.String("pool_id", poolID))
		return
	}
	sp := e.sp

	sp.mu.Lock()
	if e.state != StateInUse {
		state := e.state
		sp.mu.Unlock()
		p.log.Debug("release of entry not in use",
			zap.String("pool_id", poolID),
			zap.String("state", string(state)))
		return
	}

	now := time.Now()
	if !e.lastAcquiredAt.IsZero() {
		e.totalUseTime += now.Sub(e.lastAcquiredAt)
	}
	e.lastReleasedAt = now

	if opts.Dispose || opts.HasError {
		e.setState(StateDisposing)
		sp.mu.Unlock()
		reason := DisposeReasonExplicit
		if opts.HasError {
			reason = DisposeReasonError
		}
		p.disposeEntry(ctx, e, reason, true)
		// The freed slot can serve a queued waiter through growth.
		p.dispatch(sp)
		return
	}

	if opts.Reset {
		e.setState(StateResetting)
		sp.mu.Unlock()

		if err := e.instance.Reset(ctx); err != nil {
			// A reset failure is fatal to the instance, not the pool.
			p.bus.Publish(Event{Type: EventAgentError, AgentType: e.agentType, PoolID: e.poolID, Err: err})
			p.log.Warn("agent reset failed, disposing",
				zap.String("agent_type", e.agentType),
				zap.String("pool_id", e.poolID),
				zap.Error(err))
			sp.mu.Lock()
			if e.state == StateResetting {
				e.lastError = err
				e.setState(StateDisposing)
				sp.mu.Unlock()
				p.disposeEntry(ctx, e, DisposeReasonResetFailed, true)
				p.dispatch(sp)
			} else {
				sp.mu.Unlock()
			}
			return
		}

		sp.mu.Lock()
		if e.state != StateResetting {
			sp.mu.Unlock()
			return
		}
		e.reuseCount++
		e.lastError = nil
		e.setState(StateAvailable)
		sp.mu.Unlock()
	} else {
		// No reset requested: trust the caller's assertion of cleanliness.
		e.setState(StateAvailable)
		sp.mu.Unlock()
	}

	p.bus.Publish(Event{Type: EventAgentReleased, AgentType: e.agentType, PoolID: e.poolID})
	p.log.Debug("agent released",
		zap.String("agent_type", e.agentType),
		zap.String("pool_id", e.poolID))

	p.dispatch(sp)
}

// disposeEntry tears an entry down after its state was set to disposing
// under the sub-pool lock. Dispose failures are swallowed and logged;
// disposal runs in batch cleanup paths where one failure must not block the
// rest. When replenish is set and the type falls below its minimum, a
// background replenishment pass restores it.
func (p *Pool) disposeEntry(ctx context.Context, e *pooledEntry, reason string, replenish bool) {
	if instance := p.claimInstance(e); instance != nil {
		p.disposeInstance(ctx, instance, e.agentType)
	}
	if !p.retireEntry(e) {
		return
	}

	p.bus.Publish(Event{Type: EventAgentDisposed, AgentType: e.agentType, PoolID: e.poolID, Reason: reason})
	p.log.Debug("agent disposed",
		zap.String("agent_type", e.agentType),
		zap.String("pool_id", e.poolID),
		zap.String("reason", reason))

	if replenish && !p.draining.Load() {
		go p.replenish(e.sp)
	}
}

// disposeInstance calls the factory's dispose, swallowing and logging any
// failure.
func (p *Pool) disposeInstance(ctx context.Context, instance agent.Agent, agentType string) {
	if err := p.factory.Dispose(ctx, instance); err != nil {
		p.bus.Publish(Event{Type: EventAgentError, AgentType: agentType, Err: err})
		p.log.Warn("agent dispose failed",
			zap.String("agent_type", agentType),
			zap.String("agent_id", instance.ID()),
			zap.Error(err))
	}
}

// retireEntry deletes the entry from all bookkeeping and frees its global
// capacity slot, exactly once. Returns false if another path (shutdown
// racing an in-flight creation) retired it first.
func (p *Pool) retireEntry(e *pooledEntry) bool {
	sp := e.sp
	sp.mu.Lock()
	if e.retired {
		sp.mu.Unlock()
		return false
	}
	e.retired = true
	for i, existing := range sp.entries {
		if existing == e {
			sp.entries = append(sp.entries[:i], sp.entries[i+1:]...)
			break
		}
	}
	sp.mu.Unlock()

	p.mu.Lock()
	delete(p.byID, e.poolID)
	p.mu.Unlock()

	p.releaseSlot()
	return true
}

// Shutdown drains the pool: every queued waiter is rejected, every entry is
// disposed in parallel, and all bookkeeping is cleared. Shutdown is
// idempotent.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.draining.CompareAndSwap(false, true) {
		return nil
	}
	p.log.Info("pool shutting down", zap.Int64("total_agents", p.total.Load()))

	// Burn the once so a warmup racing this shutdown cannot start the
	// monitor afterwards; if warmup won, its store is visible once Do
	// returns.
	p.monitorOnce.Do(func() {})
	if m := p.monitor.Load(); m != nil {
		m.stop()
	}

	p.mu.RLock()
	sps := make([]*subPool, 0, len(p.subPools))
	for _, sp := range p.subPools {
		sps = append(sps, sp)
	}
	p.mu.RUnlock()

	var toDispose []*pooledEntry
	for _, sp := range sps {
		sp.mu.Lock()
		for _, req := range sp.queue.drain() {
			req.status = waitDone
			req.resolve(waitResult{err: qaerrors.New(qaerrors.ErrorTypeShuttingDown, "pool is shutting down")})
		}
		for _, e := range sp.entries {
			if e.state != StateDisposing {
				e.setState(StateDisposing)
				toDispose = append(toDispose, e)
			}
		}
		sp.entries = nil
		sp.mu.Unlock()
	}

	g := new(errgroup.Group)
	g.SetLimit(8)
	for _, e := range toDispose {
		g.Go(func() error {
			p.disposeEntry(ctx, e, DisposeReasonShutdown, false)
			return nil
		})
	}
	_ = g.Wait()

	p.bus.Close()
	p.log.Info("pool shut down")
	return nil
}

// Stats computes an on-demand snapshot of the pool.
func (p *Pool) Stats() Stats {
	stats := Stats{Types: make(map[string]TypeStats)}

	p.mu.RLock()
	sps := make([]*subPool, 0, len(p.subPools))
	for _, sp := range p.subPools {
		sps = append(sps, sp)
	}
	p.mu.RUnlock()

	for _, sp := range sps {
		sp.mu.Lock()
		available, inUse, initializing, resetting := sp.countLocked()
		var reuse int64
		for _, e := range sp.entries {
			reuse += e.reuseCount
		}
		ts := TypeStats{
			Available:    available,
			InUse:        inUse,
			Initializing: initializing,
			Resetting:    resetting,
			Waiting:      sp.queue.len(),
			MaxSize:      sp.cfg.MaxSize,
			MinSize:      sp.cfg.MinSize,
		}
		if n := len(sp.entries); n > 0 {
			ts.AvgReuse = float64(reuse) / float64(n)
		}
		sp.mu.Unlock()

		stats.Types[sp.agentType] = ts
		stats.TotalAgents += available + inUse + initializing + resetting
	}

	stats.Acquisitions = p.acquisitions.Load()
	stats.Misses = p.misses.Load()
	if stats.Acquisitions > 0 {
		stats.HitRate = float64(stats.Acquisitions-stats.Misses) / float64(stats.Acquisitions)
		stats.AvgAcquireTimeMs = float64(p.acquireNanos.Load()) / float64(stats.Acquisitions) / 1e6
	}
	return stats
}
