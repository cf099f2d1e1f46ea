// Package qaforge provides a pooled runtime for quality-engineering agents:
// AI-assisted workers that generate tests, scan for accessibility issues,
// run performance probes, and score change risk.
//
// Spinning an agent up from nothing costs seconds (process launch, model
// context priming, browser or toolchain warmup). QAForge keeps initialized
// agents warm in per-type sub-pools so an analysis request is served in
// milliseconds by leasing an existing instance instead of building one.
//
// # Architecture
//
// The pool is organized around four guarantees:
//
// 1. Bounded growth: each agent type has a min/max size and the whole pool
// has a global ceiling; capacity is reserved atomically before any instance
// is created.
//
// 2. Strict lifecycle: every pooled entry moves through
// initializing -> available -> in_use -> resetting -> available, with disposal
// reachable from any live state and illegal transitions treated as
// programming errors.
//
// 3. Priority backpressure: when a type is exhausted, requests wait in a
// priority queue (FIFO among equals) with a per-request timeout.
//
// 4. Health-driven recovery: a background sweep evicts unhealthy and idle
// instances and replenishes types back to their minimum size.
//
// # Quick Start
//
//	import (
//	    "context"
//
//	    "github.com/qaforge/qaforge/pkg/agent"
//	    "github.com/qaforge/qaforge/pkg/pool"
//	)
//
//	cfg := pool.DefaultConfig()
//	cfg.Types[agent.TypeTestGenerator] = pool.TypePoolConfig{
//	    MinSize: 2, MaxSize: 8, WarmupCount: 2, GrowthIncrement: 2,
//	}
//
//	p, err := pool.New(cfg, agent.NewRegistryFactory(nil), nil)
//	if err != nil {
//	    return err
//	}
//	if err := p.Warmup(context.Background()); err != nil {
//	    return err
//	}
//	defer p.Shutdown(context.Background())
//
//	lease, err := p.Acquire(ctx, agent.TypeTestGenerator)
//	if err != nil {
//	    return err
//	}
//	defer p.Release(ctx, lease.PoolID)
//
// # Key Packages
//
//	pkg/pool          - Agent pool: acquire/release, growth, backpressure, health
//	pkg/agent         - Agent contracts, capability matching, type registry
//	pkg/config        - YAML configuration with QAFORGE_ environment overrides
//	pkg/metrics       - Prometheus metrics driven by the pool's event bus
//	pkg/observability - Tracing setup and host resource sampling
//	pkg/qaerrors      - Structured error handling with propagation categories
//	pkg/logger        - Structured logging
//	pkg/testutil      - Fake agents and factories for tests
//
// # Observability
//
// The pool publishes typed events (agent:created, agent:acquired,
// agent:released, agent:disposed, agent:error, pool:warmed, pool:exhausted,
// pool:expanded, pool:healthCheck) on a non-blocking bus. The metrics
// package bridges the bus into Prometheus, and every acquire/release carries
// an OpenTelemetry span.
package qaforge
