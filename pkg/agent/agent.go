// Package agent defines the contracts between the QAForge runtime and the
// concrete quality-engineering agents it pools. The pool owns agent instances
// through these interfaces only; what a test generator or accessibility
// scanner actually does lives behind them.
package agent

import "context"

// Agent is the minimal contract every pooled instance must satisfy.
// Implementations wrap a concrete agent type in a thin adapter that can
// restore the instance to a clean state between leases.
type Agent interface {
	// ID returns the instance identity. It is stable for the lifetime of the
	// instance and distinct from the pool's own lease identifier.
	ID() string

	// Type returns the agent type this instance belongs to, e.g.
	// "test-generator" or "a11y-scanner".
	Type() string

	// Reset restores the instance to a clean, reusable state. It must fail
	// loudly if cleanliness cannot be guaranteed; the pool treats a reset
	// failure as fatal for the instance, not for the pool.
	Reset(ctx context.Context) error

	// IsHealthy reports whether the instance can serve work. It must be fast
	// and must never panic; it is called on every hand-off.
	IsHealthy() bool
}

// CapabilityReporter is an optional interface for agents that advertise
// capabilities. When an acquire request names required capabilities, the pool
// skips available instances that do not report all of them.
type CapabilityReporter interface {
	Capabilities() []string
}

// Factory builds, initializes, and tears down agent instances on behalf of
// the pool. Create must be cheap (no heavy I/O); the expensive work belongs
// in Initialize, which the pool may defer until first acquisition.
type Factory interface {
	// Create constructs a new instance of the given agent type.
	Create(ctx context.Context, agentType string) (Agent, error)

	// Initialize performs the expensive setup step for an instance. It must
	// tolerate being skipped until first use.
	Initialize(ctx context.Context, a Agent) error

	// Dispose releases an instance's resources. Dispose runs in batch cleanup
	// paths where one failure must not block the rest; the pool swallows and
	// logs any error it returns.
	Dispose(ctx context.Context, a Agent) error
}

// HasCapabilities reports whether a satisfies every capability in required.
// Agents that do not implement CapabilityReporter satisfy only an empty
// requirement set.
func HasCapabilities(a Agent, required []string) bool {
	if len(required) == 0 {
		return true
	}
	reporter, ok := a.(CapabilityReporter)
	if !ok {
		return false
	}
	have := make(map[string]struct{})
	for _, c := range reporter.Capabilities() {
		have[c] = struct{}{}
	}
	for _, c := range required {
		if _, ok := have[c]; !ok {
			return false
		}
	}
	return true
}
