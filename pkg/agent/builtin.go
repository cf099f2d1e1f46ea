package agent

import (
	"context"
	"sync/atomic"
)

// Built-in agent type names. The concrete analysis logic behind each type is
// provided elsewhere; these stubs carry identity, capabilities, and lifecycle
// so the runtime can be exercised end to end.
const (
	TypeTestGenerator = "test-generator"
	TypeA11yScanner   = "a11y-scanner"
	TypePerfTester    = "perf-tester"
	TypeRiskScorer    = "risk-scorer"
)

func init() {
	Register(TypeTestGenerator, func(id string) Agent {
		return newStubAgent(id, TypeTestGenerator, []string{"unit-tests", "integration-tests"})
	})
	Register(TypeA11yScanner, func(id string) Agent {
		return newStubAgent(id, TypeA11yScanner, []string{"wcag", "aria"})
	})
	Register(TypePerfTester, func(id string) Agent {
		return newStubAgent(id, TypePerfTester, []string{"load", "latency"})
	})
	Register(TypeRiskScorer, func(id string) Agent {
		return newStubAgent(id, TypeRiskScorer, []string{"risk-model"})
	})
}

// stubAgent is the default adapter for built-in agent types.
type stubAgent struct {
	id           string
	agentType    string
	capabilities []string
	unhealthy    atomic.Bool
}

func newStubAgent(id, agentType string, capabilities []string) *stubAgent {
	return &stubAgent{id: id, agentType: agentType, capabilities: capabilities}
}

func (s *stubAgent) ID() string   { return s.id }
func (s *stubAgent) Type() string { return s.agentType }

func (s *stubAgent) Reset(context.Context) error { return nil }

func (s *stubAgent) IsHealthy() bool { return !s.unhealthy.Load() }

func (s *stubAgent) Capabilities() []string { return s.capabilities }

// MarkUnhealthy flags the instance so the next liveness check fails. The
// health monitor then evicts and replaces it.
func (s *stubAgent) MarkUnhealthy() { s.unhealthy.Store(true) }
