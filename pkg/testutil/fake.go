package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qaforge/qaforge/pkg/agent"
)

// FakeAgent is a controllable agent for pool tests. Health, reset behavior,
// and capabilities can be adjusted while the instance is pooled.
type FakeAgent struct {
	id        string
	agentType string
	caps      []string

	unhealthy atomic.Bool
	resets    atomic.Int64

	mu       sync.Mutex
	resetErr error
}

func (a *FakeAgent) ID() string   { return a.id }
func (a *FakeAgent) Type() string { return a.agentType }

func (a *FakeAgent) IsHealthy() bool { return !a.unhealthy.Load() }

func (a *FakeAgent) Reset(context.Context) error {
	a.resets.Add(1)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resetErr
}

func (a *FakeAgent) Capabilities() []string { return a.caps }

// MarkUnhealthy makes the liveness check fail from now on.
func (a *FakeAgent) MarkUnhealthy() { a.unhealthy.Store(true) }

// FailResets makes subsequent resets return the given error; nil restores
// normal behavior.
func (a *FakeAgent) FailResets(err error) {
	a.mu.Lock()
	a.resetErr = err
	a.mu.Unlock()
}

// Resets reports how many times the instance was reset.
func (a *FakeAgent) Resets() int64 { return a.resets.Load() }

// FakeFactory creates FakeAgents with configurable latencies and injectable
// failures. The zero value is usable: instant creation, no failures.
type FakeFactory struct {
	// CreateDelay and InitDelay simulate expensive construction and
	// initialization.
	CreateDelay time.Duration
	InitDelay   time.Duration

	// CreateErr, when set, is called per creation; a non-nil return fails
	// the creation.
	CreateErr func(agentType string) error
	// InitErr, when set, is called per initialization.
	InitErr func(a agent.Agent) error
	// DisposeErr, when set, is called per disposal.
	DisposeErr func(a agent.Agent) error

	// Caps assigns capabilities per agent type.
	Caps map[string][]string

	counter     atomic.Int64
	created     atomic.Int64
	initialized atomic.Int64
	disposed    atomic.Int64

	mu     sync.Mutex
	agents []*FakeAgent
}

func (f *FakeFactory) Create(ctx context.Context, agentType string) (agent.Agent, error) {
	if err := sleepCtx(ctx, f.CreateDelay); err != nil {
		return nil, err
	}
	if f.CreateErr != nil {
		if err := f.CreateErr(agentType); err != nil {
			return nil, err
		}
	}

	a := &FakeAgent{
		id:        fmt.Sprintf("%s-%d", agentType, f.counter.Add(1)),
		agentType: agentType,
		caps:      f.Caps[agentType],
	}
	f.created.Add(1)
	f.mu.Lock()
	f.agents = append(f.agents, a)
	f.mu.Unlock()
	return a, nil
}

func (f *FakeFactory) Initialize(ctx context.Context, a agent.Agent) error {
	if err := sleepCtx(ctx, f.InitDelay); err != nil {
		return err
	}
	if f.InitErr != nil {
		if err := f.InitErr(a); err != nil {
			return err
		}
	}
	f.initialized.Add(1)
	return nil
}

func (f *FakeFactory) Dispose(_ context.Context, a agent.Agent) error {
	if f.DisposeErr != nil {
		if err := f.DisposeErr(a); err != nil {
			return err
		}
	}
	f.disposed.Add(1)
	return nil
}

// Created reports how many instances the factory has constructed.
func (f *FakeFactory) Created() int64 { return f.created.Load() }

// Initialized reports how many initializations have completed.
func (f *FakeFactory) Initialized() int64 { return f.initialized.Load() }

// Disposed reports how many instances have been disposed.
func (f *FakeFactory) Disposed() int64 { return f.disposed.Load() }

// Agents returns every instance created so far, in creation order.
func (f *FakeFactory) Agents() []*FakeAgent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakeAgent, len(f.agents))
	copy(out, f.agents)
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
