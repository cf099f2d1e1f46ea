package pool

import (
	"time"

	"github.com/qaforge/qaforge/pkg/agent"
)

// EntryState is the lifecycle state of a pooled entry.
type EntryState string

const (
	// StateInitializing covers both initial construction and a deferred
	// initialization running during acquisition.
	StateInitializing EntryState = "initializing"
	// StateAvailable means the entry is idle and ready to be leased.
	StateAvailable EntryState = "available"
	// StateInUse means exactly one caller holds the lease.
	StateInUse EntryState = "in_use"
	// StateResetting means the instance is being restored between leases.
	StateResetting EntryState = "resetting"
	// StateDisposing means the entry is on its way out of the pool.
	StateDisposing EntryState = "disposing"
)

// stateTransitions is the fixed state machine:
// Initializing -> Available -> InUse -> Resetting -> Available (loop), with
// Disposing reachable from every live state. Disposal ends in removal from
// bookkeeping; there is no terminal tombstone state.
var stateTransitions = map[EntryState][]EntryState{
	StateInitializing: {StateAvailable, StateInUse, StateDisposing},
	StateAvailable:    {StateInUse, StateInitializing, StateDisposing},
	StateInUse:        {StateResetting, StateAvailable, StateDisposing},
	StateResetting:    {StateAvailable, StateDisposing},
	StateDisposing:    {},
}

func canTransition(from, to EntryState) bool {
	for _, next := range stateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// pooledEntry owns exactly one agent instance plus its pool metadata. All
// mutable fields are guarded by the owning sub-pool's lock.
type pooledEntry struct {
	poolID    string
	agentType string
	instance  agent.Agent
	state     EntryState

	createdAt      time.Time
	lastAcquiredAt time.Time
	lastReleasedAt time.Time

	reuseCount    int64
	totalUseTime  time.Duration
	isInitialized bool
	lastError     error
	retired       bool

	sp *subPool
}

// setState transitions the entry, panicking on an illegal transition. The
// transition table is fixed; hitting an illegal edge is a programming error
// in the pool itself, never a recoverable runtime condition.
func (e *pooledEntry) setState(to EntryState) {
	if !canTransition(e.state, to) {
		panic("pool: illegal entry state transition " + string(e.state) + " -> " + string(to))
	}
	e.state = to
}

// idleSince returns the reference point for idle-TTL eviction.
func (e *pooledEntry) idleSince() time.Time {
	if !e.lastReleasedAt.IsZero() {
		return e.lastReleasedAt
	}
	return e.createdAt
}

// meta snapshots the entry's metadata. Callers must hold the sub-pool lock.
func (e *pooledEntry) meta() EntryMeta {
	return EntryMeta{
		PoolID:         e.poolID,
		AgentType:      e.agentType,
		State:          e.state,
		CreatedAt:      e.createdAt,
		LastAcquiredAt: e.lastAcquiredAt,
		LastReleasedAt: e.lastReleasedAt,
		ReuseCount:     e.reuseCount,
		TotalUseTime:   e.totalUseTime,
		IsInitialized:  e.isInitialized,
	}
}

// EntryMeta is a point-in-time snapshot of a pooled entry's metadata,
// returned to callers alongside a lease.
type EntryMeta struct {
	PoolID         string        `json:"pool_id"`
	AgentType      string        `json:"agent_type"`
	State          EntryState    `json:"state"`
	CreatedAt      time.Time     `json:"created_at"`
	LastAcquiredAt time.Time     `json:"last_acquired_at,omitempty"`
	LastReleasedAt time.Time     `json:"last_released_at,omitempty"`
	ReuseCount     int64         `json:"reuse_count"`
	TotalUseTime   time.Duration `json:"total_use_time"`
	IsInitialized  bool          `json:"is_initialized"`
}
