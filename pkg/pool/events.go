package pool

import (
	"sync"
	"time"
)

// EventType identifies a pool observability event.
type EventType string

// Event names consumed by external observability collaborators.
const (
	EventPoolWarmed      EventType = "pool:warmed"
	EventAgentCreated    EventType = "agent:created"
	EventAgentAcquired   EventType = "agent:acquired"
	EventAgentReleased   EventType = "agent:released"
	EventAgentDisposed   EventType = "agent:disposed"
	EventAgentError      EventType = "agent:error"
	EventPoolExhausted   EventType = "pool:exhausted"
	EventPoolExpanded    EventType = "pool:expanded"
	EventPoolHealthCheck EventType = "pool:healthCheck"
)

// Disposal reasons carried on agent:disposed events.
const (
	DisposeReasonError       = "error"
	DisposeReasonExplicit    = "explicit"
	DisposeReasonIdleTimeout = "idle_timeout"
	DisposeReasonUnhealthy   = "unhealthy"
	DisposeReasonResetFailed = "reset_failed"
	DisposeReasonInitFailed  = "init_failed"
	DisposeReasonShutdown    = "shutdown"
)

// Event is a pool observability event. Fields beyond Type and Timestamp are
// populated per event type: PoolID for per-agent events, Reason for
// disposals, Duration for acquisitions, Err for agent:error, Stats for
// health checks, Count for warmup and expansion batches.
type Event struct {
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	AgentType string        `json:"agent_type,omitempty"`
	PoolID    string        `json:"pool_id,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	Count     int           `json:"count,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Err       error         `json:"-"`
	Stats     *Stats        `json:"stats,omitempty"`
}

// Bus is a typed publish/subscribe channel for pool events. Publishing never
// blocks: subscribers that fall behind drop events rather than stalling the
// pool's acquire/release paths.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a listener with the given channel buffer and returns
// the event channel plus a cancel function. Cancel closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish fans the event out to all subscribers, dropping it for any whose
// buffer is full.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close removes every subscriber and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
