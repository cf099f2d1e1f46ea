package pool

import (
	"time"
)

// waitStatus tracks where a waiting request is in its life. Transitions are
// guarded by the owning sub-pool's lock so that exactly one party (the
// dispatcher, the timeout timer, the canceling caller, or shutdown) resolves
// each request.
type waitStatus int

const (
	waitQueued waitStatus = iota
	waitDispatching
	waitDone
)

// waitResult is what a waiting request eventually receives: a lease or a
// terminal error.
type waitResult struct {
	lease *Lease
	err   error
}

// waitingRequest is an acquire request parked until a slot frees. It exists
// only between enqueue and fulfillment, timeout, or shutdown cancellation.
type waitingRequest struct {
	agentType    string
	priority     int
	requiredCaps []string
	requestedAt  time.Time

	// result is buffered so the resolving party never blocks.
	result chan waitResult

	// status and timedOut are guarded by the sub-pool lock.
	status   waitStatus
	timedOut bool

	timer *time.Timer
}

func newWaitingRequest(agentType string, priority int, caps []string) *waitingRequest {
	return &waitingRequest{
		agentType:    agentType,
		priority:     priority,
		requiredCaps: caps,
		requestedAt:  time.Now(),
		result:       make(chan waitResult, 1),
	}
}

// resolve delivers the terminal result. Callers must have moved the request
// to waitDone under the sub-pool lock first, which guarantees a single
// sender.
func (r *waitingRequest) resolve(res waitResult) {
	if r.timer != nil {
		r.timer.Stop()
	}
	r.result <- res
}

// waitQueue is a per-type queue of pending acquires, insertion-ordered by
// descending priority with stable FIFO order among equal priorities.
type waitQueue struct {
	items []*waitingRequest
}

func (q *waitQueue) len() int { return len(q.items) }

// push inserts the request behind every queued request of equal or higher
// priority.
func (q *waitQueue) push(r *waitingRequest) {
	pos := len(q.items)
	for i, existing := range q.items {
		if existing.priority < r.priority {
			pos = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[pos+1:], q.items[pos:])
	q.items[pos] = r
}

// pushFront reinserts a request at the head of the queue. Used when a
// dispatched request loses its claimed entry (failed liveness or
// initialization): the request keeps first claim on the next slot rather
// than being re-sorted by priority and age.
func (q *waitQueue) pushFront(r *waitingRequest) {
	q.items = append([]*waitingRequest{r}, q.items...)
}

// popAt removes and returns the request at index i.
func (q *waitQueue) popAt(i int) *waitingRequest {
	r := q.items[i]
	q.items = append(q.items[:i], q.items[i+1:]...)
	return r
}

// remove detaches the request from the queue, returning false if it is no
// longer queued.
func (q *waitQueue) remove(r *waitingRequest) bool {
	for i, existing := range q.items {
		if existing == r {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// drain empties the queue, returning every queued request.
func (q *waitQueue) drain() []*waitingRequest {
	drained := q.items
	q.items = nil
	return drained
}
