package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queuedPriorities(q *waitQueue) []int {
	out := make([]int, 0, q.len())
	for _, r := range q.items {
		out = append(out, r.priority)
	}
	return out
}

func TestWaitQueueOrdersByDescendingPriority(t *testing.T) {
	var q waitQueue
	for _, pri := range []int{0, 10, 5, 10, 0} {
		q.push(newWaitingRequest(workerType, pri, nil))
	}
	assert.Equal(t, []int{10, 10, 5, 0, 0}, queuedPriorities(&q))
}

func TestWaitQueueIsFIFOWithinPriority(t *testing.T) {
	var q waitQueue
	first := newWaitingRequest(workerType, 5, nil)
	second := newWaitingRequest(workerType, 5, nil)
	q.push(first)
	q.push(second)

	assert.Same(t, first, q.popAt(0))
	assert.Same(t, second, q.popAt(0))
}

func TestWaitQueuePushFrontJumpsHigherPriorities(t *testing.T) {
	var q waitQueue
	q.push(newWaitingRequest(workerType, 10, nil))

	requeued := newWaitingRequest(workerType, 0, nil)
	q.pushFront(requeued)

	require.Equal(t, 2, q.len())
	assert.Same(t, requeued, q.items[0])
}

func TestWaitQueueRemove(t *testing.T) {
	var q waitQueue
	kept := newWaitingRequest(workerType, 1, nil)
	gone := newWaitingRequest(workerType, 2, nil)
	q.push(kept)
	q.push(gone)

	assert.True(t, q.remove(gone))
	assert.False(t, q.remove(gone), "second remove must report not queued")
	assert.Equal(t, 1, q.len())
	assert.Same(t, kept, q.items[0])
}

func TestWaitQueueDrain(t *testing.T) {
	var q waitQueue
	q.push(newWaitingRequest(workerType, 1, nil))
	q.push(newWaitingRequest(workerType, 2, nil))

	drained := q.drain()
	assert.Len(t, drained, 2)
	assert.Zero(t, q.len())
	assert.Nil(t, q.drain())
}
