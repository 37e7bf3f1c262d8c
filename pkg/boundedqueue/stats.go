package boundedqueue

import (
	"sync/atomic"

	"github.com/i5heu/GoBoundedQueue/internal/queue"
)

type counters struct {
	pushes     atomic.Uint64
	pops       atomic.Uint64
	pushMisses atomic.Uint64
	popMisses  atomic.Uint64
	fullWaits  atomic.Uint64
	emptyWaits atomic.Uint64
}

// Stats is a point-in-time copy of the queue's operation counters.
// The fields are read one by one, so under load they need not add up
// exactly against each other.
type Stats struct {
	Pushes     uint64 `json:"pushes"`
	Pops       uint64 `json:"pops"`
	PushMisses uint64 `json:"push_misses"` // TryPush on a full queue
	PopMisses  uint64 `json:"pop_misses"`  // TryPop on an empty queue
	FullWaits  uint64 `json:"full_waits"`  // times a producer parked on "not full"
	EmptyWaits uint64 `json:"empty_waits"` // times a consumer parked on "not empty"
}

// Stats returns the counters accumulated since construction.
func (q *BoundedQueue[T]) Stats() Stats {
	if q == nil {
		return Stats{}
	}
	return Stats{
		Pushes:     q.stats.pushes.Load(),
		Pops:       q.stats.pops.Load(),
		PushMisses: q.stats.pushMisses.Load(),
		PopMisses:  q.stats.popMisses.Load(),
		FullWaits:  q.stats.fullWaits.Load(),
		EmptyWaits: q.stats.emptyWaits.Load(),
	}
}

// Enqueue, Dequeue, FreeSlots and UsedSlots let the queue run in the
// benchmark harness next to the other implementations.

// Enqueue is WaitToPush.
func (q *BoundedQueue[T]) Enqueue(v T) { q.WaitToPush(v) }

// Dequeue is TryPop.
func (q *BoundedQueue[T]) Dequeue() (T, bool) { return q.TryPop() }

// FreeSlots returns how many more elements fit right now.
func (q *BoundedQueue[T]) FreeSlots() uint64 {
	if q == nil {
		return 0
	}
	return q.capacity - q.occupancy.Load()
}

// UsedSlots returns the current occupancy without taking a lock.
func (q *BoundedQueue[T]) UsedSlots() uint64 {
	if q == nil {
		return 0
	}
	return q.occupancy.Load()
}

var _ queue.BlockingQueue[int] = (*BoundedQueue[int])(nil)
