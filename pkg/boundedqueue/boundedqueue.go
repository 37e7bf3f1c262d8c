// Package boundedqueue implements a fixed-capacity circular MPMC queue that
// guards its two ends with separate locks.
//
// Producers serialize on the insertion domain, consumers on the removal
// domain. The occupancy counter is the only state both domains touch; it is
// atomic so either side can read it, and it is the sole authority on
// emptiness and fullness (the cursors alone cannot tell the two apart).
//
// Lock order: whenever both locks are held, the removal lock is taken first.
// No code path takes them in the reverse order.
package boundedqueue

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/cpu"
)

var (
	ErrCapacityTooSmall = errors.New("boundedqueue: capacity must be at least 2")
	ErrCapacityTooLarge = errors.New("boundedqueue: capacity exceeds addressable storage")
	ErrAllocation       = errors.New("boundedqueue: storage allocation failed")
	ErrInvalidQueue     = errors.New("boundedqueue: queue is not valid")
)

// MinCapacity is the smallest capacity New accepts.
const MinCapacity = 2

// domain is one end of the queue: the mutex, the condition that parks
// goroutines on it, and the cursor it guards.
type domain struct {
	mu     sync.Mutex
	cond   *sync.Cond
	cursor uint64
	// parked counts goroutines that committed to waiting on cond. It is read
	// by the opposite domain to decide whether a wakeup must be handed off.
	parked atomic.Int64
}

func (d *domain) init() {
	d.cond = sync.NewCond(&d.mu)
}

// BoundedQueue is a bounded FIFO queue with split insertion/removal locks.
//
// A BoundedQueue must not be copied after first use; share it by pointer.
// Destroying (dropping) it while goroutines are parked on it leaks them.
type BoundedQueue[T any] struct {
	// removal domain: head cursor, "not empty" condition
	removal domain
	_       cpu.CacheLinePad
	// insertion domain: tail cursor, "not full" condition
	insertion domain
	_         cpu.CacheLinePad
	occupancy atomic.Uint64
	_         cpu.CacheLinePad

	buffer   []T
	capacity uint64
	valid    bool

	stats  counters
	logger *slog.Logger
}

// New creates a queue holding at most capacity elements. Storage is
// allocated once; the queue never reallocates.
func New[T any](capacity uint64, opts ...Option) (*BoundedQueue[T], error) {
	if capacity < MinCapacity {
		return nil, fmt.Errorf("%w: got %d", ErrCapacityTooSmall, capacity)
	}
	var zero T
	if size := uint64(unsafe.Sizeof(zero)); size > 0 && capacity > math.MaxInt/size {
		return nil, fmt.Errorf("%w: %d elements of %d bytes", ErrCapacityTooLarge, capacity, size)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	q := &BoundedQueue[T]{
		capacity: capacity,
		logger:   o.logger,
	}
	q.removal.init()
	q.insertion.init()

	buf, err := allocate[T](capacity)
	if err != nil {
		q.logger.Error("boundedqueue: allocation failed", "capacity", capacity, "err", err)
		return nil, err
	}
	q.buffer = buf
	q.valid = true
	return q, nil
}

// allocate turns a runtime panic from make into ErrAllocation.
func allocate[T any](capacity uint64) (buf []T, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("%w: %v", ErrAllocation, r)
		}
	}()
	return make([]T, capacity), nil
}

// Valid reports whether the queue was constructed successfully.
// The zero value is not valid.
func (q *BoundedQueue[T]) Valid() bool {
	return q != nil && q.valid
}

// Capacity returns the fixed number of slots, or 0 for a nil queue.
func (q *BoundedQueue[T]) Capacity() uint64 {
	if q == nil {
		return 0
	}
	return q.capacity
}

// advance moves a cursor one slot forward with wraparound.
func (q *BoundedQueue[T]) advance(cursor uint64) uint64 {
	cursor++
	if cursor == q.capacity {
		return 0
	}
	return cursor
}

// occupancyNested reads occupancy with the insertion lock held. The caller
// must already hold the removal lock; this is the single place that nests
// insertion inside removal.
func (q *BoundedQueue[T]) occupancyNested() uint64 {
	q.insertion.mu.Lock()
	n := q.occupancy.Load()
	q.insertion.mu.Unlock()
	return n
}

// lockBoth acquires both domains in the fixed order for whole-queue reads.
func (q *BoundedQueue[T]) lockBoth() {
	q.removal.mu.Lock()
	q.insertion.mu.Lock()
}

func (q *BoundedQueue[T]) unlockBoth() {
	q.insertion.mu.Unlock()
	q.removal.mu.Unlock()
}

// pushLocked writes v at the tail. Insertion lock held, occupancy < capacity.
func (q *BoundedQueue[T]) pushLocked(v T) {
	q.buffer[q.insertion.cursor] = v
	q.insertion.cursor = q.advance(q.insertion.cursor)
	q.occupancy.Add(1)
}

// popLocked moves the head element out. Removal lock held, occupancy > 0.
func (q *BoundedQueue[T]) popLocked() T {
	var zero T
	v := q.buffer[q.removal.cursor]
	q.buffer[q.removal.cursor] = zero
	q.removal.cursor = q.advance(q.removal.cursor)

	// Producers may bump occupancy concurrently under the other lock.
	for {
		cur := q.occupancy.Load()
		if q.occupancy.CompareAndSwap(cur, cur-1) {
			break
		}
	}
	return v
}

// wake hands a wakeup to goroutines parked on d. The caller must not hold
// any queue lock. Taking d.mu orders this signal after the parked
// goroutine's registration in Cond.Wait, so it cannot be lost.
func wake(d *domain) {
	if d.parked.Load() == 0 {
		return
	}
	d.mu.Lock()
	d.mu.Unlock()
	d.cond.Signal()
}

// TryPush inserts v if there is a free slot. It never blocks.
func (q *BoundedQueue[T]) TryPush(v T) bool {
	if !q.Valid() {
		return false
	}
	q.insertion.mu.Lock()
	if q.occupancy.Load() == q.capacity {
		q.insertion.mu.Unlock()
		q.stats.pushMisses.Add(1)
		return false
	}
	q.pushLocked(v)
	q.insertion.mu.Unlock()

	q.stats.pushes.Add(1)
	wake(&q.removal)
	return true
}

// TryPop removes the head element if there is one. It never blocks.
func (q *BoundedQueue[T]) TryPop() (T, bool) {
	var zero T
	if !q.Valid() {
		return zero, false
	}
	q.removal.mu.Lock()
	if q.occupancyNested() == 0 {
		q.removal.mu.Unlock()
		q.stats.popMisses.Add(1)
		return zero, false
	}
	v := q.popLocked()
	q.removal.mu.Unlock()

	q.stats.pops.Add(1)
	wake(&q.insertion)
	return v, true
}

// WaitToPush inserts v, parking until a slot is free. There is no timeout:
// it blocks forever if nothing ever drains the queue.
func (q *BoundedQueue[T]) WaitToPush(v T) {
	q.mustBeValid()
	q.insertion.mu.Lock()
	for q.occupancy.Load() == q.capacity {
		q.insertion.parked.Add(1)
		// Re-check after publishing the park so a concurrent pop either
		// sees us parked or we see its decrement.
		if q.occupancy.Load() == q.capacity {
			q.stats.fullWaits.Add(1)
			q.insertion.cond.Wait()
		}
		q.insertion.parked.Add(-1)
	}
	q.pushLocked(v)
	q.insertion.mu.Unlock()

	q.stats.pushes.Add(1)
	wake(&q.removal)
}

// WaitAndPop removes the head element, parking until one is available.
// There is no timeout: it blocks forever if nothing is ever pushed.
func (q *BoundedQueue[T]) WaitAndPop() T {
	q.mustBeValid()
	q.removal.mu.Lock()
	for q.occupancyNested() == 0 {
		q.removal.parked.Add(1)
		if q.occupancyNested() == 0 {
			q.stats.emptyWaits.Add(1)
			q.removal.cond.Wait()
		}
		q.removal.parked.Add(-1)
	}
	v := q.popLocked()
	q.removal.mu.Unlock()

	q.stats.pops.Add(1)
	wake(&q.insertion)
	return v
}

// WaitAndPopInto is WaitAndPop writing into dst. A nil dst discards the
// value. It always returns true.
func (q *BoundedQueue[T]) WaitAndPopInto(dst *T) bool {
	v := q.WaitAndPop()
	if dst != nil {
		*dst = v
	}
	return true
}

// PushList pushes every value in order through WaitToPush. It is not
// atomic: consumers may observe any prefix of values while it runs.
func (q *BoundedQueue[T]) PushList(values []T) bool {
	if !q.Valid() {
		return false
	}
	start := time.Now()
	for _, v := range values {
		q.WaitToPush(v)
	}
	q.logger.Debug("boundedqueue: push list done", "count", len(values), "elapsed", time.Since(start))
	return true
}

// PopList pops count values through WaitAndPop, blocking until all have
// arrived. Like PushList it gives no atomicity across the call.
func (q *BoundedQueue[T]) PopList(count int) []T {
	if count <= 0 {
		return []T{}
	}
	start := time.Now()
	out := make([]T, count)
	for i := range out {
		out[i] = q.WaitAndPop()
	}
	q.logger.Debug("boundedqueue: pop list done", "count", count, "elapsed", time.Since(start))
	return out
}

// Size returns the occupancy as seen from the removal domain.
func (q *BoundedQueue[T]) Size() uint64 {
	if !q.Valid() {
		return 0
	}
	q.removal.mu.Lock()
	defer q.removal.mu.Unlock()
	return q.occupancy.Load()
}

// Empty reports whether Size is zero.
func (q *BoundedQueue[T]) Empty() bool {
	return q.Size() == 0
}

// Snapshot copies the contents in FIFO order. Both locks are held for the
// copy, so the result is consistent, but it may be stale by the time it is
// returned.
func (q *BoundedQueue[T]) Snapshot() []T {
	if !q.Valid() {
		return nil
	}
	q.lockBoth()
	defer q.unlockBoth()
	return q.snapshotLocked()
}

func (q *BoundedQueue[T]) snapshotLocked() []T {
	n := q.occupancy.Load()
	out := make([]T, 0, n)
	idx := q.removal.cursor
	for i := uint64(0); i < n; i++ {
		out = append(out, q.buffer[idx])
		idx = q.advance(idx)
	}
	return out
}

// String renders capacity, size, validity, both cursors and the contents
// head to tail, e.g.
//
//	BoundedQueue{capacity: 5, size: 2, valid: true, head: 3, tail: 0} [3 4]
func (q *BoundedQueue[T]) String() string {
	if !q.Valid() {
		return "BoundedQueue{valid: false}"
	}
	q.lockBoth()
	head, tail := q.removal.cursor, q.insertion.cursor
	items := q.snapshotLocked()
	q.unlockBoth()

	var sb strings.Builder
	fmt.Fprintf(&sb, "BoundedQueue{capacity: %d, size: %d, valid: %t, head: %d, tail: %d} [",
		q.capacity, len(items), q.valid, head, tail)
	for i, v := range items {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprint(&sb, v)
	}
	sb.WriteByte(']')
	return sb.String()
}

func (q *BoundedQueue[T]) mustBeValid() {
	if !q.Valid() {
		panic(ErrInvalidQueue)
	}
}
