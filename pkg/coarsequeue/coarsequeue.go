// Package coarsequeue is the single-lock baseline for boundedqueue: the same
// operations over the same circular buffer, with one mutex guarding both
// ends and two conditions sharing it.
package coarsequeue

import (
	"errors"
	"fmt"
	"sync"

	"github.com/i5heu/GoBoundedQueue/internal/queue"
)

var ErrCapacityTooSmall = errors.New("coarsequeue: capacity must be at least 2")

type CoarseQueue[T any] struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	items    []T
	head     uint64
	tail     uint64
	size     uint64
	capacity uint64
}

var _ queue.BlockingQueue[int] = (*CoarseQueue[int])(nil)

// New creates a CoarseQueue with room for capacity elements.
func New[T any](capacity uint64) (*CoarseQueue[T], error) {
	if capacity < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrCapacityTooSmall, capacity)
	}
	q := &CoarseQueue[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q, nil
}

// MustNew is New for callers with a known-good capacity.
func MustNew[T any](capacity uint64) *CoarseQueue[T] {
	q, err := New[T](capacity)
	if err != nil {
		panic(err)
	}
	return q
}

func (q *CoarseQueue[T]) push(v T) {
	q.items[q.tail] = v
	q.tail++
	if q.tail == q.capacity {
		q.tail = 0
	}
	q.size++
	q.notEmpty.Signal()
}

func (q *CoarseQueue[T]) pop() T {
	var zero T
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++
	if q.head == q.capacity {
		q.head = 0
	}
	q.size--
	q.notFull.Signal()
	return v
}

func (q *CoarseQueue[T]) TryPush(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == q.capacity {
		return false
	}
	q.push(v)
	return true
}

func (q *CoarseQueue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

func (q *CoarseQueue[T]) WaitToPush(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.size == q.capacity {
		q.notFull.Wait()
	}
	q.push(v)
}

func (q *CoarseQueue[T]) WaitAndPop() T {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.size == 0 {
		q.notEmpty.Wait()
	}
	return q.pop()
}

func (q *CoarseQueue[T]) PushList(values []T) bool {
	for _, v := range values {
		q.WaitToPush(v)
	}
	return true
}

func (q *CoarseQueue[T]) PopList(count int) []T {
	if count <= 0 {
		return []T{}
	}
	out := make([]T, count)
	for i := range out {
		out[i] = q.WaitAndPop()
	}
	return out
}

func (q *CoarseQueue[T]) Size() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *CoarseQueue[T]) Capacity() uint64 { return q.capacity }

func (q *CoarseQueue[T]) Enqueue(v T) { q.WaitToPush(v) }

func (q *CoarseQueue[T]) Dequeue() (T, bool) { return q.TryPop() }

func (q *CoarseQueue[T]) FreeSlots() uint64 { return q.capacity - q.Size() }

func (q *CoarseQueue[T]) UsedSlots() uint64 { return q.Size() }
