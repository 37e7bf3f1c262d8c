package buffered

import "github.com/i5heu/GoBoundedQueue/internal/queue"

// BufferedQueue exposes a buffered channel through the bounded-queue
// operation set. It is the runtime's own MPMC queue and the reference
// point in benchmarks.
type BufferedQueue[T any] struct {
	ch chan T
}

var _ queue.BlockingQueue[int] = (*BufferedQueue[int])(nil)

// New returns a queue over a channel of bufferSize slots, at least one.
func New[T any](bufferSize uint64) *BufferedQueue[T] {
	// An unbuffered channel is a rendezvous, not an empty buffer.
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &BufferedQueue[T]{
		ch: make(chan T, bufferSize),
	}
}

func (q *BufferedQueue[T]) TryPush(val T) bool {
	select {
	case q.ch <- val:
		return true
	default:
		return false
	}
}

func (q *BufferedQueue[T]) TryPop() (val T, ok bool) {
	select {
	case val = <-q.ch:
		return val, true
	default:
		return val, false
	}
}

func (q *BufferedQueue[T]) WaitToPush(val T) {
	q.ch <- val
}

func (q *BufferedQueue[T]) WaitAndPop() T {
	return <-q.ch
}

func (q *BufferedQueue[T]) PushList(values []T) bool {
	for _, v := range values {
		q.ch <- v
	}
	return true
}

func (q *BufferedQueue[T]) PopList(count int) []T {
	if count <= 0 {
		return []T{}
	}
	out := make([]T, count)
	for i := range out {
		out[i] = <-q.ch
	}
	return out
}

func (q *BufferedQueue[T]) Size() uint64 {
	return uint64(len(q.ch))
}

func (q *BufferedQueue[T]) Capacity() uint64 {
	return uint64(cap(q.ch))
}

func (q *BufferedQueue[T]) Enqueue(val T) {
	q.ch <- val
}

func (q *BufferedQueue[T]) Dequeue() (T, bool) {
	return q.TryPop()
}

func (q *BufferedQueue[T]) FreeSlots() uint64 {
	return uint64(cap(q.ch) - len(q.ch))
}

func (q *BufferedQueue[T]) UsedSlots() uint64 {
	return uint64(len(q.ch))
}
