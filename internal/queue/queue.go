package queue

// QueueValidationInterface is the method set the timed benchmark driver
// needs. It is used as a type constraint, so drivers are instantiated per
// queue type rather than calling through an interface value.
type QueueValidationInterface[T any] interface {
	// Enqueue adds an element to the queue and blocks if the queue is full.
	Enqueue(T)

	// Dequeue removes and returns the oldest element.
	// If the queue is empty it returns a zero T and false, otherwise true.
	Dequeue() (T, bool)

	// FreeSlots returns how many more elements can be enqueued before the queue is full.
	FreeSlots() uint64

	// UsedSlots returns how many elements are currently queued.
	UsedSlots() uint64
}

// BlockingQueue is the full bounded-queue operation set: non-blocking
// try variants, parking wait variants, and non-atomic bulk helpers.
type BlockingQueue[T any] interface {
	QueueValidationInterface[T]

	// TryPush inserts without blocking; false means the queue was full.
	TryPush(T) bool

	// TryPop removes without blocking; false means the queue was empty.
	TryPop() (T, bool)

	// WaitToPush parks until there is room, then inserts.
	WaitToPush(T)

	// WaitAndPop parks until an element is available, then removes it.
	WaitAndPop() T

	// PushList pushes every value in order via WaitToPush.
	PushList([]T) bool

	// PopList pops count values via WaitAndPop.
	PopList(count int) []T

	// Size is the authoritative occupancy.
	Size() uint64

	// Capacity is the fixed number of slots.
	Capacity() uint64
}
