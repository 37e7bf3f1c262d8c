package boundedqueue_test

import (
	"bytes"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/i5heu/GoBoundedQueue/pkg/boundedqueue"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newQueue(t *testing.T, capacity uint64) *boundedqueue.BoundedQueue[int] {
	t.Helper()
	q, err := boundedqueue.New[int](capacity)
	require.NoError(t, err)
	require.True(t, q.Valid())
	return q
}

func drain(q *boundedqueue.BoundedQueue[int]) []int {
	var out []int
	for {
		v, ok := q.TryPop()
		if !ok {
			return out
		}
		out = append(out, v)
	}
}

func TestNewRejectsSmallCapacity(t *testing.T) {
	for _, c := range []uint64{0, 1} {
		q, err := boundedqueue.New[int](c)
		require.ErrorIs(t, err, boundedqueue.ErrCapacityTooSmall)
		assert.Nil(t, q)
		assert.False(t, q.Valid())
	}

	q, err := boundedqueue.New[int](boundedqueue.MinCapacity)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), q.Capacity())
}

func TestNewRejectsOversizedStorage(t *testing.T) {
	_, err := boundedqueue.New[int64](math.MaxUint64 / 2)
	require.ErrorIs(t, err, boundedqueue.ErrCapacityTooLarge)

	// Zero-size elements pass the byte check; the allocation itself fails.
	_, err = boundedqueue.New[struct{}](math.MaxUint64)
	require.ErrorIs(t, err, boundedqueue.ErrAllocation)
}

func TestZeroValueIsInvalid(t *testing.T) {
	q := &boundedqueue.BoundedQueue[int]{}
	assert.False(t, q.Valid())
	assert.False(t, q.TryPush(1))
	_, ok := q.TryPop()
	assert.False(t, ok)
	assert.False(t, q.PushList([]int{1, 2}))
	assert.Zero(t, q.Size())
	assert.True(t, q.Empty())
	assert.Nil(t, q.Snapshot())
	assert.Equal(t, "BoundedQueue{valid: false}", q.String())

	assert.PanicsWithValue(t, boundedqueue.ErrInvalidQueue, func() { q.WaitToPush(1) })
	assert.PanicsWithValue(t, boundedqueue.ErrInvalidQueue, func() { q.WaitAndPop() })
}

func TestNilQueueAccessors(t *testing.T) {
	var q *boundedqueue.BoundedQueue[int]
	assert.False(t, q.Valid())
	assert.Zero(t, q.Capacity())
	assert.Zero(t, q.FreeSlots())
	assert.Zero(t, q.UsedSlots())
	assert.Zero(t, q.Stats())
	assert.Zero(t, q.Size())
	assert.True(t, q.Empty())
	assert.False(t, q.TryPush(1))
	assert.Equal(t, "BoundedQueue{valid: false}", q.String())
}

// Capacity 5: fill, reject, pop three, refill across the wrap point.
func TestFillPartialDrainRefill(t *testing.T) {
	q := newQueue(t, 5)

	for i := 0; i < 5; i++ {
		require.True(t, q.TryPush(i), "push %d", i)
	}
	assert.False(t, q.TryPush(5), "queue should be full")
	assert.Equal(t, uint64(5), q.Size())

	got := q.PopList(3)
	assert.Equal(t, []int{0, 1, 2}, got)

	for i := 0; i < 3; i++ {
		require.True(t, q.TryPush(i))
	}
	assert.False(t, q.TryPush(99))
	assert.Equal(t, []int{3, 4, 0, 1, 2}, q.Snapshot())
	assert.Equal(t, "BoundedQueue{capacity: 5, size: 5, valid: true, head: 3, tail: 3} [3 4 0 1 2]", q.String())

	assert.Equal(t, []int{3, 4, 0, 1, 2}, drain(q))
	assert.True(t, q.Empty())
}

func TestTryPopOnEmpty(t *testing.T) {
	q := newQueue(t, 4)
	for i := 0; i < 100; i++ {
		v, ok := q.TryPop()
		require.False(t, ok)
		require.Zero(t, v)
	}
	assert.Equal(t, uint64(100), q.Stats().PopMisses)
}

func TestWrapAroundKeepsFIFO(t *testing.T) {
	const capacity = 5
	q := newQueue(t, capacity)

	next, want := 0, 0
	// Uneven push/pop batches walk both cursors around the ring many times.
	for round := 0; round < 4*capacity; round++ {
		for i := 0; i < 1+round%capacity && q.TryPush(next); i++ {
			next++
		}
		for i := 0; i < 1+(round+2)%capacity; i++ {
			v, ok := q.TryPop()
			if !ok {
				break
			}
			require.Equal(t, want, v)
			want++
		}
		require.LessOrEqual(t, q.Size(), uint64(capacity))
	}
	for _, v := range drain(q) {
		require.Equal(t, want, v)
		want++
	}
	assert.Equal(t, next, want)
	assert.GreaterOrEqual(t, next, 2*capacity)
}

func TestOccupancyBounds(t *testing.T) {
	q := newQueue(t, 3)
	assert.Equal(t, uint64(3), q.FreeSlots())
	assert.Zero(t, q.UsedSlots())

	q.Enqueue(1)
	q.Enqueue(2)
	assert.Equal(t, uint64(1), q.FreeSlots())
	assert.Equal(t, uint64(2), q.UsedSlots())

	v, ok := q.Dequeue()
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, uint64(1), q.Size())
	assert.False(t, q.Empty())
}

func TestWaitAndPopBlocksUntilPush(t *testing.T) {
	q := newQueue(t, 2)

	done := make(chan int, 1)
	go func() {
		done <- q.WaitAndPop()
	}()

	require.Eventually(t, func() bool {
		return q.Stats().EmptyWaits == 1
	}, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	select {
	case v := <-done:
		t.Fatalf("WaitAndPop returned %d on an empty queue", v)
	default:
	}

	require.True(t, q.TryPush(7))

	select {
	case v := <-done:
		assert.Equal(t, 7, v)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitAndPop did not wake after push")
	}
	assert.Equal(t, uint64(1), q.Stats().EmptyWaits)
}

func TestWaitToPushBlocksUntilPop(t *testing.T) {
	q := newQueue(t, 2)
	require.True(t, q.TryPush(1))
	require.True(t, q.TryPush(2))

	done := make(chan struct{})
	go func() {
		defer close(done)
		q.WaitToPush(3)
	}()

	require.Eventually(t, func() bool {
		return q.Stats().FullWaits == 1
	}, 2*time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("WaitToPush returned on a full queue")
	default:
	}

	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WaitToPush did not wake after pop")
	}
	assert.Equal(t, []int{2, 3}, q.Snapshot())
	assert.Equal(t, uint64(1), q.Stats().FullWaits)
}

func TestManyParkedConsumersAllWake(t *testing.T) {
	const consumers = 8
	q := newQueue(t, 2)

	got := make(chan int, consumers)
	for i := 0; i < consumers; i++ {
		go func() { got <- q.WaitAndPop() }()
	}
	require.Eventually(t, func() bool {
		return q.Stats().EmptyWaits >= consumers
	}, 2*time.Second, time.Millisecond)

	// Each push must reach a parked consumer even though the queue never
	// holds more than two elements.
	q.PushList([]int{0, 1, 2, 3, 4, 5, 6, 7})

	seen := make(map[int]bool)
	for i := 0; i < consumers; i++ {
		select {
		case v := <-got:
			seen[v] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d of %d parked consumers woke", i, consumers)
		}
	}
	assert.Len(t, seen, consumers)
}

func TestWaitAndPopInto(t *testing.T) {
	q := newQueue(t, 2)
	q.WaitToPush(11)
	q.WaitToPush(12)

	var v int
	assert.True(t, q.WaitAndPopInto(&v))
	assert.Equal(t, 11, v)
	assert.True(t, q.WaitAndPopInto(nil))
	assert.True(t, q.Empty())
}

func TestPopListNonPositive(t *testing.T) {
	q := newQueue(t, 2)
	for _, n := range []int{0, -3} {
		out := q.PopList(n)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	}
}

func TestStringEmpty(t *testing.T) {
	q := newQueue(t, 3)
	assert.Equal(t, "BoundedQueue{capacity: 3, size: 0, valid: true, head: 0, tail: 0} []", q.String())

	q.WaitToPush(4)
	q.WaitAndPop()
	q.WaitToPush(9)
	assert.Equal(t, "BoundedQueue{capacity: 3, size: 1, valid: true, head: 1, tail: 2} [9]", q.String())
}

func TestStatsCounters(t *testing.T) {
	q := newQueue(t, 2)
	q.TryPush(1)
	q.WaitToPush(2)
	q.TryPush(3) // full
	q.TryPop()
	q.WaitAndPop()
	q.TryPop() // empty

	assert.Equal(t, boundedqueue.Stats{
		Pushes:     2,
		Pops:       2,
		PushMisses: 1,
		PopMisses:  1,
	}, q.Stats())
}

func TestWithLoggerReportsBulkOperations(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	q, err := boundedqueue.New[int](4, boundedqueue.WithLogger(logger))
	require.NoError(t, err)

	require.True(t, q.PushList([]int{1, 2, 3}))
	assert.Equal(t, []int{1, 2, 3}, q.PopList(3))

	out := buf.String()
	assert.Contains(t, out, `msg="boundedqueue: push list done" count=3`)
	assert.Contains(t, out, `msg="boundedqueue: pop list done" count=3`)
}

func TestWithNilLoggerKeepsDefault(t *testing.T) {
	q, err := boundedqueue.New[int](2, boundedqueue.WithLogger(nil))
	require.NoError(t, err)
	assert.True(t, q.PushList([]int{1}))
}
