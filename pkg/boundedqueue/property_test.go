package boundedqueue_test

import (
	"slices"
	"testing"

	"pgregory.net/rapid"

	"github.com/i5heu/GoBoundedQueue/pkg/boundedqueue"
)

// TestMatchesSliceModel drives a queue with random single-goroutine
// operation sequences and checks it against a plain slice after every step.
func TestMatchesSliceModel(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.Uint64Range(2, 9).Draw(t, "capacity")
		q, err := boundedqueue.New[int](capacity)
		if err != nil {
			t.Fatalf("New(%d): %v", capacity, err)
		}

		var model []int
		next := 0
		full := func() bool { return uint64(len(model)) == capacity }

		popExpect := func(t *rapid.T, got int) {
			if got != model[0] {
				t.Fatalf("popped %d, want %d", got, model[0])
			}
			model = model[1:]
		}

		t.Repeat(map[string]func(*rapid.T){
			"TryPush": func(t *rapid.T) {
				wantOK := !full()
				if ok := q.TryPush(next); ok != wantOK {
					t.Fatalf("TryPush with %d/%d used returned %t", len(model), capacity, ok)
				}
				if wantOK {
					model = append(model, next)
				}
				next++
			},
			"TryPop": func(t *rapid.T) {
				v, ok := q.TryPop()
				if ok != (len(model) > 0) {
					t.Fatalf("TryPop with %d used returned ok=%t", len(model), ok)
				}
				if ok {
					popExpect(t, v)
				}
			},
			"WaitToPush": func(t *rapid.T) {
				if full() {
					t.Skip("would block")
				}
				q.WaitToPush(next)
				model = append(model, next)
				next++
			},
			"WaitAndPop": func(t *rapid.T) {
				if len(model) == 0 {
					t.Skip("would block")
				}
				popExpect(t, q.WaitAndPop())
			},
			"PushList": func(t *rapid.T) {
				n := rapid.IntRange(0, int(capacity)-len(model)).Draw(t, "push-n")
				batch := make([]int, n)
				for i := range batch {
					batch[i] = next
					next++
				}
				if !q.PushList(batch) {
					t.Fatalf("PushList returned false")
				}
				model = append(model, batch...)
			},
			"PopList": func(t *rapid.T) {
				n := rapid.IntRange(0, len(model)).Draw(t, "pop-n")
				got := q.PopList(n)
				if !slices.Equal(got, model[:n]) {
					t.Fatalf("PopList(%d) = %v, want %v", n, got, model[:n])
				}
				model = model[n:]
			},
			"": func(t *rapid.T) {
				if got := q.Size(); got != uint64(len(model)) {
					t.Fatalf("Size() = %d, model holds %d", got, len(model))
				}
				if q.Empty() != (len(model) == 0) {
					t.Fatalf("Empty() = %t with %d elements", q.Empty(), len(model))
				}
				if got := q.FreeSlots(); got != capacity-uint64(len(model)) {
					t.Fatalf("FreeSlots() = %d, want %d", got, capacity-uint64(len(model)))
				}
				if snap := q.Snapshot(); !slices.Equal(snap, model) {
					t.Fatalf("Snapshot() = %v, want %v", snap, model)
				}
			},
		})
	})
}
