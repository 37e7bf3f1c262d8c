package testbench

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i5heu/GoBoundedQueue/internal/queue"
)

// Config is only about concurrency: how many producers, how many consumers.
type Config struct {
	NumProducers int
	NumConsumers int
}

var ErrBadWorkload = errors.New("testbench: invalid workload")

// RunTimedTest spawns producers and consumers that run for the specified
// duration, measuring how many messages are actually enqueued/dequeued
// in that window. Once the window closes, producers finish their current
// Enqueue and consumers drain whatever is left before returning, so no
// goroutine outlives the call.
// Returns the total messages enqueued, total consumed, and the actual elapsed time.
func RunTimedTest[T any, Q queue.QueueValidationInterface[T]](
	q Q,
	cfg Config,
	testDuration time.Duration,
	valueGenerator func(int) T,
) (producedCount int64, consumedCount int64, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), testDuration)
	defer cancel()

	var (
		produced, consumed atomic.Int64
		msgIndex           atomic.Int64
		stop               atomic.Bool
		prodWg, consWg     sync.WaitGroup
	)
	producersDone := make(chan struct{})

	start := time.Now()
	go func() {
		<-ctx.Done()
		stop.Store(true)
	}()

	prodWg.Add(cfg.NumProducers)
	for i := 0; i < cfg.NumProducers; i++ {
		go func() {
			defer prodWg.Done()
			for !stop.Load() {
				idx := msgIndex.Add(1) - 1
				q.Enqueue(valueGenerator(int(idx)))
				produced.Add(1)
			}
		}()
	}

	consWg.Add(cfg.NumConsumers)
	for i := 0; i < cfg.NumConsumers; i++ {
		go func() {
			defer consWg.Done()
			for {
				if _, ok := q.Dequeue(); ok {
					consumed.Add(1)
					continue
				}
				select {
				case <-producersDone:
					// Producers are gone; one more empty read means drained.
					if _, ok := q.Dequeue(); ok {
						consumed.Add(1)
						continue
					}
					return
				default:
					runtime.Gosched()
				}
			}
		}()
	}

	<-ctx.Done()
	prodWg.Wait()
	close(producersDone)
	consWg.Wait()

	elapsed = time.Since(start)
	return produced.Load(), consumed.Load(), elapsed
}

// TransferResult is the outcome of one RunTransfer call.
type TransferResult struct {
	Received []int         // every value popped, in reader-then-pop order
	Elapsed  time.Duration // from releasing the workers until the last one finished
}

// RunTransfer moves the integers [0, total) through q. The range is split
// into contiguous blocks, one per producer, each pushed with PushList; the
// pops are split across consumers, each draining its share with PopList.
// Remainders go to the last producer and the last consumer. All workers are
// released together.
func RunTransfer[Q queue.BlockingQueue[int]](q Q, cfg Config, total int) (TransferResult, error) {
	if cfg.NumProducers < 1 || cfg.NumConsumers < 1 {
		return TransferResult{}, fmt.Errorf("%w: need at least one producer and one consumer, got %d/%d",
			ErrBadWorkload, cfg.NumProducers, cfg.NumConsumers)
	}
	if total <= cfg.NumProducers || total <= cfg.NumConsumers {
		return TransferResult{}, fmt.Errorf("%w: %d items cannot be shared by %d producers and %d consumers",
			ErrBadWorkload, total, cfg.NumProducers, cfg.NumConsumers)
	}

	gate := make(chan struct{})
	var wg sync.WaitGroup

	results := make([][]int, cfg.NumConsumers)
	for i, count := range Partition(total, cfg.NumConsumers) {
		wg.Add(1)
		go func(i, count int) {
			defer wg.Done()
			<-gate
			results[i] = q.PopList(count)
		}(i, count)
	}

	left := 0
	for _, count := range Partition(total, cfg.NumProducers) {
		block := make([]int, count)
		for j := range block {
			block[j] = left + j
		}
		left += count

		wg.Add(1)
		go func(block []int) {
			defer wg.Done()
			<-gate
			q.PushList(block)
		}(block)
	}

	start := time.Now()
	close(gate)
	wg.Wait()
	elapsed := time.Since(start)

	received := make([]int, 0, total)
	for _, r := range results {
		received = append(received, r...)
	}
	return TransferResult{Received: received, Elapsed: elapsed}, nil
}

// Partition splits total into parts shares of total/parts, adding the
// remainder to the last share.
func Partition(total, parts int) []int {
	if parts < 1 {
		return nil
	}
	shares := make([]int, parts)
	for i := range shares {
		shares[i] = total / parts
	}
	shares[parts-1] += total % parts
	return shares
}

// maxReportedMismatches caps how many mismatches VerifyTransfer lists.
const maxReportedMismatches = 10

// VerifyTransfer checks that received is a permutation of [0, total):
// nothing lost, nothing duplicated, nothing invented.
func VerifyTransfer(received []int, total int) error {
	if len(received) != total {
		return fmt.Errorf("testbench: received %d values, want %d", len(received), total)
	}
	sorted := slices.Clone(received)
	slices.Sort(sorted)

	var errs []error
	for i, v := range sorted {
		if v != i {
			errs = append(errs, fmt.Errorf("position %d: got %d", i, v))
			if len(errs) == maxReportedMismatches {
				break
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("testbench: received values are not a permutation of [0, %d): %w",
			total, errors.Join(errs...))
	}
	return nil
}
