// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfx_test

import (
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfx"
)

// =============================================================================
// MPMC Queue - Stress Tests
//
// The queue synchronizes non-atomic slot data through per-slot sequence
// numbers, which the race detector cannot model; concurrent tests are
// skipped under -race.
// =============================================================================

// TestMPMCStressConcurrent runs many producers and consumers over a
// small queue and verifies that the popped multiset equals the pushed
// multiset: nothing lost, nothing duplicated.
func TestMPMCStressConcurrent(t *testing.T) {
	if lfx.RaceEnabled {
		t.Skip("skip: CAS-based algorithm uses cross-variable memory ordering")
	}

	const (
		numProducers = 8
		numConsumers = 8
		itemsPerProd = 10000
		timeout      = 10 * time.Second
	)

	q := lfx.NewMPMC[int](64)
	expectedTotal := numProducers * itemsPerProd
	seen := make([]atomix.Int32, expectedTotal)

	var wg sync.WaitGroup
	var produced, consumed atomix.Int64
	var timedOut atomix.Bool
	deadline := time.Now().Add(timeout)

	// Producers: each produces unique values (id*itemsPerProd + seq)
	for p := range numProducers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			backoff := iox.Backoff{}
			for i := range itemsPerProd {
				if time.Now().After(deadline) {
					timedOut.Store(true)
					return
				}
				v := id*itemsPerProd + i
				for q.Enqueue(&v) != nil {
					if time.Now().After(deadline) {
						timedOut.Store(true)
						return
					}
					backoff.Wait()
				}
				produced.Add(1)
				backoff.Reset()
			}
		}(p)
	}

	// Consumers: track seen values
	for range numConsumers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			backoff := iox.Backoff{}
			for consumed.Load() < int64(expectedTotal) {
				if time.Now().After(deadline) {
					timedOut.Store(true)
					return
				}
				v, err := q.Dequeue()
				if err == nil {
					if v >= 0 && v < expectedTotal {
						seen[v].Add(1)
					}
					consumed.Add(1)
					backoff.Reset()
				} else {
					if produced.Load() == int64(expectedTotal) && consumed.Load() == int64(expectedTotal) {
						return
					}
					backoff.Wait()
				}
			}
		}()
	}

	wg.Wait()

	if timedOut.Load() {
		t.Logf("timeout: produced=%d, consumed=%d/%d", produced.Load(), consumed.Load(), expectedTotal)
	}

	if produced.Load() != int64(expectedTotal) {
		t.Fatalf("produced %d, want %d", produced.Load(), expectedTotal)
	}
	if consumed.Load() != int64(expectedTotal) {
		t.Fatalf("consumed %d, want %d", consumed.Load(), expectedTotal)
	}
	for v := range expectedTotal {
		if n := seen[v].Load(); n != 1 {
			t.Fatalf("value %d seen %d times, want exactly once", v, n)
		}
	}
	if _, err := q.Dequeue(); err == nil {
		t.Fatal("queue should be empty after all consumers finish")
	}
}

// TestMPMCPerProducerOrder verifies that, with a single consumer, each
// producer's values come out in that producer's push order. Global FIFO
// implies per-producer order; the single consumer makes it observable.
func TestMPMCPerProducerOrder(t *testing.T) {
	if lfx.RaceEnabled {
		t.Skip("skip: CAS-based algorithm uses cross-variable memory ordering")
	}

	const (
		numProducers = 4
		itemsPerProd = 10000
		timeout      = 10 * time.Second
	)

	q := lfx.NewMPMC[int](128)

	var wg sync.WaitGroup
	var timedOut atomix.Bool
	deadline := time.Now().Add(timeout)

	for p := range numProducers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			backoff := iox.Backoff{}
			for i := range itemsPerProd {
				v := id*itemsPerProd + i
				for q.Enqueue(&v) != nil {
					if time.Now().After(deadline) {
						timedOut.Store(true)
						return
					}
					backoff.Wait()
				}
				backoff.Reset()
			}
		}(p)
	}

	// Single consumer: each producer's next value must be exactly one
	// past the previous one.
	var next [numProducers]int
	backoff := iox.Backoff{}
	for got := 0; got < numProducers*itemsPerProd; {
		if time.Now().After(deadline) {
			timedOut.Store(true)
			break
		}
		v, err := q.Dequeue()
		if err != nil {
			backoff.Wait()
			continue
		}
		backoff.Reset()
		id, i := v/itemsPerProd, v%itemsPerProd
		if next[id] != i {
			t.Fatalf("producer %d: got item %d, want %d", id, i, next[id])
		}
		next[id]++
		got++
	}

	wg.Wait()
	if timedOut.Load() {
		t.Fatal("timeout waiting for producers")
	}
}

// =============================================================================
// Stack - Stress Tests
// =============================================================================

// TestStackABAStress hammers one stack from many goroutines with
// push/pop pairs, the workload that makes untagged Treiber stacks fail.
// Every popped value must have been pushed exactly once, and the stack
// must be empty at the end.
func TestStackABAStress(t *testing.T) {
	if lfx.RaceEnabled {
		t.Skip("skip: CAS-based algorithm uses cross-variable memory ordering")
	}

	const (
		numGoroutines = 8
		iterations    = 10000
	)

	s := lfx.NewStack[int]()
	// Two values per iteration per goroutine, each pushed exactly once.
	popped := make([]atomix.Int32, numGoroutines*iterations*2)

	var wg sync.WaitGroup
	for g := range numGoroutines {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			base := id * iterations * 2
			for i := range iterations {
				s.Push(base + 2*i)
				if v, ok := s.Pop(); ok {
					popped[v].Add(1)
				}
				s.Push(base + 2*i + 1)
				if v, ok := s.Pop(); ok {
					popped[v].Add(1)
				}
			}
		}(g)
	}
	wg.Wait()

	// Each value was pushed once, so it may be popped at most once; and
	// pushes equal pops overall, so every value was popped exactly once.
	for v := range popped {
		if n := popped[v].Load(); n != 1 {
			t.Fatalf("value %d popped %d times, want exactly once", v, n)
		}
	}
	if !s.Empty() {
		t.Fatal("stack should be empty after balanced push/pop")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

// TestStackConcurrentMixed runs unbalanced pushers and poppers and then
// drains, checking value conservation.
func TestStackConcurrentMixed(t *testing.T) {
	if lfx.RaceEnabled {
		t.Skip("skip: CAS-based algorithm uses cross-variable memory ordering")
	}

	const (
		numPushers = 4
		numPoppers = 4
		perPusher  = 10000
	)

	s := lfx.NewStack[int]()
	total := numPushers * perPusher
	popped := make([]atomix.Int32, total)
	var remaining atomix.Int64
	remaining.Store(int64(total))

	var wg sync.WaitGroup
	for g := range numPushers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := range perPusher {
				s.Push(id*perPusher + i)
			}
		}(g)
	}
	for range numPoppers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			backoff := iox.Backoff{}
			for remaining.Load() > 0 {
				v, ok := s.Pop()
				if !ok {
					backoff.Wait()
					continue
				}
				backoff.Reset()
				popped[v].Add(1)
				remaining.Add(-1)
			}
		}()
	}
	wg.Wait()

	for v := range popped {
		if n := popped[v].Load(); n != 1 {
			t.Fatalf("value %d popped %d times, want exactly once", v, n)
		}
	}
	if !s.Empty() {
		t.Fatal("stack should be empty after full drain")
	}
}

// =============================================================================
// Pool - Stress Tests
// =============================================================================

type magicCell struct {
	magic uint64
}

// TestPoolStressConcurrent performs randomized allocate/deallocate from
// several goroutines with a bounded working set, writing a unique
// pattern into each live block and verifying it before release. Blocks
// handed out concurrently must be mutually disjoint for the patterns to
// survive.
func TestPoolStressConcurrent(t *testing.T) {
	if lfx.RaceEnabled {
		t.Skip("skip: CAS-based algorithm uses cross-variable memory ordering")
	}

	const (
		numGoroutines = 4
		iterations    = 10000
		workingSet    = 32
	)

	pool := lfx.NewPool[magicCell](256, true, 0)

	var wg sync.WaitGroup
	for g := range numGoroutines {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()

			type live struct {
				p     *magicCell
				magic uint64
			}
			held := make([]live, 0, workingSet)
			// Cheap deterministic per-goroutine PRNG (xorshift).
			state := uint64(id)*2654435761 + 1

			for i := range iterations {
				state ^= state << 13
				state ^= state >> 7
				state ^= state << 17

				if len(held) == 0 || (len(held) < workingSet && state&1 == 0) {
					p := pool.Allocate()
					if p == nil {
						t.Errorf("goroutine %d: Allocate returned nil from growable pool", id)
						return
					}
					magic := uint64(id)<<32 | uint64(i)
					p.magic = magic
					held = append(held, live{p, magic})
				} else {
					k := int(state>>1) % len(held)
					h := held[k]
					if h.p.magic != h.magic {
						t.Errorf("goroutine %d: magic mismatch: got %#x, want %#x", id, h.p.magic, h.magic)
						return
					}
					held[k] = held[len(held)-1]
					held = held[:len(held)-1]
					pool.Deallocate(h.p)
				}
			}

			for _, h := range held {
				if h.p.magic != h.magic {
					t.Errorf("goroutine %d: magic mismatch on drain: got %#x, want %#x", id, h.p.magic, h.magic)
					return
				}
				pool.Deallocate(h.p)
			}
		}(g)
	}
	wg.Wait()

	if n := pool.AllocatedCount(); n != 0 {
		t.Fatalf("AllocatedCount after join: got %d, want 0", n)
	}
	if err := pool.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
