// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package lfx provides lock-free concurrency primitives and a cooperative
// job system built on top of them.
//
// The package offers four components, composed bottom-up:
//
//   - MPMC: bounded multi-producer multi-consumer FIFO queue
//   - Stack: unbounded ABA-safe LIFO stack (tagged-pointer head)
//   - Pool: chunk-backed typed allocator with a lock-free free list
//   - JobSystem: worker goroutines scheduling pool-allocated jobs
//     through an MPMC queue, with counter- and parent-based
//     completion tracking
//
// All fast paths are lock-free: no mutex is ever taken to enqueue,
// dequeue, push, pop, allocate, or deallocate. The only spinning section
// is pool chunk growth, which is rare by construction.
//
// # Quick Start
//
//	js := lfx.NewJobSystem(0, 0, 0) // workers=NumCPU, default sizes
//	defer js.Close()
//
//	var sum atomix.Int64
//	c := lfx.NewCounter(0)
//	for i := range 100 {
//	    js.Schedule(func() { sum.Add(int64(i)) }, c)
//	}
//	js.WaitForCounter(c)
//
// Builder API for explicit sizing:
//
//	js := lfx.New().Workers(4).QueueSize(8192).PoolSize(8192).Build()
//
// # MPMC Queue
//
// MPMC is a bounded FIFO exchanging elements between any number of
// producer and consumer goroutines. Each slot carries a sequence number
// that tickets which operation may act on it next, so a slot is never
// reused across laps before its consumer has released it.
//
//	q := lfx.NewMPMC[int](1024)
//
//	v := 42
//	if err := q.Enqueue(&v); lfx.IsWouldBlock(err) {
//	    // queue full - apply backpressure
//	}
//
//	elem, err := q.Dequeue()
//	if lfx.IsWouldBlock(err) {
//	    // queue empty - try again later
//	}
//
// Enqueue and Dequeue never wait: full and empty are reported as
// [ErrWouldBlock] and the caller decides whether to spin, back off, or
// fail. FIFO order is global, not just per-producer: an enqueue that
// linearizes before another is dequeued first.
//
// Unlike the sibling queue-only packages in this ecosystem, MPMC exposes
// Len, Empty, and Full. They are computed from two independent atomic
// loads and are therefore only eventually consistent; treat them as
// hints, never as synchronization.
//
// # ABA-Safe Stack
//
// Stack is an unbounded LIFO whose head packs a 48-bit node address with
// a 16-bit version tag in a single 64-bit word. The tag increments on
// every successful CAS, so the classic ABA interleaving (pop A, pop B,
// push A back) leaves the address equal but not the tag, and the stale
// CAS fails.
//
//	s := lfx.NewStack[int]()
//	s.Push(1)
//	v, ok := s.Pop() // 1, true
//	_, ok = s.Pop()  // false: empty
//
// Tag wrap occurs after 65536 successful operations; a collision needs a
// goroutine suspended across exactly that many CASes that then observes
// the same address. Where even that probability is unacceptable, use
// epoch-based reclamation instead of this package.
//
// # Memory Pool
//
// Pool hands out typed blocks from append-only chunks. An unallocated
// block doubles as its own free-list node, and the free-list head is the
// same tagged-pointer stack the Stack type uses, so allocate and
// deallocate are lock-free and ABA-safe. Chunks never move: addresses
// remain stable for the pool's lifetime.
//
//	pool := lfx.NewPool[Bullet](1024, true, 0)
//	b := pool.Construct(Bullet{X: x, Y: y})
//	// ...
//	pool.Destroy(b)
//	if err := pool.Close(); err != nil {
//	    // leak: some blocks were never returned
//	}
//
// When the free list runs dry and the pool is growable, a new chunk is
// appended under a spin flag; growth is large and rare, so making it
// lock-free would buy nothing. A non-growable pool returns nil from
// Allocate instead.
//
// # Job System
//
// JobSystem starts a fixed set of worker goroutines that pop jobs from a
// shared MPMC queue, run them, and then run the finish protocol:
// decrement the job's counter, decrement its unfinished count, and, once
// the count reaches zero, return the job to the pool and propagate into
// the parent. A parent job therefore stays alive, and keeps its slot,
// until its own payload and every descendant have completed.
//
//	c := lfx.NewCounter(0)
//	js.Schedule(work, c)
//	js.WaitForCounter(c)
//
// WaitForCounter and WaitAll are cooperative: while waiting they pop and
// execute queued jobs themselves, so a job that waits on its own
// children cannot deadlock the system. When the queue is empty the
// waiter backs off with iox.Backoff.
//
// Parent/child graphs use the explicit allocation API:
//
//	parent := js.AllocateJob(parentWork, c, nil)
//	child := js.AllocateJob(childWork, c, parent)
//	js.ScheduleJob(parent)
//	js.ScheduleJob(child)
//
// If a job payload panics, the worker recovers the panic and still runs
// the finish protocol, so counters converge and waiters terminate; the
// panic value itself is discarded.
//
// # Error Handling
//
// The only observable runtime failures are capacity-bounded: queue full,
// queue empty, and job-queue backpressure from Schedule. All are
// reported as [ErrWouldBlock], sourced from [code.hybscloud.com/iox]
// for ecosystem consistency, and are never retried internally.
//
//	backoff := iox.Backoff{}
//	for {
//	    err := js.Schedule(fn, c)
//	    if err == nil {
//	        backoff.Reset()
//	        break
//	    }
//	    if lfx.IsWouldBlock(err) {
//	        backoff.Wait()
//	        continue
//	    }
//	    return err
//	}
//
// Allocation failure from a non-growable Pool is a nil result, not an
// error. Contract violations (closing a pool with live blocks) surface
// from Close as ordinary errors.
//
// # Platform Requirements
//
// A 64-bit target with lock-free 64-bit CAS and at most 48 usable
// virtual address bits. Current x86-64 and AArch64 layouts qualify;
// 57-bit (5-level paging) address spaces would need a narrower tag and
// correspondingly weaker ABA resistance. Cache-line padding assumes 64
// bytes; a different line size affects performance only.
//
// # Race Detection
//
// Go's race detector cannot observe happens-before edges established
// through atomic acquire/release orderings on separate variables, which
// is exactly how the sequence numbers and tagged heads here synchronize
// non-atomic data. The algorithms are correct, but the detector may
// report false positives; stress tests that trip this are skipped under
// the race build tag via [RaceEnabled].
//
// # Dependencies
//
// This package uses [code.hybscloud.com/iox] for semantic errors and
// adaptive backoff, [code.hybscloud.com/atomix] for atomic primitives
// with explicit memory ordering, and [code.hybscloud.com/spin] for CPU
// pause instructions in CAS retry loops.
package lfx
