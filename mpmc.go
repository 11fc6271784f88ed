// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfx

import (
	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// MPMC is a CAS-based multi-producer multi-consumer bounded FIFO queue.
//
// Each slot carries a sequence number that tickets which operation may
// act on it next. Slot i starts at sequence i. A producer holding
// ticket pos may fill the slot only when its sequence equals pos, and
// publishes by storing pos+1. A consumer holding ticket pos may empty
// the slot only when its sequence equals pos+1, and releases it for the
// next lap by storing pos+capacity. The CAS on the tail (respectively
// head) ticket serializes producers (consumers) among themselves; the
// sequence store pairs release/acquire across the producer-consumer
// handoff.
//
// Full ABA safety follows from the sequence discipline: a slot is never
// reused across laps until its consumer has released it.
//
// Memory: n slots (64+sizeof(T) bytes per slot: sequence word, element,
// and cache-line padding)
type MPMC[T any] struct {
	_        pad
	tail     atomix.Uint64 // Producer ticket
	_        pad
	head     atomix.Uint64 // Consumer ticket
	_        pad
	buffer   []mpmcSlot[T]
	mask     uint64
	capacity uint64
}

type mpmcSlot[T any] struct {
	seq  atomix.Uint64
	data T
	_    padShort // Pad to cache line
}

// NewMPMC creates a new MPMC queue.
// Capacity rounds up to the next power of 2.
// Panics if capacity < 2.
func NewMPMC[T any](capacity int) *MPMC[T] {
	if capacity < 2 {
		panic("lfx: capacity must be >= 2")
	}

	n := uint64(roundToPow2(capacity))
	q := &MPMC[T]{
		buffer:   make([]mpmcSlot[T], n),
		mask:     n - 1,
		capacity: n,
	}

	for i := uint64(0); i < n; i++ {
		q.buffer[i].seq.StoreRelaxed(i)
	}

	return q
}

// Enqueue adds an element to the queue (non-blocking).
// The element is copied into the queue's internal buffer.
// Returns ErrWouldBlock if the queue is full; never waits.
func (q *MPMC[T]) Enqueue(elem *T) error {
	sw := spin.Wait{}
	for {
		tail := q.tail.LoadAcquire()
		slot := &q.buffer[tail&q.mask]
		seq := slot.seq.LoadAcquire()
		diff := int64(seq) - int64(tail)

		if diff == 0 {
			if q.tail.CompareAndSwapAcqRel(tail, tail+1) {
				slot.data = *elem
				slot.seq.StoreRelease(tail + 1)
				return nil
			}
		} else if diff < 0 {
			return ErrWouldBlock
		}
		sw.Once()
	}
}

// Dequeue removes and returns an element from the queue (non-blocking).
// The vacated slot is cleared so referenced objects can be collected.
// Returns (zero-value, ErrWouldBlock) if the queue is empty; never waits.
func (q *MPMC[T]) Dequeue() (T, error) {
	sw := spin.Wait{}
	for {
		head := q.head.LoadAcquire()
		slot := &q.buffer[head&q.mask]
		seq := slot.seq.LoadAcquire()
		diff := int64(seq) - int64(head+1)

		if diff == 0 {
			if q.head.CompareAndSwapAcqRel(head, head+1) {
				elem := slot.data
				var zero T
				slot.data = zero
				slot.seq.StoreRelease(head + q.capacity)
				return elem, nil
			}
		} else if diff < 0 {
			var zero T
			return zero, ErrWouldBlock
		}
		sw.Once()
	}
}

// Cap returns the queue capacity.
func (q *MPMC[T]) Cap() int {
	return int(q.capacity)
}

// Len returns the approximate number of queued elements.
//
// The value is computed from two independent atomic loads and is only
// eventually consistent: concurrent producers and consumers may make it
// stale by the time it returns. Use it for monitoring, never for
// synchronization.
func (q *MPMC[T]) Len() int {
	tail := q.tail.LoadAcquire()
	head := q.head.LoadAcquire()
	if tail <= head {
		return 0
	}
	if n := tail - head; n < q.capacity {
		return int(n)
	}
	return int(q.capacity)
}

// Empty reports whether the queue appears empty.
// Approximate; see Len.
func (q *MPMC[T]) Empty() bool {
	return q.Len() == 0
}

// Full reports whether the queue appears full.
// Approximate; see Len.
func (q *MPMC[T]) Full() bool {
	return q.Len() == int(q.capacity)
}
