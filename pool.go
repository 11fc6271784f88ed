// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfx

import (
	"fmt"
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// block is one pool slot. While the slot is unallocated, next links it
// into the free list; while it is in user hands, next is dead space and
// only data is live. The link lives inside the managed storage itself,
// so the free list needs no allocations of its own.
//
// next is a plain integer address, never a Go pointer: the garbage
// collector must not trace free-list linkage. Blocks stay reachable
// through the chunk slices that back them.
type block[T any] struct {
	next uint64
	data T
}

// chunk is one append-only allocation of pool slots. Chunks are added,
// never removed or moved, over a pool's lifetime, so block addresses
// handed out remain stable.
type chunk[T any] struct {
	blocks []block[T]
}

// Pool is a chunk-backed typed allocator with a lock-free free list.
//
// The free list is an ABA-safe tagged-pointer stack of the pool's own
// unallocated blocks: Allocate pops, Deallocate pushes, both with a
// single 64-bit CAS. Chunk growth, being large and rare, is guarded by
// a spin flag instead.
//
// Every live block has been returned by exactly one outstanding
// Allocate; a block is on the free list or in user hands, never both.
// AllocatedCount tracks the difference approximately and is checked on
// Close for leak detection.
type Pool[T any] struct {
	_             pad
	freeList      atomix.Uint64 // tag:16 | *block[T]:48
	_             pad
	chunksFlag    atomix.Int32 // spin flag guarding chunks
	chunks        []chunk[T]
	_             pad
	totalBlocks   atomix.Int64
	allocatedLive atomix.Int64
	chunkSize     int
	growable      bool
}

// NewPool creates a pool with initialCapacity slots in its first chunk.
//
// If growable is true, Allocate appends a new chunk of chunkSize slots
// when the free list is empty; chunkSize <= 0 defaults to
// initialCapacity. A non-growable pool returns nil from Allocate once
// exhausted.
//
// Panics if initialCapacity < 1.
func NewPool[T any](initialCapacity int, growable bool, chunkSize int) *Pool[T] {
	if initialCapacity < 1 {
		panic("lfx: pool capacity must be >= 1")
	}
	if chunkSize <= 0 {
		chunkSize = initialCapacity
	}

	p := &Pool[T]{
		chunkSize: chunkSize,
		growable:  growable,
	}
	p.addChunk(initialCapacity)
	return p
}

// Allocate returns one block, or nil when the pool is exhausted and not
// growable (or the chunk allocation itself failed). The block contents
// are unspecified; use Construct for an initialized value.
//
// Lock-free except when a growable pool must add a chunk.
func (p *Pool[T]) Allocate() *T {
	b := p.popFree()
	for b == nil && p.growable {
		// Concurrent allocators may drain the new chunk first; grow again.
		p.addChunk(p.chunkSize)
		b = p.popFree()
	}
	if b == nil {
		return nil
	}
	p.allocatedLive.AddRelaxed(1)
	return &b.data
}

// Deallocate returns a block to the pool. The caller must own the block
// (it was returned by Allocate or Construct on this pool and has not
// been returned since). Passing nil is a no-op.
//
// Deallocate does not clear the value; references held by *ptr keep
// their targets alive until the block is reused. Use Destroy to drop
// them eagerly.
func (p *Pool[T]) Deallocate(ptr *T) {
	if ptr == nil {
		return
	}
	p.pushFree(blockOf(ptr))
	p.allocatedLive.AddRelaxed(-1)
}

// Construct allocates a block and initializes it with v.
// Returns nil when the pool is exhausted and not growable.
func (p *Pool[T]) Construct(v T) *T {
	ptr := p.Allocate()
	if ptr != nil {
		*ptr = v
	}
	return ptr
}

// Destroy zeroes the value and returns its block to the pool.
// Zeroing releases any references the value held. Passing nil is a
// no-op.
func (p *Pool[T]) Destroy(ptr *T) {
	if ptr == nil {
		return
	}
	var zero T
	*ptr = zero
	p.Deallocate(ptr)
}

// Capacity returns the total number of slots across all chunks.
func (p *Pool[T]) Capacity() int {
	return int(p.totalBlocks.LoadRelaxed())
}

// AllocatedCount returns the approximate number of outstanding blocks.
func (p *Pool[T]) AllocatedCount() int {
	return int(p.allocatedLive.LoadRelaxed())
}

// AvailableCount returns the approximate number of free slots.
func (p *Pool[T]) AvailableCount() int {
	return p.Capacity() - p.AllocatedCount()
}

// ChunkCount returns the number of chunks allocated so far.
func (p *Pool[T]) ChunkCount() int {
	p.lockChunks()
	n := len(p.chunks)
	p.unlockChunks()
	return n
}

// Growable reports whether the pool may add chunks on demand.
func (p *Pool[T]) Growable() bool {
	return p.growable
}

// Close verifies that every block has been returned. A non-nil error
// means live blocks remain: a leak in the caller. The chunks themselves
// are reclaimed by the garbage collector once the pool is unreachable.
func (p *Pool[T]) Close() error {
	if n := p.allocatedLive.Load(); n != 0 {
		return fmt.Errorf("lfx: pool closed with %d blocks still allocated", n)
	}
	return nil
}

// blockOf recovers the enclosing block from a data pointer handed out
// by Allocate.
func blockOf[T any](ptr *T) *block[T] {
	return (*block[T])(unsafe.Add(unsafe.Pointer(ptr), -int(unsafe.Offsetof(block[T]{}.data))))
}

func (p *Pool[T]) lockChunks() {
	sw := spin.Wait{}
	for !p.chunksFlag.CompareAndSwapAcqRel(0, 1) {
		sw.Once()
	}
}

func (p *Pool[T]) unlockChunks() {
	p.chunksFlag.StoreRelease(0)
}

// addChunk appends a chunk of count blocks and feeds them to the free
// list. Only the chunks slice mutation is under the flag; pushing the
// blocks contends on the lock-free list like any deallocation.
func (p *Pool[T]) addChunk(count int) {
	p.lockChunks()
	p.chunks = append(p.chunks, chunk[T]{blocks: make([]block[T], count)})
	blocks := p.chunks[len(p.chunks)-1].blocks
	p.unlockChunks()

	for i := range blocks {
		p.pushFree(&blocks[i])
	}
	p.totalBlocks.AddRelaxed(int64(count))
}

// pushFree links b onto the tagged free list.
func (p *Pool[T]) pushFree(b *block[T]) {
	sw := spin.Wait{}
	for {
		old := p.freeList.LoadAcquire()
		b.next = old & ptrMask
		if p.freeList.CompareAndSwapAcqRel(old, taggedPack(unsafe.Pointer(b), taggedTag(old)+1)) {
			return
		}
		sw.Once()
	}
}

// popFree unlinks the top block, or returns nil when the list is empty.
//
// b.next is read while old is still the observed head; if another
// goroutine pops b in between, the tag has advanced and the CAS rejects
// the stale next value.
func (p *Pool[T]) popFree() *block[T] {
	sw := spin.Wait{}
	for {
		old := p.freeList.LoadAcquire()
		b := (*block[T])(taggedPtr(old))
		if b == nil {
			return nil
		}
		next := b.next
		if p.freeList.CompareAndSwapAcqRel(old, taggedPackRaw(next, taggedTag(old)+1)) {
			return b
		}
		sw.Once()
	}
}
