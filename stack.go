// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfx

import (
	"unsafe"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/spin"
)

// stackNode carries one stacked value. next holds the raw address of
// the node below, as a plain integer the garbage collector ignores;
// nodes stay reachable through the arena's chunks.
type stackNode[T any] struct {
	next uint64
	data T
}

// Stack is an unbounded ABA-safe LIFO stack (Treiber stack with a
// packed tagged-pointer head).
//
// The head word packs the top node's 48-bit address with a 16-bit
// version tag that increments on every successful CAS. An interleaving
// that pops the top node and later pushes it back (the classic ABA
// sequence) leaves the address equal but not the tag, so the suspended
// CAS fails and retries against current state.
//
// Nodes are allocated from an internal growable arena rather than the
// open heap: a packed head is invisible to the garbage collector, so
// node memory must stay reachable through ordinary references for the
// stack's lifetime. The arena's chunk slices provide exactly that.
//
// Push and Pop are lock-free; Push may spin briefly when the arena adds
// a chunk.
type Stack[T any] struct {
	_     pad
	head  atomix.Uint64 // tag:16 | *stackNode[T]:48
	_     pad
	nodes *Pool[stackNode[T]]
}

// stackArenaSize is the node arena's initial capacity; the arena grows
// by the same amount as the stack outgrows it.
const stackArenaSize = 256

// NewStack creates an empty stack.
func NewStack[T any]() *Stack[T] {
	return &Stack[T]{
		nodes: NewPool[stackNode[T]](stackArenaSize, true, 0),
	}
}

// Push adds v on top of the stack. Push always succeeds.
func (s *Stack[T]) Push(v T) {
	n := s.nodes.Allocate()
	n.data = v

	sw := spin.Wait{}
	for {
		old := s.head.LoadAcquire()
		n.next = old & ptrMask
		if s.head.CompareAndSwapAcqRel(old, taggedPack(unsafe.Pointer(n), taggedTag(old)+1)) {
			return
		}
		sw.Once()
	}
}

// Pop removes and returns the top value. The second result is false
// only when the stack is empty; Pop never blocks.
func (s *Stack[T]) Pop() (T, bool) {
	sw := spin.Wait{}
	for {
		old := s.head.LoadAcquire()
		n := (*stackNode[T])(taggedPtr(old))
		if n == nil {
			var zero T
			return zero, false
		}
		// next is read while old is still the observed head; a stale
		// read loses the CAS on the advanced tag.
		next := n.next
		if s.head.CompareAndSwapAcqRel(old, taggedPackRaw(next, taggedTag(old)+1)) {
			v := n.data
			s.nodes.Destroy(n)
			return v, true
		}
		sw.Once()
	}
}

// Empty reports whether the stack appears empty.
func (s *Stack[T]) Empty() bool {
	return taggedPtr(s.head.LoadAcquire()) == nil
}

// Close drains all remaining values and verifies the node arena leaked
// nothing. Concurrent use after Close is undefined.
func (s *Stack[T]) Close() error {
	for {
		if _, ok := s.Pop(); !ok {
			break
		}
	}
	return s.nodes.Close()
}
