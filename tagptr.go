// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package lfx

import "unsafe"

// Tagged pointer: a 64-bit word holding a 48-bit address in the low bits
// and a 16-bit version tag in the high bits. The tag increments on every
// successful CAS of a head word, so an address that was popped and
// pushed back compares unequal to its earlier observation (ABA defense).
//
// Layout:
//
//	[63 ── 48][47 ────────────────────────── 0]
//	│   tag   │             pointer           │
//	└─────────┴───────────────────────────────┘
//
// The 48-bit field relies on current x86-64 / AArch64 canonical address
// layouts. 57-bit (5-level paging) address spaces would need tagBits
// reduced to 7, with correspondingly fewer distinct versions between
// potential tag collisions.
//
// Tag wrap is at 65536 successful CASes; a collision additionally
// requires the wrapped head to hold the same address, which the chunk
// allocation pattern of Pool makes vanishingly rare but not impossible.

const (
	tagBits  = 16
	ptrBits  = 48
	ptrMask  = uint64(1)<<ptrBits - 1
	tagShift = ptrBits
)

// taggedPack packs a pointer and a tag into a single 64-bit word.
func taggedPack(p unsafe.Pointer, tag uint16) uint64 {
	return uint64(uintptr(p))&ptrMask | uint64(tag)<<tagShift
}

// taggedPackRaw packs a raw 48-bit address and a tag.
func taggedPackRaw(addr uint64, tag uint16) uint64 {
	return addr&ptrMask | uint64(tag)<<tagShift
}

// taggedPtr extracts the address half of a packed word.
//
// The result is only dereferenced by callers that keep the pointed-to
// memory reachable through ordinary references (pool chunks); the
// packed word itself is invisible to the garbage collector.
func taggedPtr(v uint64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(v & ptrMask))
}

// taggedTag extracts the version half of a packed word.
func taggedTag(v uint64) uint16 {
	return uint16(v >> tagShift)
}
