// Package kernels provides the bulk data movers used by the array engine.
//
// Array payloads are plain byte buffers. Reference slots inside them are
// 8-byte handles that a concurrent collector may read at any time, so every
// mover that can touch a reference slot writes it with a single atomic word
// store instead of a byte copy. Raw bits payloads go through the byte mover.
//
// Available operations:
//   - Word slot access: LoadWord, StoreWord, StoreWordRelaxed
//   - Reference-aware bulk moves: MoveWords, MoveMixed
//   - Raw moves: MoveBytes, AlignedCopy
//   - Small fixed-size assignment dispatched through the Assigners table
//   - Zeroing: Zero
//
// Buffers handed to the word operations must be 8-byte aligned; the runtime
// allocates every engine buffer cache-line aligned.
package kernels

import (
	"sync/atomic"
	"unsafe"
)

// WordSize is the width of one reference slot.
const WordSize = 8

// AssignFn copies one element of a fixed size from src to dst.
type AssignFn func(dst, src []byte)

// Assigners maps small element sizes to specialized single-element copies.
var Assigners = [17]AssignFn{
	1:  assign1,
	2:  assign2,
	4:  assign4,
	8:  assign8,
	16: assign16,
}

func wordAt(buf []byte, off int) *uint64 {
	_ = buf[off+WordSize-1]
	return (*uint64)(unsafe.Pointer(&buf[off]))
}

// LoadWord atomically reads the reference slot at byte offset off.
func LoadWord(buf []byte, off int) uint64 {
	return atomic.LoadUint64(wordAt(buf, off))
}

// StoreWord atomically writes the reference slot at byte offset off.
// Go atomics are sequentially consistent, which subsumes release ordering.
func StoreWord(buf []byte, off int, v uint64) {
	atomic.StoreUint64(wordAt(buf, off), v)
}

// StoreWordRelaxed clears or sets a slot when no barrier decision follows.
func StoreWordRelaxed(buf []byte, off int, v uint64) {
	atomic.StoreUint64(wordAt(buf, off), v)
}

// Overlaps reports whether dst begins inside src, which forces a backward copy.
func Overlaps(dst, src []byte) bool {
	if len(dst) == 0 || len(src) == 0 {
		return false
	}
	d := uintptr(unsafe.Pointer(&dst[0]))
	s := uintptr(unsafe.Pointer(&src[0]))
	return d > s && d < s+uintptr(len(src))
}

// MoveWords copies reference words from src to dst one atomic store at a time.
// len(src) must be a multiple of WordSize; overlapping ranges are handled.
func MoveWords(dst, src []byte) {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	n &^= WordSize - 1
	if Overlaps(dst[:n], src[:n]) {
		for off := n - WordSize; off >= 0; off -= WordSize {
			StoreWordRelaxed(dst, off, LoadWord(src, off))
		}
		return
	}
	for off := 0; off < n; off += WordSize {
		StoreWordRelaxed(dst, off, LoadWord(src, off))
	}
}

// MoveMixed copies count elements of elsz bytes whose reference words sit at
// the given offsets. Reference words are stored atomically, the rest as bytes.
func MoveMixed(dst, src []byte, elsz int, pointers []int, count int) {
	if count == 0 {
		return
	}
	total := elsz * count
	backward := Overlaps(dst[:total], src[:total])
	step := func(i int) {
		base := i * elsz
		d := dst[base : base+elsz]
		s := src[base : base+elsz]
		copyNonPtr(d, s, pointers)
		for _, p := range pointers {
			StoreWordRelaxed(d, p, LoadWord(s, p))
		}
	}
	if backward {
		for i := count - 1; i >= 0; i-- {
			step(i)
		}
		return
	}
	for i := 0; i < count; i++ {
		step(i)
	}
}

// copyNonPtr copies the bytes of one element that are not reference words.
func copyNonPtr(d, s []byte, pointers []int) {
	prev := 0
	for _, p := range pointers {
		if p > prev {
			copy(d[prev:p], s[prev:p])
		}
		prev = p + WordSize
	}
	if prev < len(s) {
		copy(d[prev:], s[prev:])
	}
}

// MoveBytes is a memmove of raw bits. Go's copy handles overlap.
func MoveBytes(dst, src []byte) int {
	return copy(dst, src)
}

// Assign copies a single element, using the specialized assigner when one
// exists for the size.
func Assign(dst, src []byte) {
	n := len(src)
	if n < len(Assigners) {
		if fn := Assigners[n]; fn != nil {
			fn(dst, src)
			return
		}
	}
	copy(dst[:n], src)
}

// Zero clears b.
func Zero(b []byte) {
	clear(b)
}

func assign1(dst, src []byte) { dst[0] = src[0] }

func assign2(dst, src []byte) {
	_, _ = dst[1], src[1]
	*(*uint16)(unsafe.Pointer(&dst[0])) = *(*uint16)(unsafe.Pointer(&src[0]))
}

func assign4(dst, src []byte) {
	_, _ = dst[3], src[3]
	*(*uint32)(unsafe.Pointer(&dst[0])) = *(*uint32)(unsafe.Pointer(&src[0]))
}

func assign8(dst, src []byte) {
	_, _ = dst[7], src[7]
	*(*uint64)(unsafe.Pointer(&dst[0])) = *(*uint64)(unsafe.Pointer(&src[0]))
}

func assign16(dst, src []byte) {
	_, _ = dst[15], src[15]
	*(*[2]uint64)(unsafe.Pointer(&dst[0])) = *(*[2]uint64)(unsafe.Pointer(&src[0]))
}
