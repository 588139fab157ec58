package core

import "unsafe"

const (
	// CacheLineSize is a common cache line size, typically 64 bytes.
	// Headers whose payload crosses the cache alignment threshold are padded to it.
	CacheLineSize = 64

	// SmallAlignment is the alignment given to unboxed payloads of elements
	// four bytes wide or wider.
	SmallAlignment = 16

	// HeapAlignment is the strongest alignment a foreign buffer is required to honor.
	HeapAlignment = 16

	// WordSize is the width of one reference slot.
	WordSize = 8
)

// IsAligned checks if addr is a multiple of align. align must be a power of two.
func IsAligned(addr uintptr, align uintptr) bool {
	return addr&(align-1) == 0
}

// AlignSize rounds size up to the specified alignment boundary.
// align must be a power of two.
func AlignSize(size, align int) int {
	return (size + align - 1) &^ (align - 1)
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// AlignedBytes allocates a byte slice whose first byte sits on a cache line
// boundary. Reference slots are read and written with 64-bit atomics, so every
// engine-owned buffer comes from here.
// Returns nil when size is zero.
func AlignedBytes(size int) []byte {
	if size == 0 {
		return nil
	}
	// Over-allocate by at most CacheLineSize-1 and slice at the next boundary.
	buf := make([]byte, size+CacheLineSize-1)

	ptr := uintptr(unsafe.Pointer(&buf[0]))
	offset := uintptr(0)
	if mod := ptr % CacheLineSize; mod != 0 {
		offset = CacheLineSize - mod
	}

	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}

// AddrOf returns the address of b[0], or 0 for an empty slice.
func AddrOf(b []byte) uintptr {
	if cap(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}
