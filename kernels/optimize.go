package kernels

import (
	"runtime"
)

// CacheLineSize is the chunk size used by AlignedCopy.
const CacheLineSize = 64

// AlignedCopy copies non-overlapping buffers in cache-line chunks.
// Returns the number of bytes copied.
func AlignedCopy(dst, src []byte) int {
	n := len(src)
	if len(dst) < n {
		n = len(dst)
	}
	for i := 0; i < n; i += CacheLineSize {
		end := i + CacheLineSize
		if end > n {
			end = n
		}
		copy(dst[i:end], src[i:end])
	}
	return n
}

// ScratchPool hands out reusable byte slices for temporary copies, such as
// saving union selector bytes across a buffer move.
type ScratchPool struct {
	buffers chan []byte
	size    int
}

// NewScratchPool creates a pool of bufferSize-byte slices.
func NewScratchPool(bufferSize, poolSize int) *ScratchPool {
	sp := &ScratchPool{
		buffers: make(chan []byte, poolSize),
		size:    bufferSize,
	}
	for i := 0; i < poolSize; i++ {
		sp.buffers <- make([]byte, bufferSize)
	}
	return sp
}

// Get returns a slice of length n. Requests larger than the pooled size are
// served by a fresh allocation.
func (sp *ScratchPool) Get(n int) []byte {
	if n > sp.size {
		return make([]byte, n)
	}
	select {
	case buf := <-sp.buffers:
		return buf[:n]
	default:
		return make([]byte, n, sp.size)
	}
}

// Put returns a buffer obtained from Get.
func (sp *ScratchPool) Put(buf []byte) {
	if cap(buf) != sp.size {
		return
	}
	select {
	case sp.buffers <- buf[:sp.size]:
	default:
		// pool full, let GC handle it
	}
}

var scratch = NewScratchPool(4096, runtime.NumCPU()*2)

// GetScratch gets a temporary buffer of n bytes.
func GetScratch(n int) []byte {
	return scratch.Get(n)
}

// PutScratch returns a temporary buffer.
func PutScratch(buf []byte) {
	scratch.Put(buf)
}
