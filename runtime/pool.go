package runtime

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/sbl8/arraycore/core"
)

const (
	// MinClassSize is the smallest pool size class.
	MinClassSize = 16
	minClassShift = 4
)

// BufferPool serves detached array and string buffers in power-of-two size
// classes from MinClassSize up to a maximum. Buffers are cache-line aligned
// and may hold stale contents when reused.
type BufferPool struct {
	classes []sync.Pool
	maxSize int
}

// NewBufferPool creates a pool whose largest class holds maxSize bytes.
func NewBufferPool(maxSize int) (*BufferPool, error) {
	if maxSize < MinClassSize {
		return nil, fmt.Errorf("pool max size %d below minimum class %d", maxSize, MinClassSize)
	}
	n := classIndex(maxSize) + 1
	p := &BufferPool{classes: make([]sync.Pool, n), maxSize: ClassSize(maxSize)}
	for i := range p.classes {
		size := MinClassSize << i
		p.classes[i].New = func() any {
			b := core.AlignedBytes(size)
			return &b
		}
	}
	return p, nil
}

// classIndex returns the class serving n bytes.
func classIndex(n int) int {
	if n <= MinClassSize {
		return 0
	}
	return bits.Len(uint(n-1)) - minClassShift
}

// ClassSize returns the capacity of the buffer that would serve n bytes.
func ClassSize(n int) int {
	return MinClassSize << classIndex(n)
}

// MaxSize returns the capacity of the largest class.
func (p *BufferPool) MaxSize() int { return p.maxSize }

// Get returns a buffer of length n whose capacity is the class size.
func (p *BufferPool) Get(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if n > p.maxSize {
		return nil, fmt.Errorf("pool request %d exceeds largest class %d", n, p.maxSize)
	}
	bp := p.classes[classIndex(n)].Get().(*[]byte)
	return (*bp)[:n], nil
}

// Put releases a buffer obtained from Get. Buffers of foreign capacity are dropped.
func (p *BufferPool) Put(b []byte) {
	c := cap(b)
	if c < MinClassSize || c > p.maxSize || c&(c-1) != 0 {
		return
	}
	b = b[:c]
	p.classes[classIndex(c)].Put(&b)
}
