package runtime

import (
	"fmt"
	"log/slog"

	"github.com/sbl8/arraycore/core"
)

// Options configures heap and array allocation behavior.
type Options struct {
	// InlineMaxBytes is the largest payload allocated together with its header.
	InlineMaxBytes int
	// CacheAlignThreshold is the payload size from which inline headers are
	// padded to a cache line.
	CacheAlignThreshold int
	// MallocThreshold is the payload size from which buffers bypass the pool.
	MallocThreshold int
	// MaxSizeClass splits strings into small and large allocation classes.
	MaxSizeClass int
	// SmallAlign is the padding for unboxed payloads of 4-byte or wider elements.
	SmallAlign int
	// CacheAlign is the padding for large inline payloads.
	CacheAlign int
	// UseMmap serves large buffers from anonymous mappings outside the Go heap.
	UseMmap bool

	Logger *slog.Logger
	Sink   AllocSink
}

// DefaultOptions provides the standard thresholds.
func DefaultOptions() Options {
	return Options{
		InlineMaxBytes:      2048 * 8,
		CacheAlignThreshold: 2048,
		MallocThreshold:     1 << 20,
		MaxSizeClass:        2032 - 8,
		SmallAlign:          core.SmallAlignment,
		CacheAlign:          core.CacheLineSize,
		UseMmap:             true,
	}
}

// Validate checks option consistency.
func (o Options) Validate() error {
	if o.InlineMaxBytes <= 0 {
		return fmt.Errorf("inline threshold must be positive, got %d", o.InlineMaxBytes)
	}
	if o.CacheAlignThreshold <= 0 {
		return fmt.Errorf("cache alignment threshold must be positive, got %d", o.CacheAlignThreshold)
	}
	if o.MallocThreshold <= o.InlineMaxBytes {
		return fmt.Errorf("malloc threshold %d must exceed inline threshold %d", o.MallocThreshold, o.InlineMaxBytes)
	}
	if o.MaxSizeClass <= 0 {
		return fmt.Errorf("max size class must be positive, got %d", o.MaxSizeClass)
	}
	if !core.IsPowerOfTwo(o.SmallAlign) || !core.IsPowerOfTwo(o.CacheAlign) {
		return fmt.Errorf("alignments must be powers of two, got %d and %d", o.SmallAlign, o.CacheAlign)
	}
	if o.CacheAlign > core.CacheLineSize {
		return fmt.Errorf("cache alignment %d exceeds buffer alignment %d", o.CacheAlign, core.CacheLineSize)
	}
	return nil
}
