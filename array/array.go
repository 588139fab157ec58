// Package array implements the dynamic array engine: allocation of array
// headers and payloads, amortized growth and shrinking at both ends, typed
// element access with write barriers, buffer sharing between arrays and
// strings, and the conversion bridge between byte arrays and strings.
//
// An Array is a heap object registered with a runtime.Heap. Its payload is a
// byte buffer whose storage strategy is one of runtime.Inline,
// runtime.PoolBuffer, runtime.MallocBuffer or runtime.Borrowed. Reference
// elements are stored as 8-byte runtime.Ref handles.
//
// Payload layout of a one-dimensional array with capacity maxsize:
//
//	[offset slots][length live slots][free slots] [NUL] | [maxsize selector bytes]
//
// The NUL byte exists for owned byte arrays only; selector bytes exist for
// tagged-union element types only, one per slot, following the typed payload.
//
// Arrays are not safe for concurrent mutation. A given array must be mutated
// by at most one goroutine at a time; element reads and writes of reference
// slots are atomic only so the collector sees whole handles.
package array

import (
	"fmt"

	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/kernels"
	"github.com/sbl8/arraycore/model"
	"github.com/sbl8/arraycore/runtime"
)

// Flags are the layout and sharing bits of an array header.
type Flags struct {
	PtrArray  bool // slots hold references
	HasPtr    bool // slots are inline structs embedding references
	IsUnion   bool // selector bytes follow the payload
	IsShared  bool // the buffer is aliased by another array or a string
	IsAligned bool // the buffer was allocated by the engine with full alignment
}

// Array is the array header.
type Array struct {
	runtime.Header

	heap    *runtime.Heap
	elty    *model.Type
	layout  core.Layout
	storage runtime.Storage
	owner   runtime.Object // set only for Borrowed storage

	buf     []byte // allocation start, or view start for Borrowed
	length  int
	maxsize int
	offset  int
	dims    []int
	flags   Flags

	hdrBytes int
}

// base header size: data pointer, length, flags, element size, offset, and
// two dimension words. Further dimensions take a word each.
const baseHeaderBytes = 40

func headerSize(ndims int) int {
	if ndims > 2 {
		return baseHeaderBytes + core.WordSize*(ndims-2)
	}
	return baseHeaderBytes
}

func (a *Array) TypeOf() *model.Type { return model.Array }

// Scan reports the owner and every live reference element.
func (a *Array) Scan(visit func(runtime.Ref)) {
	if a.storage == runtime.Borrowed && a.owner != nil {
		visit(a.owner.GCHeader().Ref())
	}
	if !a.flags.PtrArray && !a.flags.HasPtr {
		return
	}
	data := a.data()
	elsz := a.layout.ElemSize
	for i := 0; i < a.length; i++ {
		if a.flags.PtrArray {
			visit(runtime.Ref(kernels.LoadWord(data, i*elsz)))
			continue
		}
		for _, p := range a.elty.Pointers() {
			visit(runtime.Ref(kernels.LoadWord(data, i*elsz+p)))
		}
	}
}

// FreeBuffers releases an owned detached buffer when the array is swept.
func (a *Array) FreeBuffers(h *runtime.Heap) {
	switch a.storage {
	case runtime.PoolBuffer:
		h.PoolFree(a.buf)
	case runtime.MallocBuffer:
		h.Free(a.buf)
	}
	a.buf = nil
	a.length, a.maxsize, a.offset = 0, 0, 0
}

// Len returns the element count.
func (a *Array) Len() int { return a.length }

// NDims returns the number of dimensions.
func (a *Array) NDims() int { return len(a.dims) }

// Dims returns a copy of the extents.
func (a *Array) Dims() []int { return append([]int(nil), a.dims...) }

// ElType returns the declared element type.
func (a *Array) ElType() *model.Type { return a.elty }

// ElemSize returns the bytes per slot.
func (a *Array) ElemSize() int { return a.layout.ElemSize }

// Storage returns the allocation strategy of the payload.
func (a *Array) Storage() runtime.Storage { return a.storage }

// Capacity returns maxsize, the slot capacity of the buffer.
func (a *Array) Capacity() int { return a.maxsize }

// Offset returns the unused slots before the first element.
func (a *Array) Offset() int { return a.offset }

// Flags returns the header flags.
func (a *Array) Flags() Flags { return a.flags }

// IsShared reports whether the buffer is aliased.
func (a *Array) IsShared() bool { return a.flags.IsShared }

// HeaderBytes returns the header size including payload alignment padding
// for inline arrays.
func (a *Array) HeaderBytes() int { return a.hdrBytes }

// Heap returns the heap the array lives in.
func (a *Array) Heap() *runtime.Heap { return a.heap }

// DataAddr returns the address of the first element.
func (a *Array) DataAddr() uintptr {
	return core.AddrOf(a.buf) + uintptr(a.offset*a.layout.ElemSize)
}

// Owner returns the object that owns the backing bytes: the array itself,
// or for a borrowed buffer the string, foreign block or array it came from.
func (a *Array) Owner() runtime.Object {
	if a.storage == runtime.Borrowed && a.owner != nil {
		return a.owner
	}
	return a
}

// data returns the buffer from the first live element on.
func (a *Array) data() []byte {
	return a.buf[a.offset*a.layout.ElemSize:]
}

// tagStart returns the buffer position of the selector byte of slot 0.
// For N-D arrays maxsize equals length and offset is zero.
func (a *Array) tagStart() int {
	return a.maxsize*a.layout.ElemSize + a.offset
}

// selectors returns the live selector bytes.
func (a *Array) selectors() []byte {
	t := a.tagStart()
	return a.buf[t : t+a.length]
}

// move copies payload bytes, using atomic word stores when the region may
// hold references.
func (a *Array) move(dst, src []byte) {
	if a.flags.PtrArray || a.flags.HasPtr {
		kernels.MoveWords(dst, src)
		return
	}
	kernels.MoveBytes(dst, src)
}

// terminate rewrites the implicit NUL after the last byte of an owned or
// string-backed byte array.
func (a *Array) terminate() {
	if !a.layout.HasImplicitByte() {
		return
	}
	if a.storage == runtime.Borrowed {
		if _, ok := a.owner.(*runtime.String); !ok {
			return
		}
	}
	if pos := a.offset + a.length; pos < len(a.buf) {
		a.buf[pos] = 0
	}
}

func (a *Array) setLength(n int) {
	a.length = n
	if len(a.dims) == 1 {
		a.dims[0] = n
	}
}

func (a *Array) String() string {
	return fmt.Sprintf("Array{%s,%d}(len=%d cap=%d off=%d %s shared=%t)",
		a.elty, len(a.dims), a.length, a.maxsize, a.offset, a.storage, a.flags.IsShared)
}
