package array

import (
	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/kernels"
	"github.com/sbl8/arraycore/model"
	"github.com/sbl8/arraycore/runtime"
)

// New allocates an array of element type elty with the given extents.
//
// The payload strategy is chosen from its byte size: inline with the header
// up to the inline threshold, a pool buffer below the malloc threshold, and a
// mapped buffer tracked by the heap above it. Payloads are zero-filled when
// the layout requires it.
func New(h *runtime.Heap, elty *model.Type, dims ...int) (*Array, error) {
	if elty == nil {
		return nil, core.Errorf(core.KindArgument, "new_array", "nil element type")
	}
	layout := core.LayoutOf(elty)
	nel, tot, err := core.ValidateDims(dims, layout.ElemSize)
	if err != nil {
		return nil, err
	}
	if layout.HasImplicitByte() {
		tot++
	}
	if layout.IsUnion {
		tot += nel
	}

	a := &Array{
		heap:    h,
		elty:    elty,
		layout:  layout,
		length:  nel,
		maxsize: nel,
		dims:    append([]int(nil), dims...),
		flags: Flags{
			PtrArray:  layout.PtrArray,
			HasPtr:    layout.HasPtr,
			IsUnion:   layout.IsUnion,
			IsAligned: true,
		},
	}
	if err := a.allocPayload(tot); err != nil {
		return nil, err
	}
	return a, nil
}

// NewVector allocates a one-dimensional array of n elements.
func NewVector(h *runtime.Heap, elty *model.Type, n int) (*Array, error) {
	return New(h, elty, n)
}

// FromBytes allocates a byte vector holding a copy of b.
func FromBytes(h *runtime.Heap, b []byte) (*Array, error) {
	a, err := New(h, model.UInt8, len(b))
	if err != nil {
		return nil, err
	}
	copy(a.data(), b)
	return a, nil
}

func (a *Array) allocPayload(tot int) error {
	h := a.heap
	opts := h.Options()
	hdr := headerSize(len(a.dims))

	switch {
	case tot <= opts.InlineMaxBytes:
		if tot >= opts.CacheAlignThreshold {
			hdr = core.AlignSize(hdr, opts.CacheAlign)
		} else if !a.flags.PtrArray && a.layout.ElemSize >= 4 {
			hdr = core.AlignSize(hdr, opts.SmallAlign)
		}
		a.storage = runtime.Inline
		a.buf = core.AlignedBytes(tot)
		h.Register(a)
	case tot >= opts.MallocThreshold:
		b, err := h.Malloc(tot)
		if err != nil {
			return err
		}
		a.storage = runtime.MallocBuffer
		a.buf = b
		h.Register(a)
		h.TrackMalloced(a, cap(b))
	default:
		b, err := h.PoolAlloc(tot, a.layout.ZeroInit)
		if err != nil {
			return err
		}
		a.storage = runtime.PoolBuffer
		a.buf = b
		h.Register(a)
	}
	a.hdrBytes = hdr
	if a.layout.HasImplicitByte() {
		a.buf[tot-1] = 0
	}
	h.NoteAlloc(a.elty, a.storage, tot)
	return nil
}

// Copy returns a new owned array with the same type, shape and contents.
func (a *Array) Copy() (*Array, error) {
	c, err := New(a.heap, a.elty, a.dims...)
	if err != nil {
		return nil, err
	}
	nb := a.length * a.layout.ElemSize
	c.move(c.data(), a.data()[:nb])
	if a.flags.IsUnion {
		copy(c.selectors(), a.selectors())
	}
	return c, nil
}

// Fill stores v into every slot.
func (a *Array) Fill(v runtime.Value) error {
	if a.length == 0 {
		return nil
	}
	if err := a.Set(0, v); err != nil {
		return err
	}
	elsz := a.layout.ElemSize
	data := a.data()
	for i := 1; i < a.length; i++ {
		if a.flags.PtrArray {
			a.publish(i, runtime.Ref(kernels.LoadWord(data, 0)))
			continue
		}
		a.move(data[i*elsz:(i+1)*elsz], data[:elsz])
		if a.flags.IsUnion {
			tags := a.selectors()
			tags[i] = tags[0]
		}
	}
	return nil
}
