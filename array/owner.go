package array

import (
	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/model"
	"github.com/sbl8/arraycore/runtime"
)

// Reshape returns a borrowed view of a's buffer with new extents. The view's
// owner is a's ultimate owner, and both headers are marked shared so that a
// later structural change of either copies instead of moving the buffer.
func (a *Array) Reshape(dims ...int) (*Array, error) {
	nel, err := core.DimsProduct(dims)
	if err != nil {
		return nil, err
	}
	if nel != a.length {
		return nil, core.Errorf(core.KindArgument, "reshape",
			"dimensions %v must be consistent with array length %d", dims, a.length)
	}
	if a.flags.IsUnion && (a.offset != 0 || a.maxsize != a.length) {
		return nil, core.Errorf(core.KindArgument, "reshape",
			"selector bytes of a union array with spare capacity cannot be reinterpreted")
	}

	v := &Array{
		heap:    a.heap,
		elty:    a.elty,
		layout:  a.layout,
		storage: runtime.Borrowed,
		owner:   a.Owner(),
		buf:     a.data(),
		length:  nel,
		maxsize: nel,
		dims:    append([]int(nil), dims...),
		flags:   a.flags,
	}
	v.flags.IsShared = true
	v.hdrBytes = headerSize(len(dims)) + core.WordSize
	a.flags.IsShared = true

	a.heap.Register(v)
	a.heap.WriteBarrier(v, v.owner.GCHeader().Ref())
	a.heap.NoteAlloc(a.elty, runtime.Borrowed, 0)
	return v, nil
}

// FromString returns a byte vector that borrows the bytes of s without
// copying. Both are shared; growing the vector may reallocate the string.
func FromString(h *runtime.Heap, s *runtime.String) *Array {
	n := s.Len()
	a := &Array{
		heap:     h,
		elty:     model.UInt8,
		layout:   core.LayoutOf(model.UInt8),
		storage:  runtime.Borrowed,
		owner:    s,
		buf:      s.Buffer(),
		length:   n,
		maxsize:  n,
		dims:     []int{n},
		flags:    Flags{IsShared: true},
		hdrBytes: headerSize(1) + core.WordSize,
	}
	h.Register(a)
	h.WriteBarrier(a, s.Ref())
	h.NoteAlloc(model.UInt8, runtime.Borrowed, 0)
	return a
}

// WrapForeign builds an array over memory the engine did not allocate. With
// own set, the buffer becomes the array's tracked malloc storage; otherwise
// the array borrows it from a Foreign owner object. Either way the buffer is
// shared and cannot be resized.
func WrapForeign(h *runtime.Heap, elty *model.Type, buf []byte, own bool, dims ...int) (*Array, error) {
	nel, err := core.DimsProduct(dims)
	if err != nil {
		return nil, err
	}
	layout := core.LayoutOf(elty)
	if layout.IsUnion {
		return nil, core.Errorf(core.KindArgument, "unsafe_wrap", "unspecified layout for union element type")
	}
	align := min(layout.Align, core.HeapAlignment)
	if addr := core.AddrOf(buf); addr != 0 && !core.IsAligned(addr, uintptr(align)) {
		return nil, core.Errorf(core.KindArgument, "unsafe_wrap",
			"pointer %#x is not properly aligned to %d bytes", addr, align)
	}
	nbytes := nel * layout.ElemSize
	if len(buf) < nbytes {
		return nil, core.Errorf(core.KindArgument, "unsafe_wrap",
			"buffer of %d bytes cannot hold %d elements of %d bytes", len(buf), nel, layout.ElemSize)
	}

	a := &Array{
		heap:     h,
		elty:     elty,
		layout:   layout,
		buf:      buf,
		length:   nel,
		maxsize:  nel,
		dims:     append([]int(nil), dims...),
		hdrBytes: headerSize(len(dims)),
		flags: Flags{
			PtrArray: layout.PtrArray,
			HasPtr:   layout.HasPtr,
			IsShared: true,
		},
	}
	if own {
		a.storage = runtime.MallocBuffer
		h.Register(a)
		h.TrackMalloced(a, len(buf))
		h.NoteAlloc(elty, runtime.MallocBuffer, len(buf))
		return a, nil
	}
	f := h.NewForeign(buf)
	a.storage = runtime.Borrowed
	a.owner = f
	h.Register(a)
	h.WriteBarrier(a, f.Ref())
	h.NoteAlloc(elty, runtime.Borrowed, 0)
	return a, nil
}

// checkResizable rejects structural changes the array cannot support.
func (a *Array) checkResizable(op string) error {
	if len(a.dims) != 1 {
		return core.Errorf(core.KindArgument, op, "cannot resize array with %d dimensions", len(a.dims))
	}
	if !a.flags.IsShared {
		return nil
	}
	if a.storage != runtime.Borrowed {
		return core.Errorf(core.KindSharedResize, op, "cannot resize array with shared data")
	}
	if _, ok := a.owner.(*runtime.Foreign); ok {
		return core.Errorf(core.KindSharedResize, op, "cannot resize array with shared data")
	}
	return nil
}

// tryUnshare gives a shared borrowed array its own copy of the buffer. A
// buffer borrowed from a string is copied into a fresh string.
func (a *Array) tryUnshare(op string) error {
	if !a.flags.IsShared {
		return nil
	}
	if err := a.checkResizable(op); err != nil {
		return err
	}
	n := a.maxsize
	if n == 0 {
		a.buf = core.AlignedBytes(a.layout.PayloadBytes(0))
		a.storage = runtime.Inline
		a.owner = nil
		a.flags.IsShared = false
		return nil
	}
	nbytes := n * a.layout.ElemSize
	if a.flags.IsUnion {
		nbytes += n
	}
	old := a.buf
	if _, err := a.resizeBuffer(n); err != nil {
		return err
	}
	a.move(a.buf, old[:nbytes])
	a.heap.NoteUnshare(nbytes)
	return nil
}

// resizeBuffer gives the array a buffer of newlen slots and reports whether
// it is a different buffer. A reallocated buffer keeps its contents from the
// start; a new buffer holds nothing and the caller moves the payload.
// On return buf is the start of the buffer and maxsize is newlen.
func (a *Array) resizeBuffer(newlen int) (bool, error) {
	h := a.heap
	nbytes := a.layout.PayloadBytes(newlen)
	oldnbytes := a.layout.PayloadBytes(a.maxsize)
	implicit := a.layout.HasImplicitByte()
	newbuf := false

	s, stringOwned := a.owner.(*runtime.String)
	switch {
	case a.storage == runtime.MallocBuffer:
		b, err := h.Realloc(a.buf, oldnbytes, nbytes)
		if err != nil {
			return false, err
		}
		a.buf = b
		h.TrackMalloced(a, cap(b))

	case a.storage == runtime.Borrowed && stringOwned && !a.flags.IsUnion:
		strlen := nbytes
		if implicit {
			strlen--
		}
		var err error
		if a.flags.IsShared {
			s, err = h.NewString(strlen)
			newbuf = true
		} else {
			s, err = h.ReallocString(s, strlen)
		}
		if err != nil {
			return false, err
		}
		a.owner = s
		h.WriteBarrier(a, s.Ref())
		a.buf = s.Buffer()
		h.NoteRealloc()

	default:
		newbuf = true
		from := a.storage
		if nbytes >= h.Options().MallocThreshold {
			b, err := h.Malloc(nbytes)
			if err != nil {
				return false, err
			}
			a.buf = b
			a.storage = runtime.MallocBuffer
			a.flags.IsAligned = true
			h.TrackMalloced(a, cap(b))
			if from != runtime.MallocBuffer {
				h.Logger().Debug("array buffer promoted to malloc", "from", from.String(), "bytes", nbytes)
			}
		} else {
			b, err := h.PoolAlloc(nbytes, false)
			if err != nil {
				return false, err
			}
			a.buf = b
			a.storage = runtime.PoolBuffer
		}
		a.owner = nil
		h.NoteAlloc(a.elty, a.storage, nbytes)
		h.NoteRealloc()
	}

	if implicit && oldnbytes > 0 {
		clear(a.buf[oldnbytes-1 : nbytes])
	}
	a.flags.IsShared = false
	a.maxsize = newlen
	return newbuf, nil
}

// retire releases a pool buffer the array no longer uses.
func (a *Array) retire(old []byte, from runtime.Storage) {
	if from == runtime.PoolBuffer {
		a.heap.PoolFree(old)
	}
}
