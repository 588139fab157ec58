package array

import (
	"math/bits"

	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/kernels"
	"github.com/sbl8/arraycore/runtime"
)

// overallocation returns the next capacity after maxsize:
// maxsize + 4*maxsize^(7/8) + maxsize/8, at least 8. Small arrays grow
// faster than linearly; large ones add about an eighth each time.
func overallocation(maxsize int) int {
	if maxsize < 8 {
		return 8
	}
	exp2 := bits.Len(uint(maxsize))
	return maxsize + (1<<(exp2*7/8))*4 + maxsize/8
}

// GrowAt inserts inc uninitialized slots before index idx. Slots of layouts
// that require zero-fill read as undefined; others hold unspecified bits.
func (a *Array) GrowAt(idx, inc int) error {
	n := a.length
	if idx < 0 || idx > n {
		return core.BoundsError("grow_at", idx)
	}
	if err := a.checkGrow("grow_at", inc); err != nil {
		return err
	}
	if idx+1 < n/2 {
		return a.growAtBeg(idx, inc, n)
	}
	return a.growAtEnd(idx, inc, n)
}

// GrowEnd appends inc slots.
func (a *Array) GrowEnd(inc int) error {
	if err := a.checkGrow("grow_end", inc); err != nil {
		return err
	}
	return a.growAtEnd(a.length, inc, a.length)
}

// GrowBeg prepends inc slots.
func (a *Array) GrowBeg(inc int) error {
	if err := a.checkGrow("grow_beg", inc); err != nil {
		return err
	}
	return a.growAtBeg(0, inc, a.length)
}

func (a *Array) checkGrow(op string, inc int) error {
	if inc < 0 {
		return core.Errorf(core.KindArgument, op, "negative increment %d", inc)
	}
	if err := a.checkResizable(op); err != nil {
		return err
	}
	used := a.offset + a.length
	if inc >= core.MaxIntVal-used {
		return core.Errorf(core.KindSizeOverflow, op, "invalid Array size")
	}
	_, _, err := core.ValidateDims([]int{used + inc}, a.layout.ElemSize)
	return err
}

// growAtBeg opens inc slots at idx by moving the prefix toward the front.
// It reuses leading slack when there is enough, re-centers the window when
// the trailing slack can absorb the growth, and reallocates otherwise with
// room left at both ends.
func (a *Array) growAtBeg(idx, inc, n int) error {
	if a.flags.IsShared && inc == 0 {
		return a.tryUnshare("grow_beg")
	}
	elsz := a.layout.ElemSize
	isunion := a.flags.IsUnion
	newnrows := n + inc
	nbinc := inc * elsz
	nb1 := idx * elsz
	dataOff := a.offset * elsz

	var tags []byte
	if isunion {
		tags = kernels.GetScratch(n)
		copy(tags, a.selectors())
		defer kernels.PutScratch(tags)
	}

	var newDataOff int
	switch {
	case a.offset >= inc:
		// enough leading slack: slide the prefix left
		newDataOff = dataOff - nbinc
		a.offset -= inc
		if idx > 0 {
			a.move(a.buf[newDataOff:], a.buf[dataOff:dataOff+nb1])
		}

	case inc > (a.maxsize-n)/2-(a.maxsize-n)/20:
		// not enough room at the end either: reallocate
		newlen := inc * 2
		for n+2*inc > newlen-a.offset {
			newlen *= 2
		}
		if m := overallocation(a.maxsize); newlen < m {
			newlen = m
		}
		newoffset := (newlen - newnrows) / 2

		old, from := a.buf, a.storage
		newbuf, err := a.resizeBuffer(newlen)
		if err != nil {
			return err
		}
		src := old
		if !newbuf {
			src = a.buf
		}
		newDataOff = newoffset * elsz
		prefix := src[dataOff : dataOff+nb1]
		suffix := src[dataOff+nb1 : dataOff+n*elsz]
		if newbuf {
			a.move(a.buf[newDataOff:], prefix)
			a.move(a.buf[newDataOff+nbinc+nb1:], suffix)
			a.retire(old, from)
		} else {
			a.moveAround(newDataOff, dataOff, nb1, nbinc, n*elsz)
		}
		a.offset = newoffset

	default:
		// use the slack between the end and maxsize: re-center the window
		a.offset = (a.maxsize - newnrows) / 2
		newDataOff = a.offset * elsz
		a.moveAround(newDataOff, dataOff, nb1, nbinc, n*elsz)
	}

	a.setLength(newnrows)
	if a.layout.ZeroInit {
		clear(a.buf[newDataOff+nb1 : newDataOff+nb1+nbinc])
	}
	if isunion {
		a.writeTags(tags, idx, inc, n)
	}
	a.terminate()
	return nil
}

// moveAround moves a payload of total bytes within the buffer from oldOff to
// newOff, opening a gap of nbinc bytes after the first nb1 bytes. The order
// of the two moves keeps overlapping ranges intact.
func (a *Array) moveAround(newOff, oldOff, nb1, nbinc, total int) {
	if nb1 > 0 && newOff < oldOff {
		a.move(a.buf[newOff:], a.buf[oldOff:oldOff+nb1])
	}
	a.move(a.buf[newOff+nbinc+nb1:], a.buf[oldOff+nb1:oldOff+total])
	if nb1 > 0 && newOff > oldOff {
		a.move(a.buf[newOff:], a.buf[oldOff:oldOff+nb1])
	}
}

// writeTags lays out saved selector bytes around a zeroed gap of inc slots
// at idx, at the current selector position.
func (a *Array) writeTags(saved []byte, idx, inc, n int) {
	t := a.tagStart()
	tags := a.buf[t : t+n+inc]
	copy(tags[:idx], saved[:idx])
	clear(tags[idx : idx+inc])
	copy(tags[idx+inc:], saved[idx:n])
}

// growAtEnd opens inc slots at idx by moving the suffix toward the end,
// reallocating to the overallocated capacity when the buffer is full.
func (a *Array) growAtEnd(idx, inc, n int) error {
	if a.flags.IsShared && inc == 0 {
		return a.tryUnshare("grow_end")
	}
	elsz := a.layout.ElemSize
	isunion := a.flags.IsUnion
	hasGap := n > idx
	nb1 := idx * elsz
	nbinc := inc * elsz
	dataOff := a.offset * elsz
	reqmaxsize := a.offset + n + inc

	var tags []byte
	if isunion {
		tags = kernels.GetScratch(n)
		copy(tags, a.selectors())
		defer kernels.PutScratch(tags)
	}

	if reqmaxsize > a.maxsize {
		newmaxsize := overallocation(a.maxsize)
		if newmaxsize < reqmaxsize {
			newmaxsize = reqmaxsize
		}
		old, from := a.buf, a.storage
		newbuf, err := a.resizeBuffer(newmaxsize)
		if err != nil {
			return err
		}
		if newbuf {
			a.move(a.buf[dataOff:], old[dataOff:dataOff+nb1])
			if hasGap {
				a.move(a.buf[dataOff+nb1+nbinc:], old[dataOff+nb1:dataOff+n*elsz])
			}
			a.retire(old, from)
		} else if hasGap {
			a.move(a.buf[dataOff+nb1+nbinc:], a.buf[dataOff+nb1:dataOff+n*elsz])
		}
	} else if hasGap {
		a.move(a.buf[dataOff+nb1+nbinc:], a.buf[dataOff+nb1:dataOff+n*elsz])
	}

	a.setLength(n + inc)
	if a.layout.ZeroInit {
		clear(a.buf[dataOff+nb1 : dataOff+nb1+nbinc])
	}
	if isunion {
		a.writeTags(tags, idx, inc, n)
	}
	a.terminate()
	return nil
}

// SizeHint makes room for sz elements, or gives back capacity when sz is
// well below it. Shrinking happens only when at least an eighth of the
// capacity is saved.
func (a *Array) SizeHint(sz int) error {
	if len(a.dims) != 1 {
		return core.Errorf(core.KindArgument, "sizehint", "cannot resize array with %d dimensions", len(a.dims))
	}
	n := a.length
	if lo := a.offset + a.length; sz < lo {
		sz = lo
	}
	if sz <= a.maxsize {
		dec := a.maxsize - sz
		if dec <= a.maxsize/8 {
			return nil
		}
		return a.shrink(dec)
	}
	if err := a.GrowEnd(sz - n); err != nil {
		return err
	}
	a.setLength(n)
	a.terminate()
	return nil
}

// shrink drops dec slots of trailing capacity from an owned buffer.
// Inline and borrowed buffers are left alone.
func (a *Array) shrink(dec int) error {
	if !a.storage.Owned() {
		return nil
	}
	if a.flags.IsShared {
		return core.Errorf(core.KindSharedResize, "sizehint", "cannot resize array with shared data")
	}
	h := a.heap
	newmax := a.maxsize - dec
	newbytes := a.layout.PayloadBytes(newmax)

	var tags []byte
	if a.flags.IsUnion {
		tags = kernels.GetScratch(a.length)
		copy(tags, a.selectors())
		defer kernels.PutScratch(tags)
	}

	switch a.storage {
	case runtime.PoolBuffer:
		nb, err := h.PoolAlloc(newbytes, false)
		if err != nil {
			return err
		}
		payload := min(newbytes, newmax*a.layout.ElemSize)
		a.move(nb, a.buf[:payload])
		h.PoolFree(a.buf)
		a.buf = nb
		h.NoteAlloc(a.elty, runtime.PoolBuffer, newbytes)
		h.NoteRealloc()
	case runtime.MallocBuffer:
		nb, err := h.Malloc(newbytes)
		if err != nil {
			return err
		}
		payload := min(newbytes, newmax*a.layout.ElemSize)
		a.move(nb, a.buf[:payload])
		h.Free(a.buf)
		a.buf = nb
		h.TrackMalloced(a, cap(nb))
		h.NoteAlloc(a.elty, runtime.MallocBuffer, newbytes)
		h.NoteRealloc()
	}
	a.maxsize = newmax
	if a.flags.IsUnion {
		copy(a.selectors(), tags)
	}
	a.terminate()
	return nil
}
