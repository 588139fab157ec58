package array

import (
	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/kernels"
	"github.com/sbl8/arraycore/runtime"
)

// PtrCopy copies n reference slots from src starting at si into dest
// starting at di. The ranges may overlap.
//
// When the destination buffer owner is old and the source owner is not,
// references are copied one at a time until the first unmarked one, which
// queues the destination owner for rescanning; the rest is a bulk move.
func PtrCopy(dest *Array, di int, src *Array, si, n int) error {
	if !dest.flags.PtrArray || !src.flags.PtrArray {
		return core.Errorf(core.KindType, "ptr_copy", "reference arrays required, got %s and %s", dest, src)
	}
	if n < 0 {
		return core.Errorf(core.KindArgument, "ptr_copy", "negative count %d", n)
	}
	if di < 0 || di+n > dest.length {
		return core.BoundsError("ptr_copy", di+n)
	}
	if si < 0 || si+n > src.length {
		return core.BoundsError("ptr_copy", si+n)
	}
	if n == 0 {
		return nil
	}
	h := dest.heap
	dp := dest.data()[di*core.WordSize : (di+n)*core.WordSize]
	sp := src.data()[si*core.WordSize : (si+n)*core.WordSize]

	owner := dest.Owner()
	if h.IsOldMarked(owner) && !h.IsOldMarked(src.Owner()) {
		if !kernels.Overlaps(dp, sp) {
			for i := 0; i < n; i++ {
				off := i * core.WordSize
				ref := runtime.Ref(kernels.LoadWord(sp, off))
				kernels.StoreWord(dp, off, uint64(ref))
				if ref != 0 && !h.IsMarked(ref) {
					h.QueueRoot(owner)
					off += core.WordSize
					kernels.MoveWords(dp[off:], sp[off:])
					return nil
				}
			}
			return nil
		}
		for i := n - 1; i >= 0; i-- {
			off := i * core.WordSize
			ref := runtime.Ref(kernels.LoadWord(sp, off))
			kernels.StoreWord(dp, off, uint64(ref))
			if ref != 0 && !h.IsMarked(ref) {
				h.QueueRoot(owner)
				kernels.MoveWords(dp[:off], sp[:off])
				return nil
			}
		}
		return nil
	}
	kernels.MoveWords(dp, sp)
	return nil
}

// Push appends v to a vector.
func (a *Array) Push(v runtime.Value) error {
	if err := a.GrowEnd(1); err != nil {
		return err
	}
	if err := a.Set(a.length-1, v); err != nil {
		// drop the unwritten slot
		a.setLength(a.length - 1)
		a.terminate()
		return err
	}
	return nil
}

// Append copies the elements of other to the end of a. Both arrays must
// have the same element type.
func (a *Array) Append(other *Array) error {
	if other.elty != a.elty {
		return core.Errorf(core.KindType, "append", "cannot append %s to %s", other.elty, a.elty)
	}
	n := other.length
	if n == 0 {
		return nil
	}
	// other may be a
	start := a.length
	if err := a.GrowEnd(n); err != nil {
		return err
	}
	if a.flags.PtrArray {
		return PtrCopy(a, start, other, 0, n)
	}
	elsz := a.layout.ElemSize
	dst := a.data()[start*elsz : (start+n)*elsz]
	if a.flags.HasPtr {
		kernels.MoveMixed(dst, other.data(), elsz, a.elty.Pointers(), n)
		owner := a.Owner()
		for i := 0; i < n; i++ {
			for _, p := range a.elty.Pointers() {
				a.heap.WriteBarrier(owner, runtime.Ref(kernels.LoadWord(dst, i*elsz+p)))
			}
		}
	} else {
		a.move(dst, other.data()[:n*elsz])
	}
	if a.flags.IsUnion {
		copy(a.selectors()[start:], other.selectors()[:n])
	}
	return nil
}
