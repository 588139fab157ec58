package array

import (
	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/kernels"
	"github.com/sbl8/arraycore/model"
	"github.com/sbl8/arraycore/runtime"
)

// Get returns the element at linear index i.
//
// Reference slots that were never written, and inline structs whose first
// embedded reference is still zero, fail with an UndefRef error.
func (a *Array) Get(i int) (runtime.Value, error) {
	if i < 0 || i >= a.length {
		return runtime.Value{}, core.BoundsError("arrayref", i)
	}
	elsz := a.layout.ElemSize
	data := a.data()
	switch {
	case a.flags.PtrArray:
		ref := runtime.Ref(kernels.LoadWord(data, i*elsz))
		if ref == 0 {
			return runtime.Value{}, core.Errorf(core.KindUndefRef, "arrayref", "access to undefined reference at index %d", i)
		}
		return a.heap.Deref(ref)

	case a.flags.IsUnion:
		sel := a.selectors()[i]
		arm, ok := a.elty.Arm(sel)
		if !ok {
			return runtime.Value{}, core.Errorf(core.KindType, "arrayref", "invalid selector %d at index %d", sel, i)
		}
		slot := data[i*elsz : i*elsz+arm.Size()]
		return runtime.Bits(arm, slot)

	case a.flags.HasPtr:
		slot := data[i*elsz : (i+1)*elsz]
		if kernels.LoadWord(slot, a.elty.FirstPtr()) == 0 {
			return runtime.Value{}, core.Errorf(core.KindUndefRef, "arrayref", "access to undefined reference at index %d", i)
		}
		return runtime.Bits(a.elty, slot[:a.elty.Size()])
	}
	return runtime.Bits(a.elty, data[i*elsz:i*elsz+a.elty.Size()])
}

// Set stores v at linear index i. The value's type must conform to the
// element type. Reference stores go through the write barrier of the buffer
// owner.
func (a *Array) Set(i int, v runtime.Value) error {
	if i < 0 || i >= a.length {
		return core.BoundsError("arrayset", i)
	}
	if v.IsZero() {
		return core.Errorf(core.KindUndefRef, "arrayset", "cannot store an undefined value")
	}
	if a.elty != model.Any && !v.Type().Isa(a.elty) {
		return core.Errorf(core.KindType, "arrayset", "expected %s, got %s", a.elty, v.Type())
	}
	if a.flags.PtrArray {
		bv, err := a.heap.Box(v)
		if err != nil {
			return err
		}
		a.publish(i, bv.Ref())
		return nil
	}
	if v.Bits() == nil {
		// an inline value that arrived as a handle
		var err error
		if v, err = a.heap.Deref(v.Ref()); err != nil {
			return err
		}
	}

	elsz := a.layout.ElemSize
	slot := a.data()[i*elsz : (i+1)*elsz]
	switch {
	case a.flags.IsUnion:
		sel, ok := a.elty.ArmIndex(v.Type())
		if !ok {
			return core.Errorf(core.KindType, "arrayset", "%s is not an arm of %s", v.Type(), a.elty)
		}
		a.selectors()[i] = uint8(sel)
		if n := len(v.Bits()); n > 0 {
			copy(slot, v.Bits())
			clear(slot[n:])
		}

	case a.flags.HasPtr:
		ptrs := a.elty.Pointers()
		src := v.Bits()
		if len(src) < elsz {
			src = append(append(make([]byte, 0, elsz), src...), make([]byte, elsz-len(src))...)
		}
		kernels.MoveMixed(slot, src, elsz, ptrs, 1)
		owner := a.Owner()
		for _, p := range ptrs {
			a.heap.WriteBarrier(owner, runtime.Ref(kernels.LoadWord(slot, p)))
		}

	default:
		kernels.Assign(slot, v.Bits())
	}
	return nil
}

// publish stores a reference into slot i and runs the barrier against the
// buffer owner, which is what the collector scans.
func (a *Array) publish(i int, ref runtime.Ref) {
	kernels.StoreWord(a.data(), i*core.WordSize, uint64(ref))
	a.heap.WriteBarrier(a.Owner(), ref)
}

// Unset clears reference slot i so that it reads as undefined again.
func (a *Array) Unset(i int) error {
	if i < 0 || i >= a.length {
		return core.BoundsError("arrayunset", i)
	}
	elsz := a.layout.ElemSize
	data := a.data()
	switch {
	case a.flags.PtrArray:
		kernels.StoreWord(data, i*elsz, 0)
	case a.flags.HasPtr:
		for _, p := range a.elty.Pointers() {
			kernels.StoreWord(data, i*elsz+p, 0)
		}
	}
	return nil
}

// IsAssigned reports whether slot i holds a defined value. Slots of plain
// bits types are always assigned.
func (a *Array) IsAssigned(i int) (bool, error) {
	if i < 0 || i >= a.length {
		return false, core.BoundsError("isassigned", i)
	}
	elsz := a.layout.ElemSize
	data := a.data()
	switch {
	case a.flags.PtrArray:
		return kernels.LoadWord(data, i*elsz) != 0, nil
	case a.flags.HasPtr:
		return kernels.LoadWord(data, i*elsz+a.elty.FirstPtr()) != 0, nil
	}
	return true, nil
}

// Bytes returns the live payload of a byte array. The slice aliases the
// buffer and is invalidated by any structural change.
func (a *Array) Bytes() ([]byte, error) {
	if a.layout.ElemSize != 1 || a.flags.IsUnion {
		return nil, core.Errorf(core.KindType, "bytes", "%s is not a byte array", a)
	}
	return a.data()[:a.length], nil
}
