package runtime

import (
	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/kernels"
	"github.com/sbl8/arraycore/model"
)

// Box is a heap object holding the bits of one value: a boxed inline value
// stored in a reference slot, or an instance of a mutable type.
type Box struct {
	Header
	typ  *model.Type
	bits []byte
}

func (b *Box) TypeOf() *model.Type { return b.typ }

// Scan visits the reference fields of the boxed layout.
func (b *Box) Scan(visit func(Ref)) {
	for _, off := range b.typ.Pointers() {
		visit(Ref(kernels.LoadWord(b.bits, off)))
	}
}

// Box stores v in a fresh heap object and returns a value carrying both
// its bits and the new handle. Values that already have a handle are
// returned unchanged.
func (h *Heap) Box(v Value) (Value, error) {
	if v.ref != 0 {
		return v, nil
	}
	if v.typ == nil {
		return Value{}, core.Errorf(core.KindUndefRef, "box", "cannot box an undefined value")
	}
	b := &Box{typ: v.typ, bits: core.AlignedBytes(max(len(v.bits), core.WordSize))}
	copy(b.bits, v.bits)
	v.ref = h.Register(b)
	h.NoteAlloc(v.typ, Inline, len(v.bits))
	return v, nil
}

// New allocates a zeroed instance of a mutable type.
func (h *Heap) New(t *model.Type) (Value, error) {
	if t.Kind != model.KindMutable || t == model.String || t == model.Array || t == model.Foreign {
		return Value{}, core.Errorf(core.KindType, "new", "%s is not a user mutable type", t)
	}
	b := &Box{typ: t, bits: core.AlignedBytes(max(t.Size(), core.WordSize))}
	ref := h.Register(b)
	h.NoteAlloc(t, Inline, t.Size())
	return RefValue(t, ref), nil
}

// SetField stores v into field i of the mutable object behind obj, with a
// write barrier for reference fields.
func (h *Heap) SetField(obj Value, i int, v Value) error {
	b, ok := h.Lookup(obj.ref).(*Box)
	if !ok || b.typ.Kind != model.KindMutable {
		return core.Errorf(core.KindType, "setfield", "%s is not a mutable object", obj.typ)
	}
	if i < 0 || i >= len(b.typ.Fields) {
		return core.BoundsError("setfield", i)
	}
	f := b.typ.Fields[i]
	if v.typ == nil || !v.typ.Isa(f.Type) {
		return core.Errorf(core.KindType, "setfield", "field %s expects %s, got %s", f.Name, f.Type, v.typ)
	}
	if f.IsRef {
		bv, err := h.Box(v)
		if err != nil {
			return err
		}
		kernels.StoreWord(b.bits, f.Offset, uint64(bv.ref))
		h.WriteBarrier(b, bv.ref)
		return nil
	}
	copy(b.bits[f.Offset:f.Offset+f.Type.Size()], v.bits)
	return nil
}

// GetField reads field i of a mutable object.
func (h *Heap) GetField(obj Value, i int) (Value, error) {
	b, ok := h.Lookup(obj.ref).(*Box)
	if !ok || b.typ.Kind != model.KindMutable {
		return Value{}, core.Errorf(core.KindType, "getfield", "%s is not a mutable object", obj.typ)
	}
	if i < 0 || i >= len(b.typ.Fields) {
		return Value{}, core.BoundsError("getfield", i)
	}
	f := b.typ.Fields[i]
	if f.IsRef {
		ref := Ref(kernels.LoadWord(b.bits, f.Offset))
		if ref == 0 {
			return Value{}, core.Errorf(core.KindUndefRef, "getfield", "field %s is undefined", f.Name)
		}
		return h.Deref(ref)
	}
	return Value{typ: f.Type, bits: append([]byte(nil), b.bits[f.Offset:f.Offset+f.Type.Size()]...)}, nil
}

// Deref resolves a handle into a value. Boxed inline values come back with
// their bits; other objects as typed references.
func (h *Heap) Deref(ref Ref) (Value, error) {
	obj := h.Lookup(ref)
	if obj == nil {
		return Value{}, core.Errorf(core.KindUndefRef, "deref", "undefined reference")
	}
	if b, ok := obj.(*Box); ok && b.typ.Kind != model.KindMutable {
		return Value{typ: b.typ, bits: b.bits[:b.typ.Size()], ref: ref}, nil
	}
	return RefValue(obj.TypeOf(), ref), nil
}

// StringValue wraps a heap string as a value.
func StringValue(s *String) Value {
	return RefValue(model.String, s.ref)
}

// Foreign is memory supplied from outside the engine. It never frees its bytes.
type Foreign struct {
	Header
	buf []byte
}

func (f *Foreign) TypeOf() *model.Type { return model.Foreign }
func (f *Foreign) Scan(func(Ref))      {}
func (f *Foreign) Bytes() []byte       { return f.buf }

// NewForeign registers an externally owned buffer as a heap object.
func (h *Heap) NewForeign(buf []byte) *Foreign {
	f := &Foreign{buf: buf}
	h.Register(f)
	return f
}
