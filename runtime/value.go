package runtime

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/model"
)

// Value is a typed value moving in or out of an array slot: either the raw
// bits of a concrete inline type, or a reference to a heap object, or both
// when a bits value has been boxed.
type Value struct {
	typ  *model.Type
	bits []byte
	ref  Ref
}

// Type returns the concrete type of v.
func (v Value) Type() *model.Type { return v.typ }

// Bits returns the inline representation. Nil for pure references.
func (v Value) Bits() []byte { return v.bits }

// Ref returns the heap handle, 0 for unboxed values.
func (v Value) Ref() Ref { return v.ref }

// IsZero reports whether v is the zero Value.
func (v Value) IsZero() bool { return v.typ == nil }

// IsNothing reports whether v is the nothing singleton.
func (v Value) IsNothing() bool { return v.typ == model.Nothing }

func bitsOf(t *model.Type, n int) Value {
	return Value{typ: t, bits: make([]byte, n)}
}

// Int64 makes an Int64 value.
func Int64(x int64) Value {
	v := bitsOf(model.Int64, 8)
	binary.NativeEndian.PutUint64(v.bits, uint64(x))
	return v
}

// Int32 makes an Int32 value.
func Int32(x int32) Value {
	v := bitsOf(model.Int32, 4)
	binary.NativeEndian.PutUint32(v.bits, uint32(x))
	return v
}

// Int16 makes an Int16 value.
func Int16(x int16) Value {
	v := bitsOf(model.Int16, 2)
	binary.NativeEndian.PutUint16(v.bits, uint16(x))
	return v
}

// UInt8 makes a UInt8 value.
func UInt8(x uint8) Value {
	v := bitsOf(model.UInt8, 1)
	v.bits[0] = x
	return v
}

// Bool makes a Bool value.
func Bool(x bool) Value {
	v := bitsOf(model.Bool, 1)
	if x {
		v.bits[0] = 1
	}
	return v
}

// Float64 makes a Float64 value.
func Float64(x float64) Value {
	v := bitsOf(model.Float64, 8)
	binary.NativeEndian.PutUint64(v.bits, math.Float64bits(x))
	return v
}

// Float32 makes a Float32 value.
func Float32(x float32) Value {
	v := bitsOf(model.Float32, 4)
	binary.NativeEndian.PutUint32(v.bits, math.Float32bits(x))
	return v
}

// Nothing is the singleton value of the Nothing type.
func Nothing() Value {
	return Value{typ: model.Nothing, bits: []byte{}}
}

// Bits wraps a copy of raw bits as a value of concrete type t.
func Bits(t *model.Type, b []byte) (Value, error) {
	if !t.IsConcrete() || t.Kind == model.KindMutable {
		return Value{}, core.Errorf(core.KindType, "bits", "%s is not an inline type", t)
	}
	if len(b) != t.Size() {
		return Value{}, core.Errorf(core.KindType, "bits", "%s needs %d bytes, got %d", t, t.Size(), len(b))
	}
	return Value{typ: t, bits: append([]byte(nil), b...)}, nil
}

// RefValue wraps a handle to an object of type t.
func RefValue(t *model.Type, ref Ref) Value {
	return Value{typ: t, ref: ref}
}

// Struct builds an inline struct value from field values in declaration
// order. Reference fields take the handle of their value.
func Struct(t *model.Type, fields ...Value) (Value, error) {
	if t.Kind != model.KindStruct {
		return Value{}, core.Errorf(core.KindType, "struct", "%s is not a struct type", t)
	}
	if len(fields) != len(t.Fields) {
		return Value{}, core.Errorf(core.KindArgument, "struct", "%s has %d fields, got %d", t, len(t.Fields), len(fields))
	}
	v := bitsOf(t, t.Size())
	for i, f := range t.Fields {
		fv := fields[i]
		if fv.typ == nil || !fv.typ.Isa(f.Type) {
			return Value{}, core.Errorf(core.KindType, "struct", "field %s of %s expects %s, got %s", f.Name, t, f.Type, fv.typ)
		}
		if f.IsRef {
			if fv.ref == 0 {
				return Value{}, core.Errorf(core.KindType, "struct", "field %s of %s needs a boxed value", f.Name, t)
			}
			binary.NativeEndian.PutUint64(v.bits[f.Offset:], uint64(fv.ref))
			continue
		}
		copy(v.bits[f.Offset:f.Offset+f.Type.Size()], fv.bits)
	}
	return v, nil
}

// Field extracts field i of an inline struct value. Reference fields come
// back as unresolved handles typed with the declared field type.
func (v Value) Field(i int) (Value, error) {
	if v.typ == nil || v.typ.Kind != model.KindStruct || v.bits == nil {
		return Value{}, core.Errorf(core.KindType, "getfield", "%s has no inline fields", v.typ)
	}
	if i < 0 || i >= len(v.typ.Fields) {
		return Value{}, core.BoundsError("getfield", i)
	}
	f := v.typ.Fields[i]
	if f.IsRef {
		return RefValue(f.Type, Ref(binary.NativeEndian.Uint64(v.bits[f.Offset:]))), nil
	}
	return Value{typ: f.Type, bits: append([]byte(nil), v.bits[f.Offset:f.Offset+f.Type.Size()]...)}, nil
}

// Int returns v as an int64 for any integer bits type.
func (v Value) Int() (int64, bool) {
	if v.bits == nil {
		return 0, false
	}
	switch v.typ {
	case model.Int64, model.UInt64:
		return int64(binary.NativeEndian.Uint64(v.bits)), true
	case model.Int32:
		return int64(int32(binary.NativeEndian.Uint32(v.bits))), true
	case model.UInt32:
		return int64(binary.NativeEndian.Uint32(v.bits)), true
	case model.Int16:
		return int64(int16(binary.NativeEndian.Uint16(v.bits))), true
	case model.UInt16:
		return int64(binary.NativeEndian.Uint16(v.bits)), true
	case model.Int8:
		return int64(int8(v.bits[0])), true
	case model.UInt8, model.Bool:
		return int64(v.bits[0]), true
	}
	return 0, false
}

// Float returns v as a float64 for float bits types.
func (v Value) Float() (float64, bool) {
	if v.bits == nil {
		return 0, false
	}
	switch v.typ {
	case model.Float64:
		return math.Float64frombits(binary.NativeEndian.Uint64(v.bits)), true
	case model.Float32:
		return float64(math.Float32frombits(binary.NativeEndian.Uint32(v.bits))), true
	}
	return 0, false
}

func (v Value) String() string {
	switch {
	case v.typ == nil:
		return "#undef"
	case v.IsNothing():
		return "nothing"
	}
	if i, ok := v.Int(); ok {
		if v.typ == model.Bool {
			return strconv.FormatBool(i != 0)
		}
		return strconv.FormatInt(i, 10)
	}
	if f, ok := v.Float(); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	if v.bits != nil {
		return fmt.Sprintf("%s(%x)", v.typ, v.bits)
	}
	return fmt.Sprintf("%s@%d", v.typ, v.ref)
}
