// Package model defines the element type descriptors consumed by the array engine.
//
// A Type describes how one element is represented in memory: as raw bits
// stored inline in the array payload, as an inline struct that embeds
// references to other objects, as a reference to a separately allocated
// object, or as a tagged union of several bits types that needs one selector
// byte per slot.
//
// Key data structures:
//   - Type: name, kind, inline size and alignment, field layout, union arms
//   - Field: one named field with its offset inside the inline layout
//   - Registry: a name-indexed set of types with the builtins preloaded
//
// Types are immutable after construction and may be shared freely between
// goroutines.
package model

import (
	"fmt"
	"strings"

	"github.com/sbl8/arraycore/core"
)

// Kind selects the representation family of a Type.
type Kind uint8

const (
	KindPrimitive Kind = iota // fixed-size bits with no fields
	KindStruct                // immutable composite, stored inline
	KindMutable               // heap object, always referenced
	KindAbstract              // never instantiated, only a supertype
	KindUnion                 // one of several arms
)

func (k Kind) String() string {
	switch k {
	case KindPrimitive:
		return "primitive"
	case KindStruct:
		return "struct"
	case KindMutable:
		return "mutable"
	case KindAbstract:
		return "abstract"
	case KindUnion:
		return "union"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// MaxUnionArms bounds the arm count of a union that can be stored inline;
// the selector must fit in one byte with room for the high bit.
const MaxUnionArms = 127

// Field is one field of a struct or mutable type.
type Field struct {
	Name   string
	Type   *Type
	Offset int  // byte offset inside the inline layout
	IsRef  bool // stored as a reference slot rather than inline bits
}

// Type describes one element type.
type Type struct {
	Name   string
	Kind   Kind
	Super  *Type
	Fields []Field
	Arms   []*Type

	size     int
	align    int
	pointers []int // byte offsets of reference slots in the inline layout
	zeroInit bool
}

// Size returns the byte size of the inline representation.
func (t *Type) Size() int { return t.size }

// Align returns the required alignment of the inline representation.
func (t *Type) Align() int { return t.align }

// Pointers returns the byte offsets of embedded reference slots.
func (t *Type) Pointers() []int { return t.pointers }

// FirstPtr returns the offset of the first reference slot, or -1.
// A zero word there marks an inline value as never assigned.
func (t *Type) FirstPtr() int {
	if len(t.pointers) == 0 {
		return -1
	}
	return t.pointers[0]
}

// HasPointers reports whether an inline value of t embeds references.
func (t *Type) HasPointers() bool {
	return t.Kind == KindStruct && len(t.pointers) > 0
}

// IsBits reports whether values of t are plain bits with no references.
func (t *Type) IsBits() bool {
	switch t.Kind {
	case KindPrimitive:
		return true
	case KindStruct:
		return len(t.pointers) == 0
	}
	return false
}

// IsSingleton reports whether t has exactly one value and needs no payload.
func (t *Type) IsSingleton() bool {
	return t.IsBits() && t.size == 0
}

// IsConcrete reports whether values of exactly this type can exist.
func (t *Type) IsConcrete() bool {
	return t.Kind == KindPrimitive || t.Kind == KindStruct || t.Kind == KindMutable
}

// IsUnion reports whether t is a union type.
func (t *Type) IsUnion() bool { return t.Kind == KindUnion }

// StoredInline reports whether array slots of t hold the value bits directly.
// Unions are inline only when every arm is a bits type and the arm count fits
// a selector byte.
func (t *Type) StoredInline() bool {
	switch t.Kind {
	case KindPrimitive, KindStruct:
		return true
	case KindUnion:
		if len(t.Arms) > MaxUnionArms {
			return false
		}
		for _, a := range t.Arms {
			if !a.IsBits() {
				return false
			}
		}
		return true
	}
	return false
}

// ZeroInit reports whether the type itself demands zero-filled storage.
func (t *Type) ZeroInit() bool { return t.zeroInit }

// ArmIndex returns the selector value for a concrete type in union t.
func (t *Type) ArmIndex(arm *Type) (int, bool) {
	for i, a := range t.Arms {
		if a == arm {
			return i, true
		}
	}
	return 0, false
}

// Arm returns the arm for a selector value.
func (t *Type) Arm(sel uint8) (*Type, bool) {
	if int(sel) >= len(t.Arms) {
		return nil, false
	}
	return t.Arms[sel], true
}

// Isa reports whether a value of concrete type t conforms to declared type d.
func (t *Type) Isa(d *Type) bool {
	if d == nil || t == nil {
		return false
	}
	if d == Any || t == d {
		return true
	}
	if d.Kind == KindUnion {
		for _, a := range d.Arms {
			if t.Isa(a) {
				return true
			}
		}
		return false
	}
	for s := t.Super; s != nil; s = s.Super {
		if s == d {
			return true
		}
	}
	return false
}

func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	if t.Kind == KindUnion && t.Name == "" {
		names := make([]string, len(t.Arms))
		for i, a := range t.Arms {
			names[i] = a.String()
		}
		return "Union{" + strings.Join(names, ", ") + "}"
	}
	return t.Name
}

// FieldSpec names a field before layout.
type FieldSpec struct {
	Name string
	Type *Type
}

// NewPrimitive creates a bits type of the given byte size. Size must be a
// power of two or zero.
func NewPrimitive(name string, size int, super *Type) *Type {
	align := size
	if align == 0 {
		align = 1
	}
	return &Type{Name: name, Kind: KindPrimitive, Super: orAny(super), size: size, align: align}
}

// NewAbstract creates an abstract supertype.
func NewAbstract(name string, super *Type) *Type {
	return &Type{Name: name, Kind: KindAbstract, Super: orAny(super), size: core.WordSize, align: core.WordSize}
}

// NewStruct creates an immutable composite stored inline in arrays.
func NewStruct(name string, super *Type, fields []FieldSpec) (*Type, error) {
	t := &Type{Name: name, Kind: KindStruct, Super: orAny(super)}
	if err := t.layoutFields(fields); err != nil {
		return nil, err
	}
	return t, nil
}

// NewMutable creates a heap-allocated composite. Arrays hold references to it.
func NewMutable(name string, super *Type, fields []FieldSpec) (*Type, error) {
	t := &Type{Name: name, Kind: KindMutable, Super: orAny(super)}
	if err := t.layoutFields(fields); err != nil {
		return nil, err
	}
	return t, nil
}

// NewUnion creates a union of the given arms. Nested unions are flattened and
// duplicates dropped; arm order fixes the selector values.
func NewUnion(name string, arms ...*Type) (*Type, error) {
	t := &Type{Name: name, Kind: KindUnion, Super: Any}
	seen := make(map[*Type]bool)
	var add func(a *Type) error
	add = func(a *Type) error {
		if a == nil {
			return fmt.Errorf("union %s: nil arm", name)
		}
		if a.Kind == KindUnion {
			for _, sub := range a.Arms {
				if err := add(sub); err != nil {
					return err
				}
			}
			return nil
		}
		if !seen[a] {
			seen[a] = true
			t.Arms = append(t.Arms, a)
		}
		return nil
	}
	for _, a := range arms {
		if err := add(a); err != nil {
			return nil, err
		}
	}
	if len(t.Arms) < 2 {
		return nil, fmt.Errorf("union %s: need at least two distinct arms", name)
	}
	t.align = 1
	for _, a := range t.Arms {
		sz, al := a.size, a.align
		if !a.IsBits() {
			sz, al = core.WordSize, core.WordSize
		}
		if sz > t.size {
			t.size = sz
		}
		if al > t.align {
			t.align = al
		}
	}
	t.zeroInit = true
	return t, nil
}

func (t *Type) layoutFields(fields []FieldSpec) error {
	names := make(map[string]bool, len(fields))
	off, align := 0, 1
	for _, fs := range fields {
		if fs.Type == nil {
			return fmt.Errorf("%s.%s: missing field type", t.Name, fs.Name)
		}
		if names[fs.Name] {
			return fmt.Errorf("%s: duplicate field %q", t.Name, fs.Name)
		}
		names[fs.Name] = true

		ft := fs.Type
		inline := ft.Kind == KindPrimitive || ft.Kind == KindStruct
		sz, al := core.WordSize, core.WordSize
		if inline {
			sz, al = ft.size, ft.align
		}
		off = core.AlignSize(off, al)
		f := Field{Name: fs.Name, Type: ft, Offset: off, IsRef: !inline}
		if f.IsRef {
			t.pointers = append(t.pointers, off)
		} else {
			for _, p := range ft.pointers {
				t.pointers = append(t.pointers, off+p)
			}
		}
		t.Fields = append(t.Fields, f)
		off += sz
		if al > align {
			align = al
		}
	}
	t.align = align
	t.size = core.AlignSize(off, align)
	t.zeroInit = len(t.pointers) > 0
	return nil
}

// WithZeroInit marks t as demanding zero-filled array storage even when it is
// plain bits.
func (t *Type) WithZeroInit() *Type {
	t.zeroInit = true
	return t
}

func orAny(super *Type) *Type {
	if super == nil {
		return Any
	}
	return super
}
