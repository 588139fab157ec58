package model

import "fmt"

// Builtin types.
var (
	Any = &Type{Name: "Any", Kind: KindAbstract, size: 8, align: 8}

	Number        = NewAbstract("Number", Any)
	Integer       = NewAbstract("Integer", Number)
	AbstractFloat = NewAbstract("AbstractFloat", Number)

	Nothing = NewPrimitive("Nothing", 0, Any)
	Bool    = NewPrimitive("Bool", 1, Integer)
	Int8    = NewPrimitive("Int8", 1, Integer)
	UInt8   = NewPrimitive("UInt8", 1, Integer)
	Int16   = NewPrimitive("Int16", 2, Integer)
	UInt16  = NewPrimitive("UInt16", 2, Integer)
	Int32   = NewPrimitive("Int32", 4, Integer)
	UInt32  = NewPrimitive("UInt32", 4, Integer)
	Int64   = NewPrimitive("Int64", 8, Integer)
	UInt64  = NewPrimitive("UInt64", 8, Integer)
	Float32 = NewPrimitive("Float32", 4, AbstractFloat)
	Float64 = NewPrimitive("Float64", 8, AbstractFloat)

	// String, Array and Foreign are heap objects owned by the runtime.
	String  = &Type{Name: "String", Kind: KindMutable, Super: Any, align: 1}
	Array   = &Type{Name: "Array", Kind: KindMutable, Super: Any, align: 1}
	Foreign = &Type{Name: "Foreign", Kind: KindMutable, Super: Any, align: 1}
)

var builtins = []*Type{
	Any, Number, Integer, AbstractFloat,
	Nothing, Bool, Int8, UInt8, Int16, UInt16, Int32, UInt32, Int64, UInt64, Float32, Float64,
	String, Array, Foreign,
}

// Registry is a name-indexed set of types.
type Registry struct {
	byName map[string]*Type
	order  []*Type
}

// NewRegistry returns a registry holding the builtin types.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]*Type, len(builtins))}
	for _, t := range builtins {
		r.byName[t.Name] = t
		r.order = append(r.order, t)
	}
	return r
}

// Define adds a named type. Names are unique.
func (r *Registry) Define(t *Type) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("cannot define unnamed type")
	}
	if _, exists := r.byName[t.Name]; exists {
		return fmt.Errorf("type %s already defined", t.Name)
	}
	r.byName[t.Name] = t
	r.order = append(r.order, t)
	return nil
}

// Lookup returns the type with the given name.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Types returns all types in definition order, builtins first.
func (r *Registry) Types() []*Type {
	out := make([]*Type, len(r.order))
	copy(out, r.order)
	return out
}

// UserTypes returns the types added with Define.
func (r *Registry) UserTypes() []*Type {
	return append([]*Type(nil), r.order[len(builtins):]...)
}

// IsBuiltin reports whether t is one of the preloaded types.
func IsBuiltin(t *Type) bool {
	for _, b := range builtins {
		if b == t {
			return true
		}
	}
	return false
}
