package array

import (
	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/runtime"
)

// ToString converts a byte array into a string and empties the array.
//
// When the array is an untouched view of a string buffer, the string is
// truncated in place and returned without copying; the array keeps a shared
// reference to it. Otherwise the bytes are copied into a new string.
// Concurrent conversions of the same array are reported through the heap
// logger.
func (a *Array) ToString() (*runtime.String, error) {
	if a.layout.ElemSize != 1 || a.flags.IsUnion {
		return nil, core.Errorf(core.KindType, "array_to_string", "%s is not a byte array", a)
	}
	h := a.heap
	if a.OrFlags(runtime.FlagInFlight)&runtime.FlagInFlight != 0 {
		h.ReportRace("array_to_string", a)
	}
	defer a.AndFlags(^runtime.FlagInFlight)

	n := a.length
	if n == 0 {
		return h.EmptyString(), nil
	}
	if a.storage == runtime.Borrowed && a.offset == 0 &&
		(len(a.dims) != 1 || h.IsLargeString(a.maxsize) == h.IsLargeString(n)) {
		if s, ok := a.owner.(*runtime.String); ok {
			a.flags.IsShared = true
			s.Truncate(n)
			a.detach()
			return s, nil
		}
	}
	s, err := h.StringFromBytes(a.data()[:n])
	if err != nil {
		return nil, err
	}
	a.empty()
	return s, nil
}

// empty zeroes the extents after a copying conversion. The buffer and its
// capacity stay with the array.
func (a *Array) empty() {
	a.length = 0
	for i := range a.dims {
		a.dims[i] = 0
	}
}

// detach empties an array whose buffer now belongs to a string.
func (a *Array) detach() {
	a.empty()
	a.maxsize, a.offset = 0, 0
}

// CString returns a byte array whose element after the last is a NUL byte,
// suitable for passing to C. The array itself is returned when its buffer
// already reserves that byte; otherwise a copy is.
func (a *Array) CString() (*Array, error) {
	if a.layout.ElemSize != 1 || a.flags.IsUnion {
		return nil, core.Errorf(core.KindType, "cconvert_cstring", "%s is not a byte array", a)
	}
	c := a
	if !a.hasImplicitByte() {
		var err error
		if c, err = a.Copy(); err != nil {
			return nil, err
		}
	}
	c.data()[c.length] = 0
	return c, nil
}

// hasImplicitByte reports whether the byte after the last element belongs
// to the buffer and may be overwritten with a NUL.
func (a *Array) hasImplicitByte() bool {
	if !a.layout.HasImplicitByte() {
		return false
	}
	if a.storage == runtime.Borrowed {
		switch o := a.owner.(type) {
		case *runtime.String:
			return true
		case *Array:
			return o.layout.HasImplicitByte() && o.ownsImplicitByte()
		}
		return false
	}
	return a.ownsImplicitByte()
}

func (a *Array) ownsImplicitByte() bool {
	return !a.flags.IsShared || a.storage == runtime.PoolBuffer
}
