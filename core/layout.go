package core

// PageSize is the granularity of the large-buffer allocator.
const PageSize = 4096

// AlignPage rounds size up to page boundary
func AlignPage(size int) int {
	return AlignSize(size, PageSize)
}

// TypeInfo is what the layout descriptor needs to know about an element type.
type TypeInfo interface {
	StoredInline() bool
	Size() int
	Align() int
	HasPointers() bool
	IsUnion() bool
	ZeroInit() bool
}

// Layout is the per-array storage metadata derived from an element type.
type Layout struct {
	ElemSize int  // bytes per slot
	Align    int  // slot alignment
	PtrArray bool // slots are reference words
	HasPtr   bool // slots are inline structs embedding reference words
	IsUnion  bool // one selector byte per slot follows the payload
	ZeroInit bool // storage must be zero-filled at allocation
}

// LayoutOf computes the storage layout for arrays of t.
func LayoutOf(t TypeInfo) Layout {
	if !t.StoredInline() {
		return Layout{ElemSize: WordSize, Align: WordSize, PtrArray: true, ZeroInit: true}
	}
	al := t.Align()
	if al < 1 {
		al = 1
	}
	l := Layout{
		ElemSize: AlignSize(t.Size(), al),
		Align:    al,
		HasPtr:   t.HasPointers(),
		IsUnion:  t.IsUnion(),
	}
	l.ZeroInit = l.HasPtr || l.IsUnion || t.ZeroInit()
	return l
}

// HasImplicitByte reports whether storage reserves a trailing NUL byte.
func (l Layout) HasImplicitByte() bool {
	return l.ElemSize == 1 && !l.IsUnion
}

// PayloadBytes returns the buffer size needed for capacity slots: the typed
// payload, the implicit NUL byte and the union selector bytes.
func (l Layout) PayloadBytes(capacity int) int {
	n := capacity * l.ElemSize
	if l.HasImplicitByte() {
		n++
	}
	if l.IsUnion {
		n += capacity
	}
	return n
}

// OptimalBatchSize returns how many slots of the layout fill one cache line.
func (l Layout) OptimalBatchSize() int {
	if l.ElemSize == 0 {
		return CacheLineSize
	}
	n := CacheLineSize / l.ElemSize
	if n < 1 {
		return 1
	}
	return n
}
