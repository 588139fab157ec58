package runtime

import (
	"sync/atomic"

	"github.com/sbl8/arraycore/model"
)

// Ref is a handle to a heap object: its index in the object table plus one.
// The zero Ref is the undefined reference. Refs are what reference slots in
// array buffers hold, so buffers never hide Go pointers.
type Ref uint64

// GC bit states, kept in each object header.
const (
	GCClean     uint32 = 0 // young, not yet reached
	GCMarked    uint32 = 1 // reached in the current cycle, or queued in the remset
	GCOld       uint32 = 2
	GCOldMarked uint32 = GCOld | GCMarked // survived a collection
)

// Header flag bits.
const (
	FlagInFlight uint32 = 1 << iota // a destructive string conversion is running
)

// Header is the collector-visible part of every object.
type Header struct {
	ref   Ref
	gc    atomic.Uint32
	flags atomic.Uint32
}

// GCHeader returns h, letting embedders satisfy Object.
func (h *Header) GCHeader() *Header { return h }

// Ref returns the handle assigned at registration, 0 before that.
func (h *Header) Ref() Ref { return h.ref }

// GCBits returns the current collector state.
func (h *Header) GCBits() uint32 { return h.gc.Load() }

// Flags returns the header flag bits.
func (h *Header) Flags() uint32 { return h.flags.Load() }

// OrFlags sets mask and returns the previous flags.
func (h *Header) OrFlags(mask uint32) uint32 { return h.flags.Or(mask) }

// AndFlags keeps only mask and returns the previous flags.
func (h *Header) AndFlags(mask uint32) uint32 { return h.flags.And(mask) }

// Object is anything stored in the heap's object table.
type Object interface {
	GCHeader() *Header
	TypeOf() *model.Type
	// Scan reports every reference the object holds.
	Scan(visit func(Ref))
}

// BufferOwner is implemented by objects that hold pool or mapped buffers the
// heap must release when the object is swept.
type BufferOwner interface {
	FreeBuffers(h *Heap)
}
