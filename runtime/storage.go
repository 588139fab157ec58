package runtime

import "fmt"

// Storage is the allocation strategy of an array payload. The variant fixes
// who releases the bytes: Inline payloads die with their header, pool and
// malloc buffers are released by the heap at sweep time, borrowed payloads
// belong to the owner object.
type Storage uint8

const (
	Inline Storage = iota
	PoolBuffer
	MallocBuffer
	Borrowed
)

func (s Storage) String() string {
	switch s {
	case Inline:
		return "inline"
	case PoolBuffer:
		return "pool"
	case MallocBuffer:
		return "malloc"
	case Borrowed:
		return "borrowed"
	}
	return fmt.Sprintf("Storage(%d)", uint8(s))
}

// Owned reports whether the array releases its own buffer.
func (s Storage) Owned() bool {
	return s == PoolBuffer || s == MallocBuffer
}

// AllocEvent describes one allocation reported to an AllocSink.
type AllocEvent struct {
	TypeName string
	Bytes    int
	Storage  Storage
}

// AllocSink receives allocation events. Implementations must be safe for
// concurrent use.
type AllocSink interface {
	RecordAllocation(ev AllocEvent)
}
