package runtime

import (
	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/model"
)

// String is an immutable byte sequence with an explicit length and a
// trailing NUL. Byte arrays may borrow its buffer.
type String struct {
	Header
	buf     []byte // len n+1, buf[n] == 0
	storage Storage
}

func (s *String) TypeOf() *model.Type { return model.String }
func (s *String) Scan(func(Ref))      {}
func (s *String) Len() int            { return len(s.buf) - 1 }
func (s *String) Bytes() []byte       { return s.buf[:len(s.buf)-1] }
func (s *String) String() string      { return string(s.Bytes()) }
func (s *String) Storage() Storage    { return s.storage }

// Buffer returns the backing bytes including the trailing NUL.
func (s *String) Buffer() []byte { return s.buf }

// FreeBuffers releases the backing buffer at sweep time.
func (s *String) FreeBuffers(h *Heap) {
	switch s.storage {
	case PoolBuffer:
		h.PoolFree(s.buf)
	case MallocBuffer:
		h.Free(s.buf)
	}
	s.buf = nil
}

// stringBytes is the allocation size of a string of n bytes: a length word,
// the bytes and the NUL.
func stringBytes(n int) int { return core.WordSize + n + 1 }

// IsLargeString reports whether a string of n bytes falls outside the small
// size classes. Buffers may only change hands between a byte array and a
// string when both sides agree on this.
func (h *Heap) IsLargeString(n int) bool {
	return stringBytes(n) > h.opts.MaxSizeClass
}

// EmptyString returns the shared zero-length string.
func (h *Heap) EmptyString() *String { return h.empty }

// NewString allocates an uninitialized string of n bytes.
func (h *Heap) NewString(n int) (*String, error) {
	if n < 0 || n > core.MaxIntVal-core.WordSize-1 {
		return nil, core.Errorf(core.KindSizeOverflow, "alloc_string", "invalid string size %d", n)
	}
	if n == 0 {
		return h.empty, nil
	}
	s := &String{}
	if err := h.allocStringBuffer(s, n); err != nil {
		return nil, err
	}
	h.Register(s)
	h.NoteAlloc(model.String, s.storage, stringBytes(n))
	return s, nil
}

func (h *Heap) allocStringBuffer(s *String, n int) error {
	var (
		b   []byte
		err error
	)
	if n+1 < h.opts.MallocThreshold {
		s.storage = PoolBuffer
		b, err = h.PoolAlloc(n+1, false)
	} else {
		s.storage = MallocBuffer
		b, err = h.Malloc(n + 1)
	}
	if err != nil {
		return err
	}
	b[n] = 0
	s.buf = b
	return nil
}

// StringFromBytes allocates a string holding a copy of b.
func (h *Heap) StringFromBytes(b []byte) (*String, error) {
	s, err := h.NewString(len(b))
	if err != nil {
		return nil, err
	}
	copy(s.buf, b)
	return s, nil
}

// ReallocString resizes the storage of a string that is exclusively held by
// its caller, keeping its handle. Bytes up to the smaller length are kept.
func (h *Heap) ReallocString(s *String, n int) (*String, error) {
	if s == h.empty {
		ns, err := h.NewString(n)
		if err != nil {
			return nil, err
		}
		clear(ns.Bytes())
		return ns, nil
	}
	old, oldStorage := s.buf, s.storage
	if err := h.allocStringBuffer(s, n); err != nil {
		return nil, err
	}
	keep := min(len(old)-1, n)
	copy(s.buf[:keep], old[:keep])
	s.buf[n] = 0
	switch oldStorage {
	case PoolBuffer:
		h.PoolFree(old)
	case MallocBuffer:
		h.Free(old)
	}
	h.stats.strReallocs.Add(1)
	h.log.Debug("string buffer reallocated", "from", len(old)-1, "to", n)
	return s, nil
}

// Truncate shortens a string in place. It is only valid while the caller
// holds the sole reference, as in the array-to-string conversion.
func (s *String) Truncate(n int) {
	if n < 0 || n >= len(s.buf) {
		return
	}
	s.buf = s.buf[:n+1]
	s.buf[n] = 0
}
