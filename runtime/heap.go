// Package runtime implements the collector-side collaborator of the array engine.
//
// The Heap owns an object table that maps Ref handles to live objects, the
// generation bits of every object, the remembered set fed by the write
// barrier, and the buffer allocators arrays and strings draw from:
//
//   - BufferPool: power-of-two size classes for detached buffers below the
//     malloc threshold
//   - Malloc/Realloc/Free: large buffers from anonymous mappings outside the
//     Go heap, tracked per owning object and released at sweep time
//   - Strings: immutable byte sequences with a stored length and trailing NUL
//
// Collection is an explicit, stop-the-world mark and sweep from caller-supplied
// roots plus the remembered set. Survivors are promoted to the old generation;
// a later store of a young reference into an old object must go through
// WriteBarrier so the object is rescanned.
//
// The heap is safe for concurrent use by mutators. Collect must not run
// concurrently with mutation of the objects it scans.
package runtime

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/sbl8/arraycore/core"
	"github.com/sbl8/arraycore/kernels"
	"github.com/sbl8/arraycore/model"
)

// Heap manages objects, generations and buffers.
type Heap struct {
	opts Options
	log  *slog.Logger
	sink AllocSink
	pool *BufferPool

	mu      sync.RWMutex
	objects []Object
	free    []Ref
	pinned  map[Ref]struct{}
	tracked map[Ref]int

	remMu  sync.Mutex
	remset []Object

	mapMu  sync.Mutex
	mapped map[uintptr]int

	printMu sync.Mutex
	empty   *String

	stats counters
}

type counters struct {
	allocs      [4]atomic.Int64
	bytes       atomic.Int64
	reallocs    atomic.Int64
	unshares    atomic.Int64
	strReallocs atomic.Int64
	queued      atomic.Int64
	collections atomic.Int64
	freed       atomic.Int64
	mallocLive  atomic.Int64
	races       atomic.Int64
}

// Stats is a snapshot of heap activity.
type Stats struct {
	Objects        int
	InlineAllocs   int64
	PoolAllocs     int64
	MallocAllocs   int64
	BorrowedViews  int64
	BytesAllocated int64
	Reallocs       int64
	Unshares       int64
	StringReallocs int64
	RemsetQueued   int64
	Collections    int64
	Freed          int64
	MallocLive     int64
	Races          int64
}

// NewHeap creates a heap with the given options.
func NewHeap(opts Options) (*Heap, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid heap options: %w", err)
	}
	pool, err := NewBufferPool(opts.MallocThreshold)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	h := &Heap{
		opts:    opts,
		log:     log,
		sink:    opts.Sink,
		pool:    pool,
		pinned:  make(map[Ref]struct{}),
		tracked: make(map[Ref]int),
		mapped:  make(map[uintptr]int),
	}
	h.empty = &String{buf: []byte{0}}
	h.Pin(h.Register(h.empty))
	return h, nil
}

// Options returns the heap configuration.
func (h *Heap) Options() Options { return h.opts }

// Logger returns the heap logger.
func (h *Heap) Logger() *slog.Logger { return h.log }

// Register adds obj to the object table as a young object and returns its handle.
func (h *Heap) Register(obj Object) Ref {
	hdr := obj.GCHeader()
	h.mu.Lock()
	var ref Ref
	if n := len(h.free); n > 0 {
		ref = h.free[n-1]
		h.free = h.free[:n-1]
		h.objects[ref-1] = obj
	} else {
		h.objects = append(h.objects, obj)
		ref = Ref(len(h.objects))
	}
	h.mu.Unlock()
	hdr.ref = ref
	hdr.gc.Store(GCClean)
	return ref
}

// Lookup resolves a handle. The zero Ref and swept handles resolve to nil.
func (h *Heap) Lookup(ref Ref) Object {
	if ref == 0 {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if int(ref) > len(h.objects) {
		return nil
	}
	return h.objects[ref-1]
}

// Pin keeps an object alive across collections regardless of roots.
func (h *Heap) Pin(ref Ref) {
	h.mu.Lock()
	h.pinned[ref] = struct{}{}
	h.mu.Unlock()
}

// Unpin reverses Pin.
func (h *Heap) Unpin(ref Ref) {
	h.mu.Lock()
	delete(h.pinned, ref)
	h.mu.Unlock()
}

// WriteBarrier records that parent now references child. An old parent
// pointing at a young child is queued for rescanning.
func (h *Heap) WriteBarrier(parent Object, child Ref) {
	if child == 0 || parent == nil {
		return
	}
	if parent.GCHeader().gc.Load() != GCOldMarked {
		return
	}
	if !h.IsMarked(child) {
		h.QueueRoot(parent)
	}
}

// QueueRoot adds an old object to the remembered set and demotes it to
// Marked so further barriers on it are skipped until the next collection.
func (h *Heap) QueueRoot(obj Object) {
	hdr := obj.GCHeader()
	if !hdr.gc.CompareAndSwap(GCOldMarked, GCMarked) {
		return
	}
	h.remMu.Lock()
	h.remset = append(h.remset, obj)
	h.remMu.Unlock()
	h.stats.queued.Add(1)
}

// IsOldMarked reports whether obj survived a collection and has not been
// queued since.
func (h *Heap) IsOldMarked(obj Object) bool {
	return obj.GCHeader().gc.Load() == GCOldMarked
}

// IsMarked reports whether the object behind ref carries the mark bit.
// Undefined references count as marked.
func (h *Heap) IsMarked(ref Ref) bool {
	obj := h.Lookup(ref)
	if obj == nil {
		return true
	}
	return obj.GCHeader().gc.Load()&GCMarked != 0
}

// RemsetLen returns the number of objects queued since the last collection.
func (h *Heap) RemsetLen() int {
	h.remMu.Lock()
	defer h.remMu.Unlock()
	return len(h.remset)
}

// InRemset reports whether obj is queued for rescanning.
func (h *Heap) InRemset(obj Object) bool {
	h.remMu.Lock()
	defer h.remMu.Unlock()
	for _, o := range h.remset {
		if o == obj {
			return true
		}
	}
	return false
}

// CollectStats summarizes one collection.
type CollectStats struct {
	Live  int
	Freed int
}

// Collect marks everything reachable from roots, pinned objects and the
// remembered set, sweeps the rest and promotes survivors to the old
// generation.
func (h *Heap) Collect(roots ...Object) CollectStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, obj := range h.objects {
		if obj != nil {
			obj.GCHeader().gc.Store(GCClean)
		}
	}

	work := make([]Object, 0, len(roots)+len(h.pinned))
	mark := func(obj Object) {
		if obj == nil {
			return
		}
		hdr := obj.GCHeader()
		if hdr.gc.Load()&GCMarked != 0 {
			return
		}
		hdr.gc.Store(GCMarked)
		work = append(work, obj)
	}
	for _, r := range roots {
		mark(r)
	}
	for ref := range h.pinned {
		mark(h.objects[ref-1])
	}
	h.remMu.Lock()
	for _, r := range h.remset {
		mark(r)
	}
	h.remset = h.remset[:0]
	h.remMu.Unlock()

	visit := func(ref Ref) {
		if ref == 0 || int(ref) > len(h.objects) {
			return
		}
		mark(h.objects[ref-1])
	}
	for len(work) > 0 {
		obj := work[len(work)-1]
		work = work[:len(work)-1]
		obj.Scan(visit)
	}

	var cs CollectStats
	for i, obj := range h.objects {
		if obj == nil {
			continue
		}
		hdr := obj.GCHeader()
		if hdr.gc.Load()&GCMarked != 0 {
			hdr.gc.Store(GCOldMarked)
			cs.Live++
			continue
		}
		ref := Ref(i + 1)
		// FreeBuffers runs under mu and may only touch the pool and mappings.
		if bo, ok := obj.(BufferOwner); ok {
			bo.FreeBuffers(h)
		}
		if n, ok := h.tracked[ref]; ok {
			h.stats.mallocLive.Add(-int64(n))
			delete(h.tracked, ref)
		}
		h.objects[i] = nil
		h.free = append(h.free, ref)
		hdr.ref = 0
		cs.Freed++
	}

	h.stats.collections.Add(1)
	h.stats.freed.Add(int64(cs.Freed))
	h.log.Debug("collection finished", "live", cs.Live, "freed", cs.Freed)
	return cs
}

// TrackMalloced registers nbytes of mapped memory owned by obj so it is
// accounted for and released when obj is swept.
func (h *Heap) TrackMalloced(obj Object, nbytes int) {
	ref := obj.GCHeader().ref
	h.mu.Lock()
	prev := h.tracked[ref]
	h.tracked[ref] = nbytes
	h.mu.Unlock()
	h.stats.mallocLive.Add(int64(nbytes - prev))
}

// IsTracked reports whether obj owns tracked mapped memory.
func (h *Heap) IsTracked(obj Object) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.tracked[obj.GCHeader().ref]
	return ok
}

// Untrack drops the malloc accounting for obj.
func (h *Heap) Untrack(obj Object) {
	ref := obj.GCHeader().ref
	h.mu.Lock()
	prev, ok := h.tracked[ref]
	delete(h.tracked, ref)
	h.mu.Unlock()
	if ok {
		h.stats.mallocLive.Add(-int64(prev))
	}
}

// PoolAlloc returns a pool buffer of n bytes, zero-filled when zero is set.
func (h *Heap) PoolAlloc(n int, zero bool) ([]byte, error) {
	b, err := h.pool.Get(n)
	if err != nil {
		return nil, core.Errorf(core.KindOutOfMemory, "pool_alloc", "%d bytes", n).CausedBy(err)
	}
	if zero {
		kernels.Zero(b[:cap(b)])
	}
	return b, nil
}

// PoolFree returns a buffer to the pool.
func (h *Heap) PoolFree(b []byte) {
	h.pool.Put(b)
}

// Malloc returns a large buffer of n zeroed bytes outside the pool.
func (h *Heap) Malloc(n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	if h.opts.UseMmap && mmapSupported {
		b, err := mapBuffer(n)
		if err != nil {
			return nil, core.Errorf(core.KindOutOfMemory, "malloc", "%d bytes", n).CausedBy(err)
		}
		h.mapMu.Lock()
		h.mapped[core.AddrOf(b)] = cap(b)
		h.mapMu.Unlock()
		return b, nil
	}
	return core.AlignedBytes(n), nil
}

// Realloc resizes a Malloc buffer to n bytes, preserving the first used bytes.
// Growth within the current mapping is done in place.
func (h *Heap) Realloc(b []byte, used, n int) ([]byte, error) {
	if n <= cap(b) {
		tail := b[:n]
		if n > len(b) {
			kernels.Zero(tail[len(b):])
		}
		h.stats.reallocs.Add(1)
		return tail, nil
	}
	nb, err := h.Malloc(n)
	if err != nil {
		return nil, err
	}
	if used > len(b) {
		used = len(b)
	}
	kernels.AlignedCopy(nb[:used], b[:used])
	h.Free(b)
	h.stats.reallocs.Add(1)
	return nb, nil
}

// Free releases a Malloc buffer. Buffers the heap did not map are dropped.
func (h *Heap) Free(b []byte) {
	if cap(b) == 0 {
		return
	}
	addr := core.AddrOf(b)
	h.mapMu.Lock()
	_, ok := h.mapped[addr]
	delete(h.mapped, addr)
	h.mapMu.Unlock()
	if !ok {
		return
	}
	if err := unmapBuffer(b); err != nil {
		h.log.Error("munmap failed", "addr", fmt.Sprintf("%#x", addr), "err", err)
	}
}

// IsMapped reports whether b starts a live mapping made by Malloc.
func (h *Heap) IsMapped(b []byte) bool {
	if cap(b) == 0 {
		return false
	}
	h.mapMu.Lock()
	defer h.mapMu.Unlock()
	_, ok := h.mapped[core.AddrOf(b)]
	return ok
}

// NoteAlloc counts an allocation and forwards it to the profiling sink.
func (h *Heap) NoteAlloc(t *model.Type, s Storage, nbytes int) {
	h.stats.allocs[s].Add(1)
	h.stats.bytes.Add(int64(nbytes))
	if h.sink != nil {
		h.sink.RecordAllocation(AllocEvent{TypeName: t.String(), Bytes: nbytes, Storage: s})
	}
}

// NoteRealloc counts a buffer resize.
func (h *Heap) NoteRealloc() { h.stats.reallocs.Add(1) }

// NoteUnshare counts a copy of a shared buffer into an owned one.
func (h *Heap) NoteUnshare(nbytes int) {
	h.stats.unshares.Add(1)
	h.log.Debug("unshared buffer", "bytes", nbytes)
}

// ReportRace logs a detected concurrent use of a destructive operation,
// with the stack of the goroutine that observed it, and returns the
// ConcurrencyViolation error it logged. Callers continue regardless.
func (h *Heap) ReportRace(op string, obj Object) *core.Error {
	h.stats.races.Add(1)
	ref := obj.GCHeader().ref
	err := core.Errorf(core.KindConcurrency, op, "object %d used concurrently", ref)
	stack := debug.Stack()
	h.printMu.Lock()
	defer h.printMu.Unlock()
	h.log.Error("concurrency violation detected",
		"op", op,
		"ref", uint64(ref),
		"err", err,
		"stack", string(stack))
	return err
}

// Stats returns a snapshot of heap counters.
func (h *Heap) Stats() Stats {
	h.mu.RLock()
	live := len(h.objects) - len(h.free)
	h.mu.RUnlock()
	c := &h.stats
	return Stats{
		Objects:        live,
		InlineAllocs:   c.allocs[Inline].Load(),
		PoolAllocs:     c.allocs[PoolBuffer].Load(),
		MallocAllocs:   c.allocs[MallocBuffer].Load(),
		BorrowedViews:  c.allocs[Borrowed].Load(),
		BytesAllocated: c.bytes.Load(),
		Reallocs:       c.reallocs.Load(),
		Unshares:       c.unshares.Load(),
		StringReallocs: c.strReallocs.Load(),
		RemsetQueued:   c.queued.Load(),
		Collections:    c.collections.Load(),
		Freed:          c.freed.Load(),
		MallocLive:     c.mallocLive.Load(),
		Races:          c.races.Load(),
	}
}
