// Package profile records sampled allocation events from a runtime.Heap.
//
// A Sampler is installed through runtime.Options.Sink. While started, each
// allocation the heap reports is kept with probability equal to the sample
// rate, together with a timestamp and the call stack of the allocating
// goroutine. Records accumulate until Fetch or Clear.
package profile

import (
	"cmp"
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	arrt "github.com/sbl8/arraycore/runtime"
)

// maxStackDepth bounds the frames kept per record.
const maxStackDepth = 32

// Record is one sampled allocation.
type Record struct {
	TypeName string
	Bytes    int
	Storage  arrt.Storage
	Time     time.Time
	Stack    []uintptr
}

// Frames resolves the captured stack into function, file and line entries.
func (r Record) Frames() []runtime.Frame {
	if len(r.Stack) == 0 {
		return nil
	}
	var out []runtime.Frame
	frames := runtime.CallersFrames(r.Stack)
	for {
		f, more := frames.Next()
		out = append(out, f)
		if !more {
			break
		}
	}
	return out
}

func (r Record) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d bytes (%s) at %s", r.TypeName, r.Bytes, r.Storage, r.Time.Format(time.RFC3339Nano))
	for _, f := range r.Frames() {
		fmt.Fprintf(&b, "\n\t%s\n\t\t%s:%d", f.Function, f.File, f.Line)
	}
	return b.String()
}

// Sampler implements runtime.AllocSink.
type Sampler struct {
	enabled atomic.Bool
	rate    atomic.Uint64 // math.Float64bits of the sample rate

	mu      sync.Mutex
	records []Record
	seen    int64
	rng     *rand.Rand
}

// NewSampler returns a stopped sampler.
func NewSampler() *Sampler {
	return &Sampler{rng: rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15))}
}

// Start enables recording. rate is the probability in [0, 1] that a given
// allocation is kept; 1 keeps everything.
func (s *Sampler) Start(rate float64) error {
	if rate < 0 || rate > 1 {
		return fmt.Errorf("sample rate %v outside [0, 1]", rate)
	}
	s.rate.Store(floatBits(rate))
	s.enabled.Store(true)
	return nil
}

// Stop disables recording. Records gathered so far are kept.
func (s *Sampler) Stop() {
	s.enabled.Store(false)
}

// Running reports whether the sampler is recording.
func (s *Sampler) Running() bool { return s.enabled.Load() }

// RecordAllocation is called by the heap for every allocation.
func (s *Sampler) RecordAllocation(ev arrt.AllocEvent) {
	if !s.enabled.Load() {
		return
	}
	rate := floatFrom(s.rate.Load())
	s.mu.Lock()
	s.seen++
	keep := rate >= 1 || s.rng.Float64() < rate
	s.mu.Unlock()
	if !keep {
		return
	}

	pcs := make([]uintptr, maxStackDepth)
	// skip runtime.Callers, RecordAllocation and the heap's NoteAlloc
	n := runtime.Callers(3, pcs)
	rec := Record{
		TypeName: ev.TypeName,
		Bytes:    ev.Bytes,
		Storage:  ev.Storage,
		Time:     time.Now(),
		Stack:    pcs[:n:n],
	}
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
}

// Fetch returns a copy of the records gathered so far.
func (s *Sampler) Fetch() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Record(nil), s.records...)
}

// Seen returns how many allocations were offered while running.
func (s *Sampler) Seen() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen
}

// Clear drops all records.
func (s *Sampler) Clear() {
	s.mu.Lock()
	s.records = nil
	s.seen = 0
	s.mu.Unlock()
}

// Summary aggregates records by type name and storage.
type Summary struct {
	TypeName string
	Storage  arrt.Storage
	Count    int
	Bytes    int64
}

// Summarize groups the current records, largest byte totals first.
func (s *Sampler) Summarize() []Summary {
	type key struct {
		name string
		st   arrt.Storage
	}
	idx := make(map[key]int)
	var out []Summary
	for _, r := range s.Fetch() {
		k := key{r.TypeName, r.Storage}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Summary{TypeName: r.TypeName, Storage: r.Storage})
		}
		out[i].Count++
		out[i].Bytes += int64(r.Bytes)
	}
	sortSummaries(out)
	return out
}

func sortSummaries(s []Summary) {
	slices.SortStableFunc(s, func(a, b Summary) int {
		return cmp.Compare(b.Bytes, a.Bytes)
	})
}

func floatBits(f float64) uint64 { return math.Float64bits(f) }

func floatFrom(u uint64) float64 { return math.Float64frombits(u) }
