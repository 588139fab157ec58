package profile_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/sbl8/arraycore/array"
	"github.com/sbl8/arraycore/model"
	"github.com/sbl8/arraycore/profile"
	"github.com/sbl8/arraycore/runtime"
)

func newSampledHeap(t *testing.T) (*runtime.Heap, *profile.Sampler) {
	t.Helper()
	s := profile.NewSampler()
	opts := runtime.DefaultOptions()
	opts.Sink = s
	h, err := runtime.NewHeap(opts)
	if err != nil {
		t.Fatal(err)
	}
	return h, s
}

func TestSamplerStoppedRecordsNothing(t *testing.T) {
	t.Parallel()
	h, s := newSampledHeap(t)
	if _, err := array.NewVector(h, model.Int64, 10); err != nil {
		t.Fatal(err)
	}
	if got := len(s.Fetch()); got != 0 {
		t.Errorf("stopped sampler kept %d records", got)
	}
	if s.Running() {
		t.Error("new sampler should be stopped")
	}
}

func TestSamplerRecordsEverything(t *testing.T) {
	t.Parallel()
	h, s := newSampledHeap(t)
	if err := s.Start(1); err != nil {
		t.Fatal(err)
	}
	if _, err := array.NewVector(h, model.Int64, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := array.NewVector(h, model.Float64, 100000); err != nil {
		t.Fatal(err)
	}
	s.Stop()
	if _, err := array.NewVector(h, model.Int64, 4); err != nil {
		t.Fatal(err)
	}

	recs := s.Fetch()
	if len(recs) < 2 {
		t.Fatalf("got %d records, want at least 2", len(recs))
	}
	var sawPool bool
	for _, r := range recs {
		if r.Time.IsZero() {
			t.Error("record without timestamp")
		}
		if len(r.Stack) == 0 {
			t.Error("record without stack")
		}
		if r.Storage == runtime.PoolBuffer && r.Bytes >= 800000 {
			sawPool = true
		}
	}
	if !sawPool {
		t.Errorf("no pool-buffer record among %v", recs)
	}
	if !strings.Contains(recs[0].String(), "bytes") {
		t.Errorf("String() = %q", recs[0].String())
	}
	if int64(len(recs)) != s.Seen() {
		t.Errorf("Seen = %d, records = %d", s.Seen(), len(recs))
	}

	sum := s.Summarize()
	if len(sum) == 0 || sum[0].Bytes < 800000 {
		t.Errorf("Summarize = %+v", sum)
	}

	s.Clear()
	if len(s.Fetch()) != 0 || s.Seen() != 0 {
		t.Error("Clear kept records")
	}
}

func TestSamplerRate(t *testing.T) {
	t.Parallel()
	s := profile.NewSampler()
	for _, rate := range []float64{-0.1, 1.5} {
		if err := s.Start(rate); err == nil {
			t.Errorf("Start(%v) accepted", rate)
		}
	}
	if err := s.Start(0); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 1000; i++ {
		s.RecordAllocation(runtime.AllocEvent{TypeName: "Int64", Bytes: 8})
	}
	if got := len(s.Fetch()); got != 0 {
		t.Errorf("rate 0 kept %d records", got)
	}

	if err := s.Start(0.5); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4000; i++ {
		s.RecordAllocation(runtime.AllocEvent{TypeName: "Int64", Bytes: 8})
	}
	if got := len(s.Fetch()); got < 1500 || got > 2500 {
		t.Errorf("rate 0.5 kept %d of 4000", got)
	}
}

func TestSamplerConcurrent(t *testing.T) {
	t.Parallel()
	s := profile.NewSampler()
	if err := s.Start(1); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.RecordAllocation(runtime.AllocEvent{TypeName: "UInt8", Bytes: i, Storage: runtime.Inline})
			}
		}()
	}
	wg.Wait()
	if got := len(s.Fetch()); got != 800 {
		t.Errorf("got %d records, want 800", got)
	}
	sum := s.Summarize()
	if len(sum) != 1 || sum[0].Count != 800 {
		t.Errorf("Summarize = %+v", sum)
	}
}
