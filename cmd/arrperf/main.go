package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	goruntime "runtime"
	"strings"
	"time"

	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sbl8/arraycore/array"
	"github.com/sbl8/arraycore/config"
	"github.com/sbl8/arraycore/model"
	"github.com/sbl8/arraycore/profile"
	"github.com/sbl8/arraycore/runtime"
)

var (
	testType   = flag.String("test", "all", "Test type: all, append, prepend, churn, ptrcopy")
	size       = flag.Int("size", 100000, "Elements per array")
	iter       = flag.Int("iter", 10, "Number of iterations")
	configPath = flag.String("config", "", "Heap options file (.toml or .yaml)")
	sample     = flag.Float64("sample", 0, "Allocation sample rate in [0, 1]")
)

var p = message.NewPrinter(language.English)

type result struct {
	name     string
	elapsed  time.Duration
	ops      int
	reallocs int64
	capacity int
}

func main() {
	flag.Parse()

	opts := runtime.DefaultOptions()
	if *configPath != "" {
		var err error
		if opts, err = config.Load(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	sampler := profile.NewSampler()
	if *sample > 0 {
		if err := sampler.Start(*sample); err != nil {
			log.Fatalf("sampler: %v", err)
		}
		opts.Sink = sampler
	}

	fmt.Printf("Array Performance Analysis Tool\n")
	rule()
	fmt.Printf("Go Version: %s\n", goruntime.Version())
	fmt.Printf("OS/Arch: %s/%s\n", goruntime.GOOS, goruntime.GOARCH)
	p.Printf("Test Size: %d elements\n", *size)
	p.Printf("Iterations: %d\n", *iter)
	fmt.Printf("Inline limit: %s, malloc from: %s, mmap: %t\n",
		byteCount(int64(opts.InlineMaxBytes)), byteCount(int64(opts.MallocThreshold)), opts.UseMmap)
	fmt.Printf("\n")

	tests := map[string]func(*runtime.Heap) (result, error){
		"append":  runAppend,
		"prepend": runPrepend,
		"churn":   runChurn,
		"ptrcopy": runPtrCopy,
	}
	order := []string{"append", "prepend", "churn", "ptrcopy"}
	if *testType != "all" {
		if _, ok := tests[*testType]; !ok {
			fmt.Printf("Unknown test type: %s\n", *testType)
			os.Exit(1)
		}
		order = []string{*testType}
	}

	var results []result
	for _, name := range order {
		h, err := runtime.NewHeap(opts)
		if err != nil {
			log.Fatalf("heap: %v", err)
		}
		r, err := tests[name](h)
		if err != nil {
			log.Fatalf("%s: %v", name, err)
		}
		results = append(results, r)
		st := h.Stats()
		p.Printf("%-10s bytes allocated %s, unshares %d, mallocs %d, remset %d\n",
			name, byteCount(st.BytesAllocated), st.Unshares, st.MallocAllocs, st.RemsetQueued)
	}

	fmt.Printf("\n")
	report(results)

	if *sample > 0 {
		sampler.Stop()
		fmt.Printf("\nSampled allocations (%d of %d)\n", len(sampler.Fetch()), sampler.Seen())
		rule()
		for i, s := range sampler.Summarize() {
			if i == 10 {
				break
			}
			p.Printf("%-24s %-8s %8d %12s\n", s.TypeName, s.Storage, s.Count, byteCount(s.Bytes))
		}
	}
}

func report(results []result) {
	fmt.Printf("%-10s %14s %14s %10s %12s\n", "test", "time", "ns/op", "reallocs", "capacity")
	rule()
	for _, r := range results {
		nsop := float64(r.elapsed.Nanoseconds()) / float64(max(r.ops, 1))
		p.Printf("%-10s %14v %14.1f %10d %12d\n", r.name, r.elapsed, nsop, r.reallocs, r.capacity)
	}
}

// rule prints a separator as wide as the terminal, or 60 columns when
// stdout is not a terminal.
func rule() {
	width := 60
	if fd := int(os.Stdout.Fd()); term.IsTerminal(fd) {
		if w, _, err := term.GetSize(fd); err == nil && w > 0 {
			width = min(w, 120)
		}
	}
	fmt.Println(strings.Repeat("-", width))
}

func byteCount(n int64) string {
	const unit = 1024
	if n < unit {
		return p.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return p.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func runAppend(h *runtime.Heap) (result, error) {
	r := result{name: "append"}
	start := time.Now()
	for it := 0; it < *iter; it++ {
		a, err := array.NewVector(h, model.Int64, 0)
		if err != nil {
			return r, err
		}
		for i := 0; i < *size; i++ {
			if err := a.Push(runtime.Int64(int64(i))); err != nil {
				return r, err
			}
		}
		r.capacity = a.Capacity()
		h.Collect()
	}
	r.elapsed = time.Since(start)
	r.ops = *size * *iter
	r.reallocs = h.Stats().Reallocs
	return r, nil
}

func runPrepend(h *runtime.Heap) (result, error) {
	r := result{name: "prepend"}
	start := time.Now()
	for it := 0; it < *iter; it++ {
		a, err := array.NewVector(h, model.Int64, 0)
		if err != nil {
			return r, err
		}
		for i := 0; i < *size; i++ {
			if err := a.GrowBeg(1); err != nil {
				return r, err
			}
			if err := a.Set(0, runtime.Int64(int64(i))); err != nil {
				return r, err
			}
		}
		r.capacity = a.Capacity()
		h.Collect()
	}
	r.elapsed = time.Since(start)
	r.ops = *size * *iter
	r.reallocs = h.Stats().Reallocs
	return r, nil
}

// runChurn keeps a queue of fixed length by pushing at the end and deleting
// at the front, which exercises offset limiting.
func runChurn(h *runtime.Heap) (result, error) {
	r := result{name: "churn"}
	a, err := array.NewVector(h, model.Float64, 0)
	if err != nil {
		return r, err
	}
	window := max(*size/10, 1)
	start := time.Now()
	for i := 0; i < *size**iter; i++ {
		if err := a.Push(runtime.Float64(float64(i))); err != nil {
			return r, err
		}
		if a.Len() > window {
			if err := a.DeleteBeg(1); err != nil {
				return r, err
			}
		}
	}
	r.elapsed = time.Since(start)
	r.ops = *size * *iter
	r.reallocs = h.Stats().Reallocs
	r.capacity = a.Capacity()
	return r, nil
}

// runPtrCopy copies references from a young array into one promoted to the
// old generation, so the first copy goes through the write barrier.
func runPtrCopy(h *runtime.Heap) (result, error) {
	r := result{name: "ptrcopy"}
	dst, err := array.NewVector(h, model.Any, *size)
	if err != nil {
		return r, err
	}
	h.Collect(dst)
	src, err := array.NewVector(h, model.Any, *size)
	if err != nil {
		return r, err
	}
	for i := 0; i < *size; i++ {
		if err := src.Set(i, runtime.Int64(int64(i))); err != nil {
			return r, err
		}
	}
	start := time.Now()
	for it := 0; it < *iter; it++ {
		if err := array.PtrCopy(dst, 0, src, 0, *size); err != nil {
			return r, err
		}
	}
	r.elapsed = time.Since(start)
	r.ops = *size * *iter
	r.reallocs = h.Stats().Reallocs
	r.capacity = dst.Capacity()
	if h.RemsetLen() == 0 {
		return r, fmt.Errorf("destination was not queued by the write barrier")
	}
	return r, nil
}
