// Package arraycore is the dynamic array subsystem of a managed runtime.
//
// Arrays are typed, N-dimensional and resizable. One-dimensional arrays grow
// and shrink at both ends in amortized constant time, share buffers with
// other arrays and with immutable strings, and cooperate with a generational
// collector through write barriers.
//
// # Architecture Overview
//
//   - core: alignment, layout descriptors, dimension validation, error kinds
//   - model: element types (primitives, structs, mutables, unions) and registries
//   - kernels: word-atomic reference moves and small fixed-size copies
//   - runtime: the heap: object table, buffer pool, large-buffer allocator,
//     strings, boxes, the remembered set and the collector
//   - array: the array engine
//   - profile: sampled allocation recording
//   - config: heap options from TOML or YAML files
//   - compiler: a line-oriented language for declaring element types
//
// # Basic Usage
//
//	h, err := runtime.NewHeap(runtime.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	a, err := array.NewVector(h, model.Int64, 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for i := range 10 {
//	    if err := a.Push(runtime.Int64(int64(i))); err != nil {
//	        log.Fatal(err)
//	    }
//	}
//	_ = a.DeleteBeg(3)
//
// # Command-Line Tools
//
//   - arrsh: interactive shell over a heap and named arrays
//   - arrperf: growth, churn and pointer-copy timings
//   - arrlayout: prints the array layout of declared types
package arraycore
