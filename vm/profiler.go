package vm

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Profiler counts executed instructions and function calls. One Profiler
// may be shared by several machines.

// FunctionProfile holds profiling data for a single function.
type FunctionProfile struct {
	Calls uint64      // Atomic counter for calls
	IsHot atomic.Bool // Set once Calls reached the threshold
}

// Profiler collects per-opcode and per-function counts.
type Profiler struct {
	ops       [opCount]uint64
	functions sync.Map // *Function -> *FunctionProfile

	// HotThreshold is the call count at which a function becomes hot.
	HotThreshold uint64 // Default: 1000

	// OnHot is called once for each function that becomes hot.
	OnHot func(fn *Function, profile *FunctionProfile)

	hotCount uint64
}

// NewProfiler creates a profiler with the default threshold.
func NewProfiler() *Profiler {
	return &Profiler{HotThreshold: 1000}
}

// RecordOp counts one executed instruction.
func (p *Profiler) RecordOp(op Opcode) {
	if op < opCount {
		atomic.AddUint64(&p.ops[op], 1)
	}
}

// RecordCall counts a call of fn. Returns true if this call made the
// function hot.
func (p *Profiler) RecordCall(fn *Function) bool {
	if fn == nil {
		return false
	}
	val, _ := p.functions.LoadOrStore(fn, &FunctionProfile{})
	profile := val.(*FunctionProfile)

	count := atomic.AddUint64(&profile.Calls, 1)
	// Only the call that flips IsHot reports the function.
	if count >= p.HotThreshold && profile.IsHot.CompareAndSwap(false, true) {
		atomic.AddUint64(&p.hotCount, 1)
		if p.OnHot != nil {
			p.OnHot(fn, profile)
		}
		return true
	}
	return false
}

// FunctionProfile returns the profile for fn, or nil if it was never
// called.
func (p *Profiler) FunctionProfile(fn *Function) *FunctionProfile {
	if val, ok := p.functions.Load(fn); ok {
		return val.(*FunctionProfile)
	}
	return nil
}

// OpCount returns how many times op has executed.
func (p *Profiler) OpCount(op Opcode) uint64 {
	if op >= opCount {
		return 0
	}
	return atomic.LoadUint64(&p.ops[op])
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Instructions uint64 // Total instructions executed
	Functions    int    // Number of functions called at least once
	HotFunctions int
	Calls        uint64 // Total function calls
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	for op := range opCount {
		stats.Instructions += p.OpCount(op)
	}
	p.functions.Range(func(_, value any) bool {
		profile := value.(*FunctionProfile)
		stats.Functions++
		stats.Calls += atomic.LoadUint64(&profile.Calls)
		return true
	})
	stats.HotFunctions = int(atomic.LoadUint64(&p.hotCount))
	return stats
}

// OpUsage is one row of TopOps.
type OpUsage struct {
	Op    Opcode
	Count uint64
}

// TopOps returns the n most executed opcodes, most frequent first.
func (p *Profiler) TopOps(n int) []OpUsage {
	var all []OpUsage
	for op := range opCount {
		if c := p.OpCount(op); c > 0 {
			all = append(all, OpUsage{op, c})
		}
	}
	slices.SortStableFunc(all, func(a, b OpUsage) int {
		switch {
		case a.Count > b.Count:
			return -1
		case a.Count < b.Count:
			return 1
		}
		return 0
	})
	return all[:min(n, len(all))]
}

// TopFunctions returns the n most called functions, most called first.
// Ties are broken by entry point.
func (p *Profiler) TopFunctions(n int) []*Function {
	type functionCount struct {
		fn    *Function
		count uint64
	}

	var all []functionCount
	p.functions.Range(func(key, value any) bool {
		all = append(all, functionCount{key.(*Function), atomic.LoadUint64(&value.(*FunctionProfile).Calls)})
		return true
	})
	slices.SortFunc(all, func(a, b functionCount) int {
		switch {
		case a.count > b.count:
			return -1
		case a.count < b.count:
			return 1
		}
		return a.fn.PC - b.fn.PC
	})

	result := make([]*Function, 0, min(n, len(all)))
	for _, fc := range all[:min(n, len(all))] {
		result = append(result, fc.fn)
	}
	return result
}

// Reset clears all profiling data. It must not run concurrently with
// recording.
func (p *Profiler) Reset() {
	for op := range opCount {
		atomic.StoreUint64(&p.ops[op], 0)
	}
	p.functions.Clear()
	atomic.StoreUint64(&p.hotCount, 0)
}
