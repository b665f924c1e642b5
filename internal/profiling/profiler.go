// Package profiling wires the --profile-* flags to runtime/pprof and runtime/trace.
package profiling

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"

	"github.com/dustin/go-humanize"
)

// Options selects the profiles of one run. Empty paths are disabled.
type Options struct {
	CPUPath   string
	MemPath   string
	TracePath string
}

// Enabled reports whether any profile was requested.
func (o Options) Enabled() bool {
	return o.CPUPath != "" || o.MemPath != "" || o.TracePath != ""
}

// Profiler manages performance profiling for one command.
type Profiler struct {
	cpuFile   *os.File
	traceFile *os.File
}

// NewProfiler creates a new Profiler instance.
func NewProfiler() *Profiler {
	return &Profiler{}
}

// Start begins the CPU profile and trace requested by opts and returns a
// stop function that ends them and writes the heap profile, if requested.
func (p *Profiler) Start(opts Options) (stop func() error, err error) {
	var stops []func()
	undo := func() {
		for i := len(stops) - 1; i >= 0; i-- {
			stops[i]()
		}
	}

	if opts.CPUPath != "" {
		s, err := p.StartCPU(opts.CPUPath)
		if err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	if opts.TracePath != "" {
		s, err := p.StartTrace(opts.TracePath)
		if err != nil {
			undo()
			return nil, err
		}
		stops = append(stops, s)
	}

	return func() error {
		undo()
		if opts.MemPath != "" {
			return p.WriteHeap(opts.MemPath)
		}
		return nil
	}, nil
}

// StartCPU starts CPU profiling to path. The returned function stops it
// and flushes the file.
func (p *Profiler) StartCPU(path string) (func(), error) {
	if p.cpuFile != nil {
		return nil, errors.New("CPU profile already running")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create CPU profile file: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start CPU profile: %w", err)
	}
	p.cpuFile = f

	return func() {
		pprof.StopCPUProfile()
		_ = p.cpuFile.Close()
		p.cpuFile = nil
	}, nil
}

// StartTrace starts execution tracing to path.
func (p *Profiler) StartTrace(path string) (func(), error) {
	if p.traceFile != nil {
		return nil, errors.New("trace already running")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}
	if err := trace.Start(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to start trace: %w", err)
	}
	p.traceFile = f

	return func() {
		trace.Stop()
		_ = p.traceFile.Close()
		p.traceFile = nil
	}, nil
}

// WriteHeap writes a heap profile after forcing a collection.
func (p *Profiler) WriteHeap(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create heap profile file: %w", err)
	}
	defer func() { _ = f.Close() }()

	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	return nil
}

// MemSummary describes the current heap, e.g. "heap 12 MB, 3 GC".
func MemSummary() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return fmt.Sprintf("heap %s, %d GC", humanize.Bytes(m.HeapAlloc), m.NumGC)
}
