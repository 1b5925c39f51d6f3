//go:build profile

package prof

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
)

// ErrActive indicates a profiling session is already running.
var ErrActive = errors.New("profiling session already active")

var (
	mu     sync.Mutex
	active bool
)

// Enabled reports whether profiling support is compiled in.
func Enabled() bool { return true }

// Start begins a profiling session described by opts. The returned function
// stops CPU sampling, writes the requested snapshot profiles and ends the
// session. Only one session may be active at a time.
func Start(opts Options) (func() error, error) {
	mu.Lock()
	defer mu.Unlock()

	if active {
		return nil, ErrActive
	}

	var cpu *os.File
	if opts.CPU != "" {
		f, err := os.Create(opts.CPU)
		if err != nil {
			return nil, fmt.Errorf("create cpu profile: %w", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			f.Close()
			return nil, fmt.Errorf("start cpu profile: %w", err)
		}
		cpu = f
	}
	if opts.Mutex != "" {
		runtime.SetMutexProfileFraction(1)
	}
	if opts.Block != "" {
		runtime.SetBlockProfileRate(1)
	}
	active = true

	var once sync.Once
	var stopErr error
	stop := func() error {
		once.Do(func() {
			stopErr = finish(opts, cpu)
		})
		return stopErr
	}
	return stop, nil
}

func finish(opts Options, cpu *os.File) error {
	mu.Lock()
	defer mu.Unlock()

	var errs []error
	if cpu != nil {
		pprof.StopCPUProfile()
		errs = append(errs, cpu.Close())
	}
	errs = append(errs,
		snapshot("heap", opts.Heap),
		snapshot("mutex", opts.Mutex),
		snapshot("block", opts.Block),
	)
	if opts.Mutex != "" {
		runtime.SetMutexProfileFraction(0)
	}
	if opts.Block != "" {
		runtime.SetBlockProfileRate(0)
	}
	active = false
	return errors.Join(errs...)
}

func snapshot(name, path string) error {
	if path == "" {
		return nil
	}
	p := pprof.Lookup(name)
	if p == nil {
		return fmt.Errorf("unknown profile %q", name)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s profile: %w", name, err)
	}
	defer f.Close()
	return p.WriteTo(f, 0)
}
