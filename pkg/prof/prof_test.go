//go:build profile

package prof

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStartWritesProfiles(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		CPU:   filepath.Join(dir, "cpu.prof"),
		Heap:  filepath.Join(dir, "heap.prof"),
		Mutex: filepath.Join(dir, "mutex.prof"),
	}

	stop, err := Start(opts)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := stop(); err != nil {
		t.Fatalf("stop() error = %v", err)
	}

	for _, p := range []string{opts.CPU, opts.Heap, opts.Mutex} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("profile %s not written: %v", filepath.Base(p), err)
		}
	}
}

func TestStartFailsWhenActive(t *testing.T) {
	stop, err := Start(Options{Heap: filepath.Join(t.TempDir(), "heap.prof")})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer stop()

	if _, err := Start(Options{}); !errors.Is(err, ErrActive) {
		t.Errorf("second Start() error = %v, want %v", err, ErrActive)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	stop, err := Start(Options{})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := stop(); err != nil {
		t.Fatalf("first stop() error = %v", err)
	}
	if err := stop(); err != nil {
		t.Errorf("second stop() error = %v", err)
	}
}

func TestStartInvalidPath(t *testing.T) {
	if _, err := Start(Options{CPU: "/nonexistent/directory/cpu.prof"}); err == nil {
		t.Error("Start() error = nil, want error for invalid path")
	}
}
