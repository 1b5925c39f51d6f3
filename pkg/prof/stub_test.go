//go:build !profile

package prof

import "testing"

func TestStubStart(t *testing.T) {
	if Enabled() {
		t.Fatal("Enabled() = true without profile tag")
	}
	stop, err := Start(Options{CPU: "cpu.prof"})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := stop(); err != nil {
		t.Errorf("stop() error = %v", err)
	}
}

func TestOptionsAny(t *testing.T) {
	if (Options{}).Any() {
		t.Error("empty Options.Any() = true")
	}
	if !(Options{Mutex: "m.prof"}).Any() {
		t.Error("Options{Mutex}.Any() = false")
	}
}
