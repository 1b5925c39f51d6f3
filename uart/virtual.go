package uart

import (
	"sync"

	"github.com/ardnew/hoodloader/pkg"
)

// Virtual is an in-memory [Port]. It records every configuration and every
// transmitted byte, and delivers injected bytes to the receiver.
type Virtual struct {
	mu       sync.Mutex
	configs  []Config
	holds    []bool
	held     bool
	tx       []byte
	rx       func(byte)
	loopback bool
	closed   bool
}

// VirtualOption configures a Virtual.
type VirtualOption func(*Virtual)

// WithLoopback echoes every transmitted byte back to the receiver.
func WithLoopback() VirtualOption {
	return func(v *Virtual) {
		v.loopback = true
	}
}

// NewVirtual creates an in-memory UART.
func NewVirtual(opts ...VirtualOption) *Virtual {
	v := &Virtual{}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Configure records c.
func (v *Virtual) Configure(c Config) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return pkg.ErrNotRunning
	}
	v.configs = append(v.configs, c)
	return nil
}

// HoldTx records the hold transition.
func (v *Virtual) HoldTx(hold bool) {
	v.mu.Lock()
	v.held = hold
	v.holds = append(v.holds, hold)
	v.mu.Unlock()
}

// WriteByte records b. Writing while TX is held is a protocol error.
func (v *Virtual) WriteByte(b byte) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return pkg.ErrNotRunning
	}
	if v.held {
		v.mu.Unlock()
		return pkg.ErrBankBusy
	}
	v.tx = append(v.tx, b)
	fn, loop := v.rx, v.loopback
	v.mu.Unlock()

	if loop && fn != nil {
		fn(b)
	}
	return nil
}

// SetReceiver installs the receive callback.
func (v *Virtual) SetReceiver(fn func(byte)) {
	v.mu.Lock()
	v.rx = fn
	v.mu.Unlock()
}

// Inject delivers bytes to the receiver as if they arrived on the wire.
func (v *Virtual) Inject(data ...byte) {
	v.mu.Lock()
	fn := v.rx
	v.mu.Unlock()
	if fn == nil {
		return
	}
	for _, b := range data {
		fn(b)
	}
}

// Transmitted returns a copy of every byte written so far.
func (v *Virtual) Transmitted() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]byte{}, v.tx...)
}

// Configs returns every configuration applied so far.
func (v *Virtual) Configs() []Config {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Config{}, v.configs...)
}

// Holds returns the sequence of HoldTx arguments.
func (v *Virtual) Holds() []bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]bool{}, v.holds...)
}

// Close marks the port closed.
func (v *Virtual) Close() error {
	v.mu.Lock()
	v.closed = true
	v.mu.Unlock()
	return nil
}

var _ Port = (*Virtual)(nil)
