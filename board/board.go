package board

import (
	"sync"
	"time"
)

// ResetLine is the reset input of the target controller behind the bridge.
type ResetLine interface {
	Assert() error
	Release() error
}

// LED is a single indicator.
type LED interface {
	Set(on bool)
}

// Watchdog resets the device once the armed timeout elapses.
type Watchdog interface {
	Arm(d time.Duration)
}

// VirtualReset records reset line activity.
type VirtualReset struct {
	mu       sync.Mutex
	asserted bool
	pulses   int
}

// Assert holds the line.
func (r *VirtualReset) Assert() error {
	r.mu.Lock()
	if !r.asserted {
		r.pulses++
	}
	r.asserted = true
	r.mu.Unlock()
	return nil
}

// Release frees the line.
func (r *VirtualReset) Release() error {
	r.mu.Lock()
	r.asserted = false
	r.mu.Unlock()
	return nil
}

// Asserted reports whether the line is held.
func (r *VirtualReset) Asserted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.asserted
}

// Pulses returns how many times the line went from released to asserted.
func (r *VirtualReset) Pulses() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pulses
}

// NopLED is an LED that is not fitted.
type NopLED struct{}

// Set does nothing.
func (NopLED) Set(bool) {}

// Pulse keeps an LED lit for a number of ticks after activity.
// It is driven from the task loop only.
type Pulse struct {
	led       LED
	ticks     int
	remaining int
}

// NewPulse returns a pulse of the given length in ticks.
func NewPulse(led LED, ticks int) *Pulse {
	if led == nil {
		led = NopLED{}
	}
	return &Pulse{led: led, ticks: ticks}
}

// Trigger lights the LED and restarts the countdown.
func (p *Pulse) Trigger() {
	if p.ticks <= 0 {
		return
	}
	p.led.Set(true)
	p.remaining = p.ticks
}

// Tick advances the countdown and turns the LED off when it expires.
func (p *Pulse) Tick() {
	if p.remaining == 0 {
		return
	}
	p.remaining--
	if p.remaining == 0 {
		p.led.Set(false)
	}
}

// Lit reports whether the pulse is running.
func (p *Pulse) Lit() bool {
	return p.remaining > 0
}

// ExitWatchdog runs a reset function when the armed timeout elapses. Arming
// again replaces the pending timeout.
type ExitWatchdog struct {
	mu    sync.Mutex
	reset func()
	timer *time.Timer
	fired chan struct{}
	once  sync.Once
}

// NewExitWatchdog returns a watchdog that calls reset on expiry.
func NewExitWatchdog(reset func()) *ExitWatchdog {
	return &ExitWatchdog{reset: reset, fired: make(chan struct{})}
}

// Arm starts the timeout.
func (w *ExitWatchdog) Arm(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(d, func() {
		w.once.Do(func() {
			if w.reset != nil {
				w.reset()
			}
			close(w.fired)
		})
	})
}

// Stop cancels a pending timeout.
func (w *ExitWatchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

// Fired is closed once the watchdog has reset the device.
func (w *ExitWatchdog) Fired() <-chan struct{} {
	return w.fired
}

var (
	_ ResetLine = (*VirtualReset)(nil)
	_ LED       = NopLED{}
	_ Watchdog  = (*ExitWatchdog)(nil)
)
