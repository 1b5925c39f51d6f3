package board

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/ardnew/hoodloader/pkg"
)

var (
	initOnce sync.Once
	initErr  error
)

// Init loads the periph host drivers. It is safe to call more than once.
func Init() error {
	initOnce.Do(func() {
		state, err := host.Init()
		if err != nil {
			initErr = fmt.Errorf("failed to initialize periph host: %w", err)
			return
		}
		for _, d := range state.Loaded {
			pkg.LogDebug(pkg.ComponentBoard, "driver loaded", "driver", d.String())
		}
	})
	return initErr
}

// Pin looks up a GPIO pin by name after loading the host drivers.
func Pin(name string) (gpio.PinIO, error) {
	if err := Init(); err != nil {
		return nil, err
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: no gpio pin %q", pkg.ErrInvalidParameter, name)
	}
	return p, nil
}

func level(on, activeLow bool) gpio.Level {
	if activeLow {
		return gpio.Level(!on)
	}
	return gpio.Level(on)
}

// GPIOReset drives a target reset line through a GPIO pin.
type GPIOReset struct {
	pin       gpio.PinIO
	activeLow bool
}

// NewGPIOReset opens pin name as a reset line. Reset lines of AVR targets are
// active low. The line starts released.
func NewGPIOReset(name string, activeLow bool) (*GPIOReset, error) {
	p, err := Pin(name)
	if err != nil {
		return nil, err
	}
	r := &GPIOReset{pin: p, activeLow: activeLow}
	if err := r.Release(); err != nil {
		return nil, err
	}
	return r, nil
}

// Assert holds the target in reset.
func (r *GPIOReset) Assert() error {
	return r.pin.Out(level(true, r.activeLow))
}

// Release lets the target run.
func (r *GPIOReset) Release() error {
	return r.pin.Out(level(false, r.activeLow))
}

// GPIOLED drives an LED through a GPIO pin.
type GPIOLED struct {
	pin       gpio.PinIO
	activeLow bool
}

// NewGPIOLED opens pin name as an LED, initially off.
func NewGPIOLED(name string, activeLow bool) (*GPIOLED, error) {
	p, err := Pin(name)
	if err != nil {
		return nil, err
	}
	l := &GPIOLED{pin: p, activeLow: activeLow}
	l.Set(false)
	return l, nil
}

// Set turns the LED on or off.
func (l *GPIOLED) Set(on bool) {
	if err := l.pin.Out(level(on, l.activeLow)); err != nil {
		pkg.LogWarn(pkg.ComponentBoard, "led write failed", "pin", l.pin.Name(), "error", err)
	}
}

var (
	_ ResetLine = (*GPIOReset)(nil)
	_ LED       = (*GPIOLED)(nil)
)
