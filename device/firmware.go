package device

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ardnew/hoodloader/board"
	"github.com/ardnew/hoodloader/device/class/cdc"
	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/nvm"
	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/pkg/avr109"
	"github.com/ardnew/hoodloader/uart"
)

// maxControlData bounds the data stage of the class requests handled here.
const maxControlData = 64

// Firmware is the task loop of the dual-mode device. It owns the single
// channel and drives the negotiator, the bridge and the command processor.
type Firmware struct {
	cfg  Config
	t    hal.Transport
	uart uart.Port

	ch    *Channel
	neg   *Negotiator
	bri   *Bridge
	proc  *Processor
	waits *waiter
	out   *outStream
	in    *inStream

	tx, rx   *board.Pulse
	lastTick time.Time

	setup   hal.SetupPacket
	ctrlBuf [maxControlData]byte

	running atomic.Bool
}

// New creates the firmware for transport t, programming store and bridging
// to port.
func New(t hal.Transport, store nvm.Store, port uart.Port, opts ...Option) *Firmware {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &Firmware{
		cfg:  cfg,
		t:    t,
		uart: port,
		ch:   NewChannel(cfg.RingCapacity),
		tx:   board.NewPulse(cfg.TxLED, cfg.LEDPulseTicks),
		rx:   board.NewPulse(cfg.RxLED, cfg.LEDPulseTicks),

		lastTick: time.Now(),
	}
	f.waits = &waiter{t: t, poll: cfg.PollInterval}
	f.out = newOutStream(f.waits)
	f.in = newInStream(f.waits)
	f.neg = NewNegotiator(f.ch, port, cfg.Reset, cfg.Sentinel)
	f.bri = NewBridge(f.ch, t, port, f.tx, f.rx)
	f.proc = NewProcessor(f.ch, store, &f.cfg)
	return f
}

// Channel returns the channel state.
func (f *Firmware) Channel() *Channel {
	return f.ch
}

// Mode returns the current channel mode.
func (f *Firmware) Mode() Mode {
	return f.ch.Mode()
}

// LineCoding returns the current line coding.
func (f *Firmware) LineCoding() cdc.LineCoding {
	return f.ch.LineCoding()
}

// Bridge returns the bridge, whose Produce method is the UART receive
// callback.
func (f *Firmware) Bridge() *Bridge {
	return f.bri
}

// Exited reports whether the host has ended the programming session.
func (f *Firmware) Exited() bool {
	return f.proc.Exited()
}

// Step runs one iteration of the task loop: pending control requests, then
// the bulk endpoints for the current mode, then the LED tick. Losing the host
// in the middle of an iteration abandons it silently.
func (f *Firmware) Step(ctx context.Context) error {
	_, err := f.step(ctx)
	return err
}

func (f *Firmware) step(ctx context.Context) (bool, error) {
	f.waits.ctx = ctx
	busy := f.serviceControl()

	var err error
	if f.t.State() == hal.StateConfigured {
		var did bool
		switch f.ch.Mode() {
		case ModeBridge:
			did, err = f.bridgeTask()
		case ModeProgrammer:
			did, err = f.programmerTask()
		}
		busy = busy || did
	}

	f.tickLEDs()

	if errors.Is(err, pkg.ErrDetached) {
		pkg.LogDebug(pkg.ComponentFirmware, "transfer abandoned", "state", f.t.State().String())
		return busy, nil
	}
	return busy, err
}

func (f *Firmware) serviceControl() bool {
	n, ok := f.t.PollSetup(&f.setup, f.ctrlBuf[:])
	if !ok {
		return false
	}
	if f.neg.HandleSetup(f.t, &f.setup, f.ctrlBuf[:n]) {
		return true
	}
	pkg.LogDebug(pkg.ComponentFirmware, "control request stalled",
		"bmRequestType", f.setup.RequestType, "bRequest", f.setup.Request,
		"wIndex", f.setup.Index)
	if err := f.t.StallControl(); err != nil {
		pkg.LogWarn(pkg.ComponentFirmware, "stall failed", "error", err)
	}
	return true
}

func (f *Firmware) bridgeTask() (bool, error) {
	fwd := f.bri.Forward()
	n, err := f.bri.Drain(f.in)
	return fwd || n > 0, err
}

// programmerTask executes one command. The OUT packet that carried it is
// released afterwards; bytes left in it are discarded.
func (f *Firmware) programmerTask() (bool, error) {
	if !f.t.OUTReceived(hal.EndpointOUT) {
		return false, nil
	}
	defer f.out.release()

	b, err := f.out.ReadByte()
	if err != nil {
		return true, err
	}
	if err := f.proc.Execute(avr109.Command(b), f.out, f.in); err != nil {
		f.in.reset()
		return true, err
	}
	if err := f.in.flush(); err != nil {
		f.in.reset()
		return true, err
	}
	return true, nil
}

func (f *Firmware) tickLEDs() {
	if f.cfg.LEDTickInterval <= 0 {
		return
	}
	now := time.Now()
	if now.Sub(f.lastTick) < f.cfg.LEDTickInterval {
		return
	}
	f.lastTick = now
	f.tx.Tick()
	f.rx.Tick()
}

// Run executes the task loop until the host sends Exit or ctx is cancelled.
// After Exit the device waits the exit delay, detaches and arms the
// watchdog.
func (f *Firmware) Run(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return pkg.ErrAlreadyRunning
	}
	defer f.running.Store(false)

	f.uart.SetReceiver(f.bri.Produce)
	defer f.uart.SetReceiver(nil)

	pkg.LogInfo(pkg.ComponentFirmware, "firmware started",
		"sentinel", f.cfg.Sentinel, "ring", f.ch.ring.Cap(),
		"features", f.cfg.Features.String())

	for !f.proc.Exited() {
		if err := ctx.Err(); err != nil {
			return err
		}
		busy, err := f.step(ctx)
		if err != nil {
			return err
		}
		if !busy {
			time.Sleep(f.cfg.PollInterval)
		}
	}

	pkg.LogInfo(pkg.ComponentFirmware, "programming session ended, detaching")
	time.Sleep(f.cfg.ExitDelay)
	if err := f.t.Detach(); err != nil {
		pkg.LogWarn(pkg.ComponentFirmware, "detach failed", "error", err)
	}
	if f.cfg.Watchdog != nil {
		f.cfg.Watchdog.Arm(f.cfg.WatchdogTimeout)
	}
	return nil
}
