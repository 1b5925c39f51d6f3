package fifo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/device/hal/enum"
	"github.com/ardnew/hoodloader/pkg"
)

// maxQueuedSetups bounds control requests waiting for the task loop.
const maxQueuedSetups = 16

type setupMsg struct {
	setup hal.SetupPacket
	data  []byte
}

// HAL implements hal.Transport using named pipes (FIFOs).
// Each device instance creates a unique subdirectory under the bus directory.
type HAL struct {
	busDir    string
	deviceDir string
	uuid      string
	bankSize  int
	identity  enum.Identity
	std       *enum.Handler

	hostToDevice *os.File // device reads control and bus messages
	deviceToHost *os.File // device writes control responses
	connection   *os.File // device signals attach/detach
	epOut        *os.File // device reads OUT packets
	epIn         *os.File // device writes IN packets

	state     atomic.Uint32
	resumeTo  atomic.Uint32 // state to restore on resume
	setups    chan setupMsg
	current   *setupMsg
	controlMu sync.Mutex // serialises writes to deviceToHost

	outMu sync.Mutex
	out   [][]byte

	mutex     sync.Mutex
	started   bool
	ctx       context.Context
	cancel    context.CancelFunc
	closeCh   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a HAL.
type Option func(*HAL)

// WithBankSize overrides the bulk bank size (default 64).
func WithBankSize(n int) Option {
	return func(h *HAL) {
		if n > 0 && n <= MaxPayload {
			h.bankSize = n
		}
	}
}

// WithIdentity sets the vendor, product and strings reported during
// enumeration.
func WithIdentity(id enum.Identity) Option {
	return func(h *HAL) {
		h.identity = id
	}
}

// New creates a FIFO transport under busDir. The device directory is
// created by Start.
func New(busDir string, opts ...Option) *HAL {
	h := &HAL{
		busDir:   busDir,
		bankSize: hal.DefaultBankSize,
		identity: enum.DefaultIdentity,
		setups:   make(chan setupMsg, maxQueuedSetups),
		closeCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.std = enum.NewHandler(enum.NewFunction(h.identity, h.bankSize))
	return h
}

// generateUUID generates a random version 4 UUID.
func generateUUID() (string, error) {
	var uuid [16]byte
	if _, err := rand.Read(uuid[:]); err != nil {
		return "", err
	}
	uuid[6] = (uuid[6] & 0x0f) | 0x40
	uuid[8] = (uuid[8] & 0x3f) | 0x80
	return hex.EncodeToString(uuid[:]), nil
}

// Start creates the device directory and its FIFOs, starts the readers and
// signals the host that the device is attached.
func (h *HAL) Start(ctx context.Context) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.started {
		return pkg.ErrAlreadyRunning
	}

	uuid, err := generateUUID()
	if err != nil {
		return fmt.Errorf("generate uuid: %w", err)
	}
	h.uuid = uuid
	h.deviceDir = filepath.Join(h.busDir, "device-"+uuid)

	if err := os.MkdirAll(h.deviceDir, 0o755); err != nil {
		return fmt.Errorf("create device dir: %w", err)
	}
	for _, name := range []string{fifoHostToDevice, fifoDeviceToHost, fifoConnection, fifoEPOut, fifoEPIn} {
		if err := createFIFO(h.deviceDir, name); err != nil {
			h.cleanup()
			return err
		}
	}

	files := []struct {
		name string
		f    **os.File
	}{
		{fifoHostToDevice, &h.hostToDevice},
		{fifoDeviceToHost, &h.deviceToHost},
		{fifoConnection, &h.connection},
		{fifoEPOut, &h.epOut},
		{fifoEPIn, &h.epIn},
	}
	for _, fl := range files {
		if *fl.f, err = openFIFO(h.deviceDir, fl.name); err != nil {
			h.cleanup()
			return err
		}
	}

	h.ctx, h.cancel = context.WithCancel(ctx)
	h.started = true
	h.state.Store(uint32(hal.StatePowered))

	h.wg.Add(2)
	go h.controlLoop()
	go h.outLoop()

	if err := writeMessage(h.closeCh, h.connection, sigConnect, nil); err != nil {
		pkg.LogWarn(pkg.ComponentHAL, "failed to signal connection", "error", err)
	}

	pkg.LogInfo(pkg.ComponentHAL, "fifo transport started",
		"busDir", h.busDir, "deviceDir", h.deviceDir, "uuid", h.uuid)
	return nil
}

// Close detaches, stops the readers and removes the device directory.
func (h *HAL) Close() error {
	h.Detach()

	h.closeOnce.Do(func() {
		close(h.closeCh)
	})

	h.mutex.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.mutex.Unlock()
	h.wg.Wait()

	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.cleanup()
	h.started = false
	pkg.LogInfo(pkg.ComponentHAL, "fifo transport closed")
	return nil
}

func (h *HAL) cleanup() {
	for _, f := range []**os.File{&h.hostToDevice, &h.deviceToHost, &h.connection, &h.epOut, &h.epIn} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
	if h.deviceDir != "" {
		os.RemoveAll(h.deviceDir)
	}
}

// DeviceDir returns the device subdirectory path.
func (h *HAL) DeviceDir() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.deviceDir
}

// UUID returns the device's unique identifier.
func (h *HAL) UUID() string {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.uuid
}

func (h *HAL) setState(s hal.State) {
	old := hal.State(h.state.Swap(uint32(s)))
	if old != s {
		pkg.LogDebug(pkg.ComponentHAL, "state changed", "from", old.String(), "to", s.String())
	}
}

// controlLoop reads control and bus messages from the host.
func (h *HAL) controlLoop() {
	defer h.wg.Done()
	var buf [headerSize + MaxPayload]byte

	for {
		typ, payload, err := readMessage(h.ctx, h.closeCh, h.hostToDevice, buf[:])
		if err != nil {
			if h.ctx.Err() != nil || errors.Is(err, pkg.ErrCancelled) {
				return
			}
			pkg.LogWarn(pkg.ComponentHAL, "control read failed", "error", err)
			continue
		}

		switch typ {
		case msgSetup:
			// Payload: [address, setup(8), data...]
			var m setupMsg
			if len(payload) < 1+hal.SetupPacketSize ||
				!hal.ParseSetupPacket(payload[1:], &m.setup) {
				pkg.LogWarn(pkg.ComponentHAL, "short setup message", "length", len(payload))
				continue
			}
			m.data = append([]byte{}, payload[1+hal.SetupPacketSize:]...)
			pkg.LogDebug(pkg.ComponentHAL, "setup received",
				"reqType", m.setup.RequestType, "req", m.setup.Request,
				"value", m.setup.Value, "index", m.setup.Index, "length", m.setup.Length)
			if enum.IsStandard(&m.setup) {
				h.standard(&m.setup)
				continue
			}
			select {
			case h.setups <- m:
			default:
				pkg.LogWarn(pkg.ComponentHAL, "setup queue full, request dropped")
			}

		case msgReset:
			h.std.Reset()
			h.setState(hal.StateDefault)
			h.dropOUT()
			h.reply(msgAck, nil)
		case msgSuspend:
			h.resumeTo.Store(h.state.Load())
			h.setState(hal.StateSuspended)
			h.reply(msgAck, nil)
		case msgResume:
			if h.State() == hal.StateSuspended {
				h.setState(hal.State(h.resumeTo.Load()))
			}
			h.reply(msgAck, nil)

		default:
			pkg.LogWarn(pkg.ComponentHAL, "unknown message type", "type", typ)
		}
	}
}

// standard answers a standard request from the enumeration handler.
func (h *HAL) standard(setup *hal.SetupPacket) {
	data, ev, err := h.std.Handle(setup)
	if err != nil {
		pkg.LogDebug(pkg.ComponentHAL, "standard request stalled", "error", err)
		h.reply(msgStall, nil)
		return
	}

	// The state changes before the status stage so the host observes it
	// once the request completes.
	switch ev {
	case enum.EventAddressed:
		h.setState(hal.StateAddressed)
		pkg.LogDebug(pkg.ComponentHAL, "address assigned", "address", h.std.Address())
	case enum.EventConfigured:
		h.dropOUT()
		h.setState(hal.StateConfigured)
	case enum.EventDeconfigured:
		if h.State() == hal.StateConfigured {
			h.setState(hal.StateAddressed)
		}
	}

	if setup.IsDeviceToHost() {
		h.reply(msgData, data)
	} else {
		h.reply(msgAck, nil)
	}
}

// outLoop reads OUT packets from the host into the bank queue.
func (h *HAL) outLoop() {
	defer h.wg.Done()
	var buf [headerSize + MaxPayload]byte

	for {
		typ, payload, err := readMessage(h.ctx, h.closeCh, h.epOut, buf[:])
		if err != nil {
			if h.ctx.Err() != nil || errors.Is(err, pkg.ErrCancelled) {
				return
			}
			pkg.LogWarn(pkg.ComponentHAL, "OUT read failed", "error", err)
			continue
		}
		if typ != msgData {
			pkg.LogWarn(pkg.ComponentHAL, "unexpected message on OUT endpoint", "type", typ)
			continue
		}
		if len(payload) > h.bankSize {
			pkg.LogWarn(pkg.ComponentHAL, "oversized OUT packet truncated", "length", len(payload))
			payload = payload[:h.bankSize]
		}
		h.outMu.Lock()
		h.out = append(h.out, append([]byte{}, payload...))
		h.outMu.Unlock()
	}
}

func (h *HAL) dropOUT() {
	h.outMu.Lock()
	h.out = nil
	h.outMu.Unlock()
}

func (h *HAL) reply(typ byte, data []byte) error {
	h.controlMu.Lock()
	defer h.controlMu.Unlock()
	if h.deviceToHost == nil {
		return pkg.ErrNotConfigured
	}
	return writeMessage(h.closeCh, h.deviceToHost, typ, data)
}

// State returns the current device state.
func (h *HAL) State() hal.State {
	return hal.State(h.state.Load())
}

// PollSetup returns the next queued control request.
func (h *HAL) PollSetup(out *hal.SetupPacket, data []byte) (int, bool) {
	select {
	case m := <-h.setups:
		h.current = &m
		*out = m.setup
		return copy(data, m.data), true
	default:
		return 0, false
	}
}

func (h *HAL) complete(typ byte, data []byte) error {
	if h.current == nil {
		return pkg.ErrProtocol
	}
	h.current = nil
	return h.reply(typ, data)
}

// WriteControl completes the pending request with a data stage.
func (h *HAL) WriteControl(data []byte) error {
	return h.complete(msgData, data)
}

// AckControl completes the pending request with a status stage.
func (h *HAL) AckControl() error {
	return h.complete(msgAck, nil)
}

// StallControl rejects the pending request.
func (h *HAL) StallControl() error {
	pkg.LogDebug(pkg.ComponentHAL, "EP0 stalled")
	return h.complete(msgStall, nil)
}

// BankSize returns the bulk bank size.
func (h *HAL) BankSize(addr uint8) int {
	return h.bankSize
}

// OUTReceived reports whether an OUT packet is waiting.
func (h *HAL) OUTReceived(addr uint8) bool {
	if addr != hal.EndpointOUT {
		return false
	}
	h.outMu.Lock()
	defer h.outMu.Unlock()
	return len(h.out) > 0
}

// ReadOUT copies the current OUT packet.
func (h *HAL) ReadOUT(addr uint8, buf []byte) int {
	if addr != hal.EndpointOUT {
		return 0
	}
	h.outMu.Lock()
	defer h.outMu.Unlock()
	if len(h.out) == 0 {
		return 0
	}
	return copy(buf, h.out[0])
}

// ReleaseOUT discards the current OUT packet.
func (h *HAL) ReleaseOUT(addr uint8) {
	if addr != hal.EndpointOUT {
		return
	}
	h.outMu.Lock()
	if len(h.out) > 0 {
		h.out = h.out[1:]
	}
	h.outMu.Unlock()
}

// INReady reports whether IN packets can be written. The pipe buffers for
// the host, so the bank is ready whenever the device is attached.
func (h *HAL) INReady(addr uint8) bool {
	return addr == hal.EndpointIN && h.State() != hal.StateUnattached
}

// WriteIN writes one IN packet; an empty slice writes a ZLP.
func (h *HAL) WriteIN(addr uint8, data []byte) error {
	if addr != hal.EndpointIN {
		return pkg.ErrInvalidEndpoint
	}
	if len(data) > h.bankSize {
		return pkg.ErrBufferTooSmall
	}
	h.mutex.Lock()
	f := h.epIn
	h.mutex.Unlock()
	if f == nil {
		return pkg.ErrNotConfigured
	}
	return writeMessage(h.closeCh, f, msgData, data)
}

// Detach signals disconnection to the host.
func (h *HAL) Detach() error {
	if hal.State(h.state.Swap(uint32(hal.StateUnattached))) == hal.StateUnattached {
		return nil
	}
	h.mutex.Lock()
	f := h.connection
	h.mutex.Unlock()
	if f != nil {
		if err := writeMessage(h.closeCh, f, sigDisconnect, nil); err != nil {
			return err
		}
	}
	pkg.LogInfo(pkg.ComponentHAL, "fifo transport detached")
	return nil
}

var _ hal.Transport = (*HAL)(nil)
