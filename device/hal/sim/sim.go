package sim

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardnew/hoodloader/device/class/cdc"
	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/pkg"
)

// ControlResult is the device's answer to a control request.
type ControlResult struct {
	Data []byte // IN data stage, nil for status-only completion
	Err  error  // pkg.ErrStall if the request was rejected
}

type pendingSetup struct {
	setup hal.SetupPacket
	data  []byte
	reply chan ControlResult
}

// Transport is an in-memory [hal.Transport] paired with host-side controls.
// The zero value is not usable; create one with [New].
type Transport struct {
	state    atomic.Uint32
	inReady  atomic.Bool
	bankSize int

	mu      sync.Mutex
	setups  []*pendingSetup
	current *pendingSetup
	out     [][]byte // OUT packets; out[0] occupies the bank
	in      [][]byte // IN packets as committed, including ZLPs
	unread  []byte   // IN payload not yet consumed by Port.Read
	avail   chan struct{}
	detachN int
}

// Option configures a Transport.
type Option func(*Transport)

// WithBankSize overrides the bulk bank size (default 64).
func WithBankSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.bankSize = n
		}
	}
}

// WithState sets the initial device state (default configured).
func WithState(s hal.State) Option {
	return func(t *Transport) {
		t.state.Store(uint32(s))
	}
}

// New creates a configured in-memory transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		bankSize: hal.DefaultBankSize,
		avail:    make(chan struct{}, 1),
	}
	t.state.Store(uint32(hal.StateConfigured))
	t.inReady.Store(true)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Device side (hal.Transport)

// State returns the current device state.
func (t *Transport) State() hal.State {
	return hal.State(t.state.Load())
}

// PollSetup dequeues the next control request posted by the host.
func (t *Transport) PollSetup(out *hal.SetupPacket, data []byte) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.setups) == 0 {
		return 0, false
	}
	p := t.setups[0]
	t.setups = t.setups[1:]
	t.current = p
	*out = p.setup
	return copy(data, p.data), true
}

// WriteControl answers the current request with an IN data stage.
func (t *Transport) WriteControl(data []byte) error {
	return t.complete(ControlResult{Data: append([]byte{}, data...)})
}

// AckControl answers the current request with a status stage.
func (t *Transport) AckControl() error {
	return t.complete(ControlResult{})
}

// StallControl rejects the current request.
func (t *Transport) StallControl() error {
	return t.complete(ControlResult{Err: pkg.ErrStall})
}

func (t *Transport) complete(r ControlResult) error {
	t.mu.Lock()
	p := t.current
	t.current = nil
	t.mu.Unlock()
	if p == nil {
		return pkg.ErrProtocol
	}
	p.reply <- r
	return nil
}

// BankSize returns the bank capacity of both bulk endpoints.
func (t *Transport) BankSize(addr uint8) int {
	return t.bankSize
}

// OUTReceived reports whether a host packet occupies the OUT bank.
func (t *Transport) OUTReceived(addr uint8) bool {
	if addr != hal.EndpointOUT {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.out) > 0
}

// ReadOUT copies the packet in the OUT bank.
func (t *Transport) ReadOUT(addr uint8, buf []byte) int {
	if addr != hal.EndpointOUT {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.out) == 0 {
		return 0
	}
	return copy(buf, t.out[0])
}

// ReleaseOUT frees the OUT bank for the next host packet.
func (t *Transport) ReleaseOUT(addr uint8) {
	if addr != hal.EndpointOUT {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.out) > 0 {
		t.out = t.out[1:]
	}
}

// INReady reports whether the host is accepting IN packets.
func (t *Transport) INReady(addr uint8) bool {
	return addr == hal.EndpointIN && t.inReady.Load()
}

// WriteIN records an IN packet.
func (t *Transport) WriteIN(addr uint8, data []byte) error {
	if addr != hal.EndpointIN {
		return pkg.ErrInvalidEndpoint
	}
	if len(data) > t.bankSize {
		return pkg.ErrBufferTooSmall
	}
	if !t.inReady.Load() {
		return pkg.ErrBankBusy
	}
	t.mu.Lock()
	t.in = append(t.in, append([]byte{}, data...))
	t.unread = append(t.unread, data...)
	t.mu.Unlock()
	select {
	case t.avail <- struct{}{}:
	default:
	}
	return nil
}

// Detach moves the device to the unattached state.
func (t *Transport) Detach() error {
	t.state.Store(uint32(hal.StateUnattached))
	t.mu.Lock()
	t.detachN++
	t.mu.Unlock()
	return nil
}

// Host side

// SetState forces a device state change, e.g. to simulate suspend.
func (t *Transport) SetState(s hal.State) {
	t.state.Store(uint32(s))
}

// SetINReady controls whether the host accepts IN packets.
func (t *Transport) SetINReady(ready bool) {
	t.inReady.Store(ready)
}

// Post queues a control request and returns the channel its result is
// delivered on. The firmware answers it on a later task iteration.
func (t *Transport) Post(setup hal.SetupPacket, data []byte) <-chan ControlResult {
	p := &pendingSetup{
		setup: setup,
		data:  append([]byte{}, data...),
		reply: make(chan ControlResult, 1),
	}
	t.mu.Lock()
	t.setups = append(t.setups, p)
	t.mu.Unlock()
	return p.reply
}

// Control posts a request and waits for the firmware to answer it.
func (t *Transport) Control(ctx context.Context, setup hal.SetupPacket, data []byte) ([]byte, error) {
	select {
	case r := <-t.Post(setup, data):
		return r.Data, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetLineCoding issues SET_LINE_CODING.
func (t *Transport) SetLineCoding(ctx context.Context, lc cdc.LineCoding) error {
	var buf [cdc.LineCodingSize]byte
	lc.MarshalTo(buf[:])
	_, err := t.Control(ctx, SetLineCodingRequest(), buf[:])
	return err
}

// LineCoding issues GET_LINE_CODING.
func (t *Transport) LineCoding(ctx context.Context) (cdc.LineCoding, error) {
	var lc cdc.LineCoding
	data, err := t.Control(ctx, GetLineCodingRequest(), nil)
	if err != nil {
		return lc, err
	}
	if !cdc.ParseLineCoding(data, &lc) {
		return lc, pkg.ErrBufferTooSmall
	}
	return lc, nil
}

// SetControlLineState issues SET_CONTROL_LINE_STATE.
func (t *Transport) SetControlLineState(ctx context.Context, dtr, rts bool) error {
	_, err := t.Control(ctx, ControlLineStateRequest(dtr, rts), nil)
	return err
}

// Send queues data on the OUT endpoint split into bank-sized packets.
func (t *Transport) Send(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for len(data) > 0 {
		n := min(len(data), t.bankSize)
		t.out = append(t.out, append([]byte{}, data[:n]...))
		data = data[n:]
	}
}

// SendPacket queues a single OUT packet, which may be empty.
func (t *Transport) SendPacket(p []byte) {
	if len(p) > t.bankSize {
		p = p[:t.bankSize]
	}
	t.mu.Lock()
	t.out = append(t.out, append([]byte{}, p...))
	t.mu.Unlock()
}

// PendingOUT returns the number of OUT packets not yet released.
func (t *Transport) PendingOUT() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.out)
}

// Packets returns a copy of every IN packet committed so far.
func (t *Transport) Packets() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.in))
	for i, p := range t.in {
		out[i] = append([]byte{}, p...)
	}
	return out
}

// Received returns the concatenated IN payload not yet consumed and clears
// it together with the packet log.
func (t *Transport) Received() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.unread
	t.unread = nil
	t.in = nil
	return b
}

// Detaches returns how many times the firmware detached.
func (t *Transport) Detaches() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detachN
}

// read moves buffered IN payload into p, waiting up to timeout.
func (t *Transport) read(p []byte, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	for {
		t.mu.Lock()
		if len(t.unread) > 0 {
			n := copy(p, t.unread)
			t.unread = t.unread[n:]
			t.mu.Unlock()
			return n
		}
		t.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0
		}
		timer := time.NewTimer(remaining)
		select {
		case <-t.avail:
		case <-timer.C:
		}
		timer.Stop()
	}
}

var _ hal.Transport = (*Transport)(nil)
