package device

import (
	"sync/atomic"

	"github.com/ardnew/hoodloader/board"
	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/uart"
)

// Bridge moves bytes between the bulk endpoints and the UART while the
// channel is in bridge mode.
type Bridge struct {
	ch      *Channel
	t       hal.Transport
	uart    uart.Port
	tx, rx  *board.Pulse
	buf     []byte
	dropped atomic.Uint64
}

// NewBridge creates a bridge. tx pulses when UART bytes go to the host, rx
// when host bytes go to the UART.
func NewBridge(ch *Channel, t hal.Transport, port uart.Port, tx, rx *board.Pulse) *Bridge {
	return &Bridge{
		ch:   ch,
		t:    t,
		uart: port,
		tx:   tx,
		rx:   rx,
		buf:  make([]byte, t.BankSize(hal.EndpointOUT)),
	}
}

// Produce is the UART receive callback. Bytes are buffered only in bridge
// mode on a configured device; a full ring drops them.
func (b *Bridge) Produce(v byte) {
	if b.ch.Mode() != ModeBridge || b.t.State() != hal.StateConfigured {
		return
	}
	if !b.ch.ring.Produce(v) {
		b.dropped.Add(1)
	}
}

// Dropped returns how many received bytes were lost to a full ring.
func (b *Bridge) Dropped() uint64 {
	return b.dropped.Load()
}

// Forward writes the packet in the OUT bank to the UART and releases the
// bank. It reports whether a packet was present.
func (b *Bridge) Forward() bool {
	if !b.t.OUTReceived(hal.EndpointOUT) {
		return false
	}
	n := b.t.ReadOUT(hal.EndpointOUT, b.buf)
	if n > 0 {
		b.rx.Trigger()
	}
	for _, v := range b.buf[:n] {
		if err := b.uart.WriteByte(v); err != nil {
			pkg.LogWarn(pkg.ComponentBridge, "uart write failed", "error", err)
			break
		}
	}
	b.t.ReleaseOUT(hal.EndpointOUT)
	return true
}

// Drain sends the bytes buffered at entry to the host and ends the transfer.
// An empty ring leaves the endpoint untouched.
func (b *Bridge) Drain(in *inStream) (int, error) {
	count := b.ch.ring.Count()
	if count == 0 {
		return 0, nil
	}
	b.tx.Trigger()

	for i := 0; i < count; i++ {
		v, ok := b.ch.ring.Pop()
		if !ok {
			// The ring was reset by a line coding change.
			break
		}
		if err := in.WriteByte(v); err != nil {
			in.reset()
			return i, err
		}
	}
	if err := in.flush(); err != nil {
		in.reset()
		return count, err
	}
	return count, nil
}
