package device

import (
	"sync/atomic"

	"github.com/ardnew/hoodloader/device/class/cdc"
)

// Mode is the role of the virtual serial channel.
type Mode uint32

// Modes.
const (
	ModeBridge     Mode = iota // bytes pass between USB and the UART
	ModeProgrammer             // bytes are AVR109 commands
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeProgrammer {
		return "programmer"
	}
	return "bridge"
}

// Channel is the state of the single virtual serial channel.
//
// The mode is read by the UART receive path and is therefore atomic. The
// line coding and address counter belong to the task loop.
type Channel struct {
	ring    *Ring
	mode    atomic.Uint32
	coding  cdc.LineCoding
	lines   uint16
	address uint32

	// Even-address flash byte cached by 'C' until its 'c' arrives.
	pending    byte
	hasPending bool
}

// NewChannel creates a channel in bridge mode with the initial line coding.
func NewChannel(ringCapacity int) *Channel {
	return &Channel{
		ring:   NewRing(ringCapacity),
		coding: cdc.InitialLineCoding,
	}
}

// Ring returns the UART-to-USB ring.
func (c *Channel) Ring() *Ring {
	return c.ring
}

// Mode returns the current mode.
func (c *Channel) Mode() Mode {
	return Mode(c.mode.Load())
}

func (c *Channel) setMode(m Mode) {
	c.mode.Store(uint32(m))
}

// LineCoding returns the last line coding set by the host.
func (c *Channel) LineCoding() cdc.LineCoding {
	return c.coding
}

// ControlLines returns the last SET_CONTROL_LINE_STATE value.
func (c *Channel) ControlLines() uint16 {
	return c.lines
}

// Address returns the AVR109 byte address counter.
func (c *Channel) Address() uint32 {
	return c.address
}

// SetAddress sets the byte address counter and drops a cached flash byte.
func (c *Channel) SetAddress(addr uint32) {
	c.address = addr
	c.dropPending()
}

// advance moves the address counter to the next word.
func (c *Channel) advance() {
	c.address += 2
}

func (c *Channel) cachePending(b byte) {
	c.pending, c.hasPending = b, true
}

// takePending returns the cached even-address byte, or 0xFF if none.
func (c *Channel) takePending() uint16 {
	if !c.hasPending {
		return 0xFF
	}
	c.hasPending = false
	return uint16(c.pending)
}

func (c *Channel) dropPending() {
	c.hasPending = false
}
