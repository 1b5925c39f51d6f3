package device

import (
	"fmt"

	"github.com/ardnew/hoodloader/board"
	"github.com/ardnew/hoodloader/device/class/cdc"
	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/uart"
)

// Negotiator handles the CDC class requests. The line coding decides the
// channel mode: the sentinel baud rate selects the programmer, any other
// rate reprograms the UART for bridging.
type Negotiator struct {
	ch       *Channel
	uart     uart.Port
	reset    board.ResetLine
	sentinel uint32
}

// NewNegotiator creates a negotiator for ch. reset may be nil.
func NewNegotiator(ch *Channel, port uart.Port, reset board.ResetLine, sentinel uint32) *Negotiator {
	return &Negotiator{ch: ch, uart: port, reset: reset, sentinel: sentinel}
}

// uartConfig maps a CDC line coding onto the UART.
func uartConfig(lc cdc.LineCoding) uart.Config {
	c := uart.Config{
		Baud:     lc.DTERate,
		DataBits: lc.DataBits,
	}
	switch lc.ParityType {
	case cdc.ParityOdd:
		c.Parity = uart.ParityOdd
	case cdc.ParityEven:
		c.Parity = uart.ParityEven
	case cdc.ParityMark:
		c.Parity = uart.ParityMark
	case cdc.ParitySpace:
		c.Parity = uart.ParitySpace
	}
	switch lc.CharFormat {
	case cdc.StopBitsOnePointFive:
		c.StopBits = uart.StopBitsOnePointFive
	case cdc.StopBitsTwo:
		c.StopBits = uart.StopBitsTwo
	}
	return c
}

// SetLineEncoding stores lc and switches mode. The ring is cleared on every
// call so the bridge and programmer never share buffered bytes.
func (n *Negotiator) SetLineEncoding(lc cdc.LineCoding) {
	n.ch.coding = lc
	n.ch.dropPending()

	if lc.DTERate == n.sentinel {
		n.ch.setMode(ModeProgrammer)
	} else {
		n.ch.setMode(ModeBridge)

		c := uartConfig(lc)
		n.uart.HoldTx(true)
		if err := n.uart.Configure(c); err != nil {
			pkg.LogWarn(pkg.ComponentNegotiator, "uart configuration failed",
				"config", c.String(), "error", err)
		}
		n.uart.HoldTx(false)

		pkg.LogDebug(pkg.ComponentNegotiator, "uart configured",
			"config", c.String(),
			"ucsr1c", fmt.Sprintf("0x%02X", c.Frame()),
			"ubrr1", uart.Divisor(uart.DefaultClock, c.Baud))
	}

	n.ch.ring.Reset()
	pkg.LogInfo(pkg.ComponentNegotiator, "line coding set",
		"coding", lc.String(), "mode", n.ch.Mode().String())
}

// LineEncoding returns the stored line coding.
func (n *Negotiator) LineEncoding() cdc.LineCoding {
	return n.ch.coding
}

// SetControlLineState drives the target reset from DTR. The target is held
// in reset while DTR is asserted outside programmer mode.
func (n *Negotiator) SetControlLineState(lines uint16) {
	n.ch.lines = lines
	if n.reset == nil {
		return
	}

	dtr := lines&cdc.ControlLineDTR != 0
	var err error
	if n.ch.Mode() != ModeProgrammer && dtr {
		err = n.reset.Assert()
	} else {
		err = n.reset.Release()
	}
	if err != nil {
		pkg.LogWarn(pkg.ComponentNegotiator, "reset line failed", "dtr", dtr, "error", err)
	}
}

// HandleSetup services a class request addressed to an interface. The
// interface number is not checked. It returns false for anything it does not
// recognise; the caller stalls those.
func (n *Negotiator) HandleSetup(t hal.Transport, setup *hal.SetupPacket, data []byte) bool {
	switch setup.Request {
	case cdc.RequestGetLineCoding:
		if setup.RequestType != cdc.RequestTypeClassInterfaceIn {
			return false
		}
		var buf [cdc.LineCodingSize]byte
		lc := n.LineEncoding()
		lc.MarshalTo(buf[:])
		if err := t.WriteControl(buf[:]); err != nil {
			pkg.LogWarn(pkg.ComponentNegotiator, "GET_LINE_CODING reply failed", "error", err)
		}
		return true

	case cdc.RequestSetLineCoding:
		if setup.RequestType != cdc.RequestTypeClassInterfaceOut {
			return false
		}
		var lc cdc.LineCoding
		if !cdc.ParseLineCoding(data, &lc) {
			return false
		}
		n.SetLineEncoding(lc)
		if err := t.AckControl(); err != nil {
			pkg.LogWarn(pkg.ComponentNegotiator, "SET_LINE_CODING ack failed", "error", err)
		}
		return true

	case cdc.RequestSetControlLineState:
		if setup.RequestType != cdc.RequestTypeClassInterfaceOut {
			return false
		}
		n.SetControlLineState(setup.Value)
		if err := t.AckControl(); err != nil {
			pkg.LogWarn(pkg.ComponentNegotiator, "SET_CONTROL_LINE_STATE ack failed", "error", err)
		}
		return true
	}
	return false
}
