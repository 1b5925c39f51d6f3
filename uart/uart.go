package uart

import "fmt"

// Parity selects the parity mode of a frame.
type Parity uint8

// Parity modes.
const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

// String returns the single-letter parity name.
func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "N"
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	case ParityMark:
		return "M"
	case ParitySpace:
		return "S"
	default:
		return "?"
	}
}

// StopBits selects the number of stop bits of a frame.
type StopBits uint8

// Stop bit settings.
const (
	StopBitsOne StopBits = iota
	StopBitsOnePointFive
	StopBitsTwo
)

// String returns the stop bit count.
func (s StopBits) String() string {
	switch s {
	case StopBitsOne:
		return "1"
	case StopBitsOnePointFive:
		return "1.5"
	case StopBitsTwo:
		return "2"
	default:
		return "?"
	}
}

// Config is a UART frame and rate setting.
type Config struct {
	Baud     uint32
	DataBits uint8
	Parity   Parity
	StopBits StopBits
}

// String formats the config as "9600 8N1".
func (c Config) String() string {
	return fmt.Sprintf("%d %d%s%s", c.Baud, c.DataBits, c.Parity, c.StopBits)
}

// UCSR1C bits of the USART frame format register.
const (
	UCSZ10 byte = 1 << 1
	UCSZ11 byte = 1 << 2
	USBS1  byte = 1 << 3
	UPM10  byte = 1 << 4
	UPM11  byte = 1 << 5
)

// Frame returns the UCSR1C value for c. Settings the USART cannot express
// (mark/space parity, 1.5 stop bits, 5 data bits) fall back to the register
// default for that field.
func (c Config) Frame() byte {
	var r byte
	switch c.StopBits {
	case StopBitsTwo:
		r |= USBS1
	}
	switch c.Parity {
	case ParityOdd:
		r |= UPM11 | UPM10
	case ParityEven:
		r |= UPM11
	}
	switch c.DataBits {
	case 6:
		r |= UCSZ10
	case 7:
		r |= UCSZ11
	case 8:
		r |= UCSZ11 | UCSZ10
	}
	return r
}

// DefaultClock is the CPU clock of the USB AVRs in Hz.
const DefaultClock = 16000000

// Divisor returns the double-speed (U2X) UBRR value for baud at clock fcpu,
// rounded to nearest. A zero baud yields zero.
func Divisor(fcpu, baud uint32) uint16 {
	if baud == 0 {
		return 0
	}
	return uint16((fcpu/8+baud/2)/baud - 1)
}

// Port is a UART as seen by the bridge.
type Port interface {
	// Configure applies a new rate and frame format.
	Configure(c Config) error

	// HoldTx forces the TX line idle-high while reconfiguring.
	HoldTx(hold bool)

	// WriteByte transmits one byte.
	WriteByte(b byte) error

	// SetReceiver installs the callback invoked for every received byte.
	// The callback runs on the receive context and must not block.
	SetReceiver(fn func(b byte))

	// Close releases the port.
	Close() error
}
