package cdc

import "fmt"

// CDC Request codes.
const (
	RequestSendEncapsulatedCommand = 0x00
	RequestGetEncapsulatedResponse = 0x01
	RequestSetLineCoding           = 0x20
	RequestGetLineCoding           = 0x21
	RequestSetControlLineState     = 0x22
	RequestSendBreak               = 0x23
)

// bmRequestType values for class requests directed at the control interface.
const (
	RequestTypeClassInterfaceOut = 0x21 // host to device
	RequestTypeClassInterfaceIn  = 0xA1 // device to host
)

// Control line state bits (for SET_CONTROL_LINE_STATE).
const (
	ControlLineDTR = 1 << 0 // Data Terminal Ready
	ControlLineRTS = 1 << 1 // Request To Send
)

// StopBits is the bCharFormat field of a line coding.
type StopBits uint8

// Stop bit values.
const (
	StopBitsOne          StopBits = 0
	StopBitsOnePointFive StopBits = 1
	StopBitsTwo          StopBits = 2
)

// String returns the conventional notation for the stop bit count.
func (s StopBits) String() string {
	switch s {
	case StopBitsOne:
		return "1"
	case StopBitsOnePointFive:
		return "1.5"
	case StopBitsTwo:
		return "2"
	default:
		return fmt.Sprintf("StopBits(%d)", uint8(s))
	}
}

// Parity is the bParityType field of a line coding.
type Parity uint8

// Parity values.
const (
	ParityNone  Parity = 0
	ParityOdd   Parity = 1
	ParityEven  Parity = 2
	ParityMark  Parity = 3
	ParitySpace Parity = 4
)

// String returns the single-letter parity notation (N, O, E, M, S).
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
		return fmt.Sprintf("Parity(%d)", uint8(p))
	}
}

// LineCoding represents the serial line configuration.
type LineCoding struct {
	DTERate    uint32   // Data terminal rate (baud rate)
	CharFormat StopBits // Stop bits
	ParityType Parity   // Parity
	DataBits   uint8    // Data bits: 5, 6, 7, 8, or 16
}

// LineCodingSize is the size of LineCoding in bytes.
const LineCodingSize = 7

// InitialLineCoding is reported until the host sets a line coding. The rate
// is zero so that neither mode's baud rate is implied.
var InitialLineCoding = LineCoding{
	DTERate:    0,
	CharFormat: StopBitsOne,
	ParityType: ParityNone,
	DataBits:   8,
}

// MarshalTo writes the LineCoding to buf.
// Returns the number of bytes written, or 0 if buf is too small.
func (lc *LineCoding) MarshalTo(buf []byte) int {
	if len(buf) < LineCodingSize {
		return 0
	}
	buf[0] = byte(lc.DTERate)
	buf[1] = byte(lc.DTERate >> 8)
	buf[2] = byte(lc.DTERate >> 16)
	buf[3] = byte(lc.DTERate >> 24)
	buf[4] = byte(lc.CharFormat)
	buf[5] = byte(lc.ParityType)
	buf[6] = lc.DataBits
	return LineCodingSize
}

// ParseLineCoding parses LineCoding from data.
// Returns false if data is too short.
func ParseLineCoding(data []byte, out *LineCoding) bool {
	if len(data) < LineCodingSize {
		return false
	}
	out.DTERate = uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	out.CharFormat = StopBits(data[4])
	out.ParityType = Parity(data[5])
	out.DataBits = data[6]
	return true
}

// String formats the line coding as e.g. "115200 8N1".
func (lc LineCoding) String() string {
	return fmt.Sprintf("%d %d%s%s", lc.DTERate, lc.DataBits, lc.ParityType, lc.CharFormat)
}
