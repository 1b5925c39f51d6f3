package hal

import "fmt"

// State is the USB device state as seen by the firmware.
type State uint32

// Device states (USB 2.0 section 9.1).
const (
	StateUnattached State = iota // Not attached to a host
	StatePowered                 // Attached and powered
	StateDefault                 // Reset, using the default address
	StateAddressed               // Unique address assigned
	StateConfigured              // Configuration selected, endpoints usable
	StateSuspended               // Bus idle, device suspended
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StatePowered:
		return "powered"
	case StateDefault:
		return "default"
	case StateAddressed:
		return "addressed"
	case StateConfigured:
		return "configured"
	case StateSuspended:
		return "suspended"
	default:
		return fmt.Sprintf("State(%d)", uint32(s))
	}
}

// Active reports whether the device can make progress on endpoint I/O.
// Waits abandon their operation once the state is no longer active.
func (s State) Active() bool {
	return s != StateUnattached && s != StateSuspended
}

// Endpoint addresses of the CDC function.
const (
	EndpointNotify uint8 = 0x81 // interrupt IN, configured but unused
	EndpointOUT    uint8 = 0x02 // bulk OUT, host to device
	EndpointIN     uint8 = 0x83 // bulk IN, device to host
)

// DefaultBankSize is the bulk endpoint bank size of full-speed CDC.
const DefaultBankSize = 64

// ControlInterface is the interface number of the CDC control interface.
const ControlInterface = 0

// SetupPacket represents a USB SETUP packet.
type SetupPacket struct {
	RequestType uint8  // Request characteristics
	Request     uint8  // Specific request
	Value       uint16 // Request-specific value
	Index       uint16 // Request-specific index
	Length      uint16 // Number of bytes to transfer
}

// SetupPacketSize is the size of a USB SETUP packet in bytes.
const SetupPacketSize = 8

// ParseSetupPacket parses raw bytes into a SetupPacket.
// Returns false if data is too short.
func ParseSetupPacket(data []byte, out *SetupPacket) bool {
	if len(data) < SetupPacketSize {
		return false
	}
	out.RequestType = data[0]
	out.Request = data[1]
	out.Value = uint16(data[2]) | uint16(data[3])<<8
	out.Index = uint16(data[4]) | uint16(data[5])<<8
	out.Length = uint16(data[6]) | uint16(data[7])<<8
	return true
}

// MarshalTo writes the setup packet to buf.
// Returns the number of bytes written (8), or 0 if buf is too small.
func (s *SetupPacket) MarshalTo(buf []byte) int {
	if len(buf) < SetupPacketSize {
		return 0
	}
	buf[0] = s.RequestType
	buf[1] = s.Request
	buf[2] = byte(s.Value)
	buf[3] = byte(s.Value >> 8)
	buf[4] = byte(s.Index)
	buf[5] = byte(s.Index >> 8)
	buf[6] = byte(s.Length)
	buf[7] = byte(s.Length >> 8)
	return SetupPacketSize
}

// IsDeviceToHost reports whether the data stage flows to the host.
func (s *SetupPacket) IsDeviceToHost() bool {
	return s.RequestType&0x80 != 0
}

// Transport is the USB device controller as seen by the firmware core.
//
// Enumeration, descriptors and standard requests are handled below this
// interface. The core sees only class requests on the control endpoint and
// packet banks on the bulk endpoints.
//
// A bank is owned by the firmware between OUTReceived returning true and
// ReleaseOUT, and between INReady returning true and WriteIN. Only State is
// called from goroutines other than the task loop and must be safe for
// concurrent use.
type Transport interface {
	// State returns the current device state.
	State() State

	// PollSetup returns a pending class request without blocking. For
	// host-to-device requests the data stage is copied into data and its
	// length returned.
	PollSetup(out *SetupPacket, data []byte) (n int, ok bool)

	// WriteControl completes the pending request with an IN data stage.
	WriteControl(data []byte) error

	// AckControl completes the pending request with a status stage.
	AckControl() error

	// StallControl rejects the pending request.
	StallControl() error

	// BankSize returns the bank capacity of the given endpoint.
	BankSize(addr uint8) int

	// OUTReceived reports whether a host packet occupies the OUT bank.
	OUTReceived(addr uint8) bool

	// ReadOUT copies the packet in the OUT bank into buf and returns its
	// length. The bank remains owned by the firmware.
	ReadOUT(addr uint8, buf []byte) int

	// ReleaseOUT hands the OUT bank back to the host.
	ReleaseOUT(addr uint8)

	// INReady reports whether the IN bank can accept a packet.
	INReady(addr uint8) bool

	// WriteIN sends one packet. A zero-length data slice sends a ZLP.
	WriteIN(addr uint8, data []byte) error

	// Detach disconnects from the host.
	Detach() error
}
