package enum

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/pkg"
)

// Standard request codes.
const (
	RequestGetStatus        = 0x00
	RequestClearFeature     = 0x01
	RequestSetFeature       = 0x03
	RequestSetAddress       = 0x05
	RequestGetDescriptor    = 0x06
	RequestGetConfiguration = 0x08
	RequestSetConfiguration = 0x09
	RequestGetInterface     = 0x0A
	RequestSetInterface     = 0x0B
)

// Request recipients (bmRequestType bits 4..0).
const (
	RecipientDevice    = 0x00
	RecipientInterface = 0x01
	RecipientEndpoint  = 0x02
)

// FeatureEndpointHalt is the ENDPOINT_HALT feature selector.
const FeatureEndpointHalt = 0x00

// MaxDescriptorResponseSize bounds a GET_DESCRIPTOR data stage.
const MaxDescriptorResponseSize = 512

// Event is a device state change caused by a standard request.
type Event uint8

// Events.
const (
	EventNone Event = iota
	EventAddressed
	EventConfigured
	EventDeconfigured
)

// IsStandard reports whether setup is a standard request.
func IsStandard(setup *hal.SetupPacket) bool {
	return setup.RequestType&0x60 == 0
}

// Handler answers standard requests for a Function. Its methods are safe
// for concurrent use.
type Handler struct {
	fn *Function

	mu      sync.Mutex
	address uint8
	config  uint8
	halted  map[uint8]bool

	// The slice returned by Handle references this buffer.
	responseBuf [MaxDescriptorResponseSize]byte
}

// NewHandler creates a handler in the default state.
func NewHandler(fn *Function) *Handler {
	return &Handler{fn: fn, halted: make(map[uint8]bool)}
}

// Reset returns to the default state after a bus reset.
func (h *Handler) Reset() {
	h.mu.Lock()
	h.address = 0
	h.config = 0
	clear(h.halted)
	h.mu.Unlock()
}

// Address returns the assigned device address.
func (h *Handler) Address() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.address
}

// Configuration returns the selected configuration, or 0.
func (h *Handler) Configuration() uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.config
}

// Halted reports whether ENDPOINT_HALT is set on addr.
func (h *Handler) Halted(addr uint8) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.halted[addr]
}

// Handle processes a standard request. It returns the IN data stage (nil
// for a status-only request) and the state change the request causes.
// Requests the device must stall return an error wrapping
// pkg.ErrInvalidRequest.
func (h *Handler) Handle(setup *hal.SetupPacket) ([]byte, Event, error) {
	if !IsStandard(setup) {
		return nil, EventNone, pkg.ErrInvalidRequest
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch setup.RequestType & 0x1F {
	case RecipientDevice:
		return h.deviceRequest(setup)
	case RecipientInterface:
		data, err := h.interfaceRequest(setup)
		return data, EventNone, err
	case RecipientEndpoint:
		data, err := h.endpointRequest(setup)
		return data, EventNone, err
	default:
		return nil, EventNone, invalid(setup)
	}
}

func invalid(setup *hal.SetupPacket) error {
	return fmt.Errorf("%w: type 0x%02X request 0x%02X value 0x%04X",
		pkg.ErrInvalidRequest, setup.RequestType, setup.Request, setup.Value)
}

func (h *Handler) deviceRequest(setup *hal.SetupPacket) ([]byte, Event, error) {
	switch setup.Request {
	case RequestGetStatus:
		// Bus powered, no remote wakeup.
		return h.status(0), EventNone, nil

	case RequestSetAddress:
		h.address = uint8(setup.Value & 0x7F)
		if h.address == 0 {
			return nil, EventNone, nil
		}
		return nil, EventAddressed, nil

	case RequestGetDescriptor:
		data, err := h.descriptor(setup)
		return data, EventNone, err

	case RequestGetConfiguration:
		h.responseBuf[0] = h.config
		return h.responseBuf[:1], EventNone, nil

	case RequestSetConfiguration:
		switch v := uint8(setup.Value); v {
		case 0:
			h.config = 0
			return nil, EventDeconfigured, nil
		case ConfigurationValue:
			if h.address == 0 {
				return nil, EventNone, invalid(setup)
			}
			h.config = v
			clear(h.halted)
			return nil, EventConfigured, nil
		default:
			return nil, EventNone, invalid(setup)
		}

	default:
		return nil, EventNone, invalid(setup)
	}
}

func (h *Handler) descriptor(setup *hal.SetupPacket) ([]byte, error) {
	index := uint8(setup.Value)
	var n int

	switch uint8(setup.Value >> 8) {
	case DescriptorTypeDevice:
		n = h.fn.Device.MarshalTo(h.responseBuf[:])
	case DescriptorTypeConfiguration:
		if index != 0 {
			return nil, invalid(setup)
		}
		n = copy(h.responseBuf[:], h.fn.Configuration())
	case DescriptorTypeString:
		s := h.fn.StringDescriptor(index)
		if s == nil {
			return nil, invalid(setup)
		}
		n = copy(h.responseBuf[:], s)
	default:
		// Includes the device qualifier, which a full-speed device stalls.
		return nil, invalid(setup)
	}

	if n > int(setup.Length) {
		n = int(setup.Length)
	}
	return h.responseBuf[:n], nil
}

func (h *Handler) interfaceRequest(setup *hal.SetupPacket) ([]byte, error) {
	if h.config == 0 || setup.Index > hal.ControlInterface+1 {
		return nil, invalid(setup)
	}
	switch setup.Request {
	case RequestGetStatus:
		return h.status(0), nil
	case RequestGetInterface:
		h.responseBuf[0] = 0
		return h.responseBuf[:1], nil
	case RequestSetInterface:
		if setup.Value != 0 {
			return nil, invalid(setup)
		}
		return nil, nil
	default:
		return nil, invalid(setup)
	}
}

func (h *Handler) endpointRequest(setup *hal.SetupPacket) ([]byte, error) {
	addr := uint8(setup.Index)
	switch addr {
	case 0x00, 0x80:
	case hal.EndpointNotify, hal.EndpointOUT, hal.EndpointIN:
		if h.config == 0 {
			return nil, invalid(setup)
		}
	default:
		return nil, invalid(setup)
	}

	switch setup.Request {
	case RequestGetStatus:
		var s uint16
		if h.halted[addr] {
			s = 1
		}
		return h.status(s), nil
	case RequestClearFeature, RequestSetFeature:
		if setup.Value != FeatureEndpointHalt {
			return nil, invalid(setup)
		}
		h.halted[addr] = setup.Request == RequestSetFeature
		return nil, nil
	default:
		return nil, invalid(setup)
	}
}

func (h *Handler) status(s uint16) []byte {
	binary.LittleEndian.PutUint16(h.responseBuf[:2], s)
	return h.responseBuf[:2]
}

// GetDescriptorRequest builds a GET_DESCRIPTOR request.
func GetDescriptorRequest(typ, index uint8, length uint16) hal.SetupPacket {
	var langID uint16
	if typ == DescriptorTypeString && index != 0 {
		langID = LangIDUSEnglish
	}
	return hal.SetupPacket{
		RequestType: 0x80,
		Request:     RequestGetDescriptor,
		Value:       uint16(typ)<<8 | uint16(index),
		Index:       langID,
		Length:      length,
	}
}

// SetAddressRequest builds a SET_ADDRESS request.
func SetAddressRequest(addr uint8) hal.SetupPacket {
	return hal.SetupPacket{Request: RequestSetAddress, Value: uint16(addr & 0x7F)}
}

// SetConfigurationRequest builds a SET_CONFIGURATION request.
func SetConfigurationRequest(value uint8) hal.SetupPacket {
	return hal.SetupPacket{Request: RequestSetConfiguration, Value: uint16(value)}
}

// GetStatusRequest builds a GET_STATUS request for a recipient.
func GetStatusRequest(recipient uint8, index uint16) hal.SetupPacket {
	return hal.SetupPacket{
		RequestType: 0x80 | recipient,
		Request:     RequestGetStatus,
		Index:       index,
		Length:      2,
	}
}

// EndpointHaltRequest builds SET_FEATURE or CLEAR_FEATURE(ENDPOINT_HALT).
func EndpointHaltRequest(addr uint8, halt bool) hal.SetupPacket {
	req := uint8(RequestClearFeature)
	if halt {
		req = RequestSetFeature
	}
	return hal.SetupPacket{
		RequestType: RecipientEndpoint,
		Request:     req,
		Value:       FeatureEndpointHalt,
		Index:       uint16(addr),
	}
}
