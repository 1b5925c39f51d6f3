package pkg

import "errors"

// Transport and session errors.
var (
	// ErrDetached indicates the device left the attached/active state while an
	// operation was waiting on an endpoint. The operation is abandoned without
	// a response.
	ErrDetached = errors.New("device detached")

	// ErrNotConfigured indicates the transport has not been configured by the host.
	ErrNotConfigured = errors.New("device not configured")

	// ErrStall indicates the device rejected a control request.
	ErrStall = errors.New("endpoint stalled")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrBankBusy indicates an endpoint bank is still owned by the other side.
	ErrBankBusy = errors.New("endpoint bank busy")

	// ErrBufferTooSmall indicates the provided buffer is too small.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrProtocol indicates a framing or protocol error.
	ErrProtocol = errors.New("protocol error")

	// ErrTimeout indicates an operation exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled indicates an operation was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrAlreadyRunning indicates the firmware or transport is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the firmware or transport is not running.
	ErrNotRunning = errors.New("not running")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrInvalidRequest indicates an invalid or unsupported standard request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrDescriptorTooShort indicates descriptor data is shorter than its
	// fixed size.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates descriptor data of the wrong type.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")
)

// Programming errors.
var (
	// ErrUnknownCommand indicates the programmer answered '?' to a command.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrUnsupported indicates the programmer lacks a required capability.
	ErrUnsupported = errors.New("not supported")

	// ErrOutOfRange indicates an address or length outside the memory region.
	ErrOutOfRange = errors.New("address out of range")

	// ErrUnknownPart indicates an unrecognized part name or signature.
	ErrUnknownPart = errors.New("unknown part")

	// ErrBadImage indicates a malformed firmware image.
	ErrBadImage = errors.New("malformed image")
)
