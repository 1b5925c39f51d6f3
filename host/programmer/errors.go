package programmer

import (
	"fmt"

	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/pkg/avr109"
)

// ResponseError indicates the device answered a command with an unexpected
// byte. A '?' answer unwraps to pkg.ErrUnknownCommand.
type ResponseError struct {
	Command avr109.Command
	Got     byte
	Want    byte
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: unexpected response 0x%02X, want 0x%02X", e.Command, e.Got, e.Want)
}

// Unwrap maps the '?' response to pkg.ErrUnknownCommand.
func (e *ResponseError) Unwrap() error {
	if e.Got == avr109.RespUnknown {
		return pkg.ErrUnknownCommand
	}
	return pkg.ErrProtocol
}

// SignatureMismatchError indicates the device is not the expected part.
type SignatureMismatchError struct {
	Expected [3]byte
	Actual   [3]byte
}

func (e *SignatureMismatchError) Error() string {
	return fmt.Sprintf("signature mismatch: expected % X, device has % X",
		e.Expected[:], e.Actual[:])
}

// VerifyError indicates read-back data differs from what was written.
type VerifyError struct {
	Memory   avr109.MemoryType
	Address  uint32
	Expected byte
	Actual   byte
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("%s verify failed at 0x%04X: expected 0x%02X, read 0x%02X",
		e.Memory, e.Address, e.Expected, e.Actual)
}
