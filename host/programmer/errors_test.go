package programmer

import (
	"errors"
	"strings"
	"testing"

	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/pkg/avr109"
)

func TestResponseErrorUnwrap(t *testing.T) {
	tests := []struct {
		name string
		got  byte
		want error
	}{
		{"unknown", avr109.RespUnknown, pkg.ErrUnknownCommand},
		{"garbage", 0x00, pkg.ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &ResponseError{Command: avr109.CmdExit, Got: tt.got, Want: avr109.RespOK}
			if !errors.Is(err, tt.want) {
				t.Errorf("errors.Is(%v, %v) = false", err, tt.want)
			}
			if !strings.Contains(err.Error(), "Exit") {
				t.Errorf("Error() = %q, want command name", err.Error())
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&SignatureMismatchError{Expected: [3]byte{0x1E, 0x95, 0x8A}, Actual: [3]byte{0x1E, 0x94, 0x89}},
			"expected 1E 95 8A, device has 1E 94 89"},
		{&VerifyError{Memory: avr109.MemoryFlash, Address: 0x100, Expected: 0x12, Actual: 0xFF},
			"flash verify failed at 0x0100"},
	}
	for _, tt := range tests {
		if !strings.Contains(tt.err.Error(), tt.want) {
			t.Errorf("Error() = %q, want substring %q", tt.err.Error(), tt.want)
		}
	}
}
