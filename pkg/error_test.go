package pkg

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsDistinct(t *testing.T) {
	all := []error{
		ErrDetached, ErrNotConfigured, ErrStall, ErrInvalidEndpoint, ErrBankBusy,
		ErrBufferTooSmall, ErrSetupPacketTooShort, ErrProtocol, ErrTimeout,
		ErrCancelled, ErrAlreadyRunning, ErrNotRunning, ErrInvalidParameter,
		ErrInvalidRequest, ErrDescriptorTooShort, ErrDescriptorTypeMismatch,
		ErrUnknownCommand, ErrUnsupported, ErrOutOfRange, ErrUnknownPart,
		ErrBadImage,
	}

	seen := make(map[string]bool, len(all))
	for i, a := range all {
		if a.Error() == "" {
			t.Errorf("error %d has empty message", i)
		}
		if seen[a.Error()] {
			t.Errorf("duplicate error message %q", a.Error())
		}
		seen[a.Error()] = true
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Errorf("errors.Is(%v, %v) = true, want false", a, b)
			}
		}
	}
}

func TestErrorsWrap(t *testing.T) {
	err := fmt.Errorf("read flash: %w", ErrDetached)
	if !errors.Is(err, ErrDetached) {
		t.Errorf("errors.Is(wrapped, ErrDetached) = false")
	}
}
