package nvm

import (
	"fmt"
	"strings"

	"github.com/ardnew/hoodloader/pkg"
)

// Part describes the memory geometry and identity of a USB AVR.
type Part struct {
	Name       string
	Signature  [3]byte // signature bytes 1..3 as stored in the part
	FlashSize  uint32
	PageSize   uint32 // flash page size in bytes (SPM_PAGESIZE)
	BootStart  uint32 // first byte of the bootloader section
	EEPROMSize uint32
}

// Pages returns the number of application pages below the boot section.
func (p Part) Pages() uint32 {
	return p.BootStart / p.PageSize
}

// PageStart returns the first byte address of the page containing addr.
func (p Part) PageStart(addr uint32) uint32 {
	return addr &^ (p.PageSize - 1)
}

// String returns the part name.
func (p Part) String() string {
	return p.Name
}

// Supported parts. Boot start assumes the 4 KiB boot section HoodLoader2
// is linked for.
var (
	ATmega8U2 = Part{
		Name:       "atmega8u2",
		Signature:  [3]byte{0x1E, 0x93, 0x89},
		FlashSize:  8 * 1024,
		PageSize:   64,
		BootStart:  0x1000,
		EEPROMSize: 512,
	}
	ATmega16U2 = Part{
		Name:       "atmega16u2",
		Signature:  [3]byte{0x1E, 0x94, 0x89},
		FlashSize:  16 * 1024,
		PageSize:   128,
		BootStart:  0x3000,
		EEPROMSize: 512,
	}
	ATmega32U2 = Part{
		Name:       "atmega32u2",
		Signature:  [3]byte{0x1E, 0x95, 0x8A},
		FlashSize:  32 * 1024,
		PageSize:   128,
		BootStart:  0x7000,
		EEPROMSize: 1024,
	}
)

// Parts lists the supported parts.
var Parts = []Part{ATmega8U2, ATmega16U2, ATmega32U2}

// LookupPart finds a part by name, ignoring case.
func LookupPart(name string) (Part, error) {
	for _, p := range Parts {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Part{}, fmt.Errorf("%w: %q", pkg.ErrUnknownPart, name)
}

// PartBySignature finds a part by its three signature bytes.
func PartBySignature(sig [3]byte) (Part, error) {
	for _, p := range Parts {
		if p.Signature == sig {
			return p, nil
		}
	}
	return Part{}, fmt.Errorf("%w: signature % X", pkg.ErrUnknownPart, sig[:])
}
