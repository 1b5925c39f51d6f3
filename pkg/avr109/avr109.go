// Package avr109 defines the byte values of the AVR109 serial programming
// protocol as spoken by LUFA-style CDC bootloaders. Both the device command
// processor and the host client use these constants.
package avr109

import "fmt"

// Command is a single AVR109 opcode byte.
type Command byte

// Commands.
const (
	CmdExit                     Command = 'E'
	CmdSetLED                   Command = 'x'
	CmdClearLED                 Command = 'y'
	CmdSelectDeviceType         Command = 'T'
	CmdEnterProgrammingMode     Command = 'P'
	CmdLeaveProgrammingMode     Command = 'L'
	CmdReadPartCode             Command = 't'
	CmdReadAutoAddressIncrement Command = 'a'
	CmdSetCurrentAddress        Command = 'A'
	CmdReadBootloaderInterface  Command = 'p'
	CmdReadBootloaderIdentifier Command = 'S'
	CmdReadBootloaderSWVersion  Command = 'V'
	CmdReadSignature            Command = 's'
	CmdEraseFlash               Command = 'e'
	CmdWriteLockbits            Command = 'l'
	CmdReadLockbits             Command = 'r'
	CmdReadLowFuses             Command = 'F'
	CmdReadHighFuses            Command = 'N'
	CmdReadExtendedFuses        Command = 'Q'
	CmdGetBlockWriteSupport     Command = 'b'
	CmdBlockWrite               Command = 'B'
	CmdBlockRead                Command = 'g'
	CmdFillFlashPageWordHigh    Command = 'C'
	CmdFillFlashPageWordLow     Command = 'c'
	CmdWriteFlashPage           Command = 'm'
	CmdReadFlashWord            Command = 'R'
	CmdWriteEEPROM              Command = 'D'
	CmdReadEEPROM               Command = 'd'
	CmdSync                     Command = 0x1B
)

// Response bytes.
const (
	RespOK      byte = '\r'
	RespUnknown byte = '?'
	RespYes     byte = 'Y'
	RespSerial  byte = 'S'
)

// MemoryType selects the target of a block command.
type MemoryType byte

// Memory types.
const (
	MemoryFlash  MemoryType = 'F'
	MemoryEEPROM MemoryType = 'E'
)

// Valid reports whether m is a memory type the block commands accept.
func (m MemoryType) Valid() bool {
	return m == MemoryFlash || m == MemoryEEPROM
}

// String returns a human-readable memory name.
func (m MemoryType) String() string {
	switch m {
	case MemoryFlash:
		return "flash"
	case MemoryEEPROM:
		return "eeprom"
	default:
		return fmt.Sprintf("memory(0x%02X)", byte(m))
	}
}

// IdentifierLength is the length of the bootloader identifier string.
const IdentifierLength = 7

// PartCode is the device code returned for ReadPartCode, followed by a
// terminating zero.
var PartCode = [2]byte{0x44, 0x00}

var commandNames = map[Command]string{
	CmdExit:                     "Exit",
	CmdSetLED:                   "SetLED",
	CmdClearLED:                 "ClearLED",
	CmdSelectDeviceType:         "SelectDeviceType",
	CmdEnterProgrammingMode:     "EnterProgrammingMode",
	CmdLeaveProgrammingMode:     "LeaveProgrammingMode",
	CmdReadPartCode:             "ReadPartCode",
	CmdReadAutoAddressIncrement: "ReadAutoAddressIncrement",
	CmdSetCurrentAddress:        "SetCurrentAddress",
	CmdReadBootloaderInterface:  "ReadBootloaderInterface",
	CmdReadBootloaderIdentifier: "ReadBootloaderIdentifier",
	CmdReadBootloaderSWVersion:  "ReadBootloaderSWVersion",
	CmdReadSignature:            "ReadSignature",
	CmdEraseFlash:               "EraseFLASH",
	CmdWriteLockbits:            "WriteLockbits",
	CmdReadLockbits:             "ReadLockbits",
	CmdReadLowFuses:             "ReadLowFuses",
	CmdReadHighFuses:            "ReadHighFuses",
	CmdReadExtendedFuses:        "ReadExtendedFuses",
	CmdGetBlockWriteSupport:     "GetBlockWriteSupport",
	CmdBlockWrite:               "BlockWrite",
	CmdBlockRead:                "BlockRead",
	CmdFillFlashPageWordHigh:    "FillFlashPageWordHigh",
	CmdFillFlashPageWordLow:     "FillFlashPageWordLow",
	CmdWriteFlashPage:           "WriteFlashPage",
	CmdReadFlashWord:            "ReadFLASHWord",
	CmdWriteEEPROM:              "WriteEEPROM",
	CmdReadEEPROM:               "ReadEEPROM",
	CmdSync:                     "Sync",
}

// String returns the command name, or its hex value if unknown.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(0x%02X)", byte(c))
}

// Known reports whether c is a defined AVR109 opcode.
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}

// WordAddress splits a byte address into the two bytes sent with
// SetCurrentAddress (word address, high byte first).
func WordAddress(byteAddr uint32) (hi, lo byte) {
	w := byteAddr >> 1
	return byte(w >> 8), byte(w)
}

// ByteAddress converts the SetCurrentAddress parameter bytes into the
// device-side byte address.
func ByteAddress(hi, lo byte) uint32 {
	return uint32(hi)<<9 | uint32(lo)<<1
}
