package nvm

// Fuse selects a fuse or lock byte.
type Fuse uint8

// Fuse bytes.
const (
	FuseLow Fuse = iota
	FuseHigh
	FuseExtended
	FuseLock
)

// String returns the fuse name.
func (f Fuse) String() string {
	switch f {
	case FuseLow:
		return "low"
	case FuseHigh:
		return "high"
	case FuseExtended:
		return "extended"
	case FuseLock:
		return "lock"
	default:
		return "unknown"
	}
}

// LockBitsWritable masks the boot lock bits (BLB0x, BLB1x) that self
// programming may clear. LB1/LB2 are only reachable from an external
// programmer.
const LockBitsWritable = 0x3C

// Store is the self-programming interface of the target's nonvolatile memory.
//
// Addresses are byte addresses. Page operations act on the page containing
// the address. Every method returns only after the hardware has completed
// the operation; there is no failure path.
type Store interface {
	// Part returns the memory geometry.
	Part() Part

	// ErasePage erases the flash page containing addr to 0xFF.
	ErasePage(addr uint32)

	// FillPage loads one little-endian word into the page buffer at the
	// offset of addr within its page.
	FillPage(addr uint32, word uint16)

	// WritePage programs the page buffer into the flash page containing addr
	// and resets the page buffer.
	WritePage(addr uint32)

	// EnableRWW makes the read-while-write section readable again after an
	// erase or write.
	EnableRWW()

	// ReadFlash reads one flash byte.
	ReadFlash(addr uint32) byte

	// ReadEEPROM reads one EEPROM byte.
	ReadEEPROM(addr uint16) byte

	// WriteEEPROM writes one EEPROM byte.
	WriteEEPROM(addr uint16, b byte)

	// SetLockBits programs the boot lock bits. Bits set in b are programmed
	// (cleared in the lock byte).
	SetLockBits(b byte)

	// ReadFuse reads a fuse or lock byte.
	ReadFuse(f Fuse) byte
}
