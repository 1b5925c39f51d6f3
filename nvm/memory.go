package nvm

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/ardnew/hoodloader/pkg"
)

// Region selects flash or EEPROM for snapshot and restore.
type Region uint8

// Regions.
const (
	RegionFlash Region = iota
	RegionEEPROM
)

// String returns the region name.
func (r Region) String() string {
	if r == RegionEEPROM {
		return "eeprom"
	}
	return "flash"
}

// Default fuse and lock values of a HoodLoader2 16u2.
const (
	DefaultLowFuse      = 0xEF
	DefaultHighFuse     = 0xD8
	DefaultExtendedFuse = 0xF4
	DefaultLockBits     = 0xFF
)

// Memory is an in-memory [Store] that behaves like AVR self-programming:
//
//   - erased cells read 0xFF and programming can only clear bits
//   - the page buffer starts at 0xFF and is reset after each page write
//   - the application (RWW) section reads 0xFF after an erase or write until
//     EnableRWW is called
//   - the boot section cannot be erased or written
type Memory struct {
	mu sync.Mutex

	part   Part
	flash  []byte
	eeprom []byte
	buffer []byte
	fuses  [4]byte

	rwwBusy bool
	delay   time.Duration
}

// Option configures a Memory.
type Option func(*Memory)

// WithPageDelay makes page erase and page write block for d, modelling the
// SPM busy time (about 4 ms on real parts).
func WithPageDelay(d time.Duration) Option {
	return func(m *Memory) {
		m.delay = d
	}
}

// WithFuses sets the low, high and extended fuse bytes.
func WithFuses(low, high, ext byte) Option {
	return func(m *Memory) {
		m.fuses[FuseLow] = low
		m.fuses[FuseHigh] = high
		m.fuses[FuseExtended] = ext
	}
}

// WithLockBits sets the initial lock byte.
func WithLockBits(b byte) Option {
	return func(m *Memory) {
		m.fuses[FuseLock] = b
	}
}

// NewMemory creates an erased memory for part.
func NewMemory(part Part, opts ...Option) *Memory {
	m := &Memory{
		part:   part,
		flash:  bytes.Repeat([]byte{0xFF}, int(part.FlashSize)),
		eeprom: bytes.Repeat([]byte{0xFF}, int(part.EEPROMSize)),
		buffer: bytes.Repeat([]byte{0xFF}, int(part.PageSize)),
		fuses:  [4]byte{DefaultLowFuse, DefaultHighFuse, DefaultExtendedFuse, DefaultLockBits},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Part returns the memory geometry.
func (m *Memory) Part() Part {
	return m.part
}

func (m *Memory) inBoot(addr uint32) bool {
	return addr >= m.part.BootStart
}

func (m *Memory) busy() {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
}

// ErasePage erases the page containing addr.
func (m *Memory) ErasePage(addr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.part.PageStart(addr)
	if m.inBoot(start) || start >= m.part.FlashSize {
		pkg.LogWarn(pkg.ComponentStore, "page erase outside application section ignored",
			"addr", fmt.Sprintf("0x%04X", start))
		return
	}
	for i := start; i < start+m.part.PageSize; i++ {
		m.flash[i] = 0xFF
	}
	m.rwwBusy = true
	m.busy()
	pkg.LogDebug(pkg.ComponentStore, "page erased", "addr", fmt.Sprintf("0x%04X", start))
}

// FillPage loads a word into the page buffer.
func (m *Memory) FillPage(addr uint32, word uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()

	off := (addr % m.part.PageSize) &^ 1
	m.buffer[off] = byte(word)
	m.buffer[off+1] = byte(word >> 8)
}

// WritePage programs the page buffer into the page containing addr.
func (m *Memory) WritePage(addr uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.part.PageStart(addr)
	if m.inBoot(start) || start >= m.part.FlashSize {
		pkg.LogWarn(pkg.ComponentStore, "page write outside application section ignored",
			"addr", fmt.Sprintf("0x%04X", start))
		m.resetBuffer()
		return
	}
	for i, b := range m.buffer {
		m.flash[start+uint32(i)] &= b
	}
	m.resetBuffer()
	m.rwwBusy = true
	m.busy()
	pkg.LogDebug(pkg.ComponentStore, "page written", "addr", fmt.Sprintf("0x%04X", start))
}

func (m *Memory) resetBuffer() {
	for i := range m.buffer {
		m.buffer[i] = 0xFF
	}
}

// EnableRWW re-enables reads from the application section.
func (m *Memory) EnableRWW() {
	m.mu.Lock()
	m.rwwBusy = false
	m.mu.Unlock()
}

// ReadFlash reads one flash byte. Addresses wrap at the flash size, as the
// Z pointer does.
func (m *Memory) ReadFlash(addr uint32) byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr %= m.part.FlashSize
	if m.rwwBusy && !m.inBoot(addr) {
		return 0xFF
	}
	return m.flash[addr]
}

// ReadEEPROM reads one EEPROM byte. Addresses wrap at the EEPROM size.
func (m *Memory) ReadEEPROM(addr uint16) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.eeprom[uint32(addr)%m.part.EEPROMSize]
}

// WriteEEPROM writes one EEPROM byte. Addresses wrap at the EEPROM size.
func (m *Memory) WriteEEPROM(addr uint16, b byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eeprom[uint32(addr)%m.part.EEPROMSize] = b
}

// SetLockBits programs the writable boot lock bits set in b.
func (m *Memory) SetLockBits(b byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fuses[FuseLock] &^= b & LockBitsWritable
	pkg.LogInfo(pkg.ComponentStore, "lock bits programmed",
		"lock", fmt.Sprintf("0x%02X", m.fuses[FuseLock]))
}

// ReadFuse reads a fuse or lock byte.
func (m *Memory) ReadFuse(f Fuse) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(f) >= len(m.fuses) {
		return 0xFF
	}
	return m.fuses[f]
}

// Snapshot returns a copy of a region's contents. The flash snapshot
// ignores the RWW state.
func (m *Memory) Snapshot(r Region) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == RegionEEPROM {
		return append([]byte{}, m.eeprom...)
	}
	return append([]byte{}, m.flash...)
}

// Restore overwrites the start of a region with data. The remainder keeps
// its contents.
func (m *Memory) Restore(r Region, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dst := m.flash
	if r == RegionEEPROM {
		dst = m.eeprom
	}
	if len(data) > len(dst) {
		return fmt.Errorf("%w: %d bytes exceed %s size %d",
			pkg.ErrOutOfRange, len(data), r, len(dst))
	}
	copy(dst, data)
	return nil
}

var _ Store = (*Memory)(nil)
