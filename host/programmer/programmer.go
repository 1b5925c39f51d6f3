package programmer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ardnew/hoodloader/nvm"
	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/pkg/avr109"
)

// Programmer drives an AVR109 bootloader over a byte stream.
//
// Each command is written with a single Write and its response is read
// before the next command is sent; the device executes one command per
// USB packet and discards whatever follows it in the same packet.
//
// Programmer is safe for concurrent use; commands are serialised.
type Programmer struct {
	rw     io.ReadWriter
	config Config

	mu        sync.Mutex
	blockSize int // 0 until queried, -1 if unsupported
}

// Version is the bootloader software version.
type Version struct {
	Major, Minor uint8
}

// String returns "major.minor".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Fuses holds the fuse and lock bytes.
type Fuses struct {
	Low, High, Extended, Lock byte
}

// DeviceInfo is the identity reported by the bootloader.
type DeviceInfo struct {
	Identifier string
	Version    Version
	Signature  [3]byte
	Part       *nvm.Part // nil if the signature is not a known part
	BlockSize  int       // 0 if block mode is unsupported
	Fuses      Fuses     // 0x3F ('?') bytes if fuse reads are disabled
}

// New creates a Programmer for rw.
//
// Reads must follow serial-port semantics: a read that times out returns
// 0 and a nil error.
func New(rw io.ReadWriter, opts ...Option) *Programmer {
	if rw == nil {
		panic("programmer: nil device")
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Programmer{rw: rw, config: cfg}
}

// Sync sends ESC, which the bootloader ignores, to terminate any partial
// command left by a previous session.
func (p *Programmer) Sync(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.send(ctx, avr109.CmdSync)
}

// Init runs the handshake avrdude performs: interface type, address
// auto-increment, block support and entering programming mode.
func (p *Programmer) Init(ctx context.Context) error {
	b, err := p.query1(ctx, avr109.CmdReadBootloaderInterface)
	if err != nil {
		return err
	}
	if b != avr109.RespSerial {
		return &ResponseError{Command: avr109.CmdReadBootloaderInterface, Got: b, Want: avr109.RespSerial}
	}
	if b, err = p.query1(ctx, avr109.CmdReadAutoAddressIncrement); err != nil {
		return err
	}
	if b != avr109.RespYes {
		return &ResponseError{Command: avr109.CmdReadAutoAddressIncrement, Got: b, Want: avr109.RespYes}
	}
	if _, err := p.BlockSupport(ctx); err != nil && !errors.Is(err, pkg.ErrUnsupported) {
		return err
	}
	return p.ok(ctx, avr109.CmdEnterProgrammingMode)
}

// Identify reads the seven-character bootloader identifier.
func (p *Programmer) Identify(ctx context.Context) (string, error) {
	var id [avr109.IdentifierLength]byte
	if err := p.query(ctx, avr109.CmdReadBootloaderIdentifier, nil, id[:]); err != nil {
		return "", err
	}
	return string(id[:]), nil
}

// Version reads the bootloader software version.
func (p *Programmer) Version(ctx context.Context) (Version, error) {
	var v [2]byte
	if err := p.query(ctx, avr109.CmdReadBootloaderSWVersion, nil, v[:]); err != nil {
		return Version{}, err
	}
	return Version{Major: v[0] - '0', Minor: v[1] - '0'}, nil
}

// Signature reads the three signature bytes in part order.
func (p *Programmer) Signature(ctx context.Context) ([3]byte, error) {
	var r [3]byte
	if err := p.query(ctx, avr109.CmdReadSignature, nil, r[:]); err != nil {
		return r, err
	}
	return [3]byte{r[2], r[1], r[0]}, nil
}

// PartCodes reads the supported device codes.
func (p *Programmer) PartCodes(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.send(ctx, avr109.CmdReadPartCode); err != nil {
		return nil, err
	}
	var codes []byte
	var b [1]byte
	for {
		if err := p.read(ctx, avr109.CmdReadPartCode, b[:]); err != nil {
			return nil, err
		}
		if b[0] == 0 {
			return codes, nil
		}
		codes = append(codes, b[0])
	}
}

// SelectDeviceType selects a device code returned by PartCodes.
func (p *Programmer) SelectDeviceType(ctx context.Context, code byte) error {
	return p.ok(ctx, avr109.CmdSelectDeviceType, code)
}

// SetLED drives the programmer LED.
func (p *Programmer) SetLED(ctx context.Context, on bool) error {
	cmd := avr109.CmdClearLED
	if on {
		cmd = avr109.CmdSetLED
	}
	return p.ok(ctx, cmd, 0)
}

// Leave leaves programming mode.
func (p *Programmer) Leave(ctx context.Context) error {
	return p.ok(ctx, avr109.CmdLeaveProgrammingMode)
}

// BlockSupport returns the block size, or pkg.ErrUnsupported when the
// bootloader has no block commands. The result is cached.
func (p *Programmer) BlockSupport(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.blockSupport(ctx)
}

func (p *Programmer) blockSupport(ctx context.Context) (int, error) {
	switch {
	case p.blockSize > 0:
		return p.blockSize, nil
	case p.blockSize < 0:
		return 0, pkg.ErrUnsupported
	}

	if err := p.send(ctx, avr109.CmdGetBlockWriteSupport); err != nil {
		return 0, err
	}
	var r [3]byte
	if err := p.read(ctx, avr109.CmdGetBlockWriteSupport, r[:1]); err != nil {
		return 0, err
	}
	if r[0] == avr109.RespUnknown {
		p.blockSize = -1
		return 0, pkg.ErrUnsupported
	}
	if r[0] != avr109.RespYes {
		return 0, &ResponseError{Command: avr109.CmdGetBlockWriteSupport, Got: r[0], Want: avr109.RespYes}
	}
	if err := p.read(ctx, avr109.CmdGetBlockWriteSupport, r[1:]); err != nil {
		return 0, err
	}
	p.blockSize = int(r[1])<<8 | int(r[2])
	if p.blockSize == 0 {
		p.blockSize = -1
		return 0, pkg.ErrUnsupported
	}
	p.logDebug("block support", "size", p.blockSize)
	return p.blockSize, nil
}

// SetAddress sets the address counter. Flash is addressed in words,
// EEPROM in bytes.
func (p *Programmer) SetAddress(ctx context.Context, addr uint16) error {
	return p.ok(ctx, avr109.CmdSetCurrentAddress, byte(addr>>8), byte(addr))
}

// ChipErase erases the application section.
func (p *Programmer) ChipErase(ctx context.Context) error {
	start := time.Now()
	p.reportProgress(Progress{Phase: PhaseErasing})
	if err := p.ok(ctx, avr109.CmdEraseFlash); err != nil {
		return err
	}
	p.reportProgress(Progress{Phase: PhaseErasing, Percentage: 100, Elapsed: time.Since(start)})
	p.logInfo("chip erased")
	return nil
}

// ReadFuses reads the low, high and extended fuses and the lock byte.
func (p *Programmer) ReadFuses(ctx context.Context) (Fuses, error) {
	var f Fuses
	for _, r := range []struct {
		cmd avr109.Command
		dst *byte
	}{
		{avr109.CmdReadLowFuses, &f.Low},
		{avr109.CmdReadHighFuses, &f.High},
		{avr109.CmdReadExtendedFuses, &f.Extended},
		{avr109.CmdReadLockbits, &f.Lock},
	} {
		b, err := p.query1(ctx, r.cmd)
		if err != nil {
			return f, err
		}
		*r.dst = b
	}
	return f, nil
}

// WriteLockBits programs the boot lock bits set in b.
func (p *Programmer) WriteLockBits(ctx context.Context, b byte) error {
	return p.ok(ctx, avr109.CmdWriteLockbits, b)
}

// Exit ends the session. The device detaches and restarts the application.
func (p *Programmer) Exit(ctx context.Context) error {
	if err := p.ok(ctx, avr109.CmdExit); err != nil {
		return err
	}
	p.logInfo("session ended")
	return nil
}

// Info collects the identity of the bootloader.
func (p *Programmer) Info(ctx context.Context) (*DeviceInfo, error) {
	var info DeviceInfo
	var err error
	if info.Identifier, err = p.Identify(ctx); err != nil {
		return nil, err
	}
	if info.Version, err = p.Version(ctx); err != nil {
		return nil, err
	}
	if info.Signature, err = p.Signature(ctx); err != nil {
		return nil, err
	}
	if part, err := nvm.PartBySignature(info.Signature); err == nil {
		info.Part = &part
	}
	if info.BlockSize, err = p.BlockSupport(ctx); err != nil && !errors.Is(err, pkg.ErrUnsupported) {
		return nil, err
	}
	if info.Fuses, err = p.ReadFuses(ctx); err != nil {
		return nil, err
	}
	return &info, nil
}

// Program writes image to flash from address 0, optionally erasing first
// and verifying afterwards.
func (p *Programmer) Program(ctx context.Context, image []byte) error {
	if p.config.Signature != nil {
		sig, err := p.Signature(ctx)
		if err != nil {
			return err
		}
		if sig != *p.config.Signature {
			return &SignatureMismatchError{Expected: *p.config.Signature, Actual: sig}
		}
	}
	if _, err := p.BlockSupport(ctx); err != nil {
		return fmt.Errorf("program: %w", err)
	}
	if p.config.Erase {
		if err := p.ChipErase(ctx); err != nil {
			return err
		}
	}
	if err := p.WriteFlash(ctx, 0, image); err != nil {
		return err
	}
	if p.config.Verify {
		if err := p.verify(ctx, avr109.MemoryFlash, 0, image); err != nil {
			return err
		}
	}
	p.reportProgress(Progress{Phase: PhaseComplete, Done: len(image), Total: len(image), Percentage: 100})
	p.logInfo("flash programmed", "bytes", len(image), "verified", p.config.Verify)
	return nil
}

// Verify compares memory starting at addr with data.
func (p *Programmer) Verify(ctx context.Context, mem avr109.MemoryType, addr uint32, data []byte) error {
	return p.verify(ctx, mem, addr, data)
}

func (p *Programmer) verify(ctx context.Context, mem avr109.MemoryType, addr uint32, data []byte) error {
	got, err := p.readMemory(ctx, mem, addr, len(data), PhaseVerifying)
	if err != nil {
		return err
	}
	for i := range data {
		if got[i] != data[i] {
			return &VerifyError{Memory: mem, Address: addr + uint32(i), Expected: data[i], Actual: got[i]}
		}
	}
	return nil
}

// WriteFlash writes data starting at the page-aligned byte address addr.
// A short final page is padded with 0xFF.
func (p *Programmer) WriteFlash(ctx context.Context, addr uint32, data []byte) error {
	return p.writeMemory(ctx, avr109.MemoryFlash, addr, data)
}

// ReadFlash reads n bytes starting at byte address addr.
func (p *Programmer) ReadFlash(ctx context.Context, addr uint32, n int) ([]byte, error) {
	return p.readMemory(ctx, avr109.MemoryFlash, addr, n, PhaseReading)
}

// WriteEEPROM writes data starting at addr. Bootloaders without block
// support are written one byte at a time.
func (p *Programmer) WriteEEPROM(ctx context.Context, addr uint16, data []byte) error {
	return p.writeMemory(ctx, avr109.MemoryEEPROM, uint32(addr), data)
}

// ReadEEPROM reads n bytes starting at addr.
func (p *Programmer) ReadEEPROM(ctx context.Context, addr uint16, n int) ([]byte, error) {
	return p.readMemory(ctx, avr109.MemoryEEPROM, uint32(addr), n, PhaseReading)
}

// ReadFlashWord reads the word at byte address addr with the single-word
// command, which does not re-enable the application section.
func (p *Programmer) ReadFlashWord(ctx context.Context, addr uint32) (uint16, error) {
	if err := p.SetAddress(ctx, uint16(addr>>1)); err != nil {
		return 0, err
	}
	var r [2]byte
	if err := p.query(ctx, avr109.CmdReadFlashWord, nil, r[:]); err != nil {
		return 0, err
	}
	return uint16(r[0])<<8 | uint16(r[1]), nil
}

// counterAddress converts a byte address to the address counter value.
func counterAddress(mem avr109.MemoryType, addr uint32) uint16 {
	if mem == avr109.MemoryEEPROM {
		return uint16(addr)
	}
	return uint16(addr >> 1)
}

func (p *Programmer) writeMemory(ctx context.Context, mem avr109.MemoryType, addr uint32, data []byte) error {
	size, err := p.BlockSupport(ctx)
	if errors.Is(err, pkg.ErrUnsupported) && mem == avr109.MemoryEEPROM {
		return p.writeEEPROMBytes(ctx, uint16(addr), data)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", mem, err)
	}
	if mem == avr109.MemoryFlash && addr%uint32(size) != 0 {
		return fmt.Errorf("%w: flash address 0x%04X is not page aligned", pkg.ErrInvalidParameter, addr)
	}

	start := time.Now()
	if err := p.SetAddress(ctx, counterAddress(mem, addr)); err != nil {
		return err
	}
	frame := make([]byte, 4+size)
	for off := 0; off < len(data); off += size {
		chunk := data[off:min(off+size, len(data))]
		n := len(chunk)
		if mem == avr109.MemoryFlash && n < size {
			n = size
		}
		frame[0] = byte(avr109.CmdBlockWrite)
		frame[1], frame[2] = byte(n>>8), byte(n)
		frame[3] = byte(mem)
		copy(frame[4:], chunk)
		for i := 4 + len(chunk); i < 4+n; i++ {
			frame[i] = 0xFF
		}
		if err := p.okFrame(ctx, avr109.CmdBlockWrite, frame[:4+n]); err != nil {
			return fmt.Errorf("write %s at 0x%04X: %w", mem, addr+uint32(off), err)
		}
		p.progress(PhaseWriting, off+len(chunk), len(data), start)
	}
	p.logDebug("memory written", "memory", mem.String(), "address", addr, "bytes", len(data))
	return nil
}

func (p *Programmer) writeEEPROMBytes(ctx context.Context, addr uint16, data []byte) error {
	start := time.Now()
	if err := p.SetAddress(ctx, addr); err != nil {
		return err
	}
	for i, b := range data {
		if err := p.ok(ctx, avr109.CmdWriteEEPROM, b); err != nil {
			return fmt.Errorf("write eeprom at 0x%04X: %w", int(addr)+i, err)
		}
		p.progress(PhaseWriting, i+1, len(data), start)
	}
	return nil
}

func (p *Programmer) readMemory(ctx context.Context, mem avr109.MemoryType, addr uint32, n int, phase string) ([]byte, error) {
	size, err := p.BlockSupport(ctx)
	if errors.Is(err, pkg.ErrUnsupported) && mem == avr109.MemoryEEPROM {
		return p.readEEPROMBytes(ctx, uint16(addr), n, phase)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", mem, err)
	}
	if mem == avr109.MemoryFlash && addr%2 != 0 {
		return nil, fmt.Errorf("%w: flash address 0x%04X is odd", pkg.ErrInvalidParameter, addr)
	}

	start := time.Now()
	if err := p.SetAddress(ctx, counterAddress(mem, addr)); err != nil {
		return nil, err
	}
	// Flash is read in whole words.
	total := n
	if mem == avr109.MemoryFlash {
		total += n & 1
	}
	out := make([]byte, total)
	for off := 0; off < total; off += size {
		m := min(size, total-off)
		hdr := []byte{byte(avr109.CmdBlockRead), byte(m >> 8), byte(m), byte(mem)}
		p.mu.Lock()
		err := p.write(ctx, avr109.CmdBlockRead, hdr)
		if err == nil {
			err = p.read(ctx, avr109.CmdBlockRead, out[off:off+m])
		}
		p.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("read %s at 0x%04X: %w", mem, addr+uint32(off), err)
		}
		p.progress(phase, min(off+m, n), n, start)
	}
	return out[:n], nil
}

func (p *Programmer) readEEPROMBytes(ctx context.Context, addr uint16, n int, phase string) ([]byte, error) {
	start := time.Now()
	if err := p.SetAddress(ctx, addr); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := range out {
		b, err := p.query1(ctx, avr109.CmdReadEEPROM)
		if err != nil {
			return nil, fmt.Errorf("read eeprom at 0x%04X: %w", int(addr)+i, err)
		}
		out[i] = b
		p.progress(phase, i+1, n, start)
	}
	return out, nil
}

// Low-level command I/O. Callers hold p.mu except where noted.

func (p *Programmer) send(ctx context.Context, cmd avr109.Command, params ...byte) error {
	return p.write(ctx, cmd, append([]byte{byte(cmd)}, params...))
}

func (p *Programmer) write(ctx context.Context, cmd avr109.Command, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.rw.Write(frame); err != nil {
		return fmt.Errorf("%s: write: %w", cmd, err)
	}
	return nil
}

// read fills buf, failing with pkg.ErrTimeout when no byte arrives within
// the read timeout.
func (p *Programmer) read(ctx context.Context, cmd avr109.Command, buf []byte) error {
	deadline := time.Now().Add(p.config.ReadTimeout)
	for n := 0; n < len(buf); {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := p.rw.Read(buf[n:])
		n += m
		if err != nil {
			return fmt.Errorf("%s: read: %w", cmd, err)
		}
		if m > 0 {
			deadline = time.Now().Add(p.config.ReadTimeout)
		} else if time.Now().After(deadline) {
			return fmt.Errorf("%s: %w", cmd, pkg.ErrTimeout)
		}
	}
	return nil
}

// query sends cmd and reads len(resp) bytes. A lone '?' answer is reported
// as a ResponseError.
func (p *Programmer) query(ctx context.Context, cmd avr109.Command, params []byte, resp []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.send(ctx, cmd, params...); err != nil {
		return err
	}
	if err := p.read(ctx, cmd, resp[:1]); err != nil {
		return err
	}
	if resp[0] == avr109.RespUnknown && !answersRaw(cmd) {
		return &ResponseError{Command: cmd, Got: resp[0]}
	}
	return p.read(ctx, cmd, resp[1:])
}

// answersRaw reports whether any byte, including '?', is a valid answer.
func answersRaw(cmd avr109.Command) bool {
	switch cmd {
	case avr109.CmdReadEEPROM, avr109.CmdReadFlashWord, avr109.CmdReadSignature,
		avr109.CmdReadLowFuses, avr109.CmdReadHighFuses, avr109.CmdReadExtendedFuses,
		avr109.CmdReadLockbits:
		return true
	}
	return false
}

func (p *Programmer) query1(ctx context.Context, cmd avr109.Command) (byte, error) {
	var b [1]byte
	err := p.query(ctx, cmd, nil, b[:])
	return b[0], err
}

// ok sends cmd and expects a carriage return.
func (p *Programmer) ok(ctx context.Context, cmd avr109.Command, params ...byte) error {
	return p.okFrame(ctx, cmd, append([]byte{byte(cmd)}, params...))
}

func (p *Programmer) okFrame(ctx context.Context, cmd avr109.Command, frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.write(ctx, cmd, frame); err != nil {
		return err
	}
	var b [1]byte
	if err := p.read(ctx, cmd, b[:]); err != nil {
		return err
	}
	if b[0] != avr109.RespOK {
		return &ResponseError{Command: cmd, Got: b[0], Want: avr109.RespOK}
	}
	return nil
}

func (p *Programmer) progress(phase string, done, total int, start time.Time) {
	pct := 100.0
	if total > 0 {
		pct = float64(done) * 100 / float64(total)
	}
	p.reportProgress(Progress{
		Phase:      phase,
		Done:       done,
		Total:      total,
		Percentage: pct,
		Elapsed:    time.Since(start),
	})
}

func (p *Programmer) reportProgress(progress Progress) {
	if p.config.ProgressCallback != nil {
		p.config.ProgressCallback(progress)
	}
}

func (p *Programmer) logDebug(msg string, args ...any) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, args...)
	}
}

func (p *Programmer) logInfo(msg string, args ...any) {
	if p.config.Logger != nil {
		p.config.Logger.Info(msg, args...)
	}
}
