package device

import (
	"io"

	"github.com/ardnew/hoodloader/nvm"
	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/pkg/avr109"
)

// Processor executes AVR109 commands against a nonvolatile store.
//
// State that outlives a command (the address counter and a flash byte
// waiting for its pair) lives on the channel.
type Processor struct {
	ch       *Channel
	store    nvm.Store
	features Features
	id       [avr109.IdentifierLength]byte
	major    uint8
	minor    uint8

	exited bool
}

// NewProcessor creates a command processor.
func NewProcessor(ch *Channel, store nvm.Store, cfg *Config) *Processor {
	return &Processor{
		ch:       ch,
		store:    store,
		features: cfg.Features,
		id:       cfg.identifier(),
		major:    cfg.VersionMajor,
		minor:    cfg.VersionMinor,
	}
}

// Exited reports whether an Exit command has been executed.
func (p *Processor) Exited() bool {
	return p.exited
}

// requires returns the feature group of cmd, or FeatureNone if cmd is
// always available.
func requires(cmd avr109.Command) Features {
	switch cmd {
	case avr109.CmdGetBlockWriteSupport, avr109.CmdBlockWrite, avr109.CmdBlockRead:
		return FeatureBlock
	case avr109.CmdFillFlashPageWordHigh, avr109.CmdFillFlashPageWordLow,
		avr109.CmdWriteFlashPage, avr109.CmdReadFlashWord:
		return FeatureFlashByte
	case avr109.CmdWriteEEPROM, avr109.CmdReadEEPROM:
		return FeatureEEPROMByte
	case avr109.CmdWriteLockbits:
		return FeatureLockWrite
	case avr109.CmdReadLockbits, avr109.CmdReadLowFuses,
		avr109.CmdReadHighFuses, avr109.CmdReadExtendedFuses:
		return FeatureFuseRead
	case avr109.CmdSetLED, avr109.CmdClearLED, avr109.CmdSelectDeviceType:
		return FeatureCompat
	}
	return FeatureNone
}

func writeAll(out io.ByteWriter, bs ...byte) error {
	for _, b := range bs {
		if err := out.WriteByte(b); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs one command. Parameters are read from in and the response is
// written to out. An error means the command was abandoned mid-way, either
// because the device detached or the task loop was cancelled; nothing more
// should be sent for it.
func (p *Processor) Execute(cmd avr109.Command, in io.ByteReader, out io.ByteWriter) error {
	if need := requires(cmd); !p.features.Has(need) {
		pkg.LogDebug(pkg.ComponentProgrammer, "command disabled", "command", cmd.String())
		return out.WriteByte(avr109.RespUnknown)
	}
	if cmd != avr109.CmdSync {
		pkg.LogDebug(pkg.ComponentProgrammer, "command", "command", cmd.String(),
			"address", p.ch.address)
	}

	part := p.store.Part()

	switch cmd {
	case avr109.CmdExit:
		p.exited = true
		return out.WriteByte(avr109.RespOK)

	case avr109.CmdSetLED, avr109.CmdClearLED, avr109.CmdSelectDeviceType:
		if _, err := in.ReadByte(); err != nil {
			return err
		}
		return out.WriteByte(avr109.RespOK)

	case avr109.CmdEnterProgrammingMode, avr109.CmdLeaveProgrammingMode:
		return out.WriteByte(avr109.RespOK)

	case avr109.CmdReadPartCode:
		return writeAll(out, avr109.PartCode[:]...)

	case avr109.CmdReadAutoAddressIncrement:
		return out.WriteByte(avr109.RespYes)

	case avr109.CmdSetCurrentAddress:
		hi, err := in.ReadByte()
		if err != nil {
			return err
		}
		lo, err := in.ReadByte()
		if err != nil {
			return err
		}
		p.ch.SetAddress(avr109.ByteAddress(hi, lo))
		return out.WriteByte(avr109.RespOK)

	case avr109.CmdReadBootloaderInterface:
		return out.WriteByte(avr109.RespSerial)

	case avr109.CmdReadBootloaderIdentifier:
		return writeAll(out, p.id[:]...)

	case avr109.CmdReadBootloaderSWVersion:
		return writeAll(out, '0'+p.major, '0'+p.minor)

	case avr109.CmdReadSignature:
		sig := part.Signature
		return writeAll(out, sig[2], sig[1], sig[0])

	case avr109.CmdEraseFlash:
		for addr := uint32(0); addr < part.BootStart; addr += part.PageSize {
			p.store.ErasePage(addr)
			p.store.WritePage(addr)
		}
		pkg.LogInfo(pkg.ComponentProgrammer, "application flash erased", "pages", part.Pages())
		return out.WriteByte(avr109.RespOK)

	case avr109.CmdWriteLockbits:
		b, err := in.ReadByte()
		if err != nil {
			return err
		}
		p.store.SetLockBits(b)
		return out.WriteByte(avr109.RespOK)

	case avr109.CmdReadLockbits:
		return out.WriteByte(p.store.ReadFuse(nvm.FuseLock))
	case avr109.CmdReadLowFuses:
		return out.WriteByte(p.store.ReadFuse(nvm.FuseLow))
	case avr109.CmdReadHighFuses:
		return out.WriteByte(p.store.ReadFuse(nvm.FuseHigh))
	case avr109.CmdReadExtendedFuses:
		return out.WriteByte(p.store.ReadFuse(nvm.FuseExtended))

	case avr109.CmdGetBlockWriteSupport:
		return writeAll(out, avr109.RespYes, byte(part.PageSize>>8), byte(part.PageSize))

	case avr109.CmdBlockWrite, avr109.CmdBlockRead:
		return p.block(cmd, in, out)

	case avr109.CmdFillFlashPageWordHigh:
		b, err := in.ReadByte()
		if err != nil {
			return err
		}
		p.ch.cachePending(b)
		return out.WriteByte(avr109.RespOK)

	case avr109.CmdFillFlashPageWordLow:
		b, err := in.ReadByte()
		if err != nil {
			return err
		}
		p.store.FillPage(p.ch.address, p.ch.takePending()|uint16(b)<<8)
		p.ch.advance()
		return out.WriteByte(avr109.RespOK)

	case avr109.CmdWriteFlashPage:
		if p.ch.hasPending {
			p.store.FillPage(p.ch.address, p.ch.takePending()|0xFF00)
		}
		p.store.WritePage(p.ch.address)
		return out.WriteByte(avr109.RespOK)

	case avr109.CmdReadFlashWord:
		lo := p.store.ReadFlash(p.ch.address)
		hi := p.store.ReadFlash(p.ch.address + 1)
		return writeAll(out, hi, lo)

	case avr109.CmdWriteEEPROM:
		b, err := in.ReadByte()
		if err != nil {
			return err
		}
		p.store.WriteEEPROM(uint16(p.ch.address>>1), b)
		p.ch.advance()
		return out.WriteByte(avr109.RespOK)

	case avr109.CmdReadEEPROM:
		b := p.store.ReadEEPROM(uint16(p.ch.address >> 1))
		p.ch.advance()
		return out.WriteByte(b)

	case avr109.CmdSync:
		return nil
	}

	pkg.LogDebug(pkg.ComponentProgrammer, "unknown command", "command", cmd.String())
	return out.WriteByte(avr109.RespUnknown)
}
