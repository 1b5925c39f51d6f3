package device

import (
	"io"

	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/pkg/avr109"
)

// block runs BlockWrite or BlockRead. The header is a big-endian size and a
// memory type. An unknown memory type answers '?' without consuming the
// payload.
func (p *Processor) block(cmd avr109.Command, in io.ByteReader, out io.ByteWriter) error {
	p.ch.dropPending()

	var hdr [3]byte
	for i := range hdr {
		b, err := in.ReadByte()
		if err != nil {
			return err
		}
		hdr[i] = b
	}
	size := uint16(hdr[0])<<8 | uint16(hdr[1])
	mem := avr109.MemoryType(hdr[2])

	if !mem.Valid() {
		pkg.LogDebug(pkg.ComponentProgrammer, "invalid block memory type", "memory", mem.String())
		return out.WriteByte(avr109.RespUnknown)
	}

	pkg.LogDebug(pkg.ComponentProgrammer, "block", "command", cmd.String(),
		"memory", mem.String(), "size", size, "address", p.ch.address)

	if cmd == avr109.CmdBlockRead {
		return p.blockRead(size, mem, out)
	}
	return p.blockWrite(size, mem, in, out)
}

func (p *Processor) blockRead(size uint16, mem avr109.MemoryType, out io.ByteWriter) error {
	if mem == avr109.MemoryEEPROM {
		for ; size > 0; size-- {
			if err := out.WriteByte(p.store.ReadEEPROM(uint16(p.ch.address >> 1))); err != nil {
				return err
			}
			p.ch.advance()
		}
		return nil
	}

	p.store.EnableRWW()
	var high uint32
	for ; size > 0; size-- {
		if err := out.WriteByte(p.store.ReadFlash(p.ch.address | high)); err != nil {
			return err
		}
		if high == 1 {
			p.ch.advance()
		}
		high ^= 1
	}
	return nil
}

func (p *Processor) blockWrite(size uint16, mem avr109.MemoryType, in io.ByteReader, out io.ByteWriter) error {
	if mem == avr109.MemoryEEPROM {
		for ; size > 0; size-- {
			b, err := in.ReadByte()
			if err != nil {
				return err
			}
			p.store.WriteEEPROM(uint16(p.ch.address>>1), b)
			p.ch.advance()
		}
		return out.WriteByte(avr109.RespOK)
	}

	page := p.ch.address
	p.store.ErasePage(page)

	var (
		lo   byte
		high bool
	)
	for ; size > 0; size-- {
		b, err := in.ReadByte()
		if err != nil {
			return err
		}
		if high {
			p.store.FillPage(p.ch.address, uint16(lo)|uint16(b)<<8)
			p.ch.advance()
		} else {
			lo = b
		}
		high = !high
	}
	if high {
		pkg.LogDebug(pkg.ComponentProgrammer, "odd block size, trailing byte dropped",
			"address", p.ch.address)
	}

	p.store.WritePage(page)
	return out.WriteByte(avr109.RespOK)
}
