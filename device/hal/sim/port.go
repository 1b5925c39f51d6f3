package sim

import (
	"context"
	"sync"
	"time"

	"github.com/ardnew/hoodloader/device/class/cdc"
)

// Port is the host's view of the simulated virtual serial port. Reads follow
// serial-port semantics: when nothing arrives within the read timeout, Read
// returns 0 and a nil error.
type Port struct {
	t  *Transport
	mu sync.Mutex
	to time.Duration
}

// Port returns a host-side serial handle for the transport.
func (t *Transport) Port() *Port {
	return &Port{t: t, to: time.Second}
}

// SetReadTimeout sets how long Read waits for data.
func (p *Port) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	p.to = d
	p.mu.Unlock()
	return nil
}

// Read reads device-to-host bytes.
func (p *Port) Read(b []byte) (int, error) {
	p.mu.Lock()
	to := p.to
	p.mu.Unlock()
	return p.t.read(b, to), nil
}

// Write sends host-to-device bytes.
func (p *Port) Write(b []byte) (int, error) {
	p.t.Send(b)
	return len(b), nil
}

// Open sets the line coding, as opening a serial port at a baud rate does.
func (p *Port) Open(ctx context.Context, baud uint32) error {
	return p.t.SetLineCoding(ctx, cdc.LineCoding{
		DTERate:    baud,
		CharFormat: cdc.StopBitsOne,
		ParityType: cdc.ParityNone,
		DataBits:   8,
	})
}

// SetDTR drives the DTR control line.
func (p *Port) SetDTR(ctx context.Context, dtr bool) error {
	return p.t.SetControlLineState(ctx, dtr, false)
}
