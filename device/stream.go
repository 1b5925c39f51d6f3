package device

import (
	"context"
	"time"

	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/pkg"
)

// waiter polls an endpoint condition. A wait ends early with
// pkg.ErrDetached when the device is no longer active, or with the context
// error when the task loop is cancelled.
type waiter struct {
	t    hal.Transport
	ctx  context.Context
	poll time.Duration
}

func (w *waiter) until(ready func() bool) error {
	for !ready() {
		if !w.t.State().Active() {
			return pkg.ErrDetached
		}
		if w.ctx != nil {
			if err := w.ctx.Err(); err != nil {
				return err
			}
		}
		time.Sleep(w.poll)
	}
	return nil
}

// outStream reads command bytes from the bulk OUT endpoint, moving to the
// next packet when the current one is exhausted.
type outStream struct {
	w      *waiter
	buf    []byte
	n, pos int
	held   bool // the OUT bank is owned by the firmware
}

func newOutStream(w *waiter) *outStream {
	return &outStream{w: w, buf: make([]byte, w.t.BankSize(hal.EndpointOUT))}
}

// ReadByte implements io.ByteReader.
func (s *outStream) ReadByte() (byte, error) {
	for s.pos >= s.n {
		s.release()
		err := s.w.until(func() bool { return s.w.t.OUTReceived(hal.EndpointOUT) })
		if err != nil {
			return 0, err
		}
		s.n = s.w.t.ReadOUT(hal.EndpointOUT, s.buf)
		s.pos = 0
		s.held = true
	}
	b := s.buf[s.pos]
	s.pos++
	return b, nil
}

// release hands the current packet back to the host.
func (s *outStream) release() {
	if s.held {
		s.w.t.ReleaseOUT(hal.EndpointOUT)
		s.held = false
	}
	s.n, s.pos = 0, 0
}

// inStream writes response bytes to the bulk IN endpoint in bank-sized
// packets.
type inStream struct {
	w    *waiter
	buf  []byte
	n    int
	full bool // the last packet sent filled the bank
}

func newInStream(w *waiter) *inStream {
	return &inStream{w: w, buf: make([]byte, w.t.BankSize(hal.EndpointIN))}
}

// WriteByte implements io.ByteWriter. A full bank is sent before the next
// byte is buffered.
func (s *inStream) WriteByte(b byte) error {
	if s.n == len(s.buf) {
		if err := s.send(); err != nil {
			return err
		}
	}
	s.buf[s.n] = b
	s.n++
	return nil
}

func (s *inStream) send() error {
	err := s.w.until(func() bool { return s.w.t.INReady(hal.EndpointIN) })
	if err != nil {
		return err
	}
	if err := s.w.t.WriteIN(hal.EndpointIN, s.buf[:s.n]); err != nil {
		return err
	}
	s.full = s.n == len(s.buf)
	s.n = 0
	return nil
}

// flush ends the transfer: the buffered bytes are sent and, when that
// packet filled the bank, a zero-length packet follows. Nothing is sent if
// nothing was written.
func (s *inStream) flush() error {
	if s.n == 0 && !s.full {
		return nil
	}
	if s.n > 0 {
		if err := s.send(); err != nil {
			return err
		}
	}
	if s.full {
		if err := s.send(); err != nil {
			return err
		}
	}
	return s.w.until(func() bool { return s.w.t.INReady(hal.EndpointIN) })
}

// reset drops buffered bytes after an aborted response.
func (s *inStream) reset() {
	s.n = 0
	s.full = false
}
