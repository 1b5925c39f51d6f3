package fifo

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ardnew/hoodloader/pkg"
)

// Message types (first header byte).
const (
	msgSetup   = 0x01 // SETUP packet from host
	msgData    = 0x02 // DATA packet
	msgAck     = 0x03 // ACK response
	msgStall   = 0x05 // STALL response
	msgReset   = 0x12 // bus reset
	msgSuspend = 0x15 // bus suspended
	msgResume  = 0x16 // bus resumed
)

// headerSize is type (1) + little-endian length (2).
const headerSize = 3

// MaxPayload bounds a message payload.
const MaxPayload = 512

// Connection signal bytes.
const (
	sigConnect    = 0x01
	sigDisconnect = 0x00
)

// FIFO file names within a device directory. Data endpoints are named after
// their endpoint number.
const (
	fifoHostToDevice = "host_to_device"
	fifoDeviceToHost = "device_to_host"
	fifoConnection   = "connection"
	fifoEPOut        = "ep2_out"
	fifoEPIn         = "ep3_in"
)

// pollTimeout is the read deadline of one poll of a FIFO.
const pollTimeout = 100 * time.Millisecond

func createFIFO(dir, name string) error {
	path := filepath.Join(dir, name)
	os.Remove(path)
	if err := syscall.Mkfifo(path, 0o666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", name, err)
	}
	return nil
}

// openFIFO opens a named pipe read-write and non-blocking, so opening never
// waits for the other side.
func openFIFO(dir, name string) (*os.File, error) {
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// readFull reads exactly len(buf) bytes, polling with short deadlines so
// that ctx and done are honoured.
func readFull(ctx context.Context, done <-chan struct{}, f *os.File, buf []byte) error {
	total := 0
	for total < len(buf) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			return pkg.ErrCancelled
		default:
		}

		f.SetReadDeadline(time.Now().Add(pollTimeout))
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			return err
		}
	}
	return nil
}

// readMessage reads one framed message into buf and returns its type and
// payload.
func readMessage(ctx context.Context, done <-chan struct{}, f *os.File, buf []byte) (byte, []byte, error) {
	if err := readFull(ctx, done, f, buf[:headerSize]); err != nil {
		return 0, nil, err
	}
	typ := buf[0]
	n := int(binary.LittleEndian.Uint16(buf[1:3]))
	if n > len(buf)-headerSize {
		return typ, nil, pkg.ErrBufferTooSmall
	}
	payload := buf[headerSize : headerSize+n]
	// Messages are written atomically, so once the header has arrived the
	// payload is finished even if ctx expires meanwhile.
	if err := readFull(context.WithoutCancel(ctx), done, f, payload); err != nil {
		return typ, nil, err
	}
	return typ, payload, nil
}

// writeMessage writes one framed message. A full pipe is retried until the
// reader drains it.
func writeMessage(done <-chan struct{}, f *os.File, typ byte, payload []byte) error {
	if len(payload) > MaxPayload {
		return pkg.ErrBufferTooSmall
	}
	var buf [headerSize + MaxPayload]byte
	buf[0] = typ
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(payload)))
	n := headerSize + copy(buf[headerSize:], payload)

	written := 0
	for written < n {
		m, err := f.Write(buf[written:n])
		written += m
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) {
				select {
				case <-done:
					return pkg.ErrCancelled
				case <-time.After(time.Millisecond):
				}
				continue
			}
			return err
		}
	}
	return nil
}
