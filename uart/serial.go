package uart

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/ardnew/hoodloader/pkg"
)

// readTimeout bounds each blocking read of the receive goroutine so Close
// is noticed promptly.
const readTimeout = 50 * time.Millisecond

// Serial is a [Port] backed by an operating-system serial device.
type Serial struct {
	name string
	port serial.Port

	txMu sync.Mutex // held while TX is forced idle
	held atomic.Bool

	rxMu sync.Mutex
	rx   func(byte)

	done chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// Open opens the serial device name with an initial configuration and starts
// its receive goroutine.
func Open(name string, c Config) (*Serial, error) {
	mode, err := modeOf(c)
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	s := &Serial{
		name: name,
		port: port,
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.receive()

	pkg.LogInfo(pkg.ComponentUART, "serial port opened", "port", name, "config", c.String())
	return s, nil
}

func modeOf(c Config) (*serial.Mode, error) {
	m := &serial.Mode{
		BaudRate: int(c.Baud),
		DataBits: int(c.DataBits),
	}
	if m.BaudRate == 0 {
		return nil, fmt.Errorf("%w: baud rate 0", pkg.ErrInvalidParameter)
	}
	if m.DataBits == 0 {
		m.DataBits = 8
	}
	switch c.Parity {
	case ParityNone:
		m.Parity = serial.NoParity
	case ParityOdd:
		m.Parity = serial.OddParity
	case ParityEven:
		m.Parity = serial.EvenParity
	case ParityMark:
		m.Parity = serial.MarkParity
	case ParitySpace:
		m.Parity = serial.SpaceParity
	}
	switch c.StopBits {
	case StopBitsOne:
		m.StopBits = serial.OneStopBit
	case StopBitsOnePointFive:
		m.StopBits = serial.OnePointFiveStopBits
	case StopBitsTwo:
		m.StopBits = serial.TwoStopBits
	}
	return m, nil
}

// Configure changes the port mode. A zero baud rate is ignored, since the
// host sends one before it has chosen a rate.
func (s *Serial) Configure(c Config) error {
	if c.Baud == 0 {
		pkg.LogDebug(pkg.ComponentUART, "ignoring zero baud configuration", "port", s.name)
		return nil
	}
	mode, err := modeOf(c)
	if err != nil {
		return err
	}
	if err := s.port.SetMode(mode); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", s.name, err)
	}
	pkg.LogDebug(pkg.ComponentUART, "serial port configured", "port", s.name, "config", c.String())
	return nil
}

// HoldTx blocks transmission until released.
func (s *Serial) HoldTx(hold bool) {
	if hold {
		if s.held.CompareAndSwap(false, true) {
			s.txMu.Lock()
		}
		return
	}
	if s.held.CompareAndSwap(true, false) {
		s.txMu.Unlock()
	}
}

// WriteByte transmits b, waiting while TX is held.
func (s *Serial) WriteByte(b byte) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	_, err := s.port.Write([]byte{b})
	return err
}

// SetReceiver installs the receive callback.
func (s *Serial) SetReceiver(fn func(byte)) {
	s.rxMu.Lock()
	s.rx = fn
	s.rxMu.Unlock()
}

func (s *Serial) receive() {
	defer s.wg.Done()
	buf := make([]byte, 64)
	for {
		select {
		case <-s.done:
			return
		default:
		}

		n, err := s.port.Read(buf)
		if err != nil {
			var perr *serial.PortError
			if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
				return
			}
			pkg.LogWarn(pkg.ComponentUART, "serial read failed", "port", s.name, "error", err)
			select {
			case <-s.done:
				return
			case <-time.After(readTimeout):
			}
			continue
		}

		s.rxMu.Lock()
		fn := s.rx
		s.rxMu.Unlock()
		if fn == nil {
			continue
		}
		for _, b := range buf[:n] {
			fn(b)
		}
	}
}

// Close stops the receive goroutine and closes the port.
func (s *Serial) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.HoldTx(false)
		err = s.port.Close()
		s.wg.Wait()
		pkg.LogInfo(pkg.ComponentUART, "serial port closed", "port", s.name)
	})
	return err
}

var _ Port = (*Serial)(nil)
