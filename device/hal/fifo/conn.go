package fifo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ardnew/hoodloader/device/class/cdc"
	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/device/hal/enum"
	"github.com/ardnew/hoodloader/device/hal/sim"
	"github.com/ardnew/hoodloader/pkg"
)

// DefaultReadTimeout is the initial read timeout of a Conn.
const DefaultReadTimeout = time.Second

// hostAddress is the address assigned during enumeration.
const hostAddress = 1

// Conn is the host end of a FIFO device. It reads and writes the data
// endpoints like a serial port and issues CDC control requests.
type Conn struct {
	dir string

	device   enum.DeviceDescriptor
	product  string
	serial   string
	bankSize int

	hostToDevice *os.File
	deviceToHost *os.File
	connection   *os.File
	epOut        *os.File
	epIn         *os.File

	controlMu sync.Mutex
	readMu    sync.Mutex
	timeout   time.Duration
	unread    []byte
	buf       [headerSize + MaxPayload]byte

	done      chan struct{}
	closeOnce sync.Once
}

// Find waits for a device directory to appear under busDir and returns the
// first one found, in lexical order.
func Find(ctx context.Context, busDir string) (string, error) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		entries, err := os.ReadDir(busDir)
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("scan bus: %w", err)
		}
		var dirs []string
		for _, e := range entries {
			if e.IsDir() && strings.HasPrefix(e.Name(), "device-") {
				dirs = append(dirs, e.Name())
			}
		}
		if len(dirs) > 0 {
			sort.Strings(dirs)
			return filepath.Join(busDir, dirs[0]), nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}

// Dial opens the device in dir, waits for its connect signal and enumerates
// it: bus reset, device descriptor, address, configuration descriptor,
// strings and finally SET_CONFIGURATION.
func Dial(ctx context.Context, dir string) (*Conn, error) {
	c := &Conn{
		dir:      dir,
		bankSize: hal.DefaultBankSize,
		timeout:  DefaultReadTimeout,
		done:     make(chan struct{}),
	}
	files := []struct {
		name string
		f    **os.File
	}{
		{fifoHostToDevice, &c.hostToDevice},
		{fifoDeviceToHost, &c.deviceToHost},
		{fifoConnection, &c.connection},
		{fifoEPOut, &c.epOut},
		{fifoEPIn, &c.epIn},
	}
	for _, fl := range files {
		f, err := openFIFO(dir, fl.name)
		if err != nil {
			c.Close()
			return nil, err
		}
		*fl.f = f
	}

	var sig [headerSize]byte
	typ, _, err := readMessage(ctx, c.done, c.connection, sig[:])
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("wait for connect: %w", err)
	}
	if typ != sigConnect {
		c.Close()
		return nil, pkg.ErrDetached
	}

	if err := c.enumerate(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("enumerate: %w", err)
	}
	pkg.LogInfo(pkg.ComponentClient, "fifo device connected", "dir", dir,
		"vid", fmt.Sprintf("%04X", c.device.VendorID),
		"pid", fmt.Sprintf("%04X", c.device.ProductID),
		"product", c.product)
	return c, nil
}

func (c *Conn) enumerate(ctx context.Context) error {
	if err := c.bus(ctx, msgReset); err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	data, err := c.Control(ctx, enum.GetDescriptorRequest(enum.DescriptorTypeDevice, 0, enum.DeviceDescriptorSize), nil)
	if err != nil {
		return fmt.Errorf("device descriptor: %w", err)
	}
	if err := enum.ParseDeviceDescriptor(data, &c.device); err != nil {
		return fmt.Errorf("device descriptor: %w", err)
	}

	if _, err := c.Control(ctx, enum.SetAddressRequest(hostAddress), nil); err != nil {
		return fmt.Errorf("set address: %w", err)
	}

	data, err = c.Control(ctx, enum.GetDescriptorRequest(enum.DescriptorTypeConfiguration, 0, enum.ConfigurationDescriptorSize), nil)
	if err != nil {
		return fmt.Errorf("configuration descriptor: %w", err)
	}
	var cfg enum.ConfigurationDescriptor
	if err := enum.ParseConfigurationDescriptor(data, &cfg); err != nil {
		return fmt.Errorf("configuration descriptor: %w", err)
	}
	data, err = c.Control(ctx, enum.GetDescriptorRequest(enum.DescriptorTypeConfiguration, 0, cfg.TotalLength), nil)
	if err != nil {
		return fmt.Errorf("configuration descriptor: %w", err)
	}
	out, _, err := enum.BulkEndpoints(data)
	if err != nil {
		return err
	}
	c.bankSize = int(out.MaxPacketSize)

	if c.product, err = c.stringDescriptor(ctx, c.device.ProductIndex); err != nil {
		return fmt.Errorf("product string: %w", err)
	}
	if c.serial, err = c.stringDescriptor(ctx, c.device.SerialNumberIndex); err != nil {
		return fmt.Errorf("serial string: %w", err)
	}

	if _, err := c.Control(ctx, enum.SetConfigurationRequest(cfg.ConfigurationValue), nil); err != nil {
		return fmt.Errorf("set configuration: %w", err)
	}
	return nil
}

func (c *Conn) stringDescriptor(ctx context.Context, index uint8) (string, error) {
	if index == 0 {
		return "", nil
	}
	data, err := c.Control(ctx, enum.GetDescriptorRequest(enum.DescriptorTypeString, index, 255), nil)
	if err != nil {
		return "", err
	}
	return enum.ParseString(data)
}

// Device returns the device descriptor read during enumeration.
func (c *Conn) Device() enum.DeviceDescriptor {
	return c.device
}

// Product returns the product string, or "" if the device has none.
func (c *Conn) Product() string {
	return c.product
}

// Serial returns the serial number string, or "" if the device has none.
func (c *Conn) Serial() string {
	return c.serial
}

// Close releases the FIFOs. The device directory is left to the device.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	for _, f := range []*os.File{c.hostToDevice, c.deviceToHost, c.connection, c.epOut, c.epIn} {
		if f != nil {
			f.Close()
		}
	}
	return nil
}

// bus sends a bus event and waits for the device to acknowledge it.
func (c *Conn) bus(ctx context.Context, typ byte) error {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()
	if err := writeMessage(c.done, c.hostToDevice, typ, nil); err != nil {
		return err
	}
	_, _, err := c.awaitReply(ctx)
	return err
}

func (c *Conn) awaitReply(ctx context.Context) (byte, []byte, error) {
	var buf [headerSize + MaxPayload]byte
	typ, payload, err := readMessage(ctx, c.done, c.deviceToHost, buf[:])
	if err != nil {
		return 0, nil, err
	}
	switch typ {
	case msgStall:
		return typ, nil, pkg.ErrStall
	case msgAck, msgData:
		return typ, append([]byte{}, payload...), nil
	default:
		return typ, nil, fmt.Errorf("%w: reply type 0x%02X", pkg.ErrProtocol, typ)
	}
}

// Suspend suspends the bus. Pending device I/O is abandoned.
func (c *Conn) Suspend(ctx context.Context) error {
	return c.bus(ctx, msgSuspend)
}

// Resume resumes the bus.
func (c *Conn) Resume(ctx context.Context) error {
	return c.bus(ctx, msgResume)
}

// Control issues a control request and returns the data stage, if any.
// A stalled request returns pkg.ErrStall.
func (c *Conn) Control(ctx context.Context, setup hal.SetupPacket, data []byte) ([]byte, error) {
	c.controlMu.Lock()
	defer c.controlMu.Unlock()

	var msg [1 + hal.SetupPacketSize + MaxPayload]byte
	n := 1 + setup.MarshalTo(msg[1:])
	if len(data) > MaxPayload-n {
		return nil, pkg.ErrBufferTooSmall
	}
	n += copy(msg[n:], data)
	if err := writeMessage(c.done, c.hostToDevice, msgSetup, msg[:n]); err != nil {
		return nil, err
	}
	_, reply, err := c.awaitReply(ctx)
	return reply, err
}

// SetLineCoding issues SET_LINE_CODING.
func (c *Conn) SetLineCoding(ctx context.Context, lc cdc.LineCoding) error {
	var buf [cdc.LineCodingSize]byte
	lc.MarshalTo(buf[:])
	_, err := c.Control(ctx, sim.SetLineCodingRequest(), buf[:])
	return err
}

// LineCoding issues GET_LINE_CODING.
func (c *Conn) LineCoding(ctx context.Context) (cdc.LineCoding, error) {
	var lc cdc.LineCoding
	data, err := c.Control(ctx, sim.GetLineCodingRequest(), nil)
	if err != nil {
		return lc, err
	}
	if !cdc.ParseLineCoding(data, &lc) {
		return lc, pkg.ErrBufferTooSmall
	}
	return lc, nil
}

// Open sets an 8N1 line coding at baud, as opening a serial port does.
func (c *Conn) Open(ctx context.Context, baud uint32) error {
	return c.SetLineCoding(ctx, cdc.LineCoding{
		DTERate:    baud,
		CharFormat: cdc.StopBitsOne,
		ParityType: cdc.ParityNone,
		DataBits:   8,
	})
}

// SetDTR drives the DTR control line.
func (c *Conn) SetDTR(ctx context.Context, dtr bool) error {
	_, err := c.Control(ctx, sim.ControlLineStateRequest(dtr, false), nil)
	return err
}

// SetReadTimeout sets how long Read waits for data.
func (c *Conn) SetReadTimeout(d time.Duration) error {
	c.readMu.Lock()
	c.timeout = d
	c.readMu.Unlock()
	return nil
}

// Write sends p on the OUT endpoint in bank-sized packets.
func (c *Conn) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		n := min(len(p), c.bankSize)
		if err := writeMessage(c.done, c.epOut, msgData, p[:n]); err != nil {
			return total, err
		}
		total += n
		p = p[n:]
	}
	return total, nil
}

// WritePacket sends one OUT packet, which may be empty.
func (c *Conn) WritePacket(p []byte) error {
	if len(p) > c.bankSize {
		return pkg.ErrBufferTooSmall
	}
	return writeMessage(c.done, c.epOut, msgData, p)
}

// Read reads IN data. When nothing arrives within the read timeout, Read
// returns 0 and a nil error. Zero-length packets are consumed silently.
func (c *Conn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if len(c.unread) > 0 {
		n := copy(p, c.unread)
		c.unread = c.unread[n:]
		return n, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	for {
		typ, payload, err := readMessage(ctx, c.done, c.epIn, c.buf[:])
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return 0, nil
			}
			return 0, err
		}
		if typ != msgData || len(payload) == 0 {
			continue
		}
		n := copy(p, payload)
		c.unread = append(c.unread[:0], payload[n:]...)
		return n, nil
	}
}

// WaitDisconnect blocks until the device signals detach.
func (c *Conn) WaitDisconnect(ctx context.Context) error {
	var buf [headerSize]byte
	for {
		typ, _, err := readMessage(ctx, c.done, c.connection, buf[:])
		if err != nil {
			return err
		}
		if typ == sigDisconnect {
			pkg.LogInfo(pkg.ComponentClient, "fifo device disconnected", "dir", c.dir)
			return nil
		}
	}
}
