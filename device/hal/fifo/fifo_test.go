package fifo

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ardnew/hoodloader/device/class/cdc"
	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/device/hal/enum"
	"github.com/ardnew/hoodloader/pkg"
)

func startPair(t *testing.T, opts ...Option) (*HAL, *Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	dev := New(t.TempDir(), opts...)
	if err := dev.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { dev.Close() })

	dir, err := Find(ctx, dev.busDir)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if dir != dev.DeviceDir() {
		t.Fatalf("Find() = %q, want %q", dir, dev.DeviceDir())
	}
	conn, err := Dial(ctx, dir)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return dev, conn
}

// serve answers control requests the way the negotiator does, until ctx ends.
func serve(ctx context.Context, dev *HAL, coding *cdc.LineCoding) {
	var setup hal.SetupPacket
	var data [64]byte
	for ctx.Err() == nil {
		n, ok := dev.PollSetup(&setup, data[:])
		if !ok {
			time.Sleep(time.Millisecond)
			continue
		}
		switch setup.Request {
		case cdc.RequestSetLineCoding:
			cdc.ParseLineCoding(data[:n], coding)
			dev.AckControl()
		case cdc.RequestGetLineCoding:
			var buf [cdc.LineCodingSize]byte
			coding.MarshalTo(buf[:])
			dev.WriteControl(buf[:])
		default:
			dev.StallControl()
		}
	}
}

func TestGenerateUUID(t *testing.T) {
	a, err := generateUUID()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := generateUUID()
	if len(a) != 32 {
		t.Errorf("len(uuid) = %d, want 32", len(a))
	}
	if a == b {
		t.Error("two UUIDs are equal")
	}
}

func TestStartConfigures(t *testing.T) {
	dev, _ := startPair(t)
	if dev.State() != hal.StateConfigured {
		t.Errorf("State() = %v, want configured", dev.State())
	}
	if dev.UUID() == "" {
		t.Error("UUID() is empty")
	}
	if err := dev.Start(context.Background()); !errors.Is(err, pkg.ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestEnumeration(t *testing.T) {
	id := enum.Identity{
		VendorID:     0x1209,
		ProductID:    0x0001,
		Manufacturer: "acme",
		Product:      "bridge",
		Serial:       "0042",
	}
	dev, conn := startPair(t, WithIdentity(id), WithBankSize(32))

	d := conn.Device()
	if d.VendorID != id.VendorID || d.ProductID != id.ProductID {
		t.Errorf("Device() ids = %04X:%04X, want 1209:0001", d.VendorID, d.ProductID)
	}
	if conn.Product() != "bridge" || conn.Serial() != "0042" {
		t.Errorf("strings = %q, %q; want bridge, 0042", conn.Product(), conn.Serial())
	}
	if conn.bankSize != 32 {
		t.Errorf("bank size = %d, want 32", conn.bankSize)
	}
	if dev.std.Address() != hostAddress {
		t.Errorf("address = %d, want %d", dev.std.Address(), hostAddress)
	}
	if dev.std.Configuration() != enum.ConfigurationValue {
		t.Errorf("configuration = %d, want %d", dev.std.Configuration(), enum.ConfigurationValue)
	}
}

func TestStandardRequests(t *testing.T) {
	dev, conn := startPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tests := []struct {
		name    string
		setup   hal.SetupPacket
		want    []byte
		wantErr error
	}{
		{"get configuration", hal.SetupPacket{RequestType: 0x80, Request: enum.RequestGetConfiguration, Length: 1}, []byte{1}, nil},
		{"device status", enum.GetStatusRequest(enum.RecipientDevice, 0), []byte{0, 0}, nil},
		{"halt IN", enum.EndpointHaltRequest(hal.EndpointIN, true), nil, nil},
		{"IN status", enum.GetStatusRequest(enum.RecipientEndpoint, uint16(hal.EndpointIN)), []byte{1, 0}, nil},
		{"clear IN", enum.EndpointHaltRequest(hal.EndpointIN, false), nil, nil},
		{"qualifier", enum.GetDescriptorRequest(enum.DescriptorTypeDeviceQualifier, 0, 10), nil, pkg.ErrStall},
		{"missing string", enum.GetDescriptorRequest(enum.DescriptorTypeString, 9, 255), nil, pkg.ErrStall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := conn.Control(ctx, tt.setup, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Control() error = %v, want %v", err, tt.wantErr)
			}
			if tt.want != nil && !bytes.Equal(got, tt.want) {
				t.Errorf("Control() = % X, want % X", got, tt.want)
			}
		})
	}

	// None of them reached the class request queue.
	var setup hal.SetupPacket
	if _, ok := dev.PollSetup(&setup, nil); ok {
		t.Errorf("PollSetup() returned standard request 0x%02X", setup.Request)
	}

	if _, err := conn.Control(ctx, enum.SetConfigurationRequest(0), nil); err != nil {
		t.Fatal(err)
	}
	if dev.State() != hal.StateAddressed {
		t.Errorf("State() after deconfigure = %v, want addressed", dev.State())
	}
}

func TestControlRequests(t *testing.T) {
	dev, conn := startPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var coding cdc.LineCoding
	go serve(ctx, dev, &coding)

	if err := conn.Open(ctx, 57600); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	got, err := conn.LineCoding(ctx)
	if err != nil {
		t.Fatalf("LineCoding() error = %v", err)
	}
	if got.DTERate != 57600 || got.DataBits != 8 {
		t.Errorf("LineCoding() = %+v, want 57600 8N1", got)
	}
	if err := conn.SetDTR(ctx, true); !errors.Is(err, pkg.ErrStall) {
		t.Errorf("SetDTR() error = %v, want ErrStall", err)
	}
}

func TestCompleteWithoutRequest(t *testing.T) {
	dev, _ := startPair(t)
	if err := dev.AckControl(); !errors.Is(err, pkg.ErrProtocol) {
		t.Errorf("AckControl() error = %v, want ErrProtocol", err)
	}
}

func TestBulkTransfer(t *testing.T) {
	dev, conn := startPair(t)

	data := bytes.Repeat([]byte{0x5A}, 100)
	if n, err := conn.Write(data); n != 100 || err != nil {
		t.Fatalf("Write() = %d, %v", n, err)
	}

	var got []byte
	var buf [hal.DefaultBankSize]byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < len(data) && time.Now().Before(deadline) {
		if !dev.OUTReceived(hal.EndpointOUT) {
			time.Sleep(time.Millisecond)
			continue
		}
		n := dev.ReadOUT(hal.EndpointOUT, buf[:])
		got = append(got, buf[:n]...)
		dev.ReleaseOUT(hal.EndpointOUT)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("OUT data = %d bytes, want %d", len(got), len(data))
	}

	if !dev.INReady(hal.EndpointIN) {
		t.Fatal("INReady() = false")
	}
	if err := dev.WriteIN(hal.EndpointIN, []byte("ab")); err != nil {
		t.Fatal(err)
	}
	if err := dev.WriteIN(hal.EndpointIN, nil); err != nil {
		t.Fatal(err)
	}
	if err := dev.WriteIN(hal.EndpointIN, []byte("c")); err != nil {
		t.Fatal(err)
	}

	conn.SetReadTimeout(time.Second)
	var rd [1]byte
	var in []byte
	for range 3 {
		n, err := conn.Read(rd[:])
		if err != nil {
			t.Fatal(err)
		}
		in = append(in, rd[:n]...)
	}
	if string(in) != "abc" {
		t.Errorf("IN data = %q, want %q", in, "abc")
	}
}

func TestReadTimeout(t *testing.T) {
	_, conn := startPair(t)
	conn.SetReadTimeout(20 * time.Millisecond)
	var buf [4]byte
	if n, err := conn.Read(buf[:]); n != 0 || err != nil {
		t.Errorf("Read() = %d, %v; want 0, nil", n, err)
	}
}

func TestSuspendResume(t *testing.T) {
	dev, conn := startPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Suspend(ctx); err != nil {
		t.Fatal(err)
	}
	if dev.State() != hal.StateSuspended {
		t.Errorf("State() = %v, want suspended", dev.State())
	}
	if err := conn.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	if dev.State() != hal.StateConfigured {
		t.Errorf("State() = %v, want configured", dev.State())
	}
}

func TestDetachAndClose(t *testing.T) {
	dev, conn := startPair(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := dev.Detach(); err != nil {
		t.Fatal(err)
	}
	if err := conn.WaitDisconnect(ctx); err != nil {
		t.Fatalf("WaitDisconnect() error = %v", err)
	}
	if dev.INReady(hal.EndpointIN) {
		t.Error("INReady() = true after Detach")
	}

	dir := dev.DeviceDir()
	dev.Close()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("device dir still present after Close: %v", err)
	}
}
