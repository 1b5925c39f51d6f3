package sim

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardnew/hoodloader/device/class/cdc"
	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/pkg"
)

func TestSendSplitsIntoBanks(t *testing.T) {
	tr := New(WithBankSize(8))
	tr.Send(bytes.Repeat([]byte{0xAA}, 20))

	if got := tr.PendingOUT(); got != 3 {
		t.Fatalf("PendingOUT() = %d, want 3", got)
	}

	var buf [8]byte
	sizes := []int{8, 8, 4}
	for i, want := range sizes {
		if !tr.OUTReceived(hal.EndpointOUT) {
			t.Fatalf("packet %d: OUTReceived() = false", i)
		}
		if n := tr.ReadOUT(hal.EndpointOUT, buf[:]); n != want {
			t.Errorf("packet %d: ReadOUT() = %d, want %d", i, n, want)
		}
		tr.ReleaseOUT(hal.EndpointOUT)
	}
	if tr.OUTReceived(hal.EndpointOUT) {
		t.Error("OUTReceived() = true after releasing every packet")
	}
}

func TestWrongEndpoint(t *testing.T) {
	tr := New()
	tr.Send([]byte{1})
	if tr.OUTReceived(hal.EndpointIN) {
		t.Error("OUTReceived(IN endpoint) = true")
	}
	if err := tr.WriteIN(hal.EndpointOUT, []byte{1}); !errors.Is(err, pkg.ErrInvalidEndpoint) {
		t.Errorf("WriteIN(OUT endpoint) error = %v, want ErrInvalidEndpoint", err)
	}
}

func TestWriteINRecordsZLP(t *testing.T) {
	tr := New()
	if err := tr.WriteIN(hal.EndpointIN, []byte("ok")); err != nil {
		t.Fatal(err)
	}
	if err := tr.WriteIN(hal.EndpointIN, nil); err != nil {
		t.Fatal(err)
	}

	pkts := tr.Packets()
	if len(pkts) != 2 || len(pkts[1]) != 0 {
		t.Fatalf("Packets() = %q, want [ok, ZLP]", pkts)
	}
	if got := tr.Received(); string(got) != "ok" {
		t.Errorf("Received() = %q, want %q", got, "ok")
	}
}

func TestWriteINWhenNotReady(t *testing.T) {
	tr := New()
	tr.SetINReady(false)
	if tr.INReady(hal.EndpointIN) {
		t.Fatal("INReady() = true after SetINReady(false)")
	}
	if err := tr.WriteIN(hal.EndpointIN, []byte{1}); !errors.Is(err, pkg.ErrBankBusy) {
		t.Errorf("WriteIN() error = %v, want ErrBankBusy", err)
	}
}

func TestControlRoundTrip(t *testing.T) {
	tr := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	want := cdc.LineCoding{DTERate: 9600, DataBits: 7, ParityType: cdc.ParityEven}
	go func() {
		var setup hal.SetupPacket
		var data [16]byte
		for {
			if _, ok := tr.PollSetup(&setup, data[:]); ok {
				var buf [cdc.LineCodingSize]byte
				want.MarshalTo(buf[:])
				tr.WriteControl(buf[:])
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	got, err := tr.LineCoding(ctx)
	if err != nil {
		t.Fatalf("LineCoding() error = %v", err)
	}
	if got != want {
		t.Errorf("LineCoding() = %v, want %v", got, want)
	}
}

func TestControlStall(t *testing.T) {
	tr := New()
	reply := tr.Post(hal.SetupPacket{RequestType: 0x21, Request: 0x7F}, nil)

	var setup hal.SetupPacket
	if _, ok := tr.PollSetup(&setup, nil); !ok {
		t.Fatal("PollSetup() ok = false")
	}
	if setup.Request != 0x7F {
		t.Errorf("setup.Request = 0x%02X, want 0x7F", setup.Request)
	}
	tr.StallControl()

	if r := <-reply; !errors.Is(r.Err, pkg.ErrStall) {
		t.Errorf("result error = %v, want ErrStall", r.Err)
	}
	if err := tr.AckControl(); !errors.Is(err, pkg.ErrProtocol) {
		t.Errorf("AckControl() without request error = %v, want ErrProtocol", err)
	}
}

func TestPortReadTimeout(t *testing.T) {
	tr := New()
	p := tr.Port()
	p.SetReadTimeout(10 * time.Millisecond)

	var buf [4]byte
	n, err := p.Read(buf[:])
	if n != 0 || err != nil {
		t.Fatalf("Read() = %d, %v; want 0, nil", n, err)
	}

	tr.WriteIN(hal.EndpointIN, []byte{1, 2, 3, 4, 5})
	n, _ = p.Read(buf[:])
	if n != 4 {
		t.Fatalf("Read() = %d, want 4", n)
	}
	n, _ = p.Read(buf[:])
	if n != 1 || buf[0] != 5 {
		t.Errorf("second Read() = %d (% X), want 1 byte 05", n, buf[:n])
	}
}

func TestDetach(t *testing.T) {
	tr := New()
	tr.Detach()
	if tr.State() != hal.StateUnattached {
		t.Errorf("State() = %v, want unattached", tr.State())
	}
	if tr.Detaches() != 1 {
		t.Errorf("Detaches() = %d, want 1", tr.Detaches())
	}
}
