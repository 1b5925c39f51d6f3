package device

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ardnew/hoodloader/board"
	"github.com/ardnew/hoodloader/device/class/cdc"
	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/device/hal/sim"
	"github.com/ardnew/hoodloader/nvm"
	"github.com/ardnew/hoodloader/uart"
)

// recStore records the page operations issued to a Memory.
type recStore struct {
	*nvm.Memory
	calls []string
}

func newRecStore(part nvm.Part) *recStore {
	return &recStore{Memory: nvm.NewMemory(part)}
}

func (s *recStore) ErasePage(addr uint32) {
	s.calls = append(s.calls, fmt.Sprintf("erase 0x%04X", addr))
	s.Memory.ErasePage(addr)
}

func (s *recStore) FillPage(addr uint32, word uint16) {
	s.calls = append(s.calls, fmt.Sprintf("fill 0x%04X=0x%04X", addr, word))
	s.Memory.FillPage(addr, word)
}

func (s *recStore) WritePage(addr uint32) {
	s.calls = append(s.calls, fmt.Sprintf("write 0x%04X", addr))
	s.Memory.WritePage(addr)
}

func (s *recStore) reset() {
	s.calls = nil
}

// harness drives a Firmware one step at a time over the simulated transport.
type harness struct {
	t     *testing.T
	ctx   context.Context
	f     *Firmware
	tr    *sim.Transport
	u     *uart.Virtual
	store *recStore
	reset *board.VirtualReset
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	h := &harness{
		t:     t,
		ctx:   ctx,
		tr:    sim.New(),
		u:     uart.NewVirtual(),
		store: newRecStore(nvm.ATmega16U2),
		reset: &board.VirtualReset{},
	}
	opts = append([]Option{WithReset(h.reset), WithPollInterval(0)}, opts...)
	h.f = New(h.tr, h.store, h.u, opts...)
	h.u.SetReceiver(h.f.Bridge().Produce)
	return h
}

func (h *harness) step() {
	h.t.Helper()
	if err := h.f.Step(h.ctx); err != nil {
		h.t.Fatalf("Step() error = %v", err)
	}
}

// control posts a request and runs the step that answers it.
func (h *harness) control(setup hal.SetupPacket, data []byte) sim.ControlResult {
	h.t.Helper()
	reply := h.tr.Post(setup, data)
	h.step()
	select {
	case r := <-reply:
		return r
	default:
		h.t.Fatalf("request 0x%02X not answered", setup.Request)
		return sim.ControlResult{}
	}
}

func (h *harness) setBaud(baud uint32) {
	h.t.Helper()
	lc := cdc.LineCoding{DTERate: baud, DataBits: 8}
	var buf [cdc.LineCodingSize]byte
	lc.MarshalTo(buf[:])
	if r := h.control(sim.SetLineCodingRequest(), buf[:]); r.Err != nil {
		h.t.Fatalf("SET_LINE_CODING error = %v", r.Err)
	}
}

// command sends one command and returns the bytes the device answered.
func (h *harness) command(data ...byte) []byte {
	h.t.Helper()
	h.tr.Send(data)
	for i := 0; h.tr.PendingOUT() > 0; i++ {
		if i == 16 {
			h.t.Fatalf("command %q not consumed", data)
		}
		h.step()
	}
	return h.tr.Received()
}
