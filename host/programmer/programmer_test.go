package programmer

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/ardnew/hoodloader/device"
	"github.com/ardnew/hoodloader/device/hal/sim"
	"github.com/ardnew/hoodloader/nvm"
	"github.com/ardnew/hoodloader/pkg"
	"github.com/ardnew/hoodloader/pkg/avr109"
	"github.com/ardnew/hoodloader/uart"
)

type target struct {
	ctx  context.Context
	tr   *sim.Transport
	mem  *nvm.Memory
	port *sim.Port
	errc chan error
}

// startTarget runs the firmware on a simulated transport and opens its port
// at the sentinel baud rate.
func startTarget(t *testing.T, opts ...device.Option) *target {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	tg := &target{
		ctx:  ctx,
		tr:   sim.New(),
		mem:  nvm.NewMemory(nvm.ATmega16U2),
		errc: make(chan error, 1),
	}
	opts = append([]device.Option{device.WithPollInterval(50 * time.Microsecond)}, opts...)
	fw := device.New(tg.tr, tg.mem, uart.NewVirtual(), opts...)
	go func() { tg.errc <- fw.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-tg.errc
	})

	tg.port = tg.tr.Port()
	tg.port.SetReadTimeout(50 * time.Millisecond)
	if err := tg.port.Open(ctx, SentinelBaud); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	return tg
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7 + 3)
	}
	return b
}

func TestInfo(t *testing.T) {
	tg := startTarget(t)
	p := New(tg.port)

	info, err := p.Info(tg.ctx)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.Identifier != device.DefaultIdentifier {
		t.Errorf("Identifier = %q, want %q", info.Identifier, device.DefaultIdentifier)
	}
	if got := info.Version.String(); got != "1.0" {
		t.Errorf("Version = %s, want 1.0", got)
	}
	if info.Signature != nvm.ATmega16U2.Signature {
		t.Errorf("Signature = % X, want % X", info.Signature[:], nvm.ATmega16U2.Signature[:])
	}
	if info.Part == nil || info.Part.Name != "atmega16u2" {
		t.Errorf("Part = %v, want atmega16u2", info.Part)
	}
	if info.BlockSize != 128 {
		t.Errorf("BlockSize = %d, want 128", info.BlockSize)
	}
	want := Fuses{Low: nvm.DefaultLowFuse, High: nvm.DefaultHighFuse,
		Extended: nvm.DefaultExtendedFuse, Lock: nvm.DefaultLockBits}
	if info.Fuses != want {
		t.Errorf("Fuses = %+v, want %+v", info.Fuses, want)
	}
}

func TestHandshake(t *testing.T) {
	tg := startTarget(t)
	p := New(tg.port)

	if err := p.Sync(tg.ctx); err != nil {
		t.Fatal(err)
	}
	if err := p.Init(tg.ctx); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	codes, err := p.PartCodes(tg.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(codes, avr109.PartCode[:1]) {
		t.Errorf("PartCodes() = % X, want % X", codes, avr109.PartCode[:1])
	}
	if err := p.SelectDeviceType(tg.ctx, codes[0]); err != nil {
		t.Error(err)
	}
	if err := p.SetLED(tg.ctx, true); err != nil {
		t.Error(err)
	}
	if err := p.Leave(tg.ctx); err != nil {
		t.Error(err)
	}
}

func TestProgramAndRead(t *testing.T) {
	tg := startTarget(t)

	var phases []string
	p := New(tg.port,
		WithSignature(nvm.ATmega16U2.Signature),
		WithProgressCallback(func(pr Progress) {
			if len(phases) == 0 || phases[len(phases)-1] != pr.Phase {
				phases = append(phases, pr.Phase)
			}
		}),
	)

	image := pattern(300)
	if err := p.Program(tg.ctx, image); err != nil {
		t.Fatalf("Program() error = %v", err)
	}
	want := []string{PhaseErasing, PhaseWriting, PhaseVerifying, PhaseComplete}
	if !slices.Equal(phases, want) {
		t.Errorf("phases after Program = %v, want %v", phases, want)
	}

	flash := tg.mem.Snapshot(nvm.RegionFlash)
	if !bytes.Equal(flash[:300], image) {
		t.Error("flash contents differ from image")
	}
	if !bytes.Equal(flash[300:384], bytes.Repeat([]byte{0xFF}, 84)) {
		t.Error("padding of the last page is not erased")
	}

	got, err := p.ReadFlash(tg.ctx, 0, 301)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got[:300], image) || got[300] != 0xFF {
		t.Error("ReadFlash() differs from image")
	}

	w, err := p.ReadFlashWord(tg.ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if want := uint16(image[3])<<8 | uint16(image[2]); w != want {
		t.Errorf("ReadFlashWord(2) = 0x%04X, want 0x%04X", w, want)
	}

	if phases[len(phases)-1] != PhaseReading {
		t.Errorf("last phase after ReadFlash = %q, want %q", phases[len(phases)-1], PhaseReading)
	}
}

func TestEEPROM(t *testing.T) {
	tests := []struct {
		name     string
		features device.Features
	}{
		{"block", device.FeatureAll},
		{"byte", device.FeatureAll &^ device.FeatureBlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tg := startTarget(t, device.WithFeatures(tt.features))
			p := New(tg.port)

			data := pattern(40)
			if err := p.WriteEEPROM(tg.ctx, 0x10, data); err != nil {
				t.Fatalf("WriteEEPROM() error = %v", err)
			}
			for i, b := range data {
				if got := tg.mem.ReadEEPROM(uint16(0x10 + i)); got != b {
					t.Fatalf("eeprom[0x%02X] = 0x%02X, want 0x%02X", 0x10+i, got, b)
				}
			}
			got, err := p.ReadEEPROM(tg.ctx, 0x10, len(data))
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, data) {
				t.Errorf("ReadEEPROM() = % X, want % X", got, data)
			}
		})
	}
}

func TestProgramWithoutBlockSupport(t *testing.T) {
	tg := startTarget(t, device.WithFeatures(device.FeatureAll&^device.FeatureBlock))
	p := New(tg.port)

	if _, err := p.BlockSupport(tg.ctx); !errors.Is(err, pkg.ErrUnsupported) {
		t.Errorf("BlockSupport() error = %v, want ErrUnsupported", err)
	}
	if err := p.Program(tg.ctx, pattern(16)); !errors.Is(err, pkg.ErrUnsupported) {
		t.Errorf("Program() error = %v, want ErrUnsupported", err)
	}
}

func TestSignatureMismatch(t *testing.T) {
	tg := startTarget(t)
	p := New(tg.port, WithSignature(nvm.ATmega32U2.Signature))

	err := p.Program(tg.ctx, pattern(16))
	var mismatch *SignatureMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("Program() error = %v, want SignatureMismatchError", err)
	}
	if mismatch.Actual != nvm.ATmega16U2.Signature {
		t.Errorf("Actual = % X, want % X", mismatch.Actual[:], nvm.ATmega16U2.Signature[:])
	}
}

func TestVerifyMismatch(t *testing.T) {
	tg := startTarget(t)
	p := New(tg.port)

	err := p.Verify(tg.ctx, avr109.MemoryFlash, 0, []byte{0x12, 0x34})
	var verr *VerifyError
	if !errors.As(err, &verr) {
		t.Fatalf("Verify() error = %v, want VerifyError", err)
	}
	if verr.Address != 0 || verr.Expected != 0x12 || verr.Actual != 0xFF {
		t.Errorf("VerifyError = %+v", verr)
	}
}

func TestLockBits(t *testing.T) {
	tg := startTarget(t)
	p := New(tg.port)

	if err := p.WriteLockBits(tg.ctx, 0x0C); err != nil {
		t.Fatal(err)
	}
	f, err := p.ReadFuses(tg.ctx)
	if err != nil {
		t.Fatal(err)
	}
	if f.Lock != 0xF3 {
		t.Errorf("Lock = 0x%02X, want 0xF3", f.Lock)
	}
}

func TestDisabledCommand(t *testing.T) {
	tg := startTarget(t, device.WithFeatures(device.FeatureAll&^device.FeatureLockWrite))
	p := New(tg.port)

	err := p.WriteLockBits(tg.ctx, 0x0C)
	if !errors.Is(err, pkg.ErrUnknownCommand) {
		t.Fatalf("WriteLockBits() error = %v, want ErrUnknownCommand", err)
	}
	var rerr *ResponseError
	if !errors.As(err, &rerr) || rerr.Command != avr109.CmdWriteLockbits {
		t.Errorf("error = %#v, want ResponseError for WriteLockbits", err)
	}
}

func TestWriteFlashUnaligned(t *testing.T) {
	tg := startTarget(t)
	p := New(tg.port)
	if err := p.WriteFlash(tg.ctx, 3, pattern(4)); !errors.Is(err, pkg.ErrInvalidParameter) {
		t.Errorf("WriteFlash() error = %v, want ErrInvalidParameter", err)
	}
}

func TestExit(t *testing.T) {
	tg := startTarget(t)
	p := New(tg.port)

	if err := p.Exit(tg.ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-tg.errc:
		tg.errc <- err
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("firmware did not stop after Exit")
	}
	if tg.tr.Detaches() != 1 {
		t.Errorf("Detaches() = %d, want 1", tg.tr.Detaches())
	}
}

// silent never answers.
type silent struct{}

func (silent) Read(p []byte) (int, error)  { return 0, nil }
func (silent) Write(p []byte) (int, error) { return len(p), nil }

func TestTimeout(t *testing.T) {
	p := New(silent{}, WithTimeout(20*time.Millisecond), WithLogger(nil))
	if _, err := p.Identify(context.Background()); !errors.Is(err, pkg.ErrTimeout) {
		t.Errorf("Identify() error = %v, want ErrTimeout", err)
	}
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(silent{})
	if err := p.ChipErase(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ChipErase() error = %v, want context.Canceled", err)
	}
}
