package device

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/ardnew/hoodloader/board"
	"github.com/ardnew/hoodloader/device/class/cdc"
	"github.com/ardnew/hoodloader/nvm"
	"github.com/ardnew/hoodloader/pkg/avr109"
	"github.com/ardnew/hoodloader/uart"
)

func newTestProcessor(t *testing.T, opts ...Option) (*Processor, *Channel, *recStore) {
	t.Helper()
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	ch := NewChannel(cfg.RingCapacity)
	store := newRecStore(nvm.ATmega16U2)
	return NewProcessor(ch, store, &cfg), ch, store
}

func execute(t *testing.T, p *Processor, cmd byte, params ...byte) []byte {
	t.Helper()
	in := bytes.NewReader(params)
	var out bytes.Buffer
	if err := p.Execute(avr109.Command(cmd), in, &out); err != nil {
		t.Fatalf("Execute(%q) error = %v", cmd, err)
	}
	if in.Len() != 0 {
		t.Fatalf("Execute(%q) left %d parameter bytes", cmd, in.Len())
	}
	return out.Bytes()
}

func TestSimpleCommands(t *testing.T) {
	tests := []struct {
		name   string
		cmd    byte
		params []byte
		want   []byte
	}{
		{"enter programming", 'P', nil, []byte{'\r'}},
		{"leave programming", 'L', nil, []byte{'\r'}},
		{"set led", 'x', []byte{1}, []byte{'\r'}},
		{"clear led", 'y', []byte{1}, []byte{'\r'}},
		{"device type", 'T', []byte{0x44}, []byte{'\r'}},
		{"part code", 't', nil, []byte{0x44, 0x00}},
		{"auto increment", 'a', nil, []byte{'Y'}},
		{"interface", 'p', nil, []byte{'S'}},
		{"identifier", 'S', nil, []byte("LUFACDC")},
		{"version", 'V', nil, []byte("10")},
		{"signature", 's', nil, []byte{0x89, 0x94, 0x1E}},
		{"block support", 'b', nil, []byte{'Y', 0x00, 0x80}},
		{"lock bits", 'r', nil, []byte{nvm.DefaultLockBits}},
		{"low fuse", 'F', nil, []byte{nvm.DefaultLowFuse}},
		{"high fuse", 'N', nil, []byte{nvm.DefaultHighFuse}},
		{"extended fuse", 'Q', nil, []byte{nvm.DefaultExtendedFuse}},
		{"sync", 0x1B, nil, nil},
		{"unknown", 0x99, nil, []byte{'?'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ch, store := newTestProcessor(t)
			ch.SetAddress(0x40)
			got := execute(t, p, tt.cmd, tt.params...)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("response = %q, want %q", got, tt.want)
			}
			if ch.Address() != 0x40 {
				t.Errorf("address changed to 0x%X", ch.Address())
			}
			if len(store.calls) != 0 {
				t.Errorf("store calls = %v", store.calls)
			}
		})
	}
}

func TestExit(t *testing.T) {
	p, _, _ := newTestProcessor(t)
	if p.Exited() {
		t.Fatal("Exited() = true before Exit")
	}
	if got := execute(t, p, 'E'); !bytes.Equal(got, []byte{'\r'}) {
		t.Errorf("response = %q", got)
	}
	if !p.Exited() {
		t.Error("Exited() = false after Exit")
	}
}

func TestSetCurrentAddress(t *testing.T) {
	tests := []struct {
		hi, lo byte
		want   uint32
	}{
		{0x00, 0x10, 0x20},
		{0x01, 0x00, 0x200},
		{0x3F, 0xFF, 0x7FFE},
	}
	for _, tt := range tests {
		p, ch, _ := newTestProcessor(t)
		execute(t, p, 'A', tt.hi, tt.lo)
		if ch.Address() != tt.want {
			t.Errorf("A %02X %02X: address = 0x%X, want 0x%X", tt.hi, tt.lo, ch.Address(), tt.want)
		}
	}
}

func TestIdentifierPadded(t *testing.T) {
	p, _, _ := newTestProcessor(t, WithIdentity("HL2", 2, 1))
	if got := execute(t, p, 'S'); string(got) != "HL2    " {
		t.Errorf("identifier = %q", got)
	}
	if got := execute(t, p, 'V'); string(got) != "21" {
		t.Errorf("version = %q", got)
	}
}

func TestEEPROMByteAccess(t *testing.T) {
	p, ch, store := newTestProcessor(t)
	execute(t, p, 'A', 0x00, 0x08)

	execute(t, p, 'D', 0xA5)
	execute(t, p, 'D', 0x5A)
	if ch.Address() != 0x14 {
		t.Fatalf("address = 0x%X, want 0x14", ch.Address())
	}
	if store.ReadEEPROM(8) != 0xA5 || store.ReadEEPROM(9) != 0x5A {
		t.Fatalf("eeprom = %02X %02X", store.ReadEEPROM(8), store.ReadEEPROM(9))
	}

	execute(t, p, 'A', 0x00, 0x08)
	got := append(execute(t, p, 'd'), execute(t, p, 'd')...)
	if !bytes.Equal(got, []byte{0xA5, 0x5A}) {
		t.Errorf("read back % X", got)
	}
	if ch.Address() != 0x14 {
		t.Errorf("address = 0x%X, want 0x14", ch.Address())
	}
}

func TestFlashWordFill(t *testing.T) {
	p, ch, store := newTestProcessor(t)

	execute(t, p, 'C', 0x11)
	if ch.Address() != 0 {
		t.Fatalf("address advanced after 'C'")
	}
	execute(t, p, 'c', 0x22)
	if ch.Address() != 2 {
		t.Fatalf("address = %d after 'c', want 2", ch.Address())
	}
	execute(t, p, 'c', 0x44)
	execute(t, p, 'C', 0x55)
	execute(t, p, 'A', 0x00, 0x00)
	execute(t, p, 'm')

	want := []string{
		"fill 0x0000=0x2211",
		"fill 0x0002=0x44FF",
		"write 0x0000",
	}
	if !reflect.DeepEqual(store.calls, want) {
		t.Errorf("store calls = %v, want %v", store.calls, want)
	}

	store.EnableRWW()
	if got := execute(t, p, 'R'); !bytes.Equal(got, []byte{0x22, 0x11}) {
		t.Errorf("'R' = % X, want 22 11", got)
	}
	execute(t, p, 'A', 0x00, 0x01)
	if got := execute(t, p, 'R'); !bytes.Equal(got, []byte{0x44, 0xFF}) {
		t.Errorf("'R' at 2 = % X, want 44 FF", got)
	}
	if ch.Address() != 2 {
		t.Errorf("'R' moved the address to 0x%X", ch.Address())
	}
}

func TestFlashByteDroppedBetweenCommands(t *testing.T) {
	tests := []struct {
		name    string
		between func(t *testing.T, p *Processor, ch *Channel)
		want    string
	}{
		{
			name: "set address",
			between: func(t *testing.T, p *Processor, ch *Channel) {
				execute(t, p, 'A', 0x00, 0x40)
			},
			want: "fill 0x0080=0xBBFF",
		},
		{
			name: "block write",
			between: func(t *testing.T, p *Processor, ch *Channel) {
				execute(t, p, 'A', 0x00, 0x01)
				execute(t, p, 'B', 0x00, 0x02, 'F', 0x11, 0x22)
			},
			want: "fill 0x0004=0xBBFF",
		},
		{
			name: "line coding",
			between: func(t *testing.T, p *Processor, ch *Channel) {
				n := NewNegotiator(ch, uart.NewVirtual(), &board.VirtualReset{}, DefaultSentinel)
				n.SetLineEncoding(cdc.LineCoding{DTERate: DefaultSentinel, DataBits: 8})
			},
			want: "fill 0x0000=0xBBFF",
		},
		{
			name:    "none",
			between: func(*testing.T, *Processor, *Channel) {},
			want:    "fill 0x0000=0xBBAA",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ch, store := newTestProcessor(t)
			execute(t, p, 'C', 0xAA)
			tt.between(t, p, ch)
			store.reset()

			execute(t, p, 'c', 0xBB)
			if want := []string{tt.want}; !reflect.DeepEqual(store.calls, want) {
				t.Errorf("store calls = %v, want %v", store.calls, want)
			}
		})
	}
}

func TestEraseFlash(t *testing.T) {
	p, _, store := newTestProcessor(t)
	execute(t, p, 'e')

	part := nvm.ATmega16U2
	if got := len(store.calls); got != 2*int(part.Pages()) {
		t.Fatalf("store calls = %d, want %d", got, 2*part.Pages())
	}
	if store.calls[0] != "erase 0x0000" || store.calls[1] != "write 0x0000" {
		t.Errorf("first page calls = %v", store.calls[:2])
	}
	if last := store.calls[len(store.calls)-1]; last != "write 0x2F80" {
		t.Errorf("last call = %q, want write 0x2F80", last)
	}
}

func TestWriteLockBits(t *testing.T) {
	p, _, store := newTestProcessor(t)
	execute(t, p, 'l', 0x0C)
	if got := store.ReadFuse(nvm.FuseLock); got != 0xF3 {
		t.Errorf("lock = 0x%02X, want 0xF3", got)
	}
}

func TestDisabledFeatures(t *testing.T) {
	tests := []struct {
		name     string
		features Features
		cmd      byte
		params   []byte
	}{
		{"block", FeatureAll &^ FeatureBlock, 'b', nil},
		{"block read", FeatureAll &^ FeatureBlock, 'g', nil},
		{"flash byte", FeatureAll &^ FeatureFlashByte, 'c', nil},
		{"eeprom byte", FeatureAll &^ FeatureEEPROMByte, 'd', nil},
		{"lock write", FeatureAll &^ FeatureLockWrite, 'l', nil},
		{"fuse read", FeatureAll &^ FeatureFuseRead, 'F', nil},
		{"compat", FeatureNone, 'x', nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, store := newTestProcessor(t, WithFeatures(tt.features))
			if got := execute(t, p, tt.cmd, tt.params...); !bytes.Equal(got, []byte{'?'}) {
				t.Errorf("response = %q, want '?'", got)
			}
			if len(store.calls) != 0 {
				t.Errorf("store touched: %v", store.calls)
			}
		})
	}

	p, _, _ := newTestProcessor(t, WithFeatures(FeatureNone))
	if got := execute(t, p, 'S'); string(got) != DefaultIdentifier {
		t.Errorf("core command disabled: %q", got)
	}
}

func TestFeaturesParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Features
		wantErr bool
	}{
		{"all", FeatureAll, false},
		{"none", FeatureNone, false},
		{"block, eeprom-byte", FeatureBlock | FeatureEEPROMByte, false},
		{"all,-lock-write", FeatureAll &^ FeatureLockWrite, false},
		{"", FeatureNone, false},
		{"turbo", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseFeatures(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFeatures(%q) = %v, %v", tt.in, got, err)
		}
	}
	if s := (FeatureBlock | FeatureCompat).String(); s != "block,compat" {
		t.Errorf("String() = %q", s)
	}
}
