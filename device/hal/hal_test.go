package hal

import "testing"

func TestSetupPacketRoundTrip(t *testing.T) {
	in := SetupPacket{
		RequestType: 0x21,
		Request:     0x22,
		Value:       0x0001,
		Index:       0x0000,
		Length:      0,
	}
	var buf [SetupPacketSize]byte
	if n := in.MarshalTo(buf[:]); n != SetupPacketSize {
		t.Fatalf("MarshalTo() = %d, want %d", n, SetupPacketSize)
	}
	var out SetupPacket
	if !ParseSetupPacket(buf[:], &out) {
		t.Fatal("ParseSetupPacket() = false")
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
	if ParseSetupPacket(buf[:4], &out) {
		t.Error("ParseSetupPacket(short) = true")
	}
}

func TestSetupPacketDirection(t *testing.T) {
	tests := []struct {
		reqType uint8
		want    bool
	}{
		{0xA1, true},
		{0x21, false},
		{0x80, true},
	}
	for _, tt := range tests {
		s := SetupPacket{RequestType: tt.reqType}
		if got := s.IsDeviceToHost(); got != tt.want {
			t.Errorf("IsDeviceToHost(0x%02X) = %v, want %v", tt.reqType, got, tt.want)
		}
	}
}

func TestStateActive(t *testing.T) {
	tests := []struct {
		state State
		want  bool
	}{
		{StateUnattached, false},
		{StatePowered, true},
		{StateDefault, true},
		{StateAddressed, true},
		{StateConfigured, true},
		{StateSuspended, false},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := tt.state.Active(); got != tt.want {
				t.Errorf("Active() = %v, want %v", got, tt.want)
			}
		})
	}
	if got := State(42).String(); got != "State(42)" {
		t.Errorf("String() = %q", got)
	}
}
