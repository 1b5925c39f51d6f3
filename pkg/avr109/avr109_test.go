package avr109

import "testing"

func TestByteAddress(t *testing.T) {
	tests := []struct {
		hi, lo byte
		want   uint32
	}{
		{0x00, 0x10, 0x20},
		{0x00, 0x00, 0x00},
		{0x01, 0x00, 0x200},
		{0xFF, 0xFF, 0x1FFFE},
	}

	for _, tt := range tests {
		if got := ByteAddress(tt.hi, tt.lo); got != tt.want {
			t.Errorf("ByteAddress(0x%02X, 0x%02X) = 0x%X, want 0x%X", tt.hi, tt.lo, got, tt.want)
		}
		hi, lo := WordAddress(tt.want)
		if hi != tt.hi || lo != tt.lo {
			t.Errorf("WordAddress(0x%X) = (0x%02X, 0x%02X), want (0x%02X, 0x%02X)",
				tt.want, hi, lo, tt.hi, tt.lo)
		}
	}
}

func TestCommandString(t *testing.T) {
	if got := CmdBlockWrite.String(); got != "BlockWrite" {
		t.Errorf("CmdBlockWrite.String() = %q", got)
	}
	if got := Command(0x99).String(); got != "Command(0x99)" {
		t.Errorf("Command(0x99).String() = %q", got)
	}
	if Command(0x99).Known() {
		t.Error("Command(0x99).Known() = true")
	}
	if !CmdSync.Known() {
		t.Error("CmdSync.Known() = false")
	}
}

func TestMemoryType(t *testing.T) {
	tests := []struct {
		m     MemoryType
		valid bool
		name  string
	}{
		{MemoryFlash, true, "flash"},
		{MemoryEEPROM, true, "eeprom"},
		{MemoryType('X'), false, "memory(0x58)"},
	}
	for _, tt := range tests {
		if tt.m.Valid() != tt.valid {
			t.Errorf("%v.Valid() = %v, want %v", tt.m, tt.m.Valid(), tt.valid)
		}
		if tt.m.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.m.String(), tt.name)
		}
	}
}
