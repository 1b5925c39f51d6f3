package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ardnew/hoodloader/host/programmer"
	"github.com/ardnew/hoodloader/pkg/usbid"
	"github.com/ardnew/hoodloader/uart"
)

func TestImageFiles(t *testing.T) {
	data := append(bytes.Repeat([]byte{0x0C, 0x94}, 20), 0xFF, 0xFF)
	tests := []struct {
		name string
		data []byte
		want []byte
	}{
		{"image.bin", data, data},
		{"image.hex", data, data[:40]},
		{"IMAGE.HEX", data, data[:40]},
		{"trailing-data.hex", []byte{0x12, 0x34, 0x0C, 0x94, 0xAB, 0xFF, 0xFF}, []byte{0x12, 0x34, 0x0C, 0x94, 0xAB}},
		{"erased.hex", []byte{0xFF, 0xFF}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.name)
			if err := writeImage(path, tt.data); err != nil {
				t.Fatal(err)
			}
			got, err := loadImage(path)
			if err != nil {
				t.Fatalf("loadImage() error = %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("loadImage() = % X, want % X", got, tt.want)
			}
		})
	}
}

func TestLoadImageMissing(t *testing.T) {
	if _, err := loadImage(filepath.Join(t.TempDir(), "none.bin")); err == nil {
		t.Error("loadImage() error = nil for a missing file")
	}
}

func TestTargetFlagsExclusive(t *testing.T) {
	tests := []struct {
		name string
		t    targetFlags
	}{
		{"none", targetFlags{}},
		{"both", targetFlags{port: "/dev/null", bus: os.TempDir()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := tt.t.open(context.Background()); err == nil {
				t.Error("open() error = nil")
			}
		})
	}
}

func TestProgressViewPhases(t *testing.T) {
	var v progressView
	v.update(programmer.Progress{Phase: programmer.PhaseErasing})
	if v.phase != programmer.PhaseErasing || v.bar != nil {
		t.Errorf("after erase: phase %q, bar %v", v.phase, v.bar)
	}
	v.update(programmer.Progress{Phase: programmer.PhaseWriting, Done: 10, Total: 100})
	if v.bar == nil {
		t.Fatal("no bar while writing")
	}
	v.update(programmer.Progress{Phase: programmer.PhaseComplete})
	if v.bar != nil {
		t.Error("bar not finished on completion")
	}
}

func TestDescribePort(t *testing.T) {
	ids := usbid.New()
	tests := []struct {
		name string
		port uart.PortInfo
		want string
	}{
		{"native", uart.PortInfo{Name: "/dev/ttyS0"}, "-"},
		{"known", uart.PortInfo{USB: true, VID: 0x2341, PID: 0x0043, Product: "Arduino Uno"}, "2341:0043 Arduino SA Uno R3 (CDC ACM)"},
		{"unknown product", uart.PortInfo{USB: true, VID: 0x2341, PID: 0x9999, Product: "Custom"}, "2341:9999 Arduino SA Custom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describePort(ids, tt.port); got != tt.want {
				t.Errorf("describePort() = %q, want %q", got, tt.want)
			}
		})
	}
}
