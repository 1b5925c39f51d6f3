package programmer

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/ardnew/hoodloader/pkg"
)

// SentinelBaud is the line speed that switches the device into programmer
// mode.
const SentinelBaud = 57600

// serialReadTimeout bounds one Read of an opened port.
const serialReadTimeout = 100 * time.Millisecond

// OpenSerial opens the virtual serial port name at the sentinel baud rate.
// Opening the port is what selects programmer mode on the device.
func OpenSerial(name string) (serial.Port, error) {
	mode := &serial.Mode{
		BaudRate: SentinelBaud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(serialReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}
	pkg.LogInfo(pkg.ComponentClient, "programmer port opened", "port", name, "baud", SentinelBaud)
	return port, nil
}
