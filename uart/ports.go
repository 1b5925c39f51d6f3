package uart

import (
	"strconv"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial device found on the system.
type PortInfo struct {
	Name    string
	USB     bool
	VID     uint16
	PID     uint16
	Serial  string
	Product string
}

// DetailedPorts lists serial devices with their USB identity where the
// platform reports one.
func DetailedPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, portInfo(d))
	}
	return ports, nil
}

func portInfo(d *enumerator.PortDetails) PortInfo {
	p := PortInfo{Name: d.Name, USB: d.IsUSB, Serial: d.SerialNumber, Product: d.Product}
	if d.IsUSB {
		p.VID = parseID(d.VID)
		p.PID = parseID(d.PID)
	}
	return p
}

// parseID parses a hexadecimal USB ID, returning 0 if it is malformed.
func parseID(s string) uint16 {
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0
	}
	return uint16(v)
}
