package sim

import (
	"github.com/ardnew/hoodloader/device/class/cdc"
	"github.com/ardnew/hoodloader/device/hal"
)

// SetLineCodingRequest builds a SET_LINE_CODING setup packet.
func SetLineCodingRequest() hal.SetupPacket {
	return hal.SetupPacket{
		RequestType: cdc.RequestTypeClassInterfaceOut,
		Request:     cdc.RequestSetLineCoding,
		Index:       hal.ControlInterface,
		Length:      cdc.LineCodingSize,
	}
}

// GetLineCodingRequest builds a GET_LINE_CODING setup packet.
func GetLineCodingRequest() hal.SetupPacket {
	return hal.SetupPacket{
		RequestType: cdc.RequestTypeClassInterfaceIn,
		Request:     cdc.RequestGetLineCoding,
		Index:       hal.ControlInterface,
		Length:      cdc.LineCodingSize,
	}
}

// ControlLineStateRequest builds a SET_CONTROL_LINE_STATE setup packet.
func ControlLineStateRequest(dtr, rts bool) hal.SetupPacket {
	var v uint16
	if dtr {
		v |= cdc.ControlLineDTR
	}
	if rts {
		v |= cdc.ControlLineRTS
	}
	return hal.SetupPacket{
		RequestType: cdc.RequestTypeClassInterfaceOut,
		Request:     cdc.RequestSetControlLineState,
		Value:       v,
		Index:       hal.ControlInterface,
	}
}
