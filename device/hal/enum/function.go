package enum

import (
	"fmt"

	"github.com/ardnew/hoodloader/device/hal"
	"github.com/ardnew/hoodloader/pkg"
)

// Identity names the device to the host.
type Identity struct {
	VendorID     uint16
	ProductID    uint16
	Release      uint16 // BCD
	Manufacturer string
	Product      string
	Serial       string // empty omits the serial number string
}

// DefaultIdentity is the identity of an Uno's 16u2 running HoodLoader2.
var DefaultIdentity = Identity{
	VendorID:     0x2341,
	ProductID:    0x0043,
	Release:      0x0201,
	Manufacturer: "NicoHood",
	Product:      "HoodLoader2 Uno",
}

// String indices.
const (
	StringLanguage     = 0
	StringManufacturer = 1
	StringProduct      = 2
	StringSerial       = 3
)

// ConfigurationValue is the value of the only configuration.
const ConfigurationValue = 1

// Function holds the descriptors of the CDC-ACM function.
type Function struct {
	Device  DeviceDescriptor
	config  []byte
	strings [][]byte
}

// NewFunction builds the descriptor set for id with bulk endpoints of
// bankSize bytes.
func NewFunction(id Identity, bankSize int) *Function {
	f := &Function{
		Device: DeviceDescriptor{
			USBVersion:        0x0110,
			DeviceClass:       ClassCDC,
			MaxPacketSize0:    8,
			VendorID:          id.VendorID,
			ProductID:         id.ProductID,
			DeviceVersion:     id.Release,
			ManufacturerIndex: StringManufacturer,
			ProductIndex:      StringProduct,
			NumConfigurations: 1,
		},
	}
	if id.Serial != "" {
		f.Device.SerialNumberIndex = StringSerial
	}

	var lang [4]byte
	n := LanguageDescriptorTo(lang[:], LangIDUSEnglish)
	f.strings = append(f.strings, lang[:n])
	for _, s := range []string{id.Manufacturer, id.Product, id.Serial} {
		var buf [255]byte
		n := StringDescriptorTo(buf[:], s)
		f.strings = append(f.strings, append([]byte{}, buf[:n]...))
	}

	f.config = f.buildConfiguration(bankSize)
	return f
}

func (f *Function) buildConfiguration(bankSize int) []byte {
	var buf [128]byte
	n := ConfigurationDescriptorSize

	comm := InterfaceDescriptor{
		InterfaceNumber:   hal.ControlInterface,
		NumEndpoints:      1,
		InterfaceClass:    ClassCDC,
		InterfaceSubClass: SubclassACM,
		InterfaceProtocol: ProtocolATV250,
	}
	n += comm.MarshalTo(buf[n:])

	// Header, ACM and union functional descriptors.
	n += copy(buf[n:], []byte{5, DescriptorTypeCSInterface, FunctionalHeader, 0x10, 0x01})
	n += copy(buf[n:], []byte{4, DescriptorTypeCSInterface, FunctionalACM, 0x06})
	n += copy(buf[n:], []byte{5, DescriptorTypeCSInterface, FunctionalUnion,
		hal.ControlInterface, hal.ControlInterface + 1})

	notify := EndpointDescriptor{
		EndpointAddress: hal.EndpointNotify,
		Attributes:      EndpointInterrupt,
		MaxPacketSize:   8,
		Interval:        0xFF,
	}
	n += notify.MarshalTo(buf[n:])

	data := InterfaceDescriptor{
		InterfaceNumber: hal.ControlInterface + 1,
		NumEndpoints:    2,
		InterfaceClass:  ClassCDCData,
	}
	n += data.MarshalTo(buf[n:])
	for _, addr := range []uint8{hal.EndpointOUT, hal.EndpointIN} {
		ep := EndpointDescriptor{
			EndpointAddress: addr,
			Attributes:      EndpointBulk,
			MaxPacketSize:   uint16(bankSize),
			Interval:        0x05,
		}
		n += ep.MarshalTo(buf[n:])
	}

	header := ConfigurationDescriptor{
		TotalLength:        uint16(n),
		NumInterfaces:      2,
		ConfigurationValue: ConfigurationValue,
		Attributes:         ConfigAttrBusPowered,
		MaxPower:           50, // 100 mA
	}
	header.MarshalTo(buf[:])
	return append([]byte{}, buf[:n]...)
}

// Configuration returns the full configuration descriptor.
func (f *Function) Configuration() []byte {
	return f.config
}

// StringDescriptor returns string descriptor i, or nil if it does not exist.
func (f *Function) StringDescriptor(i uint8) []byte {
	if int(i) >= len(f.strings) {
		return nil
	}
	if i == StringSerial && f.Device.SerialNumberIndex == 0 {
		return nil
	}
	return f.strings[i]
}

// BulkEndpoints returns the OUT and IN endpoint descriptors of a
// configuration descriptor set.
func BulkEndpoints(config []byte) (out, in EndpointDescriptor, err error) {
	var found int
	Walk(config, func(typ uint8, desc []byte) bool {
		if typ != DescriptorTypeEndpoint {
			return true
		}
		var ep EndpointDescriptor
		if ParseEndpointDescriptor(desc, &ep) != nil || ep.Attributes&0x03 != EndpointBulk {
			return true
		}
		if ep.EndpointAddress&0x80 != 0 {
			in = ep
		} else {
			out = ep
		}
		found++
		return found < 2
	})
	if found < 2 {
		return out, in, fmt.Errorf("%w: no bulk endpoint pair", pkg.ErrProtocol)
	}
	return out, in, nil
}
