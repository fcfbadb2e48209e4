package usb

import (
	"bytes"

	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/util"
)

// Descriptor produces a class-specific descriptor block. It is called on
// every serialization so overrides apply to each fetch.
type Descriptor interface {
	Bytes() []byte
}

type DescriptorFunc func() []byte

func (f DescriptorFunc) Bytes() []byte {
	return f()
}

// RequestHandler answers one control request. Returning ErrUnroutable makes
// the device treat the request as if no handler existed.
type RequestHandler func(request Request) error

type Handlers map[uint8]RequestHandler

type Endpoint struct {
	Number        uint8
	Direction     Direction
	TransferType  TransferType
	SyncType      uint8
	UsageType     uint8
	MaxPacketSize uint16
	Interval      uint8
	// Extra is appended to the standard fields, e.g. the audio
	// bRefresh and bSynchAddress bytes.
	Extra         []byte
	Descriptors   []Descriptor
	ClassHandlers Handlers

	OnData            func(data []byte) error
	OnBufferAvailable func() error
}

func (endpoint *Endpoint) Address() uint8 {
	return uint8(endpoint.Direction)<<7 | endpoint.Number&0x0f
}

func (endpoint *Endpoint) Attributes() uint8 {
	return uint8(endpoint.TransferType)&0b11 | (endpoint.SyncType&0b11)<<2 | (endpoint.UsageType&0b11)<<4
}

func (endpoint *Endpoint) bytes(ctx *fuzz.Context) []byte {
	writer := fuzz.NewWriter(ctx).
		U8(fuzz.FieldEndpointLength, 7+uint8(len(endpoint.Extra))).
		U8(fuzz.FieldEndpointDescriptorType, uint8(DescriptorEndpoint)).
		U8(fuzz.FieldEndpointAddress, endpoint.Address()).
		U8(fuzz.FieldEndpointAttributes, endpoint.Attributes()).
		U16(fuzz.FieldEndpointMaxPacketSize, endpoint.MaxPacketSize).
		U8(fuzz.FieldEndpointInterval, endpoint.Interval).
		Raw(endpoint.Extra)
	for _, descriptor := range endpoint.Descriptors {
		writer.Raw(descriptor.Bytes())
	}
	return writer.Bytes()
}

type Interface struct {
	Number           uint8
	AlternateSetting uint8
	Class            uint8
	Subclass         uint8
	Protocol         uint8
	Name             string
	Endpoints        []*Endpoint
	// Descriptors are class-specific blocks placed between the interface
	// descriptor and its endpoints.
	Descriptors []Descriptor

	// DescriptorHandlers answer GET_DESCRIPTOR sent to the interface, keyed
	// by descriptor type.
	DescriptorHandlers map[DescriptorType]func() []byte
	ClassHandlers      Handlers
	VendorHandlers     Handlers
}

func (iface *Interface) bytes(device *Device) []byte {
	ctx := device.ctx
	writer := fuzz.NewWriter(ctx).
		U8(fuzz.FieldInterfaceLength, util.SizeOf[InterfaceDescriptor]()).
		U8(fuzz.FieldInterfaceDescriptorType, uint8(DescriptorInterface)).
		U8(fuzz.FieldInterfaceNumber, iface.Number).
		U8(fuzz.FieldInterfaceAlternateSetting, iface.AlternateSetting).
		U8(fuzz.FieldInterfaceNumEndpoints, uint8(len(iface.Endpoints))).
		U8(fuzz.FieldInterfaceClass, iface.Class).
		U8(fuzz.FieldInterfaceSubClass, iface.Subclass).
		U8(fuzz.FieldInterfaceProtocol, iface.Protocol).
		U8(fuzz.FieldInterfaceString, device.StringIndex(iface.Name))
	for _, descriptor := range iface.Descriptors {
		writer.Raw(descriptor.Bytes())
	}
	for _, endpoint := range iface.Endpoints {
		writer.Raw(endpoint.bytes(ctx))
	}
	return writer.Bytes()
}

type Configuration struct {
	Value      uint8
	Name       string
	Attributes uint8
	MaxPower   uint8
	Interfaces []*Interface
}

func (configuration *Configuration) numInterfaces() uint8 {
	numbers := map[uint8]bool{}
	for _, iface := range configuration.Interfaces {
		numbers[iface.Number] = true
	}
	return uint8(len(numbers))
}

// Bytes serializes the configuration with every interface, class block and
// endpoint it contains, in declaration order.
func (configuration *Configuration) Bytes(device *Device) []byte {
	body := new(bytes.Buffer)
	for _, iface := range configuration.Interfaces {
		body.Write(iface.bytes(device))
	}
	length := util.SizeOf[ConfigurationDescriptor]()
	return fuzz.NewWriter(device.ctx).
		U8(fuzz.FieldConfigLength, length).
		U8(fuzz.FieldConfigDescriptorType, uint8(DescriptorConfiguration)).
		U16(fuzz.FieldConfigTotalLength, uint16(int(length)+body.Len())).
		U8(fuzz.FieldConfigNumInterfaces, configuration.numInterfaces()).
		U8(fuzz.FieldConfigValue, configuration.Value).
		U8(fuzz.FieldConfigString, device.StringIndex(configuration.Name)).
		U8(fuzz.FieldConfigAttributes, configuration.Attributes).
		U8(fuzz.FieldConfigMaxPower, configuration.MaxPower).
		Raw(body.Bytes()).
		Bytes()
}

// DeviceDescriptorBytes serializes the 18-byte device descriptor.
func (device *Device) DeviceDescriptorBytes() []byte {
	return fuzz.NewWriter(device.ctx).
		U8(fuzz.FieldDeviceLength, util.SizeOf[DeviceDescriptor]()).
		U8(fuzz.FieldDeviceDescriptorType, uint8(DescriptorDevice)).
		U16(fuzz.FieldDeviceBcdUSB, device.BcdUSB).
		U8(fuzz.FieldDeviceClass, device.Class).
		U8(fuzz.FieldDeviceSubClass, device.Subclass).
		U8(fuzz.FieldDeviceProtocol, device.Protocol).
		U8(fuzz.FieldDeviceMaxPacketSize0, device.MaxPacketSize0).
		U16(fuzz.FieldDeviceVendorID, device.VendorID).
		U16(fuzz.FieldDeviceProductID, device.ProductID).
		U16(fuzz.FieldDeviceBcdDevice, device.DeviceRevision).
		U8(fuzz.FieldDeviceManufacturer, device.StringIndex(device.Manufacturer)).
		U8(fuzz.FieldDeviceProduct, device.StringIndex(device.Product)).
		U8(fuzz.FieldDeviceSerialNumber, device.StringIndex(device.SerialNumber)).
		U8(fuzz.FieldDeviceNumConfigurations, uint8(len(device.Configurations))).
		Bytes()
}

func (device *Device) qualifierBytes() []byte {
	return fuzz.NewWriter(device.ctx).
		U8(fuzz.FieldQualifierLength, 10).
		U8(fuzz.FieldQualifierDescriptorType, uint8(DescriptorDeviceQualifier)).
		U16(fuzz.FieldQualifierBcdUSB, device.BcdUSB).
		Raw([]byte{device.Class, device.Subclass, device.Protocol}).
		U8(fuzz.FieldQualifierMaxPacketSize0, device.MaxPacketSize0).
		U8(fuzz.FieldQualifierNumConfigurations, uint8(len(device.Configurations))).
		Raw([]byte{0}).
		Bytes()
}

// StringIndex interns s and returns its descriptor index. The empty string
// is index 0, meaning no string.
func (device *Device) StringIndex(s string) uint8 {
	if s == "" {
		return 0
	}
	for i, existing := range device.strings {
		if existing == s {
			return uint8(i + 1)
		}
	}
	device.strings = append(device.strings, s)
	return uint8(len(device.strings))
}

func (device *Device) stringBytes(index uint8) ([]byte, bool) {
	writer := fuzz.NewWriter(device.ctx)
	if index == 0 {
		languages := util.ToLE[uint16](LangIDEngUSA)
		return writer.
			U8(fuzz.FieldStringLength, uint8(2+len(languages))).
			U8(fuzz.FieldStringDescriptorType, uint8(DescriptorString)).
			Field(fuzz.FieldStringLanguageIDs, languages).
			Bytes(), true
	}
	if int(index) > len(device.strings) {
		return nil, false
	}
	message := util.Utf16encode(device.strings[index-1])
	return writer.
		U8(fuzz.FieldStringLength, uint8(2+len(message))).
		U8(fuzz.FieldStringDescriptorType, uint8(DescriptorString)).
		Field(fuzz.FieldStringContent, message).
		Bytes(), true
}
