package usb

import (
	"bytes"
	"fmt"

	"github.com/bulwarkid/vusb/util"
)

type RequestCode uint8

const (
	RequestGetStatus        RequestCode = 0
	RequestClearFeature     RequestCode = 1
	RequestSetFeature       RequestCode = 3
	RequestSetAddress       RequestCode = 5
	RequestGetDescriptor    RequestCode = 6
	RequestSetDescriptor    RequestCode = 7
	RequestGetConfiguration RequestCode = 8
	RequestSetConfiguration RequestCode = 9
	RequestGetInterface     RequestCode = 10
	RequestSetInterface     RequestCode = 11
	RequestSynchFrame       RequestCode = 12
)

var standardRequestDescriptions = map[RequestCode]string{
	RequestGetStatus:        "GET_STATUS",
	RequestClearFeature:     "CLEAR_FEATURE",
	RequestSetFeature:       "SET_FEATURE",
	RequestSetAddress:       "SET_ADDRESS",
	RequestGetDescriptor:    "GET_DESCRIPTOR",
	RequestSetDescriptor:    "SET_DESCRIPTOR",
	RequestGetConfiguration: "GET_CONFIGURATION",
	RequestSetConfiguration: "SET_CONFIGURATION",
	RequestGetInterface:     "GET_INTERFACE",
	RequestSetInterface:     "SET_INTERFACE",
	RequestSynchFrame:       "SYNCH_FRAME",
}

type DescriptorType uint8

const (
	DescriptorDevice                  DescriptorType = 0x01
	DescriptorConfiguration           DescriptorType = 0x02
	DescriptorString                  DescriptorType = 0x03
	DescriptorInterface               DescriptorType = 0x04
	DescriptorEndpoint                DescriptorType = 0x05
	DescriptorDeviceQualifier         DescriptorType = 0x06
	DescriptorOtherSpeedConfiguration DescriptorType = 0x07
	DescriptorInterfacePower          DescriptorType = 0x08
	DescriptorHID                     DescriptorType = 0x21
	DescriptorHIDReport               DescriptorType = 0x22
	DescriptorClassInterface          DescriptorType = 0x24
	DescriptorClassEndpoint           DescriptorType = 0x25
	DescriptorHub                     DescriptorType = 0x29
)

var descriptorTypeDescriptions = map[DescriptorType]string{
	DescriptorDevice:                  "dev",
	DescriptorConfiguration:           "cfg",
	DescriptorString:                  "str",
	DescriptorInterface:               "if",
	DescriptorEndpoint:                "ep",
	DescriptorDeviceQualifier:         "dq",
	DescriptorOtherSpeedConfiguration: "osc",
	DescriptorInterfacePower:          "pwr",
	DescriptorHID:                     "hid",
	DescriptorHIDReport:               "report",
	DescriptorClassInterface:          "cs_if",
	DescriptorClassEndpoint:           "cs_ep",
	DescriptorHub:                     "hub",
}

func (descriptor DescriptorType) String() string {
	if s, ok := descriptorTypeDescriptions[descriptor]; ok {
		return s
	}
	return fmt.Sprintf("0x%02x", uint8(descriptor))
}

type Direction uint8

const (
	DirectionOut Direction = 0
	DirectionIn  Direction = 1
)

var directionDescriptions = map[Direction]string{
	DirectionOut: "out",
	DirectionIn:  "in",
}

type RequestType uint8

const (
	RequestTypeStandard RequestType = 0
	RequestTypeClass    RequestType = 1
	RequestTypeVendor   RequestType = 2
	RequestTypeReserved RequestType = 3
)

var requestTypeDescriptions = map[RequestType]string{
	RequestTypeStandard: "standard",
	RequestTypeClass:    "class",
	RequestTypeVendor:   "vendor",
	RequestTypeReserved: "reserved",
}

type Recipient uint8

const (
	RecipientDevice    Recipient = 0
	RecipientInterface Recipient = 1
	RecipientEndpoint  Recipient = 2
	RecipientOther     Recipient = 3
)

var recipientDescriptions = map[Recipient]string{
	RecipientDevice:    "dev",
	RecipientInterface: "if",
	RecipientEndpoint:  "ep",
	RecipientOther:     "other",
}

func (recipient Recipient) String() string {
	if s, ok := recipientDescriptions[recipient]; ok {
		return s
	}
	return fmt.Sprintf("recipient%d", uint8(recipient))
}

type TransferType uint8

const (
	TransferControl     TransferType = 0
	TransferIsochronous TransferType = 1
	TransferBulk        TransferType = 2
	TransferInterrupt   TransferType = 3
)

const (
	ConfigAttributeBase         = 0b10000000
	ConfigAttributeSelfPowered  = 0b01000000
	ConfigAttributeRemoteWakeup = 0b00100000

	LangIDEngUSA = 0x0409
)

// Request is a parsed SETUP packet.
type Request struct {
	BmRequestType uint8
	BRequest      uint8
	WValue        uint16
	WIndex        uint16
	WLength       uint16
}

func ParseRequest(packet []byte) (Request, error) {
	if len(packet) < 8 {
		return Request{}, fmt.Errorf("setup packet too short: %d bytes", len(packet))
	}
	return util.ReadLE[Request](bytes.NewBuffer(packet[:8])), nil
}

func (request Request) Bytes() []byte {
	return util.ToLE(request)
}

func (request Request) String() string {
	return fmt.Sprintf("Request{ Direction: %s, Type: %s, Recipient: %s, BRequest: %s, WValue: 0x%x, WIndex: %d, WLength: %d }",
		directionDescriptions[request.Direction()],
		requestTypeDescriptions[request.Type()],
		request.Recipient(),
		request.Name(),
		request.WValue,
		request.WIndex,
		request.WLength)
}

// Name is the standard request name, or the type and number for class and
// vendor requests.
func (request Request) Name() string {
	if request.Type() == RequestTypeStandard {
		if name, ok := standardRequestDescriptions[RequestCode(request.BRequest)]; ok {
			return name
		}
	}
	return fmt.Sprintf("%s_0x%02x", requestTypeDescriptions[request.Type()], request.BRequest)
}

func (request Request) Direction() Direction {
	return Direction((request.BmRequestType >> 7) & 1)
}

func (request *Request) SetDirection(direction Direction) {
	request.BmRequestType &= ^(uint8(1) << 7)
	request.BmRequestType |= uint8(direction) << 7
}

func (request Request) Type() RequestType {
	return RequestType((request.BmRequestType >> 5) & 0b11)
}

func (request *Request) SetType(requestType RequestType) {
	request.BmRequestType &= ^(uint8(0b11) << 5)
	request.BmRequestType |= uint8(requestType) << 5
}

func (request Request) Recipient() Recipient {
	return Recipient(request.BmRequestType & 0b11111)
}

func (request *Request) SetRecipient(recipient Recipient) {
	request.BmRequestType &= ^uint8(0b11111)
	request.BmRequestType |= uint8(recipient)
}

func (request Request) DescriptorTypeAndIndex() (DescriptorType, uint8) {
	return DescriptorType(request.WValue >> 8), uint8(request.WValue & 0xFF)
}

// NewRequest builds a request from its parts.
func NewRequest(direction Direction, requestType RequestType, recipient Recipient, code uint8, value uint16, index uint16, length uint16) Request {
	request := Request{BRequest: code, WValue: value, WIndex: index, WLength: length}
	request.SetDirection(direction)
	request.SetType(requestType)
	request.SetRecipient(recipient)
	return request
}

// DeviceDescriptor is the fixed 18-byte device descriptor layout.
type DeviceDescriptor struct {
	BLength            uint8
	BDescriptorType    DescriptorType
	BcdUSB             uint16
	BDeviceClass       uint8
	BDeviceSubclass    uint8
	BDeviceProtocol    uint8
	BMaxPacketSize     uint8
	IDVendor           uint16
	IDProduct          uint16
	BcdDevice          uint16
	IManufacturer      uint8
	IProduct           uint8
	ISerialNumber      uint8
	BNumConfigurations uint8
}

type ConfigurationDescriptor struct {
	BLength             uint8
	BDescriptorType     DescriptorType
	WTotalLength        uint16
	BNumInterfaces      uint8
	BConfigurationValue uint8
	IConfiguration      uint8
	BmAttributes        uint8
	BMaxPower           uint8
}

type InterfaceDescriptor struct {
	BLength            uint8
	BDescriptorType    DescriptorType
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BNumEndpoints      uint8
	BInterfaceClass    uint8
	BInterfaceSubclass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

type EndpointDescriptor struct {
	BLength          uint8
	BDescriptorType  DescriptorType
	BEndpointAddress uint8
	BmAttributes     uint8
	WMaxPacketSize   uint16
	BInterval        uint8
}
