package usb

import (
	"errors"
	"fmt"

	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/util"
)

var usbLogger = util.NewLogger("[USB] ", util.LogLevelDebug)

// ErrUnroutable means no recipient or handler exists for a request.
var ErrUnroutable = errors.New("unroutable request")

// Phy is the controller side a device answers through.
type Phy interface {
	SendOnEndpoint(endpoint uint8, data []byte) error
	StallEP0() error
	AckStatusStage() error
}

// Observer sees every request the device routed successfully.
type Observer interface {
	ObserveRequest(request Request)
}

type Device struct {
	BcdUSB         uint16
	Class          uint8
	Subclass       uint8
	Protocol       uint8
	MaxPacketSize0 uint8
	VendorID       uint16
	ProductID      uint16
	DeviceRevision uint16
	Manufacturer   string
	Product        string
	SerialNumber   string
	Configurations []*Configuration

	// DescriptorHandlers serve GET_DESCRIPTOR types beyond the standard ones.
	DescriptorHandlers map[DescriptorType]func() []byte
	ClassHandlers      Handlers
	VendorHandlers     Handlers

	phy      Phy
	ctx      *fuzz.Context
	observer Observer
	strings  []string

	address       uint8
	configuration *Configuration
	alternates    map[uint8]uint8
	configured    bool
	done          bool
}

func NewDevice(phy Phy, ctx *fuzz.Context) *Device {
	return &Device{
		BcdUSB:             0x0200,
		MaxPacketSize0:     64,
		DeviceRevision:     0x0001,
		DescriptorHandlers: map[DescriptorType]func() []byte{},
		ClassHandlers:      Handlers{},
		VendorHandlers:     Handlers{},
		phy:                phy,
		ctx:                ctx,
		alternates:         map[uint8]uint8{},
	}
}

func (device *Device) Context() *fuzz.Context {
	return device.ctx
}

func (device *Device) SetObserver(observer Observer) {
	device.observer = observer
}

func (device *Device) Address() uint8 {
	return device.address
}

// Configured reports whether the host has issued SET_CONFIGURATION.
func (device *Device) Configured() bool {
	return device.configured
}

// Finish ends the run after the current poll.
func (device *Device) Finish() {
	device.done = true
}

func (device *Device) Done() bool {
	return device.done
}

// Send writes data to an IN endpoint, or to EP0 for control replies.
func (device *Device) Send(endpoint uint8, data []byte) error {
	return device.phy.SendOnEndpoint(endpoint, data)
}

// Reply answers a control IN request, truncated to what the host asked for.
func (device *Device) Reply(request Request, data []byte) error {
	if len(data) > int(request.WLength) {
		data = data[:request.WLength]
	}
	return device.phy.SendOnEndpoint(0, data)
}

func (device *Device) Ack() error {
	return device.phy.AckStatusStage()
}

func (device *Device) Stall() error {
	return device.phy.StallEP0()
}

func (device *Device) activeConfiguration() *Configuration {
	if device.configuration != nil {
		return device.configuration
	}
	if len(device.Configurations) > 0 {
		return device.Configurations[0]
	}
	return nil
}

// Interface returns the interface with the given number at its selected
// alternate setting.
func (device *Device) Interface(number uint8) *Interface {
	configuration := device.activeConfiguration()
	if configuration == nil {
		return nil
	}
	var first *Interface
	for _, iface := range configuration.Interfaces {
		if iface.Number != number {
			continue
		}
		if iface.AlternateSetting == device.alternates[number] {
			return iface
		}
		if first == nil {
			first = iface
		}
	}
	return first
}

func (device *Device) hasAlternate(number uint8, alternate uint8) bool {
	configuration := device.activeConfiguration()
	if configuration == nil {
		return false
	}
	for _, iface := range configuration.Interfaces {
		if iface.Number == number && iface.AlternateSetting == alternate {
			return true
		}
	}
	return false
}

func (device *Device) Endpoint(number uint8) *Endpoint {
	configuration := device.activeConfiguration()
	if configuration == nil {
		return nil
	}
	for _, iface := range configuration.Interfaces {
		if iface.AlternateSetting != device.alternates[iface.Number] {
			continue
		}
		for _, endpoint := range iface.Endpoints {
			if endpoint.Number == number&0x0f {
				return endpoint
			}
		}
	}
	return nil
}

func (device *Device) HandleSetup(packet []byte) error {
	request, err := ParseRequest(packet)
	if err != nil {
		return err
	}
	usbLogger.Printf("SETUP: %s", request)
	handler := device.route(request)
	if handler == nil {
		return device.unroutable(request)
	}
	if err := handler(request); err != nil {
		if errors.Is(err, ErrUnroutable) {
			return device.unroutable(request)
		}
		return err
	}
	if device.observer != nil {
		device.observer.ObserveRequest(request)
	}
	return nil
}

func (device *Device) route(request Request) RequestHandler {
	var standard, class, vendor Handlers
	switch request.Recipient() {
	case RecipientDevice:
		standard, class, vendor = device.standardHandlers(), device.ClassHandlers, device.VendorHandlers
	case RecipientInterface:
		iface := device.Interface(uint8(request.WIndex & 0xff))
		if iface == nil {
			return nil
		}
		standard, class, vendor = device.interfaceStandardHandlers(iface), iface.ClassHandlers, iface.VendorHandlers
	case RecipientEndpoint:
		endpoint := device.Endpoint(uint8(request.WIndex & 0x0f))
		if endpoint == nil {
			return nil
		}
		standard, class = device.endpointStandardHandlers(), endpoint.ClassHandlers
	case RecipientOther:
		iface := device.Interface(0)
		if iface == nil {
			return nil
		}
		class, vendor = iface.ClassHandlers, iface.VendorHandlers
	default:
		return nil
	}
	var table Handlers
	switch request.Type() {
	case RequestTypeStandard:
		table = standard
	case RequestTypeClass:
		table = class
	case RequestTypeVendor:
		table = vendor
	case RequestTypeReserved:
		return nil
	}
	return table[request.BRequest]
}

func (device *Device) unroutable(request Request) error {
	if device.ctx.Mode().StallsUnroutable() {
		usbLogger.Printf("Stalling unroutable request %s", request)
		return device.Stall()
	}
	usbLogger.Printf("Unroutable request %s ends the run", request)
	device.done = true
	return nil
}

func (device *Device) HandleData(endpoint uint8, data []byte) error {
	target := device.Endpoint(endpoint)
	if target == nil || target.OnData == nil {
		usbLogger.Printf("Dropping %d bytes on endpoint %d", len(data), endpoint)
		return nil
	}
	return target.OnData(data)
}

func (device *Device) HandleBufferAvailable(endpoint uint8) error {
	target := device.Endpoint(endpoint)
	if target == nil || target.OnBufferAvailable == nil {
		return nil
	}
	return target.OnBufferAvailable()
}

func (device *Device) standardHandlers() Handlers {
	return Handlers{
		uint8(RequestGetStatus):        device.getStatus,
		uint8(RequestClearFeature):     device.ackRequest,
		uint8(RequestSetFeature):       device.ackRequest,
		uint8(RequestSetAddress):       device.setAddress,
		uint8(RequestGetDescriptor):    device.getDescriptor,
		uint8(RequestSetDescriptor):    device.stallRequest,
		uint8(RequestGetConfiguration): device.getConfiguration,
		uint8(RequestSetConfiguration): device.setConfiguration,
	}
}

func (device *Device) interfaceStandardHandlers(iface *Interface) Handlers {
	return Handlers{
		uint8(RequestGetStatus):    func(request Request) error { return device.Reply(request, []byte{0, 0}) },
		uint8(RequestClearFeature): device.ackRequest,
		uint8(RequestSetFeature):   device.ackRequest,
		uint8(RequestGetDescriptor): func(request Request) error {
			descriptorType, _ := request.DescriptorTypeAndIndex()
			handler, ok := iface.DescriptorHandlers[descriptorType]
			if !ok {
				return ErrUnroutable
			}
			return device.Reply(request, handler())
		},
		uint8(RequestGetInterface): func(request Request) error {
			return device.Reply(request, []byte{device.alternates[iface.Number]})
		},
		uint8(RequestSetInterface): func(request Request) error {
			alternate := uint8(request.WValue)
			if !device.hasAlternate(iface.Number, alternate) {
				return ErrUnroutable
			}
			device.alternates[iface.Number] = alternate
			return device.Ack()
		},
	}
}

func (device *Device) endpointStandardHandlers() Handlers {
	return Handlers{
		uint8(RequestGetStatus):    func(request Request) error { return device.Reply(request, []byte{0, 0}) },
		uint8(RequestClearFeature): device.ackRequest,
		uint8(RequestSetFeature):   device.ackRequest,
		uint8(RequestSynchFrame):   func(request Request) error { return device.Reply(request, []byte{0, 0}) },
	}
}

func (device *Device) ackRequest(request Request) error {
	return device.Ack()
}

func (device *Device) stallRequest(request Request) error {
	return device.Stall()
}

func (device *Device) getStatus(request Request) error {
	return device.Reply(request, []byte{0x01, 0x00})
}

func (device *Device) setAddress(request Request) error {
	device.address = uint8(request.WValue & 0x7f)
	usbLogger.Printf("SET_ADDRESS: %d", device.address)
	return device.Ack()
}

func (device *Device) getConfiguration(request Request) error {
	value := uint8(0)
	if device.configuration != nil {
		value = device.configuration.Value
	}
	return device.Reply(request, []byte{value})
}

func (device *Device) setConfiguration(request Request) error {
	value := uint8(request.WValue & 0xff)
	for _, configuration := range device.Configurations {
		if configuration.Value == value {
			device.configuration = configuration
			device.configured = true
			usbLogger.Printf("SET_CONFIGURATION: %d", value)
			return device.Ack()
		}
	}
	if value == 0 {
		device.configuration = nil
		return device.Ack()
	}
	return ErrUnroutable
}

// DescriptorBytes resolves a descriptor the way GET_DESCRIPTOR does.
func (device *Device) DescriptorBytes(descriptorType DescriptorType, index uint8) ([]byte, error) {
	switch descriptorType {
	case DescriptorDevice:
		return device.DeviceDescriptorBytes(), nil
	case DescriptorConfiguration:
		if int(index) >= len(device.Configurations) {
			return nil, fmt.Errorf("no configuration %d: %w", index, ErrUnroutable)
		}
		return device.Configurations[index].Bytes(device), nil
	case DescriptorString:
		data, ok := device.stringBytes(index)
		if !ok {
			return nil, fmt.Errorf("no string %d: %w", index, ErrUnroutable)
		}
		return data, nil
	case DescriptorDeviceQualifier:
		return device.qualifierBytes(), nil
	}
	if handler, ok := device.DescriptorHandlers[descriptorType]; ok {
		return handler(), nil
	}
	return nil, fmt.Errorf("no descriptor %s: %w", descriptorType, ErrUnroutable)
}

func (device *Device) getDescriptor(request Request) error {
	descriptorType, index := request.DescriptorTypeAndIndex()
	data, err := device.DescriptorBytes(descriptorType, index)
	if err != nil {
		return err
	}
	usbLogger.Printf("GET_DESCRIPTOR %s %d: %d bytes", descriptorType, index, len(data))
	return device.Reply(request, data)
}
