package devices

import (
	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
)

const (
	hubPortCount uint8 = 4
	// Local power good, no over-current, and for ports: powered.
	hubStatusDefault uint32 = 0x00000100
)

type hub struct {
	device *usb.Device
	ctx    *fuzz.Context
}

// newHub builds a four port hub with nothing attached to its ports.
func newHub(phy usb.Phy, ctx *fuzz.Context, target fuzz.Target, options Options) (*Instance, error) {
	device := usb.NewDevice(phy, ctx)
	device.Class = target.Class
	device.Subclass = target.Subclass
	device.Protocol = target.Protocol
	device.VendorID = 0x05e3
	device.ProductID = 0x0608
	device.Manufacturer = "Genesys Logic"
	device.Product = "USB2.0 Hub"
	h := &hub{device: device, ctx: ctx}

	device.DescriptorHandlers[usb.DescriptorHub] = h.hubDescriptor
	handlers := usb.Handlers{
		uint8(usb.RequestGetStatus):     replyHandler(device, h.status),
		uint8(usb.RequestClearFeature):  ackHandler(device),
		uint8(usb.RequestSetFeature):    ackHandler(device),
		uint8(usb.RequestGetDescriptor): h.getDescriptor,
	}
	device.ClassHandlers = handlers
	iface := &usb.Interface{
		Class:         target.Class,
		Subclass:      target.Subclass,
		Protocol:      target.Protocol,
		Name:          "Hub",
		Endpoints:     []*usb.Endpoint{interruptIn(1, 1, 12)},
		ClassHandlers: handlers,
	}
	device.Configurations = singleConfiguration(iface)
	return &Instance{Device: device}, nil
}

func (h *hub) hubDescriptor() []byte {
	return fuzz.NewWriter(h.ctx).
		U8(fuzz.FieldHubLength, 9).
		U8(fuzz.FieldHubDescriptorType, uint8(usb.DescriptorHub)).
		U8(fuzz.FieldHubNumPorts, hubPortCount).
		U16(fuzz.FieldHubCharacteristics, 0x00e0).
		U8(fuzz.FieldHubPowerOnToPowerGood, 0x32).
		U8(fuzz.FieldHubControllerCurrent, 0x64).
		U8(fuzz.FieldHubDeviceRemovable, 0x00).
		U8(fuzz.FieldHubPortPowerControlMask, 0xff).
		Bytes()
}

func (h *hub) status() []byte {
	return h.ctx.U32(fuzz.FieldHubStatus, hubStatusDefault)
}

func (h *hub) getDescriptor(request usb.Request) error {
	descriptorType, _ := request.DescriptorTypeAndIndex()
	if descriptorType != usb.DescriptorHub && descriptorType != 0 {
		return usb.ErrUnroutable
	}
	return h.device.Reply(request, h.hubDescriptor())
}
