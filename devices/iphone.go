package devices

import (
	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
)

const (
	iphoneRequestSetCharge   uint8 = 0x40
	iphoneRequestSetMode     uint8 = 0x45
	iphoneImageTargetClass   uint8 = 0x06
	iphoneImageTargetSubtype uint8 = 0x01
)

// newIPhone builds an Apple phone exposing a camera roll over PTP and the
// usbmux vendor interface.
func newIPhone(phy usb.Phy, ctx *fuzz.Context, target fuzz.Target, options Options) (*Instance, error) {
	device := usb.NewDevice(phy, ctx)
	device.VendorID = 0x05ac
	device.ProductID = 0x12a8
	device.DeviceRevision = 0x0510
	device.Manufacturer = "Apple Inc."
	device.Product = "iPhone"
	device.SerialNumber = "f0d3c1a5b7e9d2c4a6b8e0f1a3c5e7d9b1f3a5c7"
	device.VendorHandlers[iphoneRequestSetCharge] = ackHandler(device)
	device.VendorHandlers[iphoneRequestSetMode] = ackHandler(device)

	camera := newPTPInterface(device, ctx, 0, fuzz.Target{
		Class:    iphoneImageTargetClass,
		Subclass: iphoneImageTargetSubtype,
		Protocol: iphoneImageTargetSubtype,
	}, "iPhone")
	usbmuxOut := &usb.Endpoint{Number: 4, Direction: usb.DirectionOut, TransferType: usb.TransferBulk, MaxPacketSize: 64}
	usbmuxOut.OnData = func(data []byte) error {
		devicesLogger.Printf("usbmux: %d bytes", len(data))
		return nil
	}
	usbmux := &usb.Interface{
		Number:    1,
		Class:     target.Class,
		Subclass:  target.Subclass,
		Protocol:  target.Protocol,
		Name:      "Apple USB Multiplexor",
		Endpoints: []*usb.Endpoint{usbmuxOut},
	}
	device.Configurations = singleConfiguration(camera, usbmux)
	return &Instance{Device: device}, nil
}
