package devices

import (
	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
)

// vendorAnswerAll fills every request number of a table with a handler
// that returns zeros for IN requests and acks OUT requests.
func vendorAnswerAll(device *usb.Device, handlers usb.Handlers) {
	for code := 0; code <= 0xff; code++ {
		handlers[uint8(code)] = func(request usb.Request) error {
			devicesLogger.Printf("Vendor request %s", request)
			if request.Direction() == usb.DirectionIn {
				return device.Reply(request, make([]byte, request.WLength))
			}
			return device.Ack()
		}
	}
}

// newVendor builds a device with a vendor specific interface that accepts
// any vendor request, so the host driver's probing can be observed.
func newVendor(phy usb.Phy, ctx *fuzz.Context, target fuzz.Target, options Options) (*Instance, error) {
	device := usb.NewDevice(phy, ctx)
	device.Class = target.Class
	device.Subclass = target.Subclass
	device.Protocol = target.Protocol
	device.VendorID = 0x1234
	device.ProductID = 0x5678
	device.Manufacturer = "Vendor"
	device.Product = "Vendor Device"
	vendorAnswerAll(device, device.VendorHandlers)
	out := bulkOut(1)
	out.OnData = func(data []byte) error {
		devicesLogger.Printf("Vendor bulk: %x", data)
		return nil
	}
	iface := &usb.Interface{
		Class:          target.Class,
		Subclass:       target.Subclass,
		Protocol:       target.Protocol,
		Name:           "Vendor",
		Endpoints:      []*usb.Endpoint{out, bulkIn(2)},
		VendorHandlers: usb.Handlers{},
	}
	vendorAnswerAll(device, iface.VendorHandlers)
	device.Configurations = singleConfiguration(iface)
	return &Instance{Device: device}, nil
}
