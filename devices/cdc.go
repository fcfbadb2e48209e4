package devices

import (
	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
)

const (
	cdcRequestSetLineCoding       uint8 = 0x20
	cdcRequestGetLineCoding       uint8 = 0x21
	cdcRequestSetControlLineState uint8 = 0x22
	cdcRequestSendBreak           uint8 = 0x23

	cdcSubtypeHeader         uint8 = 0x00
	cdcSubtypeCallManagement uint8 = 0x01
	cdcSubtypeACM            uint8 = 0x02
	cdcSubtypeUnion          uint8 = 0x06

	cdcDataClass uint8 = 0x0a
	cdcBulkIn          = 2
)

// 115200 baud, one stop bit, no parity, eight data bits.
var cdcDefaultLineCoding = []byte{0x00, 0xc2, 0x01, 0x00, 0x00, 0x00, 0x08}

type cdc struct {
	device     *usb.Device
	ctx        *fuzz.Context
	lineCoding []byte
}

// newCDC builds an ACM serial port that echoes whatever the host writes.
func newCDC(phy usb.Phy, ctx *fuzz.Context, target fuzz.Target, options Options) (*Instance, error) {
	device := usb.NewDevice(phy, ctx)
	device.Class = target.Class
	device.VendorID = 0x2548
	device.ProductID = 0x1001
	device.Manufacturer = "Vendor"
	device.Product = "USB Serial"
	device.SerialNumber = "0123456789"
	serial := &cdc{device: device, ctx: ctx, lineCoding: append([]byte{}, cdcDefaultLineCoding...)}

	communication := &usb.Interface{
		Number:      0,
		Class:       target.Class,
		Subclass:    target.Subclass,
		Protocol:    target.Protocol,
		Name:        "CDC ACM",
		Endpoints:   []*usb.Endpoint{interruptIn(3, 8, 255)},
		Descriptors: []usb.Descriptor{usb.DescriptorFunc(serial.functionalDescriptors)},
		ClassHandlers: usb.Handlers{
			cdcRequestSetLineCoding:       serial.setLineCoding,
			cdcRequestGetLineCoding:       replyHandler(device, serial.currentLineCoding),
			cdcRequestSetControlLineState: ackHandler(device),
			cdcRequestSendBreak:           ackHandler(device),
		},
	}
	out := bulkOut(1)
	out.OnData = serial.echo
	data := &usb.Interface{
		Number:    1,
		Class:     cdcDataClass,
		Name:      "CDC Data",
		Endpoints: []*usb.Endpoint{out, bulkIn(cdcBulkIn)},
	}
	device.Configurations = singleConfiguration(communication, data)
	return &Instance{Device: device}, nil
}

func (serial *cdc) functionalDescriptors() []byte {
	classInterface := uint8(usb.DescriptorClassInterface)
	return fuzz.NewWriter(serial.ctx).
		U8(fuzz.FieldCDCHeaderLength, 5).
		Raw([]byte{classInterface, cdcSubtypeHeader}).
		U16(fuzz.FieldCDCHeaderBcdCDC, 0x0110).
		Raw([]byte{0x05, classInterface, cdcSubtypeCallManagement}).
		U8(fuzz.FieldCDCCallManagementCapabilities, 0x00).
		U8(fuzz.FieldCDCCallManagementDataInterface, 0x01).
		Raw([]byte{0x04, classInterface, cdcSubtypeACM}).
		U8(fuzz.FieldCDCACMCapabilities, 0x02).
		Raw([]byte{0x05, classInterface, cdcSubtypeUnion}).
		U8(fuzz.FieldCDCUnionMasterInterface, 0x00).
		U8(fuzz.FieldCDCUnionSlaveInterface, 0x01).
		Bytes()
}

func (serial *cdc) currentLineCoding() []byte {
	return serial.ctx.Bytes(fuzz.FieldCDCLineCoding, serial.lineCoding)
}

// setLineCoding acks the request. The seven coding bytes arrive in a data
// stage the controller does not surface, so the default stays in place.
func (serial *cdc) setLineCoding(request usb.Request) error {
	return serial.device.Ack()
}

func (serial *cdc) echo(data []byte) error {
	devicesLogger.Printf("Serial: %q", data)
	return serial.device.Send(cdcBulkIn, data)
}
