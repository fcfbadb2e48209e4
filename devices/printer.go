package devices

import (
	"bytes"

	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
)

const (
	printerRequestGetDeviceID   uint8 = 0x00
	printerRequestGetPortStatus uint8 = 0x01
	printerRequestSoftReset     uint8 = 0x02

	// Paper not empty, selected, no error.
	printerStatusReady uint8 = 0x18

	printerDeviceID = "MFG:Hewlett-Packard;CMD:PJL,PCL,POSTSCRIPT;MDL:HP LaserJet 4200;CLS:PRINTER;DES:Hewlett-Packard LaserJet 4200;"
)

// Markers that end a print job.
var printerJobTrailers = [][]byte{[]byte("@PJL EOJ"), []byte("%%EOF")}

type printer struct {
	device *usb.Device
	ctx    *fuzz.Context
	job    bytes.Buffer
}

func newPrinter(phy usb.Phy, ctx *fuzz.Context, target fuzz.Target, options Options) (*Instance, error) {
	device := usb.NewDevice(phy, ctx)
	device.VendorID = 0x03f0
	device.ProductID = 0x4117
	device.Manufacturer = "Hewlett-Packard"
	device.Product = "HP LaserJet 4200"
	device.SerialNumber = "00CNDF123456"
	p := &printer{device: device, ctx: ctx}
	out := bulkOut(1)
	out.OnData = p.handleData
	handlers := usb.Handlers{
		printerRequestGetDeviceID:   replyHandler(device, p.deviceID),
		printerRequestGetPortStatus: replyHandler(device, func() []byte { return ctx.U8(fuzz.FieldPrinterPortStatus, printerStatusReady) }),
		printerRequestSoftReset:     ackHandler(device),
	}
	iface := &usb.Interface{
		Class:          target.Class,
		Subclass:       target.Subclass,
		Protocol:       target.Protocol,
		Name:           "Printer",
		Endpoints:      []*usb.Endpoint{out, bulkIn(2)},
		ClassHandlers:  handlers,
		VendorHandlers: handlers,
	}
	device.Configurations = singleConfiguration(iface)
	return &Instance{Device: device}, nil
}

// deviceID is the IEEE 1284 device ID: a big endian length that counts
// itself, then the key/value string.
func (p *printer) deviceID() []byte {
	id := []byte(printerDeviceID)
	return fuzz.NewWriter(p.ctx).
		U16BE(fuzz.FieldPrinterDeviceIDLength, uint16(len(id)+2)).
		Field(fuzz.FieldPrinterDeviceID, id).
		Bytes()
}

func (p *printer) handleData(data []byte) error {
	p.job.Write(data)
	for _, trailer := range printerJobTrailers {
		if bytes.Contains(p.job.Bytes(), trailer) {
			devicesLogger.Printf("Print job complete: %d bytes", p.job.Len())
			p.device.Finish()
			return nil
		}
	}
	return nil
}
