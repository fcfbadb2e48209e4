package devices

import (
	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
)

const (
	hidRequestGetReport   uint8 = 0x01
	hidRequestGetIdle     uint8 = 0x02
	hidRequestGetProtocol uint8 = 0x03
	hidRequestSetReport   uint8 = 0x09
	hidRequestSetIdle     uint8 = 0x0a
	hidRequestSetProtocol uint8 = 0x0b

	hidModifierLeftShift uint8 = 0x02

	defaultKeystrokes = "vusb\n"
)

// Boot protocol keyboard: 8 modifier bits, a reserved byte and one key.
var keyboardReportDescriptor = []byte{
	0x05, 0x01, 0x09, 0x06, 0xa1, 0x01, 0x05, 0x07,
	0x19, 0xe0, 0x29, 0xe7, 0x15, 0x00, 0x25, 0x01,
	0x75, 0x01, 0x95, 0x08, 0x81, 0x02, 0x95, 0x01,
	0x75, 0x08, 0x81, 0x01, 0x19, 0x00, 0x29, 0x65,
	0x15, 0x00, 0x25, 0x65, 0x75, 0x08, 0x95, 0x01,
	0x81, 0x00, 0xc0,
}

type keyboard struct {
	device  *usb.Device
	ctx     *fuzz.Context
	reports [][]byte
}

func newKeyboard(phy usb.Phy, ctx *fuzz.Context, target fuzz.Target, options Options) (*Instance, error) {
	device := usb.NewDevice(phy, ctx)
	device.VendorID = 0x610b
	device.ProductID = 0x4653
	device.Manufacturer = "Dell"
	device.Product = "USB Keyboard"
	device.SerialNumber = "00001"
	text := options.Keystrokes
	if text == "" {
		text = defaultKeystrokes
	}
	kb := &keyboard{device: device, ctx: ctx, reports: keystrokeReports(text)}
	endpoint := interruptIn(3, 8, 10)
	endpoint.OnBufferAvailable = kb.bufferAvailable
	iface := &usb.Interface{
		Class:       target.Class,
		Subclass:    target.Subclass,
		Protocol:    target.Protocol,
		Name:        "Keyboard",
		Endpoints:   []*usb.Endpoint{endpoint},
		Descriptors: []usb.Descriptor{usb.DescriptorFunc(kb.hidDescriptor)},
		DescriptorHandlers: map[usb.DescriptorType]func() []byte{
			usb.DescriptorHID:       kb.hidDescriptor,
			usb.DescriptorHIDReport: kb.reportDescriptor,
		},
		ClassHandlers: usb.Handlers{
			hidRequestGetReport:   replyHandler(device, func() []byte { return ctx.Bytes(fuzz.FieldHIDReport, make([]byte, 8)) }),
			hidRequestGetIdle:     replyHandler(device, func() []byte { return []byte{0} }),
			hidRequestGetProtocol: replyHandler(device, func() []byte { return []byte{1} }),
			hidRequestSetReport:   ackHandler(device),
			hidRequestSetIdle:     ackHandler(device),
			hidRequestSetProtocol: ackHandler(device),
		},
	}
	device.Configurations = singleConfiguration(iface)
	return &Instance{Device: device}, nil
}

func (kb *keyboard) hidDescriptor() []byte {
	return fuzz.NewWriter(kb.ctx).
		U8(fuzz.FieldHIDLength, 9).
		U8(fuzz.FieldHIDDescriptorType, uint8(usb.DescriptorHID)).
		U16(fuzz.FieldHIDBcdHID, 0x0110).
		U8(fuzz.FieldHIDCountryCode, 0).
		U8(fuzz.FieldHIDNumDescriptors, 1).
		U8(fuzz.FieldHIDClassDescriptorType, uint8(usb.DescriptorHIDReport)).
		U16(fuzz.FieldHIDReportLength, uint16(len(keyboardReportDescriptor))).
		Bytes()
}

func (kb *keyboard) reportDescriptor() []byte {
	return kb.ctx.Bytes(fuzz.FieldHIDReportDescriptor, keyboardReportDescriptor)
}

// bufferAvailable sends the next queued report once the host has
// configured the device, and ends the run when none are left.
func (kb *keyboard) bufferAvailable() error {
	if !kb.device.Configured() {
		return nil
	}
	if len(kb.reports) == 0 {
		kb.device.Finish()
		return nil
	}
	report := kb.reports[0]
	kb.reports = kb.reports[1:]
	return kb.device.Send(3, kb.ctx.Bytes(fuzz.FieldHIDReport, report))
}

var unshiftedUsages = map[rune]uint8{
	'\n': 0x28, '\t': 0x2b, ' ': 0x2c, '-': 0x2d, '=': 0x2e, '[': 0x2f, ']': 0x30,
	'\\': 0x31, ';': 0x33, '\'': 0x34, '`': 0x35, ',': 0x36, '.': 0x37, '/': 0x38,
}

var shiftedUsages = map[rune]uint8{
	'!': 0x1e, '@': 0x1f, '#': 0x20, '$': 0x21, '%': 0x22, '^': 0x23, '&': 0x24,
	'*': 0x25, '(': 0x26, ')': 0x27, '_': 0x2d, '+': 0x2e, '{': 0x2f, '}': 0x30,
	'|': 0x31, ':': 0x33, '"': 0x34, '~': 0x35, '<': 0x36, '>': 0x37, '?': 0x38,
}

// keyUsage maps a printable ASCII character to a HID usage and modifier.
func keyUsage(char rune) (uint8, uint8, bool) {
	switch {
	case char >= 'a' && char <= 'z':
		return 0x04 + uint8(char-'a'), 0, true
	case char >= 'A' && char <= 'Z':
		return 0x04 + uint8(char-'A'), hidModifierLeftShift, true
	case char >= '1' && char <= '9':
		return 0x1e + uint8(char-'1'), 0, true
	case char == '0':
		return 0x27, 0, true
	}
	if usage, ok := unshiftedUsages[char]; ok {
		return usage, 0, true
	}
	if usage, ok := shiftedUsages[char]; ok {
		return usage, hidModifierLeftShift, true
	}
	return 0, 0, false
}

// keystrokeReports turns text into key-down and key-up report pairs.
// Characters without a usage are skipped.
func keystrokeReports(text string) [][]byte {
	reports := [][]byte{}
	for _, char := range text {
		usage, modifier, ok := keyUsage(char)
		if !ok {
			devicesLogger.Printf("No key for %q", char)
			continue
		}
		reports = append(reports, []byte{modifier, 0, usage, 0, 0, 0, 0, 0}, make([]byte, 8))
	}
	return reports
}
