package devices

import (
	"encoding/binary"
	"fmt"

	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
	"github.com/bulwarkid/vusb/util"
)

const (
	ccidPCToRDRIccPowerOn       uint8 = 0x62
	ccidPCToRDRIccPowerOff      uint8 = 0x63
	ccidPCToRDRGetSlotStatus    uint8 = 0x65
	ccidPCToRDRXfrBlock         uint8 = 0x6f
	ccidPCToRDRGetParameters    uint8 = 0x6c
	ccidPCToRDRResetParameters  uint8 = 0x6d
	ccidPCToRDRSetParameters    uint8 = 0x61
	ccidPCToRDRSetDataRateClock uint8 = 0x73
	ccidPCToRDREscape           uint8 = 0x6b

	ccidRDRToPCDataBlock  uint8 = 0x80
	ccidRDRToPCSlotStatus uint8 = 0x81
	ccidRDRToPCParameters uint8 = 0x82
	ccidRDRToPCEscape     uint8 = 0x83
	ccidRDRToPCDataRate   uint8 = 0x84

	ccidRequestAbort             uint8 = 0x01
	ccidRequestGetClockFrequency uint8 = 0x02
	ccidRequestGetDataRates      uint8 = 0x03

	ccidDescriptorType usb.DescriptorType = 0x21
	ccidHeaderLength                      = 10
	ccidDefaultClock   uint32             = 0x0dfc
	ccidDataRate       uint32             = 0x2580
	ccidBulkIn                            = 2
)

var ccidMessageDescriptions = map[uint8]string{
	ccidPCToRDRIccPowerOn:       "IccPowerOn",
	ccidPCToRDRIccPowerOff:      "IccPowerOff",
	ccidPCToRDRGetSlotStatus:    "GetSlotStatus",
	ccidPCToRDRXfrBlock:         "XfrBlock",
	ccidPCToRDRGetParameters:    "GetParameters",
	ccidPCToRDRResetParameters:  "ResetParameters",
	ccidPCToRDRSetParameters:    "SetParameters",
	ccidPCToRDRSetDataRateClock: "SetDataRateAndClockFrequency",
	ccidPCToRDREscape:           "Escape",
}

var (
	ccidATR          = []byte{0x3b, 0x8f, 0x80, 0x01, 0x80, 0x4f, 0x0c, 0xa0, 0x00, 0x00, 0x03, 0x06, 0x03, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x68}
	ccidT0Parameters = []byte{0x11, 0x10, 0x00, 0x15, 0x00}
	ccidStatusWord   = []byte{0x90, 0x00}
)

// ccidHeader is the common 10-byte bulk message header.
type ccidHeader struct {
	MessageType uint8
	Length      uint32
	Slot        uint8
	Sequence    uint8
	Specific    [3]uint8
}

type smartcard struct {
	device *usb.Device
	ctx    *fuzz.Context
}

func newSmartcard(phy usb.Phy, ctx *fuzz.Context, target fuzz.Target, options Options) (*Instance, error) {
	device := usb.NewDevice(phy, ctx)
	device.VendorID = 0x0bda
	device.ProductID = 0x0165
	device.Manufacturer = "Generic"
	device.Product = "Smart Card Reader Interface"
	device.SerialNumber = "20070818000000000"
	card := &smartcard{device: device, ctx: ctx}
	out := bulkOut(1)
	out.OnData = card.handleData
	iface := &usb.Interface{
		Class:       target.Class,
		Subclass:    target.Subclass,
		Protocol:    target.Protocol,
		Name:        "Smart Card",
		Endpoints:   []*usb.Endpoint{out, bulkIn(ccidBulkIn), interruptIn(3, 8, 255)},
		Descriptors: []usb.Descriptor{usb.DescriptorFunc(card.classDescriptor)},
		DescriptorHandlers: map[usb.DescriptorType]func() []byte{
			ccidDescriptorType: card.classDescriptor,
		},
		ClassHandlers: usb.Handlers{
			ccidRequestAbort: ackHandler(device),
			ccidRequestGetClockFrequency: replyHandler(device, func() []byte {
				return ctx.Bytes(fuzz.FieldCCIDClockFrequencies, util.ToLE(ccidDefaultClock))
			}),
			ccidRequestGetDataRates: replyHandler(device, func() []byte {
				return ctx.Bytes(fuzz.FieldCCIDDataRates, util.ToLE(ccidDataRate))
			}),
		},
	}
	device.Configurations = singleConfiguration(iface)
	return &Instance{Device: device}, nil
}

func (card *smartcard) classDescriptor() []byte {
	return fuzz.NewWriter(card.ctx).
		U8(fuzz.FieldCCIDLength, 54).
		U8(fuzz.FieldCCIDDescriptorType, uint8(ccidDescriptorType)).
		U16(fuzz.FieldCCIDBcdCCID, 0x0110).
		U8(fuzz.FieldCCIDMaxSlotIndex, 0).
		U8(fuzz.FieldCCIDVoltageSupport, 0x07).
		U32(fuzz.FieldCCIDProtocols, 0x00000003).
		U32(fuzz.FieldCCIDDefaultClock, ccidDefaultClock).
		U32(fuzz.FieldCCIDMaximumClock, ccidDefaultClock).
		U8(fuzz.FieldCCIDNumClockSupported, 1).
		U32(fuzz.FieldCCIDDataRate, ccidDataRate).
		U32(fuzz.FieldCCIDMaxDataRate, ccidDataRate).
		U8(fuzz.FieldCCIDNumDataRatesSupported, 1).
		U32(fuzz.FieldCCIDMaxIFSD, 0xfe).
		U32(fuzz.FieldCCIDSynchProtocols, 0).
		U32(fuzz.FieldCCIDMechanical, 0).
		U32(fuzz.FieldCCIDFeatures, 0x000100ba).
		U32(fuzz.FieldCCIDMaxMessageLength, 0x010f).
		U8(fuzz.FieldCCIDClassGetResponse, 0xff).
		U8(fuzz.FieldCCIDClassEnvelope, 0xff).
		U16(fuzz.FieldCCIDLcdLayout, 0).
		U8(fuzz.FieldCCIDPINSupport, 0).
		U8(fuzz.FieldCCIDMaxBusySlots, 1).
		Bytes()
}

func ccidMessageName(messageType uint8) string {
	if name, ok := ccidMessageDescriptions[messageType]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", messageType)
}

func parseCCIDHeader(data []byte) (ccidHeader, error) {
	if len(data) < ccidHeaderLength {
		return ccidHeader{}, fmt.Errorf("CCID message too short: %d bytes", len(data))
	}
	return ccidHeader{
		MessageType: data[0],
		Length:      binary.LittleEndian.Uint32(data[1:5]),
		Slot:        data[5],
		Sequence:    data[6],
		Specific:    [3]uint8{data[7], data[8], data[9]},
	}, nil
}

func (card *smartcard) handleData(data []byte) error {
	header, err := parseCCIDHeader(data)
	if err != nil {
		devicesLogger.Printf("Ignoring bulk data: %v", err)
		return nil
	}
	devicesLogger.Printf("CCID %s slot %d seq %d", ccidMessageName(header.MessageType), header.Slot, header.Sequence)
	switch header.MessageType {
	case ccidPCToRDRIccPowerOn:
		return card.respond(ccidRDRToPCDataBlock, header, 0, card.ctx.Bytes(fuzz.FieldCCIDATR, ccidATR))
	case ccidPCToRDRIccPowerOff, ccidPCToRDRGetSlotStatus:
		return card.respond(ccidRDRToPCSlotStatus, header, 0, nil)
	case ccidPCToRDRXfrBlock:
		return card.respond(ccidRDRToPCDataBlock, header, 0, ccidStatusWord)
	case ccidPCToRDRGetParameters, ccidPCToRDRSetParameters, ccidPCToRDRResetParameters:
		return card.respond(ccidRDRToPCParameters, header, 0, ccidT0Parameters)
	case ccidPCToRDRSetDataRateClock:
		return card.respond(ccidRDRToPCDataRate, header, 0, util.Concat(util.ToLE(ccidDefaultClock), util.ToLE(ccidDataRate)))
	case ccidPCToRDREscape:
		return card.respond(ccidRDRToPCEscape, header, 0, nil)
	}
	// Command not supported: slot error with bError 0.
	return card.respond(ccidRDRToPCSlotStatus, header, 0x40, nil)
}

// respond sends a reader-to-PC message echoing the slot and sequence. The
// trailing header byte is zero, which for parameter replies means T=0.
func (card *smartcard) respond(messageType uint8, request ccidHeader, status uint8, payload []byte) error {
	message := fuzz.NewWriter(card.ctx).
		Raw([]byte{messageType}).
		U32(fuzz.FieldCCIDMessageLength, uint32(len(payload))).
		Raw([]byte{request.Slot, request.Sequence}).
		U8(fuzz.FieldCCIDSlotStatus, status).
		Raw([]byte{0, 0}).
		Raw(payload).
		Bytes()
	return card.device.Send(ccidBulkIn, message)
}
