package devices

import (
	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
)

const (
	audioRequestSetCur uint8 = 0x01
	audioRequestGetCur uint8 = 0x81
	audioRequestGetMin uint8 = 0x82
	audioRequestGetMax uint8 = 0x83
	audioRequestGetRes uint8 = 0x84

	audioSubtypeHeader         uint8 = 0x01
	audioSubtypeInputTerminal  uint8 = 0x02
	audioSubtypeOutputTerminal uint8 = 0x03
	audioSubtypeGeneral        uint8 = 0x01
	audioSubtypeFormatType     uint8 = 0x02
	audioSubtypeEndpoint       uint8 = 0x01

	audioTerminalUSBStreaming uint16 = 0x0101
	audioTerminalSpeaker      uint16 = 0x0301
	audioFormatPCM            uint16 = 0x0001
	audioSampleRate           uint32 = 44100

	audioSyncAdaptive uint8 = 0x02
)

var audioControlValues = map[uint8]uint16{
	audioRequestGetCur: 0x0000,
	audioRequestGetMin: 0x8000,
	audioRequestGetMax: 0x7fff,
	audioRequestGetRes: 0x0001,
}

type audio struct {
	device *usb.Device
	ctx    *fuzz.Context
}

// newAudio builds a USB speaker: a control interface with one input and
// one output terminal, and a streaming interface whose alternate 1 carries
// 16-bit stereo PCM.
func newAudio(phy usb.Phy, ctx *fuzz.Context, target fuzz.Target, options Options) (*Instance, error) {
	device := usb.NewDevice(phy, ctx)
	device.VendorID = 0x0d8c
	device.ProductID = 0x000c
	device.Manufacturer = "C-Media"
	device.Product = "USB Audio Device"
	a := &audio{device: device, ctx: ctx}

	handlers := usb.Handlers{audioRequestSetCur: ackHandler(device)}
	for request := range audioControlValues {
		handlers[request] = a.controlValue
	}
	endpointHandlers := usb.Handlers{audioRequestSetCur: ackHandler(device)}
	for request := range audioControlValues {
		endpointHandlers[request] = replyHandler(device, func() []byte {
			return ctx.U24(fuzz.FieldAudioFormatFrequency, audioSampleRate)
		})
	}

	control := &usb.Interface{
		Number:        0,
		Class:         target.Class,
		Subclass:      0x01,
		Protocol:      target.Protocol,
		Name:          "Audio Control",
		Descriptors:   []usb.Descriptor{usb.DescriptorFunc(a.controlDescriptors)},
		ClassHandlers: handlers,
	}
	idle := &usb.Interface{
		Number:        1,
		Class:         target.Class,
		Subclass:      0x02,
		Protocol:      target.Protocol,
		Name:          "Audio Stream",
		ClassHandlers: handlers,
	}
	stream := &usb.Endpoint{
		Number:        1,
		Direction:     usb.DirectionOut,
		TransferType:  usb.TransferIsochronous,
		SyncType:      audioSyncAdaptive,
		MaxPacketSize: 0x00c0,
		Interval:      1,
		Extra:         []byte{0x00, 0x00},
		Descriptors:   []usb.Descriptor{usb.DescriptorFunc(a.endpointDescriptor)},
		ClassHandlers: endpointHandlers,
		OnData: func(data []byte) error {
			devicesLogger.Printf("Audio: %d bytes of samples", len(data))
			return nil
		},
	}
	streaming := &usb.Interface{
		Number:           1,
		AlternateSetting: 1,
		Class:            target.Class,
		Subclass:         0x02,
		Protocol:         target.Protocol,
		Name:             "Audio Stream",
		Endpoints:        []*usb.Endpoint{stream},
		Descriptors:      []usb.Descriptor{usb.DescriptorFunc(a.streamingDescriptors)},
		ClassHandlers:    handlers,
	}
	device.Configurations = singleConfiguration(control, idle, streaming)
	return &Instance{Device: device}, nil
}

func (a *audio) controlValue(request usb.Request) error {
	return a.device.Reply(request, a.ctx.U16(fuzz.FieldAudioControlValue, audioControlValues[request.BRequest]))
}

func (a *audio) controlDescriptors() []byte {
	const headerLength, inputLength, outputLength = 9, 12, 9
	return fuzz.NewWriter(a.ctx).
		U8(fuzz.FieldAudioHeaderLength, headerLength).
		Raw([]byte{uint8(usb.DescriptorClassInterface), audioSubtypeHeader}).
		U16(fuzz.FieldAudioHeaderBcdADC, 0x0100).
		U16(fuzz.FieldAudioHeaderTotalLength, headerLength+inputLength+outputLength).
		U8(fuzz.FieldAudioHeaderInCollection, 1).
		Raw([]byte{0x01}).
		// Input terminal 1: USB streaming, stereo.
		U8(fuzz.FieldAudioInputTerminalLength, inputLength).
		Raw([]byte{uint8(usb.DescriptorClassInterface), audioSubtypeInputTerminal, 0x01}).
		U16(fuzz.FieldAudioInputTerminalType, audioTerminalUSBStreaming).
		Raw([]byte{0x00}).
		U8(fuzz.FieldAudioInputChannels, 2).
		Raw([]byte{0x03, 0x00, 0x00, 0x00}).
		// Output terminal 2: speaker fed by terminal 1.
		U8(fuzz.FieldAudioOutputTerminalLength, outputLength).
		Raw([]byte{uint8(usb.DescriptorClassInterface), audioSubtypeOutputTerminal, 0x02}).
		U16(fuzz.FieldAudioOutputTerminalType, audioTerminalSpeaker).
		Raw([]byte{0x00}).
		U8(fuzz.FieldAudioOutputSourceID, 0x01).
		Raw([]byte{0x00}).
		Bytes()
}

func (a *audio) streamingDescriptors() []byte {
	return fuzz.NewWriter(a.ctx).
		U8(fuzz.FieldAudioGeneralLength, 7).
		Raw([]byte{uint8(usb.DescriptorClassInterface), audioSubtypeGeneral, 0x01, 0x01}).
		U16(fuzz.FieldAudioGeneralFormatTag, audioFormatPCM).
		U8(fuzz.FieldAudioFormatLength, 11).
		Raw([]byte{uint8(usb.DescriptorClassInterface), audioSubtypeFormatType, 0x01}).
		U8(fuzz.FieldAudioFormatChannels, 2).
		U8(fuzz.FieldAudioFormatSubframeSize, 2).
		U8(fuzz.FieldAudioFormatBitResolution, 16).
		U8(fuzz.FieldAudioFormatFrequencyCount, 1).
		U24(fuzz.FieldAudioFormatFrequency, audioSampleRate).
		Bytes()
}

func (a *audio) endpointDescriptor() []byte {
	return []byte{0x07, uint8(usb.DescriptorClassEndpoint), audioSubtypeEndpoint, 0x01, 0x00, 0x00, 0x00}
}
