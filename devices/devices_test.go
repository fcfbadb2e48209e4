package devices

import (
	"bytes"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
)

type recordingPhy struct {
	sent   map[uint8][][]byte
	stalls int
	acks   int
}

func newRecordingPhy() *recordingPhy {
	return &recordingPhy{sent: map[uint8][][]byte{}}
}

func (phy *recordingPhy) SendOnEndpoint(endpoint uint8, data []byte) error {
	phy.sent[endpoint] = append(phy.sent[endpoint], append([]byte{}, data...))
	return nil
}

func (phy *recordingPhy) StallEP0() error {
	phy.stalls++
	return nil
}

func (phy *recordingPhy) AckStatusStage() error {
	phy.acks++
	return nil
}

func (phy *recordingPhy) last(endpoint uint8) []byte {
	transfers := phy.sent[endpoint]
	if len(transfers) == 0 {
		return nil
	}
	return transfers[len(transfers)-1]
}

func build(t *testing.T, kind Kind, options Options) (*Instance, *recordingPhy) {
	phy := newRecordingPhy()
	instance, err := Build(kind, phy, fuzz.NewContext(fuzz.RunModeEnumerationOnly, nil), options)
	require.NoError(t, err)
	return instance, phy
}

func configure(t *testing.T, instance *Instance) {
	request := usb.NewRequest(usb.DirectionOut, usb.RequestTypeStandard, usb.RecipientDevice, uint8(usb.RequestSetConfiguration), 1, 0, 0)
	require.NoError(t, instance.HandleSetup(request.Bytes()))
	require.True(t, instance.Configured())
}

func commandBlock(tag uint32, length uint32, flags uint8, cb ...byte) []byte {
	data := make([]byte, cbwLength)
	binary.LittleEndian.PutUint32(data[0:], cbwSignature)
	binary.LittleEndian.PutUint32(data[4:], tag)
	binary.LittleEndian.PutUint32(data[8:], length)
	data[12] = flags
	data[14] = uint8(len(cb))
	copy(data[15:], cb)
	return data
}

func read10(lba uint32, blocks uint16) []byte {
	cb := make([]byte, 10)
	cb[0] = scsiRead10
	binary.BigEndian.PutUint32(cb[2:], lba)
	binary.BigEndian.PutUint16(cb[7:], blocks)
	return cb
}

func TestRegistryNames(t *testing.T) {
	kind, err := ParseKind("mass_storage")
	require.NoError(t, err)
	assert.Equal(t, KindMassStorage, kind)
	_, err = ParseKind("toaster")
	assert.Error(t, err)
	assert.Len(t, KindNames(), len(Kinds()))
	assert.Len(t, PrimaryTargets(), len(Kinds()))
}

func TestKindForTriple(t *testing.T) {
	kind, ok := KindFor(fuzz.Target{Class: 0x08, Subclass: 0x06, Protocol: 0x50})
	require.True(t, ok)
	assert.Equal(t, KindMassStorage, kind)

	kind, ok = KindFor(fuzz.Target{Class: 0xff, Subclass: 0xfe, Protocol: 0x02})
	require.True(t, ok)
	assert.Equal(t, KindIPhone, kind)

	kind, ok = KindFor(fuzz.Target{Class: 0x07, Subclass: 0x01, Protocol: 0x09})
	require.True(t, ok)
	assert.Equal(t, KindPrinter, kind)

	_, ok = KindFor(fuzz.Target{Class: 0xe0})
	assert.False(t, ok)
}

func TestEveryKindDescribesItself(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(kind.String(), func(t *testing.T) {
			instance, _ := build(t, kind, Options{})
			defer instance.Close()
			device := instance.DeviceDescriptorBytes()
			require.Len(t, device, 18)
			config, err := instance.DescriptorBytes(usb.DescriptorConfiguration, 0)
			require.NoError(t, err)
			assert.Equal(t, len(config), int(binary.LittleEndian.Uint16(config[2:4])))
			assert.Equal(t, kind, instance.Kind)
		})
	}
}

func TestOptionsOverrideIdentity(t *testing.T) {
	instance, _ := build(t, KindKeyboard, Options{VendorID: 0xaaaa, ProductID: 0xbbbb, Revision: 0x0102})
	descriptor := instance.DeviceDescriptorBytes()
	assert.Equal(t, uint16(0xaaaa), binary.LittleEndian.Uint16(descriptor[8:10]))
	assert.Equal(t, uint16(0xbbbb), binary.LittleEndian.Uint16(descriptor[10:12]))
	assert.Equal(t, uint16(0x0102), binary.LittleEndian.Uint16(descriptor[12:14]))
}

func TestMissingDiskImage(t *testing.T) {
	_, err := Build(KindMassStorage, newRecordingPhy(), nil, Options{DiskImage: filepath.Join(t.TempDir(), "missing.img")})
	var backingErr *BackingStoreError
	require.True(t, errors.As(err, &backingErr))
	assert.Contains(t, backingErr.Path, "missing.img")
}

func TestReadReturnsBlocksThenStatus(t *testing.T) {
	instance, phy := build(t, KindMassStorage, Options{})
	require.NoError(t, instance.HandleData(1, commandBlock(0xdeadbeef, BlockSize, 0x80, read10(0, 1)...)))

	transfers := phy.sent[massStorageIn]
	require.Len(t, transfers, 2)
	assert.Equal(t, make([]byte, BlockSize), transfers[0])
	csw := transfers[1]
	require.Len(t, csw, 13)
	assert.Equal(t, uint32(cswSignature), binary.LittleEndian.Uint32(csw[0:4]))
	assert.Equal(t, uint32(0xdeadbeef), binary.LittleEndian.Uint32(csw[4:8]))
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(csw[8:12]))
	assert.Equal(t, cswStatusPassed, csw[12])
}

func TestReadPastEndFails(t *testing.T) {
	instance, phy := build(t, KindMassStorage, Options{Storage: NewMemoryStore(4)})
	require.NoError(t, instance.HandleData(1, commandBlock(1, BlockSize, 0x80, read10(4, 1)...)))
	assert.Equal(t, cswStatusFailed, phy.last(massStorageIn)[12])

	require.NoError(t, instance.HandleData(1, commandBlock(2, 18, 0x80, scsiRequestSense, 0, 0, 0, 18, 0)))
	sense := phy.sent[massStorageIn][1]
	assert.Equal(t, senseIllegalRequest, sense[2])
	assert.Equal(t, ascLBAOutOfRange, sense[12])
}

func TestInquiry(t *testing.T) {
	instance, phy := build(t, KindMassStorage, Options{})
	require.NoError(t, instance.HandleData(1, commandBlock(7, 36, 0x80, scsiInquiry, 0, 0, 0, 36, 0)))
	data := phy.sent[massStorageIn][0]
	require.Len(t, data, 36)
	assert.Equal(t, []byte{0x00, 0x80, 0x00}, data[:3])
	assert.Equal(t, len(data)-5, int(data[4]))
	assert.Equal(t, "Generic ", string(data[8:16]))
}

func TestInquiryTruncatedToTransferLength(t *testing.T) {
	instance, phy := build(t, KindMassStorage, Options{})
	require.NoError(t, instance.HandleData(1, commandBlock(7, 8, 0x80, scsiInquiry, 0, 0, 0, 8, 0)))
	assert.Len(t, phy.sent[massStorageIn][0], 8)
}

func TestUnknownCommandSetsSense(t *testing.T) {
	instance, phy := build(t, KindMassStorage, Options{})
	require.NoError(t, instance.HandleData(1, commandBlock(3, 0, 0, 0xc7)))
	assert.Equal(t, cswStatusFailed, phy.last(massStorageIn)[12])

	require.NoError(t, instance.HandleData(1, commandBlock(4, 18, 0x80, scsiRequestSense, 0, 0, 0, 18, 0)))
	sense := phy.sent[massStorageIn][1]
	assert.Equal(t, senseIllegalRequest, sense[2])
	assert.Equal(t, ascInvalidCommand, sense[12])

	require.NoError(t, instance.HandleData(1, commandBlock(5, 18, 0x80, scsiRequestSense, 0, 0, 0, 18, 0)))
	assert.Equal(t, senseNone, phy.sent[massStorageIn][3][2])
}

func TestWriteBuffersUntilComplete(t *testing.T) {
	store := NewMemoryStore(8)
	instance, phy := build(t, KindMassStorage, Options{Storage: store})
	cb := read10(2, 1)
	cb[0] = scsiWrite10
	require.NoError(t, instance.HandleData(1, commandBlock(9, BlockSize, 0, cb...)))
	payload := bytes.Repeat([]byte{0xa5}, BlockSize)
	require.NoError(t, instance.HandleData(1, payload[:256]))
	assert.Empty(t, phy.sent[massStorageIn])
	require.NoError(t, instance.HandleData(1, payload[256:]))

	require.Len(t, phy.sent[massStorageIn], 1)
	assert.Equal(t, cswStatusPassed, phy.last(massStorageIn)[12])
	written, err := store.ReadBlocks(2, 1)
	require.NoError(t, err)
	assert.Equal(t, payload, written)
}

func TestReadCapacity(t *testing.T) {
	instance, phy := build(t, KindMassStorage, Options{Storage: NewMemoryStore(16)})
	require.NoError(t, instance.HandleData(1, commandBlock(1, 8, 0x80, scsiReadCapacity10)))
	data := phy.sent[massStorageIn][0]
	assert.Equal(t, uint32(15), binary.BigEndian.Uint32(data[0:4]))
	assert.Equal(t, uint32(BlockSize), binary.BigEndian.Uint32(data[4:8]))
}

func TestKeystrokeReports(t *testing.T) {
	reports := keystrokeReports("aB\x01")
	require.Len(t, reports, 4)
	assert.Equal(t, []byte{0, 0, 0x04, 0, 0, 0, 0, 0}, reports[0])
	assert.Equal(t, make([]byte, 8), reports[1])
	assert.Equal(t, []byte{hidModifierLeftShift, 0, 0x05, 0, 0, 0, 0, 0}, reports[2])
}

func TestKeyboardTypesOnceConfigured(t *testing.T) {
	instance, phy := build(t, KindKeyboard, Options{Keystrokes: "a"})
	require.NoError(t, instance.HandleBufferAvailable(3))
	assert.Empty(t, phy.sent[3])

	configure(t, instance)
	for i := 0; i < 2; i++ {
		require.NoError(t, instance.HandleBufferAvailable(3))
	}
	assert.Len(t, phy.sent[3], 2)
	assert.False(t, instance.Done())
	require.NoError(t, instance.HandleBufferAvailable(3))
	assert.True(t, instance.Done())
}

func TestKeyboardReportDescriptor(t *testing.T) {
	instance, phy := build(t, KindKeyboard, Options{})
	request := usb.NewRequest(usb.DirectionIn, usb.RequestTypeStandard, usb.RecipientInterface, uint8(usb.RequestGetDescriptor), uint16(usb.DescriptorHIDReport)<<8, 0, 0xff)
	require.NoError(t, instance.HandleSetup(request.Bytes()))
	assert.Equal(t, keyboardReportDescriptor, phy.last(0))
}

func TestPrinterDeviceID(t *testing.T) {
	instance, phy := build(t, KindPrinter, Options{})
	request := usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientInterface, printerRequestGetDeviceID, 0, 0, 0x400)
	require.NoError(t, instance.HandleSetup(request.Bytes()))
	data := phy.last(0)
	assert.Equal(t, len(data), int(binary.BigEndian.Uint16(data[0:2])))
	assert.Equal(t, printerDeviceID, string(data[2:]))
}

func TestPrinterFinishesAtEndOfJob(t *testing.T) {
	instance, _ := build(t, KindPrinter, Options{})
	require.NoError(t, instance.HandleData(1, []byte("\x1b%-12345X@PJL JOB\r\n")))
	assert.False(t, instance.Done())
	require.NoError(t, instance.HandleData(1, []byte("@PJL EO")))
	require.NoError(t, instance.HandleData(1, []byte("J\r\n")))
	assert.True(t, instance.Done())
}

func ptpCommand(code uint16, transactionID uint32) []byte {
	data := make([]byte, ptpContainerSize)
	binary.LittleEndian.PutUint32(data[0:], ptpContainerSize)
	binary.LittleEndian.PutUint16(data[4:], ptpContainerCommand)
	binary.LittleEndian.PutUint16(data[6:], code)
	binary.LittleEndian.PutUint32(data[8:], transactionID)
	return data
}

func TestPTPString(t *testing.T) {
	assert.Equal(t, []byte{0}, ptpString(""))
	assert.Equal(t, []byte{3, 'a', 0, 'b', 0, 0, 0}, ptpString("ab"))
}

func TestPTPSessionAndUnsupported(t *testing.T) {
	instance, phy := build(t, KindImage, Options{})
	require.NoError(t, instance.HandleData(1, ptpCommand(ptpOpenSession, 1)))
	response := phy.last(ptpBulkIn)
	assert.Equal(t, ptpContainerResponse, binary.LittleEndian.Uint16(response[4:6]))
	assert.Equal(t, ptpResponseOK, binary.LittleEndian.Uint16(response[6:8]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(response[8:12]))

	require.NoError(t, instance.HandleData(1, ptpCommand(0x9999, 2)))
	assert.Equal(t, ptpResponseUnsupported, binary.LittleEndian.Uint16(phy.last(ptpBulkIn)[6:8]))
}

func TestPTPDataPhase(t *testing.T) {
	instance, phy := build(t, KindImage, Options{})
	require.NoError(t, instance.HandleData(1, ptpCommand(ptpGetStorageIDs, 5)))
	transfers := phy.sent[ptpBulkIn]
	require.Len(t, transfers, 2)
	data := transfers[0]
	assert.Equal(t, len(data), int(binary.LittleEndian.Uint32(data[0:4])))
	assert.Equal(t, ptpContainerData, binary.LittleEndian.Uint16(data[4:6]))
	assert.Equal(t, []byte{1, 0, 0, 0, 0x01, 0x00, 0x01, 0x00}, data[ptpContainerSize:])
}

func TestPTPSetterWaitsForData(t *testing.T) {
	instance, phy := build(t, KindImage, Options{})
	require.NoError(t, instance.HandleData(1, ptpCommand(ptpSetDevicePropValue, 9)))
	assert.Empty(t, phy.sent[ptpBulkIn])
	data := ptpCommand(ptpSetDevicePropValue, 9)
	binary.LittleEndian.PutUint16(data[4:], ptpContainerData)
	require.NoError(t, instance.HandleData(1, data))
	assert.Equal(t, ptpResponseOK, binary.LittleEndian.Uint16(phy.last(ptpBulkIn)[6:8]))
}

func TestSmartcardPowerOn(t *testing.T) {
	instance, phy := build(t, KindSmartcard, Options{})
	message := []byte{ccidPCToRDRIccPowerOn, 0, 0, 0, 0, 0, 0x07, 0, 0, 0}
	require.NoError(t, instance.HandleData(1, message))
	response := phy.last(ccidBulkIn)
	assert.Equal(t, ccidRDRToPCDataBlock, response[0])
	assert.Equal(t, uint32(len(ccidATR)), binary.LittleEndian.Uint32(response[1:5]))
	assert.Equal(t, uint8(0x07), response[6])
	assert.Equal(t, ccidATR, response[ccidHeaderLength:])
}

func TestSmartcardDescriptorLength(t *testing.T) {
	instance, _ := build(t, KindSmartcard, Options{})
	card := instance.Interface(0)
	require.NotNil(t, card)
	descriptor := card.Descriptors[0].Bytes()
	assert.Len(t, descriptor, 54)
	assert.Equal(t, uint8(54), descriptor[0])
}

func TestHubDescriptorByClassRequest(t *testing.T) {
	instance, phy := build(t, KindHub, Options{})
	request := usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientDevice, uint8(usb.RequestGetDescriptor), uint16(usb.DescriptorHub)<<8, 0, 0x47)
	require.NoError(t, instance.HandleSetup(request.Bytes()))
	descriptor := phy.last(0)
	require.Len(t, descriptor, 9)
	assert.Equal(t, hubPortCount, descriptor[2])

	status := usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientOther, uint8(usb.RequestGetStatus), 0, 1, 4)
	require.NoError(t, instance.HandleSetup(status.Bytes()))
	assert.Equal(t, []byte{0x00, 0x01, 0x00, 0x00}, phy.last(0))
}

func TestHubPortFeatures(t *testing.T) {
	instance, phy := build(t, KindHub, Options{})
	setPortPower := usb.NewRequest(usb.DirectionOut, usb.RequestTypeClass, usb.RecipientOther, uint8(usb.RequestSetFeature), 8, 1, 0)
	require.NoError(t, instance.HandleSetup(setPortPower.Bytes()))
	clearConnection := usb.NewRequest(usb.DirectionOut, usb.RequestTypeClass, usb.RecipientOther, uint8(usb.RequestClearFeature), 16, 1, 0)
	require.NoError(t, instance.HandleSetup(clearConnection.Bytes()))
	assert.Equal(t, 2, phy.acks)
	assert.Equal(t, 0, phy.stalls)
	assert.False(t, instance.Done())
}

func TestAudioAlternateSelectsStream(t *testing.T) {
	instance, phy := build(t, KindAudio, Options{})
	configure(t, instance)
	assert.Nil(t, instance.Endpoint(1))

	setInterface := usb.NewRequest(usb.DirectionOut, usb.RequestTypeStandard, usb.RecipientInterface, uint8(usb.RequestSetInterface), 1, 1, 0)
	require.NoError(t, instance.HandleSetup(setInterface.Bytes()))
	require.NotNil(t, instance.Endpoint(1))

	getCur := usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientEndpoint, audioRequestGetCur, 0x0100, 0x01, 3)
	require.NoError(t, instance.HandleSetup(getCur.Bytes()))
	assert.Equal(t, []byte{0x44, 0xac, 0x00}, phy.last(0))
}

func TestSerialEchoesAndReportsLineCoding(t *testing.T) {
	instance, phy := build(t, KindCDC, Options{})
	configure(t, instance)
	require.NoError(t, instance.HandleData(1, []byte("hello")))
	assert.Equal(t, []byte("hello"), phy.last(cdcBulkIn))

	request := usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientInterface, cdcRequestGetLineCoding, 0, 0, 7)
	require.NoError(t, instance.HandleSetup(request.Bytes()))
	assert.Equal(t, cdcDefaultLineCoding, phy.last(0))
}

func TestSerialControlRequests(t *testing.T) {
	instance, phy := build(t, KindCDC, Options{})
	controlLineState := usb.NewRequest(usb.DirectionOut, usb.RequestTypeClass, usb.RecipientInterface, cdcRequestSetControlLineState, 0x0003, 0, 0)
	require.NoError(t, instance.HandleSetup(controlLineState.Bytes()))
	lineCoding := usb.NewRequest(usb.DirectionOut, usb.RequestTypeClass, usb.RecipientInterface, cdcRequestSetLineCoding, 0, 0, 7)
	require.NoError(t, instance.HandleSetup(lineCoding.Bytes()))
	assert.Equal(t, 2, phy.acks)
	assert.Empty(t, phy.sent[0])
}

func TestSmartcardControlRequests(t *testing.T) {
	instance, phy := build(t, KindSmartcard, Options{})
	abort := usb.NewRequest(usb.DirectionOut, usb.RequestTypeClass, usb.RecipientInterface, ccidRequestAbort, 0x0100, 0, 0)
	require.NoError(t, instance.HandleSetup(abort.Bytes()))
	assert.Equal(t, 1, phy.acks)

	clock := usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientInterface, ccidRequestGetClockFrequency, 0, 0, 4)
	require.NoError(t, instance.HandleSetup(clock.Bytes()))
	assert.Equal(t, []byte{0xfc, 0x0d, 0x00, 0x00}, phy.last(0))

	rates := usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientInterface, ccidRequestGetDataRates, 0, 0, 4)
	require.NoError(t, instance.HandleSetup(rates.Bytes()))
	assert.Equal(t, []byte{0x80, 0x25, 0x00, 0x00}, phy.last(0))
}

func TestPTPClassRequests(t *testing.T) {
	instance, phy := build(t, KindImage, Options{})
	cancel := usb.NewRequest(usb.DirectionOut, usb.RequestTypeClass, usb.RecipientInterface, ptpRequestCancel, 0, 0, 6)
	require.NoError(t, instance.HandleSetup(cancel.Bytes()))
	reset := usb.NewRequest(usb.DirectionOut, usb.RequestTypeClass, usb.RecipientInterface, ptpRequestReset, 0, 0, 0)
	require.NoError(t, instance.HandleSetup(reset.Bytes()))
	assert.Equal(t, 2, phy.acks)

	status := usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientInterface, ptpRequestGetStatus, 0, 0, 0x20)
	require.NoError(t, instance.HandleSetup(status.Bytes()))
	assert.Equal(t, []byte{0x04, 0x00, 0x01, 0x20}, phy.last(0))
}

func TestPrinterPortStatusAndReset(t *testing.T) {
	instance, phy := build(t, KindPrinter, Options{})
	status := usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientInterface, printerRequestGetPortStatus, 0, 0, 1)
	require.NoError(t, instance.HandleSetup(status.Bytes()))
	assert.Equal(t, []byte{printerStatusReady}, phy.last(0))

	reset := usb.NewRequest(usb.DirectionOut, usb.RequestTypeClass, usb.RecipientInterface, printerRequestSoftReset, 0, 0, 0)
	require.NoError(t, instance.HandleSetup(reset.Bytes()))
	assert.Equal(t, 1, phy.acks)
}

func TestVendorAnswersAnyRequest(t *testing.T) {
	instance, phy := build(t, KindVendor, Options{})
	in := usb.NewRequest(usb.DirectionIn, usb.RequestTypeVendor, usb.RecipientDevice, 0x5a, 0, 0, 4)
	require.NoError(t, instance.HandleSetup(in.Bytes()))
	assert.Equal(t, make([]byte, 4), phy.last(0))
	out := usb.NewRequest(usb.DirectionOut, usb.RequestTypeVendor, usb.RecipientInterface, 0x01, 0, 0, 0)
	require.NoError(t, instance.HandleSetup(out.Bytes()))
	assert.Equal(t, 1, phy.acks)
	assert.False(t, instance.Done())
}

func TestOverrideReachesEmulator(t *testing.T) {
	field, err := fuzz.ParseField("t", "max_lun")
	require.NoError(t, err)
	ctx := fuzz.NewContext(fuzz.RunModeFullFuzz, &fuzz.Override{CaseName: "t", Field: field, Value: []byte{0xff}})
	phy := newRecordingPhy()
	instance, err := Build(KindMassStorage, phy, ctx, Options{})
	require.NoError(t, err)
	request := usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientInterface, mscRequestGetMaxLUN, 0, 0, 1)
	require.NoError(t, instance.HandleSetup(request.Bytes()))
	assert.Equal(t, []byte{0xff}, phy.last(0))
	assert.Equal(t, 1, ctx.Hits())
}
