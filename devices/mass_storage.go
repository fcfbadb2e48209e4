package devices

import (
	"bytes"
	"fmt"

	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
	"github.com/bulwarkid/vusb/util"
)

const (
	scsiTestUnitReady        = 0x00
	scsiRequestSense         = 0x03
	scsiInquiry              = 0x12
	scsiModeSense6           = 0x1a
	scsiStartStopUnit        = 0x1b
	scsiPreventAllowRemoval  = 0x1e
	scsiReadFormatCapacities = 0x23
	scsiReadCapacity10       = 0x25
	scsiRead10               = 0x28
	scsiWrite10              = 0x2a
	scsiVerify10             = 0x2f
	scsiSynchronizeCache10   = 0x35
	scsiModeSense10          = 0x5a
)

const (
	mscRequestGetMaxLUN uint8 = 0xfe
	mscRequestReset     uint8 = 0xff
)

var scsiCommandDescriptions = map[uint8]string{
	scsiTestUnitReady:        "TEST_UNIT_READY",
	scsiRequestSense:         "REQUEST_SENSE",
	scsiInquiry:              "INQUIRY",
	scsiModeSense6:           "MODE_SENSE_6",
	scsiStartStopUnit:        "START_STOP_UNIT",
	scsiPreventAllowRemoval:  "PREVENT_ALLOW_MEDIUM_REMOVAL",
	scsiReadFormatCapacities: "READ_FORMAT_CAPACITIES",
	scsiReadCapacity10:       "READ_CAPACITY_10",
	scsiRead10:               "READ_10",
	scsiWrite10:              "WRITE_10",
	scsiVerify10:             "VERIFY_10",
	scsiSynchronizeCache10:   "SYNCHRONIZE_CACHE_10",
	scsiModeSense10:          "MODE_SENSE_10",
}

const (
	cbwSignature = 0x43425355
	cswSignature = 0x53425355
	cbwLength    = 31

	cswStatusPassed uint8 = 0x00
	cswStatusFailed uint8 = 0x02

	senseNone           uint8 = 0x00
	senseIllegalRequest uint8 = 0x05
	ascInvalidCommand   uint8 = 0x20
	ascLBAOutOfRange    uint8 = 0x21

	defaultDiskBlocks = 2048
	massStorageIn     = 3
)

// CommandBlockWrapper is the 31-byte Bulk-Only Transport command header.
type CommandBlockWrapper struct {
	Signature          uint32
	Tag                uint32
	DataTransferLength uint32
	Flags              uint8
	LUN                uint8
	CBLength           uint8
	CB                 [16]byte
}

type pendingWrite struct {
	cbw      CommandBlockWrapper
	lba      uint32
	expected int
	buffer   bytes.Buffer
}

type massStorage struct {
	device  *usb.Device
	ctx     *fuzz.Context
	store   BlockStore
	sense   [3]uint8
	pending *pendingWrite
}

func newMassStorage(phy usb.Phy, ctx *fuzz.Context, target fuzz.Target, options Options) (*Instance, error) {
	store := options.Storage
	var closer func() error
	if store == nil && options.DiskImage != "" {
		fileStore, err := OpenFileStore(options.DiskImage)
		if err != nil {
			return nil, err
		}
		store, closer = fileStore, fileStore.Close
	}
	if store == nil {
		store = NewMemoryStore(defaultDiskBlocks)
	}
	device := usb.NewDevice(phy, ctx)
	device.VendorID = 0x8107
	device.ProductID = 0x5051
	device.Manufacturer = "Generic"
	device.Product = "Mass Storage"
	device.SerialNumber = "00000000001A"
	msc := &massStorage{device: device, ctx: ctx, store: store}
	out := bulkOut(1)
	out.OnData = msc.handleData
	iface := &usb.Interface{
		Class:     target.Class,
		Subclass:  target.Subclass,
		Protocol:  target.Protocol,
		Name:      "Mass Storage",
		Endpoints: []*usb.Endpoint{out, bulkIn(massStorageIn)},
		ClassHandlers: usb.Handlers{
			mscRequestReset: func(request usb.Request) error {
				msc.pending = nil
				return device.Ack()
			},
			mscRequestGetMaxLUN: replyHandler(device, func() []byte { return ctx.U8(fuzz.FieldMaxLUN, 0) }),
		},
	}
	device.Configurations = singleConfiguration(iface)
	return &Instance{Device: device, close: closer}, nil
}

func parseCBW(data []byte) (CommandBlockWrapper, error) {
	if len(data) < cbwLength {
		return CommandBlockWrapper{}, fmt.Errorf("CBW too short: %d bytes", len(data))
	}
	cbw := util.ReadLE[CommandBlockWrapper](bytes.NewBuffer(data[:cbwLength]))
	if cbw.Signature != cbwSignature {
		return CommandBlockWrapper{}, fmt.Errorf("bad CBW signature 0x%08x", cbw.Signature)
	}
	return cbw, nil
}

func (msc *massStorage) handleData(data []byte) error {
	if msc.pending != nil {
		return msc.continueWrite(data)
	}
	cbw, err := parseCBW(data)
	if err != nil {
		devicesLogger.Printf("Ignoring bulk data: %v", err)
		return nil
	}
	opcode := cbw.CB[0]
	devicesLogger.Printf("SCSI %s tag 0x%08x length %d", scsiCommandName(opcode), cbw.Tag, cbw.DataTransferLength)
	switch opcode {
	case scsiTestUnitReady, scsiStartStopUnit, scsiPreventAllowRemoval, scsiVerify10, scsiSynchronizeCache10:
		return msc.sendStatus(cbw, 0, cswStatusPassed)
	case scsiRequestSense:
		response := msc.requestSense()
		msc.sense = [3]uint8{senseNone, 0, 0}
		return msc.respond(cbw, response)
	case scsiInquiry:
		return msc.respond(cbw, msc.inquiry())
	case scsiModeSense6:
		return msc.respond(cbw, msc.modeSense6())
	case scsiModeSense10:
		return msc.respond(cbw, msc.modeSense10())
	case scsiReadFormatCapacities:
		return msc.respond(cbw, msc.readFormatCapacities())
	case scsiReadCapacity10:
		return msc.respond(cbw, msc.readCapacity())
	case scsiRead10:
		return msc.read(cbw)
	case scsiWrite10:
		return msc.startWrite(cbw)
	}
	msc.sense = [3]uint8{senseIllegalRequest, ascInvalidCommand, 0}
	return msc.sendStatus(cbw, cbw.DataTransferLength, cswStatusFailed)
}

func scsiCommandName(opcode uint8) string {
	if name, ok := scsiCommandDescriptions[opcode]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", opcode)
}

// respond sends a data phase limited to the host's transfer length and
// then the status.
func (msc *massStorage) respond(cbw CommandBlockWrapper, data []byte) error {
	if cbw.DataTransferLength > 0 && len(data) > int(cbw.DataTransferLength) {
		data = data[:cbw.DataTransferLength]
	}
	if err := msc.device.Send(massStorageIn, data); err != nil {
		return err
	}
	residue := uint32(0)
	if int(cbw.DataTransferLength) > len(data) {
		residue = cbw.DataTransferLength - uint32(len(data))
	}
	return msc.sendStatus(cbw, residue, cswStatusPassed)
}

func (msc *massStorage) sendStatus(cbw CommandBlockWrapper, residue uint32, status uint8) error {
	csw := fuzz.NewWriter(msc.ctx).
		U32(fuzz.FieldCSWSignature, cswSignature).
		U32(fuzz.FieldCSWTag, cbw.Tag).
		U32(fuzz.FieldCSWResidue, residue).
		U8(fuzz.FieldCSWStatus, status).
		Bytes()
	return msc.device.Send(massStorageIn, csw)
}

func (msc *massStorage) inquiry() []byte {
	return fuzz.NewWriter(msc.ctx).
		U8(fuzz.FieldInquiryPeripheral, 0x00).
		U8(fuzz.FieldInquiryRemovable, 0x80).
		U8(fuzz.FieldInquiryVersion, 0x00).
		U8(fuzz.FieldInquiryResponseFormat, 0x01).
		U8(fuzz.FieldInquiryAdditionalLength, 0x1f).
		Raw([]byte{0x00, 0x00, 0x00}).
		Field(fuzz.FieldInquiryVendorID, padSpaces("Generic", 8)).
		Field(fuzz.FieldInquiryProductID, padSpaces("Mass Storage", 16)).
		Field(fuzz.FieldInquiryProductRevision, padSpaces("1.00", 4)).
		Bytes()
}

func padSpaces(s string, size int) []byte {
	data := bytes.Repeat([]byte{' '}, size)
	copy(data, s)
	return data
}

func (msc *massStorage) requestSense() []byte {
	return fuzz.NewWriter(msc.ctx).
		U8(fuzz.FieldSenseResponseCode, 0x70).
		Raw([]byte{0x00}).
		U8(fuzz.FieldSenseKey, msc.sense[0]).
		Raw([]byte{0x00, 0x00, 0x00, 0x00}).
		U8(fuzz.FieldSenseAdditionalLength, 0x0a).
		Raw([]byte{0x00, 0x00, 0x00, 0x00}).
		U8(fuzz.FieldSenseCode, msc.sense[1]).
		U8(fuzz.FieldSenseQualifier, msc.sense[2]).
		Raw([]byte{0x00, 0x00, 0x00, 0x00}).
		Bytes()
}

func (msc *massStorage) modeSense6() []byte {
	return fuzz.NewWriter(msc.ctx).
		U8(fuzz.FieldModeSenseDataLength, 0x03).
		U8(fuzz.FieldModeSenseMediumType, 0x00).
		U8(fuzz.FieldModeSenseDeviceSpecific, 0x00).
		U8(fuzz.FieldModeSenseBlockDescriptorLength, 0x00).
		Bytes()
}

func (msc *massStorage) modeSense10() []byte {
	return fuzz.NewWriter(msc.ctx).
		Raw([]byte{0x00}).
		U8(fuzz.FieldModeSenseDataLength, 0x06).
		U8(fuzz.FieldModeSenseMediumType, 0x00).
		U8(fuzz.FieldModeSenseDeviceSpecific, 0x00).
		Raw([]byte{0x00, 0x00, 0x00}).
		U8(fuzz.FieldModeSenseBlockDescriptorLength, 0x00).
		Bytes()
}

func (msc *massStorage) readFormatCapacities() []byte {
	return fuzz.NewWriter(msc.ctx).
		Raw([]byte{0x00, 0x00, 0x00}).
		U8(fuzz.FieldFormatCapacityListLength, 0x08).
		U32BE(fuzz.FieldFormatCapacityBlocks, msc.store.BlockCount()).
		U8(fuzz.FieldFormatCapacityDescriptorCode, 0x02).
		U24BE(fuzz.FieldFormatCapacityBlockLength, BlockSize).
		Bytes()
}

func (msc *massStorage) readCapacity() []byte {
	return fuzz.NewWriter(msc.ctx).
		U32BE(fuzz.FieldReadCapacityLastLBA, msc.store.BlockCount()-1).
		U32BE(fuzz.FieldReadCapacityBlockLength, BlockSize).
		Bytes()
}

func transferRange(cbw CommandBlockWrapper) (uint32, uint32) {
	lba := util.ReadBE[uint32](bytes.NewReader(cbw.CB[2:6]))
	blocks := util.ReadBE[uint16](bytes.NewReader(cbw.CB[7:9]))
	return lba, uint32(blocks)
}

func (msc *massStorage) read(cbw CommandBlockWrapper) error {
	lba, blocks := transferRange(cbw)
	data, err := msc.store.ReadBlocks(lba, blocks)
	if err != nil {
		devicesLogger.Printf("READ_10 failed: %v", err)
		msc.sense = [3]uint8{senseIllegalRequest, ascLBAOutOfRange, 0}
		return msc.sendStatus(cbw, cbw.DataTransferLength, cswStatusFailed)
	}
	return msc.respond(cbw, data)
}

func (msc *massStorage) startWrite(cbw CommandBlockWrapper) error {
	lba, blocks := transferRange(cbw)
	if blocks == 0 {
		return msc.sendStatus(cbw, 0, cswStatusPassed)
	}
	msc.pending = &pendingWrite{cbw: cbw, lba: lba, expected: int(blocks) * BlockSize}
	return nil
}

// continueWrite buffers OUT transfers until the declared length arrived.
func (msc *massStorage) continueWrite(data []byte) error {
	pending := msc.pending
	pending.buffer.Write(data)
	if pending.buffer.Len() < pending.expected {
		return nil
	}
	msc.pending = nil
	if err := msc.store.WriteBlocks(pending.lba, pending.buffer.Bytes()[:pending.expected]); err != nil {
		devicesLogger.Printf("WRITE_10 failed: %v", err)
		msc.sense = [3]uint8{senseIllegalRequest, ascLBAOutOfRange, 0}
		return msc.sendStatus(pending.cbw, pending.cbw.DataTransferLength, cswStatusFailed)
	}
	return msc.sendStatus(pending.cbw, 0, cswStatusPassed)
}
