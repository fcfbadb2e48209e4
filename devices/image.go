package devices

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
	"github.com/bulwarkid/vusb/util"
)

const (
	ptpContainerCommand  uint16 = 1
	ptpContainerData     uint16 = 2
	ptpContainerResponse uint16 = 3
	ptpContainerEvent    uint16 = 4

	ptpGetDeviceInfo       uint16 = 0x1001
	ptpOpenSession         uint16 = 0x1002
	ptpCloseSession        uint16 = 0x1003
	ptpGetStorageIDs       uint16 = 0x1004
	ptpGetStorageInfo      uint16 = 0x1005
	ptpGetObjectHandles    uint16 = 0x1007
	ptpGetObjectInfo       uint16 = 0x1008
	ptpGetThumb            uint16 = 0x100a
	ptpSetDevicePropValue  uint16 = 0x1016
	ptpResponseOK          uint16 = 0x2001
	ptpResponseUnsupported uint16 = 0x2005

	ptpRequestCancel    uint8 = 0x64
	ptpRequestReset     uint8 = 0x66
	ptpRequestGetStatus uint8 = 0x67

	ptpFormatEXIF     uint16 = 0x3801
	ptpFormatJFIF     uint16 = 0x3808
	ptpStorageID      uint32 = 0x00010001
	ptpObjectHandle   uint32 = 0x00000001
	ptpContainerSize         = 12
	ptpBulkIn                = 2
)

var ptpOperationDescriptions = map[uint16]string{
	ptpGetDeviceInfo:      "GetDeviceInfo",
	ptpOpenSession:        "OpenSession",
	ptpCloseSession:       "CloseSession",
	ptpGetStorageIDs:      "GetStorageIDs",
	ptpGetStorageInfo:     "GetStorageInfo",
	ptpGetObjectHandles:   "GetObjectHandles",
	ptpGetObjectInfo:      "GetObjectInfo",
	ptpGetThumb:           "GetThumb",
	ptpSetDevicePropValue: "SetDevicePropValue",
}

// A tiny JFIF thumbnail: SOI, APP0 header and EOI.
var ptpThumbnail = []byte{
	0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 0x4a, 0x46, 0x49, 0x46, 0x00, 0x01,
	0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0xff, 0xd9,
}

type ptpHeader struct {
	Length        uint32
	Type          uint16
	Code          uint16
	TransactionID uint32
}

type ptpContainer struct {
	ptpHeader
	params []uint32
}

func parseContainer(data []byte) (ptpContainer, error) {
	if len(data) < ptpContainerSize {
		return ptpContainer{}, fmt.Errorf("PTP container too short: %d bytes", len(data))
	}
	container := ptpContainer{ptpHeader: util.ReadLE[ptpHeader](bytes.NewBuffer(data[:ptpContainerSize]))}
	for offset := ptpContainerSize; offset+4 <= len(data) && len(container.params) < 5; offset += 4 {
		container.params = append(container.params, binary.LittleEndian.Uint32(data[offset:]))
	}
	return container, nil
}

type ptp struct {
	device        *usb.Device
	ctx           *fuzz.Context
	model         string
	pendingSetter *ptpContainer
}

// newPTPInterface builds a still-image interface on endpoints 1, 2 and 3.
func newPTPInterface(device *usb.Device, ctx *fuzz.Context, number uint8, target fuzz.Target, model string) *usb.Interface {
	camera := &ptp{device: device, ctx: ctx, model: model}
	out := bulkOut(1)
	out.OnData = camera.handleData
	return &usb.Interface{
		Number:    number,
		Class:     target.Class,
		Subclass:  target.Subclass,
		Protocol:  target.Protocol,
		Name:      "PTP",
		Endpoints: []*usb.Endpoint{out, bulkIn(ptpBulkIn), interruptIn(3, 8, 16)},
		ClassHandlers: usb.Handlers{
			ptpRequestCancel: ackHandler(device),
			ptpRequestReset:  ackHandler(device),
			ptpRequestGetStatus: replyHandler(device, func() []byte {
				return ctx.Bytes(fuzz.FieldPTPDeviceStatus, []byte{0x04, 0x00, 0x01, 0x20})
			}),
		},
	}
}

func newImage(phy usb.Phy, ctx *fuzz.Context, target fuzz.Target, options Options) (*Instance, error) {
	device := usb.NewDevice(phy, ctx)
	device.VendorID = 0x040a
	device.ProductID = 0x0121
	device.Manufacturer = "Kodak"
	device.Product = "Digital Camera"
	device.SerialNumber = "KCKCK72730455"
	device.Configurations = singleConfiguration(newPTPInterface(device, ctx, 0, target, "DC4800"))
	return &Instance{Device: device}, nil
}

func ptpOperationName(code uint16) string {
	if name, ok := ptpOperationDescriptions[code]; ok {
		return name
	}
	return fmt.Sprintf("0x%04x", code)
}

func (camera *ptp) handleData(data []byte) error {
	container, err := parseContainer(data)
	if err != nil {
		devicesLogger.Printf("Ignoring bulk data: %v", err)
		return nil
	}
	if container.Type == ptpContainerData && camera.pendingSetter != nil {
		command := *camera.pendingSetter
		camera.pendingSetter = nil
		return camera.sendResponse(command, ptpResponseOK)
	}
	if container.Type != ptpContainerCommand {
		devicesLogger.Printf("Ignoring PTP container type %d", container.Type)
		return nil
	}
	devicesLogger.Printf("PTP %s transaction %d", ptpOperationName(container.Code), container.TransactionID)
	switch container.Code {
	case ptpOpenSession, ptpCloseSession:
		return camera.sendResponse(container, ptpResponseOK)
	case ptpGetDeviceInfo:
		return camera.sendDataAndResponse(container, camera.deviceInfo())
	case ptpGetStorageIDs:
		return camera.sendDataAndResponse(container, camera.ctx.Bytes(fuzz.FieldPTPStorageIDs, ptpUint32Array(ptpStorageID)))
	case ptpGetStorageInfo:
		return camera.sendDataAndResponse(container, camera.storageInfo())
	case ptpGetObjectHandles:
		return camera.sendDataAndResponse(container, camera.ctx.Bytes(fuzz.FieldPTPObjectHandles, ptpUint32Array(ptpObjectHandle)))
	case ptpGetObjectInfo:
		return camera.sendDataAndResponse(container, camera.objectInfo())
	case ptpGetThumb:
		return camera.sendDataAndResponse(container, camera.ctx.Bytes(fuzz.FieldPTPThumbData, ptpThumbnail))
	case ptpSetDevicePropValue:
		camera.pendingSetter = &container
		return nil
	}
	return camera.sendResponse(container, ptpResponseUnsupported)
}

func (camera *ptp) header(length int, containerType uint16, code uint16, transactionID uint32) *fuzz.Writer {
	return fuzz.NewWriter(camera.ctx).
		U32(fuzz.FieldPTPContainerLength, uint32(length)).
		U16(fuzz.FieldPTPContainerType, containerType).
		U16(fuzz.FieldPTPResponseCode, code).
		U32(fuzz.FieldPTPTransactionID, transactionID)
}

func (camera *ptp) sendDataAndResponse(command ptpContainer, payload []byte) error {
	data := camera.header(ptpContainerSize+len(payload), ptpContainerData, command.Code, command.TransactionID).
		Raw(payload).
		Bytes()
	if err := camera.device.Send(ptpBulkIn, data); err != nil {
		return err
	}
	return camera.sendResponse(command, ptpResponseOK)
}

func (camera *ptp) sendResponse(command ptpContainer, code uint16) error {
	response := camera.header(ptpContainerSize, ptpContainerResponse, code, command.TransactionID).Bytes()
	return camera.device.Send(ptpBulkIn, response)
}

// ptpString encodes a PTP string: a character count including the
// terminator, then UTF-16LE characters and a null.
func ptpString(s string) []byte {
	if s == "" {
		return []byte{0}
	}
	encoded := util.Utf16encode(s)
	return util.Concat([]byte{uint8(len(encoded)/2 + 1)}, encoded, []byte{0, 0})
}

func ptpUint16Array(values ...uint16) []byte {
	data := binary.LittleEndian.AppendUint32(nil, uint32(len(values)))
	for _, value := range values {
		data = binary.LittleEndian.AppendUint16(data, value)
	}
	return data
}

func ptpUint32Array(values ...uint32) []byte {
	data := binary.LittleEndian.AppendUint32(nil, uint32(len(values)))
	for _, value := range values {
		data = binary.LittleEndian.AppendUint32(data, value)
	}
	return data
}

func (camera *ptp) deviceInfo() []byte {
	operations := []uint16{
		ptpGetDeviceInfo, ptpOpenSession, ptpCloseSession, ptpGetStorageIDs, ptpGetStorageInfo,
		ptpGetObjectHandles, ptpGetObjectInfo, ptpGetThumb, ptpSetDevicePropValue,
	}
	return fuzz.NewWriter(camera.ctx).
		U16(fuzz.FieldPTPStandardVersion, 100).
		U32(fuzz.FieldPTPVendorExtensionID, 0).
		Raw([]byte{0x00, 0x00}).
		Field(fuzz.FieldPTPVendorExtensionDesc, ptpString("")).
		U16(fuzz.FieldPTPFunctionalMode, 0).
		Field(fuzz.FieldPTPOperationsSupported, ptpUint16Array(operations...)).
		Raw(ptpUint16Array()).
		Raw(ptpUint16Array()).
		Raw(ptpUint16Array()).
		Raw(ptpUint16Array(ptpFormatEXIF, ptpFormatJFIF)).
		Field(fuzz.FieldPTPManufacturer, ptpString(camera.device.Manufacturer)).
		Field(fuzz.FieldPTPModel, ptpString(camera.model)).
		Field(fuzz.FieldPTPDeviceVersion, ptpString("1.0")).
		Field(fuzz.FieldPTPSerialNumber, ptpString(camera.device.SerialNumber)).
		Bytes()
}

func (camera *ptp) storageInfo() []byte {
	return fuzz.NewWriter(camera.ctx).
		U16(fuzz.FieldPTPStorageType, 0x0004).
		U16(fuzz.FieldPTPFilesystemType, 0x0002).
		Raw([]byte{0x00, 0x00}).
		U64(fuzz.FieldPTPMaxCapacity, 64*1024*1024).
		Raw(binary.LittleEndian.AppendUint64(nil, 32*1024*1024)).
		Raw([]byte{0xff, 0xff, 0xff, 0xff}).
		Field(fuzz.FieldPTPStorageDescription, ptpString("Internal Memory")).
		Field(fuzz.FieldPTPVolumeLabel, ptpString("DCIM")).
		Bytes()
}

func (camera *ptp) objectInfo() []byte {
	return fuzz.NewWriter(camera.ctx).
		Raw(binary.LittleEndian.AppendUint32(nil, ptpStorageID)).
		U16(fuzz.FieldPTPObjectFormat, ptpFormatEXIF).
		Raw([]byte{0x00, 0x00}).
		U32(fuzz.FieldPTPObjectCompressedSize, 0x00010000).
		U16(fuzz.FieldPTPThumbFormat, ptpFormatJFIF).
		Raw(binary.LittleEndian.AppendUint32(nil, uint32(len(ptpThumbnail)))).
		Raw(binary.LittleEndian.AppendUint32(nil, 160)).
		Raw(binary.LittleEndian.AppendUint32(nil, 120)).
		Raw(binary.LittleEndian.AppendUint32(nil, 640)).
		Raw(binary.LittleEndian.AppendUint32(nil, 480)).
		Raw(binary.LittleEndian.AppendUint32(nil, 24)).
		Raw(make([]byte, 4+2+4+4)).
		Field(fuzz.FieldPTPFilename, ptpString("IMG_0001.JPG")).
		Field(fuzz.FieldPTPCaptureDate, ptpString("20200101T000000")).
		Raw(ptpString("20200101T000000")).
		Raw(ptpString("")).
		Bytes()
}
