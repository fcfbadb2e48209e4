package fuzz

import "fmt"

// Field identifies one producible descriptor or response field. The set is
// closed: catalogs naming anything else are rejected when parsed.
type Field uint16

const (
	FieldNone Field = iota

	FieldDeviceLength
	FieldDeviceDescriptorType
	FieldDeviceBcdUSB
	FieldDeviceClass
	FieldDeviceSubClass
	FieldDeviceProtocol
	FieldDeviceMaxPacketSize0
	FieldDeviceVendorID
	FieldDeviceProductID
	FieldDeviceBcdDevice
	FieldDeviceManufacturer
	FieldDeviceProduct
	FieldDeviceSerialNumber
	FieldDeviceNumConfigurations

	FieldConfigLength
	FieldConfigDescriptorType
	FieldConfigTotalLength
	FieldConfigNumInterfaces
	FieldConfigValue
	FieldConfigString
	FieldConfigAttributes
	FieldConfigMaxPower

	FieldInterfaceLength
	FieldInterfaceDescriptorType
	FieldInterfaceNumber
	FieldInterfaceAlternateSetting
	FieldInterfaceNumEndpoints
	FieldInterfaceClass
	FieldInterfaceSubClass
	FieldInterfaceProtocol
	FieldInterfaceString

	FieldEndpointLength
	FieldEndpointDescriptorType
	FieldEndpointAddress
	FieldEndpointAttributes
	FieldEndpointMaxPacketSize
	FieldEndpointInterval

	FieldStringLength
	FieldStringDescriptorType
	FieldStringLanguageIDs
	FieldStringContent

	FieldQualifierLength
	FieldQualifierDescriptorType
	FieldQualifierBcdUSB
	FieldQualifierMaxPacketSize0
	FieldQualifierNumConfigurations

	FieldHIDLength
	FieldHIDDescriptorType
	FieldHIDBcdHID
	FieldHIDCountryCode
	FieldHIDNumDescriptors
	FieldHIDClassDescriptorType
	FieldHIDReportLength
	FieldHIDReportDescriptor
	FieldHIDReport

	FieldHubLength
	FieldHubDescriptorType
	FieldHubNumPorts
	FieldHubCharacteristics
	FieldHubPowerOnToPowerGood
	FieldHubControllerCurrent
	FieldHubDeviceRemovable
	FieldHubPortPowerControlMask
	FieldHubStatus

	FieldInquiryPeripheral
	FieldInquiryRemovable
	FieldInquiryVersion
	FieldInquiryResponseFormat
	FieldInquiryAdditionalLength
	FieldInquiryVendorID
	FieldInquiryProductID
	FieldInquiryProductRevision
	FieldSenseResponseCode
	FieldSenseKey
	FieldSenseAdditionalLength
	FieldSenseCode
	FieldSenseQualifier
	FieldModeSenseDataLength
	FieldModeSenseMediumType
	FieldModeSenseDeviceSpecific
	FieldModeSenseBlockDescriptorLength
	FieldReadCapacityLastLBA
	FieldReadCapacityBlockLength
	FieldFormatCapacityListLength
	FieldFormatCapacityBlocks
	FieldFormatCapacityDescriptorCode
	FieldFormatCapacityBlockLength
	FieldCSWSignature
	FieldCSWTag
	FieldCSWResidue
	FieldCSWStatus
	FieldMaxLUN

	FieldPTPContainerLength
	FieldPTPContainerType
	FieldPTPResponseCode
	FieldPTPTransactionID
	FieldPTPStandardVersion
	FieldPTPVendorExtensionID
	FieldPTPVendorExtensionDesc
	FieldPTPFunctionalMode
	FieldPTPOperationsSupported
	FieldPTPManufacturer
	FieldPTPModel
	FieldPTPDeviceVersion
	FieldPTPSerialNumber
	FieldPTPStorageIDs
	FieldPTPStorageType
	FieldPTPFilesystemType
	FieldPTPMaxCapacity
	FieldPTPStorageDescription
	FieldPTPVolumeLabel
	FieldPTPObjectHandles
	FieldPTPObjectFormat
	FieldPTPObjectCompressedSize
	FieldPTPThumbFormat
	FieldPTPFilename
	FieldPTPCaptureDate
	FieldPTPThumbData
	FieldPTPDeviceStatus

	FieldPrinterDeviceIDLength
	FieldPrinterDeviceID
	FieldPrinterPortStatus

	FieldCCIDLength
	FieldCCIDDescriptorType
	FieldCCIDBcdCCID
	FieldCCIDMaxSlotIndex
	FieldCCIDVoltageSupport
	FieldCCIDProtocols
	FieldCCIDDefaultClock
	FieldCCIDMaximumClock
	FieldCCIDNumClockSupported
	FieldCCIDDataRate
	FieldCCIDMaxDataRate
	FieldCCIDNumDataRatesSupported
	FieldCCIDMaxIFSD
	FieldCCIDSynchProtocols
	FieldCCIDMechanical
	FieldCCIDFeatures
	FieldCCIDMaxMessageLength
	FieldCCIDClassGetResponse
	FieldCCIDClassEnvelope
	FieldCCIDLcdLayout
	FieldCCIDPINSupport
	FieldCCIDMaxBusySlots
	FieldCCIDATR
	FieldCCIDMessageLength
	FieldCCIDSlotStatus
	FieldCCIDClockFrequencies
	FieldCCIDDataRates

	FieldAudioHeaderLength
	FieldAudioHeaderBcdADC
	FieldAudioHeaderTotalLength
	FieldAudioHeaderInCollection
	FieldAudioInputTerminalLength
	FieldAudioInputTerminalType
	FieldAudioInputChannels
	FieldAudioOutputTerminalLength
	FieldAudioOutputTerminalType
	FieldAudioOutputSourceID
	FieldAudioGeneralLength
	FieldAudioGeneralFormatTag
	FieldAudioFormatLength
	FieldAudioFormatChannels
	FieldAudioFormatSubframeSize
	FieldAudioFormatBitResolution
	FieldAudioFormatFrequencyCount
	FieldAudioFormatFrequency
	FieldAudioControlValue

	FieldCDCHeaderLength
	FieldCDCHeaderBcdCDC
	FieldCDCCallManagementCapabilities
	FieldCDCCallManagementDataInterface
	FieldCDCACMCapabilities
	FieldCDCUnionMasterInterface
	FieldCDCUnionSlaveInterface
	FieldCDCLineCoding

	fieldCount
)

type width uint8

const (
	width8 width = iota
	width16
	width24
	width32
	width64
	widthBytes
)

// Owning class codes. Zero marks enumeration fields produced by every device.
const (
	ownerEnumeration uint8 = 0x00
	ownerAudio       uint8 = 0x01
	ownerCDC         uint8 = 0x02
	ownerHID         uint8 = 0x03
	ownerImage       uint8 = 0x06
	ownerPrinter     uint8 = 0x07
	ownerMassStorage uint8 = 0x08
	ownerHub         uint8 = 0x09
	ownerSmartcard   uint8 = 0x0B
)

type fieldSpec struct {
	name  string
	width width
	owner uint8
}

var fieldSpecs = [fieldCount]fieldSpec{
	FieldNone: {"none", widthBytes, ownerEnumeration},

	FieldDeviceLength:            {"dev_bLength", width8, ownerEnumeration},
	FieldDeviceDescriptorType:    {"dev_bDescriptorType", width8, ownerEnumeration},
	FieldDeviceBcdUSB:            {"dev_bcdUSB", width16, ownerEnumeration},
	FieldDeviceClass:             {"dev_bDeviceClass", width8, ownerEnumeration},
	FieldDeviceSubClass:          {"dev_bDeviceSubClass", width8, ownerEnumeration},
	FieldDeviceProtocol:          {"dev_bDeviceProtocol", width8, ownerEnumeration},
	FieldDeviceMaxPacketSize0:    {"dev_bMaxPacketSize0", width8, ownerEnumeration},
	FieldDeviceVendorID:          {"dev_idVendor", width16, ownerEnumeration},
	FieldDeviceProductID:         {"dev_idProduct", width16, ownerEnumeration},
	FieldDeviceBcdDevice:         {"dev_bcdDevice", width16, ownerEnumeration},
	FieldDeviceManufacturer:      {"dev_iManufacturer", width8, ownerEnumeration},
	FieldDeviceProduct:           {"dev_iProduct", width8, ownerEnumeration},
	FieldDeviceSerialNumber:      {"dev_iSerialNumber", width8, ownerEnumeration},
	FieldDeviceNumConfigurations: {"dev_bNumConfigurations", width8, ownerEnumeration},

	FieldConfigLength:         {"cfg_bLength", width8, ownerEnumeration},
	FieldConfigDescriptorType: {"cfg_bDescriptorType", width8, ownerEnumeration},
	FieldConfigTotalLength:    {"cfg_wTotalLength", width16, ownerEnumeration},
	FieldConfigNumInterfaces:  {"cfg_bNumInterfaces", width8, ownerEnumeration},
	FieldConfigValue:          {"cfg_bConfigurationValue", width8, ownerEnumeration},
	FieldConfigString:         {"cfg_iConfiguration", width8, ownerEnumeration},
	FieldConfigAttributes:     {"cfg_bmAttributes", width8, ownerEnumeration},
	FieldConfigMaxPower:       {"cfg_bMaxPower", width8, ownerEnumeration},

	FieldInterfaceLength:           {"if_bLength", width8, ownerEnumeration},
	FieldInterfaceDescriptorType:   {"if_bDescriptorType", width8, ownerEnumeration},
	FieldInterfaceNumber:           {"if_bInterfaceNumber", width8, ownerEnumeration},
	FieldInterfaceAlternateSetting: {"if_bAlternateSetting", width8, ownerEnumeration},
	FieldInterfaceNumEndpoints:     {"if_bNumEndpoints", width8, ownerEnumeration},
	FieldInterfaceClass:            {"if_bInterfaceClass", width8, ownerEnumeration},
	FieldInterfaceSubClass:         {"if_bInterfaceSubClass", width8, ownerEnumeration},
	FieldInterfaceProtocol:         {"if_bInterfaceProtocol", width8, ownerEnumeration},
	FieldInterfaceString:           {"if_iInterface", width8, ownerEnumeration},

	FieldEndpointLength:         {"ep_bLength", width8, ownerEnumeration},
	FieldEndpointDescriptorType: {"ep_bDescriptorType", width8, ownerEnumeration},
	FieldEndpointAddress:        {"ep_bEndpointAddress", width8, ownerEnumeration},
	FieldEndpointAttributes:     {"ep_bmAttributes", width8, ownerEnumeration},
	FieldEndpointMaxPacketSize:  {"ep_wMaxPacketSize", width16, ownerEnumeration},
	FieldEndpointInterval:       {"ep_bInterval", width8, ownerEnumeration},

	FieldStringLength:         {"str_bLength", width8, ownerEnumeration},
	FieldStringDescriptorType: {"str_bDescriptorType", width8, ownerEnumeration},
	FieldStringLanguageIDs:    {"str_wLANGID", widthBytes, ownerEnumeration},
	FieldStringContent:        {"str_bString", widthBytes, ownerEnumeration},

	FieldQualifierLength:            {"dq_bLength", width8, ownerEnumeration},
	FieldQualifierDescriptorType:    {"dq_bDescriptorType", width8, ownerEnumeration},
	FieldQualifierBcdUSB:            {"dq_bcdUSB", width16, ownerEnumeration},
	FieldQualifierMaxPacketSize0:    {"dq_bMaxPacketSize0", width8, ownerEnumeration},
	FieldQualifierNumConfigurations: {"dq_bNumConfigurations", width8, ownerEnumeration},

	FieldHIDLength:              {"hid_bLength", width8, ownerHID},
	FieldHIDDescriptorType:      {"hid_bDescriptorType", width8, ownerHID},
	FieldHIDBcdHID:              {"hid_bcdHID", width16, ownerHID},
	FieldHIDCountryCode:         {"hid_bCountryCode", width8, ownerHID},
	FieldHIDNumDescriptors:      {"hid_bNumDescriptors", width8, ownerHID},
	FieldHIDClassDescriptorType: {"hid_bClassDescriptorType", width8, ownerHID},
	FieldHIDReportLength:        {"hid_wDescriptorLength", width16, ownerHID},
	FieldHIDReportDescriptor:    {"hid_report_descriptor", widthBytes, ownerHID},
	FieldHIDReport:              {"hid_report", widthBytes, ownerHID},

	FieldHubLength:               {"hub_bLength", width8, ownerHub},
	FieldHubDescriptorType:       {"hub_bDescriptorType", width8, ownerHub},
	FieldHubNumPorts:             {"hub_bNbrPorts", width8, ownerHub},
	FieldHubCharacteristics:      {"hub_wHubCharacteristics", width16, ownerHub},
	FieldHubPowerOnToPowerGood:   {"hub_bPwrOn2PwrGood", width8, ownerHub},
	FieldHubControllerCurrent:    {"hub_bHubContrCurrent", width8, ownerHub},
	FieldHubDeviceRemovable:      {"hub_DeviceRemovable", width8, ownerHub},
	FieldHubPortPowerControlMask: {"hub_PortPwrCtrlMask", width8, ownerHub},
	FieldHubStatus:               {"hub_status", width32, ownerHub},

	FieldInquiryPeripheral:              {"inquiry_peripheral", width8, ownerMassStorage},
	FieldInquiryRemovable:               {"inquiry_rmb", width8, ownerMassStorage},
	FieldInquiryVersion:                 {"inquiry_version", width8, ownerMassStorage},
	FieldInquiryResponseFormat:          {"inquiry_response_data_format", width8, ownerMassStorage},
	FieldInquiryAdditionalLength:        {"inquiry_additional_length", width8, ownerMassStorage},
	FieldInquiryVendorID:                {"inquiry_vendor_id", widthBytes, ownerMassStorage},
	FieldInquiryProductID:               {"inquiry_product_id", widthBytes, ownerMassStorage},
	FieldInquiryProductRevision:         {"inquiry_product_revision", widthBytes, ownerMassStorage},
	FieldSenseResponseCode:              {"sense_response_code", width8, ownerMassStorage},
	FieldSenseKey:                       {"sense_key", width8, ownerMassStorage},
	FieldSenseAdditionalLength:          {"sense_additional_length", width8, ownerMassStorage},
	FieldSenseCode:                      {"sense_asc", width8, ownerMassStorage},
	FieldSenseQualifier:                 {"sense_ascq", width8, ownerMassStorage},
	FieldModeSenseDataLength:            {"mode_sense_data_length", width8, ownerMassStorage},
	FieldModeSenseMediumType:            {"mode_sense_medium_type", width8, ownerMassStorage},
	FieldModeSenseDeviceSpecific:        {"mode_sense_device_specific", width8, ownerMassStorage},
	FieldModeSenseBlockDescriptorLength: {"mode_sense_block_descriptor_length", width8, ownerMassStorage},
	FieldReadCapacityLastLBA:            {"read_capacity_last_lba", width32, ownerMassStorage},
	FieldReadCapacityBlockLength:        {"read_capacity_block_length", width32, ownerMassStorage},
	FieldFormatCapacityListLength:       {"format_capacity_list_length", width8, ownerMassStorage},
	FieldFormatCapacityBlocks:           {"format_capacity_num_blocks", width32, ownerMassStorage},
	FieldFormatCapacityDescriptorCode:   {"format_capacity_descriptor_code", width8, ownerMassStorage},
	FieldFormatCapacityBlockLength:      {"format_capacity_block_length", width24, ownerMassStorage},
	FieldCSWSignature:                   {"csw_signature", width32, ownerMassStorage},
	FieldCSWTag:                         {"csw_tag", width32, ownerMassStorage},
	FieldCSWResidue:                     {"csw_residue", width32, ownerMassStorage},
	FieldCSWStatus:                      {"csw_status", width8, ownerMassStorage},
	FieldMaxLUN:                         {"max_lun", width8, ownerMassStorage},

	FieldPTPContainerLength:      {"ptp_container_length", width32, ownerImage},
	FieldPTPContainerType:        {"ptp_container_type", width16, ownerImage},
	FieldPTPResponseCode:         {"ptp_response_code", width16, ownerImage},
	FieldPTPTransactionID:        {"ptp_transaction_id", width32, ownerImage},
	FieldPTPStandardVersion:      {"ptp_standard_version", width16, ownerImage},
	FieldPTPVendorExtensionID:    {"ptp_vendor_extension_id", width32, ownerImage},
	FieldPTPVendorExtensionDesc:  {"ptp_vendor_extension_desc", widthBytes, ownerImage},
	FieldPTPFunctionalMode:       {"ptp_functional_mode", width16, ownerImage},
	FieldPTPOperationsSupported:  {"ptp_operations_supported", widthBytes, ownerImage},
	FieldPTPManufacturer:         {"ptp_manufacturer", widthBytes, ownerImage},
	FieldPTPModel:                {"ptp_model", widthBytes, ownerImage},
	FieldPTPDeviceVersion:        {"ptp_device_version", widthBytes, ownerImage},
	FieldPTPSerialNumber:         {"ptp_serial_number", widthBytes, ownerImage},
	FieldPTPStorageIDs:           {"ptp_storage_ids", widthBytes, ownerImage},
	FieldPTPStorageType:          {"ptp_storage_type", width16, ownerImage},
	FieldPTPFilesystemType:       {"ptp_filesystem_type", width16, ownerImage},
	FieldPTPMaxCapacity:          {"ptp_max_capacity", width64, ownerImage},
	FieldPTPStorageDescription:   {"ptp_storage_description", widthBytes, ownerImage},
	FieldPTPVolumeLabel:          {"ptp_volume_label", widthBytes, ownerImage},
	FieldPTPObjectHandles:        {"ptp_object_handles", widthBytes, ownerImage},
	FieldPTPObjectFormat:         {"ptp_object_format", width16, ownerImage},
	FieldPTPObjectCompressedSize: {"ptp_object_compressed_size", width32, ownerImage},
	FieldPTPThumbFormat:          {"ptp_thumb_format", width16, ownerImage},
	FieldPTPFilename:             {"ptp_filename", widthBytes, ownerImage},
	FieldPTPCaptureDate:          {"ptp_capture_date", widthBytes, ownerImage},
	FieldPTPThumbData:            {"ptp_thumb_data", widthBytes, ownerImage},
	FieldPTPDeviceStatus:         {"ptp_device_status", widthBytes, ownerImage},

	FieldPrinterDeviceIDLength: {"printer_device_id_length", width16, ownerPrinter},
	FieldPrinterDeviceID:       {"printer_device_id", widthBytes, ownerPrinter},
	FieldPrinterPortStatus:     {"printer_port_status", width8, ownerPrinter},

	FieldCCIDLength:                {"ccid_bLength", width8, ownerSmartcard},
	FieldCCIDDescriptorType:        {"ccid_bDescriptorType", width8, ownerSmartcard},
	FieldCCIDBcdCCID:               {"ccid_bcdCCID", width16, ownerSmartcard},
	FieldCCIDMaxSlotIndex:          {"ccid_bMaxSlotIndex", width8, ownerSmartcard},
	FieldCCIDVoltageSupport:        {"ccid_bVoltageSupport", width8, ownerSmartcard},
	FieldCCIDProtocols:             {"ccid_dwProtocols", width32, ownerSmartcard},
	FieldCCIDDefaultClock:          {"ccid_dwDefaultClock", width32, ownerSmartcard},
	FieldCCIDMaximumClock:          {"ccid_dwMaximumClock", width32, ownerSmartcard},
	FieldCCIDNumClockSupported:     {"ccid_bNumClockSupported", width8, ownerSmartcard},
	FieldCCIDDataRate:              {"ccid_dwDataRate", width32, ownerSmartcard},
	FieldCCIDMaxDataRate:           {"ccid_dwMaxDataRate", width32, ownerSmartcard},
	FieldCCIDNumDataRatesSupported: {"ccid_bNumDataRatesSupported", width8, ownerSmartcard},
	FieldCCIDMaxIFSD:               {"ccid_dwMaxIFSD", width32, ownerSmartcard},
	FieldCCIDSynchProtocols:        {"ccid_dwSynchProtocols", width32, ownerSmartcard},
	FieldCCIDMechanical:            {"ccid_dwMechanical", width32, ownerSmartcard},
	FieldCCIDFeatures:              {"ccid_dwFeatures", width32, ownerSmartcard},
	FieldCCIDMaxMessageLength:      {"ccid_dwMaxCCIDMessageLength", width32, ownerSmartcard},
	FieldCCIDClassGetResponse:      {"ccid_bClassGetResponse", width8, ownerSmartcard},
	FieldCCIDClassEnvelope:         {"ccid_bClassEnvelope", width8, ownerSmartcard},
	FieldCCIDLcdLayout:             {"ccid_wLcdLayout", width16, ownerSmartcard},
	FieldCCIDPINSupport:            {"ccid_bPINSupport", width8, ownerSmartcard},
	FieldCCIDMaxBusySlots:          {"ccid_bMaxCCIDBusySlots", width8, ownerSmartcard},
	FieldCCIDATR:                   {"ccid_atr", widthBytes, ownerSmartcard},
	FieldCCIDMessageLength:         {"ccid_msg_length", width32, ownerSmartcard},
	FieldCCIDSlotStatus:            {"ccid_slot_status", width8, ownerSmartcard},
	FieldCCIDClockFrequencies:      {"ccid_clock_frequencies", widthBytes, ownerSmartcard},
	FieldCCIDDataRates:             {"ccid_data_rates", widthBytes, ownerSmartcard},

	FieldAudioHeaderLength:         {"ac_header_bLength", width8, ownerAudio},
	FieldAudioHeaderBcdADC:         {"ac_header_bcdADC", width16, ownerAudio},
	FieldAudioHeaderTotalLength:    {"ac_header_wTotalLength", width16, ownerAudio},
	FieldAudioHeaderInCollection:   {"ac_header_bInCollection", width8, ownerAudio},
	FieldAudioInputTerminalLength:  {"it_bLength", width8, ownerAudio},
	FieldAudioInputTerminalType:    {"it_wTerminalType", width16, ownerAudio},
	FieldAudioInputChannels:        {"it_bNrChannels", width8, ownerAudio},
	FieldAudioOutputTerminalLength: {"ot_bLength", width8, ownerAudio},
	FieldAudioOutputTerminalType:   {"ot_wTerminalType", width16, ownerAudio},
	FieldAudioOutputSourceID:       {"ot_bSourceID", width8, ownerAudio},
	FieldAudioGeneralLength:        {"as_general_bLength", width8, ownerAudio},
	FieldAudioGeneralFormatTag:     {"as_general_wFormatTag", width16, ownerAudio},
	FieldAudioFormatLength:         {"as_format_bLength", width8, ownerAudio},
	FieldAudioFormatChannels:       {"as_format_bNrChannels", width8, ownerAudio},
	FieldAudioFormatSubframeSize:   {"as_format_bSubframeSize", width8, ownerAudio},
	FieldAudioFormatBitResolution:  {"as_format_bBitResolution", width8, ownerAudio},
	FieldAudioFormatFrequencyCount: {"as_format_bSamFreqType", width8, ownerAudio},
	FieldAudioFormatFrequency:      {"as_format_tSamFreq", width24, ownerAudio},
	FieldAudioControlValue:         {"audio_control_value", width16, ownerAudio},

	FieldCDCHeaderLength:                {"cdc_header_bLength", width8, ownerCDC},
	FieldCDCHeaderBcdCDC:                {"cdc_header_bcdCDC", width16, ownerCDC},
	FieldCDCCallManagementCapabilities:  {"cdc_call_management_bmCapabilities", width8, ownerCDC},
	FieldCDCCallManagementDataInterface: {"cdc_call_management_bDataInterface", width8, ownerCDC},
	FieldCDCACMCapabilities:             {"cdc_acm_bmCapabilities", width8, ownerCDC},
	FieldCDCUnionMasterInterface:        {"cdc_union_bMasterInterface", width8, ownerCDC},
	FieldCDCUnionSlaveInterface:         {"cdc_union_bSlaveInterface0", width8, ownerCDC},
	FieldCDCLineCoding:                  {"cdc_line_coding", widthBytes, ownerCDC},
}

var fieldsByName = func() map[string]Field {
	names := make(map[string]Field, fieldCount)
	for i := Field(1); i < fieldCount; i++ {
		names[fieldSpecs[i].name] = i
	}
	return names
}()

func (field Field) String() string {
	if field < fieldCount && fieldSpecs[field].name != "" {
		return fieldSpecs[field].name
	}
	return fmt.Sprintf("Field(%d)", uint16(field))
}

// Owner returns the interface class code whose emulator produces the
// field, or zero for enumeration fields every device produces.
func (field Field) Owner() uint8 {
	if field < fieldCount {
		return fieldSpecs[field].owner
	}
	return ownerEnumeration
}

// MalformedOverrideTarget reports a catalog entry naming an unknown field.
type MalformedOverrideTarget struct {
	CaseName string
	Name     string
}

func (err *MalformedOverrideTarget) Error() string {
	return fmt.Sprintf("fuzz case %q targets unknown field %q", err.CaseName, err.Name)
}

func ParseField(caseName string, name string) (Field, error) {
	if field, ok := fieldsByName[name]; ok {
		return field, nil
	}
	return FieldNone, &MalformedOverrideTarget{CaseName: caseName, Name: name}
}

// Fields lists every producible field in declaration order.
func Fields() []Field {
	fields := make([]Field, 0, fieldCount-1)
	for i := Field(1); i < fieldCount; i++ {
		fields = append(fields, i)
	}
	return fields
}
