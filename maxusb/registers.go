package maxusb

// AppNum is the board application that exposes the MAX342x registers.
const AppNum uint8 = 0x40

const registerVerb uint8 = 0x00

const (
	RegEP0FIFO         uint8 = 0x00
	RegEP1OutFIFO      uint8 = 0x01
	RegEP2InFIFO       uint8 = 0x02
	RegEP3InFIFO       uint8 = 0x03
	RegSetupDataFIFO   uint8 = 0x04
	RegEP0ByteCount    uint8 = 0x05
	RegEP1OutByteCount uint8 = 0x06
	RegEP2InByteCount  uint8 = 0x07
	RegEP3InByteCount  uint8 = 0x08
	RegEPStalls        uint8 = 0x09
	RegClearToggles    uint8 = 0x0a
	RegEndpointIRQ     uint8 = 0x0b
	RegEndpointIRQEn   uint8 = 0x0c
	RegUSBIRQ          uint8 = 0x0d
	RegUSBIRQEn        uint8 = 0x0e
	RegUSBControl      uint8 = 0x0f
	RegCPUControl      uint8 = 0x10
	RegPinControl      uint8 = 0x11
	RegRevision        uint8 = 0x12
	RegFunctionAddress uint8 = 0x13
	RegIOPins          uint8 = 0x14
)

var registerDescriptions = map[uint8]string{
	RegEP0FIFO:         "EP0FIFO",
	RegEP1OutFIFO:      "EP1OUTFIFO",
	RegEP2InFIFO:       "EP2INFIFO",
	RegEP3InFIFO:       "EP3INFIFO",
	RegSetupDataFIFO:   "SUDFIFO",
	RegEP0ByteCount:    "EP0BC",
	RegEP1OutByteCount: "EP1OUTBC",
	RegEP2InByteCount:  "EP2INBC",
	RegEP3InByteCount:  "EP3INBC",
	RegEPStalls:        "EPSTALLS",
	RegClearToggles:    "CLRTOGS",
	RegEndpointIRQ:     "EPIRQ",
	RegEndpointIRQEn:   "EPIEN",
	RegUSBIRQ:          "USBIRQ",
	RegUSBIRQEn:        "USBIEN",
	RegUSBControl:      "USBCTL",
	RegCPUControl:      "CPUCTL",
	RegPinControl:      "PINCTL",
	RegRevision:        "REVISION",
	RegFunctionAddress: "FNADDR",
	RegIOPins:          "IOPINS",
}

// Endpoint IRQ bits.
const (
	IRQIn0   uint8 = 0x01
	IRQOut0  uint8 = 0x02
	IRQOut1  uint8 = 0x04
	IRQIn2   uint8 = 0x08
	IRQIn3   uint8 = 0x10
	IRQSetup uint8 = 0x20
)

const (
	USBControlVBGate  uint8 = 0x40
	USBControlConnect uint8 = 0x08

	PinControlFullDuplex     uint8 = 0x10
	PinControlInterruptLevel uint8 = 0x08

	// Stalls EP0 IN, EP0 OUT and the status stage.
	StallEP0Value uint8 = 0x23
)

const (
	registerFlagAck   uint8 = 0x01
	registerFlagWrite uint8 = 0x02
)

// FIFOSize is the depth of each endpoint FIFO.
const FIFOSize = 64

type endpointFIFO struct {
	fifo      uint8
	byteCount uint8
}

var inEndpoints = map[uint8]endpointFIFO{
	0: {RegEP0FIFO, RegEP0ByteCount},
	2: {RegEP2InFIFO, RegEP2InByteCount},
	3: {RegEP3InFIFO, RegEP3InByteCount},
}
