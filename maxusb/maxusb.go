package maxusb

import (
	"fmt"
	"time"

	"github.com/bulwarkid/vusb/facedancer"
	"github.com/bulwarkid/vusb/util"
)

var maxusbLogger = util.NewLogger("[MAXUSB] ", util.LogLevelTrace)

// Transport carries frames to the board. *facedancer.Board satisfies it.
type Transport interface {
	Send(app uint8, verb uint8, payload []byte) error
	Receive() (facedancer.Frame, error)
}

// Device receives the events the service loop decodes from the IRQ register.
type Device interface {
	HandleSetup(packet []byte) error
	HandleData(endpoint uint8, data []byte) error
	HandleBufferAvailable(endpoint uint8) error
	Done() bool
}

// Controller drives a MAX342x peripheral controller through the board.
type Controller struct {
	transport  Transport
	thresholds Thresholds
	device     Device
	connected  bool
}

func New(transport Transport, thresholds Thresholds) (*Controller, error) {
	controller := &Controller{transport: transport, thresholds: thresholds}
	if _, err := controller.transact(facedancer.MonitorApp, facedancer.MonitorVerbEnable, []byte{AppNum}); err != nil {
		return nil, fmt.Errorf("could not enable MAXUSB app: %w", err)
	}
	if err := controller.WriteRegister(RegPinControl, PinControlFullDuplex|PinControlInterruptLevel, false); err != nil {
		return nil, err
	}
	revision, err := controller.Revision()
	if err != nil {
		return nil, err
	}
	maxusbLogger.Printf("MAX342x revision 0x%02x", revision)
	return controller, nil
}

func (controller *Controller) transact(app uint8, verb uint8, payload []byte) (facedancer.Frame, error) {
	if err := controller.transport.Send(app, verb, payload); err != nil {
		return facedancer.Frame{}, err
	}
	return controller.transport.Receive()
}

func (controller *Controller) ReadRegister(reg uint8, ack bool) (uint8, error) {
	command := reg << 3
	if ack {
		command |= registerFlagAck
	}
	response, err := controller.transact(AppNum, registerVerb, []byte{command, 0})
	if err != nil {
		return 0, err
	}
	if len(response.Payload) < 2 {
		return 0, &facedancer.ChannelError{Op: "read register", Kind: facedancer.ErrorKindShortRead, Err: fmt.Errorf("%d byte reply", len(response.Payload))}
	}
	maxusbLogger.Printf("READ %s: 0x%02x", registerDescriptions[reg], response.Payload[1])
	return response.Payload[1], nil
}

func (controller *Controller) WriteRegister(reg uint8, value uint8, ack bool) error {
	command := reg<<3 | registerFlagWrite
	if ack {
		command |= registerFlagAck
	}
	maxusbLogger.Printf("WRITE %s: 0x%02x", registerDescriptions[reg], value)
	_, err := controller.transact(AppNum, registerVerb, []byte{command, value})
	return err
}

func (controller *Controller) ReadBytes(reg uint8, n int) ([]byte, error) {
	payload := make([]byte, n+1)
	payload[0] = reg << 3
	response, err := controller.transact(AppNum, registerVerb, payload)
	if err != nil {
		return nil, err
	}
	if len(response.Payload) < n+1 {
		return nil, &facedancer.ChannelError{Op: "read bytes", Kind: facedancer.ErrorKindShortRead, Err: fmt.Errorf("wanted %d bytes, got %d", n, len(response.Payload)-1)}
	}
	return response.Payload[1 : n+1], nil
}

// WriteBytes loads data into a FIFO register, FIFOSize bytes per frame.
func (controller *Controller) WriteBytes(reg uint8, data []byte) error {
	for _, chunk := range util.Chunk(data, FIFOSize) {
		payload := append([]byte{reg<<3 | registerFlagWrite | registerFlagAck}, chunk...)
		if _, err := controller.transact(AppNum, registerVerb, payload); err != nil {
			return err
		}
	}
	return nil
}

func (controller *Controller) Revision() (uint8, error) {
	return controller.ReadRegister(RegRevision, false)
}

func (controller *Controller) ClearIRQBit(reg uint8, bit uint8) error {
	return controller.WriteRegister(reg, bit, false)
}

func (controller *Controller) StallEP0() error {
	maxusbLogger.Printf("Stalling EP0")
	return controller.WriteRegister(RegEPStalls, StallEP0Value, false)
}

// AckStatusStage completes a control transfer that has no data stage.
func (controller *Controller) AckStatusStage() error {
	_, err := controller.transact(AppNum, registerVerb, []byte{registerFlagAck})
	return err
}

// SendOnEndpoint loads data into an IN endpoint, refilling the FIFO until
// everything has been queued. Endpoints without an IN FIFO are ignored.
func (controller *Controller) SendOnEndpoint(endpoint uint8, data []byte) error {
	registers, ok := inEndpoints[endpoint]
	if !ok {
		maxusbLogger.Printf("Ignoring send on endpoint %d", endpoint)
		return nil
	}
	for _, chunk := range util.Chunk(data, FIFOSize) {
		if len(chunk) > 0 {
			if err := controller.WriteBytes(registers.fifo, chunk); err != nil {
				return err
			}
		}
		if err := controller.WriteRegister(registers.byteCount, uint8(len(chunk)), true); err != nil {
			return err
		}
	}
	return nil
}

// ReadFromEndpoint drains the OUT1 FIFO. Only endpoint 1 has an OUT FIFO.
func (controller *Controller) ReadFromEndpoint(endpoint uint8) ([]byte, error) {
	if endpoint != 1 {
		return nil, nil
	}
	count, err := controller.ReadRegister(RegEP1OutByteCount, false)
	if err != nil {
		return nil, err
	}
	data, err := controller.ReadBytes(RegEP1OutFIFO, int(count))
	if err != nil {
		return nil, err
	}
	if err := controller.ClearIRQBit(RegEndpointIRQ, IRQOut1); err != nil {
		return nil, err
	}
	return data, nil
}

func (controller *Controller) Connect(device Device) error {
	control, err := controller.ReadRegister(RegUSBControl, false)
	if err != nil {
		return err
	}
	if control&USBControlConnect != 0 {
		if err := controller.WriteRegister(RegUSBControl, USBControlVBGate, false); err != nil {
			return err
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err := controller.WriteRegister(RegUSBControl, USBControlVBGate|USBControlConnect, false); err != nil {
		return err
	}
	controller.device = device
	controller.connected = true
	maxusbLogger.Printf("Connected device")
	return nil
}

// Disconnect drops the pull-up. It does nothing when no device is connected.
func (controller *Controller) Disconnect() error {
	if !controller.connected {
		return nil
	}
	controller.connected = false
	controller.device = nil
	maxusbLogger.Printf("Disconnected device")
	return controller.WriteRegister(RegUSBControl, USBControlVBGate, false)
}

func (controller *Controller) Connected() bool {
	return controller.connected
}
