package maxusb

import (
	"errors"

	"github.com/bulwarkid/vusb/fuzz"
)

// Thresholds are the numbers of consecutive identical IRQ polls after which
// the host is assumed to have finished with the device. They depend on host
// and board speed; zero disables the check.
type Thresholds struct {
	Enumeration int
	Fuzz        int
}

func DefaultThresholds() Thresholds {
	return Thresholds{Enumeration: 10000, Fuzz: 2000}
}

func (thresholds Thresholds) For(mode fuzz.RunMode) int {
	switch mode {
	case fuzz.RunModeIdentify, fuzz.RunModeEnumerationOnly:
		return thresholds.Enumeration
	case fuzz.RunModeFullFuzz, fuzz.RunModeFuzzSingleShot:
		return thresholds.Fuzz
	case fuzz.RunModeInteractive:
		return 0
	}
	return 0
}

var errNotConnected = errors.New("no device connected")

// ServiceIRQs polls the endpoint IRQ register and hands each event to the
// connected device. It returns after disconnecting, once the device reports
// it is done or the IRQ value has been stable for the mode's threshold.
func (controller *Controller) ServiceIRQs(mode fuzz.RunMode) error {
	if !controller.connected {
		return errNotConnected
	}
	device := controller.device
	threshold := controller.thresholds.For(mode)
	stable := 0
	previous := uint8(0)
	for {
		irq, err := controller.ReadRegister(RegEndpointIRQ, false)
		if err != nil {
			return err
		}
		if irq == previous {
			stable++
		} else {
			stable = 0
		}
		previous = irq
		if threshold > 0 && stable >= threshold {
			maxusbLogger.Printf("IRQ stable for %d polls, ending run", stable)
			return controller.Disconnect()
		}
		if irq&IRQSetup != 0 {
			if err := controller.ClearIRQBit(RegEndpointIRQ, IRQSetup); err != nil {
				return err
			}
			packet, err := controller.ReadBytes(RegSetupDataFIFO, 8)
			if err != nil {
				return err
			}
			if err := device.HandleSetup(packet); err != nil {
				return err
			}
		}
		if irq&IRQOut1 != 0 {
			data, err := controller.ReadFromEndpoint(1)
			if err != nil {
				return err
			}
			if len(data) > 0 {
				if err := device.HandleData(1, data); err != nil {
					return err
				}
			}
		}
		if irq&IRQIn2 != 0 {
			if err := device.HandleBufferAvailable(2); err != nil {
				return err
			}
		}
		if irq&IRQIn3 != 0 {
			if err := device.HandleBufferAvailable(3); err != nil {
				return err
			}
		}
		if device.Done() {
			maxusbLogger.Printf("Device finished, ending run")
			return controller.Disconnect()
		}
	}
}
