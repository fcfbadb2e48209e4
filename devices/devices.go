// Package devices builds emulated USB device variants for each supported
// class.
package devices

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/usb"
	"github.com/bulwarkid/vusb/util"
)

var devicesLogger = util.NewLogger("[DEVICES] ", util.LogLevelDebug)

type Kind uint8

const (
	KindAudio Kind = iota
	KindCDC
	KindKeyboard
	KindImage
	KindPrinter
	KindMassStorage
	KindHub
	KindSmartcard
	KindVendor
	KindIPhone
)

// Options customise a built device. Zero values keep the class defaults.
type Options struct {
	VendorID  uint16
	ProductID uint16
	Revision  uint16
	// DiskImage backs mass storage. Empty means a zero-filled in-memory disk.
	DiskImage string
	// Storage, when set, backs mass storage instead of DiskImage.
	Storage BlockStore
	// Keystrokes are typed by the keyboard once it is configured.
	Keystrokes string
}

type constructor func(phy usb.Phy, ctx *fuzz.Context, target fuzz.Target, options Options) (*Instance, error)

type kindInfo struct {
	name    string
	targets []fuzz.Target
	build   constructor
}

var kinds = map[Kind]kindInfo{
	KindAudio:       {"audio", []fuzz.Target{{Class: 0x01, Subclass: 0x01, Protocol: 0x00}, {Class: 0x01, Subclass: 0x02, Protocol: 0x00}}, newAudio},
	KindCDC:         {"serial", []fuzz.Target{{Class: 0x02, Subclass: 0x02, Protocol: 0x01}, {Class: 0x02, Subclass: 0x02, Protocol: 0x00}}, newCDC},
	KindKeyboard:    {"keyboard", []fuzz.Target{{Class: 0x03, Subclass: 0x00, Protocol: 0x00}, {Class: 0x03, Subclass: 0x01, Protocol: 0x01}}, newKeyboard},
	KindImage:       {"image", []fuzz.Target{{Class: 0x06, Subclass: 0x01, Protocol: 0x01}}, newImage},
	KindPrinter:     {"printer", []fuzz.Target{{Class: 0x07, Subclass: 0x01, Protocol: 0x02}, {Class: 0x07, Subclass: 0x01, Protocol: 0x01}, {Class: 0x07, Subclass: 0x01, Protocol: 0x03}}, newPrinter},
	KindMassStorage: {"mass_storage", []fuzz.Target{{Class: 0x08, Subclass: 0x06, Protocol: 0x50}, {Class: 0x08, Subclass: 0x05, Protocol: 0x50}, {Class: 0x08, Subclass: 0x02, Protocol: 0x50}}, newMassStorage},
	KindHub:         {"hub", []fuzz.Target{{Class: 0x09, Subclass: 0x00, Protocol: 0x00}}, newHub},
	KindSmartcard:   {"smartcard", []fuzz.Target{{Class: 0x0b, Subclass: 0x00, Protocol: 0x00}}, newSmartcard},
	KindVendor:      {"vendor", []fuzz.Target{{Class: 0xff, Subclass: 0xff, Protocol: 0xff}}, newVendor},
	KindIPhone:      {"iphone", []fuzz.Target{{Class: 0xff, Subclass: 0xfe, Protocol: 0x02}}, newIPhone},
}

func (kind Kind) String() string {
	if info, ok := kinds[kind]; ok {
		return info.name
	}
	return fmt.Sprintf("Kind(%d)", uint8(kind))
}

// Target is the triple the kind is built with when none is given.
func (kind Kind) Target() fuzz.Target {
	return kinds[kind].targets[0]
}

func Kinds() []Kind {
	list := make([]Kind, 0, len(kinds))
	for kind := range kinds {
		list = append(list, kind)
	}
	sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
	return list
}

func KindNames() []string {
	names := []string{}
	for _, kind := range Kinds() {
		names = append(names, kind.String())
	}
	return names
}

func ParseKind(name string) (Kind, error) {
	for kind, info := range kinds {
		if strings.EqualFold(info.name, name) {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown device class %q (known: %s)", name, strings.Join(KindNames(), ", "))
}

// KindFor finds the emulator serving a class triple, falling back to any
// emulator of the same class.
func KindFor(target fuzz.Target) (Kind, bool) {
	for _, kind := range Kinds() {
		for _, candidate := range kinds[kind].targets {
			if candidate == target {
				return kind, true
			}
		}
	}
	for _, kind := range Kinds() {
		if kinds[kind].targets[0].Class == target.Class {
			return kind, true
		}
	}
	return 0, false
}

// Targets lists every triple the identify sweep tries.
func Targets() []fuzz.Target {
	targets := []fuzz.Target{}
	for _, kind := range Kinds() {
		targets = append(targets, kinds[kind].targets...)
	}
	return targets
}

// PrimaryTargets lists one triple per kind.
func PrimaryTargets() []fuzz.Target {
	targets := []fuzz.Target{}
	for _, kind := range Kinds() {
		targets = append(targets, kind.Target())
	}
	return targets
}

// Instance is one built device variant.
type Instance struct {
	*usb.Device
	Kind   Kind
	Target fuzz.Target
	close  func() error
}

func (instance *Instance) Close() error {
	if instance.close == nil {
		return nil
	}
	return instance.close()
}

func Build(kind Kind, phy usb.Phy, ctx *fuzz.Context, options Options) (*Instance, error) {
	return BuildTarget(kind, kind.Target(), phy, ctx, options)
}

func BuildTarget(kind Kind, target fuzz.Target, phy usb.Phy, ctx *fuzz.Context, options Options) (*Instance, error) {
	info, ok := kinds[kind]
	if !ok {
		return nil, fmt.Errorf("unknown device kind %d", kind)
	}
	instance, err := info.build(phy, ctx, target, options)
	if err != nil {
		return nil, err
	}
	instance.Kind = kind
	instance.Target = target
	applyOptions(instance.Device, options)
	devicesLogger.Printf("Built %s device %s (%04x:%04x)", kind, target, instance.VendorID, instance.ProductID)
	return instance, nil
}

func applyOptions(device *usb.Device, options Options) {
	if options.VendorID != 0 {
		device.VendorID = options.VendorID
	}
	if options.ProductID != 0 {
		device.ProductID = options.ProductID
	}
	if options.Revision != 0 {
		device.DeviceRevision = options.Revision
	}
}

// BackingStoreError reports a device variant that cannot run because its
// backing data is unavailable.
type BackingStoreError struct {
	Path string
	Err  error
}

func (err *BackingStoreError) Error() string {
	return fmt.Sprintf("backing store %s unavailable: %v", err.Path, err.Err)
}

func (err *BackingStoreError) Unwrap() error {
	return err.Err
}

func singleConfiguration(interfaces ...*usb.Interface) []*usb.Configuration {
	return []*usb.Configuration{{
		Value:      1,
		Attributes: usb.ConfigAttributeBase | usb.ConfigAttributeSelfPowered,
		MaxPower:   50,
		Interfaces: interfaces,
	}}
}

func bulkOut(number uint8) *usb.Endpoint {
	return &usb.Endpoint{Number: number, Direction: usb.DirectionOut, TransferType: usb.TransferBulk, MaxPacketSize: 64}
}

func bulkIn(number uint8) *usb.Endpoint {
	return &usb.Endpoint{Number: number, Direction: usb.DirectionIn, TransferType: usb.TransferBulk, MaxPacketSize: 64}
}

func interruptIn(number uint8, maxPacketSize uint16, interval uint8) *usb.Endpoint {
	return &usb.Endpoint{Number: number, Direction: usb.DirectionIn, TransferType: usb.TransferInterrupt, MaxPacketSize: maxPacketSize, Interval: interval}
}

func ackHandler(device *usb.Device) usb.RequestHandler {
	return func(request usb.Request) error {
		return device.Ack()
	}
}

func replyHandler(device *usb.Device, response func() []byte) usb.RequestHandler {
	return func(request usb.Request) error {
		return device.Reply(request, response())
	}
}
