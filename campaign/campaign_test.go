package campaign

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulwarkid/vusb/devices"
	"github.com/bulwarkid/vusb/fingerprint"
	"github.com/bulwarkid/vusb/fuzz"
	"github.com/bulwarkid/vusb/maxusb"
	"github.com/bulwarkid/vusb/maxusb/maxusbtest"
	"github.com/bulwarkid/vusb/usb"
)

// scriptedLink queues the same host traffic at the start of every session.
type scriptedLink struct {
	*maxusbtest.Board
	resets  int
	onReset func(link *scriptedLink)
}

func newScriptedLink(onReset func(link *scriptedLink)) *scriptedLink {
	return &scriptedLink{Board: maxusbtest.NewBoard(), onReset: onReset}
}

func (link *scriptedLink) Reset() error {
	link.resets++
	if err := link.Board.Reset(); err != nil {
		return err
	}
	if link.onReset != nil {
		link.onReset(link)
	}
	return nil
}

func testConfig() Config {
	return Config{Thresholds: maxusb.Thresholds{Enumeration: 5, Fuzz: 5}}
}

func standardRequest(direction usb.Direction, code usb.RequestCode, value uint16, length uint16) []byte {
	return usb.NewRequest(direction, usb.RequestTypeStandard, usb.RecipientDevice, uint8(code), value, 0, length).Bytes()
}

func setConfiguration() []byte {
	return standardRequest(usb.DirectionOut, usb.RequestSetConfiguration, 1, 0)
}

func getMaxLUN() []byte {
	return usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientInterface, 0xfe, 0, 0, 1).Bytes()
}

func massStorageCase(t *testing.T, name string, field string, value []byte) fuzz.Case {
	_, err := fuzz.ParseField(name, field)
	require.NoError(t, err)
	return fuzz.Case{
		Name:   name,
		Target: fuzz.Target{Class: 0x08, Subclass: 0x06, Protocol: 0x50},
		Field:  field,
		Value:  value,
	}
}

func TestRunRecordsEveryCase(t *testing.T) {
	link := newScriptedLink(func(link *scriptedLink) {
		link.Setup(getMaxLUN())
	})
	report := new(bytes.Buffer)
	config := testConfig()
	config.Report = report
	catalog := fuzz.Catalog{
		massStorageCase(t, "lun", "max_lun", []byte{0xff}),
		massStorageCase(t, "csw", "csw_status", []byte{0x01}),
	}

	summary := New(link, config).Run(catalog)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.NoOp)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, link.resets)
	assert.Equal(t, 2, link.Disconnects)

	records, err := ReadReport(report)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "lun", records[0].Case)
	assert.Equal(t, OutcomeEnded, records[0].Outcome)
	assert.Equal(t, []string{"if:class_0xfe"}, records[0].Requests)
	assert.Equal(t, OutcomeNoOp, records[1].Outcome)
	assert.Equal(t, []byte{0xff}, link.Transfers(0)[0])
}

func TestChannelErrorDoesNotStopCampaign(t *testing.T) {
	link := newScriptedLink(func(link *scriptedLink) {
		link.FailAfter = 0
		link.Setup(getMaxLUN())
	})
	link.OnPoll = func(board *maxusbtest.Board) {
		if link.resets == 1 {
			board.FailAfter = board.Frames
		}
	}
	catalog := fuzz.Catalog{
		massStorageCase(t, "first", "max_lun", []byte{0x00}),
		massStorageCase(t, "second", "max_lun", []byte{0x01}),
	}
	report := new(bytes.Buffer)
	config := testConfig()
	config.Report = report

	summary := New(link, config).Run(catalog)
	assert.Equal(t, 1, summary.Failed)
	records, err := ReadReport(report)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, OutcomeFailed, records[0].Outcome)
	assert.Contains(t, records[0].Error, maxusbtest.ErrInjected.Error())
	assert.Equal(t, OutcomeEnded, records[1].Outcome)
}

func TestMissingDiskImageSkipsClass(t *testing.T) {
	link := newScriptedLink(nil)
	config := testConfig()
	config.Options.DiskImage = filepath.Join(t.TempDir(), "missing.img")
	report := new(bytes.Buffer)
	config.Report = report
	keyboard := fuzz.Case{Name: "kbd", Target: fuzz.Target{Class: 0x03}, Field: "hid_bcdHID", Value: []byte{0, 0}}
	_, err := fuzz.ParseField("kbd", keyboard.Field)
	require.NoError(t, err)
	catalog := fuzz.Catalog{
		massStorageCase(t, "a", "max_lun", []byte{0x01}),
		massStorageCase(t, "b", "max_lun", []byte{0x02}),
		keyboard,
	}

	summary := New(link, config).Run(catalog)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 2, link.resets)
	records, err := ReadReport(report)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, OutcomeSkipped, records[0].Outcome)
	assert.Equal(t, OutcomeSkipped, records[1].Outcome)
	assert.NotEqual(t, OutcomeSkipped, records[2].Outcome)
}

func TestRunOneUsesFuzzThreshold(t *testing.T) {
	link := newScriptedLink(nil)
	config := testConfig()
	config.Thresholds = maxusb.Thresholds{Enumeration: 50, Fuzz: 7}
	record := New(link, config).RunOne(massStorageCase(t, "one", "max_lun", []byte{0x01}))
	assert.Equal(t, OutcomeNoOp, record.Outcome)
	// The first poll already matches the initial zero value.
	assert.Equal(t, 7, link.Polls)
}

func TestIdentifyReportsConfiguredTargets(t *testing.T) {
	link := newScriptedLink(func(link *scriptedLink) {
		if link.resets == 1 {
			link.Setup(setConfiguration())
		}
	})
	targets := []fuzz.Target{
		{Class: 0x08, Subclass: 0x06, Protocol: 0x50},
		{Class: 0x03, Subclass: 0x00, Protocol: 0x00},
		{Class: 0xe0},
	}
	results := New(link, testConfig()).Identify(targets)
	require.Len(t, results, 3)
	assert.True(t, results[0].Supported)
	assert.Equal(t, devices.KindMassStorage, results[0].Kind)
	assert.False(t, results[1].Supported)
	assert.NoError(t, results[1].Err)
	assert.Error(t, results[2].Err)
}

func TestEmulateRunsUntilDeviceFinishes(t *testing.T) {
	link := newScriptedLink(func(link *scriptedLink) {
		link.Setup(setConfiguration())
		for i := 0; i < 3; i++ {
			link.Queue(maxusbtest.Event{IRQ: maxusb.IRQIn3})
		}
	})
	config := testConfig()
	config.Options.Keystrokes = "a"
	session, err := New(link, config).Emulate(devices.KindKeyboard, devices.KindKeyboard.Target())
	require.NoError(t, err)
	assert.True(t, session.Instance.Done())
	assert.Len(t, link.Transfers(3), 2)
	assert.Equal(t, 1, link.Disconnects)
}

func TestFingerprintClassifiesHost(t *testing.T) {
	link := newScriptedLink(func(link *scriptedLink) {
		link.Setup(standardRequest(usb.DirectionIn, usb.RequestGetDescriptor, uint16(usb.DescriptorDevice)<<8, 64))
		link.Setup(standardRequest(usb.DirectionOut, usb.RequestSetAddress, 5, 0))
		link.Setup(standardRequest(usb.DirectionIn, usb.RequestGetDescriptor, uint16(usb.DescriptorDevice)<<8, 18))
		link.Setup(standardRequest(usb.DirectionIn, usb.RequestGetDescriptor, uint16(usb.DescriptorConfiguration)<<8, 9))
	})
	result, err := New(link, testConfig()).Fingerprint(devices.KindKeyboard, fingerprint.DefaultSignatures())
	require.NoError(t, err)
	assert.Equal(t, "Linux", result.OS)
	assert.Len(t, result.Tags, 4)
}
