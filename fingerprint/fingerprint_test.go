package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bulwarkid/vusb/usb"
)

func getDescriptor(descriptorType usb.DescriptorType, length uint16) usb.Request {
	return usb.NewRequest(usb.DirectionIn, usb.RequestTypeStandard, usb.RecipientDevice, uint8(usb.RequestGetDescriptor), uint16(descriptorType)<<8, 0, length)
}

func setAddress() usb.Request {
	return usb.NewRequest(usb.DirectionOut, usb.RequestTypeStandard, usb.RecipientDevice, uint8(usb.RequestSetAddress), 3, 0, 0)
}

func record(requests ...usb.Request) *Recorder {
	recorder := NewRecorder()
	for _, request := range requests {
		recorder.ObserveRequest(request)
	}
	return recorder
}

func TestTags(t *testing.T) {
	assert.Equal(t, "dev:GET_DESCRIPTOR:dev:64", Tag(getDescriptor(usb.DescriptorDevice, 64)))
	assert.Equal(t, "dev:SET_ADDRESS", Tag(setAddress()))
	setConfiguration := usb.NewRequest(usb.DirectionOut, usb.RequestTypeStandard, usb.RecipientDevice, uint8(usb.RequestSetConfiguration), 1, 0, 0)
	assert.Equal(t, "dev:SET_CONFIGURATION:1", Tag(setConfiguration))
	class := usb.NewRequest(usb.DirectionIn, usb.RequestTypeClass, usb.RecipientInterface, 0xfe, 0, 0, 1)
	assert.Equal(t, "if:class_0xfe", Tag(class))
}

func TestClassifyLinux(t *testing.T) {
	recorder := record(
		getDescriptor(usb.DescriptorDevice, 64),
		setAddress(),
		getDescriptor(usb.DescriptorDevice, 18),
		getDescriptor(usb.DescriptorConfiguration, 9),
		getDescriptor(usb.DescriptorConfiguration, 32),
	)
	result := Classify(&recorder.Trace, DefaultSignatures())
	assert.Equal(t, "Linux", result.OS)
	assert.Equal(t, 4, result.Matched)
	assert.Len(t, result.Tags, 5)
}

func TestLongestSignatureWins(t *testing.T) {
	recorder := record(
		getDescriptor(usb.DescriptorDevice, 64),
		setAddress(),
		getDescriptor(usb.DescriptorDevice, 18),
	)
	signatures := []Signature{
		{OS: "short", Tags: []string{"dev:GET_DESCRIPTOR:dev:64"}},
		{OS: "long", Tags: []string{"dev:GET_DESCRIPTOR:dev:64", "dev:SET_ADDRESS"}},
		{OS: "too long", Tags: []string{"dev:GET_DESCRIPTOR:dev:64", "dev:SET_ADDRESS", "dev:GET_DESCRIPTOR:dev:18", "dev:SET_ADDRESS"}},
	}
	assert.Equal(t, "long", Classify(&recorder.Trace, signatures).OS)
}

func TestUnknownKeepsTrace(t *testing.T) {
	recorder := record(setAddress(), setAddress())
	result := Classify(&recorder.Trace, DefaultSignatures())
	assert.Equal(t, Unknown, result.OS)
	assert.Contains(t, result.String(), "dev:SET_ADDRESS, dev:SET_ADDRESS")
}

func TestDigestIsOrderSensitive(t *testing.T) {
	a := record(setAddress(), getDescriptor(usb.DescriptorDevice, 18))
	b := record(setAddress(), getDescriptor(usb.DescriptorDevice, 18))
	c := record(getDescriptor(usb.DescriptorDevice, 18), setAddress())
	require.Len(t, a.Trace.Digest(), 64)
	assert.Equal(t, a.Trace.Digest(), b.Trace.Digest())
	assert.NotEqual(t, a.Trace.Digest(), c.Trace.Digest())
}
