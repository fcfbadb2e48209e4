package facedancer

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopback struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (stream *loopback) Read(p []byte) (int, error) {
	return stream.in.Read(p)
}

func (stream *loopback) Write(p []byte) (int, error) {
	return stream.out.Write(p)
}

func newLoopback(incoming []byte) *loopback {
	return &loopback{in: bytes.NewBuffer(incoming), out: new(bytes.Buffer)}
}

func TestSendEncodesFrame(t *testing.T) {
	stream := newLoopback(nil)
	channel := NewChannel(stream)
	require.NoError(t, channel.Send(0x40, 0x00, []byte{0x5a, 0x00}))
	assert.Equal(t, []byte{0x40, 0x00, 0x02, 0x00, 0x5a, 0x00}, stream.out.Bytes())
}

func TestReceiveLittleEndianLength(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 0x0102)
	incoming := append([]byte{0x40, 0x00, 0x02, 0x01}, payload...)
	channel := NewChannel(newLoopback(incoming))
	frame, err := channel.Receive()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x40), frame.App)
	assert.Equal(t, payload, frame.Payload)
}

func TestReceiveShortRead(t *testing.T) {
	channel := NewChannel(newLoopback([]byte{0x40, 0x00, 0x04, 0x00, 0x01}))
	_, err := channel.Receive()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShortRead))
	var channelErr *ChannelError
	require.True(t, errors.As(err, &channelErr))
	assert.Equal(t, ErrorKindShortRead, channelErr.Kind)
}

func TestReceiveShortHeader(t *testing.T) {
	channel := NewChannel(newLoopback([]byte{0x40}))
	_, err := channel.Receive()
	assert.True(t, errors.Is(err, ErrShortRead))
}

func TestFrameTooLong(t *testing.T) {
	_, err := Frame{Payload: make([]byte, MaxPayloadLength+1)}.Bytes()
	assert.Error(t, err)
}

func TestWaitForPortExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ttyUSB0")
	require.NoError(t, os.WriteFile(path, nil, 0600))
	assert.NoError(t, WaitForPort(path, time.Second))
}

func TestWaitForPortCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ttyUSB0")
	go func() {
		time.Sleep(50 * time.Millisecond)
		os.WriteFile(path, nil, 0600)
	}()
	assert.NoError(t, WaitForPort(path, 5*time.Second))
}

func TestWaitForPortTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing")
	assert.Error(t, WaitForPort(path, 20*time.Millisecond))
}
