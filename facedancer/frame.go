package facedancer

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const frameHeaderSize = 4

// MaxPayloadLength is the largest payload the 16-bit length field can carry.
const MaxPayloadLength = 0xFFFF

// Frame is the unit of exchange with the board:
// [app:u8][verb:u8][len:u16 LE][payload:len bytes].
type Frame struct {
	App     uint8
	Verb    uint8
	Payload []byte
}

func (frame Frame) String() string {
	return fmt.Sprintf("Frame{ App: 0x%02x, Verb: 0x%02x, Length: %d, Payload: %#v }",
		frame.App,
		frame.Verb,
		len(frame.Payload),
		frame.Payload)
}

// Bytes encodes the frame for the wire.
func (frame Frame) Bytes() ([]byte, error) {
	if len(frame.Payload) > MaxPayloadLength {
		return nil, fmt.Errorf("frame payload too long: %d bytes", len(frame.Payload))
	}
	data := make([]byte, frameHeaderSize+len(frame.Payload))
	data[0] = frame.App
	data[1] = frame.Verb
	binary.LittleEndian.PutUint16(data[2:4], uint16(len(frame.Payload)))
	copy(data[frameHeaderSize:], frame.Payload)
	return data, nil
}

type ErrorKind int

const (
	ErrorKindIO ErrorKind = iota
	ErrorKindShortRead
)

var errorKindDescriptions = map[ErrorKind]string{
	ErrorKindIO:        "io",
	ErrorKindShortRead: "short read",
}

// ErrShortRead is matched by errors.Is when the stream closed mid-frame.
var ErrShortRead = errors.New("short read")

// ChannelError is returned for any failure on the serial link. It is fatal
// to the current run.
type ChannelError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (err *ChannelError) Error() string {
	return fmt.Sprintf("channel %s failed (%s): %v", err.Op, errorKindDescriptions[err.Kind], err.Err)
}

func (err *ChannelError) Unwrap() error {
	return err.Err
}

func (err *ChannelError) Is(target error) bool {
	return target == ErrShortRead && err.Kind == ErrorKindShortRead
}
