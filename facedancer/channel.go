package facedancer

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/bulwarkid/vusb/util"
)

var channelLogger = util.NewLogger("[FACEDANCER] ", util.LogLevelTrace)

// Channel speaks the length-prefixed frame protocol over any byte stream.
// It does not retry; retry policy belongs to the caller.
type Channel struct {
	stream io.ReadWriter
}

func NewChannel(stream io.ReadWriter) *Channel {
	return &Channel{stream: stream}
}

func (channel *Channel) Send(app uint8, verb uint8, payload []byte) error {
	frame := Frame{App: app, Verb: verb, Payload: payload}
	data, err := frame.Bytes()
	if err != nil {
		return &ChannelError{Op: "send", Kind: ErrorKindIO, Err: err}
	}
	channelLogger.Printf("SEND: %s\n\n", frame)
	if _, err := channel.stream.Write(data); err != nil {
		return &ChannelError{Op: "send", Kind: ErrorKindIO, Err: err}
	}
	return nil
}

// Receive blocks until a whole frame has arrived.
func (channel *Channel) Receive() (Frame, error) {
	header := make([]byte, frameHeaderSize)
	if err := channel.readFull(header); err != nil {
		return Frame{}, err
	}
	length := binary.LittleEndian.Uint16(header[2:4])
	frame := Frame{
		App:     header[0],
		Verb:    header[1],
		Payload: make([]byte, length),
	}
	if err := channel.readFull(frame.Payload); err != nil {
		return Frame{}, err
	}
	channelLogger.Printf("RECEIVE: %s\n\n", frame)
	return frame, nil
}

// Transact sends one frame and waits for the reply.
func (channel *Channel) Transact(app uint8, verb uint8, payload []byte) (Frame, error) {
	if err := channel.Send(app, verb, payload); err != nil {
		return Frame{}, err
	}
	return channel.Receive()
}

func (channel *Channel) readFull(buffer []byte) error {
	_, err := io.ReadFull(channel.stream, buffer)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &ChannelError{Op: "receive", Kind: ErrorKindShortRead, Err: err}
	}
	return &ChannelError{Op: "receive", Kind: ErrorKindIO, Err: err}
}
