// Package maxusbtest provides a register-level fake of a Facedancer board
// with a MAX342x controller.
package maxusbtest

import (
	"bytes"
	"errors"
	"sync"

	"github.com/bulwarkid/vusb/facedancer"
	"github.com/bulwarkid/vusb/maxusb"
)

// Event is what the next poll of the endpoint IRQ register reports.
type Event struct {
	IRQ   uint8
	Setup []byte
	Out   []byte
}

type EndpointWrite struct {
	Endpoint uint8
	Data     []byte
}

var byteCountEndpoints = map[uint8]uint8{
	maxusb.RegEP0ByteCount:   0,
	maxusb.RegEP2InByteCount: 2,
	maxusb.RegEP3InByteCount: 3,
}

// Board answers register frames the way a MAX342x would and records what the
// driver sent. A nil OnPoll leaves the scripted events as the only input.
type Board struct {
	lock      sync.Mutex
	events    []Event
	current   Event
	replies   []facedancer.Frame
	registers [0x20]uint8
	fifo      map[uint8][]byte

	// OnPoll, when set, runs before each endpoint IRQ poll is answered and
	// may queue more events.
	OnPoll func(board *Board)
	// FailAfter makes every Send after that many frames fail.
	FailAfter int

	Frames      int
	Writes      []EndpointWrite
	Stalls      int
	Acks        int
	Connects    int
	Disconnects int
	Resets      int
	Polls       int
	AppsEnabled []uint8
}

var ErrInjected = errors.New("injected board failure")

func NewBoard() *Board {
	board := &Board{fifo: map[uint8][]byte{}}
	board.registers[maxusb.RegRevision] = 0x13
	return board
}

// Queue appends events delivered on successive IRQ polls.
func (board *Board) Queue(events ...Event) {
	board.lock.Lock()
	defer board.lock.Unlock()
	board.events = append(board.events, events...)
}

// Setup queues a SETUP IRQ carrying packet.
func (board *Board) Setup(packet []byte) {
	board.Queue(Event{IRQ: maxusb.IRQSetup, Setup: packet})
}

// Out queues an OUT1 IRQ carrying data.
func (board *Board) Out(data []byte) {
	board.Queue(Event{IRQ: maxusb.IRQOut1, Out: data})
}

func (board *Board) Pending() int {
	board.lock.Lock()
	defer board.lock.Unlock()
	return len(board.events)
}

func (board *Board) Send(app uint8, verb uint8, payload []byte) error {
	board.lock.Lock()
	defer board.lock.Unlock()
	board.Frames++
	if board.FailAfter > 0 && board.Frames > board.FailAfter {
		return &facedancer.ChannelError{Op: "send", Kind: facedancer.ErrorKindIO, Err: ErrInjected}
	}
	reply := facedancer.Frame{App: app, Verb: verb}
	switch {
	case app == facedancer.MonitorApp && verb == facedancer.MonitorVerbEnable:
		board.AppsEnabled = append(board.AppsEnabled, payload...)
		reply.Payload = payload
	case app == maxusb.AppNum && verb == 0x00 && len(payload) > 0:
		reply.Payload = board.register(payload)
	default:
		reply.Payload = payload
	}
	board.replies = append(board.replies, reply)
	return nil
}

func (board *Board) Receive() (facedancer.Frame, error) {
	board.lock.Lock()
	defer board.lock.Unlock()
	if len(board.replies) == 0 {
		return facedancer.Frame{}, &facedancer.ChannelError{Op: "receive", Kind: facedancer.ErrorKindShortRead, Err: errors.New("no reply queued")}
	}
	reply := board.replies[0]
	board.replies = board.replies[1:]
	return reply, nil
}

func (board *Board) register(payload []byte) []byte {
	command := payload[0]
	reg := command >> 3
	write := command&0x02 != 0
	ack := command&0x01 != 0
	if reg == 0 && !write && ack && len(payload) == 1 {
		board.Acks++
		return payload
	}
	if write {
		board.write(reg, payload[1:])
		return payload
	}
	return append([]byte{command}, board.read(reg, len(payload)-1)...)
}

func (board *Board) write(reg uint8, data []byte) {
	switch reg {
	case maxusb.RegEP0FIFO, maxusb.RegEP2InFIFO, maxusb.RegEP3InFIFO:
		board.fifo[reg] = append(board.fifo[reg], data...)
		return
	}
	if len(data) == 0 {
		return
	}
	value := data[len(data)-1]
	if endpoint, ok := byteCountEndpoints[reg]; ok {
		fifo := map[uint8]uint8{0: maxusb.RegEP0FIFO, 2: maxusb.RegEP2InFIFO, 3: maxusb.RegEP3InFIFO}[endpoint]
		loaded := board.fifo[fifo]
		n := int(value)
		if n > len(loaded) {
			n = len(loaded)
		}
		board.Writes = append(board.Writes, EndpointWrite{Endpoint: endpoint, Data: append([]byte{}, loaded[:n]...)})
		board.fifo[fifo] = nil
	}
	switch reg {
	case maxusb.RegEPStalls:
		if value == maxusb.StallEP0Value {
			board.Stalls++
		}
	case maxusb.RegUSBControl:
		if value&maxusb.USBControlConnect != 0 {
			board.Connects++
		} else {
			board.Disconnects++
		}
	case maxusb.RegEndpointIRQ:
		return
	}
	board.registers[reg] = value
}

func (board *Board) read(reg uint8, n int) []byte {
	data := make([]byte, n)
	switch reg {
	case maxusb.RegEndpointIRQ:
		board.Polls++
		if board.OnPoll != nil {
			board.lock.Unlock()
			board.OnPoll(board)
			board.lock.Lock()
		}
		board.current = Event{}
		if len(board.events) > 0 {
			board.current = board.events[0]
			board.events = board.events[1:]
		}
		if n > 0 {
			data[0] = board.current.IRQ
		}
	case maxusb.RegSetupDataFIFO:
		copy(data, board.current.Setup)
	case maxusb.RegEP1OutByteCount:
		if n > 0 {
			data[0] = uint8(len(board.current.Out))
		}
	case maxusb.RegEP1OutFIFO:
		copy(data, board.current.Out)
	default:
		if n > 0 {
			data[0] = board.registers[reg]
		}
	}
	return data
}

// Reset stands in for a board reset between campaign iterations.
func (board *Board) Reset() error {
	board.lock.Lock()
	defer board.lock.Unlock()
	board.Resets++
	board.replies = nil
	board.current = Event{}
	board.registers[maxusb.RegUSBControl] = 0
	return nil
}

func (board *Board) Close() error {
	return nil
}

// Sent returns everything written to endpoint, concatenated.
func (board *Board) Sent(endpoint uint8) []byte {
	board.lock.Lock()
	defer board.lock.Unlock()
	data := new(bytes.Buffer)
	for _, write := range board.Writes {
		if write.Endpoint == endpoint {
			data.Write(write.Data)
		}
	}
	return data.Bytes()
}

// Transfers returns the individual FIFO loads written to endpoint.
func (board *Board) Transfers(endpoint uint8) [][]byte {
	board.lock.Lock()
	defer board.lock.Unlock()
	transfers := [][]byte{}
	for _, write := range board.Writes {
		if write.Endpoint == endpoint {
			transfers = append(transfers, write.Data)
		}
	}
	return transfers
}

// ClearWrites forgets recorded endpoint writes.
func (board *Board) ClearWrites() {
	board.lock.Lock()
	defer board.lock.Unlock()
	board.Writes = nil
}
