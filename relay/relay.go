// Package relay hands IN endpoint traffic to a TCP peer so that a remote
// program can answer in place of the emulated device.
package relay

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bulwarkid/vusb/usb"
	"github.com/bulwarkid/vusb/util"
)

var relayLogger = util.NewLogger("[RELAY] ", util.LogLevelDebug)
var errLogger = util.NewLogger("[ERR] ", util.LogLevelEnabled)

var (
	ErrClientGone   = errors.New("relay client disconnected")
	ErrReplyTimeout = errors.New("relay client did not reply in time")
)

const readBufferSize = 4096

type client struct {
	conn    net.Conn
	inbound chan []byte
}

func (c *client) readLoop() {
	defer close(c.inbound)
	buffer := make([]byte, readBufferSize)
	for {
		n, err := c.conn.Read(buffer)
		if n > 0 {
			c.inbound <- append([]byte{}, buffer[:n]...)
		}
		if err != nil {
			return
		}
	}
}

// drain discards bytes the peer sent without being asked.
func (c *client) drain() {
	for {
		select {
		case stale, ok := <-c.inbound:
			if !ok {
				return
			}
			relayLogger.Printf("Discarding %d unsolicited bytes from relay client", len(stale))
		default:
			return
		}
	}
}

// Server accepts one TCP client at a time. Later clients wait in the
// listen backlog until the current one goes away.
type Server struct {
	// ReplyTimeout bounds how long Exchange waits for the peer. Zero waits
	// until the peer replies or disconnects.
	ReplyTimeout time.Duration

	listener net.Listener
	lock     sync.Mutex
	client   *client
}

func Listen(address string) (*Server, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("could not listen on %s: %w", address, err)
	}
	return &Server{listener: listener}, nil
}

func (server *Server) Addr() net.Addr {
	return server.listener.Addr()
}

// Serve runs the accept loop until Close is called.
func (server *Server) Serve() error {
	relayLogger.Printf("Relay listening on %s", server.listener.Addr())
	for {
		conn, err := server.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			relayLogger.Printf("Connection accept error: %v", err)
			continue
		}
		util.Try(func() {
			server.handle(conn)
		}, func(err interface{}) {
			errLogger.Printf("%v", err)
		})
	}
}

func (server *Server) handle(conn net.Conn) {
	relayLogger.Printf("Relay client %s connected", conn.RemoteAddr())
	c := &client{conn: conn, inbound: make(chan []byte, 16)}
	server.lock.Lock()
	server.client = c
	server.lock.Unlock()
	defer func() {
		server.lock.Lock()
		if server.client == c {
			server.client = nil
		}
		server.lock.Unlock()
		conn.Close()
		relayLogger.Printf("Relay client %s disconnected", conn.RemoteAddr())
	}()
	c.readLoop()
}

func (server *Server) current() *client {
	server.lock.Lock()
	defer server.lock.Unlock()
	return server.client
}

// Connected reports whether a client is attached.
func (server *Server) Connected() bool {
	return server.current() != nil
}

// Exchange writes data to the client and returns the next bytes it sends.
// With no client attached it returns false and no error. A client that
// misses ReplyTimeout is disconnected.
func (server *Server) Exchange(data []byte) ([]byte, bool, error) {
	c := server.current()
	if c == nil {
		return nil, false, nil
	}
	c.drain()
	if _, err := c.conn.Write(data); err != nil {
		return nil, false, fmt.Errorf("could not write to relay client: %w", err)
	}
	var timeout <-chan time.Time
	if server.ReplyTimeout > 0 {
		timer := time.NewTimer(server.ReplyTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case reply, ok := <-c.inbound:
		if !ok {
			return nil, false, ErrClientGone
		}
		relayLogger.Printf("Relayed %d bytes, got %d back", len(data), len(reply))
		return reply, true, nil
	case <-timeout:
		server.drop(c)
		return nil, false, ErrReplyTimeout
	}
}

// drop detaches a client whose replies can no longer be matched to
// transfers.
func (server *Server) drop(c *client) {
	server.lock.Lock()
	if server.client == c {
		server.client = nil
	}
	server.lock.Unlock()
	c.conn.Close()
	relayLogger.Printf("Dropped relay client %s after reply timeout", c.conn.RemoteAddr())
}

func (server *Server) Close() error {
	err := server.listener.Close()
	if c := server.current(); c != nil {
		c.conn.Close()
	}
	return err
}

// Phy forwards IN endpoint 2 and 3 traffic through the relay and sends the
// peer's reply instead. Everything else goes straight to the wrapped Phy.
type Phy struct {
	usb.Phy
	server *Server
}

func NewPhy(inner usb.Phy, server *Server) *Phy {
	return &Phy{Phy: inner, server: server}
}

func (phy *Phy) SendOnEndpoint(endpoint uint8, data []byte) error {
	if endpoint != 2 && endpoint != 3 {
		return phy.Phy.SendOnEndpoint(endpoint, data)
	}
	reply, ok, err := phy.server.Exchange(data)
	if err != nil {
		errLogger.Printf("Relay exchange failed, sending local data: %v", err)
		return phy.Phy.SendOnEndpoint(endpoint, data)
	}
	if !ok {
		return phy.Phy.SendOnEndpoint(endpoint, data)
	}
	return phy.Phy.SendOnEndpoint(endpoint, reply)
}
