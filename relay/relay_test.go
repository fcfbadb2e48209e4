package relay

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPhy struct {
	sent map[uint8][][]byte
}

func (phy *recordingPhy) SendOnEndpoint(endpoint uint8, data []byte) error {
	phy.sent[endpoint] = append(phy.sent[endpoint], append([]byte{}, data...))
	return nil
}

func (phy *recordingPhy) StallEP0() error       { return nil }
func (phy *recordingPhy) AckStatusStage() error { return nil }

func startServer(t *testing.T) *Server {
	server, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	go server.Serve()
	t.Cleanup(func() { server.Close() })
	return server
}

func dial(t *testing.T, server *Server) net.Conn {
	conn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	require.Eventually(t, server.Connected, time.Second, 5*time.Millisecond)
	return conn
}

func TestPassThroughWithoutClient(t *testing.T) {
	server := startServer(t)
	inner := &recordingPhy{sent: map[uint8][][]byte{}}
	phy := NewPhy(inner, server)
	require.NoError(t, phy.SendOnEndpoint(2, []byte("local")))
	assert.Equal(t, [][]byte{[]byte("local")}, inner.sent[2])
}

func TestPeerReplaces(t *testing.T) {
	server := startServer(t)
	conn := dial(t, server)
	defer conn.Close()

	go func() {
		buffer := make([]byte, 64)
		n, err := conn.Read(buffer)
		if err != nil || string(buffer[:n]) != "local" {
			return
		}
		conn.Write([]byte("remote"))
	}()

	inner := &recordingPhy{sent: map[uint8][][]byte{}}
	phy := NewPhy(inner, server)
	require.NoError(t, phy.SendOnEndpoint(3, []byte("local")))
	assert.Equal(t, [][]byte{[]byte("remote")}, inner.sent[3])

	require.NoError(t, phy.SendOnEndpoint(0, []byte{0x12, 0x01}))
	assert.Equal(t, [][]byte{{0x12, 0x01}}, inner.sent[0])
}

func TestClientDisconnectFallsBack(t *testing.T) {
	server := startServer(t)
	conn := dial(t, server)
	conn.Close()
	require.Eventually(t, func() bool { return !server.Connected() }, time.Second, 5*time.Millisecond)

	inner := &recordingPhy{sent: map[uint8][][]byte{}}
	require.NoError(t, NewPhy(inner, server).SendOnEndpoint(2, []byte("local")))
	assert.Equal(t, [][]byte{[]byte("local")}, inner.sent[2])
}

func TestReplyTimeout(t *testing.T) {
	server := startServer(t)
	server.ReplyTimeout = 20 * time.Millisecond
	conn := dial(t, server)
	defer conn.Close()

	_, ok, err := server.Exchange([]byte("ping"))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrReplyTimeout)
}

func TestSecondClientWaits(t *testing.T) {
	server := startServer(t)
	first := dial(t, server)
	second, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	go func() {
		buffer := make([]byte, 64)
		n, _ := first.Read(buffer)
		first.Write(append([]byte("first:"), buffer[:n]...))
	}()
	reply, ok, err := server.Exchange([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "first:a", string(reply))

	first.Close()
	go func() {
		buffer := make([]byte, 64)
		n, _ := second.Read(buffer)
		second.Write(append([]byte("second:"), buffer[:n]...))
	}()
	require.Eventually(t, func() bool {
		c := server.current()
		return c != nil && c.conn.RemoteAddr().String() == second.LocalAddr().String()
	}, time.Second, 5*time.Millisecond)
	reply, ok, err = server.Exchange([]byte("b"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second:b", string(reply))
}

func TestLateReplyIsNotMatchedToNextTransfer(t *testing.T) {
	server := startServer(t)
	server.ReplyTimeout = 30 * time.Millisecond
	conn := dial(t, server)
	defer conn.Close()

	go func() {
		buffer := make([]byte, 64)
		for {
			n, err := conn.Read(buffer)
			if err != nil {
				return
			}
			time.Sleep(60 * time.Millisecond)
			conn.Write(append([]byte("reply-to:"), buffer[:n]...))
		}
	}()

	_, ok, err := server.Exchange([]byte("A"))
	assert.False(t, ok)
	require.ErrorIs(t, err, ErrReplyTimeout)
	assert.False(t, server.Connected())

	inner := &recordingPhy{sent: map[uint8][][]byte{}}
	require.NoError(t, NewPhy(inner, server).SendOnEndpoint(2, []byte("B")))
	assert.Equal(t, [][]byte{[]byte("B")}, inner.sent[2])
}

func TestUnsolicitedBytesAreDiscarded(t *testing.T) {
	server := startServer(t)
	conn := dial(t, server)
	defer conn.Close()

	_, err := conn.Write([]byte("hello"))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		c := server.current()
		return c != nil && len(c.inbound) == 1
	}, time.Second, 5*time.Millisecond)

	go func() {
		buffer := make([]byte, 64)
		n, err := conn.Read(buffer)
		if err != nil {
			return
		}
		conn.Write(append([]byte("reply-to:"), buffer[:n]...))
	}()
	reply, ok, err := server.Exchange([]byte("B"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "reply-to:B", string(reply))
}
