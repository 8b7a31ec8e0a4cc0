package client

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/websocket"

	"sutext.github.io/gamelink/frame"
	"sutext.github.io/gamelink/xerr"
)

// Transport selects the wire transport of a connection.
type Transport uint8

const (
	TransportTCP Transport = iota
	TransportWS
	TransportGRPC
)

func (t Transport) String() string {
	switch t {
	case TransportTCP:
		return "tcp"
	case TransportWS:
		return "ws"
	case TransportGRPC:
		return "grpc"
	default:
		return "unknown"
	}
}

// ParseTransport maps a config string to a Transport.
func ParseTransport(s string) (Transport, error) {
	switch s {
	case "", "tcp":
		return TransportTCP, nil
	case "ws", "websocket":
		return TransportWS, nil
	case "grpc":
		return TransportGRPC, nil
	default:
		return TransportTCP, xerr.TransportNotSupported
	}
}

// Conn is one transport connection. Read and Write may run on different
// goroutines; Close may be called concurrently with both and unblocks them.
type Conn interface {
	Dial(ctx context.Context) error
	Close() error
	Read() (*frame.Message, error)
	Write(m *frame.Message) error
}

func newConn(t Transport, addr string, codec *frame.Codec) (Conn, error) {
	switch t {
	case TransportTCP:
		return &tcpConn{addr: addr, codec: codec}, nil
	case TransportWS:
		return &wsConn{url: fmt.Sprintf("ws://%s/", addr), origin: fmt.Sprintf("http://%s/", addr), codec: codec}, nil
	case TransportGRPC:
		return &grpcConn{addr: addr, codec: codec}, nil
	default:
		return nil, xerr.TransportNotSupported
	}
}

type tcpConn struct {
	addr  string
	codec *frame.Codec
	conn  net.Conn
}

func (c *tcpConn) Dial(ctx context.Context) error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

func (c *tcpConn) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *tcpConn) Read() (*frame.Message, error) {
	return c.codec.Decode(c.conn)
}

func (c *tcpConn) Write(m *frame.Message) error {
	return c.codec.Encode(c.conn, m)
}

type wsConn struct {
	url    string
	origin string
	codec  *frame.Codec
	conn   *websocket.Conn
}

func (c *wsConn) Dial(ctx context.Context) error {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	ws, err := websocket.Dial(c.url, "", c.origin)
	if err != nil {
		return err
	}
	ws.PayloadType = websocket.BinaryFrame
	c.conn = ws
	return nil
}

func (c *wsConn) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *wsConn) Read() (*frame.Message, error) {
	return c.codec.Decode(c.conn)
}

func (c *wsConn) Write(m *frame.Message) error {
	return c.codec.Encode(c.conn, m)
}
