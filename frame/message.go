// Package frame defines the logical message model and the wire codec of the
// gamelink protocol.
//
// A message travels as a length-prefixed frame:
//
//	[4-byte little-endian length][2-byte compression magic, optional][body]
//
// The body is the binary-encoded message, zstd-compressed when the payload
// exceeds the codec's compression threshold.
package frame

import (
	"bytes"
	"fmt"

	"sutext.github.io/gamelink/coder"
	"sutext.github.io/gamelink/xerr"
)

// Type identifies the kind of a message. The set is closed: receive dispatch
// is a type switch, never reflection.
type Type uint8

const (
	Data    Type = iota // application payload
	Ping                // keepalive probe
	Pong                // keepalive acknowledgment
	Hello               // client handshake, payload carries the resumption token if any
	Welcome             // server handshake accept, payload carries the new resumption token
	Close               // graceful close notice
)

func (t Type) String() string {
	switch t {
	case Data:
		return "DATA"
	case Ping:
		return "PING"
	case Pong:
		return "PONG"
	case Hello:
		return "HELLO"
	case Welcome:
		return "WELCOME"
	case Close:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

func (t Type) valid() bool {
	return t <= Close
}

// Message is a single logical message. Seq is assigned by the sending client,
// monotonic per connection. Timestamp is unix milliseconds at encode time.
type Message struct {
	Type      Type
	Seq       uint32
	Timestamp int64
	Payload   []byte
}

func NewData(payload []byte) *Message {
	return &Message{Type: Data, Payload: payload}
}
func NewPing() *Message {
	return &Message{Type: Ping}
}
func NewPong() *Message {
	return &Message{Type: Pong}
}
func NewHello(token []byte) *Message {
	return &Message{Type: Hello, Payload: token}
}
func NewWelcome(token []byte) *Message {
	return &Message{Type: Welcome, Payload: token}
}
func NewClose(reason string) *Message {
	return &Message{Type: Close, Payload: []byte(reason)}
}

func (m *Message) String() string {
	return fmt.Sprintf("%s(Seq=%d, Ts=%d, Payload=%d)", m.Type, m.Seq, m.Timestamp, len(m.Payload))
}

// Equal compares two messages field by field.
func (m *Message) Equal(other *Message) bool {
	if other == nil {
		return false
	}
	return m.Type == other.Type &&
		m.Seq == other.Seq &&
		m.Timestamp == other.Timestamp &&
		bytes.Equal(m.Payload, other.Payload)
}

// WriteTo encodes the message body to the provided encoder.
func (m *Message) WriteTo(w coder.Encoder) error {
	if !m.Type.valid() {
		return xerr.FrameCorrupted
	}
	w.WriteUInt8(uint8(m.Type))
	w.WriteUInt32(m.Seq)
	w.WriteInt64(m.Timestamp)
	w.WriteBytes(m.Payload)
	return nil
}

// ReadFrom decodes the message body from the provided decoder.
func (m *Message) ReadFrom(r coder.Decoder) error {
	t, err := r.ReadUInt8()
	if err != nil {
		return xerr.FrameCorrupted
	}
	if !Type(t).valid() {
		return xerr.FrameCorrupted
	}
	seq, err := r.ReadUInt32()
	if err != nil {
		return xerr.FrameCorrupted
	}
	ts, err := r.ReadInt64()
	if err != nil {
		return xerr.FrameCorrupted
	}
	payload, err := r.ReadAll()
	if err != nil {
		return xerr.FrameCorrupted
	}
	m.Type = Type(t)
	m.Seq = seq
	m.Timestamp = ts
	if len(payload) > 0 {
		m.Payload = payload
	} else {
		m.Payload = nil
	}
	return nil
}
