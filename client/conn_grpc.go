package client

import (
	"bytes"
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protowire"

	"sutext.github.io/gamelink/frame"
	"sutext.github.io/gamelink/xerr"
)

// The RPC transport carries whole frames over a gRPC bidirectional stream.
// The stream is declared with a raw StreamDesc and an envelope codec that
// stays wire-compatible with
//
//	service BytesService { rpc Connect(stream Bytes) returns (stream Bytes); }
//	message Bytes { bytes data = 1; }
//
// so no generated code is needed on the client side.
const bytesConnectMethod = "/gamelink.BytesService/Connect"

var bytesStreamDesc = &grpc.StreamDesc{
	StreamName:    "Connect",
	ClientStreams: true,
	ServerStreams: true,
}

type grpcConn struct {
	addr   string
	codec  *frame.Codec
	conn   *grpc.ClientConn
	stream grpc.ClientStream
	cancel context.CancelFunc
}

func (c *grpcConn) Dial(ctx context.Context) error {
	c.Close()
	conn, err := grpc.NewClient(c.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(envelopeCodec{})),
	)
	if err != nil {
		return err
	}
	// The stream must outlive the dial attempt, so it runs under its own
	// context rather than the per-attempt one.
	streamCtx, cancel := context.WithCancel(context.Background())
	stream, err := conn.NewStream(streamCtx, bytesStreamDesc, bytesConnectMethod)
	if err != nil {
		cancel()
		conn.Close()
		return err
	}
	c.conn = conn
	c.stream = stream
	c.cancel = cancel
	return nil
}

func (c *grpcConn) Close() error {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.stream = nil
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

func (c *grpcConn) Read() (*frame.Message, error) {
	var env envelope
	if err := c.stream.RecvMsg(&env); err != nil {
		return nil, err
	}
	return c.codec.Decode(bytes.NewReader(env.data))
}

func (c *grpcConn) Write(m *frame.Message) error {
	var buf bytes.Buffer
	if err := c.codec.Encode(&buf, m); err != nil {
		return err
	}
	return c.stream.SendMsg(&envelope{data: buf.Bytes()})
}

// envelope is the Bytes message. Field 1 holds the frame bytes.
type envelope struct {
	data []byte
}

type envelopeCodec struct{}

func (envelopeCodec) Name() string {
	return "gamelink-bytes"
}

func (envelopeCodec) Marshal(v any) ([]byte, error) {
	env, ok := v.(*envelope)
	if !ok {
		return nil, fmt.Errorf("envelope codec: unexpected message type %T", v)
	}
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	return protowire.AppendBytes(b, env.data), nil
}

func (envelopeCodec) Unmarshal(data []byte, v any) error {
	env, ok := v.(*envelope)
	if !ok {
		return fmt.Errorf("envelope codec: unexpected message type %T", v)
	}
	env.data = nil
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return xerr.FrameCorrupted
		}
		data = data[n:]
		if num == 1 && typ == protowire.BytesType {
			val, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return xerr.FrameCorrupted
			}
			env.data = val
			data = data[n:]
			continue
		}
		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return xerr.FrameCorrupted
		}
		data = data[n:]
	}
	return nil
}
