package frame

import (
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"

	"sutext.github.io/gamelink/coder"
	"sutext.github.io/gamelink/xerr"
)

// Compressed bodies start with this 2-byte magic so the decoder detects
// compression without a side channel. An uncompressed body always starts with
// a message type byte (<= Close), so the tag is unambiguous.
var compressionMagic = [2]byte{0xC5, 0xDA}

const lengthPrefixSize = 4

// Codec encodes and decodes frames on a byte stream. Safe for one concurrent
// reader and one concurrent writer; zstd contexts are shared via EncodeAll /
// DecodeAll which are goroutine-safe.
type Codec struct {
	threshold int
	maxFrame  int
	zenc      *zstd.Encoder
	zdec      *zstd.Decoder
}

// NewCodec builds a codec. threshold is the payload size in bytes above which
// bodies are compressed; maxFrame bounds the declared length of incoming and
// outgoing frames.
func NewCodec(threshold, maxFrame int) (*Codec, error) {
	if threshold < 0 || maxFrame <= 0 {
		return nil, xerr.InvalidConfigValue
	}
	zenc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	zdec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Codec{
		threshold: threshold,
		maxFrame:  maxFrame,
		zenc:      zenc,
		zdec:      zdec,
	}, nil
}

// Encode writes m to w as one frame. Compression applies iff the message
// payload is strictly larger than the threshold.
func (c *Codec) Encode(w io.Writer, m *Message) error {
	body, err := coder.Marshal(m)
	if err != nil {
		return err
	}
	if len(m.Payload) > c.threshold {
		compressed := c.zenc.EncodeAll(body, make([]byte, 0, len(body)/2+len(compressionMagic)))
		body = append(compressionMagic[:], compressed...)
	}
	if len(body) > c.maxFrame {
		return xerr.FrameTooLarge
	}
	buf := make([]byte, lengthPrefixSize, lengthPrefixSize+len(body))
	binary.LittleEndian.PutUint32(buf, uint32(len(body)))
	buf = append(buf, body...)
	_, err = w.Write(buf)
	return err
}

// Decode reads exactly one frame from r, accumulating across partial reads.
// A declared length of zero or beyond maxFrame is a protocol error; the
// caller must tear the connection down, the stream offset is unrecoverable.
func (c *Codec) Decode(r io.Reader) (*Message, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	length := int(binary.LittleEndian.Uint32(prefix[:]))
	if length == 0 {
		return nil, xerr.FrameCorrupted
	}
	if length > c.maxFrame {
		return nil, xerr.FrameTooLarge
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	if length >= len(compressionMagic) && body[0] == compressionMagic[0] && body[1] == compressionMagic[1] {
		plain, err := c.zdec.DecodeAll(body[len(compressionMagic):], nil)
		if err != nil {
			return nil, xerr.FrameCorrupted
		}
		body = plain
	}
	m := &Message{}
	if err := coder.Unmarshal(body, m); err != nil {
		return nil, xerr.FrameCorrupted
	}
	return m, nil
}

// MaxFrame returns the configured frame size bound.
func (c *Codec) MaxFrame() int {
	return c.maxFrame
}

// Threshold returns the configured compression threshold.
func (c *Codec) Threshold() int {
	return c.threshold
}
