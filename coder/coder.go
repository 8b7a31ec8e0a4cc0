// Package coder provides the binary encoding primitives used by the frame
// codec. Integers are big-endian, variable-length data carries a varint
// length prefix.
package coder

import (
	"encoding/binary"
	"io"
)

type Encoder interface {
	Bytes() []byte
	WriteBytes(p []byte)
	WriteUInt8(i uint8)
	WriteUInt16(i uint16)
	WriteUInt32(i uint32)
	WriteUInt64(i uint64)
	WriteInt64(i int64)
	WriteBool(b bool)
	WriteVarint(i uint64)
	WriteData(data []byte)
	WriteString(s string)
}
type Decoder interface {
	ReadBytes(l uint64) ([]byte, error)
	ReadUInt8() (uint8, error)
	ReadUInt16() (uint16, error)
	ReadUInt32() (uint32, error)
	ReadUInt64() (uint64, error)
	ReadInt64() (int64, error)
	ReadBool() (bool, error)
	ReadVarint() (uint64, error)
	ReadData() ([]byte, error)
	ReadString() (string, error)
	ReadAll() ([]byte, error)
}

func NewEncoder(cap ...int) Encoder {
	if len(cap) > 0 && cap[0] > 0 {
		return &coder{pos: 0, buf: make([]byte, 0, cap[0])}
	}
	return &coder{pos: 0, buf: make([]byte, 0, 256)}
}
func NewDecoder(bytes []byte) Decoder {
	return &coder{pos: 0, buf: bytes}
}

type coder struct {
	pos uint64
	buf []byte
}

func (b *coder) Bytes() []byte {
	return b.buf
}

// Write bytes directly
func (b *coder) WriteBytes(p []byte) {
	b.buf = append(b.buf, p...)
}

// Write UInt 8/16/32/64
func (b *coder) WriteUInt8(i uint8) {
	b.buf = append(b.buf, i)
}
func (b *coder) WriteUInt16(i uint16) {
	b.buf = binary.BigEndian.AppendUint16(b.buf, i)
}
func (b *coder) WriteUInt32(i uint32) {
	b.buf = binary.BigEndian.AppendUint32(b.buf, i)
}
func (b *coder) WriteUInt64(i uint64) {
	b.buf = binary.BigEndian.AppendUint64(b.buf, i)
}
func (b *coder) WriteInt64(i int64) {
	b.WriteUInt64(uint64(i))
}

func (b *coder) WriteBool(bo bool) {
	if bo {
		b.WriteUInt8(1)
	} else {
		b.WriteUInt8(0)
	}
}

// Write Varint
func (b *coder) WriteVarint(i uint64) {
	b.buf = binary.AppendUvarint(b.buf, i)
}

// Write Binary Data with Varint Length Prefix
func (b *coder) WriteData(data []byte) {
	l := len(data)
	b.WriteVarint(uint64(l))
	if l > 0 {
		b.WriteBytes(data)
	}
}

// Write String with Varint Length Prefix
func (b *coder) WriteString(s string) {
	b.WriteData([]byte(s))
}

func (b *coder) ReadBytes(l uint64) ([]byte, error) {
	if b.pos+l > uint64(len(b.buf)) {
		return nil, ErrBufferTooShort
	}
	data := b.buf[b.pos : b.pos+l]
	b.pos += l
	return data, nil
}
func (b *coder) ReadUInt8() (uint8, error) {
	p, err := b.ReadBytes(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}
func (b *coder) ReadUInt16() (uint16, error) {
	p, err := b.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}
func (b *coder) ReadUInt32() (uint32, error) {
	p, err := b.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}
func (b *coder) ReadUInt64() (uint64, error) {
	p, err := b.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}
func (b *coder) ReadInt64() (int64, error) {
	u, err := b.ReadUInt64()
	return int64(u), err
}
func (b *coder) ReadBool() (bool, error) {
	u, err := b.ReadUInt8()
	return u != 0, err
}
func (b *coder) ReadVarint() (uint64, error) {
	i, n := binary.Uvarint(b.buf[b.pos:])
	if n <= 0 {
		if n == 0 {
			return 0, ErrBufferTooShort
		}
		return 0, ErrVarintOverflow
	}
	b.pos += uint64(n)
	return i, nil
}
func (b *coder) ReadData() ([]byte, error) {
	l, err := b.ReadVarint()
	if err != nil {
		return nil, err
	}
	return b.ReadBytes(l)
}
func (b *coder) ReadString() (string, error) {
	data, err := b.ReadData()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
func (b *coder) ReadAll() ([]byte, error) {
	return b.ReadBytes(uint64(len(b.buf)) - b.pos)
}

var _ io.Reader = (*coder)(nil)

// implement io.Reader interface
func (b *coder) Read(p []byte) (int, error) {
	if b.pos >= uint64(len(b.buf)) {
		return 0, io.EOF
	}
	n := copy(p, b.buf[b.pos:])
	b.pos += uint64(n)
	return n, nil
}
