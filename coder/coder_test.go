package coder

import (
	"bytes"
	"testing"
)

func TestPrimitivesRoundTrip(t *testing.T) {
	e := NewEncoder()
	e.WriteUInt8(7)
	e.WriteUInt16(0xbeef)
	e.WriteUInt32(0xdeadbeef)
	e.WriteUInt64(1 << 40)
	e.WriteInt64(-12345)
	e.WriteBool(true)
	e.WriteVarint(300)
	e.WriteData([]byte("data"))
	e.WriteString("string")

	d := NewDecoder(e.Bytes())
	if v, err := d.ReadUInt8(); err != nil || v != 7 {
		t.Fatalf("uint8: %v %v", v, err)
	}
	if v, err := d.ReadUInt16(); err != nil || v != 0xbeef {
		t.Fatalf("uint16: %v %v", v, err)
	}
	if v, err := d.ReadUInt32(); err != nil || v != 0xdeadbeef {
		t.Fatalf("uint32: %v %v", v, err)
	}
	if v, err := d.ReadUInt64(); err != nil || v != 1<<40 {
		t.Fatalf("uint64: %v %v", v, err)
	}
	if v, err := d.ReadInt64(); err != nil || v != -12345 {
		t.Fatalf("int64: %v %v", v, err)
	}
	if v, err := d.ReadBool(); err != nil || !v {
		t.Fatalf("bool: %v %v", v, err)
	}
	if v, err := d.ReadVarint(); err != nil || v != 300 {
		t.Fatalf("varint: %v %v", v, err)
	}
	if v, err := d.ReadData(); err != nil || !bytes.Equal(v, []byte("data")) {
		t.Fatalf("data: %q %v", v, err)
	}
	if v, err := d.ReadString(); err != nil || v != "string" {
		t.Fatalf("string: %q %v", v, err)
	}
	if rest, err := d.ReadAll(); err != nil || len(rest) != 0 {
		t.Fatalf("trailing bytes: %q %v", rest, err)
	}
}

func TestReadBeyondBuffer(t *testing.T) {
	d := NewDecoder([]byte{1, 2})
	if _, err := d.ReadUInt32(); err != ErrBufferTooShort {
		t.Fatalf("want ErrBufferTooShort, got %v", err)
	}
}
