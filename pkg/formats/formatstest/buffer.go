// Package formatstest builds synthetic asset files for tests.
package formatstest

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Buffer builds little-endian fixtures. Writers return the buffer so calls
// chain.
type Buffer struct {
	buf bytes.Buffer
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

func (b *Buffer) Len() int      { return b.buf.Len() }
func (b *Buffer) Bytes() []byte { return b.buf.Bytes() }

func (b *Buffer) I8(v ...int8) *Buffer {
	for _, x := range v {
		b.buf.WriteByte(byte(x))
	}
	return b
}

func (b *Buffer) U8(v ...uint8) *Buffer {
	b.buf.Write(v)
	return b
}

func (b *Buffer) U16(v ...uint16) *Buffer {
	for _, x := range v {
		binary.Write(&b.buf, binary.LittleEndian, x)
	}
	return b
}

func (b *Buffer) I16(v ...int16) *Buffer {
	for _, x := range v {
		binary.Write(&b.buf, binary.LittleEndian, x)
	}
	return b
}

func (b *Buffer) I32(v ...int32) *Buffer {
	for _, x := range v {
		binary.Write(&b.buf, binary.LittleEndian, x)
	}
	return b
}

func (b *Buffer) U32(v ...uint32) *Buffer {
	for _, x := range v {
		binary.Write(&b.buf, binary.LittleEndian, x)
	}
	return b
}

func (b *Buffer) F32(v ...float32) *Buffer {
	for _, x := range v {
		binary.Write(&b.buf, binary.LittleEndian, math.Float32bits(x))
	}
	return b
}

// Chars writes s zero-padded to n bytes.
func (b *Buffer) Chars(s string, n int) *Buffer {
	out := make([]byte, n)
	copy(out, s)
	b.buf.Write(out)
	return b
}

func (b *Buffer) Raw(p []byte) *Buffer {
	b.buf.Write(p)
	return b
}

func (b *Buffer) Zero(n int) *Buffer {
	b.buf.Write(make([]byte, n))
	return b
}

// PadTo extends the buffer with zeros up to n bytes.
func (b *Buffer) PadTo(n int) *Buffer {
	if n > b.buf.Len() {
		b.Zero(n - b.buf.Len())
	}
	return b
}

// PutI32 overwrites a previously written int32.
func (b *Buffer) PutI32(at int, v int32) {
	SetI32(b.buf.Bytes(), at, v)
}

// SetI32 overwrites an int32 in a finished fixture.
func SetI32(data []byte, at int, v int32) {
	binary.LittleEndian.PutUint32(data[at:], uint32(v))
}

// Concat joins byte slices.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
