// Package pixbuf defines the raw image buffer exchanged between the editor
// core, the undo manager and the snapshot store.
package pixbuf

import (
	"bytes"
	"fmt"
)

// Buffer is a decoded image: four interleaved channels of 8 or 16 bits.
// The byte count of the buffer is len(Data).
type Buffer struct {
	Width      uint32
	Height     uint32
	Alpha      bool
	SixteenBit bool
	Data       []byte
}

// New allocates a zeroed buffer of the given geometry.
func New(width, height uint32, sixteenBit, alpha bool) Buffer {
	b := Buffer{Width: width, Height: height, Alpha: alpha, SixteenBit: sixteenBit}
	b.Data = make([]byte, b.ExpectedSize())
	return b
}

// BytesPerPixel returns 4 for 8-bit buffers and 8 for 16-bit buffers.
func BytesPerPixel(sixteenBit bool) uint64 {
	if sixteenBit {
		return 8
	}
	return 4
}

// ExpectedSize returns width * height * bytes-per-pixel.
func (b Buffer) ExpectedSize() uint64 {
	return uint64(b.Width) * uint64(b.Height) * BytesPerPixel(b.SixteenBit)
}

// IsNull reports whether the buffer carries no pixels.
func (b Buffer) IsNull() bool {
	return b.Width == 0 || b.Height == 0 || len(b.Data) == 0
}

// Validate checks that the data length matches the geometry.
func (b Buffer) Validate() error {
	if uint64(len(b.Data)) != b.ExpectedSize() {
		return fmt.Errorf("buffer %dx%d (16bit=%t) holds %d bytes, want %d",
			b.Width, b.Height, b.SixteenBit, len(b.Data), b.ExpectedSize())
	}
	return nil
}

// Clone returns a copy that shares no memory with b.
func (b Buffer) Clone() Buffer {
	c := b
	if b.Data != nil {
		c.Data = bytes.Clone(b.Data)
	}
	return c
}

// Equal reports whether a and b have the same geometry, flags and bytes.
func Equal(a, b Buffer) bool {
	return a.Width == b.Width &&
		a.Height == b.Height &&
		a.Alpha == b.Alpha &&
		a.SixteenBit == b.SixteenBit &&
		bytes.Equal(a.Data, b.Data)
}

// Filled returns a buffer of the given geometry with every byte set to v.
func Filled(width, height uint32, sixteenBit, alpha bool, v byte) Buffer {
	b := New(width, height, sixteenBit, alpha)
	for i := range b.Data {
		b.Data[i] = v
	}
	return b
}
