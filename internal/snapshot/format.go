package snapshot

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/majorcontext/darkroom/internal/pixbuf"
)

// headerSize is u32 width, u32 height, u32 byte count, u8 alpha, u8 sixteen-bit.
const headerSize = 14

type header struct {
	width, height, count uint32
	alpha, sixteenBit    bool
}

func (h header) marshal() [headerSize]byte {
	var b [headerSize]byte
	binary.LittleEndian.PutUint32(b[0:4], h.width)
	binary.LittleEndian.PutUint32(b[4:8], h.height)
	binary.LittleEndian.PutUint32(b[8:12], h.count)
	b[12] = boolByte(h.alpha)
	b[13] = boolByte(h.sixteenBit)
	return b
}

func unmarshalHeader(b [headerSize]byte) (header, error) {
	h := header{
		width:  binary.LittleEndian.Uint32(b[0:4]),
		height: binary.LittleEndian.Uint32(b[4:8]),
		count:  binary.LittleEndian.Uint32(b[8:12]),
	}
	var err error
	if h.alpha, err = byteBool(b[12]); err != nil {
		return header{}, err
	}
	if h.sixteenBit, err = byteBool(b[13]); err != nil {
		return header{}, err
	}
	want := uint64(h.width) * uint64(h.height) * pixbuf.BytesPerPixel(h.sixteenBit)
	if uint64(h.count) != want {
		return header{}, fmt.Errorf("%w: header claims %d bytes for %dx%d, want %d",
			ErrCorrupt, h.count, h.width, h.height, want)
	}
	return h, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func byteBool(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: flag byte %#x", ErrCorrupt, b)
}

// checkEncodable rejects buffers the file format cannot represent.
func checkEncodable(buf pixbuf.Buffer) error {
	if err := buf.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBuffer, err)
	}
	if uint64(len(buf.Data)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes exceeds the format limit", ErrInvalidBuffer, len(buf.Data))
	}
	return nil
}

// encode writes buf in snapshot file format.
func encode(w io.Writer, buf pixbuf.Buffer) error {
	if err := checkEncodable(buf); err != nil {
		return err
	}

	hdr := header{
		width:      buf.Width,
		height:     buf.Height,
		count:      uint32(len(buf.Data)),
		alpha:      buf.Alpha,
		sixteenBit: buf.SixteenBit,
	}.marshal()

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := bw.Write(buf.Data); err != nil {
		return err
	}
	return bw.Flush()
}

// decode reads one snapshot. A short header, an inconsistent byte count, or
// a truncated payload yields ErrCorrupt.
func decode(r io.Reader) (pixbuf.Buffer, error) {
	var raw [headerSize]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return pixbuf.Buffer{}, fmt.Errorf("%w: reading header: %v", ErrCorrupt, err)
	}
	h, err := unmarshalHeader(raw)
	if err != nil {
		return pixbuf.Buffer{}, err
	}

	data := make([]byte, h.count)
	if _, err := io.ReadFull(r, data); err != nil {
		return pixbuf.Buffer{}, fmt.Errorf("%w: reading %d payload bytes: %v", ErrCorrupt, h.count, err)
	}

	return pixbuf.Buffer{
		Width:      h.width,
		Height:     h.height,
		Alpha:      h.alpha,
		SixteenBit: h.sixteenBit,
		Data:       data,
	}, nil
}
