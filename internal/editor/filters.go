package editor

import (
	"fmt"

	"github.com/majorcontext/darkroom/internal/pixbuf"
	"github.com/majorcontext/darkroom/internal/undo"
)

// channels is the number of interleaved channels in a pixel.
const channels = 4

// Invert complements every channel value. It is its own inverse.
func Invert() undo.Filter { return invert{} }

type invert struct{}

func (invert) Name() string         { return "invert" }
func (invert) Inverse() undo.Filter { return invert{} }

func (invert) Apply(in pixbuf.Buffer) (pixbuf.Buffer, error) {
	if err := in.Validate(); err != nil {
		return pixbuf.Buffer{}, fmt.Errorf("invert: %w", err)
	}
	out := in.Clone()
	for i := range out.Data {
		out.Data[i] = ^out.Data[i]
	}
	return out, nil
}

// XOR flips the bits in mask on every byte. It is its own inverse.
func XOR(mask byte) undo.Filter { return xor{mask: mask} }

type xor struct{ mask byte }

func (f xor) Name() string         { return fmt.Sprintf("xor-%02x", f.mask) }
func (f xor) Inverse() undo.Filter { return f }

func (f xor) Apply(in pixbuf.Buffer) (pixbuf.Buffer, error) {
	if err := in.Validate(); err != nil {
		return pixbuf.Buffer{}, fmt.Errorf("xor: %w", err)
	}
	out := in.Clone()
	for i := range out.Data {
		out.Data[i] ^= f.mask
	}
	return out, nil
}

// RotateChannels shifts each pixel's channels n places to the right, so
// RotateChannels(1) turns RGBA into ARGB.
func RotateChannels(n int) undo.Filter {
	n %= channels
	if n < 0 {
		n += channels
	}
	return rotate{n: n}
}

type rotate struct{ n int }

func (f rotate) Name() string         { return fmt.Sprintf("rotate-channels-%d", f.n) }
func (f rotate) Inverse() undo.Filter { return RotateChannels(channels - f.n) }

func (f rotate) Apply(in pixbuf.Buffer) (pixbuf.Buffer, error) {
	if err := in.Validate(); err != nil {
		return pixbuf.Buffer{}, fmt.Errorf("rotate channels: %w", err)
	}
	out := in.Clone()
	if f.n == 0 {
		return out, nil
	}
	width := int(pixbuf.BytesPerPixel(in.SixteenBit)) / channels
	px := width * channels
	for p := 0; p+px <= len(in.Data); p += px {
		for c := 0; c < channels; c++ {
			dst := p + ((c+f.n)%channels)*width
			copy(out.Data[dst:dst+width], in.Data[p+c*width:p+(c+1)*width])
		}
	}
	return out, nil
}

// Edit is a destructive transform with no inverse.
type Edit func(pixbuf.Buffer) (pixbuf.Buffer, error)

// Fill returns an edit that sets every byte of the image to v.
func Fill(v byte) Edit {
	return func(in pixbuf.Buffer) (pixbuf.Buffer, error) {
		return pixbuf.Filled(in.Width, in.Height, in.SixteenBit, in.Alpha, v), nil
	}
}
