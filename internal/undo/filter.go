package undo

import "github.com/majorcontext/darkroom/internal/pixbuf"

// Filter is a reversible image transform. Apply must not modify its input
// and Inverse must return a filter that undoes Apply exactly.
type Filter interface {
	Name() string
	Apply(buf pixbuf.Buffer) (pixbuf.Buffer, error)
	Inverse() Filter
}
