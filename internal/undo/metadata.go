package undo

import (
	"bytes"
	"maps"
	"slices"
)

// Step describes one processing step recorded in an image's history.
type Step struct {
	Name   string
	Params map[string]string
}

// History is the ordered processing log carried with an image.
type History []Step

// Clone returns a deep copy of h.
func (h History) Clone() History {
	if h == nil {
		return nil
	}
	out := make(History, len(h))
	for i, s := range h {
		out[i] = Step{Name: s.Name, Params: maps.Clone(s.Params)}
	}
	return out
}

// Equal reports whether h and o record the same steps.
func (h History) Equal(o History) bool {
	return slices.EqualFunc(h, o, func(a, b Step) bool {
		return a.Name == b.Name && maps.Equal(a.Params, b.Params)
	})
}

// Names returns the step names in order.
func (h History) Names() []string {
	out := make([]string, len(h))
	for i, s := range h {
		out[i] = s.Name
	}
	return out
}

// ColorProfile is an embedded ICC profile. Its contents are not interpreted.
type ColorProfile struct {
	Name string
	ICC  []byte
}

// Metadata is the cross-cutting state that travels with the pixel buffer
// through undo and redo.
type Metadata struct {
	History History
	Profile ColorProfile
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	return Metadata{
		History: m.History.Clone(),
		Profile: ColorProfile{Name: m.Profile.Name, ICC: bytes.Clone(m.Profile.ICC)},
	}
}

// Equal reports whether m and o carry the same history and profile.
func (m Metadata) Equal(o Metadata) bool {
	return m.History.Equal(o.History) &&
		m.Profile.Name == o.Profile.Name &&
		bytes.Equal(m.Profile.ICC, o.Profile.ICC)
}

// FileOrigin is the provenance of the saved file: an opaque token naming how
// the file on disk relates to the original source, plus the resolved history
// of that source.
type FileOrigin struct {
	Token           string
	ResolvedHistory History
}

func (f FileOrigin) clone() FileOrigin {
	return FileOrigin{Token: f.Token, ResolvedHistory: f.ResolvedHistory.Clone()}
}
