package undo

import "strconv"

// Origin locates the last saved state relative to the current one. A known
// origin has a depth: the number of undo steps (positive) or redo steps
// (negative) between here and the saved state. Once the saved state has been
// discarded with a redo branch the origin is unknown.
//
// The zero value is a known origin at depth 0.
type Origin struct {
	depth   int
	unknown bool
}

// OriginAt returns a known origin at the given depth.
func OriginAt(depth int) Origin { return Origin{depth: depth} }

// UnknownOrigin returns an origin that can no longer be reached.
func UnknownOrigin() Origin { return Origin{unknown: true} }

// Known reports whether the saved state is still reachable.
func (o Origin) Known() bool { return !o.unknown }

// Depth returns the step count to the saved state and whether it is known.
func (o Origin) Depth() (int, bool) { return o.depth, !o.unknown }

// AtOrigin reports whether the current state is the saved state.
func (o Origin) AtOrigin() bool { return !o.unknown && o.depth == 0 }

// Add shifts a known origin by delta. An unknown origin stays unknown.
func (o Origin) Add(delta int) Origin {
	if o.unknown {
		return o
	}
	return Origin{depth: o.depth + delta}
}

func (o Origin) String() string {
	if o.unknown {
		return "unknown"
	}
	return strconv.Itoa(o.depth)
}
