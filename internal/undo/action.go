package undo

// Kind distinguishes actions that can be replayed in memory from those that
// need a snapshot to undo.
type Kind int

const (
	// Reversible actions carry a filter and its inverse.
	Reversible Kind = iota
	// Irreversible actions carry no transform; undoing them restores a snapshot.
	Irreversible
)

func (k Kind) String() string {
	switch k {
	case Reversible:
		return "reversible"
	case Irreversible:
		return "irreversible"
	}
	return "unknown"
}

// Action is one step in the undo history.
//
// Metadata holds the state to restore when the action crosses to the other
// stack: the pre-step metadata while it sits on the undo stack, the
// post-step metadata while it sits on the redo stack.
type Action struct {
	kind      Kind
	title     string
	meta      Metadata
	filter    Filter
	reverse   Filter
	origin    FileOrigin
	hasOrigin bool
}

// NewReversible returns an action that replays filter to redo and its
// inverse to undo. meta is the metadata before the step.
func NewReversible(title string, filter Filter, meta Metadata) *Action {
	a := &Action{kind: Reversible, title: title, meta: meta.Clone(), filter: filter}
	if filter != nil {
		a.reverse = filter.Inverse()
	}
	return a
}

// NewIrreversible returns an action that can only be undone from a snapshot.
// meta is the metadata before the step.
func NewIrreversible(title string, meta Metadata) *Action {
	return &Action{kind: Irreversible, title: title, meta: meta.Clone()}
}

// Kind returns the action's variant.
func (a *Action) Kind() Kind { return a.kind }

// Replayable reports whether the action can be undone and redone in memory.
// A reversible action missing its filter or inverse is not.
func (a *Action) Replayable() bool {
	return a.kind == Reversible && a.filter != nil && a.reverse != nil
}

func (a *Action) Title() string         { return a.title }
func (a *Action) SetTitle(title string) { a.title = title }

// Metadata returns the metadata to restore when the action changes stacks.
func (a *Action) Metadata() Metadata { return a.meta }

// SetMetadata replaces the stored metadata.
func (a *Action) SetMetadata(meta Metadata) { a.meta = meta.Clone() }

// Filter returns the forward transform, or nil for irreversible actions.
func (a *Action) Filter() Filter { return a.filter }

// ReverseFilter returns the inverse transform, or nil for irreversible actions.
func (a *Action) ReverseFilter() Filter { return a.reverse }

// SetFileOrigin records the provenance of the saved state this action leads
// back to.
func (a *Action) SetFileOrigin(fo FileOrigin) {
	a.origin = fo.clone()
	a.hasOrigin = true
}

// FileOrigin returns the recorded provenance, if any.
func (a *Action) FileOrigin() (FileOrigin, bool) {
	if !a.hasOrigin {
		return FileOrigin{}, false
	}
	return a.origin.clone(), true
}

// HasFileOrigin reports whether the action leads back to the saved state.
func (a *Action) HasFileOrigin() bool { return a.hasOrigin }

// ClearFileOrigin drops any recorded provenance.
func (a *Action) ClearFileOrigin() {
	a.origin = FileOrigin{}
	a.hasOrigin = false
}
