// Package undo implements the editor's undo/redo history.
//
// Every action sits at a level: its position counted from the bottom of the
// undo stack. Level L in the snapshot store holds the image as it was before
// the action at level L ran. Reversible actions are replayed in memory;
// irreversible actions, jumps back to the saved state and the first level are
// served from snapshots.
//
// A Manager is driven from the editor's control goroutine and is not safe for
// concurrent use.
package undo

import (
	"errors"
	"fmt"

	"github.com/majorcontext/darkroom/internal/log"
	"github.com/majorcontext/darkroom/internal/pixbuf"
	"github.com/majorcontext/darkroom/internal/snapshot"
)

var (
	// ErrSnapshotUnavailable is returned when a step needs a snapshot the
	// store cannot provide. The history is left unchanged.
	ErrSnapshotUnavailable = errors.New("undo snapshot unavailable")
	// ErrStepsOutOfRange is returned by ImageDataAndHistory for a step count
	// outside the undo history.
	ErrStepsOutOfRange = errors.New("steps back out of range")
)

// Editor is the editor core the manager drives.
type Editor interface {
	// CurrentBuffer returns the live image.
	CurrentBuffer() pixbuf.Buffer
	// CurrentMetadata returns the live image's history and profile.
	CurrentMetadata() Metadata
	// SetBuffer installs a restored image and its metadata.
	SetBuffer(meta Metadata, buf pixbuf.Buffer)
	// MetadataChanged updates the metadata without touching pixels.
	MetadataChanged(meta Metadata)
	ResolvedInitialHistory() History
	SetResolvedInitialHistory(h History)
	FileOriginToken() string
	SetFileOriginToken(token string)
	MarkModified()
}

// SnapshotStore persists full buffers by level. *snapshot.Store implements it.
type SnapshotStore interface {
	Put(level int, buf pixbuf.Buffer) error
	Get(level int) (pixbuf.Buffer, error)
	Has(level int) bool
	ClearFrom(level int)
	Clear()
}

var _ SnapshotStore = (*snapshot.Store)(nil)

// Manager owns the undo and redo stacks for one open image.
type Manager struct {
	editor Editor
	store  SnapshotStore
	undo   []*Action // back is the most recent action
	redo   []*Action // back is the most recently undone action
	origin Origin
}

// NewManager returns an empty history positioned at the saved state.
func NewManager(editor Editor, store SnapshotStore) *Manager {
	return &Manager{editor: editor, store: store}
}

// step selects how undoStep and redoStep treat the image.
type step struct {
	// save writes the level being left when the snapshot predicate needs it.
	save bool
	// execute installs the resulting buffer; otherwise only metadata moves.
	execute bool
	// flying restores from a snapshot regardless of the action's kind.
	flying bool
	// preloaded is the snapshot for a flying restore, read ahead of time.
	preloaded *pixbuf.Buffer
}

// actionAt returns the action at level j across both stacks, or nil.
func (m *Manager) actionAt(j int) *Action {
	if j < 0 {
		return nil
	}
	if j < len(m.undo) {
		return m.undo[j]
	}
	r := len(m.redo) - 1 - (j - len(m.undo))
	if r < 0 {
		return nil
	}
	return m.redo[r]
}

// originLevel returns the level of the saved state if it is reachable.
func (m *Manager) originLevel() (int, bool) {
	depth, ok := m.origin.Depth()
	if !ok {
		return 0, false
	}
	return len(m.undo) - depth, true
}

// levelNeeded reports whether the state at level j can be the target of a
// snapshot restore: the first level, the state before a non-replayable
// action (its undo), the state after one (its redo) and the saved state
// (rollback). next is the action that leaves level j forward.
func (m *Manager) levelNeeded(j int, next *Action) bool {
	if j == 0 || (next != nil && !next.Replayable()) {
		return true
	}
	if prev := m.actionAt(j - 1); prev != nil && !prev.Replayable() {
		return true
	}
	pos, ok := m.originLevel()
	return ok && pos == j
}

// saveLevel writes the live buffer as level j when the predicate asks for it.
// Failures are logged; the step that would read the level later reports it.
func (m *Manager) saveLevel(j int, next *Action) {
	if m.store.Has(j) || !m.levelNeeded(j, next) {
		return
	}
	if err := m.store.Put(j, m.editor.CurrentBuffer()); err != nil {
		if errors.Is(err, snapshot.ErrDisabled) {
			log.Debug("undo snapshot skipped", "level", j, "error", err)
			return
		}
		log.Warn("undo snapshot not saved; stepping past this level will be unavailable",
			"level", j, "error", err)
	}
}

func (m *Manager) currentOrigin() FileOrigin {
	return FileOrigin{
		Token:           m.editor.FileOriginToken(),
		ResolvedHistory: m.editor.ResolvedInitialHistory(),
	}
}

func (m *Manager) installOrigin(fo FileOrigin) {
	m.editor.SetFileOriginToken(fo.Token)
	m.editor.SetResolvedInitialHistory(fo.ResolvedHistory)
}

// AddAction records a step. It must be called while the editor still holds
// the image from before the step.
func (m *Manager) AddAction(a *Action) {
	if a == nil {
		return
	}
	if a.Kind() == Reversible && !a.Replayable() {
		log.Error("reversible undo action without filter; it will be undone from a snapshot",
			"title", a.Title())
	}

	m.ClearRedoActions()

	level := len(m.undo)
	m.saveLevel(level, a)

	if m.origin.AtOrigin() {
		a.SetFileOrigin(m.currentOrigin())
	} else {
		a.ClearFileOrigin()
	}
	m.undo = append(m.undo, a)
	m.origin = m.origin.Add(1)

	log.Debug("undo action added", "title", a.Title(), "kind", a.Kind(), "level", level, "origin", m.origin)
}

// Undo reverts the most recent action. It is a no-op with an empty history.
func (m *Manager) Undo() error {
	if len(m.undo) == 0 {
		return nil
	}
	if err := m.undoStep(step{save: true, execute: true}); err != nil {
		return err
	}
	m.editor.MarkModified()
	return nil
}

// Redo reapplies the most recently undone action. It is a no-op when there is
// nothing to redo.
func (m *Manager) Redo() error {
	if len(m.redo) == 0 {
		return nil
	}
	if err := m.redoStep(step{save: true, execute: true}); err != nil {
		return err
	}
	m.editor.MarkModified()
	return nil
}

// restoreBuffer computes the buffer a step installs. Replayable actions run
// replay in memory unless the step is flying.
func (m *Manager) restoreBuffer(a *Action, s step, level int, replay Filter) (pixbuf.Buffer, error) {
	if s.flying || !a.Replayable() {
		if s.preloaded != nil {
			return *s.preloaded, nil
		}
		buf, err := m.store.Get(level)
		if err != nil {
			return pixbuf.Buffer{}, fmt.Errorf("%w: %q at level %d: %v", ErrSnapshotUnavailable, a.Title(), level, err)
		}
		return buf, nil
	}
	buf, err := replay.Apply(m.editor.CurrentBuffer())
	if err != nil {
		return pixbuf.Buffer{}, fmt.Errorf("replay %s for %q: %w", replay.Name(), a.Title(), err)
	}
	return buf, nil
}

// undoStep moves the top undo action to the redo stack. Errors leave both
// stacks and the editor untouched.
func (m *Manager) undoStep(s step) error {
	k := len(m.undo) - 1
	a := m.undo[k]

	var buf pixbuf.Buffer
	if s.execute {
		var err error
		if buf, err = m.restoreBuffer(a, s, k, a.ReverseFilter()); err != nil {
			return err
		}
	}

	if s.save {
		m.saveLevel(k+1, m.actionAt(k+1))
	}

	dataAfterStep := m.editor.CurrentMetadata()
	wasAtOrigin := m.origin.AtOrigin()
	var leaving FileOrigin
	if wasAtOrigin {
		leaving = m.currentOrigin()
	}

	// The nearest stamped action at or below k names the saved state.
	var (
		found    FileOrigin
		hasFound bool
		distance int
	)
	for i := k; i >= 0; i-- {
		if fo, ok := m.undo[i].FileOrigin(); ok {
			found, hasFound, distance = fo, true, k-i
			break
		}
	}

	if s.execute {
		m.editor.SetBuffer(a.Metadata(), buf)
	} else {
		m.editor.MetadataChanged(a.Metadata())
	}

	a.SetMetadata(dataAfterStep)
	if wasAtOrigin {
		a.SetFileOrigin(leaving)
	} else {
		a.ClearFileOrigin()
	}

	m.undo = m.undo[:k]
	m.redo = append(m.redo, a)

	if hasFound {
		m.origin = OriginAt(distance)
		if distance == 0 {
			m.installOrigin(found)
		}
	} else {
		m.origin = m.origin.Add(-1)
	}

	log.Debug("undo step", "title", a.Title(), "level", k, "execute", s.execute, "flying", s.flying, "origin", m.origin)
	return nil
}

// redoStep moves the top redo action back onto the undo stack. Errors leave
// both stacks and the editor untouched.
func (m *Manager) redoStep(s step) error {
	r := len(m.redo) - 1
	a := m.redo[r]
	k := len(m.undo)

	var buf pixbuf.Buffer
	if s.execute {
		var err error
		if buf, err = m.restoreBuffer(a, s, k+1, a.Filter()); err != nil {
			return err
		}
	}

	if s.save {
		m.saveLevel(k, a)
	}

	dataBeforeStep := m.editor.CurrentMetadata()
	wasAtOrigin := m.origin.AtOrigin()
	var leaving FileOrigin
	if wasAtOrigin {
		leaving = m.currentOrigin()
	}
	arriving, reachesOrigin := a.FileOrigin()

	if s.execute {
		m.editor.SetBuffer(a.Metadata(), buf)
	} else {
		m.editor.MetadataChanged(a.Metadata())
	}

	a.SetMetadata(dataBeforeStep)
	if wasAtOrigin {
		a.SetFileOrigin(leaving)
	} else {
		a.ClearFileOrigin()
	}

	m.redo = m.redo[:r]
	m.undo = append(m.undo, a)

	if reachesOrigin {
		m.origin = OriginAt(0)
		m.installOrigin(arriving)
	} else {
		m.origin = m.origin.Add(1)
	}

	log.Debug("redo step", "title", a.Title(), "level", k, "execute", s.execute, "flying", s.flying, "origin", m.origin)
	return nil
}

// RollbackToOrigin returns to the last saved state. Multi-step jumps read
// the saved state's snapshot once and move the intermediate actions across
// without touching pixels. Without that snapshot the steps are taken one at
// a time.
func (m *Manager) RollbackToOrigin() error {
	depth, ok := m.origin.Depth()
	if !ok || depth == 0 || (len(m.undo) == 0 && len(m.redo) == 0) {
		return nil
	}

	switch {
	case depth == 1:
		return m.Undo()
	case depth == -1:
		return m.Redo()
	case depth > len(m.undo) || -depth > len(m.redo):
		return fmt.Errorf("origin depth %d outside history (%d undo, %d redo)", depth, len(m.undo), len(m.redo))
	}

	target := len(m.undo) - depth
	if err := m.fly(target, depth > 0); err != nil {
		if !errors.Is(err, ErrSnapshotUnavailable) {
			return err
		}
		log.Debug("flying rollback unavailable, stepping", "target", target, "error", err)
		if err := m.walk(depth); err != nil {
			return err
		}
	}

	m.editor.MarkModified()
	return nil
}

// fly jumps to level target with one snapshot read. backward selects undo
// steps, otherwise redo steps.
func (m *Manager) fly(target int, backward bool) error {
	if !m.store.Has(target) {
		return fmt.Errorf("%w: saved state at level %d", ErrSnapshotUnavailable, target)
	}
	buf, err := m.store.Get(target)
	if err != nil {
		return fmt.Errorf("%w: saved state at level %d: %v", ErrSnapshotUnavailable, target, err)
	}

	move := m.redoStep
	remaining := func() int { return target - len(m.undo) }
	if backward {
		move = m.undoStep
		remaining = func() int { return len(m.undo) - target }
	}

	// Bookkeeping steps cannot fail: they neither read nor replay.
	_ = move(step{save: true, flying: true})
	for remaining() > 1 {
		_ = move(step{flying: true})
	}
	return move(step{execute: true, flying: true, preloaded: &buf})
}

// walk takes |depth| ordinary steps toward the saved state.
func (m *Manager) walk(depth int) error {
	for ; depth > 0; depth-- {
		if err := m.undoStep(step{save: true, execute: true}); err != nil {
			return err
		}
	}
	for ; depth < 0; depth++ {
		if err := m.redoStep(step{save: true, execute: true}); err != nil {
			return err
		}
	}
	return nil
}

// SetOrigin marks the current state as saved. Provenance recorded for any
// earlier save is dropped.
func (m *Manager) SetOrigin() {
	for _, a := range m.undo {
		a.ClearFileOrigin()
	}
	for _, a := range m.redo {
		a.ClearFileOrigin()
	}
	m.origin = OriginAt(0)
}

// ClearRedoActions discards the redo branch and its snapshots. A saved state
// inside that branch becomes unreachable.
func (m *Manager) ClearRedoActions() {
	if len(m.redo) == 0 {
		return
	}
	m.store.ClearFrom(len(m.undo) + 1)
	m.redo = nil
	if depth, ok := m.origin.Depth(); ok && depth < 0 {
		m.origin = UnknownOrigin()
	}
}

// Clear drops the whole history and returns to the saved state. With
// clearCache false the snapshot files are kept; pass false only when the
// store is about to be closed or replaced, since stale levels would otherwise
// be reused.
func (m *Manager) Clear(clearCache bool) {
	m.undo = nil
	m.redo = nil
	m.origin = OriginAt(0)
	if clearCache {
		m.store.Clear()
	}
}

// AnyMoreUndo reports whether Undo has anything to revert.
func (m *Manager) AnyMoreUndo() bool { return len(m.undo) > 0 }

// AnyMoreRedo reports whether Redo has anything to reapply.
func (m *Manager) AnyMoreRedo() bool { return len(m.redo) > 0 }

func (m *Manager) AvailableUndoSteps() int { return len(m.undo) }
func (m *Manager) AvailableRedoSteps() int { return len(m.redo) }

// IsAtOrigin reports whether the current state is the last saved state.
func (m *Manager) IsAtOrigin() bool { return m.origin.AtOrigin() }

// HasChanges reports whether the current state differs from the saved one.
func (m *Manager) HasChanges() bool { return !m.origin.AtOrigin() }

// Origin returns the position of the saved state.
func (m *Manager) Origin() Origin { return m.origin }

// UndoHistory returns undo titles, most recent first.
func (m *Manager) UndoHistory() []string {
	out := make([]string, 0, len(m.undo))
	for i := len(m.undo) - 1; i >= 0; i-- {
		out = append(out, m.undo[i].Title())
	}
	return out
}

// RedoHistory returns redo titles, next to redo first.
func (m *Manager) RedoHistory() []string {
	out := make([]string, 0, len(m.redo))
	for i := len(m.redo) - 1; i >= 0; i-- {
		out = append(out, m.redo[i].Title())
	}
	return out
}

// ImageDataAndHistory reconstructs the image and metadata stepsBack undo
// steps behind the current state without changing the history. It starts
// from the nearest stored level at or above the target, or the live buffer,
// and replays reverse filters down to the target.
func (m *Manager) ImageDataAndHistory(stepsBack int) (pixbuf.Buffer, Metadata, error) {
	if stepsBack < 0 || stepsBack > len(m.undo) {
		return pixbuf.Buffer{}, Metadata{}, fmt.Errorf("%w: %d (have %d)", ErrStepsOutOfRange, stepsBack, len(m.undo))
	}
	if stepsBack == 0 {
		return m.editor.CurrentBuffer().Clone(), m.editor.CurrentMetadata(), nil
	}

	target := len(m.undo) - stepsBack
	meta := m.undo[target].Metadata()

	var (
		src    pixbuf.Buffer
		srcLvl = -1
	)
	for j := target; j <= len(m.undo); j++ {
		if j == len(m.undo) {
			src, srcLvl = m.editor.CurrentBuffer(), j
			break
		}
		if m.store.Has(j) {
			buf, err := m.store.Get(j)
			if err == nil {
				src, srcLvl = buf, j
				break
			}
			log.Debug("stored level unreadable, looking further up", "level", j, "error", err)
		}
		if !m.undo[j].Replayable() {
			return pixbuf.Buffer{}, Metadata{}, fmt.Errorf("%w: no source for level %d past %q",
				ErrSnapshotUnavailable, target, m.undo[j].Title())
		}
	}

	buf := src
	for i := srcLvl - 1; i >= target; i-- {
		f := m.undo[i].ReverseFilter()
		var err error
		if buf, err = f.Apply(buf); err != nil {
			return pixbuf.Buffer{}, Metadata{}, fmt.Errorf("replay %s for %q: %w", f.Name(), m.undo[i].Title(), err)
		}
	}
	return buf, meta, nil
}
