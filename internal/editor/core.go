// Package editor is an in-memory editor core: it owns the live image and its
// metadata and records every edit with an undo manager.
package editor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/majorcontext/darkroom/internal/log"
	"github.com/majorcontext/darkroom/internal/pixbuf"
	"github.com/majorcontext/darkroom/internal/undo"
)

// Core holds one open image.
type Core struct {
	buf      pixbuf.Buffer
	meta     undo.Metadata
	resolved undo.History
	token    string
	modified bool
	history  *undo.Manager
}

// New opens buf as a freshly loaded file. token names the file's provenance;
// the metadata history becomes the resolved initial history.
func New(buf pixbuf.Buffer, meta undo.Metadata, token string, store undo.SnapshotStore) (*Core, error) {
	if err := buf.Validate(); err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	c := &Core{
		buf:      buf.Clone(),
		meta:     meta.Clone(),
		resolved: meta.History.Clone(),
		token:    token,
	}
	c.history = undo.NewManager(c, store)
	return c, nil
}

func (c *Core) CurrentBuffer() pixbuf.Buffer   { return c.buf }
func (c *Core) CurrentMetadata() undo.Metadata { return c.meta.Clone() }

func (c *Core) SetBuffer(meta undo.Metadata, buf pixbuf.Buffer) {
	c.meta = meta.Clone()
	c.buf = buf
}

func (c *Core) MetadataChanged(meta undo.Metadata) { c.meta = meta.Clone() }

func (c *Core) ResolvedInitialHistory() undo.History     { return c.resolved.Clone() }
func (c *Core) SetResolvedInitialHistory(h undo.History) { c.resolved = h.Clone() }
func (c *Core) FileOriginToken() string                  { return c.token }
func (c *Core) SetFileOriginToken(token string)          { c.token = token }

// MarkModified refreshes the modified flag from the history position.
func (c *Core) MarkModified() { c.modified = c.history.HasChanges() }

// History returns the undo manager.
func (c *Core) History() *undo.Manager { return c.history }

// Modified reports whether the image differs from the last save.
func (c *Core) Modified() bool { return c.modified }

// Metadata returns a copy of the live metadata.
func (c *Core) Metadata() undo.Metadata { return c.meta.Clone() }

// Buffer returns a copy of the live image.
func (c *Core) Buffer() pixbuf.Buffer { return c.buf.Clone() }

// Apply runs a reversible filter and records it under title.
func (c *Core) Apply(title string, f undo.Filter) error {
	if f == nil {
		return errors.New("apply: nil filter")
	}
	out, err := f.Apply(c.buf)
	if err != nil {
		return fmt.Errorf("apply %s: %w", f.Name(), err)
	}
	c.history.AddAction(undo.NewReversible(title, f, c.meta))
	c.commit(out, undo.Step{Name: f.Name()})
	return nil
}

// ApplyIrreversible runs a destructive edit and records it under title. name
// is the step recorded in the image history.
func (c *Core) ApplyIrreversible(title, name string, edit Edit) error {
	if edit == nil {
		return errors.New("apply: nil edit")
	}
	out, err := edit(c.buf)
	if err != nil {
		return fmt.Errorf("apply %s: %w", name, err)
	}
	if err := out.Validate(); err != nil {
		return fmt.Errorf("apply %s: %w", name, err)
	}
	c.history.AddAction(undo.NewIrreversible(title, c.meta))
	c.commit(out, undo.Step{Name: name})
	return nil
}

func (c *Core) commit(out pixbuf.Buffer, s undo.Step) {
	c.buf = out
	c.meta.History = append(c.meta.History.Clone(), s)
	c.modified = true
	log.Debug("edit applied", "step", s.Name, "fingerprint", fmt.Sprintf("%016x", c.Fingerprint()))
}

// Save marks the current image as written to disk under token.
func (c *Core) Save(token string) {
	c.token = token
	c.resolved = c.meta.History.Clone()
	c.modified = false
	c.history.SetOrigin()
	log.Debug("image saved", "token", token, "steps", len(c.meta.History))
}

func (c *Core) Undo() error     { return c.history.Undo() }
func (c *Core) Redo() error     { return c.history.Redo() }
func (c *Core) Rollback() error { return c.history.RollbackToOrigin() }

// Close drops the history and its snapshots.
func (c *Core) Close() {
	c.history.Clear(true)
}

// Fingerprint hashes the live image's geometry, flags and bytes.
func (c *Core) Fingerprint() uint64 {
	return Fingerprint(c.buf)
}

// Fingerprint hashes buf's geometry, flags and bytes.
func Fingerprint(buf pixbuf.Buffer) uint64 {
	var hdr [10]byte
	binary.LittleEndian.PutUint32(hdr[0:], buf.Width)
	binary.LittleEndian.PutUint32(hdr[4:], buf.Height)
	if buf.Alpha {
		hdr[8] = 1
	}
	if buf.SixteenBit {
		hdr[9] = 1
	}
	d := xxhash.New()
	_, _ = d.Write(hdr[:])
	_, _ = d.Write(buf.Data)
	return d.Sum64()
}
