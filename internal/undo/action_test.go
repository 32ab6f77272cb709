package undo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionKinds(t *testing.T) {
	meta := Metadata{History: History{{Name: "open"}}}

	rev := NewReversible("Invert", invertFilter{}, meta)
	assert.Equal(t, Reversible, rev.Kind())
	assert.True(t, rev.Replayable())
	assert.Equal(t, "invert", rev.ReverseFilter().Name())

	irr := NewIrreversible("Fill", meta)
	assert.Equal(t, Irreversible, irr.Kind())
	assert.False(t, irr.Replayable())
	assert.Nil(t, irr.Filter())
	assert.Equal(t, "irreversible", irr.Kind().String())

	assert.False(t, NewReversible("Nothing", nil, meta).Replayable())
}

func TestActionCopiesMetadata(t *testing.T) {
	meta := Metadata{
		History: History{{Name: "open", Params: map[string]string{"path": "a.tif"}}},
		Profile: ColorProfile{Name: "sRGB", ICC: []byte{1, 2, 3}},
	}
	a := NewIrreversible("Fill", meta)

	meta.History[0].Params["path"] = "b.tif"
	meta.Profile.ICC[0] = 9

	got := a.Metadata()
	assert.Equal(t, "a.tif", got.History[0].Params["path"])
	assert.Equal(t, byte(1), got.Profile.ICC[0])
}

func TestActionFileOrigin(t *testing.T) {
	a := NewIrreversible("Fill", Metadata{})
	_, ok := a.FileOrigin()
	assert.False(t, ok)

	a.SetFileOrigin(FileOrigin{Token: "tok", ResolvedHistory: History{{Name: "import"}}})
	fo, ok := a.FileOrigin()
	assert.True(t, ok)
	assert.Equal(t, "tok", fo.Token)
	assert.Equal(t, []string{"import"}, fo.ResolvedHistory.Names())

	a.ClearFileOrigin()
	assert.False(t, a.HasFileOrigin())
}
