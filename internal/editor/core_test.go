package editor

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/darkroom/internal/pixbuf"
	"github.com/majorcontext/darkroom/internal/snapshot"
	"github.com/majorcontext/darkroom/internal/undo"
)

func newCore(t *testing.T) *Core {
	t.Helper()
	store, err := snapshot.Open(snapshot.Options{
		Dir:        t.TempDir(),
		AppPrefix:  "test-",
		FreeSpace:  func(string) (uint64, error) { return math.MaxUint64, nil },
		OnLowSpace: func(string, uint64) {},
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	img := pixbuf.New(8, 6, false, true)
	for i := range img.Data {
		img.Data[i] = byte(i)
	}
	c, err := New(img, undo.Metadata{History: undo.History{{Name: "open"}}}, "file:a.tif", store)
	require.NoError(t, err)
	return c
}

func TestCoreEditsAndUndo(t *testing.T) {
	c := newCore(t)
	start := c.Fingerprint()
	assert.False(t, c.Modified())

	require.NoError(t, c.Apply("Invert", Invert()))
	require.NoError(t, c.Apply("Swap channels", RotateChannels(1)))
	require.NoError(t, c.ApplyIrreversible("Fill", "fill", Fill(0x7F)))
	require.NoError(t, c.Apply("Mask", XOR(0x0F)))
	assert.True(t, c.Modified())
	assert.Equal(t, []string{"open", "invert", "rotate-channels-1", "fill", "xor-0f"}, c.Metadata().History.Names())
	assert.Equal(t, byte(0x70), c.Buffer().Data[0])

	for c.History().AnyMoreUndo() {
		require.NoError(t, c.Undo())
	}
	assert.Equal(t, start, c.Fingerprint())
	assert.Equal(t, []string{"open"}, c.Metadata().History.Names())
	assert.False(t, c.Modified())

	for c.History().AnyMoreRedo() {
		require.NoError(t, c.Redo())
	}
	assert.Equal(t, byte(0x70), c.Buffer().Data[0])
	assert.True(t, c.Modified())
}

func TestCoreSaveAndRollback(t *testing.T) {
	c := newCore(t)
	require.NoError(t, c.Apply("Invert", Invert()))
	c.Save("file:b.tif")
	assert.False(t, c.Modified())
	saved := c.Fingerprint()

	require.NoError(t, c.Apply("Mask", XOR(0xAA)))
	require.NoError(t, c.ApplyIrreversible("Fill", "fill", Fill(0)))
	require.NoError(t, c.Apply("Rotate", RotateChannels(3)))
	c.SetFileOriginToken("unsaved")

	require.NoError(t, c.Rollback())
	assert.Equal(t, saved, c.Fingerprint())
	assert.Equal(t, "file:b.tif", c.FileOriginToken())
	assert.Equal(t, []string{"open", "invert"}, c.ResolvedInitialHistory().Names())
	assert.False(t, c.Modified())
	assert.Equal(t, 3, c.History().AvailableRedoSteps())

	// Rolling forward past the saved state and back again.
	require.NoError(t, c.Undo())
	require.NoError(t, c.Rollback())
	assert.Equal(t, saved, c.Fingerprint())
}

func TestCoreRejectsBadInput(t *testing.T) {
	c := newCore(t)
	require.Error(t, c.Apply("nil", nil))
	require.Error(t, c.ApplyIrreversible("bad", "bad", func(pixbuf.Buffer) (pixbuf.Buffer, error) {
		return pixbuf.Buffer{Width: 2, Height: 2, Data: []byte{1}}, nil
	}))
	assert.False(t, c.History().AnyMoreUndo())

	_, err := New(pixbuf.Buffer{Width: 1, Height: 1}, undo.Metadata{}, "", nil)
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a := pixbuf.Filled(2, 2, false, true, 1)
	b := a.Clone()
	assert.Equal(t, Fingerprint(a), Fingerprint(b))

	b.Alpha = false
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))

	c := pixbuf.Filled(4, 1, false, true, 1)
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c), "geometry is hashed")
}
