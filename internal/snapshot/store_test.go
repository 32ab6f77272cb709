package snapshot

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/darkroom/internal/pixbuf"
)

type fakeDisk struct {
	free     uint64
	probes   int
	warnings int
	warnDir  string
}

func (d *fakeDisk) freeSpace(string) (uint64, error) {
	d.probes++
	return d.free, nil
}

func (d *fakeDisk) lowSpace(dir string, _ uint64) {
	d.warnings++
	d.warnDir = dir
}

func newTestStore(t *testing.T) (*Store, *fakeDisk) {
	t.Helper()
	disk := &fakeDisk{free: math.MaxUint64}
	s, err := Open(Options{
		Dir:        t.TempDir(),
		AppPrefix:  "test-",
		PID:        4242,
		FreeSpace:  disk.freeSpace,
		OnLowSpace: disk.lowSpace,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, disk
}

func gradient(w, h uint32, sixteenBit, alpha bool) pixbuf.Buffer {
	b := pixbuf.New(w, h, sixteenBit, alpha)
	for i := range b.Data {
		b.Data[i] = byte(i * 7)
	}
	return b
}

func TestPutGetRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		sixteenBit bool
		alpha      bool
	}{
		{"8bit", false, false},
		{"8bit alpha", false, true},
		{"16bit", true, false},
		{"16bit alpha", true, true},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			want := gradient(10, 7, tt.sixteenBit, tt.alpha)

			require.NoError(t, s.Put(i, want))
			assert.True(t, s.Has(i))

			got, err := s.Get(i)
			require.NoError(t, err)
			assert.True(t, pixbuf.Equal(want, got), "round trip changed the buffer")
		})
	}
}

func TestFileLayout(t *testing.T) {
	s, _ := newTestStore(t)
	buf := gradient(3, 2, false, true)
	require.NoError(t, s.Put(5, buf))

	path := s.Path(5)
	assert.Equal(t, "test-undocache-4242-5.bin", filepath.Base(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, raw, headerSize+len(buf.Data))
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(raw[0:4]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(raw[4:8]))
	assert.Equal(t, uint32(24), binary.LittleEndian.Uint32(raw[8:12]))
	assert.Equal(t, byte(1), raw[12], "alpha flag")
	assert.Equal(t, byte(0), raw[13], "sixteen-bit flag")
	assert.Equal(t, buf.Data, raw[headerSize:])
}

func TestPutWriteOnce(t *testing.T) {
	s, _ := newTestStore(t)
	first := pixbuf.Filled(4, 4, false, false, 0xaa)
	require.NoError(t, s.Put(0, first))

	before, err := os.ReadFile(s.Path(0))
	require.NoError(t, err)

	err = s.Put(0, pixbuf.Filled(4, 4, false, false, 0x55))
	assert.ErrorIs(t, err, ErrExists)
	assert.False(t, s.Disabled(), "an existing level must not disable the store")

	after, err := os.ReadFile(s.Path(0))
	require.NoError(t, err)
	assert.Equal(t, before, after, "second Put must not alter the first file")

	got, err := s.Get(0)
	require.NoError(t, err)
	assert.True(t, pixbuf.Equal(first, got))
}

func TestGetMissing(t *testing.T) {
	s, _ := newTestStore(t)

	got, err := s.Get(3)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, got.IsNull())
}

func TestGetTruncatedPayload(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(0, gradient(10, 10, false, false)))

	info, err := os.Stat(s.Path(0))
	require.NoError(t, err)
	require.NoError(t, os.Truncate(s.Path(0), info.Size()-1))

	got, err := s.Get(0)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.True(t, got.IsNull(), "corrupt read must not return a partial buffer")
}

func TestGetShortHeader(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(s.Path(1), []byte{1, 0, 0}, 0600))

	_, err := s.Get(1)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestGetInconsistentByteCount(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(0, gradient(4, 4, false, false)))

	raw, err := os.ReadFile(s.Path(0))
	require.NoError(t, err)
	// Claim 16-bit data while the payload holds 8-bit pixels.
	raw[13] = 1
	require.NoError(t, os.WriteFile(s.Path(0), raw, 0600))

	_, err = s.Get(0)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestGetBadFlagByte(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Put(0, gradient(2, 2, false, false)))

	raw, err := os.ReadFile(s.Path(0))
	require.NoError(t, err)
	raw[12] = 7
	require.NoError(t, os.WriteFile(s.Path(0), raw, 0600))

	_, err = s.Get(0)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestLowSpaceDisablesStore(t *testing.T) {
	s, disk := newTestStore(t)
	disk.free = 1 << 20

	err := s.Put(0, gradient(2, 2, false, false))
	assert.ErrorIs(t, err, ErrLowSpace)
	assert.True(t, s.Disabled())
	assert.Equal(t, 1, disk.warnings)
	assert.Equal(t, s.Dir(), disk.warnDir)

	disk.free = math.MaxUint64
	for level := 1; level < 4; level++ {
		assert.ErrorIs(t, s.Put(level, gradient(2, 2, false, false)), ErrDisabled)
	}

	assert.Equal(t, 1, disk.warnings, "warning must be shown exactly once")
	assert.Equal(t, 1, disk.probes, "a disabled store must not touch the disk")
	assert.Empty(t, s.Levels())

	files, _ := filepath.Glob(filepath.Join(s.Dir(), "*.bin"))
	assert.Empty(t, files)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.writes.WithLabelValues(resultLowSpace)))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.metrics.writes.WithLabelValues(resultDisabled)))
}

func TestWriteFailureDisablesStore(t *testing.T) {
	s, disk := newTestStore(t)
	require.NoError(t, os.RemoveAll(s.Dir()))

	err := s.Put(0, gradient(2, 2, false, false))
	require.Error(t, err)
	assert.True(t, s.Disabled())
	assert.Zero(t, disk.warnings, "I/O failures are not reported as low space")
	assert.False(t, s.Has(0))

	require.NoError(t, os.MkdirAll(s.Dir(), 0700))
	assert.ErrorIs(t, s.Put(0, gradient(2, 2, false, false)), ErrDisabled)
}

func TestPutInvalidBuffer(t *testing.T) {
	s, _ := newTestStore(t)
	buf := gradient(4, 4, false, false)
	buf.Data = buf.Data[:10]

	assert.ErrorIs(t, s.Put(0, buf), ErrInvalidBuffer)
	assert.False(t, s.Disabled())
	_, err := os.Stat(s.Path(0))
	assert.True(t, os.IsNotExist(err))
}

func TestClearFrom(t *testing.T) {
	s, _ := newTestStore(t)
	for level := 0; level < 5; level++ {
		require.NoError(t, s.Put(level, gradient(2, 2, false, false)))
	}

	s.ClearFrom(2)

	assert.Equal(t, []int{0, 1}, s.Levels())
	for level := 0; level < 5; level++ {
		_, err := os.Stat(s.Path(level))
		if level < 2 {
			assert.NoError(t, err, "level %d should survive", level)
		} else {
			assert.True(t, os.IsNotExist(err), "level %d should be removed", level)
		}
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(s.metrics.files))

	// A cleared level can be written again.
	assert.NoError(t, s.Put(3, gradient(2, 2, false, false)))
}

func TestClearAndClose(t *testing.T) {
	s, _ := newTestStore(t)
	for level := 0; level < 3; level++ {
		require.NoError(t, s.Put(level, gradient(2, 2, false, false)))
	}

	s.Clear()
	assert.Empty(t, s.Levels())

	require.NoError(t, s.Put(0, gradient(2, 2, false, false)))
	require.NoError(t, s.Close())

	files, _ := filepath.Glob(filepath.Join(s.Dir(), "*.bin"))
	assert.Empty(t, files)
}

func TestOpenPurgesStaleFiles(t *testing.T) {
	dir := t.TempDir()
	stale := []string{
		"darkroom-undocache-17-0.bin",
		"darkroom-undocache-17-3.bin",
		"other-undocache-99-1.bin",
	}
	for _, name := range stale {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("old"), 0600))
	}
	unrelated := filepath.Join(dir, "holiday.jpg")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0600))

	s, err := Open(Options{
		Dir:       dir,
		AppPrefix: "darkroom-",
		PID:       18,
		FreeSpace: func(string) (uint64, error) { return math.MaxUint64, nil },
	})
	require.NoError(t, err)
	defer s.Close()

	for _, name := range stale {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.True(t, os.IsNotExist(err), "%s should be purged", name)
	}
	_, err = os.Stat(unrelated)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.Prefix(), "darkroom-undocache-18-"))
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := Open(Options{})
	assert.Error(t, err)
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := Open(Options{
		Dir:        t.TempDir(),
		Registerer: reg,
		FreeSpace:  func(string) (uint64, error) { return math.MaxUint64, nil },
	})
	require.NoError(t, err)
	defer s.Close()

	buf := gradient(2, 2, false, false)
	require.NoError(t, s.Put(0, buf))
	_, err = s.Get(0)
	require.NoError(t, err)
	_, err = s.Get(1)
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.writes.WithLabelValues(resultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.reads.WithLabelValues(resultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.metrics.reads.WithLabelValues(resultMissing)))
	assert.Equal(t, float64(headerSize+len(buf.Data)), testutil.ToFloat64(s.metrics.bytesWritten))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["darkroom_undocache_writes_total"])
	assert.True(t, names["darkroom_undocache_reads_total"])
}
