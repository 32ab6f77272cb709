// Package snapshot is the on-disk cache of full image buffers backing the
// undo manager. Each buffer is stored under an integer level in a file that
// belongs to the current process; files from earlier sessions are purged
// when a store is opened.
//
// A Store is not safe for concurrent use.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/majorcontext/darkroom/internal/log"
	"github.com/majorcontext/darkroom/internal/pixbuf"
	"github.com/majorcontext/darkroom/internal/system"
	"github.com/majorcontext/darkroom/internal/ui"
)

// DefaultMinFreeBytes is the free-space floor used when Options leaves it unset.
const DefaultMinFreeBytes uint64 = 2 << 30

var (
	// ErrDisabled is returned by Put once the store has shut off writes.
	ErrDisabled = errors.New("snapshot cache disabled")
	// ErrLowSpace is returned by the Put that detects the free-space floor.
	ErrLowSpace = errors.New("not enough free disk space for snapshot")
	// ErrExists is returned when a level already has a file.
	ErrExists = errors.New("snapshot level already exists")
	// ErrNotFound is returned when a level has no file.
	ErrNotFound = errors.New("snapshot not found")
	// ErrCorrupt is returned for files whose header or length is inconsistent.
	ErrCorrupt = errors.New("corrupt snapshot")
	// ErrInvalidBuffer is returned when a buffer's data does not match its geometry.
	ErrInvalidBuffer = errors.New("invalid buffer")
)

// Options configures a Store.
type Options struct {
	// Dir holds the snapshot files. Required.
	Dir string
	// AppPrefix is prepended to file names, e.g. "darkroom-".
	AppPrefix string
	// PID identifies the session in file names. Zero uses os.Getpid().
	PID int
	// MinFreeBytes is the free-space floor. Zero uses DefaultMinFreeBytes.
	MinFreeBytes uint64
	// FreeSpace reports available bytes for Dir. Nil uses system.AvailableBytes.
	FreeSpace func(dir string) (uint64, error)
	// OnLowSpace is called once when the floor is hit. Nil prints a
	// critical warning through the ui package.
	OnLowSpace func(dir string, available uint64)
	// Registerer receives the store's metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
}

// Store maps levels to snapshot files for one editing session.
type Store struct {
	dir        string
	prefix     string
	minFree    uint64
	freeSpace  func(string) (uint64, error)
	onLowSpace func(string, uint64)
	levels     map[int]struct{}
	disabled   bool
	metrics    *metrics
}

// Open initializes a session store: it creates the cache directory, derives
// the per-process file prefix and removes snapshot files left by earlier
// sessions in that directory.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, errors.New("snapshot cache directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0700); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	pid := opts.PID
	if pid == 0 {
		pid = os.Getpid()
	}

	s := &Store{
		dir:        opts.Dir,
		prefix:     opts.AppPrefix + "undocache-" + strconv.Itoa(pid) + "-",
		minFree:    opts.MinFreeBytes,
		freeSpace:  opts.FreeSpace,
		onLowSpace: opts.OnLowSpace,
		levels:     make(map[int]struct{}),
		metrics:    newMetrics(opts.Registerer),
	}
	if s.minFree == 0 {
		s.minFree = DefaultMinFreeBytes
	}
	if s.freeSpace == nil {
		s.freeSpace = system.AvailableBytes
	}
	if s.onLowSpace == nil {
		s.onLowSpace = warnLowSpace
	}

	if err := s.purgeStale(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) purgeStale() error {
	stale, err := system.FindStaleSnapshots(s.dir, 0, "")
	if err != nil {
		return fmt.Errorf("scan stale snapshots: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	removed, err := system.RemoveStaleSnapshots(stale, 0)
	log.Info("purged stale undo snapshots", "dir", s.dir, "found", len(stale), "removed", removed)
	if err != nil {
		// Leftovers only cost disk space.
		log.Warn("could not remove every stale snapshot", "error", err)
	}
	return nil
}

func warnLowSpace(dir string, available uint64) {
	ui.Critical("Low disk space", dir, fmt.Sprintf(
		"Only %s free for undo snapshots. Undo history is no longer saved for this session; free some space and restart the editor.",
		system.FormatSize(int64(available))))
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// Prefix returns the session's file name prefix.
func (s *Store) Prefix() string { return s.prefix }

// Disabled reports whether writes have been shut off.
func (s *Store) Disabled() bool { return s.disabled }

// Path returns the file path for level.
func (s *Store) Path(level int) string {
	return filepath.Join(s.dir, s.prefix+strconv.Itoa(level)+".bin")
}

// Has reports whether level was written by this store and not cleared.
func (s *Store) Has(level int) bool {
	_, ok := s.levels[level]
	return ok
}

// Levels returns the recorded levels in ascending order.
func (s *Store) Levels() []int {
	out := make([]int, 0, len(s.levels))
	for l := range s.levels {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Put writes buf under level. Levels are write-once: an existing file is
// left untouched and ErrExists is returned. Running below the free-space
// floor, or any failure while writing, disables the store for good.
func (s *Store) Put(level int, buf pixbuf.Buffer) error {
	if s.disabled {
		s.metrics.writes.WithLabelValues(resultDisabled).Inc()
		return ErrDisabled
	}
	if err := checkEncodable(buf); err != nil {
		s.metrics.writes.WithLabelValues(resultInvalid).Inc()
		return err
	}

	if avail, err := s.freeSpace(s.dir); err != nil {
		log.Debug("free space probe failed", "dir", s.dir, "error", err)
	} else if avail < s.minFree {
		s.disabled = true
		s.metrics.writes.WithLabelValues(resultLowSpace).Inc()
		log.Warn("undo snapshot cache disabled: low disk space",
			"dir", s.dir, "available", avail, "floor", s.minFree)
		s.onLowSpace(s.dir, avail)
		return ErrLowSpace
	}

	path := s.Path(level)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			s.metrics.writes.WithLabelValues(resultExists).Inc()
			return fmt.Errorf("%w: level %d", ErrExists, level)
		}
		return s.failWrite(level, path, fmt.Errorf("create snapshot file: %w", err), false)
	}

	if err := encode(f, buf); err != nil {
		f.Close()
		return s.failWrite(level, path, fmt.Errorf("write snapshot: %w", err), true)
	}
	if err := f.Close(); err != nil {
		return s.failWrite(level, path, fmt.Errorf("close snapshot: %w", err), true)
	}

	s.levels[level] = struct{}{}
	s.metrics.writes.WithLabelValues(resultOK).Inc()
	s.metrics.bytesWritten.Add(float64(headerSize + len(buf.Data)))
	s.metrics.files.Set(float64(len(s.levels)))
	log.Debug("undo snapshot written", "level", level, "bytes", len(buf.Data))
	return nil
}

func (s *Store) failWrite(level int, path string, err error, created bool) error {
	if created {
		os.Remove(path)
	}
	s.disabled = true
	s.metrics.writes.WithLabelValues(resultIOError).Inc()
	log.Warn("undo snapshot write failed, cache disabled", "level", level, "path", path, "error", err)
	return err
}

// Get reads the buffer stored under level.
func (s *Store) Get(level int) (pixbuf.Buffer, error) {
	path := s.Path(level)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.metrics.reads.WithLabelValues(resultMissing).Inc()
			return pixbuf.Buffer{}, fmt.Errorf("%w: level %d", ErrNotFound, level)
		}
		s.metrics.reads.WithLabelValues(resultIOError).Inc()
		log.Warn("undo snapshot open failed", "level", level, "error", err)
		return pixbuf.Buffer{}, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	buf, err := decode(f)
	if err != nil {
		s.metrics.reads.WithLabelValues(resultCorrupt).Inc()
		log.Warn("undo snapshot unreadable", "level", level, "path", path, "error", err)
		return pixbuf.Buffer{}, fmt.Errorf("level %d: %w", level, err)
	}

	s.metrics.reads.WithLabelValues(resultOK).Inc()
	return buf, nil
}

// ClearFrom removes every recorded level >= level.
func (s *Store) ClearFrom(level int) {
	for l := range s.levels {
		if l >= level {
			s.remove(l)
		}
	}
	s.metrics.files.Set(float64(len(s.levels)))
}

// Clear removes every recorded level.
func (s *Store) Clear() {
	s.ClearFrom(0)
}

// Close removes the session's files.
func (s *Store) Close() error {
	s.Clear()
	return nil
}

func (s *Store) remove(level int) {
	if err := os.Remove(s.Path(level)); err != nil && !os.IsNotExist(err) {
		log.Warn("undo snapshot remove failed", "level", level, "error", err)
	}
	delete(s.levels, level)
}
