// Package system holds host-level helpers for the snapshot cache: locating
// stale snapshot files left behind by crashed sessions and probing free disk
// space on the cache volume.
package system

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// SnapshotGlob matches snapshot files written by any darkroom session.
const SnapshotGlob = "*undocache-*.bin"

// removeConcurrency bounds parallel unlinks during a purge.
const removeConcurrency = 8

var snapshotName = regexp.MustCompile(`undocache-(\d+)-(\d+)\.bin$`)

// StaleSnapshot is a snapshot file found in a cache directory.
type StaleSnapshot struct {
	Path    string
	PID     int
	Level   int
	ModTime time.Time
	Size    int64
}

// ParseSnapshotName extracts the writer pid and level from a snapshot file
// name. ok is false for names that are not snapshot files.
func ParseSnapshotName(name string) (pid, level int, ok bool) {
	m := snapshotName.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return 0, 0, false
	}
	pid, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, false
	}
	level, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, false
	}
	return pid, level, true
}

// FindStaleSnapshots scans dir for snapshot files last modified more than
// minAge ago. Files whose name starts with keepPrefix are skipped; pass ""
// to consider every snapshot file. Results are sorted by path.
func FindStaleSnapshots(dir string, minAge time.Duration, keepPrefix string) ([]StaleSnapshot, error) {
	matches, err := filepath.Glob(filepath.Join(dir, SnapshotGlob))
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	cutoff := time.Now().Add(-minAge)
	var stale []StaleSnapshot
	for _, match := range matches {
		base := filepath.Base(match)
		if keepPrefix != "" && strings.HasPrefix(base, keepPrefix) {
			continue
		}
		pid, level, ok := ParseSnapshotName(base)
		if !ok {
			continue
		}

		info, err := os.Stat(match)
		if err != nil || info.IsDir() {
			continue
		}
		if minAge > 0 && info.ModTime().After(cutoff) {
			continue
		}

		stale = append(stale, StaleSnapshot{
			Path:    match,
			PID:     pid,
			Level:   level,
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i].Path < stale[j].Path })
	return stale, nil
}

// RemoveStaleSnapshots deletes the given files. With minAge > 0 each file's
// age is re-checked right before removal so a file rewritten since the scan
// survives. It returns the number of files removed.
func RemoveStaleSnapshots(files []StaleSnapshot, minAge time.Duration) (int, error) {
	var (
		mu      sync.Mutex
		errs    []string
		removed int
	)
	cutoff := time.Now().Add(-minAge)

	var g errgroup.Group
	g.SetLimit(removeConcurrency)
	for _, f := range files {
		g.Go(func() error {
			if minAge > 0 {
				if info, err := os.Stat(f.Path); err == nil && info.ModTime().After(cutoff) {
					return nil
				}
			}
			err := os.Remove(f.Path)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				removed++
			case !os.IsNotExist(err):
				errs = append(errs, fmt.Sprintf("%s: %v", f.Path, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(errs) > 0 {
		sort.Strings(errs)
		return removed, fmt.Errorf("failed to remove some snapshot files:\n  %s", strings.Join(errs, "\n  "))
	}
	return removed, nil
}

// FormatSize formats a byte size into a human-readable string
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
