//go:build !unix && !windows

package system

import (
	"errors"
	"runtime"
)

// AvailableBytes is not supported on this platform.
func AvailableBytes(path string) (uint64, error) {
	return 0, errors.New("free space probe not supported on " + runtime.GOOS)
}
