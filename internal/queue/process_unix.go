//go:build !windows

package queue

import (
	"github.com/gruntwork-io/clusterflow/internal/errors"
	"golang.org/x/sys/unix"
)

// processAlive reports whether pid names a running process on this host.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	err := unix.Kill(pid, 0)

	return err == nil || errors.Is(err, unix.EPERM)
}
