// Package process answers questions about local processes that own package
// locks.
package process

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// Alive reports whether a process with the given PID exists. A process owned
// by another user still counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	// Signal 0 performs the existence and permission checks without
	// delivering anything.
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}

// Hostname returns the machine's hostname, or "unknown" if it cannot be
// determined.
func Hostname() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "unknown"
	}
	return host
}
