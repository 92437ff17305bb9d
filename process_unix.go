//go:build linux || darwin

package daemon

import (
	"syscall"

	"github.com/axondata/go-daemon/internal/unix"
)

// signalProcess delivers sig to pid
func signalProcess(pid int, sig syscall.Signal) error {
	return unix.Signal(pid, sig)
}

// processGone reports whether a signal error means pid no longer exists
func processGone(err error) bool {
	return unix.NoSuchProcess(err)
}

// processExited reports whether pid has exited without being reaped yet
func processExited(pid int) bool {
	return unix.Zombie(pid)
}

// processAlive probes pid with signal 0. EPERM still proves existence; an
// unreaped zombie does not.
func processAlive(pid int) bool {
	err := unix.Signal(pid, 0)
	if err != nil && unix.NoSuchProcess(err) {
		return false
	}
	return !unix.Zombie(pid)
}
