//go:build linux || darwin

package unix

import (
	"errors"
	"syscall"

	"golang.org/x/sys/unix"
)

// Signal sends sig to pid
func Signal(pid int, sig syscall.Signal) error {
	return unix.Kill(pid, sig)
}

// NoSuchProcess reports whether err means the target process is gone
func NoSuchProcess(err error) bool {
	return errors.Is(err, unix.ESRCH)
}

// Umask sets the file creation mask and returns the previous one
func Umask(mask int) int {
	return unix.Umask(mask)
}

// Getsid returns the session ID of pid
func Getsid(pid int) (int, error) {
	return unix.Getsid(pid)
}
