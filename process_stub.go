//go:build !linux && !darwin

package daemon

import "syscall"

func signalProcess(_ int, _ syscall.Signal) error {
	return ErrUnsupported
}

func processGone(_ error) bool {
	return false
}

func processAlive(_ int) bool {
	return false
}

func processExited(_ int) bool {
	return false
}
