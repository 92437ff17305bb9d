//go:build !linux && !darwin

package daemon

import "context"

// detach is unavailable without a POSIX process model
func (d *Daemon) detach(_ context.Context) (bool, error) {
	return false, &OpError{Op: OpFork, Err: ErrUnsupported}
}
