//go:build !linux && !darwin

package daemon

import "context"

// Watch is not supported on this platform
func (d *Daemon) Watch(_ context.Context) (<-chan WatchEvent, WatchCleanupFunc, error) {
	return nil, nil, &OpError{Op: OpWatch, Err: ErrUnsupported}
}

// Wait is not supported on this platform
func (d *Daemon) Wait(_ context.Context, _ []State) (Status, error) {
	return Status{}, &OpError{Op: OpWatch, Err: ErrUnsupported}
}
