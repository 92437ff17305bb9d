//go:build linux || darwin

package daemon

import (
	"context"
	"slices"
)

// Wait blocks until the PID file reaches one of states or ctx is done.
// If states is nil or empty, it returns the first status Watch delivers.
//
// Example:
//
//	// Wait for the daemon to come up
//	status, err := d.Wait(ctx, []State{StateRunning})
//
//	// Wait for the PID file to go away
//	status, err := d.Wait(ctx, []State{StateStopped})
func (d *Daemon) Wait(ctx context.Context, states []State) (Status, error) {
	if len(states) > 0 {
		status, err := d.Status(ctx)
		if err == nil && slices.Contains(states, status.State) {
			return status, nil
		}
	}

	events, cleanup, err := d.Watch(ctx)
	if err != nil {
		return Status{}, err
	}
	defer func() { _ = cleanup() }()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return Status{}, ctx.Err()
			}
			if event.Err != nil {
				return Status{}, event.Err
			}
			if len(states) == 0 || slices.Contains(states, event.Status.State) {
				return event.Status, nil
			}
		case <-ctx.Done():
			return Status{}, ctx.Err()
		}
	}
}
