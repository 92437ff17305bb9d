//go:build linux || darwin

package daemon

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"vawter.tech/stopper"
)

// watchState tracks the last status delivered to the watcher
type watchState struct {
	mu        sync.Mutex
	last      Status
	sent      bool
	debouncer *time.Timer
}

// changed records st and reports whether it differs from the last delivery
func (s *watchState) changed(st Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent && s.last.State == st.State && s.last.PID == st.PID {
		return false
	}
	s.last = st
	s.sent = true
	return true
}

// Watch monitors the PID file for changes. The directory holding the PID
// file is watched with fsnotify, so creation, replacement and removal are all
// observed. The current status is delivered first; afterwards only changes
// in state or PID are sent.
func (d *Daemon) Watch(ctx context.Context) (<-chan WatchEvent, WatchCleanupFunc, error) {
	path := d.pidFile.Path()
	dir := filepath.Dir(path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, &OpError{Op: OpWatch, Path: dir, Err: err}
	}

	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, nil, &OpError{Op: OpWatch, Path: dir, Err: err}
	}

	ch := make(chan WatchEvent, 10)

	// chMu keeps a late debounced read from sending on the closed channel
	var (
		chMu   sync.RWMutex
		closed bool
	)

	sctx := stopper.WithContext(ctx)
	sctx.Defer(func() {
		_ = watcher.Close()
		chMu.Lock()
		closed = true
		close(ch)
		chMu.Unlock()
	})

	state := &watchState{}

	cleanup := func() error {
		sctx.Stop(100 * time.Millisecond)
		return sctx.Wait()
	}

	send := func(ev WatchEvent) {
		chMu.RLock()
		defer chMu.RUnlock()
		if closed || sctx.IsStopping() {
			return
		}
		select {
		case ch <- ev:
		case <-sctx.Stopping():
		}
	}

	readAndSend := func() {
		if sctx.IsStopping() {
			return
		}
		st, err := d.Status(ctx)
		if err != nil {
			send(WatchEvent{Err: err})
			return
		}
		if state.changed(st) {
			send(WatchEvent{Status: st})
		}
	}

	readAndSend()

	sctx.Go(func(sctx *stopper.Context) error {
		sctx.Defer(func() {
			state.mu.Lock()
			if state.debouncer != nil {
				state.debouncer.Stop()
			}
			state.mu.Unlock()
		})

		for !sctx.IsStopping() {
			select {
			case <-sctx.Stopping():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Name != path {
					continue
				}

				state.mu.Lock()
				if state.debouncer != nil {
					state.debouncer.Stop()
				}
				state.debouncer = time.AfterFunc(d.WatchDebounce, readAndSend)
				state.mu.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				if err != nil {
					send(WatchEvent{Err: &OpError{Op: OpWatch, Path: dir, Err: err}})
				}
			}
		}
		return nil
	})

	return ch, cleanup, nil
}
