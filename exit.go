package daemon

import "log/slog"

// OnExit registers fn to run when the daemon process ends through Start's
// normal return, a panic in the task, a termination signal or Exit. Hooks run
// once, most recent first.
func (d *Daemon) OnExit(fn func() error) {
	d.hooksMu.Lock()
	defer d.hooksMu.Unlock()
	d.hooks = append(d.hooks, fn)
}

// runExitHooks drains the registered hooks in LIFO order. A concurrent call
// waits for the hooks in flight and then finds nothing left to run.
func (d *Daemon) runExitHooks() error {
	d.hooksRun.Lock()
	defer d.hooksRun.Unlock()

	d.hooksMu.Lock()
	hooks := d.hooks
	d.hooks = nil
	d.hooksMu.Unlock()

	merr := &MultiError{}
	for i := len(hooks) - 1; i >= 0; i-- {
		merr.Add(hooks[i]())
	}
	if err := merr.Err(); err != nil {
		d.Logger.Warn("exit hooks failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Exit runs the exit hooks and terminates the process with code
func (d *Daemon) Exit(code int) {
	_ = d.runExitHooks()
	d.ExitFunc(code)
}
