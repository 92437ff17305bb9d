package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"syscall"
	"time"
)

// Start refuses to run when the PID file already names an instance,
// otherwise detaches and runs the task. In the foreground process Start
// returns only on failure (or in tests, after ExitFunc returns); in the
// daemon it returns once the task has finished and the exit hooks ran.
func (d *Daemon) Start(ctx context.Context) error {
	if d.runner == nil {
		return d.report(&OpError{Op: OpStart, Err: ErrNotImplemented}, ErrNotImplemented.Error())
	}

	// The duplicate check belongs to the foreground invocation; the
	// re-executed stages inherit its verdict.
	if os.Getenv(StageEnv) == "" {
		unlock, err := d.pidFile.Lock()
		if err != nil {
			var opErr *OpError
			if errors.Is(err, ErrAlreadyRunning) && errors.As(err, &opErr) {
				return d.report(opErr, fmt.Sprintf("pidfile %s is being started by another process", d.pidFile.Path()))
			}
			return err
		}
		defer func() { _ = unlock() }()

		if pid, ok := d.pidFile.Read(); ok {
			d.Logger.Warn("daemon already running",
				slog.Int("pid", pid),
				slog.String("pid_file", d.pidFile.Path()))
			return d.report(&OpError{Op: OpStart, Path: d.pidFile.Path(), PID: pid, Err: ErrAlreadyRunning},
				fmt.Sprintf("pidfile %s already exist. Daemon already running?", d.pidFile.Path()))
		}
	}

	daemonized, err := d.detach(ctx)
	if err != nil || !daemonized {
		return err
	}

	return d.run(ctx)
}

// Stop terminates the instance named by the PID file. It sends SIGTERM every
// PollInterval until the process is gone, then removes the PID file. A
// missing PID file is reported and treated as success.
func (d *Daemon) Stop(ctx context.Context) error {
	path := d.pidFile.Path()
	pid, ok := d.pidFile.Read()
	if !ok {
		fmt.Fprintf(d.Messages, "pidfile %s does not exist. Daemon not running?\n", path)
		return nil
	}
	if pid == os.Getpid() {
		return &OpError{Op: OpStop, Path: path, PID: pid, Err: ErrSelfSignal}
	}

	logger := d.Logger.With(slog.Int("pid", pid), slog.String("pid_file", path))
	logger.Info("stopping daemon")

	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	sig := syscall.SIGTERM
	deadline := d.stopDeadline()
	for {
		err := signalProcess(pid, sig)
		if err != nil && !processGone(err) {
			return d.report(&OpError{Op: OpStop, Path: path, PID: pid, Err: err}, err.Error())
		}
		// A zombie accepts signals until its new parent reaps it
		if err != nil || processExited(pid) {
			logger.Info("daemon stopped")
			return d.pidFile.Remove()
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			if !d.ForceKill || sig == syscall.SIGKILL {
				return &OpError{Op: OpStop, Path: path, PID: pid, Err: ErrStopTimeout}
			}
			logger.Warn("daemon ignored SIGTERM, sending SIGKILL", slog.Duration("timeout", d.StopTimeout))
			sig = syscall.SIGKILL
			deadline = d.stopDeadline()
			continue
		}

		select {
		case <-ctx.Done():
			return &OpError{Op: OpStop, Path: path, PID: pid, Err: ctx.Err()}
		case <-ticker.C:
		}
	}
}

// report writes msg to Messages and marks err as already reported
func (d *Daemon) report(err *OpError, msg string) *OpError {
	fmt.Fprintln(d.Messages, msg)
	err.reported = true
	return err
}

func (d *Daemon) stopDeadline() time.Time {
	if d.StopTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(d.StopTimeout)
}

// Restart stops the running instance, if any, then starts a new one. The
// re-executed detach stages run the same command line, so inside a stage
// Restart only continues the start.
func (d *Daemon) Restart(ctx context.Context) error {
	if os.Getenv(StageEnv) == "" {
		if err := d.Stop(ctx); err != nil {
			return err
		}
	}
	return d.Start(ctx)
}

// Status reports the instance recorded in the PID file
func (d *Daemon) Status(_ context.Context) (Status, error) {
	path := d.pidFile.Path()
	st := Status{Path: path}

	pid, err := d.pidFile.ReadPID()
	if errors.Is(err, fs.ErrNotExist) {
		st.State = StateStopped
		return st, nil
	}
	if err != nil {
		return st, &OpError{Op: OpStatus, Path: path, Err: err}
	}

	st.PID = pid
	if info, err := os.Stat(path); err == nil {
		st.Since = info.ModTime()
	}
	if processAlive(pid) {
		st.State = StateRunning
	} else {
		st.State = StateStale
	}
	return st, nil
}

// Dispatch runs the operation selected by cmd
func (d *Daemon) Dispatch(ctx context.Context, cmd Command) error {
	switch cmd {
	case CommandStart:
		return d.Start(ctx)
	case CommandStop:
		return d.Stop(ctx)
	case CommandRestart:
		return d.Restart(ctx)
	case CommandStatus:
		st, err := d.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(d.Messages, st.String())
		return nil
	case CommandUnknown:
		fallthrough
	default:
		err := &UsageError{Token: cmd.String()}
		fmt.Fprintln(d.Messages, err.Error())
		return err
	}
}

// DispatchToken parses token and dispatches it. Unknown tokens print the
// usage text and return a *UsageError.
func (d *Daemon) DispatchToken(ctx context.Context, token string) error {
	cmd, err := ParseCommand(token)
	if err != nil {
		fmt.Fprintln(d.Messages, err.Error())
		return err
	}
	return d.Dispatch(ctx, cmd)
}
