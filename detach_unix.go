//go:build linux || darwin

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/axondata/go-daemon/internal/unix"
)

// Detach stages. The foreground process has no stage.
const (
	stageSession = "1"
	stageFinal   = "2"
)

// detach performs the two-step detachment. Go cannot fork a running runtime,
// so each fork is a re-execution of the current binary with the stage carried
// in StageEnv. It reports true only in the final daemon process; the
// foreground and intermediate processes end through ExitFunc.
func (d *Daemon) detach(ctx context.Context) (bool, error) {
	switch stage := os.Getenv(StageEnv); stage {
	case "":
		return false, d.detachForeground(ctx)
	case stageSession:
		return false, d.detachSession()
	case stageFinal:
		if err := d.detachFinal(); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, &OpError{Op: OpFork, Err: fmt.Errorf("unexpected %s=%q", StageEnv, stage)}
	}
}

// detachForeground starts the session leader in a new session rooted at "/"
// and leaves. With StartTimeout set it first waits for the PID file.
func (d *Daemon) detachForeground(ctx context.Context) error {
	launchID := uuid.NewString()
	wd, err := os.Getwd()
	if err != nil {
		return &OpError{Op: OpFork, Err: err}
	}

	cmd, err := d.reexec(stageSession, LaunchIDEnv+"="+launchID, WorkDirEnv+"="+wd)
	if err != nil {
		return err
	}
	cmd.Dir = "/"
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return d.reportFork(1, err)
	}

	// The session leader exits as soon as it has started the daemon, so
	// reaping it surfaces a failed second fork. The session leader already
	// printed the reason.
	if err := cmd.Wait(); err != nil {
		return &OpError{Op: OpFork, PID: cmd.Process.Pid, Err: err, reported: true}
	}

	d.Logger.Info("daemon detached",
		slog.String("launch_id", launchID),
		slog.String("pid_file", d.pidFile.Path()))

	if d.StartTimeout > 0 {
		if err := d.awaitStart(ctx, launchID); err != nil {
			return err
		}
	}

	d.ExitFunc(ExitOK)
	return nil
}

// awaitStart blocks until the PID file names a live process. On failure the
// launch ID lets the operator find the attempt in the daemon's stderr.
func (d *Daemon) awaitStart(ctx context.Context, launchID string) error {
	waitCtx, cancel := context.WithTimeout(ctx, d.StartTimeout)
	defer cancel()

	status, err := d.Wait(waitCtx, []State{StateRunning})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = ErrStartTimeout
		}
		d.Logger.Warn("daemon did not start",
			slog.String("launch_id", launchID),
			slog.Duration("timeout", d.StartTimeout))
		return d.report(&OpError{Op: OpStart, Path: d.pidFile.Path(), Err: err},
			fmt.Sprintf("daemon did not write %s within %s (launch %s)", d.pidFile.Path(), d.StartTimeout, launchID))
	}

	d.Logger.Info("daemon started", slog.Int("pid", status.PID))
	return nil
}

// detachSession runs in the session leader. It drops the inherited umask and
// starts the final process, which is not a session leader and so can never
// acquire a controlling terminal.
func (d *Daemon) detachSession() error {
	if err := os.Chdir("/"); err != nil {
		fmt.Fprintf(d.Messages, "chdir /: %v\n", err)
		d.ExitFunc(ExitFailure)
		return &OpError{Op: OpFork, Err: err}
	}
	unix.Umask(0)

	cmd, err := d.reexec(stageFinal)
	if err != nil {
		fmt.Fprintln(d.Messages, err)
		d.ExitFunc(ExitFailure)
		return err
	}
	if err := cmd.Start(); err != nil {
		opErr := d.reportFork(2, err)
		d.ExitFunc(ExitFailure)
		return opErr
	}
	_ = cmd.Process.Release()

	d.ExitFunc(ExitOK)
	return nil
}

// detachFinal runs in the daemon process: it installs the stream
// redirections, registers PID file removal and records its PID.
func (d *Daemon) detachFinal() error {
	launchID := os.Getenv(LaunchIDEnv)
	for _, key := range []string{StageEnv, WorkDirEnv, LaunchIDEnv} {
		_ = os.Unsetenv(key)
	}

	if err := d.redirect(); err != nil {
		return err
	}

	d.OnExit(d.pidFile.Remove)

	pid := os.Getpid()
	if err := d.pidFile.Write(pid); err != nil {
		fmt.Fprintf(os.Stderr, "write pidfile %s: %v\n", d.pidFile.Path(), err)
		return err
	}

	// Written to the configured stderr
	fmt.Fprintf(os.Stderr, "daemon running (pid %d, launch %s)\n", pid, launchID)
	d.Logger.Info("daemon running",
		slog.Int("pid", pid),
		slog.String("launch_id", launchID),
		slog.String("pid_file", d.pidFile.Path()),
		slog.Time("since", time.Now()))
	return nil
}

// redirect flushes the inherited streams and points fds 0, 1 and 2 at the
// configured files
func (d *Daemon) redirect() error {
	_ = os.Stdout.Sync()
	_ = os.Stderr.Sync()

	in, err := os.Open(d.Config.Stdin)
	if err != nil {
		return &OpError{Op: OpRedirect, Path: d.Config.Stdin, Err: err}
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(d.Config.Stdout, os.O_WRONLY|os.O_APPEND|os.O_CREATE, FileMode)
	if err != nil {
		return &OpError{Op: OpRedirect, Path: d.Config.Stdout, Err: err}
	}
	defer func() { _ = out.Close() }()

	errf, err := os.OpenFile(d.Config.Stderr, os.O_WRONLY|os.O_APPEND|os.O_CREATE, FileMode)
	if err != nil {
		return &OpError{Op: OpRedirect, Path: d.Config.Stderr, Err: err}
	}
	defer func() { _ = errf.Close() }()

	targets := []struct {
		f  *os.File
		fd int
	}{
		{in, int(os.Stdin.Fd())},
		{out, int(os.Stdout.Fd())},
		{errf, int(os.Stderr.Fd())},
	}
	for _, t := range targets {
		if err := unix.Redirect(t.f, t.fd); err != nil {
			return &OpError{Op: OpRedirect, Path: t.f.Name(), Err: err}
		}
	}
	return nil
}

// reexec prepares a copy of the current command line for the given stage
func (d *Daemon) reexec(stage string, env ...string) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, &OpError{Op: OpFork, Err: fmt.Errorf("resolve executable: %w", err)}
	}

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(withoutEnv(os.Environ(), StageEnv), StageEnv+"="+stage)
	cmd.Env = append(cmd.Env, env...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

// reportFork writes the classic "fork #n failed" line with the OS error code
// and returns the matching OpFork error. Codes that are not errnos print as -1.
func (d *Daemon) reportFork(n int, err error) *OpError {
	code := -1
	var errno syscall.Errno
	if errors.As(err, &errno) {
		code = int(errno)
	}
	d.Logger.Error("fork failed", slog.Int("stage", n), slog.String("error", err.Error()))
	return d.report(&OpError{Op: OpFork, Err: err}, fmt.Sprintf("fork #%d failed: %d (%v)", n, code, err))
}

// withoutEnv drops every entry for key from env
func withoutEnv(env []string, key string) []string {
	out := make([]string, 0, len(env))
	prefix := key + "="
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return out
}
