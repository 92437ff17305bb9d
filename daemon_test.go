//go:build linux || darwin

package daemon

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/axondata/go-daemon/internal/unix"
)

// Environment understood by the test binary when it is re-executed as a
// helper process
const (
	helperEnv        = "GO_DAEMON_TEST_HELPER"
	helperPIDFileEnv = "GO_DAEMON_TEST_PIDFILE"
	helperLogEnv     = "GO_DAEMON_TEST_LOG"
	helperCmdEnv     = "GO_DAEMON_TEST_CMD"
)

// Helper modes
const (
	helperDaemon     = "daemon"
	helperIgnoreTerm = "ignore-term"
)

func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case helperDaemon:
		os.Exit(daemonHelper())
	case helperIgnoreTerm:
		ignoreTermHelper()
		os.Exit(ExitFailure)
	}

	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("os/signal.signal_recv"),
		goleak.IgnoreTopFunction("os/signal.loop"),
	)
}

// daemonHelper is a complete daemon program: every detach stage re-executes
// the test binary and lands here again
func daemonHelper() int {
	logPath := os.Getenv(helperLogEnv)
	d, err := New(Config{
		PIDFile: os.Getenv(helperPIDFileEnv),
		Stdout:  logPath,
		Stderr:  logPath,
	}, RunnerFunc(func(ctx context.Context) error {
		fmt.Println("serving")
		<-ctx.Done()
		fmt.Println("shutting down")
		return nil
	}))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return ExitFailure
	}
	return ExitCode(d.DispatchToken(context.Background(), os.Getenv(helperCmdEnv)))
}

// ignoreTermHelper announces readiness on stdout and then outlives SIGTERM
func ignoreTermHelper() {
	signal.Ignore(syscall.SIGTERM)
	fmt.Println("ready")
	time.Sleep(time.Minute)
}

// startIgnoringTerm runs a helper that ignores SIGTERM and returns its PID.
// The process is killed and reaped when the test ends.
func startIgnoringTerm(t *testing.T) int {
	t.Helper()

	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(), helperEnv+"="+helperIgnoreTerm)
	stdout, err := cmd.StdoutPipe()
	require.NoError(t, err)
	require.NoError(t, cmd.Start())

	line, err := bufio.NewReader(stdout).ReadString('\n')
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		t.Fatalf("helper did not become ready: %v", err)
	}
	require.Equal(t, "ready\n", line)

	// Reap as soon as it dies so signal probes see ESRCH
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-done
	})

	return cmd.Process.Pid
}

func newTestDaemon(t *testing.T, runner Runner, opts ...Option) (*Daemon, *bytes.Buffer) {
	t.Helper()

	var messages bytes.Buffer
	opts = append([]Option{
		WithMessages(&messages),
		WithPollInterval(10 * time.Millisecond),
		WithExitFunc(func(code int) {
			t.Fatalf("unexpected exit with code %d", code)
		}),
	}, opts...)

	d, err := New(Config{PIDFile: filepath.Join(t.TempDir(), "test.pid")}, runner, opts...)
	require.NoError(t, err)
	return d, &messages
}

func TestNew(t *testing.T) {
	t.Run("requires pid file", func(t *testing.T) {
		_, err := New(Config{}, nil)
		assert.ErrorIs(t, err, ErrNoPIDFile)
	})

	t.Run("defaults", func(t *testing.T) {
		d, err := New(Config{PIDFile: "/run/test.pid"}, nil)
		require.NoError(t, err)

		assert.Equal(t, Config{
			PIDFile: "/run/test.pid",
			Stdin:   os.DevNull,
			Stdout:  os.DevNull,
			Stderr:  os.DevNull,
		}, d.Config)
		assert.Equal(t, DefaultPollInterval, d.PollInterval)
		assert.Equal(t, DefaultShutdownGrace, d.ShutdownGrace)
		assert.Equal(t, DefaultWatchDebounce, d.WatchDebounce)
		assert.Zero(t, d.StopTimeout)
		assert.Zero(t, d.StartTimeout)
		assert.False(t, d.ForceKill)
		assert.Equal(t, "/run/test.pid", d.PIDFile().Path())
	})

	t.Run("options", func(t *testing.T) {
		d, err := New(Config{PIDFile: "/run/test.pid"}, nil,
			WithPollInterval(5*time.Millisecond),
			WithStopTimeout(time.Second),
			WithForceKill(true),
			WithStartTimeout(2*time.Second),
			WithShutdownGrace(3*time.Second),
			WithWatchDebounce(time.Millisecond),
		)
		require.NoError(t, err)

		assert.Equal(t, 5*time.Millisecond, d.PollInterval)
		assert.Equal(t, time.Second, d.StopTimeout)
		assert.True(t, d.ForceKill)
		assert.Equal(t, 2*time.Second, d.StartTimeout)
		assert.Equal(t, 3*time.Second, d.ShutdownGrace)
		assert.Equal(t, time.Millisecond, d.WatchDebounce)
	})

	t.Run("non-positive poll interval", func(t *testing.T) {
		d, err := New(Config{PIDFile: "/run/test.pid"}, nil, WithPollInterval(0))
		require.NoError(t, err)
		assert.Equal(t, DefaultPollInterval, d.PollInterval)
	})

	t.Run("relative paths", func(t *testing.T) {
		wd, err := os.Getwd()
		require.NoError(t, err)

		d, err := New(Config{PIDFile: "run/test.pid", Stdout: "test.log"}, nil)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(wd, "run/test.pid"), d.Config.PIDFile)
		assert.Equal(t, filepath.Join(wd, "test.log"), d.Config.Stdout)
	})

	t.Run("relative paths inside a detach stage", func(t *testing.T) {
		t.Setenv(StageEnv, stageFinal)
		t.Setenv(WorkDirEnv, "/home/operator")

		d, err := New(Config{PIDFile: "test.pid"}, nil)
		require.NoError(t, err)
		assert.Equal(t, "/home/operator/test.pid", d.Config.PIDFile)

		p, err := ResolvePath("conf/test.toml")
		require.NoError(t, err)
		assert.Equal(t, "/home/operator/conf/test.toml", p)
	})
}

// helperCommand runs one lifecycle command through the daemon helper
func helperCommand(t *testing.T, pidFile, logFile, command string) (int, string) {
	t.Helper()

	cmd := exec.Command(os.Args[0])
	cmd.Env = append(os.Environ(),
		helperEnv+"="+helperDaemon,
		helperPIDFileEnv+"="+pidFile,
		helperLogEnv+"="+logFile,
		helperCmdEnv+"="+command,
	)

	out, err := cmd.CombinedOutput()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), string(out)
	}
	require.NoError(t, err)
	return 0, string(out)
}

func waitRunning(t *testing.T, d *Daemon, notPID int) Status {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for {
		st, err := d.Wait(ctx, []State{StateRunning})
		require.NoError(t, err, "daemon did not write its PID file")
		if st.PID != notPID {
			return st
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDaemonLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping end-to-end daemon test in short mode")
	}

	dir := t.TempDir()
	pidFile := filepath.Join(dir, "helper.pid")
	logFile := filepath.Join(dir, "helper.log")

	observer, err := New(Config{PIDFile: pidFile}, nil, WithMessages(io.Discard))
	require.NoError(t, err)

	t.Cleanup(func() {
		if pid, ok := observer.PIDFile().Read(); ok {
			_ = syscall.Kill(pid, syscall.SIGKILL)
		}
	})

	// start: the foreground returns 0 right away and the daemon records itself
	code, out := helperCommand(t, pidFile, logFile, "start")
	require.Equal(t, ExitOK, code, out)
	assert.Empty(t, out)

	st := waitRunning(t, observer, 0)
	first := st.PID
	assert.NotEqual(t, os.Getpid(), first)

	// the daemon is neither a session leader nor in our session
	sid, err := unix.Getsid(first)
	require.NoError(t, err)
	ourSid, err := unix.Getsid(0)
	require.NoError(t, err)
	assert.NotEqual(t, first, sid, "daemon must not be a session leader")
	assert.NotEqual(t, ourSid, sid, "daemon must run in its own session")

	if cwd, err := os.Readlink("/proc/" + strconv.Itoa(first) + "/cwd"); err == nil {
		assert.Equal(t, "/", cwd)
	}

	// status and a refused second start
	code, out = helperCommand(t, pidFile, logFile, "status")
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, fmt.Sprintf("running (pid %d)\n", first), out)

	code, out = helperCommand(t, pidFile, logFile, "start")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, out, "already exist. Daemon already running?")
	pid, _ := observer.PIDFile().Read()
	assert.Equal(t, first, pid)

	// restart replaces the instance
	code, out = helperCommand(t, pidFile, logFile, "restart")
	require.Equal(t, ExitOK, code, out)
	assert.Empty(t, out)
	second := waitRunning(t, observer, first).PID
	assert.NotEqual(t, first, second)
	assert.False(t, processAlive(first), "old instance survived restart")

	// stop removes the PID file once the process is gone
	code, out = helperCommand(t, pidFile, logFile, "stop")
	assert.Equal(t, ExitOK, code, out)
	assert.NoFileExists(t, pidFile)
	assert.False(t, processAlive(second))

	code, out = helperCommand(t, pidFile, logFile, "stop")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, out, "does not exist. Daemon not running?")

	// the task's output went to the redirect target
	log, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(log), "serving\n")
	assert.Contains(t, string(log), "shutting down\n")
	for _, pid := range []int{first, second} {
		assert.Contains(t, string(log), fmt.Sprintf("daemon running (pid %d, launch ", pid))
	}
}

func TestDaemonUnknownCommand(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping helper process test in short mode")
	}

	dir := t.TempDir()
	code, out := helperCommand(t, filepath.Join(dir, "helper.pid"), filepath.Join(dir, "helper.log"), "foo")
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, out, Usage())
}
