package daemon

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Environment variables carried across the detach re-executions
const (
	// StageEnv holds the detach stage of the current process ("1" or "2")
	StageEnv = "GO_DAEMON_STAGE"

	// LaunchIDEnv holds the launch identifier generated by the foreground process
	LaunchIDEnv = "GO_DAEMON_LAUNCH_ID"

	// WorkDirEnv holds the foreground working directory so relative paths
	// keep their meaning after the chdir to "/"
	WorkDirEnv = "GO_DAEMON_WORKDIR"
)

// Defaults
const (
	// DefaultPollInterval is the delay between termination signals sent by Stop
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultShutdownGrace is how long the task may run after a termination
	// signal before its context is torn down
	DefaultShutdownGrace = 5 * time.Second

	// DefaultWatchDebounce coalesces bursts of PID file events
	DefaultWatchDebounce = 25 * time.Millisecond
)

// File modes
const (
	// DirMode is the mode for created PID file directories
	DirMode = 0o755

	// FileMode is the mode for PID files and redirect targets
	FileMode = 0o644
)

// Exit statuses
const (
	// ExitOK is the normal exit status
	ExitOK = 0

	// ExitFailure is the status for operational errors
	ExitFailure = 1

	// ExitUsage is the status for unrecognized commands
	ExitUsage = 2
)

// Config holds the four paths the core needs. It is copied by New and never
// mutated afterwards.
type Config struct {
	// PIDFile is the path of the PID file
	PIDFile string
	// Stdin is opened read-only and installed as fd 0 once detached
	Stdin string
	// Stdout is opened in append mode and installed as fd 1 once detached
	Stdout string
	// Stderr is opened in append mode and installed as fd 2 once detached
	Stderr string
}

// withDefaults fills empty redirect paths with the null device
func (c Config) withDefaults() Config {
	if c.Stdin == "" {
		c.Stdin = os.DevNull
	}
	if c.Stdout == "" {
		c.Stdout = os.DevNull
	}
	if c.Stderr == "" {
		c.Stderr = os.DevNull
	}
	return c
}

// absolute resolves every path against base, or the working directory when
// base is empty
func (c Config) absolute(base string) (Config, error) {
	for _, p := range []*string{&c.PIDFile, &c.Stdin, &c.Stdout, &c.Stderr} {
		abs, err := resolve(base, *p)
		if err != nil {
			return c, err
		}
		*p = abs
	}
	return c, nil
}

func resolve(base, p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	if base != "" {
		return filepath.Join(base, p), nil
	}
	return filepath.Abs(p)
}

// ResolvePath makes p absolute relative to the directory the foreground
// invocation ran in. Detached stages run in "/", so callers that open files
// named on the command line before Start should resolve them here.
func ResolvePath(p string) (string, error) {
	return resolve(invocationDir(), p)
}

// invocationDir is the foreground working directory inside detach stages and
// empty otherwise
func invocationDir() string {
	if os.Getenv(StageEnv) == "" {
		return ""
	}
	return os.Getenv(WorkDirEnv)
}

// Daemon turns the calling program into a PID-file-tracked background
// process and controls running instances of it.
type Daemon struct {
	// Config is the immutable path configuration
	Config Config

	// PollInterval is the delay between SIGTERM attempts in Stop
	PollInterval time.Duration

	// StopTimeout bounds Stop. Zero waits until the process is gone.
	StopTimeout time.Duration

	// ForceKill sends SIGKILL once StopTimeout has elapsed instead of failing
	ForceKill bool

	// StartTimeout makes the foreground process wait for the daemon to
	// write its PID file. Zero exits right after the first detach step.
	StartTimeout time.Duration

	// ShutdownGrace is the time the task gets after a termination signal
	ShutdownGrace time.Duration

	// WatchDebounce is the debounce duration for PID file watch events
	WatchDebounce time.Duration

	// Logger receives structured lifecycle logs
	Logger *slog.Logger

	// Messages receives the one-line operator messages
	Messages io.Writer

	// ExitFunc terminates the process; detach stages and Exit use it
	ExitFunc func(code int)

	runner  Runner
	pidFile *PIDFile

	hooksMu sync.Mutex
	hooks   []func() error

	// held while hooks execute so Exit cannot end the process mid-hook
	hooksRun sync.Mutex
}

// Option configures a Daemon
type Option func(*Daemon)

// WithPollInterval sets the delay between termination signals
func WithPollInterval(d time.Duration) Option {
	return func(dm *Daemon) {
		dm.PollInterval = d
	}
}

// WithStopTimeout bounds how long Stop waits for the process to disappear
func WithStopTimeout(d time.Duration) Option {
	return func(dm *Daemon) {
		dm.StopTimeout = d
	}
}

// WithForceKill makes Stop send SIGKILL after StopTimeout
func WithForceKill(force bool) Option {
	return func(dm *Daemon) {
		dm.ForceKill = force
	}
}

// WithStartTimeout makes Start wait for the PID file before returning to the shell
func WithStartTimeout(d time.Duration) Option {
	return func(dm *Daemon) {
		dm.StartTimeout = d
	}
}

// WithShutdownGrace sets the time the task gets to return after a termination signal
func WithShutdownGrace(d time.Duration) Option {
	return func(dm *Daemon) {
		dm.ShutdownGrace = d
	}
}

// WithWatchDebounce sets the debounce duration for watch events
func WithWatchDebounce(d time.Duration) Option {
	return func(dm *Daemon) {
		dm.WatchDebounce = d
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(dm *Daemon) {
		dm.Logger = l
	}
}

// WithMessages sets the writer for operator messages
func WithMessages(w io.Writer) Option {
	return func(dm *Daemon) {
		dm.Messages = w
	}
}

// WithExitFunc replaces os.Exit
func WithExitFunc(fn func(code int)) Option {
	return func(dm *Daemon) {
		dm.ExitFunc = fn
	}
}

// New creates a Daemon running runner once detached. A nil runner is
// accepted here and reported by Start as ErrNotImplemented.
func New(cfg Config, runner Runner, opts ...Option) (*Daemon, error) {
	if cfg.PIDFile == "" {
		return nil, &OpError{Op: OpUnknown, Err: ErrNoPIDFile}
	}

	resolved, err := cfg.withDefaults().absolute(invocationDir())
	if err != nil {
		return nil, &OpError{Op: OpUnknown, Path: cfg.PIDFile, Err: err}
	}
	cfg = resolved

	d := &Daemon{
		Config:        cfg,
		PollInterval:  DefaultPollInterval,
		ShutdownGrace: DefaultShutdownGrace,
		WatchDebounce: DefaultWatchDebounce,
		Logger:        slog.New(slog.DiscardHandler),
		Messages:      os.Stderr,
		ExitFunc:      os.Exit,
		runner:        runner,
		pidFile:       NewPIDFile(cfg.PIDFile),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.PollInterval <= 0 {
		d.PollInterval = DefaultPollInterval
	}

	return d, nil
}

// PIDFile returns the instance registry backing this daemon
func (d *Daemon) PIDFile() *PIDFile {
	return d.pidFile
}
