// Package cli wires a daemon.Daemon into a cobra command tree.
//
// The resulting program accepts both subcommands and the bare positional
// form:
//
//	myapp --pid /run/myapp.pid start
//	myapp start --pid /run/myapp.pid
//
// Exit statuses follow daemon.ExitCode: 0 on success, 1 on operational
// failures and 2 on usage errors.
package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/axondata/go-daemon"
)

// Option configures the command built by NewCommand
type Option func(*app)

// WithConfig sets the default paths, used where neither a flag nor the
// config file names one
func WithConfig(cfg daemon.Config) Option {
	return func(a *app) {
		a.base = cfg
	}
}

// WithConfigFile sets the default TOML configuration path. An explicit
// --config flag replaces it.
func WithConfigFile(path string) Option {
	return func(a *app) {
		a.configFile = path
	}
}

// WithDaemonOptions adds options applied before the flag and file settings
func WithDaemonOptions(opts ...daemon.Option) Option {
	return func(a *app) {
		a.opts = append(a.opts, opts...)
	}
}

// app holds what the command tree needs to build a Daemon on demand
type app struct {
	runner     daemon.Runner
	base       daemon.Config
	configFile string
	opts       []daemon.Option
}

// NewCommand builds the command tree for a daemon named name running runner.
// The Daemon is constructed when a lifecycle command runs, after flags are
// parsed, so each detach stage rebuilds it from the same arguments.
func NewCommand(name string, runner daemon.Runner, opts ...Option) *cobra.Command {
	a := &app{runner: runner}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:           name + " [start|stop|restart|status]",
		Short:         "Control the " + name + " daemon",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) > 0 {
				token = args[0]
			}
			c, err := daemon.ParseCommand(token)
			if err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return err
			}
			d, err := a.build(cmd)
			if err != nil {
				return err
			}
			return d.Dispatch(cmd.Context(), c)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usage(cmd.ErrOrStderr(), err.Error())
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, flagConfig, "c", a.configFile, "TOML configuration file")
	flags.StringP(flagPID, "p", "", "PID file path")
	flags.StringP(flagStdin, "i", "", "file installed as standard input (default /dev/null)")
	flags.StringP(flagStdout, "o", "", "file standard output is appended to (default /dev/null)")
	flags.StringP(flagStderr, "e", "", "file standard error is appended to (default /dev/null)")
	flags.Duration(flagPollInterval, daemon.DefaultPollInterval, "delay between termination signals on stop")
	flags.Duration(flagStopTimeout, 0, "give up stopping after this long (0 waits forever)")
	flags.Bool(flagForce, false, "send SIGKILL once --stop-timeout has elapsed")
	flags.Duration(flagStartTimeout, 0, "wait this long for the daemon to write its PID file")
	flags.String(flagLogLevel, DefaultLogLevel, "log level (debug, info, warn, error)")

	for _, c := range daemon.Commands() {
		root.AddCommand(a.newLifecycleCommand(name, c))
	}

	return root
}

func (a *app) newLifecycleCommand(name string, c daemon.Command) *cobra.Command {
	short := map[daemon.Command]string{
		daemon.CommandStart:   "Detach and run " + name + " in the background",
		daemon.CommandStop:    "Terminate the running " + name + " instance",
		daemon.CommandRestart: "Stop the running instance, then start a new one",
		daemon.CommandStatus:  "Report the instance recorded in the PID file",
	}

	return &cobra.Command{
		Use:   c.String(),
		Short: short[c],
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := a.build(cmd)
			if err != nil {
				return err
			}
			return d.Dispatch(cmd.Context(), c)
		},
	}
}

// build merges flags, config file and defaults into a Daemon
func (a *app) build(cmd *cobra.Command) (*daemon.Daemon, error) {
	stderr := cmd.ErrOrStderr()

	var fc FileConfig
	if a.configFile != "" {
		path, err := daemon.ResolvePath(a.configFile)
		if err != nil {
			return nil, err
		}
		if fc, err = LoadFile(path); err != nil {
			return nil, err
		}
	}

	s, err := merge(cmd.Flags(), fc, a.base)
	if err != nil {
		return nil, usage(stderr, err.Error())
	}
	if s.config.PIDFile == "" {
		return nil, usage(stderr, "a PID file path is required (--pid)")
	}

	logger, err := NewLogger(stderr, s.logLevel)
	if err != nil {
		return nil, usage(stderr, err.Error())
	}

	opts := make([]daemon.Option, 0, len(a.opts)+len(s.options)+2)
	opts = append(opts, daemon.WithLogger(logger), daemon.WithMessages(stderr))
	opts = append(opts, a.opts...)
	opts = append(opts, s.options...)

	return daemon.New(s.config, a.runner, opts...)
}

// usage reports reason with the usage line and returns the matching error
func usage(w io.Writer, reason string) error {
	err := &daemon.UsageError{Reason: reason}
	fmt.Fprintln(w, err.Error())
	return err
}

// Execute runs cmd and returns the process exit status. Failures are printed
// where they happen, so Execute only reports errors nothing printed yet.
func Execute(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err != nil && !reported(err) {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
	}
	return daemon.ExitCode(err)
}

// reported matches errors whose operator message the daemon or this package
// already printed
func reported(err error) bool {
	var usageErr *daemon.UsageError
	return errors.As(err, &usageErr) || daemon.Reported(err)
}
