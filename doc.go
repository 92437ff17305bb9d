// Package daemon turns a long-running Go routine into a classic Unix daemon
// controlled through a PID file, without an external supervisor.
//
// The core functionality centers around the Daemon type, which wraps a Runner
// with start, stop and restart semantics:
//
//	d, err := daemon.New(daemon.Config{
//	    PIDFile: "/run/myapp.pid",
//	    Stdout:  "/var/log/myapp.log",
//	    Stderr:  "/var/log/myapp.log",
//	}, daemon.RunnerFunc(func(ctx context.Context) error {
//	    <-ctx.Done()
//	    return nil
//	}))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Detach and run; in the shell this returns exit status 0 immediately
//	err = d.Start(context.Background())
//
//	// From another invocation: SIGTERM until gone, then remove the PID file
//	err = d.Stop(context.Background())
//
// # Detaching
//
// Start performs the two-step detachment. The Go runtime cannot fork, so each
// fork is a re-execution of the current binary with the same arguments:
//
//   - the foreground process starts a copy in a new session with "/" as
//     working directory, then exits
//   - that session leader clears its umask, starts the final copy and exits,
//     so the daemon is not a session leader and cannot regain a terminal
//   - the daemon redirects fds 0, 1 and 2 to the configured files, registers
//     PID file removal as an exit hook and writes its PID
//
// Because the program is executed again, everything before Start must be
// deterministic: build the Daemon the same way on every run.
//
// # Single instance
//
// The PID file is the instance registry. Start refuses to run when it names a
// process; Stop treats a missing file as "not running" and a stale one as
// something to clean up. A flock on "<pidfile>.lock" serializes concurrent
// Start calls.
//
// # Command line
//
// The cli subpackage wires a Daemon into a cobra command accepting start,
// stop, restart and status, and maps errors to exit statuses with ExitCode.
package daemon
