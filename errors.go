package daemon

import (
	"errors"
	"fmt"
)

// Common errors returned by daemon operations
var (
	// ErrAlreadyRunning indicates the PID file already names an instance
	ErrAlreadyRunning = errors.New("daemon: already running")

	// ErrNotImplemented indicates Start was called without a task routine
	ErrNotImplemented = errors.New("daemon: run is not implemented")

	// ErrNoPIDFile indicates the configuration lacks a PID file path
	ErrNoPIDFile = errors.New("daemon: pid file path is required")

	// ErrInvalidPID indicates the PID file content is not a positive integer
	ErrInvalidPID = errors.New("daemon: invalid pid")

	// ErrStopTimeout indicates the target process outlived StopTimeout
	ErrStopTimeout = errors.New("daemon: stop timeout")

	// ErrStartTimeout indicates the daemon did not write its PID file within StartTimeout
	ErrStartTimeout = errors.New("daemon: start timeout")

	// ErrSelfSignal indicates the PID file names the calling process
	ErrSelfSignal = errors.New("daemon: refusing to signal own process")

	// ErrUnsupported indicates the platform has no POSIX process model
	ErrUnsupported = errors.New("daemon: detaching is not supported on this platform")
)

// OpError represents an error from a daemon operation
type OpError struct {
	// Op is the operation that failed
	Op Operation
	// Path is the file path involved in the operation
	Path string
	// PID is the target process, if any
	PID int
	// Err is the underlying error
	Err error

	reported bool
}

// Error returns a formatted error message
func (e *OpError) Error() string {
	switch {
	case e.PID > 0 && e.Path != "":
		return fmt.Sprintf("daemon %s %q (pid %d): %v", e.Op.String(), e.Path, e.PID, e.Err)
	case e.PID > 0:
		return fmt.Sprintf("daemon %s (pid %d): %v", e.Op.String(), e.PID, e.Err)
	case e.Path != "":
		return fmt.Sprintf("daemon %s %q: %v", e.Op.String(), e.Path, e.Err)
	default:
		return fmt.Sprintf("daemon %s: %v", e.Op.String(), e.Err)
	}
}

// Unwrap returns the underlying error for error chain inspection
func (e *OpError) Unwrap() error {
	return e.Err
}

// Reported reports whether the operator message for err was already written
// to the daemon's Messages stream
func Reported(err error) bool {
	var opErr *OpError
	for errors.As(err, &opErr) {
		if opErr.reported {
			return true
		}
		err = opErr.Err
	}
	return false
}

// UsageError reports a command line that cannot be acted on
type UsageError struct {
	// Token is the rejected command token
	Token string
	// Reason overrides the default message when set
	Reason string
}

// Error returns the problem followed by the usage text
func (e *UsageError) Error() string {
	switch {
	case e.Reason != "":
		return e.Reason + "\n" + Usage()
	case e.Token == "":
		return "missing command\n" + Usage()
	default:
		return fmt.Sprintf("unknown command %q\n%s", e.Token, Usage())
	}
}

// MultiError aggregates errors from exit hooks
type MultiError struct {
	// Errors contains all accumulated errors
	Errors []error
}

// Error returns a summary of the accumulated errors
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}
	return fmt.Sprintf("%d errors occurred: %v", len(m.Errors), m.Errors[0])
}

// Unwrap exposes the accumulated errors to errors.Is and errors.As
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// Add appends an error to the collection if it's not nil
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Err returns nil if no errors occurred, otherwise returns the MultiError itself
func (m *MultiError) Err() error {
	if len(m.Errors) == 0 {
		return nil
	}
	return m
}

// ExitCode maps an error returned by this package to a process exit status:
// 0 for nil, 2 for usage errors and 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var usage *UsageError
	if errors.As(err, &usage) {
		return ExitUsage
	}
	return ExitFailure
}
