package daemon

import "strings"

// Operation identifies the step that produced an OpError
type Operation int

const (
	// OpUnknown represents an unknown operation
	OpUnknown Operation = iota
	// OpFork is the re-execution that replaces fork(2)
	OpFork
	// OpRedirect installs the standard stream redirections
	OpRedirect
	// OpStart is the start lifecycle operation
	OpStart
	// OpStop is the stop lifecycle operation
	OpStop
	// OpStatus reads the PID file and probes the process
	OpStatus
	// OpSignal delivers a signal to the daemon process
	OpSignal
	// OpWrite writes the PID file
	OpWrite
	// OpRemove deletes the PID file
	OpRemove
	// OpLock takes the start lock
	OpLock
	// OpWatch watches the PID file
	OpWatch
	// OpRun executes the task routine
	OpRun
)

// Operation string constants
const (
	opUnknownStr  = "unknown"
	opForkStr     = "fork"
	opRedirectStr = "redirect"
	opStartStr    = "start"
	opStopStr     = "stop"
	opStatusStr   = "status"
	opSignalStr   = "signal"
	opWriteStr    = "write"
	opRemoveStr   = "remove"
	opLockStr     = "lock"
	opWatchStr    = "watch"
	opRunStr      = "run"
)

// String returns the string representation of the operation
func (op Operation) String() string {
	switch op {
	case OpFork:
		return opForkStr
	case OpRedirect:
		return opRedirectStr
	case OpStart:
		return opStartStr
	case OpStop:
		return opStopStr
	case OpStatus:
		return opStatusStr
	case OpSignal:
		return opSignalStr
	case OpWrite:
		return opWriteStr
	case OpRemove:
		return opRemoveStr
	case OpLock:
		return opLockStr
	case OpWatch:
		return opWatchStr
	case OpRun:
		return opRunStr
	default:
		return opUnknownStr
	}
}

// Command is a lifecycle command accepted by Dispatch
type Command int

const (
	// CommandUnknown is the zero value and never dispatched
	CommandUnknown Command = iota
	// CommandStart starts the daemon
	CommandStart
	// CommandStop stops the daemon
	CommandStop
	// CommandRestart stops then starts the daemon
	CommandRestart
	// CommandStatus reports whether the daemon is running
	CommandStatus
)

// Commands lists the dispatchable commands in usage order
func Commands() []Command {
	return []Command{CommandStart, CommandStop, CommandRestart, CommandStatus}
}

// String returns the command token
func (c Command) String() string {
	switch c {
	case CommandStart:
		return opStartStr
	case CommandStop:
		return opStopStr
	case CommandRestart:
		return "restart"
	case CommandStatus:
		return opStatusStr
	default:
		return opUnknownStr
	}
}

// ParseCommand maps a command token to a Command. Unknown tokens yield a
// *UsageError.
func ParseCommand(token string) (Command, error) {
	for _, c := range Commands() {
		if token == c.String() {
			return c, nil
		}
	}
	return CommandUnknown, &UsageError{Token: token}
}

// Usage returns the one-line usage text listing every command
func Usage() string {
	tokens := make([]string, 0, len(Commands()))
	for _, c := range Commands() {
		tokens = append(tokens, c.String())
	}
	return "usage: { " + strings.Join(tokens, " | ") + " }"
}
