package daemon

import (
	"fmt"
	"time"
)

// State is the lifecycle state derived from the PID file and the process table
type State int

const (
	// StateUnknown indicates the state could not be determined
	StateUnknown State = iota
	// StateStopped indicates there is no PID file
	StateStopped
	// StateRunning indicates the PID file names a live process
	StateRunning
	// StateStale indicates the PID file names a process that no longer exists
	StateStale
)

// State string constants
const (
	stateUnknownStr = "unknown"
	stateStoppedStr = "stopped"
	stateRunningStr = "running"
	stateStaleStr   = "stale"
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateStopped:
		return stateStoppedStr
	case StateRunning:
		return stateRunningStr
	case StateStale:
		return stateStaleStr
	default:
		return stateUnknownStr
	}
}

// Status describes the instance recorded at a PID file path
type Status struct {
	// State is the inferred lifecycle state
	State State
	// PID is the recorded process ID (0 when stopped)
	PID int
	// Path is the PID file path
	Path string
	// Since is the PID file modification time, zero when stopped
	Since time.Time
}

// String formats the status the way the status command prints it
func (s Status) String() string {
	if s.PID > 0 {
		return fmt.Sprintf("%s (pid %d)", s.State, s.PID)
	}
	return s.State.String()
}
