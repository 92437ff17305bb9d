package daemon

// WatchEvent represents a status change observed on the PID file
type WatchEvent struct {
	Status Status
	Err    error
}

// WatchCleanupFunc stops a watch and releases its resources
type WatchCleanupFunc func() error
