package daemon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"
)

// LockSuffix is appended to the PID file path to name the start lock
const LockSuffix = ".lock"

// PIDFile reads, writes and removes the file recording the running instance.
// The file holds a single decimal PID followed by a newline.
type PIDFile struct {
	path string
}

// NewPIDFile returns a PIDFile for path
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{path: path}
}

// Path returns the PID file path
func (p *PIDFile) Path() string {
	return p.path
}

// Read returns the recorded PID. Missing, unreadable and malformed files all
// report false so a damaged PID file never crashes a caller.
func (p *PIDFile) Read() (int, bool) {
	pid, err := p.ReadPID()
	if err != nil {
		return 0, false
	}
	return pid, true
}

// ReadPID returns the recorded PID or the reason it could not be read.
// A missing file yields an error matching fs.ErrNotExist; bad content yields
// ErrInvalidPID.
func (p *PIDFile) ReadPID() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}

	s := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPID, s)
	}
	if pid <= 0 {
		return 0, fmt.Errorf("%w: must be positive, got %d", ErrInvalidPID, pid)
	}
	return pid, nil
}

// Write atomically creates or replaces the PID file with pid
func (p *PIDFile) Write(pid int) error {
	if pid <= 0 {
		return &OpError{Op: OpWrite, Path: p.path, Err: fmt.Errorf("%w: %d", ErrInvalidPID, pid)}
	}
	if err := os.MkdirAll(filepath.Dir(p.path), DirMode); err != nil {
		return &OpError{Op: OpWrite, Path: p.path, Err: err}
	}
	if err := renameio.WriteFile(p.path, []byte(strconv.Itoa(pid)+"\n"), FileMode); err != nil {
		return &OpError{Op: OpWrite, Path: p.path, Err: err}
	}
	return nil
}

// Remove deletes the PID file. A missing file is not an error.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &OpError{Op: OpRemove, Path: p.path, Err: err}
	}
	return nil
}

// Exists reports whether the PID file is present
func (p *PIDFile) Exists() bool {
	_, err := os.Stat(p.path)
	return err == nil
}

// Lock takes the non-blocking start lock next to the PID file. It returns
// ErrAlreadyRunning when another invoker holds it.
func (p *PIDFile) Lock() (unlock func() error, err error) {
	lockPath := p.path + LockSuffix
	if err := os.MkdirAll(filepath.Dir(lockPath), DirMode); err != nil {
		return nil, &OpError{Op: OpLock, Path: lockPath, Err: err}
	}

	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, &OpError{Op: OpLock, Path: lockPath, Err: err}
	}
	if !ok {
		return nil, &OpError{Op: OpLock, Path: lockPath, Err: ErrAlreadyRunning}
	}
	return fl.Unlock, nil
}
