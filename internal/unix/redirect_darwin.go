//go:build darwin

// Package unix provides platform-specific Unix helpers.
package unix

import (
	"os"

	"golang.org/x/sys/unix"
)

// Redirect makes fd refer to the same open file as f. The previous file
// behind fd is closed atomically by the kernel.
func Redirect(f *os.File, fd int) error {
	return unix.Dup2(int(f.Fd()), fd)
}
