//go:build linux

// Package unix provides platform-specific Unix helpers.
package unix

import (
	"os"

	"golang.org/x/sys/unix"
)

// Redirect makes fd refer to the same open file as f. The previous file
// behind fd is closed atomically by the kernel.
func Redirect(f *os.File, fd int) error {
	// dup2 is missing on linux/arm64 and linux/riscv64; dup3 with no flags is equivalent
	return unix.Dup3(int(f.Fd()), fd, 0)
}
