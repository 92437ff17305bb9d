package unix

import (
	"fmt"
	"os"
	"strings"
)

// Zombie reports whether pid has exited but not been reaped. Such a process
// still accepts signals, so it has to be detected through /proc.
func Zombie(pid int) bool {
	contents, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}

	// The command name is parenthesized and may itself contain spaces or
	// parentheses; the state follows the last closing one.
	s := string(contents)
	i := strings.LastIndexByte(s, ')')
	if i < 0 || i+2 >= len(s) {
		return false
	}
	return s[i+2] == 'Z'
}
