package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// FuzzReadPID feeds arbitrary PID file contents to the reader to ensure it
// never panics and only accepts positive integers
func FuzzReadPID(f *testing.F) {
	f.Add([]byte("1234\n"))
	f.Add([]byte("1\n"))
	f.Add([]byte(" 42 \n\n"))
	f.Add([]byte(""))
	f.Add([]byte("\n"))
	f.Add([]byte("-1\n"))
	f.Add([]byte("0\n"))
	f.Add([]byte("99999999999999999999999\n"))
	f.Add([]byte("12abc\n"))
	f.Add([]byte{0xff, 0xfe, 0x00})

	dir := f.TempDir()

	f.Fuzz(func(t *testing.T, data []byte) {
		path := filepath.Join(dir, "fuzz.pid")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatal(err)
		}

		p := NewPIDFile(path)
		pid, err := p.ReadPID()
		if err != nil {
			if !errors.Is(err, ErrInvalidPID) {
				t.Errorf("ReadPID() error = %v, want ErrInvalidPID", err)
			}
			if got, ok := p.Read(); ok || got != 0 {
				t.Errorf("Read() = %d, %v after ReadPID failure", got, ok)
			}
			return
		}

		if pid <= 0 {
			t.Errorf("accepted non-positive pid %d", pid)
		}
		if strconv.Itoa(pid) != strings.TrimLeft(strings.TrimSpace(string(data)), "+0") {
			t.Errorf("pid %d does not match content %q", pid, data)
		}
	})
}

// FuzzParseCommand ensures only the documented tokens are accepted
func FuzzParseCommand(f *testing.F) {
	for _, c := range Commands() {
		f.Add(c.String())
	}
	f.Add("")
	f.Add("foo")
	f.Add("Start")
	f.Add("start ")

	f.Fuzz(func(t *testing.T, token string) {
		c, err := ParseCommand(token)
		if err != nil {
			var usage *UsageError
			if !errors.As(err, &usage) || c != CommandUnknown {
				t.Errorf("ParseCommand(%q) = %v, %v", token, c, err)
			}
			if ExitCode(err) != ExitUsage {
				t.Errorf("ExitCode() = %d, want %d", ExitCode(err), ExitUsage)
			}
			return
		}
		if c.String() != token {
			t.Errorf("ParseCommand(%q) = %v", token, c)
		}
	})
}
