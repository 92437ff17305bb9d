package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"

	"github.com/axondata/go-daemon"
)

// Flag names shared by the command tree and the config file merge
const (
	flagConfig       = "config"
	flagPID          = "pid"
	flagStdin        = "stdin"
	flagStdout       = "stdout"
	flagStderr       = "stderr"
	flagPollInterval = "poll-interval"
	flagStopTimeout  = "stop-timeout"
	flagForce        = "force"
	flagStartTimeout = "start-timeout"
	flagLogLevel     = "log-level"
)

// DefaultLogLevel keeps successful commands quiet on the terminal
const DefaultLogLevel = "warn"

// FileConfig is the layout of the optional TOML configuration file. Durations
// use time.ParseDuration syntax ("250ms", "10s").
//
//	pid_file = "/run/myapp.pid"
//	stdout = "/var/log/myapp.log"
//	stderr = "/var/log/myapp.log"
//	stop_timeout = "10s"
//	force_kill = true
type FileConfig struct {
	PIDFile      string `toml:"pid_file"`
	Stdin        string `toml:"stdin"`
	Stdout       string `toml:"stdout"`
	Stderr       string `toml:"stderr"`
	PollInterval string `toml:"poll_interval"`
	StopTimeout  string `toml:"stop_timeout"`
	StartTimeout string `toml:"start_timeout"`
	ForceKill    bool   `toml:"force_kill"`
	LogLevel     string `toml:"log_level"`
}

// LoadFile parses the TOML configuration at path. Unknown keys are rejected.
func LoadFile(path string) (FileConfig, error) {
	var fc FileConfig

	file, err := os.Open(path)
	if err != nil {
		return fc, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// settings is the merged view of flags, config file and programmatic defaults
type settings struct {
	config   daemon.Config
	options  []daemon.Option
	logLevel string
}

// merge resolves every setting: a flag the user set wins over the config
// file, which wins over base. Tunables neither source sets produce no option,
// leaving the programmatic defaults in place.
func merge(fs *pflag.FlagSet, fc FileConfig, base daemon.Config) (settings, error) {
	s := settings{config: base, logLevel: DefaultLogLevel}

	paths := []struct {
		flag string
		file string
		dst  *string
	}{
		{flagPID, fc.PIDFile, &s.config.PIDFile},
		{flagStdin, fc.Stdin, &s.config.Stdin},
		{flagStdout, fc.Stdout, &s.config.Stdout},
		{flagStderr, fc.Stderr, &s.config.Stderr},
		{flagLogLevel, fc.LogLevel, &s.logLevel},
	}
	for _, p := range paths {
		v, ok, err := stringSetting(fs, p.flag, p.file)
		if err != nil {
			return s, err
		}
		if ok {
			*p.dst = v
		}
	}

	durations := []struct {
		flag string
		file string
		opt  func(time.Duration) daemon.Option
	}{
		{flagPollInterval, fc.PollInterval, daemon.WithPollInterval},
		{flagStopTimeout, fc.StopTimeout, daemon.WithStopTimeout},
		{flagStartTimeout, fc.StartTimeout, daemon.WithStartTimeout},
	}
	for _, d := range durations {
		v, ok, err := durationSetting(fs, d.flag, d.file)
		if err != nil {
			return s, err
		}
		if ok {
			s.options = append(s.options, d.opt(v))
		}
	}

	switch {
	case fs.Changed(flagForce):
		force, err := fs.GetBool(flagForce)
		if err != nil {
			return s, err
		}
		s.options = append(s.options, daemon.WithForceKill(force))
	case fc.ForceKill:
		s.options = append(s.options, daemon.WithForceKill(true))
	}

	return s, nil
}

func stringSetting(fs *pflag.FlagSet, name, fileVal string) (string, bool, error) {
	if fs.Changed(name) {
		v, err := fs.GetString(name)
		return v, err == nil, err
	}
	if fileVal != "" {
		return fileVal, true, nil
	}
	return "", false, nil
}

func durationSetting(fs *pflag.FlagSet, name, fileVal string) (time.Duration, bool, error) {
	if fs.Changed(name) {
		v, err := fs.GetDuration(name)
		return v, err == nil, err
	}
	if fileVal == "" {
		return 0, false, nil
	}
	v, err := time.ParseDuration(fileVal)
	if err != nil {
		return 0, false, fmt.Errorf("config %s: %w", name, err)
	}
	return v, true, nil
}
