package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Name            string `toml:"name"`
	LogLevel        string `toml:"log_level"`
	LogFormat       string `toml:"log_format"`
	ConsoleLevel    string `toml:"console_level"`
	PollInterval    string `toml:"poll_interval"`
	LoopBackoff     string `toml:"loop_backoff"`
	MaxWorkers      int    `toml:"max_workers"`
	PhaseDelay      string `toml:"phase_delay"`
	Enabled         *bool  `toml:"enabled"`
	EnableFile      string `toml:"enable_file"`
	ListenAddr      string `toml:"listen"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.enginekit/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".enginekit", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("name", fc.Name, &cfg.Name)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("log-format", fc.LogFormat, &cfg.LogFormat)
	s.setString("console-level", fc.ConsoleLevel, &cfg.ConsoleLevel)
	s.setString("enable-file", fc.EnableFile, &cfg.EnableFile)
	s.setString("listen", fc.ListenAddr, &cfg.ListenAddr)

	if err := s.setDuration("poll-interval", fc.PollInterval, &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("loop-backoff", fc.LoopBackoff, &cfg.LoopBackoff); err != nil {
		return err
	}
	if err := s.setDuration("phase-delay", fc.PhaseDelay, &cfg.PhaseDelay); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setInt("max-workers", fc.MaxWorkers, &cfg.MaxWorkers)
	s.setBool("enabled", fc.Enabled, &cfg.Enabled)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
