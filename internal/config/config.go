package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bft-labs/enginekit/pkg/engine"
	"github.com/bft-labs/enginekit/pkg/log"
)

// Log output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Config holds CLI configuration for enginekit.
type Config struct {
	Name string

	LogLevel     string
	LogFormat    string
	ConsoleLevel string

	PollInterval time.Duration
	LoopBackoff  time.Duration
	MaxWorkers   int
	PhaseDelay   time.Duration

	Enabled    bool
	EnableFile string
	ListenAddr string

	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Name:            engine.DefaultName,
		LogLevel:        "info",
		LogFormat:       FormatConsole,
		PollInterval:    engine.DefaultPollInterval,
		LoopBackoff:     engine.DefaultLoopBackoff,
		PhaseDelay:      time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log-level: %w", err))
	}
	if c.ConsoleLevel != "" {
		if _, err := log.ParseLevel(c.ConsoleLevel); err != nil {
			errs = append(errs, fmt.Errorf("console-level: %w", err))
		}
	}
	switch c.LogFormat {
	case FormatConsole, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log-format must be %q or %q, got %q", FormatConsole, FormatJSON, c.LogFormat))
	}

	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.LoopBackoff <= 0 {
		errs = append(errs, errors.New("loop backoff must be positive"))
	}
	if c.MaxWorkers < 0 {
		errs = append(errs, errors.New("max workers must not be negative"))
	}
	if c.PhaseDelay < 0 {
		errs = append(errs, errors.New("phase delay must not be negative"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}

	return errors.Join(errs...)
}

// Engine converts the CLI configuration into an engine configuration.
// Enabled is not carried: the CLI applies it after Start.
func (c *Config) Engine() engine.Config {
	return engine.Config{
		Name:         c.Name,
		PollInterval: c.PollInterval,
		LoopBackoff:  c.LoopBackoff,
		MaxWorkers:   c.MaxWorkers,
		ConsoleLevel: c.ConsoleLevel,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

// newConfigSetter creates a new setter with the given changed flags map.
func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
