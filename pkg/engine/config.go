package engine

import (
	"fmt"
	"time"

	"github.com/bft-labs/enginekit/pkg/log"
	"github.com/bft-labs/enginekit/pkg/scheduler"
)

const (
	// DefaultName is used when Config.Name is empty.
	DefaultName = "enginekit"

	DefaultPollInterval = scheduler.DefaultPollInterval
	DefaultLoopBackoff  = scheduler.DefaultErrorBackoff
)

// Config holds the engine settings.
type Config struct {
	// Name identifies the engine to the host. It is the source of console
	// lines and the target of enable requests.
	Name string

	// PollInterval bounds how long the dispatcher idles between wake signals.
	// Default: 30 seconds
	PollInterval time.Duration

	// LoopBackoff is the pause after a long-running loop fails.
	// Default: 10 seconds
	LoopBackoff time.Duration

	// MaxWorkers caps concurrently running tasks. Zero means unbounded.
	MaxWorkers int

	// InitialEnabled is the desired state before the host sends a signal.
	InitialEnabled bool

	// ConsoleLevel mirrors log lines at or above this level to the host
	// console. Empty disables mirroring.
	ConsoleLevel string
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = DefaultName
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LoopBackoff == 0 {
		c.LoopBackoff = DefaultLoopBackoff
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if c.LoopBackoff <= 0 {
		return fmt.Errorf("%w: loop backoff must be positive", ErrInvalidConfig)
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("%w: max workers must not be negative", ErrInvalidConfig)
	}
	if c.ConsoleLevel != "" {
		if _, err := log.ParseLevel(c.ConsoleLevel); err != nil {
			return fmt.Errorf("%w: console level: %v", ErrInvalidConfig, err)
		}
	}
	return nil
}
