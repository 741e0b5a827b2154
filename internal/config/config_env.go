package config

import "os"

// ApplyEnvConfig applies configuration from environment variables (ENGINEKIT_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("name", os.Getenv("ENGINEKIT_NAME"), &cfg.Name)
	s.setString("log-level", os.Getenv("ENGINEKIT_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("ENGINEKIT_LOG_FORMAT"), &cfg.LogFormat)
	s.setString("console-level", os.Getenv("ENGINEKIT_CONSOLE_LEVEL"), &cfg.ConsoleLevel)
	s.setString("enable-file", os.Getenv("ENGINEKIT_ENABLE_FILE"), &cfg.EnableFile)
	s.setString("listen", os.Getenv("ENGINEKIT_LISTEN"), &cfg.ListenAddr)

	if err := s.setDuration("poll-interval", os.Getenv("ENGINEKIT_POLL_INTERVAL"), &cfg.PollInterval); err != nil {
		return err
	}
	if err := s.setDuration("loop-backoff", os.Getenv("ENGINEKIT_LOOP_BACKOFF"), &cfg.LoopBackoff); err != nil {
		return err
	}
	if err := s.setDuration("phase-delay", os.Getenv("ENGINEKIT_PHASE_DELAY"), &cfg.PhaseDelay); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv("ENGINEKIT_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}

	if err := s.setIntFromString("max-workers", os.Getenv("ENGINEKIT_MAX_WORKERS"), &cfg.MaxWorkers); err != nil {
		return err
	}

	s.setBoolFromString("enabled", os.Getenv("ENGINEKIT_ENABLED"), &cfg.Enabled)

	return nil
}
