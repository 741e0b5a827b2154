// Package log provides a logging abstraction for enginekit components.
//
// This package defines a Logger interface that can be implemented by
// any logging library. Implementations are provided for zerolog, the host
// console (through host.Commander), and a no-op logger for testing.
//
// # Usage
//
// Use the provided zerolog adapter:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//
// Mirror warnings to the host console as well:
//
//	logger = log.Multi(logger, log.NewCommandAdapter(commander, "engine", log.WarnLevel))
//
// Or use the no-op logger for testing:
//
//	logger := log.NewNoopLogger()
//
// # Scopes
//
// Callers name where a log line comes from by attaching a Scope to the
// context they pass down:
//
//	ctx = log.WithScope(ctx, log.Scope{Component: "lifecycle", Operation: "startup"})
//	log.FromContext(ctx, logger).Info("phase complete")
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package log
