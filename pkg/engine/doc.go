// Package engine assembles a plugin-style worker engine for embedding in a
// host process.
//
// The engine owns a task scheduler, a watchdog registry, a lifecycle
// controller and an event bus, wired together explicitly. The host turns
// the engine on and off with NotifyEnabled; the engine answers by running
// the configured setup, startup and shutdown phases on scheduler workers.
//
// # Basic Usage
//
//	eng, err := engine.New(engine.Config{Name: "AdKats"},
//	    engine.WithLogger(logger),
//	    engine.WithCommander(hostCommander),
//	    engine.WithPhases(lifecycle.Phases{Startup: start, Shutdown: stop}),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := eng.Start(ctx); err != nil {
//	    return err
//	}
//	eng.NotifyEnabled(true)
//
//	// ... run until the host unloads the plugin ...
//
//	if err := eng.Close(30 * time.Second); err != nil {
//	    logger.Warn("shutdown error", log.Err(err))
//	}
//
// # Events
//
// Every lifecycle transition triggers [EventStateChanged] with a
// [StateChange] argument. Subscribers returning control.Halt suppress the
// default console announcement.
//
// # Plugins
//
// Plugins receive a [Host] on Initialize and are shut down in reverse order
// by Close. See plugins/enablefile and plugins/control.
//
// # Version
//
// Use [ModuleVersions] to get versions of all sub-modules. New refuses to
// build an engine whose sub-modules are below their minimum compatible
// versions.
package engine
