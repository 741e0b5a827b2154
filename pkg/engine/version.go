package engine

import (
	"github.com/bft-labs/enginekit/pkg/events"
	"github.com/bft-labs/enginekit/pkg/lifecycle"
	"github.com/bft-labs/enginekit/pkg/log"
	"github.com/bft-labs/enginekit/pkg/metrics"
	"github.com/bft-labs/enginekit/pkg/scheduler"
	"github.com/bft-labs/enginekit/pkg/watchdog"
)

// Version is the version of the engine composition.
const Version = "1.0.0"

// ModuleVersions returns the version of every sub-module.
func ModuleVersions() map[string]string {
	return map[string]string{
		"engine":    Version,
		"log":       log.Version,
		"lifecycle": lifecycle.Version,
		"scheduler": scheduler.Version,
		"watchdog":  watchdog.Version,
		"events":    events.Version,
		"metrics":   metrics.Version,
	}
}
