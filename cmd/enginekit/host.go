package main

import (
	"context"
	"time"

	"github.com/bft-labs/enginekit/pkg/host"
	"github.com/bft-labs/enginekit/pkg/lifecycle"
	"github.com/bft-labs/enginekit/pkg/log"
	"github.com/bft-labs/enginekit/pkg/scheduler"
)

// kickInterval is how often simulated phases refresh their watchdog entry.
const kickInterval = 100 * time.Millisecond

// logCommander stands in for the game server: console lines are logged as
// such, other commands are logged with their arguments.
func logCommander(logger log.Logger) host.Commander {
	return host.CommanderFunc(func(name string, args ...string) {
		if name == host.CommandConsoleWrite && len(args) == 2 {
			logger.Info(args[1], log.String("source", args[0]))
			return
		}
		logger.Info("host command", log.String("command", name), log.Any("args", args))
	})
}

// simulatedPhases returns phases that each take delay, kicking the watchdog
// while they wait.
func simulatedPhases(logger log.Logger, delay time.Duration, kick func(context.Context)) lifecycle.Phases {
	phase := func(name string) lifecycle.PhaseFunc {
		return func(ctx context.Context) error {
			worker, _ := scheduler.WorkerID(ctx)
			logger.Info("phase running", log.String("phase", name), log.String("worker", worker), log.Duration("delay", delay))
			return simulateWork(ctx, delay, kick)
		}
	}
	return lifecycle.Phases{
		Setup:    phase("setup"),
		Startup:  phase("startup"),
		Shutdown: phase("shutdown"),
	}
}

// simulateWork blocks for d or until ctx is done, calling kick every
// kickInterval.
func simulateWork(ctx context.Context, d time.Duration, kick func(context.Context)) error {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	ticker := time.NewTicker(kickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
			kick(ctx)
		}
	}
}
