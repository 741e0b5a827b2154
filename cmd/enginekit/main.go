package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/enginekit/internal/config"
	"github.com/bft-labs/enginekit/pkg/engine"
	"github.com/bft-labs/enginekit/pkg/lifecycle"
	"github.com/bft-labs/enginekit/pkg/log"
	"github.com/bft-labs/enginekit/plugins/enablefile"
	"github.com/bft-labs/enginekit/plugins/httpapi"
)

const longHelp = `Run an enginekit engine as a standalone host.

The engine schedules tasks, tracks worker liveness and moves through
Setup, Stopped, Starting, Running and Stopping as it is enabled and
disabled. Phases are simulated and take --phase-delay each.

Enable the engine with --enabled, by writing "enabled = true" to the
--enable-file, or with POST /enable on the --listen address.`

var exampleUsage = strings.TrimSpace(`
  enginekit --enabled --phase-delay 2s
  enginekit --enable-file /tmp/enabled.toml --listen 127.0.0.1:8080
  enginekit --config $HOME/.enginekit/config.toml --log-format json
`)

var errException = errors.New("engine entered exception state")

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return engine.Version
}

func main() {
	cfg := config.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "enginekit",
		Short:         "Run an enginekit engine as a standalone host",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = config.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && config.FileExists(cfgFile) {
				fc, err := config.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := config.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Environment overrides the file; flags override both.
			if err := config.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			return run(cfg)
		},
	}

	root.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.enginekit/config.toml)")
	root.Flags().StringVar(&cfg.Name, "name", cfg.Name, "engine name shown on the host console")
	root.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	root.Flags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (console, json)")
	root.Flags().StringVar(&cfg.ConsoleLevel, "console-level", cfg.ConsoleLevel, "mirror logs at or above this level to the host console (empty disables)")

	root.Flags().DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "dispatcher idle poll interval")
	root.Flags().DurationVar(&cfg.LoopBackoff, "loop-backoff", cfg.LoopBackoff, "pause after a loop iteration fails")
	root.Flags().IntVar(&cfg.MaxWorkers, "max-workers", cfg.MaxWorkers, "maximum concurrent tasks (0 = unbounded)")
	root.Flags().DurationVar(&cfg.PhaseDelay, "phase-delay", cfg.PhaseDelay, "simulated duration of each lifecycle phase")

	root.Flags().BoolVar(&cfg.Enabled, "enabled", cfg.Enabled, "enable the engine once started")
	root.Flags().StringVar(&cfg.EnableFile, "enable-file", cfg.EnableFile, "TOML file with \"enabled = true|false\" to watch")
	root.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "HTTP control address (empty disables)")
	root.Flags().DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "time allowed for a graceful shutdown")

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "enginekit: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	logger := cfg.Logger(os.Stderr)
	logger.Info("configuration", log.Any("config", cfg))

	// The commander writes through the plain logger so mirrored console
	// lines are not mirrored again.
	commander := logCommander(log.With(logger, log.String("host", "console")))

	var eng *engine.Engine
	kick := func(ctx context.Context) { eng.Kick(ctx) }

	opts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithCommander(commander),
		engine.WithPhases(simulatedPhases(logger, cfg.PhaseDelay, kick)),
	}
	if cfg.EnableFile != "" {
		opts = append(opts, enablefile.WithEnableFile(enablefile.Config{Path: cfg.EnableFile}))
	}
	if cfg.ListenAddr != "" {
		opts = append(opts, httpapi.WithHTTPControl(httpapi.Config{Addr: cfg.ListenAddr}))
	}

	eng, err := engine.New(cfg.Engine(), opts...)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	if cfg.Enabled {
		eng.NotifyEnabled(true)
	}

	exceptionCh := make(chan struct{})
	go func() {
		if eng.WaitForState(ctx, lifecycle.StateException) == nil {
			close(exceptionCh)
		}
	}()

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info("received signal, stopping", log.String("signal", sig.String()))
	case <-exceptionCh:
		logger.Error("engine entered exception state")
		runErr = errException
	}

	if err := eng.Close(cfg.ShutdownTimeout); err != nil {
		return errors.Join(runErr, fmt.Errorf("close engine: %w", err))
	}
	return runErr
}

