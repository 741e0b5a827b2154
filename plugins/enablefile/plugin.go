// Package enablefile drives the engine's enable signal from a TOML file.
// The file holds a single key:
//
//	enabled = true
//
// The plugin reads it at startup and again whenever it is written, and
// passes the value to the engine with NotifyEnabled.
package enablefile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/enginekit/internal/backoff"
	"github.com/bft-labs/enginekit/pkg/engine"
	"github.com/bft-labs/enginekit/pkg/log"
)

// maxRetryInterval caps the delay between watcher setup attempts.
const maxRetryInterval = 30 * time.Second

// ErrNoEnabledKey is returned by ReadState when the file lacks the enabled key.
var ErrNoEnabledKey = errors.New("enablefile: enabled key missing")

// State is the content of the enable file.
type State struct {
	Enabled *bool `toml:"enabled"`
}

// Config holds configuration options for the enable file plugin.
type Config struct {
	// Path is the enable file. Empty disables the plugin.
	Path string

	// DebounceDelay is the delay to wait after a file change before reading it.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// RetryInterval is the first delay before retrying watcher setup, for
	// example while the directory does not exist yet. It doubles up to 30s.
	// Default: 1 second
	RetryInterval time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay: 100 * time.Millisecond,
		RetryInterval: time.Second,
	}
}

// Plugin watches the enable file.
type Plugin struct {
	mu sync.Mutex

	path          string
	debounceDelay time.Duration
	retryInterval time.Duration

	host     engine.Host
	logger   log.Logger
	last     *bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// New creates a new enable file plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
		retryInterval: cfg.RetryInterval,
		logger:        log.NewNoopLogger(),
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "enablefile"
}

// Initialize applies the current file content and starts the watcher.
func (p *Plugin) Initialize(ctx context.Context, h engine.Host) error {
	p.mu.Lock()
	p.host = h
	p.logger = log.With(h.Logger(), log.String("plugin", p.Name()), log.String("path", p.path))
	p.mu.Unlock()

	if p.path == "" {
		p.logger.Warn("enable file watcher disabled: no path configured")
		return nil
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("enable file watcher initialized")

	p.wg.Add(1)
	go p.watchLoop(watchCtx)

	return nil
}

// Shutdown stops the watcher and any pending read.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

// watchLoop watches the directory holding the enable file. Editors often
// replace files instead of writing them in place, so the file itself is not
// watched. Watcher setup is retried until it succeeds or ctx is done.
func (p *Plugin) watchLoop(ctx context.Context) {
	defer p.wg.Done()

	bo := backoff.New(p.retryInterval, maxRetryInterval)
	var watcher *fsnotify.Watcher
	for {
		var err error
		watcher, err = p.newWatcher()
		if err == nil {
			break
		}
		p.logger.Error("enable file watcher: setup failed", log.Err(err), log.Duration("retry_in", bo.Current()))
		if bo.Sleep(ctx) != nil {
			return
		}
	}
	defer watcher.Close()

	p.apply(ctx)

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p.debounceApply(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("enable file watcher: watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) newWatcher() (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(p.path), err)
	}
	return watcher, nil
}

func (p *Plugin) debounceApply(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		p.apply(ctx)
	})
}

// apply reads the file and forwards its value to the host.
func (p *Plugin) apply(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	enabled, err := ReadState(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			p.logger.Debug("enable file not present")
			return
		}
		p.logger.Warn("enable file unreadable", log.Err(err))
		return
	}

	p.mu.Lock()
	changed := p.last == nil || *p.last != enabled
	p.last = &enabled
	host := p.host
	p.mu.Unlock()

	if changed {
		p.logger.Info("enable file changed", log.Bool("enabled", enabled))
	}
	host.NotifyEnabled(enabled)
}

// ReadState reads the enabled value from path.
func ReadState(path string) (bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	var st State
	if err := toml.Unmarshal(b, &st); err != nil {
		return false, fmt.Errorf("parse %s: %w", path, err)
	}
	if st.Enabled == nil {
		return false, ErrNoEnabledKey
	}
	return *st.Enabled, nil
}

// WriteState writes the enabled value to path.
func WriteState(path string, enabled bool) error {
	b, err := toml.Marshal(State{Enabled: &enabled})
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Ensure Plugin implements engine.Plugin.
var _ engine.Plugin = (*Plugin)(nil)
