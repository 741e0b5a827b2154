// Package httpapi exposes an engine over HTTP: status, enable and disable,
// event triggers, and a Prometheus scrape endpoint.
//
// Routes:
//
//	GET  /health
//	GET  /status
//	POST /enable[?via=host]
//	POST /disable[?via=host]
//	GET  /events
//	POST /events/{key}   body: {"args": [...]}
//	GET  /metrics
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/bft-labs/enginekit/pkg/engine"
	"github.com/bft-labs/enginekit/pkg/log"
)

// Config holds configuration options for the HTTP control plugin.
type Config struct {
	// Addr is the listen address, e.g. "127.0.0.1:8080". Empty disables
	// the plugin.
	Addr string

	// ReadTimeout bounds reading a request.
	// Default: 10 seconds
	ReadTimeout time.Duration

	// WriteTimeout bounds writing a response.
	// Default: 10 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// Plugin serves the control routes while the engine runs.
type Plugin struct {
	cfg Config

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	logger   log.Logger
	wg       sync.WaitGroup
}

// New creates a new HTTP control plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	return &Plugin{cfg: cfg, logger: log.NewNoopLogger()}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "httpapi"
}

// Initialize binds the listener and starts serving. A bind failure is
// returned so the engine does not start half configured.
func (p *Plugin) Initialize(ctx context.Context, h engine.Host) error {
	logger := log.With(h.Logger(), log.String("plugin", p.Name()))

	if p.cfg.Addr == "" {
		logger.Warn("http control disabled: no listen address configured")
		return nil
	}

	ln, err := net.Listen("tcp", p.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", p.cfg.Addr, err)
	}

	srv := &http.Server{
		Handler:      NewRouter(h),
		ReadTimeout:  p.cfg.ReadTimeout,
		WriteTimeout: p.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	p.mu.Lock()
	p.srv = srv
	p.listener = ln
	p.logger = logger
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http control server failed", log.Err(err))
		}
	}()

	logger.Info("http control listening", log.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Initialize.
func (p *Plugin) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Shutdown stops the server, waiting for in-flight requests until ctx is done.
func (p *Plugin) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	srv := p.srv
	p.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	p.wg.Wait()
	return err
}

// Ensure Plugin implements engine.Plugin.
var _ engine.Plugin = (*Plugin)(nil)
