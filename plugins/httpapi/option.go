package httpapi

import "github.com/bft-labs/enginekit/pkg/engine"

// WithHTTPControl returns an engine Option that serves the control routes
// on cfg.Addr.
//
// Usage:
//
//	eng, err := engine.New(cfg,
//	    httpapi.WithHTTPControl(httpapi.Config{Addr: "127.0.0.1:8080"}),
//	)
func WithHTTPControl(cfg Config) engine.Option {
	return engine.WithPlugin(New(cfg))
}
