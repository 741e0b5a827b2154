package enablefile

import "github.com/bft-labs/enginekit/pkg/engine"

// WithEnableFile returns an engine Option that drives the enable signal
// from the file at cfg.Path.
//
// Usage:
//
//	eng, err := engine.New(cfg,
//	    enablefile.WithEnableFile(enablefile.Config{
//	        Path:          "/etc/enginekit/enabled.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithEnableFile(cfg Config) engine.Option {
	return engine.WithPlugin(New(cfg))
}
