package config

import (
	"io"

	"github.com/bft-labs/enginekit/pkg/log"
)

// Logger builds the process logger described by the configuration.
// Call after Validate.
func (c *Config) Logger(out io.Writer) *log.ZerologAdapter {
	level, _ := log.ParseLevel(c.LogLevel)
	return log.NewZerologAdapterWithOptions(log.ZerologOptions{
		Out:   out,
		JSON:  c.LogFormat == FormatJSON,
		Level: level,
	})
}
