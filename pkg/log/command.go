package log

import (
	"fmt"
	"strings"
	"time"

	"github.com/bft-labs/enginekit/pkg/host"
)

// CommandAdapter implements Logger by writing formatted lines to the host
// console through a host.Commander.
//
// Lines look like:
//
//	[WARN] kick from untracked context component=scheduler
type CommandAdapter struct {
	commander host.Commander
	source    string
	level     Level
}

// NewCommandAdapter creates an adapter writing lines at or above level to
// the host console. source identifies the engine in the host console.
func NewCommandAdapter(commander host.Commander, source string, level Level) *CommandAdapter {
	if commander == nil {
		commander = host.NoopCommander{}
	}
	return &CommandAdapter{
		commander: commander,
		source:    source,
		level:     level,
	}
}

// Debug writes a debug line.
func (c *CommandAdapter) Debug(msg string, fields ...Field) { c.write(DebugLevel, msg, fields) }

// Info writes an info line.
func (c *CommandAdapter) Info(msg string, fields ...Field) { c.write(InfoLevel, msg, fields) }

// Warn writes a warning line.
func (c *CommandAdapter) Warn(msg string, fields ...Field) { c.write(WarnLevel, msg, fields) }

// Error writes an error line.
func (c *CommandAdapter) Error(msg string, fields ...Field) { c.write(ErrorLevel, msg, fields) }

func (c *CommandAdapter) write(level Level, msg string, fields []Field) {
	if c.level == Disabled || level < c.level {
		return
	}
	c.commander.ExecuteCommand(host.CommandConsoleWrite, c.source, FormatLine(level, msg, fields))
}

// FormatLine renders a message and its fields as a single console line.
func FormatLine(level Level, msg string, fields []Field) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(strings.ToUpper(level.String()))
	b.WriteString("] ")
	b.WriteString(msg)
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(formatValue(f.Value))
	}
	return b.String()
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		if strings.ContainsAny(t, " \t") {
			return fmt.Sprintf("%q", t)
		}
		return t
	case time.Duration:
		return t.Round(time.Millisecond).String()
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case error:
		if t == nil {
			return "<nil>"
		}
		return fmt.Sprintf("%q", t.Error())
	default:
		return fmt.Sprint(t)
	}
}
