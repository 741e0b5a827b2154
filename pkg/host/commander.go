// Package host defines the boundary between the engine core and the process
// that embeds it.
//
// The host exposes a single fire-and-forget primitive, ExecuteCommand, which
// the engine uses to write console lines and to request its own
// enable/disable state. No response is awaited.
package host

import "sync"

// Host command names used by the engine.
const (
	// CommandConsoleWrite writes a line to the host's plugin console.
	// Args: source, message.
	CommandConsoleWrite = "console.write"

	// CommandChatWrite writes a line to the host's chat channel.
	// Args: source, message.
	CommandChatWrite = "chat.write"

	// CommandPluginEnable asks the host to enable or disable the engine.
	// Args: engine name, "True" or "False".
	CommandPluginEnable = "plugin.enable"
)

// Commander sends fire-and-forget commands to the host environment.
// Implementations must be safe for concurrent use.
type Commander interface {
	ExecuteCommand(name string, args ...string)
}

// CommanderFunc adapts a function to the Commander interface.
type CommanderFunc func(name string, args ...string)

// ExecuteCommand calls f(name, args...).
func (f CommanderFunc) ExecuteCommand(name string, args ...string) {
	f(name, args...)
}

// NoopCommander discards every command.
type NoopCommander struct{}

// ExecuteCommand discards the command.
func (NoopCommander) ExecuteCommand(name string, args ...string) {}

// Command is a recorded host command.
type Command struct {
	Name string
	Args []string
}

// Recorder is a Commander that keeps every command it receives.
// It is intended for tests and for hosts that drain commands in batches.
type Recorder struct {
	mu       sync.Mutex
	commands []Command
}

// ExecuteCommand records the command.
func (r *Recorder) ExecuteCommand(name string, args ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, Command{Name: name, Args: append([]string(nil), args...)})
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.commands...)
}

// Named returns the recorded commands with the given name.
func (r *Recorder) Named(name string) []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Command
	for _, c := range r.commands {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}
