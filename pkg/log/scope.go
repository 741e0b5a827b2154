package log

import "context"

// Scope names the component and operation a log line or event trigger
// originates from. Callers attach it to a context explicitly instead of the
// logger discovering it from the call stack.
type Scope struct {
	Component string
	Operation string
}

// Fields returns the scope as log fields. Empty parts are omitted.
func (s Scope) Fields() []Field {
	var out []Field
	if s.Component != "" {
		out = append(out, String("component", s.Component))
	}
	if s.Operation != "" {
		out = append(out, String("op", s.Operation))
	}
	return out
}

// IsZero reports whether neither component nor operation is set.
func (s Scope) IsZero() bool {
	return s.Component == "" && s.Operation == ""
}

type scopeKey struct{}

// WithScope returns a copy of ctx carrying scope.
func WithScope(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope stored in ctx, if any.
func ScopeFrom(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	s, ok := ctx.Value(scopeKey{}).(Scope)
	return s, ok
}

// FromContext returns logger with the scope fields of ctx bound to it.
func FromContext(ctx context.Context, logger Logger) Logger {
	s, ok := ScopeFrom(ctx)
	if !ok || s.IsZero() {
		return logger
	}
	return With(logger, s.Fields()...)
}
