package control

import (
	"fmt"
	"runtime/debug"
)

// PanicError wraps a value recovered from a panicking body, handler or loop.
type PanicError struct {
	Value any
	Stack []byte
}

// Recovered wraps a value returned by recover, capturing the current stack.
func Recovered(v any) *PanicError {
	return &PanicError{Value: v, Stack: debug.Stack()}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the recovered value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
