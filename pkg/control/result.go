// Package control defines the outcome type shared by scheduled task bodies
// and event handlers, and the error used to report their panics.
//
// A body or handler reports whether its caller should keep going with
// [Proceed] or stop with [Halt]. Failures (a non-nil error or a panic) are
// reported separately and are never read as [Halt]: callers always fail open.
package control

// Result is the explicit outcome of a unit of work or an event handler.
type Result int

const (
	// Proceed tells the caller to continue normal processing.
	// For event handlers it means "do not veto the default handler".
	Proceed Result = iota

	// Halt tells the caller to stop. For event handlers it vetoes the
	// default handler.
	Halt
)

// String returns a human-readable representation of the result.
func (r Result) String() string {
	switch r {
	case Proceed:
		return "Proceed"
	case Halt:
		return "Halt"
	default:
		return "Unknown"
	}
}

// Continue reports whether the result asks the caller to keep going.
// Only Proceed does; unknown values do not.
func (r Result) Continue() bool {
	return r == Proceed
}
