package process

import "errors"

var (
	// ErrTimeout is returned when a helper does not exit within its timeout.
	ErrTimeout = errors.New("process: helper timed out")

	// ErrExited is returned when a helper exits with a non-zero status.
	ErrExited = errors.New("process: helper exited with error")

	// ErrMalformedOutput is returned when helper output cannot be parsed.
	ErrMalformedOutput = errors.New("process: malformed helper output")
)
