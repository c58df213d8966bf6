package poller

import "errors"

var (
	// ErrInterrupted is returned by Wait after Interrupt was called.
	ErrInterrupted = errors.New("poller: wait interrupted")

	// ErrResourceGone classifies a descriptor that reported hang-up or error,
	// or whose read failed. The owner tears down that one resource.
	ErrResourceGone = errors.New("poller: resource gone")

	// ErrDuplicate is returned when adding a descriptor that is already registered.
	ErrDuplicate = errors.New("poller: descriptor already registered")

	// ErrClosed is returned when using a poller after Close.
	ErrClosed = errors.New("poller: closed")
)
