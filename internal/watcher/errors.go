package watcher

import "errors"

var (
	// ErrDecode is returned for a change-record buffer that ends mid-record.
	ErrDecode = errors.New("watcher: malformed change record")

	// ErrNotSetup is returned when reading before Setup succeeded.
	ErrNotSetup = errors.New("watcher: not set up")
)
