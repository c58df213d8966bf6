package monitor

import "errors"

var (
	// ErrNotSetup is returned by Run before Setup succeeded.
	ErrNotSetup = errors.New("monitor: not set up")

	// ErrDiscoveryLost is returned by Run when the watcher's descriptor
	// reports hang-up. Without it no radio can ever be found again.
	ErrDiscoveryLost = errors.New("monitor: discovery source lost")
)
