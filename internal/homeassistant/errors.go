package homeassistant

import "errors"

var (
	// ErrRequestFailed is returned when Home Assistant answers with a non-2xx status.
	ErrRequestFailed = errors.New("homeassistant: request failed")

	// ErrUnreachable is returned when the request could not be sent or no
	// response arrived.
	ErrUnreachable = errors.New("homeassistant: unreachable")
)
