package hostapd

import "errors"

// Domain errors for the hostapd control interface.
var (
	// ErrProtocol is returned when the ATTACH or DETACH handshake fails:
	// connect refused, wrong reply, or no reply within the timeout.
	ErrProtocol = errors.New("hostapd: control protocol error")

	// ErrDecode is returned for an event frame that cannot be decoded.
	ErrDecode = errors.New("hostapd: malformed event frame")

	// ErrClosed is returned when using a client after Detach.
	ErrClosed = errors.New("hostapd: client closed")

	// ErrInvalidRadio is returned for a radio name that cannot form a socket path.
	ErrInvalidRadio = errors.New("hostapd: invalid radio name")
)
