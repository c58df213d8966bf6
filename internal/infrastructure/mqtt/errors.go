package mqtt

import "errors"

var (
	// ErrNotConnected means the broker link is down. Retained presence and
	// radio state published meanwhile is still sent after the next reconnect.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed wraps the cause of a failed initial Connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps encoding, size, timeout and broker failures.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS rejects a QoS above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects an empty topic, dev_id or radio name.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
