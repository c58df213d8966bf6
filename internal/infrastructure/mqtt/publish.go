package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Presence states, matching Home Assistant's device_tracker vocabulary.
const (
	StateHome    = "home"
	StateNotHome = "not_home"
)

// Radio states published on hapt/radio/<radio>/status.
const (
	RadioAttached = "attached"
	RadioDetached = "detached"
)

// PresenceMessage is the retained payload on hapt/presence/<dev_id>.
type PresenceMessage struct {
	MAC          string    `json:"mac"`
	DeviceID     string    `json:"dev_id"`
	HostName     string    `json:"host_name,omitempty"`
	State        string    `json:"state"`
	ConsiderHome int       `json:"consider_home"`
	Radio        string    `json:"radio,omitempty"`
	Session      string    `json:"session,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// radioMessage is the retained payload on hapt/radio/<radio>/status.
type radioMessage struct {
	Radio     string    `json:"radio"`
	Status    string    `json:"status"`
	Session   string    `json:"session,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publish sends a message to the specified MQTT topic.
//
// Parameters:
//   - topic: The topic to publish to (e.g., "hapt/presence/laptop")
//   - payload: The message payload (typically JSON, max 1MB)
//   - qos: Quality of Service level (0, 1, or 2)
//   - retained: Whether the broker should retain the message for new subscribers
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// PublishRetained publishes a retained message with the configured QoS.
//
// The payload becomes the topic's remembered state even when the broker is
// unreachable, so it is replayed on reconnect; the ErrNotConnected returned
// meanwhile only reports that delivery is deferred.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	c.remember(topic, payload)
	return c.Publish(topic, payload, c.qos(), true)
}

// PublishPresence publishes a device's presence state, retained.
// Session and Timestamp are filled in when unset.
func (c *Client) PublishPresence(msg PresenceMessage) error {
	if msg.DeviceID == "" {
		return ErrInvalidTopic
	}
	if msg.Session == "" {
		msg.Session = c.session
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: encoding presence: %w", ErrPublishFailed, err)
	}
	return c.PublishRetained(Topics{}.Presence(msg.DeviceID), payload)
}

// PublishRadioStatus publishes whether hapt is attached to radio, retained.
func (c *Client) PublishRadioStatus(radio string, attached bool) error {
	if radio == "" {
		return ErrInvalidTopic
	}

	status := RadioDetached
	if attached {
		status = RadioAttached
	}
	payload, err := json.Marshal(radioMessage{
		Radio:     radio,
		Status:    status,
		Session:   c.session,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding radio status: %w", ErrPublishFailed, err)
	}
	return c.PublishRetained(Topics{}.RadioStatus(radio), payload)
}
