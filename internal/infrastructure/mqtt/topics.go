package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes. Everything hapt publishes lives under "hapt/".
const (
	// TopicPrefix is the root of every hapt topic.
	TopicPrefix = "hapt"

	// TopicPrefixPresence is the base for per-device presence state.
	TopicPrefixPresence = "hapt/presence"

	// TopicPrefixRadio is the base for per-radio attach state.
	TopicPrefixRadio = "hapt/radio"

	// TopicPrefixSystem is the base for daemon status topics.
	TopicPrefixSystem = "hapt/system"
)

// Topics provides builders for hapt MQTT topics.
//
//	topic := mqtt.Topics{}.Presence("laptop")
//	// Returns: "hapt/presence/laptop"
type Topics struct{}

// Presence returns the retained presence topic for a device.
//
// Example: hapt/presence/laptop
func (Topics) Presence(deviceID string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixPresence, topicLevel(deviceID))
}

// RadioStatus returns the retained attach-state topic for a radio.
//
// Example: hapt/radio/wlan0/status
func (Topics) RadioStatus(radio string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixRadio, topicLevel(radio))
}

// SystemStatus returns the daemon online/offline topic (also the LWT topic).
//
// Example: hapt/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllPresence returns a pattern matching every device's presence topic.
//
// Pattern: hapt/presence/+
func (Topics) AllPresence() string {
	return fmt.Sprintf("%s/+", TopicPrefixPresence)
}

// AllTopics returns a pattern matching all hapt topics.
//
// Pattern: hapt/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// topicLevel makes s safe to use as a single topic level.
// Wildcards and separators are replaced with '_'.
func topicLevel(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '+', '#':
			return '_'
		}
		return r
	}, s)
}
