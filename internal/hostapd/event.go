package hostapd

import (
	"bytes"
	"fmt"
	"net"
	"strings"
)

// EventKind classifies a decoded control-interface frame.
type EventKind int

const (
	// EventUnrecognized is any event hapt does not act on.
	EventUnrecognized EventKind = iota
	// EventConnected is AP-STA-CONNECTED.
	EventConnected
	// EventDisconnected is AP-STA-DISCONNECTED.
	EventDisconnected
)

// Event names as sent by hostapd.
const (
	eventStaConnected    = "AP-STA-CONNECTED"
	eventStaDisconnected = "AP-STA-DISCONNECTED"
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unrecognized"
	}
}

// Event is one decoded unsolicited frame.
type Event struct {
	Kind EventKind

	// Name is the raw event name, e.g. "AP-STA-CONNECTED" or "CTRL-EVENT-EAP-STARTED".
	Name string

	// MAC is the station address in lower-case colon form.
	// Empty for unrecognized events.
	MAC string

	// Args holds every token after the name, unmodified.
	Args []string
}

// Decode parses an event frame of the form "<N>EVENT-NAME arg1 arg2 ...".
//
// Everything up to and including the first '>' is the priority marker and
// is discarded. A frame without a marker is decoded as-is.
//
// Returns:
//   - Event: Kind is EventUnrecognized for events hapt ignores
//   - error: ErrDecode for an empty frame, or a station event without a valid MAC
func Decode(frame []byte) (Event, error) {
	if i := bytes.IndexByte(frame, '>'); i >= 0 {
		frame = frame[i+1:]
	}

	fields := strings.Fields(string(bytes.TrimRight(frame, "\x00")))
	if len(fields) == 0 {
		return Event{}, fmt.Errorf("%w: empty frame", ErrDecode)
	}

	ev := Event{
		Name: fields[0],
		Args: fields[1:],
	}

	switch ev.Name {
	case eventStaConnected:
		ev.Kind = EventConnected
	case eventStaDisconnected:
		ev.Kind = EventDisconnected
	default:
		ev.Kind = EventUnrecognized
		return ev, nil
	}

	if len(ev.Args) == 0 {
		return Event{}, fmt.Errorf("%w: %s without station address", ErrDecode, ev.Name)
	}

	mac, err := NormalizeMAC(ev.Args[0])
	if err != nil {
		return Event{}, fmt.Errorf("%w: %s: %w", ErrDecode, ev.Name, err)
	}
	ev.MAC = mac

	return ev, nil
}

// NormalizeMAC validates a 48-bit hardware address and returns it in
// lower-case colon-separated form.
func NormalizeMAC(s string) (string, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return "", fmt.Errorf("invalid station address %q", s)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("station address %q is not 48-bit", s)
	}
	return hw.String(), nil
}
