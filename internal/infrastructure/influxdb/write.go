package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	measurementPresence = "presence"
	measurementRadio    = "radio"
)

// PresenceRecord is one presence transition.
type PresenceRecord struct {
	MAC          string
	DeviceID     string
	Kind         string // "arrived" or "departed"
	Radio        string
	ConsiderHome int
	Time         time.Time
}

// WritePresence records a presence transition.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WritePresence(influxdb.PresenceRecord{
//	    MAC: "aa:bb:cc:dd:ee:ff", DeviceID: "laptop", Kind: "arrived",
//	    Radio: "wlan0", ConsiderHome: 86400,
//	})
func (c *Client) WritePresence(rec PresenceRecord) {
	c.queue(presencePoint(rec))
}

// WriteRadio records hapt attaching to or detaching from a radio.
func (c *Client) WriteRadio(radio string, attached bool) {
	c.queue(radioPoint(radio, attached, time.Now()))
}

// queue hands p to the write API, or counts it as dropped once the client
// is closed.
func (c *Client) queue(p *write.Point) {
	if !c.IsConnected() {
		c.dropped.Add(1)
		return
	}
	c.points.Add(1)
	c.writeAPI.WritePoint(p)
}

// presencePoint builds the point for rec. The "home" field makes the
// series directly graphable as a step function.
func presencePoint(rec PresenceRecord) *write.Point {
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return write.NewPoint(
		measurementPresence,
		map[string]string{
			"mac":    rec.MAC,
			"dev_id": rec.DeviceID,
			"kind":   rec.Kind,
			"radio":  rec.Radio,
		},
		map[string]interface{}{
			"home":          rec.Kind == "arrived",
			"consider_home": rec.ConsiderHome,
		},
		ts,
	)
}

func radioPoint(radio string, attached bool, ts time.Time) *write.Point {
	return write.NewPoint(
		measurementRadio,
		map[string]string{
			"radio": radio,
		},
		map[string]interface{}{
			"attached": attached,
		},
		ts,
	)
}
