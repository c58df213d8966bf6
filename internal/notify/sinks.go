package notify

import (
	"context"

	"github.com/nerrad567/hapt/internal/infrastructure/database"
	"github.com/nerrad567/hapt/internal/infrastructure/influxdb"
	"github.com/nerrad567/hapt/internal/infrastructure/mqtt"
)

// PresencePublisher is the part of mqtt.Client the MQTT sink needs.
type PresencePublisher interface {
	PublishPresence(msg mqtt.PresenceMessage) error
	PublishRadioStatus(radio string, attached bool) error
}

// PointWriter is the part of influxdb.Client the InfluxDB sink needs.
type PointWriter interface {
	WritePresence(rec influxdb.PresenceRecord)
	WriteRadio(radio string, attached bool)
}

// JournalWriter is the part of database.Journal the journal sink needs.
type JournalWriter interface {
	RecordPresence(ctx context.Context, ev database.PresenceEvent) error
	RecordRadio(ctx context.Context, radio string, attached bool) error
}

// MQTTSink publishes retained presence state.
type MQTTSink struct {
	pub PresencePublisher
}

// NewMQTTSink wraps an MQTT publisher.
func NewMQTTSink(pub PresencePublisher) *MQTTSink {
	return &MQTTSink{pub: pub}
}

// Name implements Sink.
func (s *MQTTSink) Name() string { return "mqtt" }

// Notify implements Sink.
func (s *MQTTSink) Notify(_ context.Context, n Notification) error {
	state := mqtt.StateNotHome
	if n.Home() {
		state = mqtt.StateHome
	}
	return s.pub.PublishPresence(mqtt.PresenceMessage{
		MAC:          n.MAC,
		DeviceID:     n.DeviceID,
		HostName:     n.HostName,
		State:        state,
		ConsiderHome: n.Timeout,
		Radio:        n.Radio,
		Timestamp:    n.At.UTC(),
	})
}

// RadioStatus implements RadioSink.
func (s *MQTTSink) RadioStatus(_ context.Context, radio string, attached bool) error {
	return s.pub.PublishRadioStatus(radio, attached)
}

// InfluxSink records transitions as time-series points. Writes are
// asynchronous, so it never reports a failure.
type InfluxSink struct {
	w PointWriter
}

// NewInfluxSink wraps an InfluxDB writer.
func NewInfluxSink(w PointWriter) *InfluxSink {
	return &InfluxSink{w: w}
}

// Name implements Sink.
func (s *InfluxSink) Name() string { return "influxdb" }

// Notify implements Sink.
func (s *InfluxSink) Notify(_ context.Context, n Notification) error {
	s.w.WritePresence(influxdb.PresenceRecord{
		MAC:          n.MAC,
		DeviceID:     n.DeviceID,
		Kind:         n.Kind.String(),
		Radio:        n.Radio,
		ConsiderHome: n.Timeout,
		Time:         n.At,
	})
	return nil
}

// RadioStatus implements RadioSink.
func (s *InfluxSink) RadioStatus(_ context.Context, radio string, attached bool) error {
	s.w.WriteRadio(radio, attached)
	return nil
}

// JournalSink appends transitions to the SQLite journal.
type JournalSink struct {
	j JournalWriter
}

// NewJournalSink wraps a journal.
func NewJournalSink(j JournalWriter) *JournalSink {
	return &JournalSink{j: j}
}

// Name implements Sink.
func (s *JournalSink) Name() string { return "journal" }

// Notify implements Sink.
func (s *JournalSink) Notify(ctx context.Context, n Notification) error {
	return s.j.RecordPresence(ctx, database.PresenceEvent{
		MAC:          n.MAC,
		DeviceID:     n.DeviceID,
		HostName:     n.HostName,
		Kind:         n.Kind.String(),
		Radio:        n.Radio,
		ConsiderHome: n.Timeout,
		OccurredAt:   n.At,
	})
}

// RadioStatus implements RadioSink.
func (s *JournalSink) RadioStatus(ctx context.Context, radio string, attached bool) error {
	return s.j.RecordRadio(ctx, radio, attached)
}
