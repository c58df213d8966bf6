package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/hapt/internal/leases"
	"github.com/nerrad567/hapt/internal/presence"
)

// Notification is a presence transition with the device's label attached.
type Notification struct {
	MAC      string
	DeviceID string
	HostName string
	Kind     presence.Kind
	Timeout  int // Seconds the receiver should consider the device home
	Radio    string
	At       time.Time
}

// Home reports whether the notification marks the device as home.
func (n Notification) Home() bool {
	return n.Kind == presence.Arrived
}

// Sink delivers notifications to one destination.
type Sink interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// RadioSink is implemented by sinks that also record radio attach state.
type RadioSink interface {
	RadioStatus(ctx context.Context, radio string, attached bool) error
}

// Resolver looks up DHCP leases.
type Resolver interface {
	Lookup(mac string) (leases.Lease, bool)
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds the naming rules.
type Config struct {
	// Prefix is prepended to every dev_id as "<prefix>_".
	Prefix string

	// Domain is appended to lease names as "<name>.<domain>".
	Domain string
}

// Dispatcher labels transitions and hands them to every sink.
//
// Thread Safety:
//   - Safe for concurrent use if the sinks and resolver are.
type Dispatcher struct {
	cfg      Config
	resolver Resolver
	sinks    []Sink
	logger   Logger
	now      func() time.Time
}

// NewDispatcher creates a dispatcher.
//
// Parameters:
//   - cfg: Naming rules
//   - resolver: Lease lookup; nil names every device by MAC
//   - logger: Optional; nil disables logging
//   - sinks: Destinations, called in order
func NewDispatcher(cfg Config, resolver Resolver, logger Logger, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Dispatcher{
		cfg:      cfg,
		resolver: resolver,
		sinks:    sinks,
		logger:   logger,
		now:      time.Now,
	}
}

// Sinks returns the configured sink names, in call order.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Label returns the dev_id and host_name for mac.
func (d *Dispatcher) Label(mac string) (deviceID, hostName string) {
	mac = strings.ToLower(mac)

	var name string
	if d.resolver != nil {
		if lease, ok := d.resolver.Lookup(mac); ok {
			name = lease.Hostname
		}
	}

	deviceID = name
	if deviceID == "" {
		deviceID = strings.ReplaceAll(mac, ":", "_")
	}
	if d.cfg.Prefix != "" {
		deviceID = d.cfg.Prefix + "_" + deviceID
	}

	hostName = name
	if name != "" && d.cfg.Domain != "" {
		hostName = name + "." + d.cfg.Domain
	}
	return deviceID, hostName
}

// Notify labels t and delivers it to every sink. It satisfies presence.Sink.
//
// Returns:
//   - error: nil, or every sink failure joined, each wrapping ErrNotification
func (d *Dispatcher) Notify(ctx context.Context, t presence.Transition) error {
	deviceID, hostName := d.Label(t.MAC)
	n := Notification{
		MAC:      t.MAC,
		DeviceID: deviceID,
		HostName: hostName,
		Kind:     t.Kind,
		Timeout:  t.Timeout,
		Radio:    t.Radio,
		At:       d.now(),
	}

	d.logger.Info("notifying",
		"mac", n.MAC,
		"dev_id", n.DeviceID,
		"host_name", n.HostName,
		"consider_home", n.Timeout,
	)

	var errs []error
	for _, s := range d.sinks {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrNotification, s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// RadioStatus tells every RadioSink that hapt attached to or detached from
// radio. Failures are logged, never returned.
func (d *Dispatcher) RadioStatus(ctx context.Context, radio string, attached bool) {
	for _, s := range d.sinks {
		rs, ok := s.(RadioSink)
		if !ok {
			continue
		}
		if err := rs.RadioStatus(ctx, radio, attached); err != nil {
			d.logger.Warn("radio status delivery failed",
				"sink", s.Name(),
				"radio", radio,
				"attached", attached,
				"error", err,
			)
		}
	}
}
