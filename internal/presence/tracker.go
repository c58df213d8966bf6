package presence

import (
	"context"
	"sort"
	"strings"
)

// Kind is a presence transition.
type Kind int

const (
	// Arrived is emitted when a device's radio set goes from empty to non-empty.
	Arrived Kind = iota + 1
	// Departed is emitted when a device's radio set becomes empty.
	Departed
)

func (k Kind) String() string {
	switch k {
	case Arrived:
		return "arrived"
	case Departed:
		return "departed"
	default:
		return "unknown"
	}
}

// Transition is what the tracker hands to its Sink.
type Transition struct {
	MAC  string
	Kind Kind

	// Timeout is how long, in seconds, the receiver should keep treating
	// the device as home after this transition.
	Timeout int

	// Radio is the radio whose event caused the transition.
	Radio string
}

// Sink delivers transitions. A returned error is logged by the tracker and
// has no effect on presence state.
type Sink interface {
	Notify(ctx context.Context, t Transition) error
}

// AssociationQuery lists the stations currently associated with a radio.
type AssociationQuery interface {
	Stations(ctx context.Context, radio string) ([]string, error)
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

// Config holds the tracking policy.
type Config struct {
	// Radios limits tracking to these radios. Empty means all.
	Radios []string

	// Devices limits tracking to these MACs. Empty means all.
	Devices []string

	// HomeTimeout is sent with Arrived, in seconds.
	HomeTimeout int

	// AwayTimeout is sent with Departed, in seconds.
	AwayTimeout int
}

// Stats holds tracker counters.
type Stats struct {
	Present      int
	Arrivals     uint64
	Departures   uint64
	Filtered     uint64 // Events dropped by an allow-list
	Anomalies    uint64 // Disconnects for a radio not in the device's set
	NotifyErrors uint64
}

// Tracker maps each present device to the set of radios reporting it.
//
// A MAC is a key of the map if and only if its radio set is non-empty.
// State is updated before the sink is called, so a failed notification
// never leaves the tracker out of step with the radios.
//
// Thread Safety:
//   - Not safe for concurrent use. It belongs to the event loop.
type Tracker struct {
	radios  map[string]struct{}
	devices map[string]struct{}
	home    int
	away    int

	sink   Sink
	logger Logger

	present map[string]map[string]struct{}
	stats   Stats
}

// NewTracker creates an empty tracker.
//
// Parameters:
//   - cfg: Allow-lists and timeouts
//   - sink: Receives transitions; nil discards them
//   - logger: Optional; nil disables logging
func NewTracker(cfg Config, sink Sink, logger Logger) *Tracker {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Tracker{
		radios:  toSet(cfg.Radios, false),
		devices: toSet(cfg.Devices, true),
		home:    cfg.HomeTimeout,
		away:    cfg.AwayTimeout,
		sink:    sink,
		logger:  logger,
		present: make(map[string]map[string]struct{}),
	}
}

// toSet builds an allow-list. An empty list yields nil, meaning "allow all".
func toSet(items []string, lower bool) map[string]struct{} {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if lower {
			item = strings.ToLower(item)
		}
		if item != "" {
			set[item] = struct{}{}
		}
	}
	return set
}

// AllowsRadio reports whether events from radio are tracked.
func (t *Tracker) AllowsRadio(radio string) bool {
	if t.radios == nil {
		return true
	}
	_, ok := t.radios[radio]
	return ok
}

// AllowsDevice reports whether mac is tracked.
func (t *Tracker) AllowsDevice(mac string) bool {
	if t.devices == nil {
		return true
	}
	_, ok := t.devices[strings.ToLower(mac)]
	return ok
}

// accept applies the radio then the device allow-list.
func (t *Tracker) accept(mac, radio string) bool {
	if !t.AllowsRadio(radio) || !t.AllowsDevice(mac) {
		t.stats.Filtered++
		t.logger.Debug("event filtered", "mac", mac, "radio", radio)
		return false
	}
	return true
}

// Connected records mac associating with radio. Emits Arrived if the
// device had no radios before.
func (t *Tracker) Connected(ctx context.Context, mac, radio string) {
	mac = strings.ToLower(mac)
	if !t.accept(mac, radio) {
		return
	}

	set, ok := t.present[mac]
	if !ok {
		set = make(map[string]struct{})
		t.present[mac] = set
	}
	wasEmpty := len(set) == 0
	set[radio] = struct{}{}

	t.logger.Info("device connected",
		"mac", mac,
		"radio", radio,
		"radios", sortedKeys(set),
	)

	if wasEmpty {
		t.stats.Arrivals++
		t.emit(ctx, Transition{MAC: mac, Kind: Arrived, Timeout: t.home, Radio: radio})
	}
}

// Disconnected records mac leaving radio. Emits Departed when the device
// has no radios left. A disconnect for a radio the device is not on is a
// no-op.
func (t *Tracker) Disconnected(ctx context.Context, mac, radio string) {
	mac = strings.ToLower(mac)
	if !t.accept(mac, radio) {
		return
	}

	set, ok := t.present[mac]
	if _, onRadio := set[radio]; !ok || !onRadio {
		t.stats.Anomalies++
		t.logger.Debug("disconnect for radio not associated",
			"mac", mac,
			"radio", radio,
		)
		return
	}

	delete(set, radio)
	t.logger.Info("device disconnected",
		"mac", mac,
		"radio", radio,
		"radios", sortedKeys(set),
	)

	if len(set) == 0 {
		delete(t.present, mac)
		t.stats.Departures++
		t.emit(ctx, Transition{MAC: mac, Kind: Departed, Timeout: t.away, Radio: radio})
	}
}

func (t *Tracker) emit(ctx context.Context, tr Transition) {
	t.logger.Info("presence transition",
		"mac", tr.MAC,
		"kind", tr.Kind.String(),
		"timeout", tr.Timeout,
	)

	if t.sink == nil {
		return
	}
	if err := t.sink.Notify(ctx, tr); err != nil {
		t.stats.NotifyErrors++
		t.logger.Warn("notification failed",
			"mac", tr.MAC,
			"kind", tr.Kind.String(),
			"error", err,
		)
	}
}

// Reconcile feeds a synthetic Connected for every station already
// associated with each tracked radio. A failed query is logged and the
// pass moves on to the next radio.
//
// Returns:
//   - int: Number of associations fed in
func (t *Tracker) Reconcile(ctx context.Context, radios []string, q AssociationQuery) int {
	fed := 0
	for _, radio := range radios {
		if ctx.Err() != nil {
			return fed
		}
		if !t.AllowsRadio(radio) {
			continue
		}

		macs, err := q.Stations(ctx, radio)
		if err != nil {
			t.logger.Warn("association query failed",
				"radio", radio,
				"error", err,
			)
			continue
		}

		t.logger.Debug("association query", "radio", radio, "stations", len(macs))
		for _, mac := range macs {
			t.Connected(ctx, mac, radio)
			fed++
		}
	}
	return fed
}

// Devices returns a snapshot of present devices and their radios, sorted.
func (t *Tracker) Devices() map[string][]string {
	out := make(map[string][]string, len(t.present))
	for mac, set := range t.present {
		out[mac] = sortedKeys(set)
	}
	return out
}

// Radios returns the radios mac is currently associated with.
func (t *Tracker) Radios(mac string) []string {
	return sortedKeys(t.present[strings.ToLower(mac)])
}

// Stats returns current counters.
func (t *Tracker) Stats() Stats {
	s := t.stats
	s.Present = len(t.present)
	return s
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
