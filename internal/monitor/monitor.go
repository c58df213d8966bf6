package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/nerrad567/hapt/internal/hostapd"
	"github.com/nerrad567/hapt/internal/poller"
	"github.com/nerrad567/hapt/internal/presence"
	"github.com/nerrad567/hapt/internal/watcher"
)

// Tracker is the part of presence.Tracker the monitor drives.
type Tracker interface {
	AllowsRadio(radio string) bool
	Connected(ctx context.Context, mac, radio string)
	Disconnected(ctx context.Context, mac, radio string)
	Reconcile(ctx context.Context, radios []string, q presence.AssociationQuery) int
}

// RadioNotifier is told when a radio is attached or dropped.
type RadioNotifier interface {
	RadioStatus(ctx context.Context, radio string, attached bool)
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

// Stats holds monitor counters.
type Stats struct {
	Attaches       uint64
	AttachFailures uint64
	Detaches       uint64
	Drops          uint64
	Events         uint64
	DecodeErrors   uint64
}

// Monitor ties the hostapd clients, the watcher and the poller together.
//
// Thread Safety:
//   - Stats may be called from any goroutine.
//   - Everything else must be called from a single goroutine.
type Monitor struct {
	cfg      hostapd.Config
	tracker  Tracker
	notifier RadioNotifier
	logger   Logger

	poller  *poller.Poller
	watcher *watcher.Watcher

	// ctx is the context handed to Setup or Run; watcher callbacks use it.
	ctx context.Context

	attaches       atomic.Uint64
	attachFailures atomic.Uint64
	detaches       atomic.Uint64
	drops          atomic.Uint64
	events         atomic.Uint64
	decodeErrors   atomic.Uint64
}

// New creates a monitor. Call Setup before Run.
//
// Parameters:
//   - cfg: hostapd directory layout; CtrlDir is also the watched directory
//   - tracker: Receives station events and decides which radios to attach
//   - notifier: Optional; told about attach and drop
//   - logger: Optional; nil disables logging
func New(cfg hostapd.Config, tracker Tracker, notifier RadioNotifier, logger Logger) *Monitor {
	if logger == nil {
		logger = noopLogger{}
	}
	if cfg.CtrlDir == "" {
		cfg.CtrlDir = hostapd.DefaultCtrlDir
	}
	return &Monitor{
		cfg:      cfg,
		tracker:  tracker,
		notifier: notifier,
		logger:   logger,
		ctx:      context.Background(),
	}
}

// Setup creates the poller and the watcher, attaches every radio already
// present, and registers the discovery descriptor.
//
// A missing control directory is not an error: radios are attached once it
// appears. On failure everything created so far is released.
//
// Returns:
//   - error: If epoll or inotify cannot be set up
func (m *Monitor) Setup(ctx context.Context) error {
	m.ctx = ctx

	p, err := poller.New()
	if err != nil {
		return fmt.Errorf("creating poller: %w", err)
	}
	m.poller = p

	w := watcher.New(watcher.Config{CtrlDir: m.cfg.CtrlDir}, m)
	w.SetLogger(m.logger)
	m.watcher = w

	if err := w.Setup(); err != nil {
		m.Close() //nolint:errcheck // already failing
		return fmt.Errorf("watching %s: %w", m.cfg.CtrlDir, err)
	}

	if err := p.Add(w.Fd(), poller.Entry{Kind: poller.KindDiscovery}); err != nil {
		m.Close() //nolint:errcheck // already failing
		return fmt.Errorf("registering watcher: %w", err)
	}

	m.logger.Info("monitor ready",
		"ctrl_dir", m.cfg.CtrlDir,
		"radios", m.Radios(),
	)
	return nil
}

// Reconcile seeds presence from the stations already associated with every
// attached radio. Run it once after Setup so devices that joined before
// hapt started are not missed.
//
// Returns:
//   - int: Number of associated stations fed to the tracker
func (m *Monitor) Reconcile(ctx context.Context, q presence.AssociationQuery) int {
	if q == nil {
		return 0
	}
	return m.tracker.Reconcile(ctx, m.Radios(), q)
}

// Radios returns the names of attached radios, sorted.
func (m *Monitor) Radios() []string {
	if m.poller == nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, e := range m.poller.Entries() {
		if e.Kind == poller.KindControl {
			seen[e.Radio] = struct{}{}
		}
	}
	radios := make([]string, 0, len(seen))
	for r := range seen {
		radios = append(radios, r)
	}
	sort.Strings(radios)
	return radios
}

// Run waits for readiness and dispatches until ctx is cancelled.
//
// Returns:
//   - error: nil after cancellation, otherwise the fatal error that ended the loop
func (m *Monitor) Run(ctx context.Context) error {
	if m.poller == nil || m.watcher == nil {
		return ErrNotSetup
	}
	m.ctx = ctx

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			if err := m.poller.Interrupt(); err != nil {
				m.logger.Error("interrupting poller", "error", err)
			}
		case <-stop:
		}
	}()

	m.logger.Info("monitoring", "radios", m.Radios())

	for {
		ready, err := m.poller.Wait()
		if errors.Is(err, poller.ErrInterrupted) {
			m.logger.Info("monitor interrupted")
			return nil
		}
		if err != nil {
			return fmt.Errorf("waiting for readiness: %w", err)
		}

		for _, r := range ready {
			if err := m.dispatch(ctx, r); err != nil {
				return err
			}
		}
	}
}

// dispatch handles one ready descriptor. The entry is looked up again
// because an earlier descriptor in the same wake may have removed it.
func (m *Monitor) dispatch(ctx context.Context, r poller.Ready) error {
	entry, ok := m.poller.Lookup(r.Fd)
	if !ok {
		return nil
	}

	switch entry.Kind {
	case poller.KindControl:
		if r.HangUp {
			m.dropRadio(ctx, r.Fd, entry, poller.ErrResourceGone)
			return nil
		}
		if r.Readable {
			m.handleControl(ctx, r.Fd, entry)
		}
		return nil

	case poller.KindDiscovery:
		if r.HangUp {
			return ErrDiscoveryLost
		}
		if !r.Readable {
			return nil
		}
		err := m.watcher.HandleReadable()
		if errors.Is(err, watcher.ErrDecode) {
			m.decodeErrors.Add(1)
			m.logger.Warn("dropping malformed change record", "error", err)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading discovery source: %w", err)
		}
		return nil

	default:
		return nil
	}
}

// handleControl reads one frame from a radio and forwards station events.
func (m *Monitor) handleControl(ctx context.Context, fd int, entry poller.Entry) {
	ev, err := entry.Client.ReadEvent()
	if errors.Is(err, hostapd.ErrDecode) {
		m.decodeErrors.Add(1)
		m.logger.Warn("dropping malformed event",
			"radio", entry.Radio,
			"error", err,
		)
		return
	}
	if err != nil {
		m.dropRadio(ctx, fd, entry, fmt.Errorf("%w: %w", poller.ErrResourceGone, err))
		return
	}

	switch ev.Kind {
	case hostapd.EventConnected:
		m.events.Add(1)
		m.tracker.Connected(ctx, ev.MAC, entry.Radio)
	case hostapd.EventDisconnected:
		m.events.Add(1)
		m.tracker.Disconnected(ctx, ev.MAC, entry.Radio)
	default:
		m.logger.Debug("ignoring event",
			"radio", entry.Radio,
			"event", ev.Name,
		)
	}
}

// RadioAdded implements watcher.Handler. Radios outside the allow-list and
// radios already attached are ignored.
func (m *Monitor) RadioAdded(radio string) {
	if !m.tracker.AllowsRadio(radio) {
		m.logger.Debug("radio not tracked", "radio", radio)
		return
	}
	if len(m.poller.Controls(radio)) > 0 {
		return
	}

	client, err := hostapd.Attach(m.ctx, m.cfg, radio)
	if err != nil {
		m.attachFailures.Add(1)
		m.logger.Warn("attach failed",
			"radio", radio,
			"error", err,
		)
		return
	}
	client.SetLogger(m.logger)

	if err := m.poller.Add(client.Fd(), poller.Entry{Kind: poller.KindControl, Radio: radio, Client: client}); err != nil {
		m.logger.Error("registering radio",
			"radio", radio,
			"error", err,
		)
		if derr := client.Detach(); derr != nil {
			m.logger.Warn("detach failed", "radio", radio, "error", derr)
		}
		return
	}

	m.attaches.Add(1)
	m.logger.Info("radio attached",
		"radio", radio,
		"socket", client.LocalPath(),
	)
	m.notifyRadio(radio, true)
}

// RadioRemoved implements watcher.Handler. Removing a radio that is not
// attached is a no-op.
func (m *Monitor) RadioRemoved(radio string) {
	for _, fd := range m.poller.Controls(radio) {
		entry, ok := m.poller.Lookup(fd)
		if !ok {
			continue
		}
		m.detach(fd, entry)
		m.logger.Info("radio removed", "radio", radio)
		m.notifyRadio(radio, false)
	}
}

// dropRadio tears down one failed radio. It only logs.
func (m *Monitor) dropRadio(ctx context.Context, fd int, entry poller.Entry, cause error) {
	m.drops.Add(1)
	m.logger.Warn("dropping radio",
		"radio", entry.Radio,
		"error", cause,
	)
	m.detach(fd, entry)
	if m.notifier != nil {
		m.notifier.RadioStatus(ctx, entry.Radio, false)
	}
}

// detach unregisters fd and detaches its client.
func (m *Monitor) detach(fd int, entry poller.Entry) {
	if err := m.poller.Remove(fd); err != nil {
		m.logger.Warn("unregistering radio",
			"radio", entry.Radio,
			"error", err,
		)
	}
	if entry.Client == nil {
		return
	}
	if err := entry.Client.Detach(); err != nil {
		m.logger.Warn("detach failed",
			"radio", entry.Radio,
			"error", err,
		)
	}
	m.detaches.Add(1)
}

func (m *Monitor) notifyRadio(radio string, attached bool) {
	if m.notifier != nil {
		m.notifier.RadioStatus(m.ctx, radio, attached)
	}
}

// Close detaches every radio, then closes the watcher and the poller.
// Safe to call multiple times and after a failed Setup.
func (m *Monitor) Close() error {
	var errs []error

	if m.poller != nil {
		for fd, entry := range m.poller.Entries() {
			if entry.Kind != poller.KindControl {
				continue
			}
			m.detach(fd, entry)
			m.logger.Info("radio detached", "radio", entry.Radio)
		}
	}

	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing watcher: %w", err))
		}
	}
	if m.poller != nil {
		if err := m.poller.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing poller: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Stats returns current counters.
func (m *Monitor) Stats() Stats {
	return Stats{
		Attaches:       m.attaches.Load(),
		AttachFailures: m.attachFailures.Load(),
		Detaches:       m.detaches.Load(),
		Drops:          m.drops.Load(),
		Events:         m.events.Load(),
		DecodeErrors:   m.decodeErrors.Load(),
	}
}
