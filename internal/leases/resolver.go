package leases

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultFile is the dnsmasq lease file on OpenWrt.
const DefaultFile = "/tmp/dhcp.leases"

// noName is how dnsmasq writes a lease without a host name.
const noName = "*"

// Lease is one dnsmasq lease.
type Lease struct {
	Expiry   time.Time
	MAC      string
	IP       string
	Hostname string // Empty when the client sent none
	ClientID string
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

// Resolver looks up leases by MAC.
//
// Thread Safety:
//   - Lookup is safe to call while Watch runs in another goroutine.
type Resolver struct {
	path   string
	logger Logger

	mu       sync.Mutex
	table    map[string]Lease
	valid    bool
	watching bool
}

// NewResolver creates a resolver for the lease file at path.
//
// Parameters:
//   - path: Lease file; empty uses DefaultFile
//   - logger: Optional; nil disables logging
func NewResolver(path string, logger Logger) *Resolver {
	if path == "" {
		path = DefaultFile
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Resolver{path: path, logger: logger}
}

// Path returns the lease file path.
func (r *Resolver) Path() string {
	return r.path
}

// Lookup returns the lease for mac, if any.
func (r *Resolver) Lookup(mac string) (Lease, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.valid || !r.watching {
		r.table = r.load()
		r.valid = true
	}

	lease, ok := r.table[strings.ToLower(mac)]
	return lease, ok
}

// Invalidate drops the cached table; the next Lookup reads the file.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.valid = false
	r.mu.Unlock()
}

// load reads the lease file. Errors yield an empty table.
func (r *Resolver) load() map[string]Lease {
	f, err := os.Open(r.path)
	if err != nil {
		r.logger.Debug("lease file unavailable", "path", r.path, "error", err)
		return nil
	}
	defer f.Close()

	table, err := Parse(f)
	if err != nil {
		r.logger.Warn("reading lease file", "path", r.path, "error", err)
	}
	return table
}

// Watch keeps the cache valid until the lease file changes. It watches the
// parent directory because dnsmasq replaces the file rather than rewriting it.
// Blocks until ctx is cancelled.
//
// Parameters:
//   - ctx: Stops the watch
//   - ready: Optional; closed once the watch is established
//
// Returns:
//   - error: nil on cancellation, otherwise why the watch could not start
func (r *Resolver) Watch(ctx context.Context, ready chan<- struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating lease watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(r.path)
	name := filepath.Base(r.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	r.mu.Lock()
	r.watching = true
	r.valid = false
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.watching = false
		r.mu.Unlock()
	}()

	if ready != nil {
		close(ready)
	}
	r.logger.Debug("watching lease file", "path", r.path)

	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				r.Invalidate()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			// Events may have been lost.
			r.Invalidate()
			r.logger.Warn("lease watcher error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}

// Parse reads dnsmasq lease lines. Malformed lines are skipped; a read
// error is returned with whatever was parsed before it.
func Parse(rd io.Reader) (map[string]Lease, error) {
	table := make(map[string]Lease)
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		lease, err := ParseLine(sc.Text())
		if err != nil {
			continue
		}
		table[lease.MAC] = lease
	}
	return table, sc.Err()
}

// ParseLine parses "<expiry> <mac> <ip> <hostname> <client-id>".
// The client id is optional.
func ParseLine(line string) (Lease, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return Lease{}, fmt.Errorf("%w: %d fields", ErrMalformedLine, len(fields))
	}

	expiry, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Lease{}, fmt.Errorf("%w: expiry %q", ErrMalformedLine, fields[0])
	}

	lease := Lease{
		MAC: strings.ToLower(fields[1]),
		IP:  fields[2],
	}
	if expiry > 0 {
		lease.Expiry = time.Unix(expiry, 0)
	}
	if fields[3] != noName {
		lease.Hostname = fields[3]
	}
	if len(fields) > 4 && fields[4] != noName {
		lease.ClientID = fields[4]
	}
	return lease, nil
}
