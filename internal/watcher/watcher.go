package watcher

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// watchMask is used for both levels. IN_ONLYDIR makes add_watch fail on a
// non-directory instead of watching a stray file.
const watchMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_MOVED_TO | unix.IN_MOVED_FROM | unix.IN_ONLYDIR

// readBufferSize holds many records; a single read never splits one.
const readBufferSize = 64 * (unix.SizeofInotifyEvent + unix.NAME_MAX + 1)

// Config holds the watched location.
type Config struct {
	// CtrlDir is hostapd's control directory, e.g. "/var/run/hostapd".
	// Its parent is watched for the directory coming and going.
	CtrlDir string
}

// Handler receives radio lifecycle notifications.
//
// Both calls may repeat for the same name (startup enumeration racing a
// create record, or a rescan after queue overflow); implementations must
// treat repeats as no-ops.
type Handler interface {
	RadioAdded(name string)
	RadioRemoved(name string)
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

// watch is one inotify subscription.
type watch struct {
	path string
	mask uint32
	wd   int
}

// Watcher tracks radios appearing in and disappearing from the control
// directory using a two-level inotify watch.
//
// The outer watch on the parent directory lives as long as the Watcher.
// The inner watch on the control directory exists only while that
// directory does; it is nil otherwise.
type Watcher struct {
	ctrlDir string
	parent  string
	dirName string

	fd    int
	outer *watch
	inner *watch

	handler Handler
	logger  Logger
	buf     []byte
}

// New creates a watcher. Call Setup before registering Fd with a poller.
func New(cfg Config, handler Handler) *Watcher {
	ctrlDir := filepath.Clean(cfg.CtrlDir)
	return &Watcher{
		ctrlDir: ctrlDir,
		parent:  filepath.Dir(ctrlDir),
		dirName: filepath.Base(ctrlDir),
		fd:      -1,
		handler: handler,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for watch lifecycle messages.
func (w *Watcher) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	w.logger = logger
}

// Setup creates the inotify instance and the outer watch, then the inner
// watch if the control directory exists, and reports every radio socket
// already present via RadioAdded.
//
// Returns:
//   - error: If inotify cannot be created or the parent directory cannot be watched
func (w *Watcher) Setup() error {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return fmt.Errorf("inotify_init1: %w", err)
	}
	w.fd = fd
	w.buf = make([]byte, readBufferSize)

	outer, err := w.addWatch(w.parent)
	if err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", w.parent, err)
	}
	w.outer = outer

	w.establishInner()
	return nil
}

func (w *Watcher) addWatch(path string) (*watch, error) {
	wd, err := unix.InotifyAddWatch(w.fd, path, watchMask)
	if err != nil {
		return nil, err
	}
	return &watch{path: path, mask: watchMask, wd: wd}, nil
}

// establishInner (re-)creates the inner watch and enumerates radios.
// The watch is added before listing so nothing created in between is lost;
// duplicates are absorbed by the handler.
func (w *Watcher) establishInner() {
	if w.inner != nil {
		w.teardownInner()
	}

	inner, err := w.addWatch(w.ctrlDir)
	if err != nil {
		if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENOTDIR) {
			w.logger.Info("control directory absent, waiting for it", "path", w.ctrlDir)
		} else {
			w.logger.Warn("cannot watch control directory", "path", w.ctrlDir, "error", err)
		}
		return
	}
	w.inner = inner
	w.logger.Debug("watching control directory", "path", w.ctrlDir, "wd", inner.wd)

	w.enumerate()
}

// teardownInner drops the inner watch. Radios it produced are left alone:
// their sockets report hang-up or fail on their own.
func (w *Watcher) teardownInner() {
	if w.inner == nil {
		return
	}
	// EINVAL when the kernel already removed it with the directory.
	unix.InotifyRmWatch(w.fd, uint32(w.inner.wd)) //nolint:errcheck,gosec // wd is non-negative
	w.logger.Debug("control directory watch removed", "path", w.inner.path)
	w.inner = nil
}

// enumerate reports every socket currently in the control directory.
func (w *Watcher) enumerate() {
	entries, err := os.ReadDir(w.ctrlDir)
	if err != nil {
		w.logger.Warn("listing control directory", "path", w.ctrlDir, "error", err)
		return
	}
	for _, e := range entries {
		if e.Type()&os.ModeSocket == 0 {
			continue
		}
		w.handler.RadioAdded(e.Name())
	}
}

// Fd returns the inotify descriptor for registration with a poller.
func (w *Watcher) Fd() int {
	return w.fd
}

// HasInner reports whether the control directory is currently watched.
func (w *Watcher) HasInner() bool {
	return w.inner != nil
}

// HandleReadable reads one buffer of change records and dispatches each.
//
// Returns:
//   - error: ErrDecode for a malformed buffer (complete records before the
//     fault are still dispatched), or the read failure, which means the
//     discovery source itself is broken
func (w *Watcher) HandleReadable() error {
	if w.fd < 0 {
		return ErrNotSetup
	}

	var n int
	for {
		var err error
		n, err = unix.Read(w.fd, w.buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if errors.Is(err, unix.EAGAIN) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading inotify: %w", err)
		}
		break
	}

	changes, decodeErr := DecodeRecords(w.buf[:n])
	for _, c := range changes {
		w.onChange(c)
	}
	return decodeErr
}

// onChange applies the dispatch rules for one record.
func (w *Watcher) onChange(c Change) {
	if c.Overflow() {
		w.logger.Warn("inotify queue overflow, rescanning control directory")
		if w.inner != nil {
			w.enumerate()
		}
		return
	}

	switch {
	case w.outer != nil && c.WatchID == w.outer.wd:
		if c.Name != w.dirName {
			return
		}
		switch {
		case c.Created():
			w.logger.Info("control directory appeared", "path", w.ctrlDir)
			w.establishInner()
		case c.Removed():
			w.logger.Info("control directory disappeared", "path", w.ctrlDir)
			w.teardownInner()
		}

	case w.inner != nil && c.WatchID == w.inner.wd:
		if c.Ignored() {
			w.inner = nil
			return
		}
		if c.Name == "" {
			return
		}
		switch {
		case c.Created():
			if !isSocket(filepath.Join(w.ctrlDir, c.Name)) {
				return
			}
			w.handler.RadioAdded(c.Name)
		case c.Removed():
			w.handler.RadioRemoved(c.Name)
		}
	}
}

func isSocket(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode()&os.ModeSocket != 0
}

// Close removes both watches and closes the inotify descriptor.
// Safe to call multiple times.
func (w *Watcher) Close() error {
	if w.fd < 0 {
		return nil
	}

	w.teardownInner()
	if w.outer != nil {
		unix.InotifyRmWatch(w.fd, uint32(w.outer.wd)) //nolint:errcheck,gosec // closing anyway
		w.outer = nil
	}

	err := unix.Close(w.fd)
	w.fd = -1
	if err != nil {
		return fmt.Errorf("closing inotify: %w", err)
	}
	return nil
}
