package hostapd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// Protocol constants for the hostapd control interface.
const (
	cmdAttach = "ATTACH"
	cmdDetach = "DETACH"
	replyOK   = "OK\n"

	// defaultReplyTimeout bounds the wait for an ATTACH/DETACH reply.
	defaultReplyTimeout = 2 * time.Second

	// receiveBufferSize is the size of a single event read.
	receiveBufferSize = 4096

	// minSocketTimeout avoids a zero timeval, which the kernel reads as "block forever".
	minSocketTimeout = time.Millisecond

	// localPrefix names hapt's client sockets in LocalDir.
	localPrefix = "hapt"
)

// Default directory layout on OpenWrt.
const (
	DefaultCtrlDir  = "/var/run/hostapd"
	DefaultLocalDir = "/var/run"
)

// Config holds control interface settings shared by every radio.
type Config struct {
	// CtrlDir holds hostapd's per-radio sockets.
	// Default: "/var/run/hostapd"
	CtrlDir string

	// LocalDir is where client sockets are bound. hostapd must be able to
	// send to sockets created here.
	// Default: "/var/run"
	LocalDir string

	// ReplyTimeout bounds the ATTACH/DETACH handshake.
	// Default: 2 seconds.
	ReplyTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.CtrlDir == "" {
		c.CtrlDir = DefaultCtrlDir
	}
	if c.LocalDir == "" {
		c.LocalDir = DefaultLocalDir
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = defaultReplyTimeout
	}
	return c
}

// Stats holds per-radio counters.
type Stats struct {
	Radio          string
	FramesRx       uint64
	EventsRx       uint64
	DecodeErrors   uint64
	ReceiveErrors  uint64
	SkippedReplies uint64 // Event frames read while waiting for a handshake reply
	AttachedAt     time.Time
	Attached       bool
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

// Client is an attached connection to one radio's control socket.
//
// The descriptor is a blocking AF_UNIX datagram socket. Readiness is owned
// by the caller's poller: Receive must only be called once the descriptor
// is reported readable.
//
// Thread Safety:
//   - Stats is safe for concurrent use. Everything else is meant for the
//     single event-loop goroutine.
type Client struct {
	cfg        Config
	radio      string
	remotePath string
	localPath  string
	fd         int
	bound      bool

	closed     atomic.Bool
	attachedAt time.Time
	logger     Logger

	framesRx       atomic.Uint64
	eventsRx       atomic.Uint64
	decodeErrors   atomic.Uint64
	receiveErrors  atomic.Uint64
	skippedReplies atomic.Uint64
}

// Attach opens a client socket for radio and subscribes to its events.
//
// The local socket is bound at <LocalDir>/hapt-<radio>-<pid>-<unixnano> so a
// stale file from a crashed run never collides. On any failure the socket is
// closed and its file removed before returning.
//
// Parameters:
//   - ctx: Bounds the handshake together with ReplyTimeout
//   - cfg: Directory layout and timeouts
//   - radio: hostapd interface name, e.g. "wlan0"
//
// Returns:
//   - *Client: Attached client
//   - error: ErrInvalidRadio, or ErrProtocol wrapping the cause
func Attach(ctx context.Context, cfg Config, radio string) (*Client, error) {
	if err := validateRadio(radio); err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()
	c := &Client{
		cfg:        cfg,
		radio:      radio,
		remotePath: filepath.Join(cfg.CtrlDir, radio),
		localPath:  localSocketPath(cfg.LocalDir, radio),
		fd:         -1,
		logger:     noopLogger{},
	}

	if err := c.open(); err != nil {
		c.release() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: %s: %w", ErrProtocol, radio, err)
	}

	if err := c.request(ctx, cmdAttach); err != nil {
		c.release() //nolint:errcheck // already failing
		return nil, err
	}

	if err := c.clearTimeouts(); err != nil {
		c.release() //nolint:errcheck // already failing
		return nil, fmt.Errorf("%w: %s: %w", ErrProtocol, radio, err)
	}

	c.attachedAt = time.Now()
	return c, nil
}

func validateRadio(radio string) error {
	if radio == "" || radio == "." || radio == ".." || strings.ContainsAny(radio, "/\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidRadio, radio)
	}
	return nil
}

func localSocketPath(dir, radio string) string {
	name := fmt.Sprintf("%s-%s-%d-%d", localPrefix, radio, os.Getpid(), time.Now().UnixNano())
	return filepath.Join(dir, name)
}

// open creates, binds and connects the datagram socket.
func (c *Client) open() error {
	if err := os.Remove(c.localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing stale socket: %w", err)
	}

	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("socket: %w", err)
	}
	c.fd = fd

	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: c.localPath}); err != nil {
		return fmt.Errorf("bind %s: %w", c.localPath, err)
	}
	c.bound = true

	if err := unix.Connect(fd, &unix.SockaddrUnix{Name: c.remotePath}); err != nil {
		return fmt.Errorf("connect %s: %w", c.remotePath, err)
	}

	return nil
}

// request sends cmd and waits for the exact "OK\n" reply.
//
// Event frames already queued on the socket (they start with '<') are
// skipped while waiting; hostapd can emit them just before a DETACH reply.
func (c *Client) request(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrProtocol, c.radio, cmd, err)
	}

	deadline := time.Now().Add(c.cfg.ReplyTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if err := setSocketTimeout(c.fd, unix.SO_SNDTIMEO, time.Until(deadline)); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrProtocol, c.radio, cmd, err)
	}
	if err := retryEINTR(func() error {
		_, err := unix.Write(c.fd, []byte(cmd))
		return err
	}); err != nil {
		return fmt.Errorf("%w: %s %s: send: %w", ErrProtocol, c.radio, cmd, err)
	}

	buf := make([]byte, receiveBufferSize)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return fmt.Errorf("%w: %s %s: no reply within %v", ErrProtocol, c.radio, cmd, c.cfg.ReplyTimeout)
		}
		if err := setSocketTimeout(c.fd, unix.SO_RCVTIMEO, remaining); err != nil {
			return fmt.Errorf("%w: %s %s: %w", ErrProtocol, c.radio, cmd, err)
		}

		n, err := unix.Read(c.fd, buf)
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN):
			return fmt.Errorf("%w: %s %s: no reply within %v", ErrProtocol, c.radio, cmd, c.cfg.ReplyTimeout)
		case err != nil:
			return fmt.Errorf("%w: %s %s: receive: %w", ErrProtocol, c.radio, cmd, err)
		}

		reply := buf[:n]
		if n > 0 && reply[0] == '<' {
			c.skippedReplies.Add(1)
			continue
		}
		if string(reply) != replyOK {
			return fmt.Errorf("%w: %s %s: unexpected reply %q", ErrProtocol, c.radio, cmd, reply)
		}
		return nil
	}
}

// clearTimeouts restores fully blocking I/O once the handshake is done.
func (c *Client) clearTimeouts() error {
	var zero unix.Timeval
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &zero); err != nil {
		return fmt.Errorf("clearing receive timeout: %w", err)
	}
	if err := unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &zero); err != nil {
		return fmt.Errorf("clearing send timeout: %w", err)
	}
	return nil
}

func setSocketTimeout(fd, opt int, d time.Duration) error {
	if d < minSocketTimeout {
		d = minSocketTimeout
	}
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, opt, &tv)
}

func retryEINTR(fn func() error) error {
	for {
		err := fn()
		if !errors.Is(err, unix.EINTR) {
			return err
		}
	}
}

// release closes the descriptor and removes the local socket file.
func (c *Client) release() error {
	var err error
	if c.fd >= 0 {
		err = unix.Close(c.fd)
		c.fd = -1
	}
	if c.bound {
		if rmErr := os.Remove(c.localPath); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = rmErr
		}
		c.bound = false
	}
	return err
}

// Detach unsubscribes from events and releases the socket.
//
// The DETACH handshake is best-effort: a missing or wrong reply is logged
// at warn and the socket is released regardless. Calling Detach on an
// already detached client is a no-op.
//
// Returns:
//   - error: Only a failure to close the descriptor or remove the socket file
func (c *Client) Detach() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	if err := c.request(context.Background(), cmdDetach); err != nil {
		c.logger.Warn("detach not acknowledged",
			"radio", c.radio,
			"error", err,
		)
	}

	if err := c.release(); err != nil {
		return fmt.Errorf("releasing %s: %w", c.radio, err)
	}
	return nil
}

// Receive performs a single read of up to 4096 bytes.
//
// It blocks if nothing is queued, so callers must wait for readiness first.
func (c *Client) Receive() ([]byte, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	buf := make([]byte, receiveBufferSize)
	for {
		n, err := unix.Read(c.fd, buf)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			c.receiveErrors.Add(1)
			return nil, fmt.Errorf("receiving from %s: %w", c.radio, err)
		}
		c.framesRx.Add(1)
		return buf[:n], nil
	}
}

// ReadEvent receives one frame and decodes it.
//
// A receive failure is returned unwrapped by ErrDecode, so callers can
// tell a dead socket from a bad frame.
func (c *Client) ReadEvent() (Event, error) {
	frame, err := c.Receive()
	if err != nil {
		return Event{}, err
	}

	ev, err := Decode(frame)
	if err != nil {
		c.decodeErrors.Add(1)
		return Event{}, err
	}

	if ev.Kind != EventUnrecognized {
		c.eventsRx.Add(1)
	}
	return ev, nil
}

// Fd returns the socket descriptor for registration with a poller.
// It is -1 after Detach.
func (c *Client) Fd() int {
	return c.fd
}

// Radio returns the interface name this client is attached to.
func (c *Client) Radio() string {
	return c.radio
}

// LocalPath returns the path of the client's bound socket file.
func (c *Client) LocalPath() string {
	return c.localPath
}

// SetLogger sets the logger used for handshake warnings.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
}

// Stats returns current counters.
func (c *Client) Stats() Stats {
	return Stats{
		Radio:          c.radio,
		FramesRx:       c.framesRx.Load(),
		EventsRx:       c.eventsRx.Load(),
		DecodeErrors:   c.decodeErrors.Load(),
		ReceiveErrors:  c.receiveErrors.Load(),
		SkippedReplies: c.skippedReplies.Load(),
		AttachedAt:     c.attachedAt,
		Attached:       !c.closed.Load(),
	}
}
