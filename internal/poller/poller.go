package poller

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/hapt/internal/hostapd"
)

// maxEvents is the size of the epoll_wait result buffer.
const maxEvents = 32

// Kind tags a descriptor table entry.
type Kind int

const (
	// KindControl is a radio's hostapd control socket.
	KindControl Kind = iota + 1
	// KindDiscovery is the watcher's inotify descriptor.
	KindDiscovery
	// KindWakeup is the poller's own cancellation eventfd.
	KindWakeup
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindDiscovery:
		return "discovery"
	case KindWakeup:
		return "wakeup"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Entry is the payload registered with a descriptor.
// Radio and Client are set only for KindControl.
type Entry struct {
	Kind   Kind
	Radio  string
	Client *hostapd.Client
}

// Ready is one descriptor reported by Wait.
type Ready struct {
	Fd       int
	Entry    Entry
	Readable bool
	HangUp   bool // EPOLLHUP or EPOLLERR
}

// Poller is an epoll set paired with a table of what each descriptor is.
//
// Add and Remove update the table and the epoll set together. The poller
// never closes registered descriptors; their owners do.
//
// Thread Safety:
//   - Interrupt may be called from any goroutine.
//   - Everything else belongs to the event-loop goroutine.
type Poller struct {
	epfd    int
	entries map[int]Entry
	events  []unix.EpollEvent

	wakeMu sync.Mutex
	wakeFd int
	closed bool
}

// New creates an epoll instance and registers a wake-up eventfd.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	p := &Poller{
		epfd:    epfd,
		wakeFd:  wakeFd,
		entries: make(map[int]Entry),
		events:  make([]unix.EpollEvent, maxEvents),
	}

	if err := p.Add(wakeFd, Entry{Kind: KindWakeup}); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, err
	}

	return p, nil
}

// Add registers fd for readability and records its entry.
//
// Returns:
//   - error: ErrDuplicate if fd is already registered, or the epoll_ctl failure
func (p *Poller) Add(fd int, entry Entry) error {
	if p.isClosed() {
		return ErrClosed
	}
	if _, exists := p.entries[fd]; exists {
		return fmt.Errorf("%w: fd %d", ErrDuplicate, fd)
	}

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)} //nolint:gosec // descriptors fit in int32
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl add fd %d: %w", fd, err)
	}

	p.entries[fd] = entry
	return nil
}

// Remove unregisters fd. Removing an unknown descriptor is a no-op.
//
// The table entry is always dropped, even if epoll_ctl fails, because a
// descriptor that was already closed has left the epoll set on its own.
func (p *Poller) Remove(fd int) error {
	if _, ok := p.entries[fd]; !ok {
		return nil
	}
	delete(p.entries, fd)

	if p.isClosed() {
		return nil
	}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && !errors.Is(err, unix.EBADF) && !errors.Is(err, unix.ENOENT) {
		return fmt.Errorf("epoll_ctl del fd %d: %w", fd, err)
	}
	return nil
}

// Lookup returns the entry registered for fd.
func (p *Poller) Lookup(fd int) (Entry, bool) {
	e, ok := p.entries[fd]
	return e, ok
}

// Entries returns a copy of the table without the wake-up descriptor.
func (p *Poller) Entries() map[int]Entry {
	out := make(map[int]Entry, len(p.entries))
	for fd, e := range p.entries {
		if e.Kind == KindWakeup {
			continue
		}
		out[fd] = e
	}
	return out
}

// Controls returns the descriptors registered for radio, in ascending order.
func (p *Poller) Controls(radio string) []int {
	var fds []int
	for fd, e := range p.entries {
		if e.Kind == KindControl && e.Radio == radio {
			fds = append(fds, fd)
		}
	}
	sort.Ints(fds)
	return fds
}

// Wait blocks until at least one descriptor is ready.
//
// The returned slice is a snapshot: callers may Add or Remove while
// iterating it, and should Lookup each fd again before dispatch.
//
// Returns:
//   - []Ready: Ready descriptors, excluding the wake-up eventfd
//   - error: ErrInterrupted after Interrupt, or the epoll_wait failure
func (p *Poller) Wait() ([]Ready, error) {
	return p.wait(-1)
}

func (p *Poller) wait(msec int) ([]Ready, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}

	for {
		n, err := unix.EpollWait(p.epfd, p.events, msec)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("epoll_wait: %w", err)
		}

		ready := make([]Ready, 0, n)
		interrupted := false
		for _, ev := range p.events[:n] {
			fd := int(ev.Fd)
			entry, ok := p.entries[fd]
			if !ok {
				continue
			}
			if entry.Kind == KindWakeup {
				p.drainWakeup()
				interrupted = true
				continue
			}
			ready = append(ready, Ready{
				Fd:       fd,
				Entry:    entry,
				Readable: ev.Events&unix.EPOLLIN != 0,
				HangUp:   ev.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0,
			})
		}

		if interrupted {
			return nil, ErrInterrupted
		}
		return ready, nil
	}
}

// Interrupt makes the current or next Wait return ErrInterrupted.
// Safe to call from any goroutine, and after Close.
func (p *Poller) Interrupt() error {
	p.wakeMu.Lock()
	defer p.wakeMu.Unlock()

	if p.closed {
		return nil
	}

	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	if _, err := unix.Write(p.wakeFd, buf[:]); err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

func (p *Poller) drainWakeup() {
	var buf [8]byte
	unix.Read(p.wakeFd, buf[:]) //nolint:errcheck // EAGAIN when already drained
}

func (p *Poller) isClosed() bool {
	p.wakeMu.Lock()
	defer p.wakeMu.Unlock()
	return p.closed
}

// Close releases the epoll instance and the wake-up eventfd.
// Registered descriptors are not closed. Safe to call multiple times.
func (p *Poller) Close() error {
	p.wakeMu.Lock()
	defer p.wakeMu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	if err := unix.Close(p.wakeFd); err != nil {
		errs = append(errs, fmt.Errorf("closing eventfd: %w", err))
	}
	if err := unix.Close(p.epfd); err != nil {
		errs = append(errs, fmt.Errorf("closing epoll: %w", err))
	}
	p.entries = make(map[int]Entry)

	return errors.Join(errs...)
}
