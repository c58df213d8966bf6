// Package hostapdtest provides a fake hostapd control socket for tests.
package hostapdtest

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// Server simulates one radio's hostapd control socket.
//
// It answers ATTACH and DETACH with a configurable reply and can push
// unsolicited event frames to every attached client.
type Server struct {
	Radio string
	Path  string

	conn *net.UnixConn

	mu          sync.Mutex
	attachReply string
	detachReply string
	silent      bool
	attached    map[string]*net.UnixAddr
	received    []string

	done chan struct{}
	wg   sync.WaitGroup
}

// ShortTempDir returns a temp dir with a short path. sockaddr_un paths are
// limited to 108 bytes, which t.TempDir() can exceed for long test names.
func ShortTempDir(t testing.TB) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "hapt")
	if err != nil {
		t.Fatalf("creating temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// NewServer binds <dir>/<radio> and starts answering requests.
// The server is closed automatically when the test ends.
func NewServer(t testing.TB, dir, radio string) *Server {
	t.Helper()

	path := filepath.Join(dir, radio)
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		t.Fatalf("listening on %s: %v", path, err)
	}

	s := &Server{
		Radio:       radio,
		Path:        path,
		conn:        conn,
		attachReply: "OK\n",
		detachReply: "OK\n",
		attached:    make(map[string]*net.UnixAddr),
		done:        make(chan struct{}),
	}

	s.wg.Add(1)
	go s.serve(t)

	t.Cleanup(s.Close)
	return s
}

// SetAttachReply changes the reply sent to ATTACH.
func (s *Server) SetAttachReply(reply string) {
	s.mu.Lock()
	s.attachReply = reply
	s.mu.Unlock()
}

// SetDetachReply changes the reply sent to DETACH.
func (s *Server) SetDetachReply(reply string) {
	s.mu.Lock()
	s.detachReply = reply
	s.mu.Unlock()
}

// SetSilent makes the server swallow requests without replying.
func (s *Server) SetSilent(silent bool) {
	s.mu.Lock()
	s.silent = silent
	s.mu.Unlock()
}

func (s *Server) serve(t testing.TB) {
	defer s.wg.Done()

	buf := make([]byte, 4096)
	for {
		n, addr, err := s.conn.ReadFromUnix(buf)
		if err != nil {
			select {
			case <-s.done:
			default:
				if !errors.Is(err, net.ErrClosed) {
					t.Logf("fake hostapd %s: read error: %v", s.Radio, err)
				}
			}
			return
		}
		if addr == nil {
			continue
		}

		cmd := string(buf[:n])

		s.mu.Lock()
		s.received = append(s.received, cmd)
		var reply string
		switch cmd {
		case "ATTACH":
			reply = s.attachReply
			if reply == "OK\n" {
				s.attached[addr.Name] = addr
			}
		case "DETACH":
			reply = s.detachReply
			delete(s.attached, addr.Name)
		default:
			reply = "UNKNOWN COMMAND\n"
		}
		silent := s.silent
		s.mu.Unlock()

		if silent {
			continue
		}
		if _, err := s.conn.WriteToUnix([]byte(reply), addr); err != nil {
			t.Logf("fake hostapd %s: reply to %s: %v", s.Radio, addr.Name, err)
		}
	}
}

// Send pushes a raw frame to every attached client.
func (s *Server) Send(t testing.TB, frame string) {
	t.Helper()

	s.mu.Lock()
	addrs := make([]*net.UnixAddr, 0, len(s.attached))
	for _, a := range s.attached {
		addrs = append(addrs, a)
	}
	s.mu.Unlock()

	if len(addrs) == 0 {
		t.Fatalf("fake hostapd %s: no attached clients", s.Radio)
	}
	for _, a := range addrs {
		if _, err := s.conn.WriteToUnix([]byte(frame), a); err != nil {
			t.Fatalf("fake hostapd %s: send to %s: %v", s.Radio, a.Name, err)
		}
	}
}

// Connected sends an AP-STA-CONNECTED event for mac.
func (s *Server) Connected(t testing.TB, mac string) {
	t.Helper()
	s.Send(t, "<3>AP-STA-CONNECTED "+mac)
}

// Disconnected sends an AP-STA-DISCONNECTED event for mac.
func (s *Server) Disconnected(t testing.TB, mac string) {
	t.Helper()
	s.Send(t, "<3>AP-STA-DISCONNECTED "+mac)
}

// Attached returns the number of clients currently attached.
func (s *Server) Attached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.attached)
}

// Received returns every command received so far.
func (s *Server) Received() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.received...)
}

// WaitAttached polls until n clients are attached or the timeout expires.
func (s *Server) WaitAttached(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.Attached() == n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return s.Attached() == n
}

// Close stops the server and removes its socket file. Safe to call twice.
func (s *Server) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	s.conn.Close()
	s.wg.Wait()
	os.Remove(s.Path)
}
