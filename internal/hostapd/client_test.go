package hostapd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/hapt/internal/hostapd/hostapdtest"
)

// testSetup returns a config with separate short control and local dirs.
func testSetup(t *testing.T) Config {
	t.Helper()
	return Config{
		CtrlDir:      hostapdtest.ShortTempDir(t),
		LocalDir:     hostapdtest.ShortTempDir(t),
		ReplyTimeout: 500 * time.Millisecond,
	}
}

// localSockets lists hapt client sockets left in dir.
func localSockets(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, localPrefix+"-*"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	return matches
}

// =============================================================================
// Attach / Detach Tests
// =============================================================================

func TestAttachDetach(t *testing.T) {
	cfg := testSetup(t)
	server := hostapdtest.NewServer(t, cfg.CtrlDir, "wlan0")

	client, err := Attach(context.Background(), cfg, "wlan0")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if server.Attached() != 1 {
		t.Errorf("server attached = %d, want 1", server.Attached())
	}
	if client.Fd() < 0 {
		t.Errorf("Fd() = %d, want valid descriptor", client.Fd())
	}
	if client.Radio() != "wlan0" {
		t.Errorf("Radio() = %q, want wlan0", client.Radio())
	}
	if !strings.HasPrefix(filepath.Base(client.LocalPath()), "hapt-wlan0-") {
		t.Errorf("LocalPath() = %q, want hapt-wlan0- prefix", client.LocalPath())
	}
	info, err := os.Stat(client.LocalPath())
	if err != nil {
		t.Fatalf("local socket missing: %v", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		t.Errorf("local path mode = %v, want socket", info.Mode())
	}
	if !client.Stats().Attached {
		t.Error("Stats().Attached = false, want true")
	}

	if err := client.Detach(); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}

	if server.Attached() != 0 {
		t.Errorf("server attached after detach = %d, want 0", server.Attached())
	}
	if _, err := os.Stat(client.LocalPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("local socket still present after Detach: %v", err)
	}
	if client.Fd() != -1 {
		t.Errorf("Fd() after Detach = %d, want -1", client.Fd())
	}
	if client.Stats().Attached {
		t.Error("Stats().Attached = true after Detach")
	}

	got := server.Received()
	if len(got) != 2 || got[0] != "ATTACH" || got[1] != "DETACH" {
		t.Errorf("server received %v, want [ATTACH DETACH]", got)
	}
}

func TestDetach_Idempotent(t *testing.T) {
	cfg := testSetup(t)
	server := hostapdtest.NewServer(t, cfg.CtrlDir, "wlan0")

	client, err := Attach(context.Background(), cfg, "wlan0")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	if err := client.Detach(); err != nil {
		t.Fatalf("first Detach() error = %v", err)
	}
	if err := client.Detach(); err != nil {
		t.Errorf("second Detach() error = %v, want nil", err)
	}

	detaches := 0
	for _, cmd := range server.Received() {
		if cmd == "DETACH" {
			detaches++
		}
	}
	if detaches != 1 {
		t.Errorf("server received %d DETACH, want 1", detaches)
	}
}

func TestAttach_ErrorReply(t *testing.T) {
	cfg := testSetup(t)
	server := hostapdtest.NewServer(t, cfg.CtrlDir, "wlan0")
	server.SetAttachReply("ERROR\n")

	client, err := Attach(context.Background(), cfg, "wlan0")
	if err == nil {
		client.Detach()
		t.Fatal("Attach() expected error for ERROR reply")
	}
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("Attach() error = %v, want ErrProtocol", err)
	}
	if !strings.Contains(err.Error(), `"ERROR\n"`) {
		t.Errorf("Attach() error = %q, want the reply quoted", err)
	}
	if left := localSockets(t, cfg.LocalDir); len(left) != 0 {
		t.Errorf("leaked local sockets: %v", left)
	}
}

func TestAttach_NoServer(t *testing.T) {
	cfg := testSetup(t)

	_, err := Attach(context.Background(), cfg, "wlan7")
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Attach() error = %v, want ErrProtocol", err)
	}
	if left := localSockets(t, cfg.LocalDir); len(left) != 0 {
		t.Errorf("leaked local sockets: %v", left)
	}
}

func TestAttach_Timeout(t *testing.T) {
	cfg := testSetup(t)
	cfg.ReplyTimeout = 100 * time.Millisecond
	server := hostapdtest.NewServer(t, cfg.CtrlDir, "wlan0")
	server.SetSilent(true)

	start := time.Now()
	_, err := Attach(context.Background(), cfg, "wlan0")
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Attach() error = %v, want ErrProtocol", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Attach() took %v, want about %v", elapsed, cfg.ReplyTimeout)
	}
	if left := localSockets(t, cfg.LocalDir); len(left) != 0 {
		t.Errorf("leaked local sockets: %v", left)
	}
}

func TestAttach_ContextCancelled(t *testing.T) {
	cfg := testSetup(t)
	hostapdtest.NewServer(t, cfg.CtrlDir, "wlan0")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Attach(ctx, cfg, "wlan0")
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("Attach() error = %v, want ErrProtocol", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Attach() error = %v, want context.Canceled in chain", err)
	}
	if left := localSockets(t, cfg.LocalDir); len(left) != 0 {
		t.Errorf("leaked local sockets: %v", left)
	}
}

func TestAttach_InvalidRadio(t *testing.T) {
	cfg := testSetup(t)

	for _, radio := range []string{"", ".", "..", "wlan0/../x", "wl\x00an"} {
		_, err := Attach(context.Background(), cfg, radio)
		if !errors.Is(err, ErrInvalidRadio) {
			t.Errorf("Attach(%q) error = %v, want ErrInvalidRadio", radio, err)
		}
	}
}

func TestAttach_RemovesStaleSocketFile(t *testing.T) {
	cfg := testSetup(t)
	hostapdtest.NewServer(t, cfg.CtrlDir, "wlan0")

	first, err := Attach(context.Background(), cfg, "wlan0")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	defer first.Detach()

	second, err := Attach(context.Background(), cfg, "wlan0")
	if err != nil {
		t.Fatalf("second Attach() error = %v", err)
	}
	defer second.Detach()

	if first.LocalPath() == second.LocalPath() {
		t.Errorf("two attaches share local path %q", first.LocalPath())
	}
}

// =============================================================================
// Receive Tests
// =============================================================================

func TestReadEvent(t *testing.T) {
	cfg := testSetup(t)
	server := hostapdtest.NewServer(t, cfg.CtrlDir, "wlan0")

	client, err := Attach(context.Background(), cfg, "wlan0")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	defer client.Detach()

	server.Connected(t, "AA:AA:AA:AA:AA:AA")
	server.Send(t, "<3>CTRL-EVENT-EAP-STARTED aa:aa:aa:aa:aa:aa")
	server.Send(t, "<3>AP-STA-CONNECTED")
	server.Disconnected(t, "aa:aa:aa:aa:aa:aa")

	ev, err := client.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent() error = %v", err)
	}
	if ev.Kind != EventConnected || ev.MAC != "aa:aa:aa:aa:aa:aa" {
		t.Errorf("first event = %+v, want connected aa:aa:aa:aa:aa:aa", ev)
	}

	ev, err = client.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent() error = %v", err)
	}
	if ev.Kind != EventUnrecognized {
		t.Errorf("second event kind = %v, want unrecognized", ev.Kind)
	}

	if _, err = client.ReadEvent(); !errors.Is(err, ErrDecode) {
		t.Errorf("third ReadEvent() error = %v, want ErrDecode", err)
	}

	ev, err = client.ReadEvent()
	if err != nil {
		t.Fatalf("ReadEvent() error = %v", err)
	}
	if ev.Kind != EventDisconnected {
		t.Errorf("fourth event kind = %v, want disconnected", ev.Kind)
	}

	stats := client.Stats()
	if stats.FramesRx != 4 {
		t.Errorf("FramesRx = %d, want 4", stats.FramesRx)
	}
	if stats.EventsRx != 2 {
		t.Errorf("EventsRx = %d, want 2", stats.EventsRx)
	}
	if stats.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", stats.DecodeErrors)
	}
}

func TestReceive_AfterDetach(t *testing.T) {
	cfg := testSetup(t)
	hostapdtest.NewServer(t, cfg.CtrlDir, "wlan0")

	client, err := Attach(context.Background(), cfg, "wlan0")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	client.Detach()

	if _, err := client.Receive(); !errors.Is(err, ErrClosed) {
		t.Errorf("Receive() after Detach error = %v, want ErrClosed", err)
	}
}

func TestDetach_BadReplyStillReleases(t *testing.T) {
	cfg := testSetup(t)
	server := hostapdtest.NewServer(t, cfg.CtrlDir, "wlan0")

	client, err := Attach(context.Background(), cfg, "wlan0")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	server.SetDetachReply("FAIL\n")
	if err := client.Detach(); err != nil {
		t.Errorf("Detach() error = %v, want nil for best-effort handshake", err)
	}
	if left := localSockets(t, cfg.LocalDir); len(left) != 0 {
		t.Errorf("leaked local sockets: %v", left)
	}
}

func TestDetach_ServerGone(t *testing.T) {
	cfg := testSetup(t)
	cfg.ReplyTimeout = 100 * time.Millisecond
	server := hostapdtest.NewServer(t, cfg.CtrlDir, "wlan0")

	client, err := Attach(context.Background(), cfg, "wlan0")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	server.Close()

	if err := client.Detach(); err != nil {
		t.Errorf("Detach() error = %v, want nil", err)
	}
	if left := localSockets(t, cfg.LocalDir); len(left) != 0 {
		t.Errorf("leaked local sockets: %v", left)
	}
}

func TestDetach_SkipsQueuedEvents(t *testing.T) {
	cfg := testSetup(t)
	server := hostapdtest.NewServer(t, cfg.CtrlDir, "wlan0")

	client, err := Attach(context.Background(), cfg, "wlan0")
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}

	server.Connected(t, "aa:aa:aa:aa:aa:aa")

	if err := client.Detach(); err != nil {
		t.Fatalf("Detach() error = %v", err)
	}
	if got := client.Stats().SkippedReplies; got != 1 {
		t.Errorf("SkippedReplies = %d, want 1", got)
	}
}

func TestLocalSocketPath(t *testing.T) {
	a := localSocketPath("/var/run", "wlan0")
	time.Sleep(time.Microsecond)
	b := localSocketPath("/var/run", "wlan0")

	if a == b {
		t.Errorf("localSocketPath returned %q twice", a)
	}
	if filepath.Dir(a) != "/var/run" {
		t.Errorf("dir = %q, want /var/run", filepath.Dir(a))
	}
	if !strings.Contains(a, "-wlan0-") {
		t.Errorf("path %q does not name the radio", a)
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.CtrlDir != "/var/run/hostapd" {
		t.Errorf("CtrlDir = %q, want /var/run/hostapd", cfg.CtrlDir)
	}
	if cfg.LocalDir != "/var/run" {
		t.Errorf("LocalDir = %q, want /var/run", cfg.LocalDir)
	}
	if cfg.ReplyTimeout != defaultReplyTimeout {
		t.Errorf("ReplyTimeout = %v, want %v", cfg.ReplyTimeout, defaultReplyTimeout)
	}
}
