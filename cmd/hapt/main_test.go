package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/hapt/internal/hostapd/hostapdtest"
)

// writeScript creates an executable shell script standing in for ubus.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ubus")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil { //nolint:gosec // test helper must be executable
		t.Fatalf("writing script: %v", err)
	}
	return path
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// seeRecorder is a Home Assistant stand-in that records device_tracker.see bodies.
type seeRecorder struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func newSeeRecorder(t *testing.T) (*seeRecorder, *httptest.Server) {
	t.Helper()
	rec := &seeRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/services/device_tracker/see" {
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck // checked by assertions
			rec.mu.Lock()
			rec.bodies = append(rec.bodies, body)
			rec.mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return rec, srv
}

func (r *seeRecorder) devIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, b := range r.bodies {
		if id, ok := b["dev_id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// =============================================================================
// Flag Tests
// =============================================================================

func TestParseFlags(t *testing.T) {
	t.Setenv("HAPT_CONFIG", "")

	tests := []struct {
		name        string
		args        []string
		wantPath    string
		wantMonitor bool
		wantErr     bool
	}{
		{name: "defaults", wantPath: defaultConfigPath},
		{name: "monitor", args: []string{"--monitor"}, wantPath: defaultConfigPath, wantMonitor: true},
		{name: "config", args: []string{"--config", "/tmp/x.yaml"}, wantPath: "/tmp/x.yaml"},
		{name: "unknown flag", args: []string{"--bogus"}, wantErr: true},
		{name: "positional", args: []string{"extra"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			opts, err := parseFlags(tt.args, &out)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if opts.configPath != tt.wantPath || opts.monitor != tt.wantMonitor {
				t.Errorf("parseFlags() = %+v", opts)
			}
		})
	}
}

func TestParseFlags_Help(t *testing.T) {
	var out bytes.Buffer
	_, err := parseFlags([]string{"-h"}, &out)
	if !errors.Is(err, flag.ErrHelp) {
		t.Errorf("parseFlags(-h) error = %v, want flag.ErrHelp", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("HAPT_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("HAPT_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// =============================================================================
// Run Tests
// =============================================================================

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: "/nonexistent/path/config.yaml"}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingToken verifies validation failures stop startup.
func TestRun_MissingToken(t *testing.T) {
	t.Setenv("HAPT_HOMEASSISTANT_TOKEN", "")
	path := writeConfig(t, `
homeassistant:
  url: "http://127.0.0.1:1"
`)

	if err := run(context.Background(), options{configPath: path}); err == nil {
		t.Fatal("run() should fail without a Home Assistant token")
	}
}

// TestRun_OneShot reports the current associations of each radio and exits.
func TestRun_OneShot(t *testing.T) {
	t.Setenv("HAPT_HOMEASSISTANT_TOKEN", "")
	rec, ha := newSeeRecorder(t)

	ctrl := hostapdtest.ShortTempDir(t)
	hostapdtest.NewServer(t, ctrl, "wlan0")
	ubus := writeScript(t, `echo '{"clients":{"AA:BB:CC:DD:EE:01":{},"aa:bb:cc:dd:ee:02":{}}}'`+"\n")

	leases := filepath.Join(t.TempDir(), "dhcp.leases")
	if err := os.WriteFile(leases, []byte("1700000000 aa:bb:cc:dd:ee:01 192.168.1.10 laptop *\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	path := writeConfig(t, `
presence:
  device_id_prefix: wifi
hostapd:
  ctrl_dir: "`+ctrl+`"
  query_binary: "`+ubus+`"
homeassistant:
  url: "`+ha.URL+`"
  token: test-token
leases:
  file: "`+leases+`"
  domain: lan
logging:
  level: error
  output: stderr
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, options{configPath: path}); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	got := rec.devIDs()
	slices.Sort(got)
	want := []string{"wifi_aa_bb_cc_dd_ee_02", "wifi_laptop"}
	if !slices.Equal(got, want) {
		t.Errorf("dev_ids = %v, want %v", got, want)
	}
}

// TestRun_MonitorShutsDownOnCancel starts the loop and stops it with the context.
func TestRun_MonitorShutsDownOnCancel(t *testing.T) {
	t.Setenv("HAPT_HOMEASSISTANT_TOKEN", "")
	_, ha := newSeeRecorder(t)

	parent := hostapdtest.ShortTempDir(t)
	ctrl := filepath.Join(parent, "hostapd")
	if err := os.Mkdir(ctrl, 0o755); err != nil {
		t.Fatal(err)
	}
	wlan0 := hostapdtest.NewServer(t, ctrl, "wlan0")
	ubus := writeScript(t, `echo '{"clients":{}}'`+"\n")

	path := writeConfig(t, `
hostapd:
  ctrl_dir: "`+ctrl+`"
  local_dir: "`+parent+`"
  query_binary: "`+ubus+`"
homeassistant:
  url: "`+ha.URL+`"
  token: test-token
leases:
  file: "`+filepath.Join(parent, "dhcp.leases")+`"
database:
  enabled: true
  path: "`+filepath.Join(t.TempDir(), "journal.db")+`"
logging:
  level: error
  output: stderr
`)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, options{configPath: path, monitor: true}) }()

	if !wlan0.WaitAttached(1, 5*time.Second) {
		cancel()
		t.Fatal("monitor never attached to wlan0")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
	if !wlan0.WaitAttached(0, time.Second) {
		t.Error("wlan0 still attached after shutdown")
	}
}

func TestListRadios(t *testing.T) {
	dir := hostapdtest.ShortTempDir(t)
	hostapdtest.NewServer(t, dir, "wlan1")
	hostapdtest.NewServer(t, dir, "wlan0")
	if err := os.WriteFile(filepath.Join(dir, "notes"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	radios, err := listRadios(dir)
	if err != nil {
		t.Fatalf("listRadios() error = %v", err)
	}
	if !slices.Equal(radios, []string{"wlan0", "wlan1"}) {
		t.Errorf("listRadios() = %v", radios)
	}

	radios, err = listRadios(filepath.Join(dir, "missing"))
	if err != nil || radios != nil {
		t.Errorf("listRadios(missing) = %v, %v", radios, err)
	}
}
