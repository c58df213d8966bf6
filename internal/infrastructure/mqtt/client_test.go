package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/hapt/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
// Broker tests need a Mosquitto broker at 127.0.0.1:1883 and skip without one.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "hapt-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// requireBroker skips the test when no broker is listening.
func requireBroker(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 500*time.Millisecond)
	if err != nil {
		t.Skip("no MQTT broker at 127.0.0.1:1883")
	}
	conn.Close()
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		builder  func() string
		expected string
	}{
		{
			name:     "Presence",
			builder:  func() string { return Topics{}.Presence("laptop") },
			expected: "hapt/presence/laptop",
		},
		{
			name:     "Presence with MAC-derived id",
			builder:  func() string { return Topics{}.Presence("aa_bb_cc_dd_ee_ff") },
			expected: "hapt/presence/aa_bb_cc_dd_ee_ff",
		},
		{
			name:     "Presence escapes wildcards",
			builder:  func() string { return Topics{}.Presence("a/b+c#") },
			expected: "hapt/presence/a_b_c_",
		},
		{
			name:     "RadioStatus",
			builder:  func() string { return Topics{}.RadioStatus("wlan0") },
			expected: "hapt/radio/wlan0/status",
		},
		{
			name:     "SystemStatus",
			builder:  func() string { return Topics{}.SystemStatus() },
			expected: "hapt/system/status",
		},
		{
			name:     "AllPresence",
			builder:  func() string { return Topics{}.AllPresence() },
			expected: "hapt/presence/+",
		},
		{
			name:     "AllTopics",
			builder:  func() string { return Topics{}.AllTopics() },
			expected: "hapt/#",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.builder(); got != tt.expected {
				t.Errorf("got %q, want %q", got, tt.expected)
			}
		})
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth = config.MQTTAuthConfig{Username: "hapt", Password: "secret"}

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "hapt-test" {
		t.Errorf("ClientID = %q, want hapt-test", opts.ClientID)
	}
	if opts.Username != "hapt" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want hapt/secret", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil {
		t.Error("TLSConfig set without TLS enabled")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %v, want ssl://127.0.0.1:8883", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLSConfig missing or below minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := pahomqtt.NewClientOptions()
	configureLWT(opts, "hapt", "session-1")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false")
	}
	if opts.WillTopic != "hapt/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("Will retained=%v qos=%d, want true/1", opts.WillRetained, opts.WillQos)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if p.Status != statusOffline || p.Reason != reasonUnexpected || p.Session != "session-1" {
		t.Errorf("will payload = %+v", p)
	}
}

func TestStatusPayloads(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus string
		wantReason string
	}{
		{"online", buildOnlinePayload("hapt", "s"), statusOnline, ""},
		{"offline", buildOfflinePayload("hapt", "s"), statusOffline, reasonShutdown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p statusPayload
			if err := json.Unmarshal([]byte(tt.payload), &p); err != nil {
				t.Fatalf("payload is not JSON: %v", err)
			}
			if p.Status != tt.wantStatus || p.Reason != tt.wantReason {
				t.Errorf("payload = %+v, want status %q reason %q", p, tt.wantStatus, tt.wantReason)
			}
			if p.ClientID != "hapt" {
				t.Errorf("ClientID = %q, want hapt", p.ClientID)
			}
			if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
				t.Errorf("Timestamp %q is not RFC3339", p.Timestamp)
			}
			if strings.Contains(tt.payload, `"reason":""`) {
				t.Error("empty reason not omitted")
			}
		})
	}
}

// =============================================================================
// Disconnected Client Tests
// =============================================================================

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v, want nil", err)
	}
}

func TestHealthCheck_NotConnected(t *testing.T) {
	client := &Client{}

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "hapt/test", []byte("x"), 3, ErrInvalidQoS},
		{"payload too large", "hapt/test", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"not connected", "hapt/test", []byte("x"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := client.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPublishPresence_Validation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	if err := client.PublishPresence(PresenceMessage{MAC: "aa:bb:cc:dd:ee:ff"}); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("PublishPresence() without dev_id error = %v, want ErrInvalidTopic", err)
	}
	if err := client.PublishPresence(PresenceMessage{DeviceID: "laptop", State: StateHome}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishPresence() error = %v, want ErrNotConnected", err)
	}
	if err := client.PublishRadioStatus("", true); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("PublishRadioStatus() without radio error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishRetained_RemembersWhileDisconnected(t *testing.T) {
	client := &Client{cfg: testConfig()}

	if err := client.PublishRadioStatus("wlan0", true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("PublishRadioStatus() error = %v, want ErrNotConnected", err)
	}
	if err := client.PublishPresence(PresenceMessage{DeviceID: "laptop", State: StateHome}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("PublishPresence() error = %v, want ErrNotConnected", err)
	}
	if err := client.PublishPresence(PresenceMessage{DeviceID: "laptop", State: StateNotHome}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("PublishPresence() error = %v, want ErrNotConnected", err)
	}

	topics := client.retainedTopics()
	want := []string{Topics{}.Presence("laptop"), Topics{}.RadioStatus("wlan0")}
	if strings.Join(topics, ",") != strings.Join(want, ",") {
		t.Fatalf("retainedTopics() = %v, want %v", topics, want)
	}

	// Only the newest state per topic is kept.
	var msg PresenceMessage
	if err := json.Unmarshal(client.retained[Topics{}.Presence("laptop")], &msg); err != nil {
		t.Fatalf("remembered payload: %v", err)
	}
	if msg.State != StateNotHome {
		t.Errorf("remembered state = %q, want %q", msg.State, StateNotHome)
	}
}

func TestPublishRetained_Validation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	if err := client.PublishRetained("", []byte("x")); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("PublishRetained() error = %v, want ErrInvalidTopic", err)
	}
	if err := client.PublishRetained("hapt/test", make([]byte, maxPayloadSize+1)); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("PublishRetained() error = %v, want ErrPublishFailed", err)
	}
	if topics := client.retainedTopics(); len(topics) != 0 {
		t.Errorf("rejected payloads were remembered: %v", topics)
	}

	client.remember("hapt/test", []byte("x"))
	client.remember("hapt/test", nil)
	if topics := client.retainedTopics(); len(topics) != 0 {
		t.Errorf("cleared topic still remembered: %v", topics)
	}
}

func TestConnect_Timeout(t *testing.T) {
	// A listener that accepts but never answers CONNECT.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
		}
	}()

	cfg := testConfig()
	cfg.Broker.Port = ln.Addr().(*net.TCPAddr).Port

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if _, err := Connect(ctx, cfg, "timeout"); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

// =============================================================================
// Broker Tests
// =============================================================================

func TestConnect(t *testing.T) {
	requireBroker(t)

	client, err := Connect(context.Background(), testConfig(), "test-session")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestClose(t *testing.T) {
	requireBroker(t)

	client, err := Connect(context.Background(), testConfig(), "test-session")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close(), want false")
	}
}

func TestPublishPresence_Roundtrip(t *testing.T) {
	requireBroker(t)

	cfg := testConfig()
	cfg.Broker.ClientID = "hapt-test-pub"
	client, err := Connect(context.Background(), cfg, "roundtrip")
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	// A plain paho subscriber stands in for a consumer.
	subOpts := pahomqtt.NewClientOptions().AddBroker("tcp://127.0.0.1:1883").SetClientID("hapt-test-sub")
	sub := pahomqtt.NewClient(subOpts)
	if tok := sub.Connect(); !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		t.Fatalf("subscriber connect failed: %v", tok.Error())
	}
	defer sub.Disconnect(100)

	var mu sync.Mutex
	var got []PresenceMessage
	received := make(chan struct{}, 4)
	topic := Topics{}.Presence("hapt-roundtrip")
	tok := sub.Subscribe(topic, 1, func(_ pahomqtt.Client, m pahomqtt.Message) {
		var msg PresenceMessage
		if err := json.Unmarshal(m.Payload(), &msg); err == nil {
			mu.Lock()
			got = append(got, msg)
			mu.Unlock()
			received <- struct{}{}
		}
	})
	if !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
		t.Fatalf("subscribe failed: %v", tok.Error())
	}

	err = client.PublishPresence(PresenceMessage{
		MAC:          "aa:bb:cc:dd:ee:ff",
		DeviceID:     "hapt-roundtrip",
		State:        StateHome,
		ConsiderHome: 86400,
	})
	if err != nil {
		t.Fatalf("PublishPresence() error = %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-received:
		case <-deadline:
			t.Fatal("presence message not received")
		}
		mu.Lock()
		last := got[len(got)-1]
		mu.Unlock()
		if last.Session == "roundtrip" {
			if last.State != StateHome || last.ConsiderHome != 86400 {
				t.Errorf("received %+v", last)
			}
			break
		}
	}

	// Clear the retained message.
	client.Publish(topic, nil, 1, true) //nolint:errcheck // best-effort cleanup
}
