package mqtt

import (
	"context"
	"fmt"
	"sort"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/hapt/internal/infrastructure/config"
)

// Client publishes hapt state to an MQTT broker. It never subscribes.
//
// Every retained presence and radio payload is remembered per topic, and
// the latest one for each topic is published again after a reconnect. A
// broker restarted without persistence, or a transition that happened while
// the link was down, therefore converges to hapt's current view.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	client  pahomqtt.Client
	cfg     config.MQTTConfig
	session string

	mu           sync.RWMutex
	connected    bool
	onConnect    func()
	onDisconnect func(err error)

	// retained holds the newest retained payload per topic, for replay.
	retainedMu sync.Mutex
	retained   map[string][]byte
}

// Connect dials the broker and announces hapt as online.
//
// The broker sees hapt/system/status flip to online on every (re)connect,
// and the Last Will flips it to offline if the daemon dies without Close.
//
// Parameters:
//   - ctx: Bounds the initial connection attempt
//   - cfg: Broker, credentials, QoS and reconnect backoff
//   - session: Identifier of this daemon run, included in every payload
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionFailed wrapping the cause or the context error
func Connect(ctx context.Context, cfg config.MQTTConfig, session string) (*Client, error) {
	c := &Client{
		cfg:      cfg,
		session:  session,
		retained: make(map[string][]byte),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID, session)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultConnectTimeout)
		defer cancel()
	}
	select {
	case <-token.Done():
	case <-ctx.Done():
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %s:%d: %w", ErrConnectionFailed, cfg.Broker.Host, cfg.Broker.Port, err)
	}

	// The connect handler runs on its own goroutine and may still be pending.
	c.setConnected(true)
	return c, nil
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) handleConnect() {
	c.setConnected(true)
	c.client.Publish(Topics{}.SystemStatus(), c.qos(), true, buildOnlinePayload(c.cfg.Broker.ClientID, c.session))
	c.replay()

	c.mu.RLock()
	callback := c.onConnect
	c.mu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// remember records payload as the current retained state of topic.
// An empty payload clears the topic on the broker, so it is forgotten.
func (c *Client) remember(topic string, payload []byte) {
	c.retainedMu.Lock()
	defer c.retainedMu.Unlock()

	if c.retained == nil {
		c.retained = make(map[string][]byte)
	}
	if len(payload) == 0 {
		delete(c.retained, topic)
		return
	}
	c.retained[topic] = payload
}

// retainedTopics returns the remembered topics in order.
func (c *Client) retainedTopics() []string {
	c.retainedMu.Lock()
	defer c.retainedMu.Unlock()

	topics := make([]string, 0, len(c.retained))
	for topic := range c.retained {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// replay republishes the remembered retained state without waiting for acks.
func (c *Client) replay() {
	for _, topic := range c.retainedTopics() {
		c.retainedMu.Lock()
		payload, ok := c.retained[topic]
		c.retainedMu.Unlock()
		if ok {
			c.client.Publish(topic, c.qos(), true, payload)
		}
	}
}

// qos returns the configured QoS. Config validation keeps it within 0..2.
func (c *Client) qos() byte {
	return byte(c.cfg.QoS) //nolint:gosec // validated by config
}

// Close announces a graceful offline status and disconnects.
// Safe on a Client that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(Topics{}.SystemStatus(), c.qos(), true,
			buildOfflinePayload(c.cfg.Broker.ClientID, c.session))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports whether the broker link is currently up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback run after every connect and reconnect,
// once the online status and retained state have been queued.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the broker link drops.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}
