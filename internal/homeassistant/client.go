package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/hapt/internal/infrastructure/config"
	"github.com/nerrad567/hapt/internal/notify"
)

const (
	// DefaultTimeout bounds one service call.
	DefaultTimeout = 10 * time.Second

	seePath    = "/api/services/device_tracker/see"
	statusPath = "/api/"

	sourceTypeRouter = "router"

	// maxErrorBody is how much of an error response is kept for the message.
	maxErrorBody = 512
)

// SeeRequest is the device_tracker.see service payload.
type SeeRequest struct {
	MAC          string `json:"mac"`
	DeviceID     string `json:"dev_id"`
	HostName     string `json:"host_name"`
	SourceType   string `json:"source_type"`
	ConsiderHome int    `json:"consider_home"`
}

// Client is a Home Assistant REST client.
//
// Thread Safety:
//   - Safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a client.
//
// Parameters:
//   - cfg: Base URL, token and per-request timeout (0 uses DefaultTimeout)
func NewClient(cfg config.HomeAssistantConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Name implements notify.Sink.
func (c *Client) Name() string { return "homeassistant" }

// Notify implements notify.Sink.
func (c *Client) Notify(ctx context.Context, n notify.Notification) error {
	return c.See(ctx, SeeRequest{
		MAC:          n.MAC,
		DeviceID:     n.DeviceID,
		HostName:     n.HostName,
		SourceType:   sourceTypeRouter,
		ConsiderHome: n.Timeout,
	})
}

// See calls device_tracker.see.
//
// Returns:
//   - error: wraps ErrUnreachable or ErrRequestFailed
func (c *Client) See(ctx context.Context, req SeeRequest) error {
	if req.SourceType == "" {
		req.SourceType = sourceTypeRouter
	}
	return c.post(ctx, seePath, req)
}

// Ping checks that the API is up and the token is accepted.
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+statusPath, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(httpReq, statusPath)
}

func (c *Client) post(ctx context.Context, path string, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal data: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.do(httpReq, path)
}

func (c *Client) do(req *http.Request, path string) error {
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnreachable, path, err)
	}
	defer func() {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // best-effort drain
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // message is best-effort
		return fmt.Errorf("%w: %s: status %d: %s", ErrRequestFailed, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
