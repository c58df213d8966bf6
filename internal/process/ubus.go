package process

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// getClientsReply is the subset of `ubus call hostapd.<if> get_clients`
// output hapt reads. Per-client details (auth, assoc, signal) are ignored.
type getClientsReply struct {
	Clients map[string]json.RawMessage `json:"clients"`
}

// Associations queries hostapd over ubus for the stations currently
// associated with one radio.
//
// It is used only for the startup reconciliation pass; live changes arrive
// over the control socket.
type Associations struct {
	runner *Runner
}

// NewAssociations creates an association query backed by the ubus binary.
//
// Parameters:
//   - binary: ubus executable (usually "ubus")
//   - cfg: Timeout and environment for each call; Binary is overwritten
func NewAssociations(binary string, cfg Config) *Associations {
	cfg.Binary = binary
	if cfg.Name == "" {
		cfg.Name = "ubus"
	}
	return &Associations{runner: NewRunner(cfg)}
}

// SetLogger sets the logger used by the underlying runner.
func (a *Associations) SetLogger(logger Logger) {
	a.runner.SetLogger(logger)
}

// Stations returns the lower-cased MACs associated with radio, sorted.
func (a *Associations) Stations(ctx context.Context, radio string) ([]string, error) {
	out, err := a.runner.Run(ctx, "call", "hostapd."+radio, "get_clients")
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", radio, err)
	}

	macs, err := ParseClients(out)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", radio, err)
	}
	return macs, nil
}

// ParseClients extracts station MACs from a get_clients JSON reply.
//
// Returns:
//   - []string: Lower-cased MACs in sorted order (empty when no clients)
//   - error: ErrMalformedOutput if the reply is not a JSON object
func ParseClients(data []byte) ([]string, error) {
	var reply getClientsReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedOutput, err)
	}

	macs := make([]string, 0, len(reply.Clients))
	for mac := range reply.Clients {
		macs = append(macs, strings.ToLower(mac))
	}
	sort.Strings(macs)

	return macs, nil
}
