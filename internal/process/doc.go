// Package process runs short-lived helper commands on behalf of hapt.
//
// The only helper today is ubus, used at startup to ask hostapd which
// stations are already associated with each radio:
//
//	ubus call hostapd.wlan0 get_clients
//
// Features:
//   - Per-call timeout with process-group kill
//   - Bounded stdout capture, stderr attached to exit errors
//   - get_clients JSON parsing
//
// Example usage:
//
//	q := process.NewAssociations("ubus", process.Config{Timeout: 5 * time.Second})
//	macs, err := q.Stations(ctx, "wlan0")
package process
