// Package monitor runs hapt's event loop.
//
// A Monitor owns one poller, one watcher and every attached hostapd client.
// The watcher reports radios appearing and disappearing under the control
// directory; the monitor attaches to each allowed radio, registers its
// socket with the poller, and forwards station events to the presence
// tracker.
//
// Failure model:
//
//   - A control socket that hangs up or fails a read is dropped: it is
//     unregistered and detached, and the loop carries on.
//   - A malformed event frame or change record is logged and skipped.
//   - Anything else, such as the discovery descriptor failing, ends Run
//     with an error. The caller must then Close the monitor.
//
// Everything except the cancellation goroutine started by Run happens on
// the goroutine that calls Setup and Run.
package monitor
