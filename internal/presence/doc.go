// Package presence turns per-radio association events into home/away
// transitions.
//
// A device is home while at least one radio reports it associated. Roaming
// between radios of the same network therefore produces no transitions:
//
//	connect wlan0     -> Arrived
//	connect wlan1     -> (none)
//	disconnect wlan0  -> (none)
//	disconnect wlan1  -> Departed
//
// The tracker owns no sockets and does no I/O beyond calling its Sink, which
// keeps it testable without hostapd.
package presence
