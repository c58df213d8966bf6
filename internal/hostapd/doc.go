// Package hostapd implements a client for the hostapd control interface.
//
// hostapd exposes one AF_UNIX datagram socket per radio under its control
// directory (usually /var/run/hostapd/<ifname>). A client binds its own
// socket, connects to the radio's socket and sends ATTACH; hostapd replies
// "OK\n" and from then on pushes unsolicited event frames:
//
//	<3>AP-STA-CONNECTED aa:bb:cc:dd:ee:ff
//	<3>AP-STA-DISCONNECTED aa:bb:cc:dd:ee:ff
//
// Only the two station events are decoded; every other event is returned as
// EventUnrecognized for the caller to ignore.
//
// # Local sockets
//
// hostapd replies with sendto(2) to the client's bound path, so the daemon
// must run as a user whose sockets hostapd can write to (root on OpenWrt).
// Each attach binds a fresh path including the pid and a nanosecond
// timestamp so a file left behind by a crashed run is never reused.
//
// # Usage
//
//	c, err := hostapd.Attach(ctx, hostapd.Config{}, "wlan0")
//	if err != nil {
//	    return err // wraps hostapd.ErrProtocol
//	}
//	defer c.Detach()
//
//	// after the poller reports c.Fd() readable:
//	ev, err := c.ReadEvent()
package hostapd
