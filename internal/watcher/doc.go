// Package watcher discovers hostapd radios at runtime with inotify.
//
// hostapd creates one socket per radio in its control directory and removes
// it when the radio goes down. The control directory itself may not exist
// until hostapd first starts, and disappears if hostapd is restarted with a
// clean /var/run. Two watches cover this:
//
//	outer: parent directory (/var/run), filtered to the control dir name
//	inner: control directory (/var/run/hostapd), only while it exists
//
// The watcher reports radio sockets through a Handler and does no attaching
// itself. When the control directory vanishes the inner watch is dropped but
// radios are not removed; their sockets fail on their own.
package watcher
