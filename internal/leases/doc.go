// Package leases resolves device MACs to DHCP host names using the dnsmasq
// lease file.
//
// The file is parsed lazily on Lookup. While Watch is running the parsed
// table is cached and invalidated by fsnotify events on the file; without
// Watch every Lookup reads the file again.
//
// A missing or unreadable lease file is not an error to callers. Lookup just
// reports the MAC as unknown and the device is named by its MAC instead.
package leases
