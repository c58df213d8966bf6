// Package notify names devices and fans presence transitions out to sinks.
//
// A Dispatcher sits between the presence tracker and the outside world. For
// each transition it builds the device label from the DHCP lease table:
//
//	dev_id     lease host name, else the MAC with ':' replaced by '_',
//	           prefixed with "<prefix>_" when a prefix is configured
//	host_name  "<lease name>.<domain>" when a domain is configured,
//	           else the bare lease name (possibly empty)
//
// Every sink sees every transition. One sink failing does not stop the
// others; the failures are joined into a single error wrapping
// ErrNotification which the tracker logs.
package notify
