package leases

import "errors"

// ErrMalformedLine is returned by ParseLine for a line that is not a dnsmasq lease.
var ErrMalformedLine = errors.New("leases: malformed line")
