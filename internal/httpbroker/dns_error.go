package httpbroker

import (
	"errors"
	"fmt"
	"net"
)

// DnsError is the structured form SPEC_FULL.md §4.6 requires for DNS
// resolution failures surfaced by the broker.
type DnsError struct {
	RCode    string
	InfoCode string
}

func (e *DnsError) Error() string {
	return fmt.Sprintf("dns error: rcode=%s info_code=%s", e.RCode, e.InfoCode)
}

// AsDnsError converts a net.DNSError into the broker's structured form,
// returning ok=false if err is not a DNS failure.
func AsDnsError(err error) (*DnsError, bool) {
	var dnsErr *net.DNSError
	if !errors.As(err, &dnsErr) {
		return nil, false
	}

	rcode := "SERVFAIL"
	switch {
	case dnsErr.IsNotFound:
		rcode = "NXDOMAIN"
	case dnsErr.IsTimeout:
		rcode = "TIMEOUT"
	case dnsErr.IsTemporary:
		rcode = "TEMPORARY"
	}

	return &DnsError{RCode: rcode, InfoCode: dnsErr.Err}, true
}
