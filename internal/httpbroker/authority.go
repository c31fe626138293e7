package httpbroker

import (
	"fmt"
	"net/url"
)

// authorityOf extracts host:port from rawURL, filling in the default
// port (443 for https, 80 for http/plaintext) when omitted, per
// SPEC_FULL.md §4.6's pool key.
func authorityOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	if u.Port() != "" {
		return u.Host, nil
	}

	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return fmt.Sprintf("%s:%s", u.Hostname(), port), nil
}
