package tenant

import (
	"net"
	"strings"
)

// SubdomainFromHost extracts the leftmost DNS label from a request host.
// A port suffix is stripped first. Hosts with fewer than three labels (bare
// domains, localhost, IP literals) carry no subdomain and return "".
//
// Matching is exact-label only. Substring matching against deployment
// hostnames was an earlier source of tenant collisions and is deliberately
// not supported.
func SubdomainFromHost(host string) string {
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return ""
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	if net.ParseIP(host) != nil {
		return ""
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return ""
	}

	return labels[0]
}

// NormalizeSubdomain lowercases and trims an explicit override value so it
// compares equal to registry subdomains.
func NormalizeSubdomain(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
