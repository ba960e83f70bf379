// Package network extracts request provenance behind reverse proxies.
package network

import (
	"net"
	"net/http"
	"strings"
)

// GetClientIP returns the address a request came from.
//
// The first parseable address in X-Forwarded-For wins, then X-Real-IP, then
// the host part of RemoteAddr. Header values that do not parse as an IP are
// skipped. The result is in canonical form, so "::ffff:10.0.0.1" and
// "10.0.0.1" compare equal. An unparseable RemoteAddr is returned as is.
func GetClientIP(r *http.Request) string {
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := parseIP(hop); ip != "" {
			return ip
		}
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if ip := parseIP(host); ip != "" {
		return ip
	}
	return host
}

// parseIP accepts a bare address, a bracketed IPv6 address, or either with
// a port, and returns the canonical address or "".
func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		s = h
	}
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.String()
}
