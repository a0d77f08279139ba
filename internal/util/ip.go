package util

import (
	"net"
	"strings"
)

// IsValidCIDR validates a single IP address or CIDR notation.
func IsValidCIDR(entry string) bool {
	entry = strings.TrimSpace(entry)
	if ip := net.ParseIP(entry); ip != nil {
		return true
	}
	_, _, err := net.ParseCIDR(entry)
	return err == nil
}

// IPMatches reports whether ip equals a literal entry or falls inside a CIDR
// entry. Malformed input never matches.
func IPMatches(ip string, entry string) bool {
	addr := net.ParseIP(strings.TrimSpace(ip))
	if addr == nil {
		return false
	}
	entry = strings.TrimSpace(entry)
	if single := net.ParseIP(entry); single != nil {
		return addr.Equal(single)
	}
	_, ipNet, err := net.ParseCIDR(entry)
	if err != nil {
		return false
	}
	return ipNet.Contains(addr)
}

// IPAllowed reports whether ip matches any entry. An empty list allows all.
func IPAllowed(ip string, entries []string) bool {
	if len(entries) == 0 {
		return true
	}
	for _, e := range entries {
		if IPMatches(ip, e) {
			return true
		}
	}
	return false
}
