package utils

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ParseHostNoPort returns the host part (no port) from strings like "ip:port", "[v6]:port", or "ip".
func ParseHostNoPort(s string) string {
	if s == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return s
}

// FirstForwardedFor returns the left-most address of an X-Forwarded-For value.
func FirstForwardedFor(xff string) string {
	first, _, _ := strings.Cut(xff, ",")
	return strings.TrimSpace(first)
}

// ClientIP resolves the real client IP. Proxy headers (CF-Connecting-IP, then
// the first X-Forwarded-For entry, then X-Real-IP) are honored only when the
// direct peer is one of the trusted proxies; otherwise RemoteAddr is used.
func ClientIP(r *http.Request, trustedProxies *IPMatcher) string {
	remote := ParseHostNoPort(r.RemoteAddr)
	if trustedProxies.IsEmpty() || !trustedProxies.Allow(remote) {
		return remote
	}
	for _, v := range []string{
		strings.TrimSpace(r.Header.Get("CF-Connecting-IP")),
		FirstForwardedFor(r.Header.Get("X-Forwarded-For")),
		strings.TrimSpace(r.Header.Get("X-Real-IP")),
	} {
		if ip := ParseHostNoPort(v); ip != "" {
			return ip
		}
	}
	return remote
}

// IPMatcher matches addresses against a list of IPs and CIDRs. A bare IP is
// stored as a single-address prefix.
type IPMatcher struct {
	prefixes []netip.Prefix
}

func NewIPMatcher(list []string) *IPMatcher {
	m := &IPMatcher{}
	for _, raw := range list {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		if p, err := netip.ParsePrefix(s); err == nil {
			m.prefixes = append(m.prefixes, p.Masked())
			continue
		}
		if a, err := netip.ParseAddr(s); err == nil {
			a = a.Unmap()
			m.prefixes = append(m.prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return m
}

// IsEmpty reports whether nothing was configured. A nil matcher is empty.
func (m *IPMatcher) IsEmpty() bool {
	return m == nil || len(m.prefixes) == 0
}

func (m *IPMatcher) Allow(ipStr string) bool {
	if m == nil {
		return false
	}
	a, err := netip.ParseAddr(ipStr)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range m.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
