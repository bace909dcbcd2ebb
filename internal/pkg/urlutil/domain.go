package urlutil

import (
	"net/url"
	"strings"
)

// RegistrableDomain takes a host (or full URL) and strips a single
// leading "www." if present. It is intentionally not a full public-suffix
// computation; scope comparisons only need the www.-stripping behavior.
func RegistrableDomain(rawURL string) string {
	host := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)
	return strings.TrimPrefix(host, "www.")
}

// SameDomain reports whether two domains are equal after registrable
// normalization.
func SameDomain(a, b string) bool {
	return RegistrableDomain(a) == RegistrableDomain(b)
}
