// Package urlutil implements the normalization and scope rules the crawl
// engine applies to every discovered link, grounded on the byte-for-byte
// behavior of the original normalize_url/normalize_url_map pair.
package urlutil

import (
	"net/url"
	"strings"

	"github.com/asaskevich/govalidator"
)

const mpRewriteToken = "/mp_/"

// Normalize parses rawURL as an absolute http(s) URL and strips its
// fragment. If parsing fails and rawURL begins with "/", it is resolved
// against baseURL instead (the proxy rewrite case). Anything else,
// including non-http(s) schemes such as mailto: or javascript:, is
// dropped (ok == false).
//
// Normalize is idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(baseURL, rawURL string) (normalized string, ok bool) {
	if u, err := url.Parse(rawURL); err == nil && u.IsAbs() {
		if !isHTTPScheme(u.Scheme) {
			return "", false
		}
		u.Fragment = ""
		return rewriteProxyPath(u.String()), true
	}

	if strings.HasPrefix(rawURL, "/") {
		base, err := url.Parse(baseURL)
		if err != nil {
			return "", false
		}
		resolved, err := base.Parse(rawURL)
		if err != nil || !isHTTPScheme(resolved.Scheme) {
			return "", false
		}
		resolved.Fragment = ""
		return rewriteProxyPath(resolved.String()), true
	}

	return "", false
}

func isHTTPScheme(scheme string) bool {
	return scheme == "http" || scheme == "https"
}

// rewriteProxyPath replaces every occurrence of the recording proxy's
// "/mp_/" rewrite artifact with a plain "/", so links discovered through
// the proxy collapse to the same canonical form as a direct fetch would
// produce. It repeats until no token is left, so adjacent tokens such as
// "/mp_/mp_/" collapse in one call and Normalize stays idempotent.
func rewriteProxyPath(raw string) string {
	for strings.Contains(raw, mpRewriteToken) {
		raw = strings.ReplaceAll(raw, mpRewriteToken, "/")
	}
	return raw
}

// IsPlausibleURL reports whether s passes govalidator's loose URL check.
// Nothing in this module calls it: the browser package's body-text
// fallback relies on xurls instead.
func IsPlausibleURL(s string) bool {
	return govalidator.IsURL(s)
}
