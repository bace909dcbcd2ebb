package worker

import "github.com/archivetheweb/atwworker/internal/pkg/urlutil"

// domainOf is the "new_name" the proxy supervisor renames artifacts
// under: the seed URL's registrable domain.
func domainOf(seedURL string) string {
	return urlutil.RegistrableDomain(seedURL)
}
