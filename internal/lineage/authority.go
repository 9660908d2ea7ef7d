package lineage

import (
	"net/url"
	"strings"

	"github.com/ashvattha/ashvattha/internal/model"
)

// Host lists for authority classification of user-supplied source URLs.
// Automated sources tag their own tier; this covers manual provenance.
var (
	primaryHosts = []string{
		"wikidata.org",
		"loc.gov",
		"archives.gov",
		"nationalarchives.gov.uk",
		"familysearch.org",
	}
	secondaryHosts = []string{
		"wikipedia.org",
		"britannica.com",
		"jstor.org",
		"geni.com",
		"wikitree.com",
	}
)

// ClassifyAuthority maps a source URL to its authority tier by host.
// Unknown hosts are tertiary; an unparsable URL is unknown.
func ClassifyAuthority(rawURL string) model.AuthorityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return model.TierUnknown
	}
	host := strings.ToLower(parsed.Host)

	for _, h := range primaryHosts {
		if hostMatches(host, h) {
			return model.TierPrimary
		}
	}
	for _, h := range secondaryHosts {
		if hostMatches(host, h) {
			return model.TierSecondary
		}
	}
	return model.TierTertiary
}

// hostMatches accepts the domain itself and its subdomains
func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
