package helpers

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// Normalizes a URL (lower-case host, no "www.", no fragment, etc) and returns its host. Returns an empty string if the URL can not be parsed.
func NormalizedHost(raw string) string {
	clean, err := purell.NormalizeURLString(raw, purell.FlagsUsuallySafeGreedy|purell.FlagRemoveFragment|purell.FlagRemoveWWW)
	if err != nil {
		clean = raw
	}
	u, err := url.Parse(clean)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Checks whether host is the given domain, or a sub-domain of it.
//
// The domain may be a bare name ("example.com") or a full URL, in which case only its host is used.
func HostMatchesDomain(host, domain string) bool {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if strings.Contains(domain, "://") {
		domain = NormalizedHost(domain)
	}
	domain = strings.TrimPrefix(domain, "www.")
	domain = strings.TrimSuffix(domain, "/")
	if domain == "" || host == "" {
		return false
	}
	return host == domain || strings.HasSuffix(host, "."+domain)
}
