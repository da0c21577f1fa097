package integrate

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// NormalizeDomain lowercases a domain pattern and converts internationalized
// names to their ASCII form. "*" and "*.example.com" wildcards are kept.
func NormalizeDomain(raw string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	if d == "*" {
		return d, nil
	}
	if strings.Contains(d, "://") {
		u, err := url.Parse(d)
		if err != nil {
			return "", fmt.Errorf("invalid domain %q", raw)
		}
		d = u.Hostname()
	}
	wildcard := strings.HasPrefix(d, "*.")
	d = strings.TrimPrefix(d, "*.")
	d = strings.TrimSuffix(d, ".")

	ascii, err := idna.Lookup.ToASCII(d)
	if err != nil || ascii == "" {
		return "", fmt.Errorf("invalid domain %q", raw)
	}
	if wildcard {
		return "*." + ascii, nil
	}
	return ascii, nil
}

// isDomainAllowed reports whether the origin's host matches one of the allowed
// patterns: an exact host or a "*.example.com" wildcard, which also covers the apex.
func isDomainAllowed(origin string, allowed []string) bool {
	if origin == "" {
		return false
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host, err := idna.Lookup.ToASCII(strings.ToLower(parsed.Hostname()))
	if err != nil || host == "" {
		return false
	}

	for _, pattern := range allowed {
		switch {
		case pattern == "*":
			return true
		case strings.HasPrefix(pattern, "*."):
			apex := pattern[2:]
			if host == apex || strings.HasSuffix(host, "."+apex) {
				return true
			}
		case host == pattern:
			return true
		}
	}
	return false
}
