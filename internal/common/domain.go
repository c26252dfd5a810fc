package common

import (
	"net/url"
	"strings"
)

// NormalizeDomain lowercases a domain and strips surrounding whitespace,
// a leading dot, any scheme, path or port.
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if strings.Contains(d, "://") {
		if u, err := url.Parse(d); err == nil {
			d = u.Hostname()
		}
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if host, _, ok := strings.Cut(d, ":"); ok {
		d = host
	}
	d = strings.TrimPrefix(d, ".")
	return strings.TrimSuffix(d, ".")
}

// HostMatchesDomain reports whether host equals domain or is a subdomain of it
func HostMatchesDomain(host, domain string) bool {
	h := NormalizeDomain(host)
	d := NormalizeDomain(domain)
	if h == "" || d == "" {
		return false
	}
	return h == d || strings.HasSuffix(h, "."+d)
}

// NormalizeDomains normalizes a list, dropping blanks and duplicates while keeping order
func NormalizeDomains(domains []string) []string {
	seen := make(map[string]bool, len(domains))
	out := make([]string, 0, len(domains))
	for _, domain := range domains {
		d := NormalizeDomain(domain)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	return out
}
