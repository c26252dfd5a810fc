package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// PurgeDomain removes every stored cookie whose domain is domain or one of its
// subdomains. A cookie's effective scope is not always recoverable from its
// stored domain, so each cookie is removed through every scheme, host and path
// variant; variants fail independently. Cookies still present afterwards make
// the call return ErrPartialCleanup. Purging a clean domain is a no-op.
func PurgeDomain(ctx context.Context, browser interfaces.Browser, domain string, logger arbor.ILogger) (int, error) {
	domain = common.NormalizeDomain(domain)
	if domain == "" {
		return 0, nil
	}

	cookies, err := browser.GetCookies(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: list cookies for %s: %v", models.ErrPartialCleanup, domain, err)
	}

	targets := matching(cookies, domain)
	if len(targets) == 0 {
		return 0, nil
	}

	for _, cookie := range targets {
		var lastErr error
		succeeded := 0
		for _, variant := range removalURLs(cookie, domain) {
			if err := browser.RemoveCookie(ctx, variant, cookie.Name); err != nil {
				lastErr = err
				continue
			}
			succeeded++
		}
		if succeeded == 0 && lastErr != nil {
			logger.Warn().Err(lastErr).
				Str("domain", domain).
				Str("cookie", cookie.Name).
				Msg("Every removal variant failed for cookie")
		}
	}

	remaining, err := browser.GetCookies(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: re-list cookies for %s: %v", models.ErrPartialCleanup, domain, err)
	}
	left := matching(remaining, domain)
	removed := len(targets) - len(left)

	logger.Debug().Str("domain", domain).Int("removed", removed).Int("remaining", len(left)).Msg("Domain purged")

	if len(left) > 0 {
		names := make([]string, 0, len(left))
		for _, c := range left {
			names = append(names, c.Name)
		}
		return removed, fmt.Errorf("%w: %d cookies left on %s: %s", models.ErrPartialCleanup, len(left), domain, strings.Join(names, ", "))
	}
	return removed, nil
}

func matching(cookies []models.Cookie, domain string) []models.Cookie {
	var out []models.Cookie
	for _, c := range cookies {
		if common.HostMatchesDomain(c.Domain, domain) {
			out = append(out, c)
		}
	}
	return out
}

// removalURLs builds scheme x host x path variants, most specific first
func removalURLs(cookie models.Cookie, managed string) []string {
	hosts := []string{common.NormalizeDomain(cookie.Domain)}
	if managed != hosts[0] {
		hosts = append(hosts, managed)
	}
	paths := []string{"/"}
	if cookie.Path != "" && cookie.Path != "/" {
		paths = []string{cookie.Path, "/"}
	}

	urls := make([]string, 0, 2*len(hosts)*len(paths))
	for _, scheme := range []string{"https", "http"} {
		for _, host := range hosts {
			for _, path := range paths {
				urls = append(urls, scheme+"://"+host+path)
			}
		}
	}
	return urls
}
