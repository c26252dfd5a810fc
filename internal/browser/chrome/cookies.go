package chrome

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"github.com/ternarybob/cookiepool/internal/models"
)

// SetCookie writes one cookie. Chrome rejects cookies that break prefix or
// host rules, which surfaces as an error.
func (b *Browser) SetCookie(ctx context.Context, cookie models.CookieParam) error {
	return b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := cookieParams(cookie).Do(ctx); err != nil {
			return fmt.Errorf("set cookie %s: %w", cookie.Name, err)
		}
		return nil
	}))
}

// GetCookies returns every cookie in the browser's store
func (b *Browser) GetCookies(ctx context.Context) ([]models.Cookie, error) {
	var cookies []*network.Cookie
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(b.browserExecutor(ctx))
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}

	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c != nil {
			out = append(out, fromNetworkCookie(c))
		}
	}
	return out, nil
}

// RemoveCookie removes the cookie named name that would be sent to url
func (b *Browser) RemoveCookie(ctx context.Context, url string, name string) error {
	return b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.DeleteCookies(name).WithURL(url).Do(ctx); err != nil {
			return fmt.Errorf("remove cookie %s for %s: %w", name, url, err)
		}
		return nil
	}))
}

func cookieParams(c models.CookieParam) *network.SetCookieParams {
	params := network.SetCookie(c.Name, c.Value).
		WithURL(c.URL).
		WithPath(c.Path).
		WithSecure(c.Secure).
		WithHTTPOnly(c.HTTPOnly)
	// Without a domain Chrome makes a host-only cookie for the URL host
	if c.Domain != "" {
		params = params.WithDomain(c.Domain)
	}
	if sameSite, ok := toNetworkSameSite(c.SameSite); ok {
		params = params.WithSameSite(sameSite)
	}
	return params
}

func toNetworkSameSite(s models.SameSite) (network.CookieSameSite, bool) {
	switch s {
	case models.SameSiteLax:
		return network.CookieSameSiteLax, true
	case models.SameSiteStrict:
		return network.CookieSameSiteStrict, true
	case models.SameSiteNoRestriction:
		return network.CookieSameSiteNone, true
	default:
		return "", false
	}
}

func fromNetworkCookie(c *network.Cookie) models.Cookie {
	return models.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: models.ParseSameSite(string(c.SameSite)),
	}
}
