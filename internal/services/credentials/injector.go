// Package credentials installs an account's credential set into the browser
// and owns the shared purge primitive used by both install and cleanup.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// DomainRecorder persists the managed-domain set
type DomainRecorder interface {
	SetManagedDomains(ctx context.Context, domains []string) error
}

// InstallResult summarizes one Install call
type InstallResult struct {
	Domains   []string // Domains touched, now the managed-domain set
	Installed int      // Cookies set and storage payloads injected
	Skipped   int      // Entries or pairs dropped as malformed or rejected
}

// Injector applies an account's credentials to the browser
type Injector struct {
	browser  interfaces.Browser
	recorder DomainRecorder
	config   common.SessionConfig
	clock    clockwork.Clock
	logger   arbor.ILogger

	mu        sync.Mutex
	temporary map[string]bool
}

// NewInjector creates an Injector
func NewInjector(browser interfaces.Browser, recorder DomainRecorder, config common.SessionConfig, clock clockwork.Clock, logger arbor.ILogger) *Injector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Injector{
		browser:   browser,
		recorder:  recorder,
		config:    config,
		clock:     clock,
		logger:    logger,
		temporary: make(map[string]bool),
	}
}

// Install applies every credential of account in declaration order. Each target
// domain is purged first. Entry failures are logged and skipped, except a refused
// __Host- cookie, which aborts with a *models.SecurityViolationError.
// The touched domains are recorded as the managed set on both outcomes so a
// partial install can be cleaned up.
func (i *Injector) Install(ctx context.Context, account *models.Account) (*InstallResult, error) {
	if account == nil {
		return nil, fmt.Errorf("install: account is nil")
	}

	result := &InstallResult{Domains: i.touchedDomains(account)}
	if err := i.recorder.SetManagedDomains(ctx, result.Domains); err != nil {
		return result, fmt.Errorf("failed to record managed domains: %w", err)
	}

	for _, domain := range result.Domains {
		if _, err := PurgeDomain(ctx, i.browser, domain, i.logger); err != nil {
			i.logger.Warn().Err(err).Str("domain", domain).Msg("Pre-install purge incomplete")
		}
	}

	for _, entry := range account.Credentials {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		installed, skipped, err := i.installEntry(ctx, entry)
		result.Installed += installed
		result.Skipped += skipped
		if err != nil {
			i.logger.Error().Err(err).
				Str("account_id", account.ID.String()).
				Str("cookie", entry.Name).
				Str("domain", entry.Domain).
				Msg("Install aborted")
			return result, err
		}
	}

	i.logger.Info().
		Str("account_id", account.ID.String()).
		Strs("domains", result.Domains).
		Int("installed", result.Installed).
		Int("skipped", result.Skipped).
		Msg("Credentials installed")

	return result, nil
}

// installEntry returns a non-nil error only when the whole install must abort
func (i *Injector) installEntry(ctx context.Context, entry models.CredentialEntry) (installed, skipped int, err error) {
	switch InferKind(entry, i.config.HeaderCookieName, i.config.StoragePayloadPrefix) {
	case models.CredentialHeaderCookieString:
		parsed := ParseHeaderCookies(entry.Value, entry.Domain)
		if parsed.Outcome == Malformed {
			i.logger.Warn().
				Str("domain", entry.Domain).
				Str("reason", parsed.Reason).
				Err(models.ErrMalformedCredentialData).
				Msg("Skipping header cookie string")
			return 0, 1, nil
		}
		skipped = parsed.Dropped
		for _, pair := range parsed.Cookies {
			if err := i.setCookie(ctx, pair.Domain, pair.Name, pair.Value); err != nil {
				if isFatal(err) {
					return installed, skipped, err
				}
				skipped++
				continue
			}
			installed++
		}
		return installed, skipped, nil

	case models.CredentialStoragePayload:
		payload, err := ParseStoragePayload(entry.Value, i.config.StoragePayloadPrefix)
		if err != nil {
			i.logger.Warn().Err(err).Str("domain", entry.Domain).Msg("Skipping storage payload")
			return 0, 1, nil
		}
		if err := i.injectStorage(ctx, common.NormalizeDomain(entry.Domain), payload); err != nil {
			i.logger.Warn().Err(err).Str("domain", entry.Domain).Msg("Storage injection failed")
			return 0, 1, nil
		}
		return 1, 0, nil

	default:
		if err := i.setCookie(ctx, entry.Domain, entry.Name, entry.Value); err != nil {
			if isFatal(err) {
				return 0, 0, err
			}
			return 0, 1, nil
		}
		return 1, 0, nil
	}
}

// touchedDomains is the account's declared domains plus any domain named inside
// a JSON header-cookie array
func (i *Injector) touchedDomains(account *models.Account) []string {
	domains := account.Domains()
	for _, entry := range account.Credentials {
		if InferKind(entry, i.config.HeaderCookieName, i.config.StoragePayloadPrefix) != models.CredentialHeaderCookieString {
			continue
		}
		for _, pair := range ParseHeaderCookies(entry.Value, entry.Domain).Cookies {
			domains = append(domains, pair.Domain)
		}
	}
	return common.NormalizeDomains(domains)
}

func isFatal(err error) bool {
	return errors.Is(err, models.ErrPermanentSecurityViolation)
}

// setCookie applies the secure-first policy: secure+lax on the declared domain,
// then once more insecure+no_restriction on the bare host. __Secure- names keep
// secure on the retry; __Host- names get no retry at all.
func (i *Injector) setCookie(ctx context.Context, domain, name, value string) error {
	host := common.NormalizeDomain(domain)
	if host == "" || name == "" {
		return fmt.Errorf("%w: cookie %q without domain or name", models.ErrMalformedCredentialData, name)
	}
	url := "https://" + host + "/"

	if strings.HasPrefix(name, "__Host-") {
		err := i.browser.SetCookie(ctx, models.CookieParam{
			URL:      url,
			Name:     name,
			Value:    value,
			Path:     "/",
			Secure:   true,
			SameSite: models.SameSiteLax,
		})
		if err != nil {
			return &models.SecurityViolationError{Name: name, Domain: host, Err: err}
		}
		i.logger.Debug().Str("cookie", name).Str("domain", host).Msg("Host-prefixed cookie set")
		return nil
	}

	err := i.browser.SetCookie(ctx, models.CookieParam{
		URL:      url,
		Name:     name,
		Value:    value,
		Domain:   strings.TrimSpace(domain),
		Path:     "/",
		Secure:   true,
		SameSite: models.SameSiteLax,
	})
	if err == nil {
		i.logger.Debug().Str("cookie", name).Str("domain", domain).Msg("Cookie set")
		return nil
	}

	i.logger.Debug().Err(err).Str("cookie", name).Str("domain", domain).Msg("Secure cookie rejected, retrying relaxed")

	retryErr := i.browser.SetCookie(ctx, models.CookieParam{
		URL:      url,
		Name:     name,
		Value:    value,
		Domain:   host,
		Path:     "/",
		Secure:   strings.HasPrefix(name, "__Secure-"),
		SameSite: models.SameSiteNoRestriction,
	})
	if retryErr != nil {
		i.logger.Warn().Err(retryErr).Str("cookie", name).Str("domain", host).Msg("Cookie rejected after relaxed retry")
		return retryErr
	}
	return nil
}

// injectStorage uses an open context on the domain when there is one, otherwise
// a temporary context that is closed on every exit path
func (i *Injector) injectStorage(ctx context.Context, domain string, payload models.StoragePayload) error {
	contexts, err := i.browser.ListContexts(ctx)
	if err != nil {
		return fmt.Errorf("list contexts: %w", err)
	}
	for _, bc := range contexts {
		if i.IsTemporary(bc.ID) {
			continue
		}
		if common.HostMatchesDomain(bc.Host(), domain) {
			return i.browser.InjectStorage(ctx, bc.ID, payload)
		}
	}

	bc, err := i.browser.OpenContext(ctx, "https://"+domain+"/")
	if err != nil {
		return fmt.Errorf("open temporary context: %w", err)
	}
	i.markTemporary(bc.ID)
	defer func() {
		if err := i.browser.CloseContext(context.WithoutCancel(ctx), bc.ID); err != nil {
			i.logger.Warn().Err(err).Str("context_id", bc.ID).Msg("Failed to close temporary context")
		}
	}()

	policy := common.RetryPolicy{
		MaxAttempts:    i.config.StorageInjectAttempts,
		InitialBackoff: common.ParseDuration(i.config.StorageInjectBackoff, 500*time.Millisecond),
		Clock:          i.clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			i.logger.Debug().Err(err).Int("attempt", attempt).Dur("backoff", backoff).Str("domain", domain).Msg("Storage injection retry")
		},
	}
	return common.RetryVoid(ctx, policy, func() error {
		return i.browser.InjectStorage(ctx, bc.ID, payload)
	})
}

func (i *Injector) markTemporary(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.temporary[id] = true
}

// IsTemporary reports whether id is a context the injector opened for itself
func (i *Injector) IsTemporary(id string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.temporary[id]
}

// ForgetTemporary drops id once its close has been observed
func (i *Injector) ForgetTemporary(id string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.temporary, id)
}
