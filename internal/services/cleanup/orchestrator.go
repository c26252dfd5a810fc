// Package cleanup removes an account's credential artifacts and its backend
// session record. Every trigger (logout, vacated domain, suspend, eviction)
// goes through Orchestrator.Cleanup, which is safe to repeat.
package cleanup

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
	"github.com/ternarybob/cookiepool/internal/services/credentials"
)

// StateStore is the slice of the manager state the orchestrator reads and clears
type StateStore interface {
	ManagedDomains() []string
	CurrentAccount() *models.Account
	UserEmail() string
	RemoveManagedDomains(ctx context.Context, domains ...string) error
	ClearCurrentAccount(ctx context.Context) error
}

// Scope selects what to clean: one domain, or everything of the current account
type Scope struct {
	All    bool
	Domain string
}

// AllDomains is the scope of a full teardown
func AllDomains() Scope { return Scope{All: true} }

// Domain scopes a cleanup to one domain
func Domain(domain string) Scope { return Scope{Domain: domain} }

func (s Scope) String() string {
	if s.All {
		return "all"
	}
	return s.Domain
}

// Report summarizes one cleanup run
type Report struct {
	Scope          string   `json:"scope"`
	Domains        []string `json:"domains"`
	SessionEnded   bool     `json:"session_ended"`
	StorageCleared int      `json:"storage_cleared"`
	CookiesRemoved int      `json:"cookies_removed"`
	Failures       []string `json:"failures,omitempty"`
}

// Orchestrator runs the ordered teardown steps
type Orchestrator struct {
	browser interfaces.Browser
	backend interfaces.BackendClient
	state   StateStore
	logger  arbor.ILogger
}

func NewOrchestrator(browser interfaces.Browser, backend interfaces.BackendClient, state StateStore, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		browser: browser,
		backend: backend,
		state:   state,
		logger:  logger,
	}
}

// Cleanup tears down scope. Steps run in order and each one runs even when an
// earlier one failed; any removal failure is reported as models.ErrPartialCleanup
// after all steps ran. Backend notifications are logged, never returned.
// Running it again with nothing left to clean is a no-op.
func (o *Orchestrator) Cleanup(ctx context.Context, scope Scope) (*Report, error) {
	account := o.state.CurrentAccount()
	managed := o.state.ManagedDomains()
	domains := o.scopeDomains(scope, managed, account)

	report := &Report{Scope: scope.String(), Domains: domains}
	if len(domains) == 0 && (!scope.All || account == nil) {
		o.logger.Debug().Str("scope", scope.String()).Msg("Nothing to clean up")
		return report, nil
	}

	o.logger.Info().Str("scope", scope.String()).Strs("domains", domains).Msg("Cleanup started")

	var failures []error
	fail := func(step string, err error) {
		failures = append(failures, fmt.Errorf("%s: %w", step, err))
		report.Failures = append(report.Failures, fmt.Sprintf("%s: %v", step, err))
	}

	// 1. Backend session records
	report.SessionEnded = o.notifyBackend(ctx, scope, account, domains, managed)

	// 2. Page storage in matching open contexts
	cleared, err := o.clearStorage(ctx, domains)
	report.StorageCleared = cleared
	if err != nil {
		fail("clear storage", err)
	}

	// 3. Cookies
	for _, domain := range domains {
		removed, err := credentials.PurgeDomain(ctx, o.browser, domain, o.logger)
		report.CookiesRemoved += removed
		if err != nil {
			fail("purge "+domain, err)
		}
	}

	// 4. Managed domain set
	if len(domains) > 0 {
		if err := o.state.RemoveManagedDomains(ctx, domains...); err != nil {
			fail("remove managed domains", err)
		}
	}

	// 5. Current account
	if scope.All && account != nil {
		if err := o.state.ClearCurrentAccount(ctx); err != nil {
			fail("clear current account", err)
		}
	}

	if len(failures) > 0 {
		o.logger.Warn().
			Str("scope", scope.String()).
			Strs("failures", report.Failures).
			Msg("Cleanup finished with failures")
		return report, fmt.Errorf("%w: %w", models.ErrPartialCleanup, errors.Join(failures...))
	}

	o.logger.Info().
		Str("scope", scope.String()).
		Int("cookies_removed", report.CookiesRemoved).
		Int("storage_cleared", report.StorageCleared).
		Msg("Cleanup complete")
	return report, nil
}

func (o *Orchestrator) scopeDomains(scope Scope, managed []string, account *models.Account) []string {
	if !scope.All {
		if d := common.NormalizeDomain(scope.Domain); d != "" {
			return []string{d}
		}
		return nil
	}
	domains := append([]string(nil), managed...)
	domains = append(domains, account.Domains()...)
	return common.NormalizeDomains(domains)
}

// notifyBackend ends the account lease on a full teardown and drops the
// server-side sessions of every managed domain in scope. Failures are logged:
// a stale lease expires server-side or is corrected by the next validation.
func (o *Orchestrator) notifyBackend(ctx context.Context, scope Scope, account *models.Account, domains, managed []string) bool {
	ended := false
	if scope.All && account != nil {
		if err := o.backend.EndSession(ctx, account.ID); err != nil {
			o.logger.Warn().Err(err).Str("account_id", account.ID.String()).Msg("Failed to end backend session")
		} else {
			ended = true
		}
	}

	email := o.state.UserEmail()
	if email == "" {
		return ended
	}
	isManaged := make(map[string]bool, len(managed))
	for _, d := range managed {
		isManaged[d] = true
	}
	for _, domain := range domains {
		if !isManaged[domain] {
			continue
		}
		if err := o.backend.DeleteDomainSessions(ctx, email, domain); err != nil {
			o.logger.Warn().Err(err).Str("domain", domain).Msg("Failed to delete server-side domain sessions")
		}
	}
	return ended
}

func (o *Orchestrator) clearStorage(ctx context.Context, domains []string) (int, error) {
	if len(domains) == 0 {
		return 0, nil
	}
	contexts, err := o.browser.ListContexts(ctx)
	if err != nil {
		return 0, fmt.Errorf("list contexts: %w", err)
	}

	var errs []error
	cleared := 0
	for _, bc := range contexts {
		host := bc.Host()
		if host == "" || !matchesAny(host, domains) {
			continue
		}
		if err := o.browser.ClearStorage(ctx, bc.ID); err != nil {
			o.logger.Warn().Err(err).Str("context_id", bc.ID).Str("host", host).Msg("Failed to clear page storage")
			errs = append(errs, fmt.Errorf("context %s: %w", bc.ID, err))
			continue
		}
		cleared++
	}
	return cleared, errors.Join(errs...)
}

func matchesAny(host string, domains []string) bool {
	for _, d := range domains {
		if common.HostMatchesDomain(host, d) {
			return true
		}
	}
	return false
}
