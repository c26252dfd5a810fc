// Package occupancy tracks which managed domains still have open browsing contexts.
package occupancy

import (
	"context"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/models"
)

// ContextLister enumerates open browsing contexts
type ContextLister interface {
	ListContexts(ctx context.Context) ([]models.BrowsingContext, error)
}

// DomainSource supplies the current managed-domain set
type DomainSource interface {
	ManagedDomains() []string
}

// Tracker keeps a snapshot of open contexts and derives per-domain occupancy
// from it. Closes re-enumerate every context instead of decrementing, because a
// close does not say which URL the context had.
type Tracker struct {
	lister  ContextLister
	domains DomainSource
	logger  arbor.ILogger

	mu       sync.RWMutex
	contexts map[string]string // context ID -> host
	occupied map[string]bool   // managed domains seen occupied since the last Reset
	ignore   func(contextID string) bool
}

func NewTracker(lister ContextLister, domains DomainSource, logger arbor.ILogger) *Tracker {
	return &Tracker{
		lister:   lister,
		domains:  domains,
		logger:   logger,
		contexts: make(map[string]string),
		occupied: make(map[string]bool),
	}
}

// Ignore excludes contexts for which fn returns true (temporary injection contexts)
func (t *Tracker) Ignore(fn func(contextID string) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ignore = fn
}

// OnContextOpened records a new context
func (t *Tracker) OnContextOpened(bc models.BrowsingContext) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ignored(bc.ID) {
		return
	}
	t.contexts[bc.ID] = bc.Host()
	t.markOccupied()
}

// OnContextNavigated updates a context's host. Navigating away never vacates a domain.
func (t *Tracker) OnContextNavigated(bc models.BrowsingContext) {
	t.OnContextOpened(bc)
}

// OnContextClosed re-scans all open contexts and returns the managed domains
// that were occupied and now have no context left. A managed domain never seen
// open since the last Reset is not returned, even though it has no context:
// closing an unrelated tab does not end credentials the user has yet to visit.
func (t *Tracker) OnContextClosed(ctx context.Context, contextID string) []string {
	if err := t.Rescan(ctx); err != nil {
		t.logger.Warn().Err(err).Str("context_id", contextID).Msg("Context rescan failed, dropping closed context only")
		t.mu.Lock()
		delete(t.contexts, contextID)
		t.mu.Unlock()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	var vacated []string
	for _, domain := range t.domains.ManagedDomains() {
		if t.occupied[domain] && t.countLocked(domain) == 0 {
			vacated = append(vacated, domain)
			delete(t.occupied, domain)
		}
	}
	if len(vacated) > 0 {
		t.logger.Info().Strs("domains", vacated).Msg("Managed domains vacated")
	}
	return vacated
}

// Rescan replaces the context snapshot with a fresh enumeration
func (t *Tracker) Rescan(ctx context.Context) error {
	contexts, err := t.lister.ListContexts(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.contexts = make(map[string]string, len(contexts))
	for _, bc := range contexts {
		if t.ignored(bc.ID) {
			continue
		}
		t.contexts[bc.ID] = bc.Host()
	}
	t.markOccupied()
	return nil
}

// Reset forgets which domains were seen occupied, then rescans. Called after a
// new credential set is installed.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	t.occupied = make(map[string]bool)
	t.mu.Unlock()
	return t.Rescan(ctx)
}

// IsOccupied reports whether any open context's host is domain or a subdomain of it
func (t *Tracker) IsOccupied(domain string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.countLocked(common.NormalizeDomain(domain)) > 0
}

// Counts returns the number of open contexts per managed domain
func (t *Tracker) Counts() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	counts := make(map[string]int)
	for _, domain := range t.domains.ManagedDomains() {
		counts[domain] = t.countLocked(domain)
	}
	return counts
}

func (t *Tracker) countLocked(domain string) int {
	count := 0
	for _, host := range t.contexts {
		if common.HostMatchesDomain(host, domain) {
			count++
		}
	}
	return count
}

func (t *Tracker) markOccupied() {
	for _, domain := range t.domains.ManagedDomains() {
		if t.countLocked(domain) > 0 {
			t.occupied[domain] = true
		}
	}
}

func (t *Tracker) ignored(id string) bool {
	return t.ignore != nil && t.ignore(id)
}
