package sessions

import (
	"context"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// runBrowserEvents forwards browser notifications to the dispatcher so they
// are handled in order with every other operation
func (m *Manager) runBrowserEvents() {
	defer m.wg.Done()
	events := m.browser.Events()
	for {
		select {
		case <-m.stopped:
			return
		case event, ok := <-events:
			if !ok {
				m.logger.Info().Msg("Browser event stream closed")
				return
			}
			m.Submit("browser:"+string(event.Type), func(ctx context.Context) error {
				return m.handleBrowserEvent(ctx, event)
			})
		}
	}
}

func (m *Manager) handleBrowserEvent(ctx context.Context, event models.BrowserEvent) error {
	switch event.Type {
	case models.BrowserContextOpened, models.BrowserContextNavigated:
		if m.injector.IsTemporary(event.ContextID) {
			return nil
		}
		bc := models.BrowsingContext{ID: event.ContextID, URL: event.URL}
		if event.Type == models.BrowserContextOpened {
			m.tracker.OnContextOpened(bc)
		} else {
			m.tracker.OnContextNavigated(bc)
		}
		m.trackPageView(bc)
		return nil

	case models.BrowserContextClosed:
		if m.injector.IsTemporary(event.ContextID) {
			m.injector.ForgetTemporary(event.ContextID)
			return nil
		}
		for _, domain := range m.tracker.OnContextClosed(ctx, event.ContextID) {
			err := m.cleanupDomain(ctx, domain)
			m.publish(ctx, interfaces.EventDomainVacated, map[string]string{"domain": domain})
			if err != nil {
				m.opLogger().Warn().Err(err).Str("domain", domain).Msg("Vacated domain cleanup incomplete")
			}
		}
		return nil

	case models.BrowserSuspend:
		m.opLogger().Info().Msg("Browser suspending, tearing down current account")
		return m.suspend(ctx)

	default:
		m.opLogger().Debug().Str("type", string(event.Type)).Str("context_id", event.ContextID).Msg("Browser event ignored")
		return nil
	}
}

func (m *Manager) trackPageView(bc models.BrowsingContext) {
	if m.analytics == nil {
		return
	}
	account := m.state.CurrentAccount()
	host := bc.Host()
	if account == nil || host == "" {
		return
	}
	for _, domain := range m.state.ManagedDomains() {
		if common.HostMatchesDomain(host, domain) {
			m.analytics.Track(models.AnalyticsPageView, account.ID, domain, map[string]string{"url": bc.URL})
			return
		}
	}
}
