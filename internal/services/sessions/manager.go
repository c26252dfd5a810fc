// Package sessions is the credential lifecycle manager. Every state-changing
// entrypoint (switch, login, logout, suspend, browser events, scheduled checks,
// UI messages) runs as one operation on a single dispatcher goroutine.
package sessions

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
	"github.com/ternarybob/cookiepool/internal/services/analytics"
	"github.com/ternarybob/cookiepool/internal/services/auth"
	"github.com/ternarybob/cookiepool/internal/services/cleanup"
	"github.com/ternarybob/cookiepool/internal/services/credentials"
	"github.com/ternarybob/cookiepool/internal/services/gate"
	"github.com/ternarybob/cookiepool/internal/services/occupancy"
	"github.com/ternarybob/cookiepool/internal/services/state"
	"github.com/ternarybob/cookiepool/internal/services/validation"
)

// Deps are the manager's collaborators. Analytics is optional.
type Deps struct {
	Browser      interfaces.Browser
	Backend      interfaces.BackendClient
	Events       interfaces.EventService
	State        *state.Service
	Auth         *auth.Service
	Injector     *credentials.Injector
	Tracker      *occupancy.Tracker
	Gate         *gate.Gate
	Cleanup      *cleanup.Orchestrator
	Analytics    *analytics.Service
	OpenOnSwitch bool
}

// Manager owns the lifecycle of the current account
type Manager struct {
	browser      interfaces.Browser
	backend      interfaces.BackendClient
	events       interfaces.EventService
	state        *state.Service
	auth         *auth.Service
	injector     *credentials.Injector
	tracker      *occupancy.Tracker
	gate         *gate.Gate
	cleanup      *cleanup.Orchestrator
	analytics    *analytics.Service
	validator    *validation.Validator
	openOnSwitch bool

	logger arbor.ILogger
	log    arbor.ILogger // Logger of the running operation, dispatcher goroutine only

	ops      chan operation
	stopped  chan struct{}
	stopOnce sync.Once
	startMu  sync.Mutex
	started  bool
	wg       sync.WaitGroup
}

func NewManager(deps Deps, logger arbor.ILogger) *Manager {
	m := &Manager{
		browser:      deps.Browser,
		backend:      deps.Backend,
		events:       deps.Events,
		state:        deps.State,
		auth:         deps.Auth,
		injector:     deps.Injector,
		tracker:      deps.Tracker,
		gate:         deps.Gate,
		cleanup:      deps.Cleanup,
		analytics:    deps.Analytics,
		openOnSwitch: deps.OpenOnSwitch,
		logger:       logger,
		log:          logger,
		ops:          make(chan operation, 64),
		stopped:      make(chan struct{}),
	}
	m.validator = validation.NewValidator(deps.Backend, deps.Auth, deps.State, teardownFunc(m.teardownAll), deps.Events, logger)
	m.tracker.Ignore(m.injector.IsTemporary)
	return m
}

// teardownFunc adapts the manager's teardown to the validator
type teardownFunc func(ctx context.Context, reason models.Phase) error

func (f teardownFunc) TeardownAll(ctx context.Context, reason models.Phase) error {
	return f(ctx, reason)
}

// Start restores the persisted state and begins dispatching operations and
// browser events
func (m *Manager) Start(ctx context.Context) error {
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.started {
		return fmt.Errorf("session manager already started")
	}

	restored, err := m.state.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := m.tracker.Reset(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Initial context scan failed")
	}

	m.started = true
	m.wg.Add(2)
	go m.runDispatcher()
	go m.runBrowserEvents()

	if restored.CurrentAccount != nil && restored.Phase != models.PhaseActive {
		m.Submit("startup-teardown", m.resumeTeardown)
	}
	if restored.CurrentAccount == nil && len(restored.ManagedDomains) > 0 {
		// Artifacts of an account that never finished tearing down
		m.Submit("startup-cleanup", func(ctx context.Context) error {
			return m.teardownAll(ctx, models.PhaseNone)
		})
	}

	m.logger.Info().
		Str("phase", string(restored.Phase)).
		Strs("managed_domains", restored.ManagedDomains).
		Bool("account_restored", restored.CurrentAccount != nil).
		Msg("Session manager started")
	return nil
}

// Stop ends dispatching. Queued operations that have not started are dropped.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopped)
	})
	m.wg.Wait()
	m.logger.Info().Msg("Session manager stopped")
}

// Status returns the read model served to the control surface
func (m *Manager) Status(ctx context.Context) *models.ManagerStatus {
	snapshot := m.state.Snapshot()
	return &models.ManagerStatus{
		Phase:          snapshot.Phase,
		LoggedIn:       m.auth.HasToken(ctx),
		UserEmail:      snapshot.UserEmail,
		CurrentAccount: snapshot.CurrentAccount,
		ManagedDomains: snapshot.ManagedDomains,
		Occupancy:      m.tracker.Counts(),
	}
}

// CurrentAccount returns a copy of the switched-in account, or nil
func (m *Manager) CurrentAccount() *models.Account {
	return m.state.CurrentAccount()
}

func (m *Manager) publish(ctx context.Context, eventType interfaces.EventType, payload interface{}) {
	if m.events == nil {
		return
	}
	if err := m.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		m.opLogger().Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}
