// Package state owns the manager's mutable state: the managed-domain set, the
// current account, the signed-in user and the lifecycle phase. Every mutation
// is persisted as a whole snapshot.
package state

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

type Service struct {
	mu      sync.RWMutex
	state   models.ManagerState
	storage interfaces.StateStorage
	clock   clockwork.Clock
	logger  arbor.ILogger
}

func NewService(storage interfaces.StateStorage, clock clockwork.Clock, logger arbor.ILogger) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		state:   models.ManagerState{Phase: models.PhaseNone},
		storage: storage,
		clock:   clock,
		logger:  logger,
	}
}

// Load restores the last snapshot. Only an ACTIVE account comes back ACTIVE. An
// account saved mid-install or mid-teardown keeps its phase so the manager can
// finish tearing it down; any other phase with an account loads as CLEANED.
// Without an account the phase drops to NONE.
func (s *Service) Load(ctx context.Context) (*models.ManagerState, error) {
	loaded, err := s.storage.LoadState(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if loaded == nil {
		s.logger.Debug().Msg("No saved manager state")
		return s.state.Clone(), nil
	}

	s.state = *loaded
	s.state.ManagedDomains = common.NormalizeDomains(loaded.ManagedDomains)
	switch {
	case s.state.CurrentAccount == nil:
		s.state.Phase = models.PhaseNone
	case s.state.Phase == models.PhaseActive, s.state.Phase == models.PhaseInstalling, s.state.Phase.IsTeardown():
		// kept
	default:
		s.state.Phase = models.PhaseCleaned
	}

	s.logger.Info().
		Strs("managed_domains", s.state.ManagedDomains).
		Bool("has_account", s.state.CurrentAccount != nil).
		Str("phase", string(s.state.Phase)).
		Msg("Manager state restored")

	return s.state.Clone(), nil
}

// Snapshot returns a deep copy of the current state
func (s *Service) Snapshot() *models.ManagerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

func (s *Service) ManagedDomains() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.state.ManagedDomains...)
}

func (s *Service) CurrentAccount() *models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.CurrentAccount == nil {
		return nil
	}
	return s.state.Clone().CurrentAccount
}

func (s *Service) UserEmail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.UserEmail
}

func (s *Service) Phase() models.Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Phase
}

// SetManagedDomains replaces the managed-domain set
func (s *Service) SetManagedDomains(ctx context.Context, domains []string) error {
	return s.mutate(ctx, func(st *models.ManagerState) {
		st.ManagedDomains = common.NormalizeDomains(domains)
	})
}

// RemoveManagedDomains drops domains from the set; absent domains are ignored
func (s *Service) RemoveManagedDomains(ctx context.Context, domains ...string) error {
	drop := make(map[string]bool, len(domains))
	for _, d := range domains {
		drop[common.NormalizeDomain(d)] = true
	}
	return s.mutate(ctx, func(st *models.ManagerState) {
		kept := st.ManagedDomains[:0:0]
		for _, d := range st.ManagedDomains {
			if !drop[d] {
				kept = append(kept, d)
			}
		}
		st.ManagedDomains = kept
	})
}

func (s *Service) SetCurrentAccount(ctx context.Context, account *models.Account) error {
	return s.mutate(ctx, func(st *models.ManagerState) {
		if account == nil {
			st.CurrentAccount = nil
			return
		}
		copied := *account
		copied.Credentials = append([]models.CredentialEntry(nil), account.Credentials...)
		st.CurrentAccount = &copied
	})
}

func (s *Service) ClearCurrentAccount(ctx context.Context) error {
	return s.SetCurrentAccount(ctx, nil)
}

func (s *Service) SetUserEmail(ctx context.Context, email string) error {
	return s.mutate(ctx, func(st *models.ManagerState) {
		st.UserEmail = email
	})
}

func (s *Service) SetPhase(ctx context.Context, phase models.Phase) error {
	return s.mutate(ctx, func(st *models.ManagerState) {
		st.Phase = phase
	})
}

// mutate applies fn and persists the result. On a persistence failure the
// in-memory change is kept; the next mutation retries the write.
func (s *Service) mutate(ctx context.Context, fn func(st *models.ManagerState)) error {
	s.mu.Lock()
	fn(&s.state)
	s.state.UpdatedAt = s.clock.Now()
	snapshot := s.state.Clone()
	s.mu.Unlock()

	if err := s.storage.SaveState(ctx, snapshot); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to persist manager state")
		return fmt.Errorf("persist manager state: %w", err)
	}
	return nil
}
