package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
	"github.com/ternarybob/cookiepool/internal/services/cleanup"
	"github.com/ternarybob/cookiepool/internal/services/validation"
)

// Login authenticates against the backend and keeps the user's email for
// domain session teardown and analytics
func (m *Manager) Login(ctx context.Context, email, password string) (*interfaces.LoginResult, error) {
	var result *interfaces.LoginResult
	err := m.Do(ctx, "login", func(ctx context.Context) error {
		res, err := m.auth.Login(ctx, email, password)
		if err != nil {
			return err
		}
		if err := m.state.SetUserEmail(ctx, res.Email); err != nil {
			m.opLogger().Warn().Err(err).Msg("Failed to persist user email")
		}
		result = res
		return nil
	})
	return result, err
}

// Logout ends the current account, then the authenticated identity
func (m *Manager) Logout(ctx context.Context) error {
	return m.Do(ctx, "logout", func(ctx context.Context) error {
		if err := m.teardownAll(ctx, models.PhaseLoggingOut); err != nil {
			m.opLogger().Warn().Err(err).Msg("Logout cleanup incomplete")
		}

		if m.analytics != nil {
			if _, err := m.analytics.Flush(ctx); err != nil {
				m.opLogger().Warn().Err(err).Msg("Analytics flush before logout failed")
			}
		}

		if err := m.auth.Logout(ctx); err != nil {
			return err
		}
		if err := m.state.SetUserEmail(ctx, ""); err != nil {
			m.opLogger().Warn().Err(err).Msg("Failed to clear user email")
		}

		m.publish(ctx, interfaces.EventLoggedOut, map[string]string{})
		return nil
	})
}

// ListAccounts returns the pool's accounts whose name or group contains query
func (m *Manager) ListAccounts(ctx context.Context, query string) ([]models.Account, error) {
	if !m.auth.HasToken(ctx) {
		return nil, models.ErrNotLoggedIn
	}
	accounts, err := m.backend.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	filtered := make([]models.Account, 0, len(accounts))
	for _, account := range accounts {
		if account.Matches(query) {
			filtered = append(filtered, account)
		}
	}
	return filtered, nil
}

// SwitchAccount makes id the current account. The gate decides before anything
// is torn down, so a rejected switch leaves the working account untouched.
// Either the switch completes or no credentials of the new account remain.
func (m *Manager) SwitchAccount(ctx context.Context, id models.AccountID) (*models.Account, error) {
	var switched *models.Account
	err := m.Do(ctx, "switch:"+id.String(), func(ctx context.Context) error {
		account, err := m.switchAccount(ctx, id)
		switched = account
		return err
	})
	return switched, err
}

func (m *Manager) switchAccount(ctx context.Context, id models.AccountID) (*models.Account, error) {
	logger := m.opLogger()
	if !m.auth.HasToken(ctx) {
		return nil, models.ErrNotLoggedIn
	}

	account, err := m.findAccount(ctx, id)
	if err != nil {
		return nil, err
	}

	var currentID models.AccountID
	current := m.state.CurrentAccount()
	if current != nil {
		currentID = current.ID
	}

	lease, err := m.gate.Admit(ctx, account, currentID)
	if err != nil {
		return nil, err
	}
	if lease.Reentrant {
		logger.Info().Str("account_id", id.String()).Msg("Account already current")
		return current, nil
	}

	// Ends the previous lease and removes its artifacts; without a previous
	// account this clears leftovers
	if err := m.teardownAll(ctx, models.PhaseLoggingOut); err != nil {
		logger.Warn().Err(err).Msg("Previous account teardown incomplete")
	}

	if err := m.transition(ctx, models.PhaseInstalling); err != nil {
		m.releaseLease(ctx, account.ID)
		return nil, err
	}
	if err := m.state.SetCurrentAccount(ctx, account); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist current account")
	}

	result, installErr := m.injector.Install(ctx, account)
	if installErr != nil {
		logger.Error().Err(installErr).Str("account_id", id.String()).Msg("Install failed, removing partial credentials")
		if err := m.transition(ctx, models.PhaseCleaned); err != nil {
			logger.Error().Err(err).Msg("Failed to enter CLEANED")
		}
		if _, err := m.cleanup.Cleanup(ctx, cleanup.AllDomains()); err != nil {
			logger.Warn().Err(err).Msg("Cleanup after failed install incomplete")
		}
		if err := m.transition(ctx, models.PhaseNone); err != nil {
			logger.Error().Err(err).Msg("Failed to return to NONE")
		}
		return nil, fmt.Errorf("install account %s: %w", id, installErr)
	}

	if err := m.transition(ctx, models.PhaseActive); err != nil {
		return nil, err
	}
	if err := m.tracker.Reset(ctx); err != nil {
		logger.Warn().Err(err).Msg("Occupancy rescan failed")
	}

	if m.openOnSwitch && len(result.Domains) > 0 {
		if _, err := m.browser.OpenContext(ctx, "https://"+result.Domains[0]+"/"); err != nil {
			logger.Warn().Err(err).Str("domain", result.Domains[0]).Msg("Failed to open tab for switched account")
		}
	}

	if m.analytics != nil {
		m.analytics.Track(models.AnalyticsAccountSwitch, account.ID, "", map[string]string{"name": account.Name})
		m.analytics.Track(models.AnalyticsSessionStart, account.ID, "", nil)
	}

	logger.Info().
		Str("account_id", id.String()).
		Strs("domains", result.Domains).
		Int("active", lease.ActiveCount).
		Int("max", lease.MaxCount).
		Msg("Account switched in")

	m.publish(ctx, interfaces.EventAccountSwitched, map[string]interface{}{
		"account_id": account.ID,
		"name":       account.Name,
		"domains":    result.Domains,
	})
	return m.state.CurrentAccount(), nil
}

func (m *Manager) findAccount(ctx context.Context, id models.AccountID) (*models.Account, error) {
	accounts, err := m.backend.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	for i := range accounts {
		if accounts[i].ID == id {
			return &accounts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", models.ErrAccountNotFound, id)
}

// releaseLease gives back a slot taken by a switch that could not proceed
func (m *Manager) releaseLease(ctx context.Context, id models.AccountID) {
	if err := m.backend.EndSession(ctx, id); err != nil {
		m.opLogger().Warn().Err(err).Str("account_id", id.String()).Msg("Failed to release session slot")
	}
}

// Suspend tears down the current account because the browser is going away
func (m *Manager) Suspend(ctx context.Context) error {
	return m.Do(ctx, "suspend", func(ctx context.Context) error {
		return m.suspend(ctx)
	})
}

func (m *Manager) suspend(ctx context.Context) error {
	if m.state.CurrentAccount() == nil {
		return nil
	}
	return m.teardownAll(ctx, models.PhaseSuspending)
}

// TokenRejected handles a 401 from any backend call: the token is marked
// rejected and a validation pass is queued to tear the account down. It never
// blocks, so the backend client may call it from inside a running operation.
func (m *Manager) TokenRejected() {
	m.auth.MarkRejected()
	op := operation{
		name: "token-rejected",
		ctx:  context.Background(),
		fn: func(ctx context.Context) error {
			_, err := m.validator.Tick(ctx)
			return err
		},
		done: make(chan error, 1),
	}
	select {
	case m.ops <- op:
	default:
		m.logger.Warn().Msg("Operation queue full, rejected token left to the next validation tick")
	}
}

// RunValidation performs one token and session validation tick
func (m *Manager) RunValidation(ctx context.Context) (validation.Result, error) {
	var result validation.Result
	err := m.Do(ctx, "validate", func(ctx context.Context) error {
		res, err := m.validator.Tick(ctx)
		result = res
		return err
	})
	return result, err
}

// PollGate re-checks the current account's quota and evicts it when a
// concurrent actor pushed it over
func (m *Manager) PollGate(ctx context.Context) error {
	return m.Do(ctx, "gate-poll", func(ctx context.Context) error {
		account := m.state.CurrentAccount()
		if account == nil || !m.auth.HasToken(ctx) {
			return nil
		}

		_, err := m.gate.Check(ctx, account)
		var quotaErr *models.QuotaError
		if !errors.As(err, &quotaErr) {
			if err != nil {
				m.opLogger().Warn().Err(err).Msg("Quota poll failed")
			}
			return nil
		}

		teardownErr := m.teardownAll(ctx, models.PhaseEvicting)
		m.publish(ctx, interfaces.EventAccountEvicted, map[string]interface{}{
			"account_id": account.ID,
			"active":     quotaErr.Active,
			"max":        quotaErr.Max,
		})
		return teardownErr
	})
}

// HandleMessage serves a UI message. Failures are reported in the response.
func (m *Manager) HandleMessage(ctx context.Context, msg models.Message) models.MessageResponse {
	resp := models.MessageResponse{Type: msg.Type, Success: true}

	var err error
	switch msg.Type {
	case models.MessageSetManagedDomains:
		err = m.Do(ctx, "set-managed-domains", func(ctx context.Context) error {
			if err := m.state.SetManagedDomains(ctx, msg.Domains); err != nil {
				return err
			}
			resp.Domains = m.state.ManagedDomains()
			if err := m.tracker.Rescan(ctx); err != nil {
				m.opLogger().Warn().Err(err).Msg("Occupancy rescan failed")
			}
			return nil
		})

	case models.MessageCleanupCookies:
		err = m.Do(ctx, "cleanup-cookies", func(ctx context.Context) error {
			if domain := common.NormalizeDomain(msg.Domain); domain != "" {
				resp.Domains = []string{domain}
				return m.cleanupDomain(ctx, domain)
			}
			resp.Domains = m.state.ManagedDomains()
			return m.teardownAll(ctx, models.PhaseLoggingOut)
		})

	case models.MessageGetCurrentAccount:
		resp.Account = m.state.CurrentAccount()
		resp.Domains = m.state.ManagedDomains()

	case models.MessageSessionExpired:
		// The UI saw the backend reject us; confirm with a validation tick now
		_, err = m.RunValidation(ctx)

	default:
		err = fmt.Errorf("unsupported message type %q", msg.Type)
	}

	if err != nil {
		resp.Success = false
		resp.Error = err.Error()
	}
	return resp
}
