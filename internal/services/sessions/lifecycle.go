package sessions

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/cookiepool/internal/models"
	"github.com/ternarybob/cookiepool/internal/services/cleanup"
)

// transitions is the legal lifecycle table; every teardown converges on CLEANED
var transitions = map[models.Phase][]models.Phase{
	models.PhaseNone:       {models.PhaseInstalling},
	models.PhaseInstalling: {models.PhaseActive, models.PhaseCleaned},
	models.PhaseActive: {
		models.PhaseVacating,
		models.PhaseEvicting,
		models.PhaseLoggingOut,
		models.PhaseSuspending,
	},
	models.PhaseVacating:   {models.PhaseCleaned},
	models.PhaseEvicting:   {models.PhaseCleaned},
	models.PhaseLoggingOut: {models.PhaseCleaned},
	models.PhaseSuspending: {models.PhaseCleaned},
	models.PhaseCleaned:    {models.PhaseNone},
}

// CanTransition reports whether from -> to is a legal lifecycle move
func CanTransition(from, to models.Phase) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves the lifecycle to phase. A persist failure is logged: the
// in-memory phase still moved and the next mutation persists it again.
func (m *Manager) transition(ctx context.Context, to models.Phase) error {
	from := m.state.Phase()
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrIllegalTransition, from, to)
	}
	if err := m.state.SetPhase(ctx, to); err != nil {
		m.opLogger().Warn().Err(err).Str("phase", string(to)).Msg("Failed to persist phase")
	}
	m.opLogger().Info().Str("from", string(from)).Str("to", string(to)).Msg("Lifecycle transition")
	return nil
}

// teardownAll removes everything of the current account through reason, one of
// the teardown phases, and returns the lifecycle to NONE. Without a current
// account it only removes leftover artifacts.
func (m *Manager) teardownAll(ctx context.Context, reason models.Phase) error {
	account := m.state.CurrentAccount()
	if account == nil {
		_, err := m.cleanup.Cleanup(ctx, cleanup.AllDomains())
		return err
	}

	if err := m.transition(ctx, reason); err != nil {
		// Credentials never outlive a confused lifecycle
		m.opLogger().Error().Err(err).Str("account_id", account.ID.String()).Msg("Teardown from unexpected phase")
		_, cleanupErr := m.cleanup.Cleanup(ctx, cleanup.AllDomains())
		if perr := m.state.SetPhase(ctx, models.PhaseNone); perr != nil {
			m.opLogger().Warn().Err(perr).Msg("Failed to persist phase")
		}
		return errors.Join(err, cleanupErr)
	}

	m.opLogger().Info().
		Str("account_id", account.ID.String()).
		Str("reason", string(reason)).
		Msg("Tearing down account")

	_, cleanupErr := m.cleanup.Cleanup(ctx, cleanup.AllDomains())
	if cleanupErr != nil {
		m.opLogger().Warn().Err(cleanupErr).Str("account_id", account.ID.String()).Msg("Teardown left artifacts behind")
	}

	m.finishTeardown(ctx)
	if m.analytics != nil {
		m.analytics.Track(models.AnalyticsSessionEnd, account.ID, "", map[string]string{"reason": string(reason)})
	}
	return cleanupErr
}

// resumeTeardown finishes an install or teardown the previous process was
// interrupted in. The restored account's artifacts and lease are removed and
// the lifecycle walks CLEANED -> NONE.
func (m *Manager) resumeTeardown(ctx context.Context) error {
	account := m.state.CurrentAccount()
	phase := m.state.Phase()
	if account == nil || phase == models.PhaseActive {
		return nil
	}

	m.opLogger().Warn().
		Str("account_id", account.ID.String()).
		Str("phase", string(phase)).
		Msg("Resuming interrupted lifecycle, tearing down")

	_, cleanupErr := m.cleanup.Cleanup(ctx, cleanup.AllDomains())
	if cleanupErr != nil {
		m.opLogger().Warn().Err(cleanupErr).Str("account_id", account.ID.String()).Msg("Teardown left artifacts behind")
	}

	m.finishTeardown(ctx)
	if m.analytics != nil {
		m.analytics.Track(models.AnalyticsSessionEnd, account.ID, "", map[string]string{"reason": string(phase)})
	}
	return cleanupErr
}

// finishTeardown walks CLEANED -> NONE and forgets occupancy of the old account
func (m *Manager) finishTeardown(ctx context.Context) {
	if m.state.Phase() != models.PhaseCleaned {
		if err := m.transition(ctx, models.PhaseCleaned); err != nil {
			m.opLogger().Error().Err(err).Msg("Failed to enter CLEANED")
		}
	}
	if err := m.transition(ctx, models.PhaseNone); err != nil {
		m.opLogger().Error().Err(err).Msg("Failed to return to NONE")
	}
	if err := m.tracker.Reset(ctx); err != nil {
		m.opLogger().Warn().Err(err).Msg("Occupancy rescan failed")
	}
}

// cleanupDomain tears down one vacated domain. When it was the last managed
// domain of a current account, nothing justifies the lease any more and the
// account is torn down fully.
func (m *Manager) cleanupDomain(ctx context.Context, domain string) error {
	_, err := m.cleanup.Cleanup(ctx, cleanup.Domain(domain))
	if err != nil {
		m.opLogger().Warn().Err(err).Str("domain", domain).Msg("Domain cleanup incomplete")
	}

	if m.state.CurrentAccount() != nil && len(m.state.ManagedDomains()) == 0 && m.state.Phase() == models.PhaseActive {
		m.opLogger().Info().Str("domain", domain).Msg("Last managed domain vacated, ending account")
		if teardownErr := m.teardownAll(ctx, models.PhaseVacating); teardownErr != nil && err == nil {
			err = teardownErr
		}
	}
	return err
}
