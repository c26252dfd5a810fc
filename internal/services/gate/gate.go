// Package gate enforces the backend-reported concurrent-session quota per account.
package gate

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// Gate admits or rejects switch-ins against an account's session quota
type Gate struct {
	backend    interfaces.BackendClient
	defaultMax int
	logger     arbor.ILogger
}

// NewGate creates a gate. defaultMax applies when the backend reports no quota.
func NewGate(backend interfaces.BackendClient, defaultMax int, logger arbor.ILogger) *Gate {
	if defaultMax <= 0 {
		defaultMax = 1
	}
	return &Gate{backend: backend, defaultMax: defaultMax, logger: logger}
}

// Admit takes a session slot on account. current is the account already
// switched in, if any: re-admitting it returns a reentrant lease without
// touching the backend counter. A full account is rejected with *models.QuotaError.
func (g *Gate) Admit(ctx context.Context, account *models.Account, current models.AccountID) (*models.SessionLease, error) {
	if current != "" && account.ID == current {
		g.logger.Debug().Str("account_id", account.ID.String()).Msg("Account already current, reentrant admission")
		return &models.SessionLease{
			AccountID: account.ID,
			Reentrant: true,
		}, nil
	}

	status, err := g.backend.GetSessionStatus(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("session status for %s: %w", account.ID, err)
	}

	active, limit := g.counts(status, account)
	if active >= limit {
		g.logger.Warn().
			Str("account_id", account.ID.String()).
			Int("active", active).
			Int("limit", limit).
			Msg("Session quota exceeded, switch rejected")
		return nil, &models.QuotaError{AccountID: account.ID, Active: active, Max: limit}
	}

	if err := g.backend.StartSession(ctx, account.ID); err != nil {
		return nil, fmt.Errorf("start session for %s: %w", account.ID, err)
	}

	g.logger.Info().
		Str("account_id", account.ID.String()).
		Int("active", active+1).
		Int("limit", limit).
		Msg("Session admitted")

	return &models.SessionLease{
		AccountID:   account.ID,
		ActiveCount: active + 1,
		MaxCount:    limit,
	}, nil
}

// Check re-reads the quota of the current account. The caller holds one of the
// active slots, so the account is over quota only when active exceeds limit.
// An over-quota account yields *models.QuotaError and must be evicted.
func (g *Gate) Check(ctx context.Context, account *models.Account) (*models.SessionStatus, error) {
	status, err := g.backend.GetSessionStatus(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("session status for %s: %w", account.ID, err)
	}

	active, limit := g.counts(status, account)
	if active > limit {
		g.logger.Warn().
			Str("account_id", account.ID.String()).
			Int("active", active).
			Int("limit", limit).
			Msg("Current account over quota, evicting")
		return status, &models.QuotaError{AccountID: account.ID, Active: active, Max: limit}
	}
	return status, nil
}

func (g *Gate) counts(status *models.SessionStatus, account *models.Account) (active, limit int) {
	active = status.ActiveSessions
	limit = status.MaxConcurrentUsers
	if limit <= 0 {
		limit = account.MaxConcurrentUsers
	}
	if limit <= 0 {
		limit = g.defaultMax
	}
	return active, limit
}
