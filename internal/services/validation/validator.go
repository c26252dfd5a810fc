// Package validation runs the periodic token and session checks that detect
// remote invalidation while the manager is otherwise idle.
package validation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// Result is the outcome of one validation tick
type Result string

const (
	ResultDormant       Result = "dormant"        // No token held
	ResultValid         Result = "valid"          // Token and session accepted
	ResultTokenRejected Result = "token_rejected" // Full teardown, token cleared
	ResultAccountEnded  Result = "account_ended"  // Full teardown, token kept
)

// TokenHolder is the AuthToken custody the validator checks and clears.
// TokenRejected reports a held token some other backend call got a 401 for.
type TokenHolder interface {
	HasToken(ctx context.Context) bool
	TokenRejected(ctx context.Context) bool
	ClearToken(ctx context.Context) error
}

// AccountSource reports the current account, if any
type AccountSource interface {
	CurrentAccount() *models.Account
}

// Teardown runs a full cleanup. With an account current it moves through the
// given teardown phase; without one it only removes leftover artifacts.
type Teardown interface {
	TeardownAll(ctx context.Context, reason models.Phase) error
}

// Publisher delivers outward notifications
type Publisher interface {
	Publish(ctx context.Context, event interfaces.Event) error
}

// Validator checks the token and the current account's backend session
type Validator struct {
	backend  interfaces.BackendClient
	tokens   TokenHolder
	accounts AccountSource
	teardown Teardown
	events   Publisher
	logger   arbor.ILogger
}

func NewValidator(backend interfaces.BackendClient, tokens TokenHolder, accounts AccountSource, teardown Teardown, events Publisher, logger arbor.ILogger) *Validator {
	return &Validator{
		backend:  backend,
		tokens:   tokens,
		accounts: accounts,
		teardown: teardown,
		events:   events,
		logger:   logger,
	}
}

// Tick runs one validation pass. Invalidation is reported as a notification
// and a Result; the returned error only carries teardown failures.
func (v *Validator) Tick(ctx context.Context) (Result, error) {
	if v.tokens.TokenRejected(ctx) {
		return ResultTokenRejected, v.expireToken(ctx, models.ErrNotLoggedIn)
	}
	if !v.tokens.HasToken(ctx) {
		return ResultDormant, nil
	}

	if err := v.backend.Validate(ctx); err != nil {
		return ResultTokenRejected, v.expireToken(ctx, err)
	}

	account := v.accounts.CurrentAccount()
	if account == nil {
		return ResultValid, nil
	}

	status, err := v.backend.GetSessionStatus(ctx, account.ID)
	if err != nil {
		// A status read failure is not evidence the session ended
		v.logger.Warn().Err(err).Str("account_id", account.ID.String()).Msg("Session status check failed")
		return ResultValid, nil
	}
	if !status.Ended() {
		return ResultValid, nil
	}

	v.logger.Warn().
		Str("account_id", account.ID.String()).
		Str("status", status.Status).
		Msg("Backend ended the current session")

	teardownErr := v.teardown.TeardownAll(ctx, models.PhaseEvicting)
	v.publish(ctx, interfaces.EventAccountEnded, map[string]string{
		"account_id": account.ID.String(),
		"status":     status.Status,
	})
	return ResultAccountEnded, teardownErr
}

func (v *Validator) expireToken(ctx context.Context, cause error) error {
	v.logger.Warn().Err(cause).Msg("Auth token rejected, tearing down")

	var errs []error
	if err := v.teardown.TeardownAll(ctx, models.PhaseEvicting); err != nil {
		errs = append(errs, fmt.Errorf("teardown: %w", err))
	}
	if err := v.tokens.ClearToken(ctx); err != nil {
		errs = append(errs, err)
	}

	reason := "token rejected"
	if !errors.Is(cause, models.ErrNotLoggedIn) {
		reason = "token validation failed"
	}
	v.publish(ctx, interfaces.EventSessionExpired, map[string]string{
		"reason": reason,
		"error":  cause.Error(),
	})
	return errors.Join(errs...)
}

func (v *Validator) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]string) {
	if err := v.events.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload}); err != nil {
		v.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to publish event")
	}
}
