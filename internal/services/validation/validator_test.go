package validation

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/backend"
	"github.com/ternarybob/cookiepool/internal/backend/backendtest"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

type fakeTokens struct{ held, rejected bool }

func (f *fakeTokens) HasToken(ctx context.Context) bool      { return f.held }
func (f *fakeTokens) TokenRejected(ctx context.Context) bool { return f.held && f.rejected }
func (f *fakeTokens) ClearToken(ctx context.Context) error {
	f.held = false
	f.rejected = false
	return nil
}

type fakeAccounts struct{ current *models.Account }

func (f *fakeAccounts) CurrentAccount() *models.Account { return f.current }

type fakeTeardown struct {
	accounts *fakeAccounts
	reasons  []models.Phase
}

func (f *fakeTeardown) TeardownAll(ctx context.Context, reason models.Phase) error {
	f.reasons = append(f.reasons, reason)
	f.accounts.current = nil
	return nil
}

type recordedEvents struct{ events []interfaces.Event }

func (r *recordedEvents) Publish(ctx context.Context, event interfaces.Event) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordedEvents) count(t interfaces.EventType) int {
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fixture struct {
	backend   *backendtest.Fake
	tokens    *fakeTokens
	accounts  *fakeAccounts
	teardown  *fakeTeardown
	events    *recordedEvents
	validator *Validator
}

func newFixture(current *models.Account) *fixture {
	f := &fixture{
		tokens:   &fakeTokens{held: true},
		accounts: &fakeAccounts{current: current},
		events:   &recordedEvents{},
	}
	if current != nil {
		f.backend = backendtest.New(*current)
	} else {
		f.backend = backendtest.New()
	}
	f.teardown = &fakeTeardown{accounts: f.accounts}
	f.validator = NewValidator(f.backend, f.tokens, f.accounts, f.teardown, f.events, arbor.NewLogger())
	return f
}

func TestTick_DormantWithoutToken(t *testing.T) {
	f := newFixture(nil)
	f.tokens.held = false

	result, err := f.validator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultDormant, result)
	assert.Empty(t, f.backend.Calls())
}

func TestTick_UnauthorizedExpiresSessionOnce(t *testing.T) {
	f := newFixture(&models.Account{ID: "x", MaxConcurrentUsers: 3})
	unauthorized := &backend.APIError{StatusCode: 401, Endpoint: "GET /api/auth/validate"}
	f.backend.SetValidateErr(unauthorized)

	result, err := f.validator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultTokenRejected, result)
	assert.False(t, f.tokens.held, "token cleared")
	assert.Equal(t, []models.Phase{models.PhaseEvicting}, f.teardown.reasons)
	assert.Equal(t, 1, f.events.count(interfaces.EventSessionExpired))

	// The next tick is dormant and emits nothing further
	result, err = f.validator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultDormant, result)
	assert.Equal(t, 1, f.events.count(interfaces.EventSessionExpired))
}

func TestTick_RejectedTokenTearsDownWithoutCallingBackend(t *testing.T) {
	f := newFixture(&models.Account{ID: "x", MaxConcurrentUsers: 3})
	f.tokens.rejected = true

	result, err := f.validator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultTokenRejected, result)
	assert.False(t, f.tokens.held, "token cleared")
	assert.Nil(t, f.accounts.current)
	assert.Equal(t, []models.Phase{models.PhaseEvicting}, f.teardown.reasons)
	assert.Equal(t, 1, f.events.count(interfaces.EventSessionExpired))
	assert.Empty(t, f.backend.Calls(), "a known rejection needs no validate round trip")
}

func TestTick_TransportErrorTreatedAsRejection(t *testing.T) {
	f := newFixture(nil)
	f.backend.SetValidateErr(fmt.Errorf("GET /api/auth/validate: %w", models.ErrTransientNetwork))

	result, err := f.validator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultTokenRejected, result)
	assert.False(t, f.tokens.held)
	assert.Len(t, f.teardown.reasons, 1)
}

func TestTick_AccountEndedKeepsToken(t *testing.T) {
	account := &models.Account{ID: "x", MaxConcurrentUsers: 3}
	f := newFixture(account)
	inactive := false
	f.backend.SetStatus("x", models.SessionStatus{ActiveSessions: 1, MaxConcurrentUsers: 3, Active: &inactive})

	result, err := f.validator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultAccountEnded, result)
	assert.True(t, f.tokens.held)
	assert.Equal(t, []models.Phase{models.PhaseEvicting}, f.teardown.reasons)
	assert.Equal(t, 1, f.events.count(interfaces.EventAccountEnded))
	assert.Zero(t, f.events.count(interfaces.EventSessionExpired))
}

func TestTick_ValidSession(t *testing.T) {
	f := newFixture(&models.Account{ID: "x", MaxConcurrentUsers: 3})

	result, err := f.validator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultValid, result)
	assert.Empty(t, f.teardown.reasons)
	assert.Equal(t, []string{"Validate", "GetSessionStatus:x"}, f.backend.Calls())
}

func TestTick_StatusFailureIsNotAnEnd(t *testing.T) {
	f := newFixture(&models.Account{ID: "x", MaxConcurrentUsers: 3})
	f.backend.StatusErr = models.ErrTransientNetwork

	result, err := f.validator.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ResultValid, result)
	assert.Empty(t, f.teardown.reasons)
}
