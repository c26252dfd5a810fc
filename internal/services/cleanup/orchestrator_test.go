package cleanup

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/backend/backendtest"
	"github.com/ternarybob/cookiepool/internal/browser/memory"
	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/models"
	"github.com/ternarybob/cookiepool/internal/services/state"
	"github.com/ternarybob/cookiepool/internal/storage/badger"
)

type fixture struct {
	browser *memory.Browser
	backend *backendtest.Fake
	state   *state.Service
	orch    *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := arbor.NewLogger()
	manager, err := badger.NewManager(logger, &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	account := models.Account{
		ID:                 "x",
		MaxConcurrentUsers: 3,
		ActiveSessions:     1,
		Credentials:        []models.CredentialEntry{{Domain: "a.com", Name: "sid", Value: "abc"}},
	}
	f := &fixture{
		browser: memory.New(),
		backend: backendtest.New(account),
		state:   state.NewService(manager.StateStorage(), nil, logger),
	}
	f.orch = NewOrchestrator(f.browser, f.backend, f.state, logger)

	ctx := context.Background()
	require.NoError(t, f.state.SetUserEmail(ctx, "user@example.com"))
	require.NoError(t, f.state.SetCurrentAccount(ctx, &account))
	require.NoError(t, f.state.SetManagedDomains(ctx, []string{"a.com", "b.com"}))

	for _, p := range []models.CookieParam{
		{URL: "https://a.com/", Name: "sid", Value: "abc", Secure: true},
		{URL: "https://b.com/", Name: "sid", Value: "def", Secure: true},
		{URL: "https://other.com/", Name: "sid", Value: "keep", Secure: true},
	} {
		require.NoError(t, f.browser.SetCookie(ctx, p))
	}
	return f
}

func (f *fixture) cookieHosts(t *testing.T) []string {
	t.Helper()
	cookies, err := f.browser.GetCookies(context.Background())
	require.NoError(t, err)
	var hosts []string
	for _, c := range cookies {
		hosts = append(hosts, c.Domain)
	}
	return hosts
}

func TestCleanup_DomainScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.orch.Cleanup(ctx, Domain("A.com"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.CookiesRemoved)
	assert.False(t, report.SessionEnded)

	assert.ElementsMatch(t, []string{"b.com", "other.com"}, f.cookieHosts(t))
	assert.Equal(t, []string{"b.com"}, f.state.ManagedDomains())
	assert.NotNil(t, f.state.CurrentAccount(), "domain scope keeps the account")
	assert.Equal(t, 1, f.backend.CountCalls("DeleteDomainSessions:a.com"))
	assert.Zero(t, f.backend.CountCalls("EndSession:x"))
}

func TestCleanup_AllScope(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tab, err := f.browser.OpenContext(ctx, "https://a.com/home")
	require.NoError(t, err)
	require.NoError(t, f.browser.InjectStorage(ctx, tab.ID, models.StoragePayload{Local: map[string]string{"k": "v"}}))

	report, err := f.orch.Cleanup(ctx, AllDomains())
	require.NoError(t, err)
	assert.True(t, report.SessionEnded)
	assert.Equal(t, 1, report.StorageCleared)
	assert.Equal(t, 2, report.CookiesRemoved)

	local, _ := f.browser.Storage("a.com")
	assert.Empty(t, local)
	assert.Equal(t, []string{"other.com"}, f.cookieHosts(t))
	assert.Empty(t, f.state.ManagedDomains())
	assert.Nil(t, f.state.CurrentAccount())

	calls := f.backend.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, "EndSession:x", calls[0], "the lease ends before local artifacts are removed")
}

func TestCleanup_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Cleanup(ctx, AllDomains())
	require.NoError(t, err)
	callsAfterFirst := len(f.backend.Calls())
	hostsAfterFirst := f.cookieHosts(t)

	report, err := f.orch.Cleanup(ctx, AllDomains())
	require.NoError(t, err)
	assert.Zero(t, report.CookiesRemoved)
	assert.Len(t, f.backend.Calls(), callsAfterFirst, "second run makes no backend calls")
	assert.Equal(t, hostsAfterFirst, f.cookieHosts(t))
	assert.Empty(t, f.state.ManagedDomains())

	_, err = f.orch.Cleanup(ctx, Domain("a.com"))
	require.NoError(t, err)
	_, err = f.orch.Cleanup(ctx, Domain("a.com"))
	require.NoError(t, err)
}

func TestCleanup_BackendFailureIsNotAnError(t *testing.T) {
	f := newFixture(t)
	f.backend.EndErr = models.ErrTransientNetwork
	f.backend.DeleteErr = models.ErrTransientNetwork

	report, err := f.orch.Cleanup(context.Background(), AllDomains())
	require.NoError(t, err)
	assert.False(t, report.SessionEnded)
	assert.Nil(t, f.state.CurrentAccount())
}

func TestCleanup_PartialFailureContinues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.browser.FailRemove(func(url, name string) error {
		if url == "https://a.com/" || url == "http://a.com/" {
			return errors.New("locked")
		}
		return nil
	})

	report, err := f.orch.Cleanup(ctx, AllDomains())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrPartialCleanup)
	assert.NotEmpty(t, report.Failures)

	// Later steps still ran
	assert.NotContains(t, f.cookieHosts(t), "b.com")
	assert.Nil(t, f.state.CurrentAccount())

	// Re-invoking is the recovery path
	f.browser.FailRemove(nil)
	_, err = f.orch.Cleanup(ctx, Domain("a.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"other.com"}, f.cookieHosts(t))
}
