package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/backend/backendtest"
	"github.com/ternarybob/cookiepool/internal/models"
)

func TestAdmit_AtMostNLeases(t *testing.T) {
	ctx := context.Background()
	account := models.Account{ID: "7", MaxConcurrentUsers: 3}
	backend := backendtest.New(account)
	gate := NewGate(backend, 1, arbor.NewLogger())

	for i := 1; i <= 3; i++ {
		lease, err := gate.Admit(ctx, &account, "")
		require.NoError(t, err)
		assert.Equal(t, i, lease.ActiveCount)
		assert.Equal(t, 3, lease.MaxCount)
	}

	_, err := gate.Admit(ctx, &account, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrQuotaExceeded))

	var quotaErr *models.QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, 3, quotaErr.Active)
	assert.Equal(t, 3, quotaErr.Max)
	assert.Equal(t, 3, backend.CountCalls("StartSession:7"))
}

func TestAdmit_Reentrant(t *testing.T) {
	ctx := context.Background()
	account := models.Account{ID: "7", MaxConcurrentUsers: 1, ActiveSessions: 1}
	backend := backendtest.New(account)
	gate := NewGate(backend, 1, arbor.NewLogger())

	for i := 0; i < 2; i++ {
		lease, err := gate.Admit(ctx, &account, "7")
		require.NoError(t, err)
		assert.True(t, lease.Reentrant)
	}

	assert.Empty(t, backend.Calls(), "reentrant admission must not consult or bump the counter")
	status, err := backend.GetSessionStatus(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, 1, status.ActiveSessions)
}

func TestAdmit_DefaultMax(t *testing.T) {
	ctx := context.Background()
	account := models.Account{ID: "9"}
	gate := NewGate(backendtest.New(account), 2, arbor.NewLogger())

	lease, err := gate.Admit(ctx, &account, "")
	require.NoError(t, err)
	assert.Equal(t, 2, lease.MaxCount)
}

func TestAdmit_BackendFailure(t *testing.T) {
	ctx := context.Background()
	account := models.Account{ID: "7", MaxConcurrentUsers: 3}
	backend := backendtest.New(account)
	backend.StatusErr = models.ErrTransientNetwork
	gate := NewGate(backend, 1, arbor.NewLogger())

	_, err := gate.Admit(ctx, &account, "")
	assert.ErrorIs(t, err, models.ErrTransientNetwork)
	assert.Zero(t, backend.CountCalls("StartSession:7"))
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	account := models.Account{ID: "7", MaxConcurrentUsers: 2}
	backend := backendtest.New(account)
	gate := NewGate(backend, 1, arbor.NewLogger())

	backend.SetStatus("7", models.SessionStatus{ActiveSessions: 2, MaxConcurrentUsers: 2})
	_, err := gate.Check(ctx, &account)
	assert.NoError(t, err, "holding the last slot is not an eviction")

	backend.SetStatus("7", models.SessionStatus{ActiveSessions: 3, MaxConcurrentUsers: 2})
	_, err = gate.Check(ctx, &account)
	assert.ErrorIs(t, err, models.ErrQuotaExceeded)
}
