package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/backend/backendtest"
	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/models"
)

type staticEmail string

func (s staticEmail) UserEmail() string { return string(s) }

func TestTrackAndFlush(t *testing.T) {
	backend := backendtest.New()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := NewService(backend, staticEmail("user@example.com"), common.AnalyticsConfig{Enabled: true, BatchSize: 2}, clock, arbor.NewLogger())

	svc.Track(models.AnalyticsAccountSwitch, "7", "a.com", map[string]string{"name": "Seven"})

	sent, err := svc.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	batches := backend.AnalyticsBatches()
	require.Len(t, batches, 1)
	event := batches[0][0]
	assert.Contains(t, event.ID, "evt_")
	assert.Equal(t, models.AnalyticsAccountSwitch, event.Type)
	assert.Equal(t, "user@example.com", event.UserEmail)
	assert.Equal(t, clock.Now(), event.Timestamp)
	assert.Zero(t, svc.Pending())
}

func TestFlush_FullBatchInBackground(t *testing.T) {
	backend := backendtest.New()
	svc := NewService(backend, staticEmail("user@example.com"), common.AnalyticsConfig{Enabled: true, BatchSize: 2}, nil, arbor.NewLogger())

	svc.Track(models.AnalyticsSessionStart, "7", "", nil)
	svc.Track(models.AnalyticsSessionEnd, "7", "", nil)

	assert.Eventually(t, func() bool {
		return len(backend.AnalyticsBatches()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFlush_RequeuesOnFailure(t *testing.T) {
	backend := backendtest.New()
	backend.AnalyticsErr = models.ErrTransientNetwork
	svc := NewService(backend, staticEmail("user@example.com"), common.AnalyticsConfig{Enabled: true, BatchSize: 10}, nil, arbor.NewLogger())

	svc.Track(models.AnalyticsPageView, "", "a.com", nil)
	_, err := svc.Flush(context.Background())
	assert.ErrorIs(t, err, models.ErrTransientNetwork)
	assert.Equal(t, 1, svc.Pending())

	backend.AnalyticsErr = nil
	sent, err := svc.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestDormantAndDisabled(t *testing.T) {
	backend := backendtest.New()

	loggedOut := NewService(backend, staticEmail(""), common.AnalyticsConfig{Enabled: true, BatchSize: 10}, nil, arbor.NewLogger())
	loggedOut.Track(models.AnalyticsPageView, "", "a.com", nil)
	sent, err := loggedOut.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, 1, loggedOut.Pending())

	disabled := NewService(backend, staticEmail("user@example.com"), common.AnalyticsConfig{BatchSize: 10}, nil, arbor.NewLogger())
	disabled.Track(models.AnalyticsPageView, "", "a.com", nil)
	assert.Zero(t, disabled.Pending())
	assert.Empty(t, backend.Calls())
}

func eventsOfType(events []models.AnalyticsEvent, eventType models.AnalyticsEventType) []models.AnalyticsEvent {
	var matched []models.AnalyticsEvent
	for _, e := range events {
		if e.Type == eventType {
			matched = append(matched, e)
		}
	}
	return matched
}

func TestPageViews_IdleDomainEndsSession(t *testing.T) {
	backend := backendtest.New()
	clock := clockwork.NewFakeClock()
	config := common.AnalyticsConfig{Enabled: true, BatchSize: 100, InactivityTimeout: "60s"}
	svc := NewService(backend, staticEmail("user@example.com"), config, clock, arbor.NewLogger())
	ctx := context.Background()

	svc.Track(models.AnalyticsPageView, "7", "a.com", nil)
	clock.Advance(45 * time.Second)
	svc.Track(models.AnalyticsPageView, "7", "a.com", nil)

	// 90s after the first view but only 45s after the last
	clock.Advance(45 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, svc.Pending(), "activity re-arms the timer")

	clock.Advance(15 * time.Second)
	assert.Eventually(t, func() bool { return svc.Pending() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, svc.Idle())

	_, err := svc.Flush(ctx)
	require.NoError(t, err)
	ended := eventsOfType(backend.AnalyticsBatches()[0], models.AnalyticsSessionEnd)
	require.Len(t, ended, 1)
	assert.Equal(t, "a.com", ended[0].Domain)
	assert.Equal(t, models.AccountID("7"), ended[0].AccountID)
	assert.Equal(t, "inactivity", ended[0].Data["reason"])

	// Coming back after the idle end opens a new session for the domain
	svc.Track(models.AnalyticsPageView, "7", "a.com", nil)
	_, err = svc.Flush(ctx)
	require.NoError(t, err)
	resumed := eventsOfType(backend.AnalyticsBatches()[1], models.AnalyticsSessionStart)
	require.Len(t, resumed, 1)
	assert.Equal(t, "a.com", resumed[0].Domain)
}

func TestSessionEnd_DisarmsIdleTimers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	svc := NewService(backendtest.New(), staticEmail("user@example.com"), common.AnalyticsConfig{Enabled: true, BatchSize: 100}, clock, arbor.NewLogger())

	svc.Track(models.AnalyticsPageView, "7", "a.com", nil)
	svc.Track(models.AnalyticsPageView, "7", "b.com", nil)
	assert.ElementsMatch(t, []string{"a.com", "b.com"}, svc.Idle())

	// A full teardown ends the account's session on every domain
	svc.Track(models.AnalyticsSessionEnd, "7", "", map[string]string{"reason": "LOGGING_OUT"})
	assert.Empty(t, svc.Idle())

	clock.Advance(DefaultInactivityTimeout * 2)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, svc.Pending(), "no idle ends after teardown")
}
