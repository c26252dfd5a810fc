package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/interfaces"
)

func TestPublish_DeliversToSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	received := make(chan interfaces.Event, 2)

	require.NoError(t, svc.Subscribe(interfaces.EventDomainVacated, func(ctx context.Context, e interfaces.Event) error {
		received <- e
		return nil
	}))

	require.NoError(t, svc.Publish(context.Background(), interfaces.Event{
		Type:    interfaces.EventDomainVacated,
		Payload: map[string]string{"domain": "example.com"},
	}))

	select {
	case e := <-received:
		assert.Equal(t, interfaces.EventDomainVacated, e.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

func TestPublishSync_CollectsErrorsAndRecoversPanics(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	var calls atomic.Int32

	require.NoError(t, svc.Subscribe(interfaces.EventSessionExpired, func(ctx context.Context, e interfaces.Event) error {
		calls.Add(1)
		return errors.New("ui offline")
	}))
	require.NoError(t, svc.Subscribe(interfaces.EventSessionExpired, func(ctx context.Context, e interfaces.Event) error {
		calls.Add(1)
		panic("boom")
	}))
	require.NoError(t, svc.Subscribe(interfaces.EventSessionExpired, func(ctx context.Context, e interfaces.Event) error {
		calls.Add(1)
		return nil
	}))

	err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventSessionExpired})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ui offline")
	assert.Equal(t, int32(3), calls.Load())
}

func TestUnsubscribe(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	var calls atomic.Int32
	handler := func(ctx context.Context, e interfaces.Event) error {
		calls.Add(1)
		return nil
	}

	require.NoError(t, svc.Subscribe(interfaces.EventLoggedOut, handler))
	require.NoError(t, svc.Unsubscribe(interfaces.EventLoggedOut, handler))
	assert.Error(t, svc.Unsubscribe(interfaces.EventLoggedOut, handler))

	require.NoError(t, svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventLoggedOut}))
	assert.Zero(t, calls.Load())
}

func TestClose(t *testing.T) {
	svc := NewService(arbor.NewLogger())
	require.NoError(t, svc.Subscribe(interfaces.EventLoggedOut, func(ctx context.Context, e interfaces.Event) error { return nil }))
	require.NoError(t, svc.Close())

	err := svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventLoggedOut})
	assert.ErrorIs(t, err, ErrClosed)
}
