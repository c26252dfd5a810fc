package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
	"github.com/ternarybob/cookiepool/internal/services/events"
)

// dial connects a client and consumes the hello message
func dial(t *testing.T, h *WebSocketHandler) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello WSMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, "hello", hello.Type)
	return conn
}

func TestWebSocket_MessageIsAcknowledged(t *testing.T) {
	manager := &fakeManager{accounts: poolAccounts()}
	h := NewWebSocketHandler(manager, arbor.NewLogger())
	conn := dial(t, h)

	require.NoError(t, conn.WriteJSON(models.Message{
		Type:    models.MessageSetManagedDomains,
		Domains: []string{"example.com"},
	}))

	var resp models.MessageResponse
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, models.MessageSetManagedDomains, resp.Type)
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"example.com"}, resp.Domains)
}

func TestWebSocket_InvalidJSONIsRejectedWithoutClosing(t *testing.T) {
	h := NewWebSocketHandler(&fakeManager{}, arbor.NewLogger())
	conn := dial(t, h)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var resp models.MessageResponse
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "invalid message")

	// The connection is still usable
	require.NoError(t, conn.WriteJSON(models.Message{Type: models.MessageGetCurrentAccount}))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.True(t, resp.Success)
}

func TestEventSubscriber_BroadcastsManagerEvents(t *testing.T) {
	logger := arbor.NewLogger()
	bus := events.NewService(logger)
	t.Cleanup(func() { _ = bus.Close() })

	h := NewWebSocketHandler(&fakeManager{}, logger)
	subscriber := NewEventSubscriber(h, bus, logger, &common.WebSocketConfig{})
	t.Cleanup(subscriber.Close)

	conn := dial(t, h)
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventDomainVacated,
		Payload: map[string]string{"domain": "example.com"},
	}))

	var msg WSMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, string(interfaces.EventDomainVacated), msg.Type)
	payload, ok := msg.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "example.com", payload["domain"])
}

func TestEventSubscriber_WhitelistAndThrottle(t *testing.T) {
	logger := arbor.NewLogger()
	h := NewWebSocketHandler(&fakeManager{}, logger)
	s := NewEventSubscriber(h, nil, logger, &common.WebSocketConfig{
		AllowedEvents:     []string{"SESSION_EXPIRED", "operation_log"},
		ThrottleIntervals: map[string]string{"operation_log": "1h", "bogus": "not-a-duration"},
	})

	assert.True(t, s.shouldBroadcastEvent("SESSION_EXPIRED"))
	assert.False(t, s.shouldBroadcastEvent("DOMAIN_VACATED"), "not whitelisted")

	assert.True(t, s.shouldBroadcastEvent("operation_log"))
	assert.False(t, s.shouldBroadcastEvent("operation_log"), "second within the interval is throttled")
	assert.NotContains(t, s.throttlers, "bogus")
}
