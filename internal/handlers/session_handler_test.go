package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/backend"
	"github.com/ternarybob/cookiepool/internal/models"
	"github.com/ternarybob/cookiepool/internal/services/sessions"
)

func serve(t *testing.T, handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSwitchHandler(t *testing.T) {
	tests := []struct {
		name       string
		switchErr  error
		body       string
		wantStatus int
	}{
		{name: "success", body: `{"account_id":"x"}`, wantStatus: http.StatusOK},
		{name: "quota exceeded", body: `{"account_id":"x"}`,
			switchErr:  &models.QuotaError{AccountID: "x", Active: 3, Max: 3},
			wantStatus: http.StatusConflict},
		{name: "not logged in", body: `{"account_id":"x"}`,
			switchErr: fmt.Errorf("switch: %w", models.ErrNotLoggedIn), wantStatus: http.StatusUnauthorized},
		{name: "unknown account", body: `{"account_id":"nope"}`, wantStatus: http.StatusNotFound},
		{name: "missing account id", body: `{"account_id":"  "}`, wantStatus: http.StatusBadRequest},
		{name: "malformed body", body: `{`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := &fakeManager{accounts: poolAccounts(), switchErr: tt.switchErr}
			h := NewSessionHandler(manager, arbor.NewLogger())

			rec := serve(t, h.SwitchHandler, http.MethodPost, "/api/switch", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestSwitchHandler_QuotaMessageSurfaces(t *testing.T) {
	quotaErr := &models.QuotaError{AccountID: "x", Active: 3, Max: 3}
	h := NewSessionHandler(&fakeManager{accounts: poolAccounts(), switchErr: quotaErr}, arbor.NewLogger())

	rec := serve(t, h.SwitchHandler, http.MethodPost, "/api/switch", `{"account_id":"x"}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, quotaErr.Error(), decodeBody(t, rec)["error"])
}

func TestSwitchHandler_ResponseOmitsCredentials(t *testing.T) {
	h := NewSessionHandler(&fakeManager{accounts: poolAccounts()}, arbor.NewLogger())

	rec := serve(t, h.SwitchHandler, http.MethodPost, "/api/switch", `{"account_id":"x"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
	assert.Contains(t, rec.Body.String(), `"id":"x"`)
}

func TestSwitchHandler_RejectsGet(t *testing.T) {
	h := NewSessionHandler(&fakeManager{}, arbor.NewLogger())
	rec := serve(t, h.SwitchHandler, http.MethodGet, "/api/switch", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLoginHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		h := NewSessionHandler(&fakeManager{}, arbor.NewLogger())
		rec := serve(t, h.LoginHandler, http.MethodPost, "/api/login", `{"email":"user@example.com","password":"pw"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "user@example.com", decodeBody(t, rec)["email"])
	})

	t.Run("backend rejection is 401", func(t *testing.T) {
		manager := &fakeManager{loginErr: &backend.APIError{StatusCode: http.StatusBadRequest, Message: "bad credentials"}}
		h := NewSessionHandler(manager, arbor.NewLogger())
		rec := serve(t, h.LoginHandler, http.MethodPost, "/api/login", `{"email":"user@example.com","password":"wrong"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestListAccountsHandler(t *testing.T) {
	manager := &fakeManager{accounts: poolAccounts()}
	h := NewSessionHandler(manager, arbor.NewLogger())

	rec := serve(t, h.ListAccountsHandler, http.MethodGet, "/api/accounts?q=RESEARCH", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"RESEARCH"}, manager.queries)
	body := decodeBody(t, rec)
	assert.EqualValues(t, 1, body["count"])
	assert.NotContains(t, rec.Body.String(), "secret")
}

func TestListAccountsHandler_NotLoggedIn(t *testing.T) {
	h := NewSessionHandler(&fakeManager{listErr: models.ErrNotLoggedIn}, arbor.NewLogger())
	rec := serve(t, h.ListAccountsHandler, http.MethodGet, "/api/accounts", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCurrentHandler(t *testing.T) {
	manager := &fakeManager{accounts: poolAccounts()}
	h := NewSessionHandler(manager, arbor.NewLogger())

	rec := serve(t, h.CurrentHandler, http.MethodGet, "/api/current", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody(t, rec)["account"])

	serve(t, h.SwitchHandler, http.MethodPost, "/api/switch", `{"account_id":"y"}`)
	rec = serve(t, h.CurrentHandler, http.MethodGet, "/api/current", "")
	account, ok := decodeBody(t, rec)["account"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "y", account["id"])
}

func TestMessageHandler(t *testing.T) {
	manager := &fakeManager{}
	h := NewSessionHandler(manager, arbor.NewLogger())

	rec := serve(t, h.MessageHandler, http.MethodPost, "/api/messages",
		`{"type":"SET_MANAGED_DOMAINS","domains":["a.com","b.com"]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.MessageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []string{"a.com", "b.com"}, resp.Domains)
	require.Len(t, manager.messages, 1)
	assert.Equal(t, models.MessageSetManagedDomains, manager.messages[0].Type)

	rec = serve(t, h.MessageHandler, http.MethodPost, "/api/messages", `{"type":"BOGUS"}`)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestStatusHandler(t *testing.T) {
	h := NewSessionHandler(&fakeManager{}, arbor.NewLogger())
	rec := serve(t, h.StatusHandler, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NONE", decodeBody(t, rec)["phase"])
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&models.QuotaError{AccountID: "x"}, http.StatusConflict},
		{fmt.Errorf("wrapped: %w", models.ErrNotLoggedIn), http.StatusUnauthorized},
		{&backend.APIError{StatusCode: http.StatusUnauthorized}, http.StatusUnauthorized},
		{models.ErrAccountNotFound, http.StatusNotFound},
		{&models.SecurityViolationError{Name: "__Host-sid", Domain: "a.com", Err: errors.New("rejected")}, http.StatusUnprocessableEntity},
		{sessions.ErrStopped, http.StatusServiceUnavailable},
		{&backend.APIError{StatusCode: http.StatusBadGateway}, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusForError(tt.err), tt.err.Error())
	}
}
