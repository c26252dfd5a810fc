package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/app"
	"github.com/ternarybob/cookiepool/internal/common"
)

func newTestServer() *Server {
	cfg := common.NewDefaultConfig()
	return &Server{app: &app.App{Config: cfg, Logger: arbor.NewLogger()}}
}

func TestSplitJobPath(t *testing.T) {
	tests := []struct {
		path   string
		name   string
		action string
		ok     bool
	}{
		{"/api/jobs/session-validate/trigger", "session-validate", "trigger", true},
		{"/api/jobs/analytics-flush/disable/", "analytics-flush", "disable", true},
		{"/api/jobs/session-validate", "", "", false},
		{"/api/jobs//trigger", "", "", false},
		{"/api/jobs/a/b/c", "", "", false},
		{"/api/other/a/trigger", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			name, action, ok := splitJobPath(tt.path)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.action, action)
		})
	}
}

func TestJobRoutesDispatch(t *testing.T) {
	var hit string
	routes := jobRoutes{
		"trigger": func(w http.ResponseWriter, r *http.Request) { hit = "trigger" },
	}

	rec := httptest.NewRecorder()
	assert.True(t, routes.dispatch(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/x/trigger", nil)))
	assert.Equal(t, "trigger", hit)

	assert.False(t, routes.dispatch(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/x/explode", nil)))
}

func TestMiddleware_RecoversPanics(t *testing.T) {
	s := newTestServer()
	h := s.withConditionalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code, "the websocket route keeps recovery")
}

func TestMiddleware_CORSAndRequestID(t *testing.T) {
	s := newTestServer()
	called := false
	h := s.withConditionalMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/switch", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, called, "preflight is answered by the middleware")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(requestIDHeader, "req_given")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req_given", rec.Header().Get(requestIDHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	assert.True(t, strings.HasPrefix(rec.Header().Get(requestIDHeader), "req_"))
}

func TestAddr(t *testing.T) {
	s := newTestServer()
	s.app.Config.Server.Host = "::1"
	s.app.Config.Server.Port = 9000
	require.Equal(t, "[::1]:9000", s.Addr())
}
