package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// UI message channel
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Session
	mux.HandleFunc("/api/login", s.app.SessionHandler.LoginHandler)           // POST
	mux.HandleFunc("/api/logout", s.app.SessionHandler.LogoutHandler)         // POST
	mux.HandleFunc("/api/accounts", s.app.SessionHandler.ListAccountsHandler) // GET ?q=
	mux.HandleFunc("/api/switch", s.app.SessionHandler.SwitchHandler)         // POST {account_id}
	mux.HandleFunc("/api/current", s.app.SessionHandler.CurrentHandler)       // GET
	mux.HandleFunc("/api/messages", s.app.SessionHandler.MessageHandler)      // POST, same envelope as /ws
	mux.HandleFunc("/api/status", s.app.SessionHandler.StatusHandler)         // GET

	// API routes - Operation logs
	mux.HandleFunc("/api/operations", s.app.OperationLogsHandler.ListHandler) // GET ?id=&limit=

	// API routes - Background jobs
	mux.HandleFunc("/api/jobs", s.app.SchedulerHandler.ListJobsHandler)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)

	// API routes - System
	mux.HandleFunc("/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobRoutes routes /api/jobs/{name}/{trigger|enable|disable}
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	routes := jobRoutes{
		"trigger": s.app.SchedulerHandler.TriggerJobHandler,
		"enable":  s.app.SchedulerHandler.EnableJobHandler,
		"disable": s.app.SchedulerHandler.DisableJobHandler,
	}
	if !routes.dispatch(w, r) {
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
