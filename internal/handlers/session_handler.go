package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/models"
)

// SessionHandler serves the HTTP control API of the session manager
type SessionHandler struct {
	manager SessionManager
	logger  arbor.ILogger
}

func NewSessionHandler(manager SessionManager, logger arbor.ILogger) *SessionHandler {
	return &SessionHandler{manager: manager, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type switchRequest struct {
	AccountID models.AccountID `json:"account_id"`
}

// LoginHandler handles POST /api/login. Any failure answers 401.
func (h *SessionHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req loginRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.manager.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Login rejected")
		WriteError(w, http.StatusUnauthorized, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"email":  result.Email,
	})
}

// LogoutHandler handles POST /api/logout
func (h *SessionHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := h.manager.Logout(r.Context()); err != nil {
		WriteFailure(w, err)
		return
	}
	WriteSuccess(w, "Logged out")
}

// ListAccountsHandler handles GET /api/accounts?q=
func (h *SessionHandler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	accounts, err := h.manager.ListAccounts(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		WriteFailure(w, err)
		return
	}

	// Credentials stay server-side
	views := make([]models.Account, len(accounts))
	for i, account := range accounts {
		views[i] = account.Summary()
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": views,
		"count":    len(views),
	})
}

// SwitchHandler handles POST /api/switch {account_id}
func (h *SessionHandler) SwitchHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req switchRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.AccountID = models.AccountID(strings.TrimSpace(req.AccountID.String()))
	if req.AccountID == "" {
		WriteError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	account, err := h.manager.SwitchAccount(r.Context(), req.AccountID)
	if err != nil {
		h.logger.Warn().Err(err).Str("account_id", req.AccountID.String()).Msg("Switch failed")
		WriteFailure(w, err)
		return
	}

	summary := account.Summary()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"account": summary,
	})
}

// CurrentHandler handles GET /api/current
func (h *SessionHandler) CurrentHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	var current *models.Account
	if account := h.manager.CurrentAccount(); account != nil {
		summary := account.Summary()
		current = &summary
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"account": current,
	})
}

// MessageHandler handles POST /api/messages with the same envelope as the WebSocket channel
func (h *SessionHandler) MessageHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var msg models.Message
	if err := DecodeJSON(w, r, &msg); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The acknowledgement carries success itself, as on the WebSocket
	WriteJSON(w, http.StatusOK, h.manager.HandleMessage(r.Context(), msg))
}

// StatusHandler handles GET /api/status
func (h *SessionHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.manager.Status(r.Context()))
}
