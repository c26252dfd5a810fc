package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ternarybob/cookiepool/internal/backend"
	"github.com/ternarybob/cookiepool/internal/models"
	"github.com/ternarybob/cookiepool/internal/services/sessions"
)

// maxBodyBytes bounds JSON request bodies
const maxBodyBytes = 1 << 20

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteFailure maps a service error onto its HTTP status and writes it
func WriteFailure(w http.ResponseWriter, err error) error {
	return WriteError(w, StatusForError(err), err.Error())
}

// StatusForError maps the error taxonomy onto HTTP status codes
func StatusForError(err error) int {
	var quotaErr *models.QuotaError
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &quotaErr), errors.Is(err, models.ErrQuotaExceeded):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrPermanentSecurityViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sessions.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr), errors.Is(err, models.ErrTransientNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON reads a bounded JSON body into v
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// QueryInt reads an integer query parameter, falling back when absent or invalid
func QueryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
