package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/cookiepool/internal/models"
)

// APIError represents a non-2xx answer from the backend.
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend API error: %s (status %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// Unwrap maps the status onto the error taxonomy: 5xx and 429 are transient,
// 401 and 403 mean the token is no longer accepted
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode >= 500, e.StatusCode == http.StatusTooManyRequests:
		return models.ErrTransientNetwork
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return models.ErrNotLoggedIn
	}
	return nil
}

// IsStatus reports whether err carries an APIError with the given status
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

type analyticsBatch struct {
	UserID string                  `json:"user_id"`
	Events []models.AnalyticsEvent `json:"events"`
}

// accountsEnvelope covers the wrapped list shapes the backend has served
type accountsEnvelope struct {
	Accounts []models.Account `json:"accounts"`
	Data     []models.Account `json:"data"`
}

// decodeAccounts accepts a bare array or an {accounts|data} envelope
func decodeAccounts(raw json.RawMessage) ([]models.Account, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}

	if strings.HasPrefix(trimmed, "[") {
		var accounts []models.Account
		if err := json.Unmarshal(raw, &accounts); err != nil {
			return nil, fmt.Errorf("failed to decode accounts: %w", err)
		}
		return accounts, nil
	}

	var envelope accountsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode accounts: %w", err)
	}
	if len(envelope.Accounts) > 0 {
		return envelope.Accounts, nil
	}
	return envelope.Data, nil
}

// errorMessage extracts {"detail"|"message"|"error"} from an error body
func errorMessage(body []byte, fallback string) string {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			if v, ok := payload[key].(string); ok && v != "" {
				return v
			}
		}
	}
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return msg
	}
	return fallback
}
