package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// CredentialKind tags how a CredentialEntry is applied to the browser
type CredentialKind string

const (
	// CredentialPlainCookie is a single named cookie
	CredentialPlainCookie CredentialKind = "PLAIN_COOKIE"
	// CredentialHeaderCookieString is a batch of cookie pairs (JSON array or "a=1; b=2")
	CredentialHeaderCookieString CredentialKind = "HEADER_COOKIE_STRING"
	// CredentialStoragePayload is a sentinel-prefixed local/session storage blob
	CredentialStoragePayload CredentialKind = "STORAGE_PAYLOAD"
)

// AccountID is the backend identifier of a pooled account.
// The backend emits it either as a JSON number or a string.
type AccountID string

// UnmarshalJSON accepts both numeric and string identifiers
func (id *AccountID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid account id: %w", err)
		}
		*id = AccountID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid account id: %w", err)
	}
	*id = AccountID(n.String())
	return nil
}

// String returns the identifier as used in backend paths
func (id AccountID) String() string {
	return string(id)
}

// CredentialEntry is one declared credential of an account.
// Entries are immutable once parsed from the backend response.
type CredentialEntry struct {
	Domain string         `json:"domain"`         // Target domain, may carry a leading-dot wildcard
	Name   string         `json:"name"`           // Cookie name (or "header_cookies" for header strings)
	Value  string         `json:"value"`          // Raw value as delivered by the backend
	Kind   CredentialKind `json:"kind,omitempty"` // Explicit kind; inferred when empty
}

// Account is an identity in the shared pool
type Account struct {
	ID                 AccountID         `json:"id" validate:"required"`
	Name               string            `json:"name"`
	Group              string            `json:"group,omitempty"`
	MaxConcurrentUsers int               `json:"max_concurrent_users" validate:"gte=0"`
	ActiveSessions     int               `json:"active_sessions" validate:"gte=0"` // Advisory, server-reported
	Credentials        []CredentialEntry `json:"cookies" validate:"dive"`
}

// Domains returns the normalized, de-duplicated domains of the account's
// credentials in declaration order
func (a *Account) Domains() []string {
	if a == nil {
		return nil
	}
	seen := make(map[string]bool, len(a.Credentials))
	domains := make([]string, 0, len(a.Credentials))
	for _, entry := range a.Credentials {
		d := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(entry.Domain), "."))
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		domains = append(domains, d)
	}
	return domains
}

// Summary returns a copy of the account without its credentials
func (a Account) Summary() Account {
	a.Credentials = nil
	return a
}

// Matches reports whether the account name or group contains query (case-insensitive)
func (a *Account) Matches(query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.Name), query) ||
		strings.Contains(strings.ToLower(a.Group), query)
}

// SessionStatus is the backend's view of an account's session lease
type SessionStatus struct {
	ActiveSessions     int    `json:"active_sessions"`
	MaxConcurrentUsers int    `json:"max_concurrent_users"`
	Active             *bool  `json:"active,omitempty"`
	Status             string `json:"status,omitempty"`
}

// Ended reports whether the backend considers the session inactive or cancelled
func (s *SessionStatus) Ended() bool {
	if s == nil {
		return false
	}
	if s.Active != nil && !*s.Active {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(s.Status)) {
	case "inactive", "cancelled", "canceled", "expired", "ended":
		return true
	}
	return false
}

// SessionLease is the local representation of a server-side session slot
type SessionLease struct {
	AccountID   AccountID `json:"account_id"`
	ActiveCount int       `json:"active_count"`
	MaxCount    int       `json:"max_count"`
	Reentrant   bool      `json:"reentrant"` // Admitted because the account was already current
}
