package credentials

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/cookiepool/internal/models"
)

// ParseOutcome tags a HeaderCookies result
type ParseOutcome int

const (
	// Parsed means at least one cookie pair was recovered
	Parsed ParseOutcome = iota
	// Malformed means nothing usable was found
	Malformed
)

// ParsedCookie is one pair expanded from a header-cookie string
type ParsedCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain,omitempty"`
}

// HeaderCookies is the result of ParseHeaderCookies: Parsed with Cookies, or Malformed with Reason
type HeaderCookies struct {
	Outcome ParseOutcome
	Cookies []ParsedCookie
	Dropped int    // Segments discarded for a missing '=' or an empty name or value
	Reason  string // Set when Malformed
}

// ParseHeaderCookies expands a HEADER_COOKIE_STRING value. A JSON array of
// {name, value, domain?} is tried first, then "a=1; b=2" split on the first '='.
// Pairs without a domain take defaultDomain.
func ParseHeaderCookies(raw, defaultDomain string) HeaderCookies {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return HeaderCookies{Outcome: Malformed, Reason: "empty value"}
	}

	if strings.HasPrefix(raw, "[") {
		var entries []ParsedCookie
		if err := json.Unmarshal([]byte(raw), &entries); err == nil {
			return collect(entries, defaultDomain)
		}
	}

	segments := strings.Split(raw, ";")
	entries := make([]ParsedCookie, 0, len(segments))
	dropped := 0
	for _, segment := range segments {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		name, value, ok := strings.Cut(segment, "=")
		if !ok {
			dropped++
			continue
		}
		entries = append(entries, ParsedCookie{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}

	result := collect(entries, defaultDomain)
	result.Dropped += dropped
	if result.Outcome == Malformed && dropped > 0 {
		result.Reason = fmt.Sprintf("no valid pairs in %d segments", dropped)
	}
	return result
}

func collect(entries []ParsedCookie, defaultDomain string) HeaderCookies {
	result := HeaderCookies{Outcome: Parsed}
	for _, entry := range entries {
		if entry.Name == "" || entry.Value == "" {
			result.Dropped++
			continue
		}
		if entry.Domain == "" {
			entry.Domain = defaultDomain
		}
		result.Cookies = append(result.Cookies, entry)
	}
	if len(result.Cookies) == 0 {
		result.Outcome = Malformed
		result.Reason = "no valid pairs"
	}
	return result
}

// ParseStoragePayload strips prefix and decodes {local?: {k: v}, session?: {k: v}}
func ParseStoragePayload(raw, prefix string) (models.StoragePayload, error) {
	var payload models.StoragePayload

	body := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), prefix))
	if body == "" {
		return payload, fmt.Errorf("%w: empty storage payload", models.ErrMalformedCredentialData)
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return payload, fmt.Errorf("%w: %v", models.ErrMalformedCredentialData, err)
	}
	if payload.Empty() {
		return payload, fmt.Errorf("%w: storage payload has no keys", models.ErrMalformedCredentialData)
	}
	return payload, nil
}

// InferKind returns the entry's explicit kind, or derives it from the name and value
func InferKind(entry models.CredentialEntry, headerCookieName, storagePrefix string) models.CredentialKind {
	switch entry.Kind {
	case models.CredentialPlainCookie, models.CredentialHeaderCookieString, models.CredentialStoragePayload:
		return entry.Kind
	}
	switch {
	case entry.Name == headerCookieName:
		return models.CredentialHeaderCookieString
	case storagePrefix != "" && strings.HasPrefix(strings.TrimSpace(entry.Value), storagePrefix):
		return models.CredentialStoragePayload
	default:
		return models.CredentialPlainCookie
	}
}
