package models

import "strings"

// SameSite is the cookie same-site policy in browser extension vocabulary
type SameSite string

const (
	SameSiteUnspecified   SameSite = ""
	SameSiteLax           SameSite = "lax"
	SameSiteStrict        SameSite = "strict"
	SameSiteNoRestriction SameSite = "no_restriction"
)

// ParseSameSite normalizes the spellings used by browsers and exports
func ParseSameSite(value string) SameSite {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "lax":
		return SameSiteLax
	case "strict":
		return SameSiteStrict
	case "none", "norestriction", "no_restriction":
		return SameSiteNoRestriction
	default:
		return SameSiteUnspecified
	}
}

// Cookie is a cookie as read back from the browser's cookie store
type Cookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"` // Leading dot for domain cookies, bare host for host-only cookies
	Path     string   `json:"path"`
	Secure   bool     `json:"secure"`
	HTTPOnly bool     `json:"http_only"`
	SameSite SameSite `json:"same_site"`
}

// CookieParam describes a cookie write.
// An empty Domain produces a host-only cookie for the URL's host.
type CookieParam struct {
	URL      string   `json:"url"`
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain,omitempty"`
	Path     string   `json:"path"`
	Secure   bool     `json:"secure"`
	HTTPOnly bool     `json:"http_only"`
	SameSite SameSite `json:"same_site"`
}

// StoragePayload is the decoded body of a STORAGE_PAYLOAD credential
type StoragePayload struct {
	Local   map[string]string `json:"local,omitempty"`
	Session map[string]string `json:"session,omitempty"`
}

// Empty reports whether the payload carries no keys
func (p StoragePayload) Empty() bool {
	return len(p.Local) == 0 && len(p.Session) == 0
}
