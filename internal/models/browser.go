package models

import (
	"net/url"
	"strings"
)

// BrowsingContext is an open tab
type BrowsingContext struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Host returns the lower-cased hostname of the context's URL, or "" for
// non-network URLs such as about:blank
func (c BrowsingContext) Host() string {
	return HostFromURL(c.URL)
}

// HostFromURL extracts a lower-cased hostname from a URL string
func HostFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// BrowserEventType enumerates the browser notifications the manager consumes
type BrowserEventType string

const (
	BrowserContextOpened    BrowserEventType = "context_opened"
	BrowserContextNavigated BrowserEventType = "context_navigated"
	BrowserContextClosed    BrowserEventType = "context_closed"
	BrowserSuspend          BrowserEventType = "suspend"
	BrowserStorageChanged   BrowserEventType = "storage_changed"
)

// BrowserEvent is a typed browser notification.
// Closed events do not carry the context's last URL.
type BrowserEvent struct {
	Type      BrowserEventType `json:"type"`
	ContextID string           `json:"context_id,omitempty"`
	URL       string           `json:"url,omitempty"`
}
