package interfaces

import (
	"context"

	"github.com/ternarybob/cookiepool/internal/models"
)

// Browser is the manager's view of the host browser: its cookie store,
// its open browsing contexts and their web storage.
//
// Implementations deliver BrowserEvents on Events() without blocking the browser;
// events may be dropped when the consumer falls behind, and the manager rescans
// contexts to recover.
type Browser interface {
	// SetCookie writes one cookie. The browser may reject it (prefix rules, host mismatch).
	SetCookie(ctx context.Context, cookie models.CookieParam) error

	// GetCookies returns every cookie in the store
	GetCookies(ctx context.Context) ([]models.Cookie, error)

	// RemoveCookie removes the cookie named name that would be sent to url
	RemoveCookie(ctx context.Context, url string, name string) error

	// ListContexts returns the open browsing contexts
	ListContexts(ctx context.Context) ([]models.BrowsingContext, error)

	// OpenContext opens a new context navigated to url
	OpenContext(ctx context.Context, url string) (models.BrowsingContext, error)

	// CloseContext closes a context. Closing an unknown context is not an error.
	CloseContext(ctx context.Context, contextID string) error

	// InjectStorage writes payload into the local and session storage of a context's origin
	InjectStorage(ctx context.Context, contextID string, payload models.StoragePayload) error

	// ClearStorage clears local and session storage of a context's origin
	ClearStorage(ctx context.Context, contextID string) error

	// Events streams context and lifecycle notifications
	Events() <-chan models.BrowserEvent

	// Close releases the browser connection
	Close() error
}
