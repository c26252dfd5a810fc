package interfaces

import (
	"context"

	"github.com/ternarybob/cookiepool/internal/models"
)

// LoginResult is the backend's answer to a successful login
type LoginResult struct {
	Token string `json:"access_token"`
	Email string `json:"email,omitempty"`
}

// BackendClient is the account pool REST API.
// Authenticated calls take the bearer token from the client's token source.
// Transport failures and 5xx responses wrap models.ErrTransientNetwork;
// 401 and 403 wrap models.ErrNotLoggedIn.
type BackendClient interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Logout(ctx context.Context) error

	// Validate checks the held token. A nil error means the token is still valid.
	Validate(ctx context.Context) error

	ListAccounts(ctx context.Context) ([]models.Account, error)
	GetSessionStatus(ctx context.Context, id models.AccountID) (*models.SessionStatus, error)

	// StartSession takes a session slot on the account
	StartSession(ctx context.Context, id models.AccountID) error
	// EndSession releases the caller's session slot on the account
	EndSession(ctx context.Context, id models.AccountID) error
	// DeleteDomainSessions drops the user's server-side sessions for one domain
	DeleteDomainSessions(ctx context.Context, email, domain string) error

	SendAnalytics(ctx context.Context, userID string, events []models.AnalyticsEvent) error
}
