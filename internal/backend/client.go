// Package backend provides a client for the account pool REST API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

const (
	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 15 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second).
	DefaultRateLimit = 5
)

// TokenSource returns the bearer token for authenticated calls
type TokenSource func(ctx context.Context) (string, error)

// Client is an account pool API client.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	logger         arbor.ILogger
	limiter        *rate.Limiter
	tokenSource    TokenSource
	onUnauthorized func(ctx context.Context)
	validate       *validator.Validate
}

var _ interfaces.BackendClient = (*Client)(nil)

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets a logger.
func WithLogger(logger arbor.ILogger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets a custom rate limit.
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithTokenSource sets where authenticated calls get their bearer token.
func WithTokenSource(source TokenSource) ClientOption {
	return func(c *Client) {
		c.tokenSource = source
	}
}

// WithUnauthorizedHandler sets a hook run when an authenticated call answers 401.
func WithUnauthorizedHandler(fn func(ctx context.Context)) ClientOption {
	return func(c *Client) {
		c.onUnauthorized = fn
	}
}

// NewClient creates a new account pool API client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:   arbor.NewLogger(),
		limiter:  rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		validate: validator.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// request describes one API call
type request struct {
	method      string
	path        string
	params      url.Values
	body        io.Reader
	contentType string
	auth        bool
}

// do performs a request and decodes a JSON response into result when result is non-nil
func (c *Client) do(ctx context.Context, r request, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + r.path
	if len(r.params) > 0 {
		reqURL = reqURL + "?" + r.params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, reqURL, r.body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	if r.auth {
		if c.tokenSource == nil {
			return models.ErrNotLoggedIn
		}
		token, err := c.tokenSource(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug().
		Str("method", r.method).
		Str("path", r.path).
		Msg("Backend API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", r.method, r.path, models.ErrTransientNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Message:    errorMessage(body, resp.Status),
			Endpoint:   r.path,
		}
		if r.auth && resp.StatusCode == http.StatusUnauthorized && c.onUnauthorized != nil {
			c.logger.Warn().Str("path", r.path).Msg("Backend rejected token - clearing it")
			c.onUnauthorized(ctx)
		}
		return apiErr
	}

	if result == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", r.method, r.path, models.ErrTransientNetwork, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", r.path, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload interface{}, result interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, request{
		method:      method,
		path:        path,
		body:        bytes.NewReader(data),
		contentType: "application/json",
		auth:        true,
	}, result)
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, email, password string) (*interfaces.LoginResult, error) {
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	var result interfaces.LoginResult
	err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/api/auth/login",
		body:        strings.NewReader(form.Encode()),
		contentType: "application/x-www-form-urlencoded",
	}, &result)
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}
	if result.Token == "" {
		return nil, fmt.Errorf("login failed: response carries no access_token")
	}
	if result.Email == "" {
		result.Email = email
	}
	return &result, nil
}

// Logout invalidates the held token server-side.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, request{method: http.MethodPost, path: "/api/auth/logout", auth: true}, nil); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	return nil
}

// Validate checks the held token.
func (c *Client) Validate(ctx context.Context) error {
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/auth/validate", auth: true}, nil); err != nil {
		return fmt.Errorf("token validation failed: %w", err)
	}
	return nil
}

// ListAccounts retrieves the account pool. Entries failing validation are skipped.
func (c *Client) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var raw json.RawMessage
	if err := c.do(ctx, request{method: http.MethodGet, path: "/api/accounts", auth: true}, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch accounts: %w", err)
	}

	accounts, err := decodeAccounts(raw)
	if err != nil {
		return nil, err
	}

	valid := make([]models.Account, 0, len(accounts))
	for _, account := range accounts {
		if err := c.validate.Struct(account); err != nil {
			c.logger.Warn().Err(err).Str("account_id", account.ID.String()).Msg("Skipping invalid account from backend")
			continue
		}
		valid = append(valid, account)
	}
	return valid, nil
}

// GetSessionStatus retrieves the session counters of an account.
func (c *Client) GetSessionStatus(ctx context.Context, id models.AccountID) (*models.SessionStatus, error) {
	var status models.SessionStatus
	path := fmt.Sprintf("/api/accounts/%s/session", url.PathEscape(id.String()))
	if err := c.do(ctx, request{method: http.MethodGet, path: path, auth: true}, &status); err != nil {
		return nil, fmt.Errorf("failed to fetch session status for account %s: %w", id, err)
	}
	return &status, nil
}

// StartSession increments the account's active-user counter.
func (c *Client) StartSession(ctx context.Context, id models.AccountID) error {
	path := fmt.Sprintf("/api/accounts/%s/active", url.PathEscape(id.String()))
	if err := c.do(ctx, request{method: http.MethodPost, path: path, auth: true}, nil); err != nil {
		return fmt.Errorf("failed to start session on account %s: %w", id, err)
	}
	return nil
}

// EndSession decrements the account's active-user counter.
func (c *Client) EndSession(ctx context.Context, id models.AccountID) error {
	path := fmt.Sprintf("/api/accounts/%s/active", url.PathEscape(id.String()))
	if err := c.do(ctx, request{method: http.MethodDelete, path: path, auth: true}, nil); err != nil {
		return fmt.Errorf("failed to end session on account %s: %w", id, err)
	}
	return nil
}

// DeleteDomainSessions drops the user's server-side sessions for one domain.
func (c *Client) DeleteDomainSessions(ctx context.Context, email, domain string) error {
	params := url.Values{}
	params.Set("email", email)
	params.Set("domain", domain)
	if err := c.do(ctx, request{method: http.MethodDelete, path: "/delete/sessions", params: params, auth: true}, nil); err != nil {
		return fmt.Errorf("failed to delete sessions for %s: %w", domain, err)
	}
	return nil
}

// SendAnalytics posts one batch of usage events.
func (c *Client) SendAnalytics(ctx context.Context, userID string, events []models.AnalyticsEvent) error {
	payload := analyticsBatch{UserID: userID, Events: events}
	if err := c.doJSON(ctx, http.MethodPost, "/api/analytics/events/batch", payload, nil); err != nil {
		return fmt.Errorf("failed to send %d analytics events: %w", len(events), err)
	}
	return nil
}
