// Package backendtest provides an in-process BackendClient for tests.
package backendtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// Fake is a BackendClient backed by maps. Session counters move with
// StartSession and EndSession the way the real backend's do.
type Fake struct {
	mu sync.Mutex

	Accounts []models.Account
	Sessions map[models.AccountID]*models.SessionStatus

	Token string
	Email string

	LoginErr     error
	ValidateErr  error
	StatusErr    error
	StartErr     error
	EndErr       error
	DeleteErr    error
	AnalyticsErr error

	calls     []string
	analytics [][]models.AnalyticsEvent
}

var _ interfaces.BackendClient = (*Fake)(nil)

// New returns a fake serving accounts, each with a session counter seeded
// from its ActiveSessions and MaxConcurrentUsers
func New(accounts ...models.Account) *Fake {
	f := &Fake{
		Accounts: accounts,
		Sessions: make(map[models.AccountID]*models.SessionStatus),
		Token:    "token-1",
	}
	for _, a := range accounts {
		f.Sessions[a.ID] = &models.SessionStatus{
			ActiveSessions:     a.ActiveSessions,
			MaxConcurrentUsers: a.MaxConcurrentUsers,
		}
	}
	return f
}

// Calls returns the recorded calls as "Method:arg" strings
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// CountCalls returns how many recorded calls equal call
func (f *Fake) CountCalls(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

// AnalyticsBatches returns every batch received by SendAnalytics
func (f *Fake) AnalyticsBatches() [][]models.AnalyticsEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]models.AnalyticsEvent(nil), f.analytics...)
}

// SetStatus replaces an account's session status
func (f *Fake) SetStatus(id models.AccountID, status models.SessionStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sessions[id] = &status
}

// SetValidateErr changes the Validate outcome
func (f *Fake) SetValidateErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ValidateErr = err
}

func (f *Fake) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *Fake) Login(ctx context.Context, email, password string) (*interfaces.LoginResult, error) {
	f.record("Login:" + email)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.LoginErr != nil {
		return nil, f.LoginErr
	}
	f.Email = email
	return &interfaces.LoginResult{Token: f.Token, Email: email}, nil
}

func (f *Fake) Logout(ctx context.Context) error {
	f.record("Logout")
	return nil
}

func (f *Fake) Validate(ctx context.Context) error {
	f.record("Validate")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ValidateErr
}

func (f *Fake) ListAccounts(ctx context.Context) ([]models.Account, error) {
	f.record("ListAccounts")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Account(nil), f.Accounts...), nil
}

func (f *Fake) GetSessionStatus(ctx context.Context, id models.AccountID) (*models.SessionStatus, error) {
	f.record("GetSessionStatus:" + id.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StatusErr != nil {
		return nil, f.StatusErr
	}
	status, ok := f.Sessions[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, models.ErrAccountNotFound)
	}
	clone := *status
	return &clone, nil
}

func (f *Fake) StartSession(ctx context.Context, id models.AccountID) error {
	f.record("StartSession:" + id.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StartErr != nil {
		return f.StartErr
	}
	if status, ok := f.Sessions[id]; ok {
		status.ActiveSessions++
	}
	return nil
}

func (f *Fake) EndSession(ctx context.Context, id models.AccountID) error {
	f.record("EndSession:" + id.String())
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EndErr != nil {
		return f.EndErr
	}
	if status, ok := f.Sessions[id]; ok && status.ActiveSessions > 0 {
		status.ActiveSessions--
	}
	return nil
}

func (f *Fake) DeleteDomainSessions(ctx context.Context, email, domain string) error {
	f.record("DeleteDomainSessions:" + domain)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.DeleteErr
}

func (f *Fake) SendAnalytics(ctx context.Context, userID string, events []models.AnalyticsEvent) error {
	f.record("SendAnalytics:" + userID)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AnalyticsErr != nil {
		return f.AnalyticsErr
	}
	f.analytics = append(f.analytics, append([]models.AnalyticsEvent(nil), events...))
	return nil
}
