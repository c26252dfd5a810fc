package handlers

import (
	"context"
	"sync"

	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// fakeManager records calls and answers with canned results
type fakeManager struct {
	mu        sync.Mutex
	accounts  []models.Account
	current   *models.Account
	loginErr  error
	switchErr error
	listErr   error
	queries   []string
	messages  []models.Message
}

func (f *fakeManager) Login(ctx context.Context, email, password string) (*interfaces.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &interfaces.LoginResult{Token: "token", Email: email}, nil
}

func (f *fakeManager) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = nil
	return nil
}

func (f *fakeManager) ListAccounts(ctx context.Context, query string) ([]models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []models.Account
	for _, a := range f.accounts {
		if a.Matches(query) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeManager) SwitchAccount(ctx context.Context, id models.AccountID) (*models.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.switchErr != nil {
		return nil, f.switchErr
	}
	for i := range f.accounts {
		if f.accounts[i].ID == id {
			account := f.accounts[i]
			f.current = &account
			return &account, nil
		}
	}
	return nil, models.ErrAccountNotFound
}

func (f *fakeManager) CurrentAccount() *models.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeManager) HandleMessage(ctx context.Context, msg models.Message) models.MessageResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, msg)
	switch msg.Type {
	case models.MessageGetCurrentAccount:
		return models.MessageResponse{Type: msg.Type, Success: true, Account: f.current}
	case models.MessageSetManagedDomains:
		return models.MessageResponse{Type: msg.Type, Success: true, Domains: msg.Domains}
	default:
		return models.MessageResponse{Type: msg.Type, Success: false, Error: "unsupported message type"}
	}
}

func (f *fakeManager) Status(ctx context.Context) *models.ManagerStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.ManagerStatus{
		Phase:          models.PhaseNone,
		CurrentAccount: f.current,
		ManagedDomains: []string{},
		Occupancy:      map[string]int{},
	}
}

func poolAccounts() []models.Account {
	return []models.Account{
		{ID: "x", Name: "Design Team", Group: "creative", MaxConcurrentUsers: 3,
			Credentials: []models.CredentialEntry{{Domain: "example.com", Name: "sid", Value: "secret"}}},
		{ID: "y", Name: "Research", Group: "science", MaxConcurrentUsers: 2,
			Credentials: []models.CredentialEntry{{Domain: "b.com", Name: "sid", Value: "secret"}}},
	}
}
