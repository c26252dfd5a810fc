package handlers

import (
	"context"

	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// SessionManager is the part of the session manager the control surface drives
type SessionManager interface {
	Login(ctx context.Context, email, password string) (*interfaces.LoginResult, error)
	Logout(ctx context.Context) error
	ListAccounts(ctx context.Context, query string) ([]models.Account, error)
	SwitchAccount(ctx context.Context, id models.AccountID) (*models.Account, error)
	CurrentAccount() *models.Account
	HandleMessage(ctx context.Context, msg models.Message) models.MessageResponse
	Status(ctx context.Context) *models.ManagerStatus
}

// OperationLogReader serves persisted dispatcher operation logs
type OperationLogReader interface {
	GetOperationLogs(ctx context.Context, operationID string, limit int) ([]models.OperationLogEntry, error)
	Recent(ctx context.Context, limit int) ([]models.OperationLogEntry, error)
}
