package interfaces

import (
	"context"

	"github.com/ternarybob/cookiepool/internal/models"
)

// StateStorage persists the manager's state snapshot
type StateStorage interface {
	// LoadState returns the last saved snapshot, or nil when none was saved
	LoadState(ctx context.Context) (*models.ManagerState, error)
	SaveState(ctx context.Context, state *models.ManagerState) error
	ClearState(ctx context.Context) error
}

// OperationLogStorage persists dispatcher operation logs
type OperationLogStorage interface {
	AppendLogs(ctx context.Context, operationID string, entries []models.OperationLogEntry) error
	// GetLogs returns up to limit entries of one operation, oldest first. limit <= 0 means all.
	GetLogs(ctx context.Context, operationID string, limit int) ([]models.OperationLogEntry, error)
	// ListRecent returns the newest limit entries across operations, newest first
	ListRecent(ctx context.Context, limit int) ([]models.OperationLogEntry, error)
	// Prune keeps only the newest keep entries
	Prune(ctx context.Context, keep int) error
}

// TokenVault holds the single auth token
type TokenVault interface {
	// GetToken returns models.ErrNotLoggedIn when no token is held
	GetToken(ctx context.Context) (string, error)
	SetToken(ctx context.Context, token string) error
	// ClearToken removes the token. Clearing an empty vault is not an error.
	ClearToken(ctx context.Context) error
}

// StorageManager groups the storages backed by one database
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	StateStorage() StateStorage
	OperationLogStorage() OperationLogStorage
	TokenVault() TokenVault
	// Compact reclaims space left by deleted records
	Compact() error
	Close() error
}
