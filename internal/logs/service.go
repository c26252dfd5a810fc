package logs

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// DefaultRetention is the number of operation log entries kept by Prune
const DefaultRetention = 5000

// Service serves stored operation logs
type Service struct {
	storage   interfaces.OperationLogStorage
	retention int
	logger    arbor.ILogger
}

// NewService creates a log query service. retention <= 0 uses DefaultRetention.
func NewService(storage interfaces.OperationLogStorage, retention int, logger arbor.ILogger) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{storage: storage, retention: retention, logger: logger}
}

// GetOperationLogs returns one operation's entries, oldest first
func (s *Service) GetOperationLogs(ctx context.Context, operationID string, limit int) ([]models.OperationLogEntry, error) {
	if operationID == "" {
		return nil, fmt.Errorf("operation id is required")
	}
	return s.storage.GetLogs(ctx, operationID, limit)
}

// Recent returns the newest entries across operations
func (s *Service) Recent(ctx context.Context, limit int) ([]models.OperationLogEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.storage.ListRecent(ctx, limit)
}

// Prune drops entries beyond the retention limit
func (s *Service) Prune(ctx context.Context) error {
	if err := s.storage.Prune(ctx, s.retention); err != nil {
		return fmt.Errorf("prune operation logs: %w", err)
	}
	s.logger.Debug().Int("keep", s.retention).Msg("Operation logs pruned")
	return nil
}
