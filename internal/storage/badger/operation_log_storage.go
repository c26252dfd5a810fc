package badger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/cookiepool/internal/models"
)

// logSequence is a global counter to ensure unique log keys even within the same nanosecond
var logSequence uint64

// OperationLogStorage stores dispatcher operation logs
type OperationLogStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewOperationLogStorage(db *BadgerDB, logger arbor.ILogger) *OperationLogStorage {
	return &OperationLogStorage{db: db, logger: logger}
}

// AppendLogs stores entries under "<operationID>_<unixnano>_<seq>" keys
func (s *OperationLogStorage) AppendLogs(ctx context.Context, operationID string, entries []models.OperationLogEntry) error {
	for _, entry := range entries {
		seq := atomic.AddUint64(&logSequence, 1)
		nanos := time.Now().UnixNano()

		entry.OperationID = operationID
		if entry.Sequence == "" {
			entry.Sequence = fmt.Sprintf("%020d_%010d", nanos, seq)
		}

		key := fmt.Sprintf("%s_%d_%d", operationID, nanos, seq)
		if err := s.db.Store().Insert(key, &entry); err != nil {
			return fmt.Errorf("failed to append log: %w", err)
		}
	}
	return nil
}

func (s *OperationLogStorage) GetLogs(ctx context.Context, operationID string, limit int) ([]models.OperationLogEntry, error) {
	var logs []models.OperationLogEntry
	query := badgerhold.Where("OperationID").Eq(operationID).SortBy("Sequence")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	return logs, nil
}

func (s *OperationLogStorage) ListRecent(ctx context.Context, limit int) ([]models.OperationLogEntry, error) {
	var logs []models.OperationLogEntry
	query := badgerhold.Where("Sequence").Ne("").SortBy("Sequence").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := s.db.Store().Find(&logs, query); err != nil {
		return nil, fmt.Errorf("failed to list recent logs: %w", err)
	}
	return logs, nil
}

// Prune deletes everything older than the newest keep entries
func (s *OperationLogStorage) Prune(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}

	var boundary []models.OperationLogEntry
	query := badgerhold.Where("Sequence").Ne("").SortBy("Sequence").Reverse().Skip(keep).Limit(1)
	if err := s.db.Store().Find(&boundary, query); err != nil {
		return fmt.Errorf("failed to find prune boundary: %w", err)
	}
	if len(boundary) == 0 {
		return nil
	}

	err := s.db.Store().DeleteMatching(&models.OperationLogEntry{}, badgerhold.Where("Sequence").Le(boundary[0].Sequence))
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to prune logs: %w", err)
	}
	return nil
}
