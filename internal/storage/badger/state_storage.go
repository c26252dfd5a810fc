package badger

import (
	"context"
	"errors"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/cookiepool/internal/models"
)

// stateKey is the single key under which the manager snapshot lives
const stateKey = "manager_state"

// StateStorage persists the manager snapshot so a crash or restart can purge
// cookies left on managed domains
type StateStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewStateStorage(db *BadgerDB, logger arbor.ILogger) *StateStorage {
	return &StateStorage{db: db, logger: logger}
}

func (s *StateStorage) LoadState(ctx context.Context) (*models.ManagerState, error) {
	var state models.ManagerState
	err := s.db.Store().Get(stateKey, &state)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load manager state: %w", err)
	}
	return &state, nil
}

func (s *StateStorage) SaveState(ctx context.Context, state *models.ManagerState) error {
	if state == nil {
		return fmt.Errorf("state is nil")
	}
	if err := s.db.Store().Upsert(stateKey, state); err != nil {
		return fmt.Errorf("failed to save manager state: %w", err)
	}
	return nil
}

func (s *StateStorage) ClearState(ctx context.Context) error {
	err := s.db.Store().Delete(stateKey, &models.ManagerState{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to clear manager state: %w", err)
	}
	return nil
}
