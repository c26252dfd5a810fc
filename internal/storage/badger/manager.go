package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db     *BadgerDB
	kv     *KVStorage
	state  *StateStorage
	opLogs *OperationLogStorage
	tokens *TokenStorage
	logger arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (*Manager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:     db,
		kv:     NewKVStorage(db, logger),
		state:  NewStateStorage(db, logger),
		opLogs: NewOperationLogStorage(db, logger),
		tokens: NewTokenStorage(db, logger),
		logger: logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// StateStorage returns the manager snapshot storage
func (m *Manager) StateStorage() interfaces.StateStorage {
	return m.state
}

// OperationLogStorage returns the operation log storage
func (m *Manager) OperationLogStorage() interfaces.OperationLogStorage {
	return m.opLogs
}

// TokenVault returns the database-backed token vault
func (m *Manager) TokenVault() interfaces.TokenVault {
	return m.tokens
}

// Compact reclaims disk space left behind by deletes
func (m *Manager) Compact() error {
	rewritten, err := m.db.RunValueLogGC()
	if err != nil {
		return err
	}
	if rewritten > 0 {
		m.logger.Debug().Int("files", rewritten).Msg("Value log compacted")
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
