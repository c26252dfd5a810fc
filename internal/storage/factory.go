package storage

import (
	"context"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/common"
	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/storage/badger"
	"github.com/ternarybob/cookiepool/internal/storage/keyring"
)

// NewStorageManager opens the Badger database and seeds the key/value store
// from the variables directory
func NewStorageManager(logger arbor.ILogger, config *common.Config) (*badger.Manager, error) {
	manager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		return nil, err
	}

	if loaded, err := manager.LoadVariablesFromFiles(context.Background(), config.Storage.VariablesDir); err != nil {
		logger.Warn().Err(err).Str("dir", config.Storage.VariablesDir).Msg("Failed to load variables")
	} else if loaded > 0 {
		logger.Info().Int("count", loaded).Msg("Variables loaded into key/value store")
	}

	return manager, nil
}

// NewTokenVault picks the OS keyring when enabled, otherwise the database vault
func NewTokenVault(logger arbor.ILogger, config *common.Config, manager interfaces.StorageManager) interfaces.TokenVault {
	if config.Keyring.Enabled {
		logger.Info().Str("service", config.Keyring.Service).Msg("Auth token kept in OS keyring")
		return keyring.NewVault(config.Keyring.Service, logger)
	}
	logger.Debug().Msg("Auth token kept in local database")
	return manager.TokenVault()
}
