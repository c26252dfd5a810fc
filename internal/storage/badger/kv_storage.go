package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/cookiepool/internal/interfaces"
)

// KVStorage holds the variables seeded from variables.toml that config values
// reference as {key-name}
type KVStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewKVStorage creates a new KVStorage instance
func NewKVStorage(db *BadgerDB, logger arbor.ILogger) *KVStorage {
	return &KVStorage{
		db:     db,
		logger: logger,
	}
}

// normalizeKey converts a key to lowercase for case-insensitive storage
func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Get retrieves a value by key (case-insensitive)
func (s *KVStorage) Get(ctx context.Context, key string) (string, error) {
	var pair interfaces.KeyValuePair
	err := s.db.Store().Get(normalizeKey(key), &pair)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return "", interfaces.ErrKeyNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key: %w", err)
	}
	return pair.Value, nil
}

// Set inserts or updates a key/value pair (case-insensitive), preserving CreatedAt
func (s *KVStorage) Set(ctx context.Context, key string, value string, description string) error {
	_, err := s.upsert(key, value, description)
	return err
}

// upsert reports whether the key was newly created
func (s *KVStorage) upsert(key, value, description string) (bool, error) {
	normalizedKey := normalizeKey(key)
	now := time.Now()

	pair := interfaces.KeyValuePair{
		Key:         normalizedKey,
		Value:       value,
		Description: description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var existing interfaces.KeyValuePair
	err := s.db.Store().Get(normalizedKey, &existing)
	isNewKey := errors.Is(err, badgerhold.ErrNotFound)
	switch {
	case err == nil:
		pair.CreatedAt = existing.CreatedAt
	case !isNewKey:
		return false, fmt.Errorf("failed to check key existence: %w", err)
	}

	if err := s.db.Store().Upsert(normalizedKey, &pair); err != nil {
		return false, fmt.Errorf("failed to set key/value: %w", err)
	}
	return isNewKey, nil
}

// Delete removes a key/value pair (case-insensitive)
func (s *KVStorage) Delete(ctx context.Context, key string) error {
	err := s.db.Store().Delete(normalizeKey(key), &interfaces.KeyValuePair{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

// GetAll returns all key/value pairs as a map
func (s *KVStorage) GetAll(ctx context.Context) (map[string]string, error) {
	var pairs []interfaces.KeyValuePair
	if err := s.db.Store().Find(&pairs, nil); err != nil {
		return nil, fmt.Errorf("failed to get all key/value pairs: %w", err)
	}

	kvMap := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		kvMap[pair.Key] = pair.Value
	}
	return kvMap, nil
}
