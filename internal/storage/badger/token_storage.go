package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/cookiepool/internal/models"
)

const tokenKey = "auth_token"

// storedToken is kept apart from the key/value store so {key} config
// references can never expand to the token
type storedToken struct {
	Token     string
	UpdatedAt time.Time
}

// TokenStorage is the database-backed token vault used when the OS keyring is disabled
type TokenStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

func NewTokenStorage(db *BadgerDB, logger arbor.ILogger) *TokenStorage {
	return &TokenStorage{db: db, logger: logger}
}

func (s *TokenStorage) GetToken(ctx context.Context) (string, error) {
	var stored storedToken
	err := s.db.Store().Get(tokenKey, &stored)
	if errors.Is(err, badgerhold.ErrNotFound) || (err == nil && stored.Token == "") {
		return "", models.ErrNotLoggedIn
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token: %w", err)
	}
	return stored.Token, nil
}

func (s *TokenStorage) SetToken(ctx context.Context, token string) error {
	if err := s.db.Store().Upsert(tokenKey, &storedToken{Token: token, UpdatedAt: time.Now()}); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

func (s *TokenStorage) ClearToken(ctx context.Context) error {
	err := s.db.Store().Delete(tokenKey, &storedToken{})
	if err != nil && !errors.Is(err, badgerhold.ErrNotFound) {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}
