// Package auth holds the process-wide AuthToken: login and logout against the
// backend, and custody of the token through a TokenVault.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/interfaces"
	"github.com/ternarybob/cookiepool/internal/models"
)

// Service manages the backend auth token
type Service struct {
	backend  interfaces.BackendClient
	vault    interfaces.TokenVault
	logger   arbor.ILogger
	rejected atomic.Bool // Backend answered 401 to the held token
}

func NewService(backend interfaces.BackendClient, vault interfaces.TokenVault, logger arbor.ILogger) *Service {
	return &Service{backend: backend, vault: vault, logger: logger}
}

// Login exchanges credentials for a token and stores it
func (s *Service) Login(ctx context.Context, email, password string) (*interfaces.LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}

	result, err := s.backend.Login(ctx, email, password)
	if err != nil {
		s.logger.Warn().Err(err).Str("email", email).Msg("Login failed")
		return nil, fmt.Errorf("login: %w", err)
	}
	if result == nil || strings.TrimSpace(result.Token) == "" {
		return nil, fmt.Errorf("login: backend returned no token: %w", models.ErrNotLoggedIn)
	}
	if result.Email == "" {
		result.Email = email
	}

	if err := s.vault.SetToken(ctx, result.Token); err != nil {
		return nil, fmt.Errorf("store token: %w", err)
	}
	s.rejected.Store(false)

	s.logger.Info().Str("email", result.Email).Msg("Logged in")
	return result, nil
}

// Logout revokes the token server-side when possible, then forgets it locally
func (s *Service) Logout(ctx context.Context) error {
	if s.HasToken(ctx) {
		if err := s.backend.Logout(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Backend logout failed, clearing token locally")
		}
	}
	return s.ClearToken(ctx)
}

// Token returns the held token, or models.ErrNotLoggedIn. It doubles as the
// backend client's token source.
func (s *Service) Token(ctx context.Context) (string, error) {
	return s.vault.GetToken(ctx)
}

// HasToken reports whether a token is held
func (s *Service) HasToken(ctx context.Context) bool {
	_, err := s.vault.GetToken(ctx)
	if err != nil && !errors.Is(err, models.ErrNotLoggedIn) {
		s.logger.Warn().Err(err).Msg("Failed to read auth token")
	}
	return err == nil
}

// MarkRejected records that the backend refused the held token. The token is
// kept until the validator has torn the account down and clears it.
func (s *Service) MarkRejected() {
	if !s.rejected.Swap(true) {
		s.logger.Warn().Msg("Auth token rejected by backend")
	}
}

// TokenRejected reports whether a held token was refused by the backend
func (s *Service) TokenRejected(ctx context.Context) bool {
	return s.rejected.Load() && s.HasToken(ctx)
}

// ClearToken forgets the token
func (s *Service) ClearToken(ctx context.Context) error {
	if err := s.vault.ClearToken(ctx); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	s.rejected.Store(false)
	s.logger.Info().Msg("Auth token cleared")
	return nil
}
