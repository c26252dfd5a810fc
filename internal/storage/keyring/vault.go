// Package keyring keeps the auth token in the operating system's secret store.
package keyring

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	gokeyring "github.com/zalando/go-keyring"

	"github.com/ternarybob/cookiepool/internal/models"
)

const tokenUser = "token"

// Vault is a TokenVault on top of the OS keyring
type Vault struct {
	service string
	logger  arbor.ILogger
}

func NewVault(service string, logger arbor.ILogger) *Vault {
	if service == "" {
		service = "cookiepool"
	}
	return &Vault{service: service, logger: logger}
}

func (v *Vault) GetToken(ctx context.Context) (string, error) {
	token, err := gokeyring.Get(v.service, tokenUser)
	if errors.Is(err, gokeyring.ErrNotFound) {
		return "", models.ErrNotLoggedIn
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token from keyring: %w", err)
	}
	if strings.TrimSpace(token) == "" {
		return "", models.ErrNotLoggedIn
	}
	return token, nil
}

func (v *Vault) SetToken(ctx context.Context, token string) error {
	if err := gokeyring.Set(v.service, tokenUser, token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	v.logger.Debug().Str("service", v.service).Msg("Token stored in OS keyring")
	return nil
}

func (v *Vault) ClearToken(ctx context.Context) error {
	err := gokeyring.Delete(v.service, tokenUser)
	if err != nil && !errors.Is(err, gokeyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}
