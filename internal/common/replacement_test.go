package common

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/interfaces"
)

// mapKV is a read-only KeyValueStorage over a map
type mapKV struct {
	values map[string]string
	err    error
}

func (m *mapKV) Get(ctx context.Context, key string) (string, error) {
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", interfaces.ErrKeyNotFound
}
func (m *mapKV) Set(ctx context.Context, key, value, description string) error { return nil }
func (m *mapKV) Delete(ctx context.Context, key string) error                  { return nil }
func (m *mapKV) List(ctx context.Context) ([]interfaces.KeyValuePair, error)   { return nil, nil }
func (m *mapKV) GetAll(ctx context.Context) (map[string]string, error) {
	return m.values, m.err
}

func TestReplaceKeyReferences(t *testing.T) {
	logger := arbor.NewLogger()
	kvMap := map[string]string{"host": "pool.example.test", "port": "443"}

	assert.Equal(t, "https://pool.example.test:443", ReplaceKeyReferences("https://{host}:{port}", kvMap, logger))
	assert.Equal(t, "{missing}", ReplaceKeyReferences("{missing}", kvMap, logger))
	assert.Equal(t, "", ReplaceKeyReferences("", kvMap, logger))
	assert.Equal(t, "plain", ReplaceKeyReferences("plain", kvMap, logger))
}

func TestApplyKeyReplacements(t *testing.T) {
	config := NewDefaultConfig()
	config.Backend.BaseURL = "{backend-url}"
	config.Keyring.Service = "{keyring-service}"
	config.Logging.Output = []string{"{log-target}"}

	kv := &mapKV{values: map[string]string{
		"backend-url":     "https://pool.example.test",
		"keyring-service": "pool-dev",
		"log-target":      "stdout",
	}}

	ApplyKeyReplacements(context.Background(), config, kv, arbor.NewLogger())

	assert.Equal(t, "https://pool.example.test", config.Backend.BaseURL)
	assert.Equal(t, "pool-dev", config.Keyring.Service)
	assert.Equal(t, []string{"stdout"}, config.Logging.Output)
}

func TestApplyKeyReplacements_StorageError(t *testing.T) {
	config := NewDefaultConfig()
	config.Backend.BaseURL = "{backend-url}"

	ApplyKeyReplacements(context.Background(), config, &mapKV{err: errors.New("closed")}, arbor.NewLogger())

	assert.Equal(t, "{backend-url}", config.Backend.BaseURL)
}
