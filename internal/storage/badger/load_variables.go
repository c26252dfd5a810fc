package badger

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// VariableFile represents the structure of a variable in a TOML file
// Format:
// [key_name]
// value = "some-value"
// description = "optional description"
type VariableFile struct {
	Value       string `toml:"value"`
	Description string `toml:"description"`
}

// LoadVariablesFromFiles seeds the key/value store from <dirPath>/variables.toml.
// A missing file is not an error. Stored keys are what {key-name} config references resolve against.
func (m *Manager) LoadVariablesFromFiles(ctx context.Context, dirPath string) (int, error) {
	if dirPath == "" {
		return 0, nil
	}

	filePath := filepath.Join(dirPath, "variables.toml")
	content, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		m.logger.Debug().Str("file", filePath).Msg("variables.toml not found, skipping")
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var variables map[string]VariableFile
	if err := toml.Unmarshal(content, &variables); err != nil {
		m.logger.Warn().Err(err).Str("file", filePath).Msg("Failed to parse variable file")
		return 0, err
	}

	loaded, skipped := 0, 0
	for key, variable := range variables {
		if variable.Value == "" {
			m.logger.Warn().Str("key", key).Msg("Skipping variable with empty value")
			skipped++
			continue
		}

		description := variable.Description
		if description == "" {
			description = "Loaded from variables.toml"
		}

		isNew, err := m.kv.upsert(key, variable.Value, description)
		if err != nil {
			m.logger.Error().Err(err).Str("key", key).Msg("Failed to store variable")
			continue
		}
		if isNew {
			m.logger.Debug().Str("key", key).Msg("Loaded new variable")
		}
		loaded++
	}

	m.logger.Debug().Int("loaded", loaded).Int("skipped", skipped).Msg("Finished loading variables")
	return loaded, nil
}
