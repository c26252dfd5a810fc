// Package common provides configuration, logging and small shared helpers.
//
// Configuration string values may reference entries of the key/value store
// with the {key-name} syntax, for example:
//
//	[backend]
//	base_url = "{backend-url}"
//
// References are resolved after the config files are merged. Missing keys are
// logged and left unchanged.
package common

import (
	"context"
	"reflect"
	"regexp"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cookiepool/internal/interfaces"
)

// keyRefPattern matches {key-name} references in strings
var keyRefPattern = regexp.MustCompile(`\{([a-zA-Z0-9_-]+)\}`)

// ApplyKeyReplacements resolves {key-name} references in every string field of config
func ApplyKeyReplacements(ctx context.Context, config *Config, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) {
	kvMap, err := kvStorage.GetAll(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to fetch KV map for config replacement, skipping replacement")
		return
	}
	replaced := replaceInValue(reflect.ValueOf(config).Elem(), kvMap, logger)
	if replaced > 0 {
		logger.Info().Int("fields", replaced).Msg("Applied key/value replacements to config")
	}
}

// ReplaceKeyReferences replaces {key-name} references in input with values
// from kvMap. Unknown keys are left as-is.
func ReplaceKeyReferences(input string, kvMap map[string]string, logger arbor.ILogger) string {
	if input == "" {
		return input
	}
	return keyRefPattern.ReplaceAllStringFunc(input, func(match string) string {
		keyName := match[1 : len(match)-1]
		if value, exists := kvMap[keyName]; exists {
			return value
		}
		logger.Warn().
			Str("reference", match).
			Str("key", keyName).
			Msg("Unresolved key reference - key not found in KV store")
		return match
	})
}

// replaceInValue walks structs and string slices, returning the number of changed fields
func replaceInValue(v reflect.Value, kvMap map[string]string, logger arbor.ILogger) int {
	count := 0
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			if field := v.Field(i); field.CanSet() {
				count += replaceInValue(field, kvMap, logger)
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			count += replaceInValue(v.Index(i), kvMap, logger)
		}
	case reflect.String:
		old := v.String()
		if updated := ReplaceKeyReferences(old, kvMap, logger); updated != old {
			v.SetString(updated)
			count++
		}
	}
	return count
}
