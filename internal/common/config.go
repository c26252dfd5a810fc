package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"gopkg.in/yaml.v3"

	"github.com/ternarybob/cookiepool/internal/interfaces"
)

// MinimumScheduleInterval is the shortest interval accepted for background jobs
const MinimumScheduleInterval = 5 * time.Second

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment" yaml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server" yaml:"server"`
	Backend     BackendConfig   `toml:"backend" yaml:"backend"`
	Browser     BrowserConfig   `toml:"browser" yaml:"browser"`
	Session     SessionConfig   `toml:"session" yaml:"session"`
	Storage     StorageConfig   `toml:"storage" yaml:"storage"`
	Keyring     KeyringConfig   `toml:"keyring" yaml:"keyring"`
	Analytics   AnalyticsConfig `toml:"analytics" yaml:"analytics"`
	WebSocket   WebSocketConfig `toml:"websocket" yaml:"websocket"`
	Logging     LoggingConfig   `toml:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port" yaml:"port" validate:"gte=1,lte=65535"`
	Host string `toml:"host" yaml:"host" validate:"required"`
}

// BackendConfig points at the account pool REST API
type BackendConfig struct {
	BaseURL        string `toml:"base_url" yaml:"base_url" validate:"required,url"`
	RequestTimeout string `toml:"request_timeout" yaml:"request_timeout"`        // e.g. "15s"
	RateLimit      int    `toml:"rate_limit" yaml:"rate_limit" validate:"gte=1"` // Requests per second
}

// BrowserConfig selects and configures the browser the manager drives
type BrowserConfig struct {
	Mode           string `toml:"mode" yaml:"mode" validate:"oneof=chrome memory"` // "chrome" or "memory"
	RemoteURL      string `toml:"remote_url" yaml:"remote_url"`                    // DevTools websocket of a running Chrome; empty launches one
	Headless       bool   `toml:"headless" yaml:"headless"`
	NoSandbox      bool   `toml:"no_sandbox" yaml:"no_sandbox"`
	UserDataDir    string `toml:"user_data_dir" yaml:"user_data_dir"`
	UserAgent      string `toml:"user_agent" yaml:"user_agent"`
	StartupTimeout string `toml:"startup_timeout" yaml:"startup_timeout"`
	ActionTimeout  string `toml:"action_timeout" yaml:"action_timeout"`
	OpenOnSwitch   bool   `toml:"open_on_switch" yaml:"open_on_switch"` // Open a tab on the first domain after a switch
}

// SessionConfig tunes the credential lifecycle engine
type SessionConfig struct {
	ValidateSchedule      string `toml:"validate_schedule" yaml:"validate_schedule"`
	GateSchedule          string `toml:"gate_schedule" yaml:"gate_schedule"`
	StorageInjectAttempts int    `toml:"storage_inject_attempts" yaml:"storage_inject_attempts" validate:"gte=1,lte=10"`
	StorageInjectBackoff  string `toml:"storage_inject_backoff" yaml:"storage_inject_backoff"`
	StoragePayloadPrefix  string `toml:"storage_payload_prefix" yaml:"storage_payload_prefix" validate:"required"`
	HeaderCookieName      string `toml:"header_cookie_name" yaml:"header_cookie_name" validate:"required"`
	DefaultMaxSessions    int    `toml:"default_max_sessions" yaml:"default_max_sessions" validate:"gte=1"` // Used when the backend reports no limit
}

type StorageConfig struct {
	Badger       BadgerConfig `toml:"badger" yaml:"badger"`
	VariablesDir string       `toml:"variables_dir" yaml:"variables_dir"` // variables.toml seeds the key/value store
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" yaml:"path"`                         // Database directory path
	InMemory       bool   `toml:"in_memory" yaml:"in_memory"`               // Keep state in memory only (tests, throwaway runs)
	ResetOnStartup bool   `toml:"reset_on_startup" yaml:"reset_on_startup"` // Delete database on startup
}

// KeyringConfig controls where the auth token is kept
type KeyringConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"` // Use the OS keyring; otherwise the token lives in Badger
	Service string `toml:"service" yaml:"service"`
}

type AnalyticsConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	BatchSize     int    `toml:"batch_size" yaml:"batch_size" validate:"gte=1"`
	FlushSchedule string `toml:"flush_schedule" yaml:"flush_schedule"`
	// A domain's analytics session ends after this long without a page view
	InactivityTimeout string `toml:"inactivity_timeout" yaml:"inactivity_timeout"`
}

// WebSocketConfig filters and throttles what is broadcast to UI clients
type WebSocketConfig struct {
	AllowedEvents     []string          `toml:"allowed_events" yaml:"allowed_events"`         // Empty allows every event
	ThrottleIntervals map[string]string `toml:"throttle_intervals" yaml:"throttle_intervals"` // Event type -> minimum gap, e.g. "operation_log" = "100ms"
}

type LoggingConfig struct {
	Level         string   `toml:"level" yaml:"level"`   // "debug", "info", "warn", "error"
	Output        []string `toml:"output" yaml:"output"` // "stdout", "file"
	TimeFormat    string   `toml:"time_format" yaml:"time_format"`
	MinEventLevel string   `toml:"min_event_level" yaml:"min_event_level"` // Minimum level of operation logs streamed to the UI
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Backend: BackendConfig{
			BaseURL:        "https://api.artutos.us.kg",
			RequestTimeout: "15s",
			RateLimit:      5,
		},
		Browser: BrowserConfig{
			Mode:           "chrome",
			Headless:       false, // The pool is shared with a human at the keyboard
			UserAgent:      "",
			StartupTimeout: "30s",
			ActionTimeout:  "15s",
			OpenOnSwitch:   true,
		},
		Session: SessionConfig{
			ValidateSchedule:      "@every 30s",
			GateSchedule:          "@every 10s",
			StorageInjectAttempts: 3,
			StorageInjectBackoff:  "500ms",
			StoragePayloadPrefix:  "__storage__:",
			HeaderCookieName:      "header_cookies",
			DefaultMaxSessions:    3,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
			VariablesDir: "./config",
		},
		Keyring: KeyringConfig{
			Enabled: false,
			Service: "cookiepool",
		},
		Analytics: AnalyticsConfig{
			Enabled:           true,
			BatchSize:         10,
			FlushSchedule:     "@every 60s",
			InactivityTimeout: "60s",
		},
		WebSocket: WebSocketConfig{
			ThrottleIntervals: map[string]string{
				"operation_log": "50ms",
			},
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        []string{"stdout", "file"},
			TimeFormat:    "15:04:05",
			MinEventLevel: "info",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> .env -> env
// CLI flags are applied afterwards with ApplyFlagOverrides.
// kvStorage can be nil; when set, {key-name} references are resolved from it.
func LoadFromFiles(kvStorage interfaces.KeyValueStorage, paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = toml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if kvStorage != nil {
		ApplyKeyReplacements(context.Background(), config, kvStorage, arbor.NewLogger())
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	applyEnvOverrides(config)

	return config, nil
}

// loadDotEnv loads a .env file when present. Existing variables are not overwritten.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies COOKIEPOOL_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("COOKIEPOOL_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("COOKIEPOOL_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("COOKIEPOOL_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Backend configuration
	if baseURL := os.Getenv("COOKIEPOOL_BACKEND_URL"); baseURL != "" {
		config.Backend.BaseURL = baseURL
	}
	if timeout := os.Getenv("COOKIEPOOL_BACKEND_TIMEOUT"); timeout != "" {
		config.Backend.RequestTimeout = timeout
	}

	// Browser configuration
	if mode := os.Getenv("COOKIEPOOL_BROWSER_MODE"); mode != "" {
		config.Browser.Mode = mode
	}
	if remote := os.Getenv("COOKIEPOOL_BROWSER_REMOTE_URL"); remote != "" {
		config.Browser.RemoteURL = remote
	}
	if headless := os.Getenv("COOKIEPOOL_BROWSER_HEADLESS"); headless != "" {
		if b, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = b
		}
	}

	// Storage and keyring
	if path := os.Getenv("COOKIEPOOL_STORAGE_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if enabled := os.Getenv("COOKIEPOOL_KEYRING_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Keyring.Enabled = b
		}
	}

	// Logging
	if level := os.Getenv("COOKIEPOOL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("COOKIEPOOL_LOG_OUTPUT"); output != "" {
		var outputs []string
		for _, o := range strings.Split(output, ",") {
			if o = strings.TrimSpace(o); o != "" {
				outputs = append(outputs, o)
			}
		}
		config.Logging.Output = outputs
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks struct constraints, durations and job schedules
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"backend.request_timeout":        c.Backend.RequestTimeout,
		"browser.startup_timeout":        c.Browser.StartupTimeout,
		"browser.action_timeout":         c.Browser.ActionTimeout,
		"session.storage_inject_backoff": c.Session.StorageInjectBackoff,
	}
	for name, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", name, err)
		}
	}

	schedules := map[string]string{
		"session.validate_schedule": c.Session.ValidateSchedule,
		"session.gate_schedule":     c.Session.GateSchedule,
	}
	if c.Analytics.Enabled {
		schedules["analytics.flush_schedule"] = c.Analytics.FlushSchedule
	}
	for name, schedule := range schedules {
		if err := ValidateSchedule(schedule, MinimumScheduleInterval); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// ValidateSchedule validates a cron expression (standard fields or @every/@hourly
// descriptors) and ensures consecutive runs are at least minimum apart
func ValidateSchedule(schedule string, minimum time.Duration) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return fmt.Errorf("schedule is empty")
	}

	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	if strings.HasPrefix(schedule, "@every ") {
		interval, err := time.ParseDuration(strings.TrimSpace(strings.TrimPrefix(schedule, "@every ")))
		if err != nil {
			return fmt.Errorf("invalid interval: %w", err)
		}
		if interval < minimum {
			return fmt.Errorf("schedule interval must be at least %s, got %s", minimum, interval)
		}
		return nil
	}

	first := parsed.Next(time.Now())
	second := parsed.Next(first)
	if gap := second.Sub(first); gap < minimum {
		return fmt.Errorf("schedule interval must be at least %s, got %s", minimum, gap)
	}

	return nil
}

// ParseDuration parses a config duration, falling back when empty or invalid
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
