// Package config handles loading and validating Blimp configuration.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jkaninda/blimp/internal/secrets"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Blimp.
type Config struct {
	DataDir       string               `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Persistent data directory. Default: ~/.blimp/data. Override: BLIMP_DATA_DIR env var.
	Server        ServerConfig         `json:"server" yaml:"server"`
	Storage       *StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"` // nil = SQLite default (derived from data dir)
	Providers     ProvidersConfig      `json:"providers" yaml:"providers"`
	OAuthApps     map[string]OAuthApp  `json:"oauth_apps,omitempty" yaml:"oauth_apps,omitempty"` // app name → client credentials for token refresh.
	Secrets       *SecretsConfig       `json:"secrets,omitempty" yaml:"secrets,omitempty"`       // nil = only env:// references resolve
	Scheduler     *SchedulerConfig     `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`   // nil = cron scheduler disabled
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	ListenAddr          string            `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080".
	EnableDocs          bool              `json:"enable_docs" yaml:"enable_docs"`
	MaxRequestSizeBytes int64             `json:"max_request_size_bytes" yaml:"max_request_size_bytes"` // Default: 1 MB.
	APIKeyUserMapping   map[string]string `json:"api_key_user_mapping" yaml:"api_key_user_mapping"`     // API key → user ID.
	RateLimit           RateLimitConfig   `json:"rate_limit" yaml:"rate_limit"`
}

// Addr returns the listen address with a default of ":8080".
func (s *ServerConfig) Addr() string {
	if s != nil && s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// MaxRequestSize returns the request body limit with a default of 1 MB.
func (s *ServerConfig) MaxRequestSize() int64 {
	if s != nil && s.MaxRequestSizeBytes > 0 {
		return s.MaxRequestSizeBytes
	}
	return 1 << 20
}

// RateLimitConfig configures per-user rate limiting.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute" yaml:"requests_per_minute"`
	BurstSize         int `json:"burst_size" yaml:"burst_size"`
}

// StorageConfig configures the persistence backend.
// When nil, defaults to SQLite with the database path derived from the data dir.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"`                         // "sqlite" (default), "postgres", or "memory".
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`     // SQLite-specific settings.
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"` // PostgreSQL-specific settings.
}

// StorageDriver returns the configured driver, defaulting to "sqlite".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "sqlite"
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"` // Override: BLIMP_DB_DSN env var.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 20
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// OAuthApp holds the OAuth client credentials of one supported app.
// Used during refresh-token exchange when the stored payload does not
// carry its own client credentials.
type OAuthApp struct {
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
}

// SecretsConfig configures secret-reference resolution. Sensitive
// fields (provider API keys, OAuth client secrets, the postgres DSN)
// accept "env://NAME" and "vault://path#field" references instead of
// plaintext values.
type SecretsConfig struct {
	Vault *secrets.VaultConfig `json:"vault,omitempty" yaml:"vault,omitempty"`
}

// ResolveSecrets replaces secret references in sensitive fields with
// values resolved through p. Literal values pass through unchanged.
func (c *Config) ResolveSecrets(ctx context.Context, p secrets.Provider) error {
	type refField struct {
		name string
		ref  *string
	}
	fields := []refField{
		{"providers.gemini.api_key", &c.Providers.Gemini.APIKey},
		{"providers.openai.api_key", &c.Providers.OpenAI.APIKey},
	}
	if c.Storage != nil && c.Storage.Postgres != nil {
		fields = append(fields, refField{"storage.postgres.dsn", &c.Storage.Postgres.DSN})
	}
	for _, f := range fields {
		v, err := secrets.Resolve(ctx, p, *f.ref)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.ref = v
	}
	for app, oa := range c.OAuthApps {
		id, err := secrets.Resolve(ctx, p, oa.ClientID)
		if err != nil {
			return fmt.Errorf("oauth_apps.%s.client_id: %w", app, err)
		}
		sec, err := secrets.Resolve(ctx, p, oa.ClientSecret)
		if err != nil {
			return fmt.Errorf("oauth_apps.%s.client_secret: %w", app, err)
		}
		c.OAuthApps[app] = OAuthApp{ClientID: id, ClientSecret: sec}
	}
	return nil
}

// SchedulerConfig configures the cron job scheduler.
// When nil, no cron jobs are executed.
type SchedulerConfig struct {
	Enabled             bool `json:"enabled" yaml:"enabled"`
	PollIntervalSeconds int  `json:"poll_interval_seconds" yaml:"poll_interval_seconds"` // Default: 30.
}

// PollInterval returns the poll interval with a default of 30s.
func (s *SchedulerConfig) PollInterval() time.Duration {
	if s != nil && s.PollIntervalSeconds > 0 {
		return time.Duration(s.PollIntervalSeconds) * time.Second
	}
	return 30 * time.Second
}

// ObservabilityConfig configures metrics, tracing, health checks, and anomaly detection.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// MetricsPath returns the exposition path with a default of "/metrics".
func (m *MetricsConfig) MetricsPath() string {
	if m != nil && m.Path != "" {
		return m.Path
	}
	return "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "blimp"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// AnomalyConfig configures threshold-based anomaly detection.
type AnomalyConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	ErrorRateThreshold float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"` // e.g. 0.5 = 50% errors
	WindowSeconds      int     `json:"window_seconds" yaml:"window_seconds"`             // Sliding window. Default: 300
}

// ProvidersConfig selects and configures LLM providers for plan analysis.
type ProvidersConfig struct {
	Default  string       `json:"default" yaml:"default"`                       // "gemini" or "openai". Empty = "gemini".
	Fallback []string     `json:"fallback,omitempty" yaml:"fallback,omitempty"` // Fallback providers tried in order when default fails.
	Gemini   GeminiConfig `json:"gemini" yaml:"gemini"`
	OpenAI   OpenAIConfig `json:"openai" yaml:"openai"`
}

type GeminiConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"` // Override: GEMINI_API_KEY env var.
	Model   string `json:"model" yaml:"model"`     // Default: "gemini-2.0-flash".
	BaseURL string `json:"base_url" yaml:"base_url"` // Optional. Defaults to https://generativelanguage.googleapis.com.
}

type OpenAIConfig struct {
	APIKey  string `json:"api_key" yaml:"api_key"` // Override: OPENAI_API_KEY env var.
	Model   string `json:"model" yaml:"model"`     // Default: "gpt-4o-mini".
	BaseURL string `json:"base_url" yaml:"base_url"` // Optional. Defaults to https://api.openai.com.
}

// DefaultConfigPath returns the default config file path (~/.blimp/config.yaml).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/blimp.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".blimp", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything else for JSON.
// Provider API keys can be set in the config file or overridden by
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a config suitable for running without any config file:
// SQLite storage under the data dir, Gemini planner keyed from the
// environment.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	return cfg
}

// applyEnv applies environment variable overrides. Env vars take
// precedence over config file values.
func (c *Config) applyEnv() {
	if envKey := os.Getenv("GEMINI_API_KEY"); envKey != "" {
		c.Providers.Gemini.APIKey = envKey
	}
	if envKey := os.Getenv("OPENAI_API_KEY"); envKey != "" {
		c.Providers.OpenAI.APIKey = envKey
	}
	if envDD := os.Getenv("BLIMP_DATA_DIR"); envDD != "" {
		c.DataDir = envDD
	}
	if envAddr := os.Getenv("BLIMP_LISTEN_ADDR"); envAddr != "" {
		c.Server.ListenAddr = envAddr
	}
	if envDSN := os.Getenv("BLIMP_DB_DSN"); envDSN != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{Driver: "postgres"}
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = envDSN
	}
	if envKey := os.Getenv("BLIMP_API_KEY"); envKey != "" {
		// Single-user shortcut: one key mapped to the "default" user.
		if c.Server.APIKeyUserMapping == nil {
			c.Server.APIKeyUserMapping = map[string]string{}
		}
		c.Server.APIKeyUserMapping[envKey] = "default"
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".blimp", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the default SQLite database path under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.ResolvedDataDir(), "blimp.db")
}

// DefaultProvider returns the planner provider name, defaulting to "gemini".
func (c *Config) DefaultProvider() string {
	if c.Providers.Default != "" {
		return c.Providers.Default
	}
	return "gemini"
}

func (c *Config) validate() error {
	if err := c.validateProvider(); err != nil {
		return err
	}
	if c.Storage != nil && c.Storage.Driver != "" {
		switch c.Storage.Driver {
		case "sqlite", "postgres", "memory":
			// valid
		default:
			return fmt.Errorf("storage.driver %q is not supported (use sqlite, postgres, or memory)", c.Storage.Driver)
		}
		if c.Storage.Driver == "postgres" && (c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "") {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres driver (or set BLIMP_DB_DSN)")
		}
	}
	if c.Server.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("server.rate_limit.requests_per_minute must not be negative")
	}
	return nil
}

// validateProvider checks that the selected LLM provider has the required fields.
func (c *Config) validateProvider() error {
	switch c.DefaultProvider() {
	case "gemini":
		if c.Providers.Gemini.APIKey == "" {
			return fmt.Errorf("providers.gemini.api_key is required (set GEMINI_API_KEY env var)")
		}
	case "openai":
		if c.Providers.OpenAI.APIKey == "" {
			return fmt.Errorf("providers.openai.api_key is required (set OPENAI_API_KEY env var)")
		}
	default:
		return fmt.Errorf("providers.default %q is not supported (use gemini or openai)", c.Providers.Default)
	}
	return nil
}
