package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/blimp/internal/secrets"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	path := writeConfig(t, "blimp.yaml", `
server:
  listen_addr: ":9090"
  enable_docs: true
providers:
  gemini:
    api_key: key-from-file
scheduler:
  enabled: true
  poll_interval_seconds: 10
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr() != ":9090" {
		t.Errorf("Addr = %q", cfg.Server.Addr())
	}
	if !cfg.Server.EnableDocs {
		t.Errorf("EnableDocs = false")
	}
	if cfg.Providers.Gemini.APIKey != "key-from-file" {
		t.Errorf("APIKey = %q", cfg.Providers.Gemini.APIKey)
	}
	if got := cfg.Scheduler.PollInterval(); got != 10*time.Second {
		t.Errorf("PollInterval = %v", got)
	}
}

func TestLoad_JSON(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	path := writeConfig(t, "blimp.json", `{
  "providers": {"gemini": {"api_key": "k"}},
  "storage": {"driver": "postgres", "postgres": {"dsn": "postgres://localhost/blimp"}}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.StorageDriver() != "postgres" {
		t.Errorf("driver = %q", cfg.Storage.StorageDriver())
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key-from-env")
	path := writeConfig(t, "blimp.yaml", `
providers:
  gemini:
    api_key: key-from-file
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.Gemini.APIKey != "key-from-env" {
		t.Errorf("APIKey = %q, env should win", cfg.Providers.Gemini.APIKey)
	}
}

func TestLoad_MissingProviderKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	path := writeConfig(t, "blimp.yaml", "server:\n  listen_addr: \":8080\"\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Load succeeded without a provider API key")
	}
}

func TestLoad_UnknownDriver(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	path := writeConfig(t, "blimp.yaml", "storage:\n  driver: mongodb\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "mongodb") {
		t.Errorf("err = %v, want unsupported driver", err)
	}
}

func TestLoad_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "k")
	t.Setenv("BLIMP_DB_DSN", "")
	path := writeConfig(t, "blimp.yaml", "storage:\n  driver: postgres\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Load succeeded with postgres driver and no DSN")
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config

	if got := cfg.Server.Addr(); got != ":8080" {
		t.Errorf("Addr = %q", got)
	}
	if got := cfg.Server.MaxRequestSize(); got != 1<<20 {
		t.Errorf("MaxRequestSize = %d", got)
	}
	if got := cfg.Storage.StorageDriver(); got != "sqlite" {
		t.Errorf("StorageDriver = %q", got)
	}
	if got := cfg.Scheduler.PollInterval(); got != 30*time.Second {
		t.Errorf("PollInterval = %v", got)
	}
	if got := cfg.DefaultProvider(); got != "gemini" {
		t.Errorf("DefaultProvider = %q", got)
	}

	var mc *MetricsConfig
	if got := mc.MetricsPath(); got != "/metrics" {
		t.Errorf("MetricsPath = %q", got)
	}
}

func TestApplyEnv_SingleAPIKey(t *testing.T) {
	t.Setenv("BLIMP_API_KEY", "secret")

	var cfg Config
	cfg.applyEnv()

	if got := cfg.Server.APIKeyUserMapping["secret"]; got != "default" {
		t.Errorf("mapping = %q, want default user", got)
	}
}

func TestResolveSecrets(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "resolved-key")
	t.Setenv("TEST_GOOGLE_SECRET", "resolved-secret")

	cfg := Config{
		OAuthApps: map[string]OAuthApp{
			"gmail": {ClientID: "plain-id", ClientSecret: "env://TEST_GOOGLE_SECRET"},
		},
	}
	cfg.Providers.Gemini.APIKey = "env://TEST_GEMINI_KEY"
	cfg.Providers.OpenAI.APIKey = "literal-key"

	if err := cfg.ResolveSecrets(context.Background(), secrets.NewEnvProvider()); err != nil {
		t.Fatalf("ResolveSecrets: %v", err)
	}
	if cfg.Providers.Gemini.APIKey != "resolved-key" {
		t.Errorf("gemini key = %q", cfg.Providers.Gemini.APIKey)
	}
	if cfg.Providers.OpenAI.APIKey != "literal-key" {
		t.Errorf("literal openai key changed: %q", cfg.Providers.OpenAI.APIKey)
	}
	if got := cfg.OAuthApps["gmail"]; got.ClientID != "plain-id" || got.ClientSecret != "resolved-secret" {
		t.Errorf("oauth app = %+v", got)
	}
}

func TestResolveSecrets_UnresolvableRef(t *testing.T) {
	t.Setenv("TEST_MISSING_KEY", "")

	var cfg Config
	cfg.Providers.Gemini.APIKey = "env://TEST_MISSING_KEY"
	if err := cfg.ResolveSecrets(context.Background(), secrets.NewEnvProvider()); err == nil {
		t.Fatal("unresolvable reference must fail startup")
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := Config{DataDir: "/var/lib/blimp"}
	if got := cfg.DatabasePath(); got != filepath.Join("/var/lib/blimp", "blimp.db") {
		t.Errorf("DatabasePath = %q", got)
	}
}
