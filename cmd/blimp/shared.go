package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jkaninda/blimp/internal/capability"
	"github.com/jkaninda/blimp/internal/capability/calendar"
	"github.com/jkaninda/blimp/internal/capability/discord"
	"github.com/jkaninda/blimp/internal/capability/gdrive"
	"github.com/jkaninda/blimp/internal/capability/gmail"
	"github.com/jkaninda/blimp/internal/capability/notion"
	"github.com/jkaninda/blimp/internal/capability/slack"
	"github.com/jkaninda/blimp/internal/config"
	"github.com/jkaninda/blimp/internal/credentials"
	"github.com/jkaninda/blimp/internal/engine"
	"github.com/jkaninda/blimp/internal/llm"
	"github.com/jkaninda/blimp/internal/llm/gemini"
	"github.com/jkaninda/blimp/internal/llm/openai"
	"github.com/jkaninda/blimp/internal/observability"
	"github.com/jkaninda/blimp/internal/orchestrator"
	"github.com/jkaninda/blimp/internal/planner"
	"github.com/jkaninda/blimp/internal/secrets"
	"github.com/jkaninda/blimp/internal/storage"
)

// SharedComponents holds the initialized subsystems that both server and
// MCP modes require. Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    storage.Store
	Obs      *observability.Observability
	Provider llm.Provider
	Registry *capability.Registry
	Service  *orchestrator.Service

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// loadConfig loads the config file, falling back to environment-only
// defaults when the default config file does not exist.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) && path == config.DefaultConfigPath() {
		return config.Default(), nil
	}
	return config.Load(path)
}

// initShared performs the common initialization shared between server
// and MCP modes. Callers must call sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", dataDir))

	// Secret references in config resolve before anything reads them.
	resolver, err := buildSecretResolver(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing secret resolver: %w", err)
	}
	if err := cfg.ResolveSecrets(context.Background(), resolver); err != nil {
		return nil, fmt.Errorf("resolving config secrets: %w", err)
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		if obs != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
			slog.Bool("anomaly", obs.Anomaly != nil),
		)
	}

	// LLM provider for plan analysis.
	provider, err := newLLMProvider(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing LLM provider: %w", err)
	}
	logger.Debug("llm provider initialized", slog.String("provider", provider.Name()))

	if obs != nil && obs.Metrics != nil {
		provider = observability.NewInstrumentedProvider(
			provider, obs.Metrics, obs.Tracer, obs.Anomaly,
		)
	}
	sc.Provider = provider

	// Storage.
	store, err := initStore(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})
	if err := store.Migrate(context.Background()); err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	// Capability registry: every supported app's functions.
	hc := capability.NewHTTPClient()
	registry := capability.NewRegistry()
	gmail.Register(registry, hc)
	calendar.Register(registry, hc)
	slack.Register(registry, hc)
	notion.Register(registry, hc)
	discord.Register(registry, hc)
	gdrive.Register(registry, hc)
	sc.Registry = registry
	logger.Debug("capabilities registered", slog.Any("apps", registry.Apps()))

	// Token refresher backed by configured OAuth client credentials.
	oauthApps := make(map[string]credentials.OAuthApp, len(cfg.OAuthApps))
	for app, oa := range cfg.OAuthApps {
		oauthApps[app] = credentials.OAuthApp{
			ClientID:     oa.ClientID,
			ClientSecret: oa.ClientSecret,
		}
	}
	refresher := credentials.NewRefresher(store.Credentials(), oauthApps, logger)

	// Execution engine.
	var engineOpts []engine.Option
	if obs != nil && obs.Metrics != nil {
		engineOpts = append(engineOpts, engine.WithMetrics(
			observability.NewEngineMetrics(obs.Metrics, obs.Anomaly),
		))
	}
	exec := engine.New(registry, store.Credentials(), refresher, logger, engineOpts...)

	// Planner.
	pl := planner.New(provider, registry, logger)

	// Orchestrator service.
	var svcOpts []orchestrator.Option
	if obs != nil && obs.Metrics != nil {
		svcOpts = append(svcOpts, orchestrator.WithMetrics(
			observability.NewOrchestratorMetrics(obs.Metrics),
		))
	}
	sc.Service = orchestrator.New(
		pl, exec, store.Workflows(), store.Executions(), store.Credentials(), logger, svcOpts...,
	)

	// Health checks.
	if obs != nil && obs.Health != nil {
		obs.Health.AddCheck("database", store.Ping)
	}

	return sc, nil
}

// buildSecretResolver assembles the secret-reference resolver: env://
// always works, vault:// when configured.
func buildSecretResolver(cfg *config.Config) (secrets.Provider, error) {
	providers := []secrets.Provider{secrets.NewEnvProvider()}
	if cfg.Secrets != nil && cfg.Secrets.Vault != nil {
		vp, err := secrets.NewVaultProvider(*cfg.Secrets.Vault)
		if err != nil {
			return nil, err
		}
		providers = append(providers, vp)
	}
	return secrets.NewChain(providers...), nil
}

// initStore creates the configured storage backend, defaulting the
// SQLite path into the data directory.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	storeCfg := storage.Config{Driver: cfg.Storage.StorageDriver()}

	switch storeCfg.Driver {
	case storage.DriverSQLite:
		storeCfg.SQLite.Path = cfg.DatabasePath()
		if cfg.Storage != nil && cfg.Storage.SQLite != nil {
			if cfg.Storage.SQLite.Path != "" {
				storeCfg.SQLite.Path = cfg.Storage.SQLite.Path
			}
			storeCfg.SQLite.JournalMode = cfg.Storage.SQLite.JournalMode
		}
	case storage.DriverPostgres:
		pg := cfg.Storage.Postgres
		storeCfg.Postgres = storage.PostgresConfig{
			DSN:              pg.DSN,
			MaxOpenConns:     pg.MaxOpenConns,
			MaxIdleConns:     pg.MaxIdleConns,
			ConnMaxLifetimeS: pg.ConnMaxLifetimeS,
		}
	}

	return storage.Open(storeCfg, logger)
}

// newLLMProvider creates the configured provider plus fallback chain.
func newLLMProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	primary, err := buildProvider(cfg.DefaultProvider(), cfg, logger)
	if err != nil {
		return nil, err
	}

	if len(cfg.Providers.Fallback) > 0 {
		providers := []llm.Provider{primary}
		for _, name := range cfg.Providers.Fallback {
			fb, err := buildProvider(name, cfg, logger)
			if err != nil {
				logger.Warn("skipping fallback provider",
					slog.String("provider", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			providers = append(providers, fb)
		}
		if len(providers) > 1 {
			return llm.NewFallbackProvider(providers, logger), nil
		}
	}

	return primary, nil
}

// buildProvider creates a single LLM provider by name.
func buildProvider(name string, cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	switch name {
	case "gemini", "":
		if cfg.Providers.Gemini.APIKey == "" {
			return nil, fmt.Errorf("providers.gemini.api_key is required (set GEMINI_API_KEY)")
		}
		var opts []gemini.Option
		if cfg.Providers.Gemini.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(cfg.Providers.Gemini.BaseURL))
		}
		return gemini.NewClient(
			cfg.Providers.Gemini.APIKey,
			cfg.Providers.Gemini.Model,
			logger,
			opts...,
		), nil
	case "openai":
		if cfg.Providers.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("providers.openai.api_key is required (set OPENAI_API_KEY)")
		}
		var opts []openai.Option
		if cfg.Providers.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Providers.OpenAI.BaseURL))
		}
		return openai.NewClient(
			cfg.Providers.OpenAI.APIKey,
			cfg.Providers.OpenAI.Model,
			logger,
			opts...,
		), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", name)
	}
}
