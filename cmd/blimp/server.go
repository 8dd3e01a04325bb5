package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/blimp/internal/config"
	"github.com/jkaninda/blimp/internal/gateway/httpapi"
	"github.com/jkaninda/blimp/internal/observability"
	"github.com/jkaninda/blimp/internal/ratelimit"
	"github.com/jkaninda/blimp/internal/scheduler"
)

var (
	serverConfigPath string
	serverListenAddr string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the HTTP API server",
	RunE:  runServer,
}

func init() {
	// Register flags on both root and server so that
	// `blimp --config path` and `blimp server --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serverCmd} {
		cmd.Flags().StringVar(&serverConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&serverListenAddr, "listen", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServer starts the HTTP API server plus the cron scheduler.
func runServer(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := loadConfig(goutils.Env("BLIMP_CONFIG", serverConfigPath))
	if err != nil {
		return err
	}
	if serverListenAddr != "" {
		cfg.Server.ListenAddr = serverListenAddr
	}

	logger.Info("starting in server mode", slog.String("addr", cfg.Server.Addr()))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Cron scheduler (optional).
	var cronStore scheduler.CronJobStore
	if cfg.Scheduler != nil && cfg.Scheduler.Enabled {
		cronStore = sc.Store.CronJobs()

		var schedMetrics *scheduler.Metrics
		if sc.Obs != nil && sc.Obs.Metrics != nil {
			schedMetrics = scheduler.NewMetrics(sc.Obs.Metrics.Registry)
		}

		cron := scheduler.New(cronStore, sc.Service, schedMetrics, logger,
			scheduler.WithPollInterval(cfg.Scheduler.PollInterval()))
		cancelScheduler := cron.Start(ctx)
		defer cancelScheduler()

		logger.Debug("cron scheduler initialized",
			slog.String("poll_interval", cfg.Scheduler.PollInterval().String()))
	}

	// HTTP API gateway.
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.Server.RateLimit.BurstSize,
	})

	gwCfg := httpapi.Config{
		ListenAddr:     cfg.Server.Addr(),
		EnableDocs:     cfg.Server.EnableDocs,
		APIKeys:        apiKeys(cfg),
		MaxRequestSize: cfg.Server.MaxRequestSize(),
	}
	if sc.Obs != nil {
		gwCfg.Metrics = sc.Obs.Metrics
		gwCfg.HealthChecker = sc.Obs.Health
		if sc.Obs.Metrics != nil {
			gwCfg.MetricsRegistry = sc.Obs.Metrics.Registry
		}
		if sc.Obs.Tracer != nil {
			gwCfg.Tracer = sc.Obs.Tracer.Tracer()
		}
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			gwCfg.MetricsPath = cfg.Observability.Metrics.MetricsPath()
		}
	} else {
		gwCfg.HealthChecker = observability.NewHealthChecker(logger)
		gwCfg.HealthChecker.AddCheck("database", sc.Store.Ping)
	}

	gw := httpapi.NewGateway(gwCfg, sc.Service, limiter, logger)
	if cronStore != nil {
		gw.WithCronJobs(cronStore)
	}

	errs := make(chan error, 1)
	go func() { errs <- gw.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gw.Stop(shutdownCtx)
}

// apiKeys builds the API key → user ID mapping from config, merging the
// BLIMP_API_KEYS env override ("key1:user1,key2:user2").
func apiKeys(cfg *config.Config) map[string]string {
	keys := cfg.Server.APIKeyUserMapping
	if keys == nil {
		keys = make(map[string]string)
	}
	if envKeys := os.Getenv("BLIMP_API_KEYS"); envKeys != "" {
		for _, entry := range strings.Split(envKeys, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
			if len(parts) == 2 {
				keys[parts[0]] = parts[1]
			}
		}
	}
	return keys
}
