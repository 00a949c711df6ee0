package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"meritledger/config"
	"meritledger/core"
	"meritledger/gateway"
	"meritledger/gateway/middleware"
	"meritledger/gateway/outbox"
	"meritledger/gateway/store"
	"meritledger/observability/logging"
	"meritledger/state"
	"meritledger/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup("meritledger", cfg.Environment)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data directory", "err", err)
		os.Exit(1)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	if err != nil {
		logger.Error("failed to open ledger database", "err", err)
		os.Exit(1)
	}
	st, err := state.NewManager(db)
	if err != nil {
		logger.Error("failed to initialise state", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	node, err := core.NewNode(st, core.NodeConfig{
		DefaultAllowance:     cfg.Economy.DailyAllowanceAmount(),
		CommunityAllowances:  cfg.Economy.CommunityAllowanceAmounts(),
		WithdrawIncrement:    cfg.Economy.WithdrawIncrementAmount(),
		DefaultInvestorShare: cfg.Economy.DefaultInvestorShare,
	})
	if err != nil {
		logger.Error("failed to initialise node", "err", err)
		os.Exit(1)
	}

	gwStore, err := store.NewSQLiteStore(cfg.Gateway.StorePath)
	if err != nil {
		logger.Error("failed to open gateway store", "err", err)
		os.Exit(1)
	}
	defer gwStore.Close()

	ob, err := outbox.Open(cfg.Gateway.OutboxPath)
	if err != nil {
		logger.Error("failed to open webhook outbox", "err", err)
		os.Exit(1)
	}
	defer ob.Close()

	hooks, err := config.LoadWebhooks(cfg.Gateway.WebhooksFile)
	if err != nil {
		logger.Error("failed to load webhook destinations", "err", err)
		os.Exit(1)
	}
	destinations := make([]outbox.Destination, 0, len(hooks))
	for _, hook := range hooks {
		destinations = append(destinations, outbox.Destination{
			Name:   hook.Name,
			URL:    hook.URL,
			Secret: hook.Secret,
		})
	}

	limits := make(map[string]middleware.RateLimit, len(cfg.Gateway.RateLimits))
	for name, limit := range cfg.Gateway.RateLimits {
		limits[name] = middleware.RateLimit{
			RequestsPerMinute: limit.RequestsPerMinute,
			Burst:             limit.Burst,
		}
	}
	server := gateway.NewServer(node, gwStore, ob, gateway.Config{
		ListenAddress: cfg.Gateway.ListenAddress,
		ReadOnly:      cfg.Gateway.ReadOnly,
		Auth: middleware.AuthConfig{
			Enabled:    cfg.Gateway.AuthEnabled,
			HMACSecret: cfg.Gateway.AuthSecret,
			Issuer:     cfg.Gateway.AuthIssuer,
			Audience:   cfg.Gateway.AuthAudience,
			ClockSkew:  cfg.Gateway.AuthClockSkew.Duration,
		},
		RateLimits:      limits,
		TrustedProxies:  cfg.Gateway.TrustedProxies,
		ResponseHeaders: cfg.Gateway.ResponseHeaders,
		Observability: middleware.ObservabilityConfig{
			ServiceName: "meritledger-gateway",
			LogRequests: cfg.Gateway.LogRequests,
			Enabled:     true,
		},
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcher := outbox.NewDispatcher(ob, destinations, logger)
	go dispatcher.Run(ctx)

	logger.Info("ledgerd starting",
		"environment", cfg.Environment,
		"dataDir", cfg.DataDir,
		"listen", cfg.Gateway.ListenAddress,
	)
	if err := server.Run(ctx); err != nil {
		logger.Error("gateway terminated", "err", err)
		os.Exit(1)
	}

	// Give in-flight webhook deliveries a moment before closing stores.
	time.Sleep(100 * time.Millisecond)
	logger.Info("ledgerd stopped")
}
