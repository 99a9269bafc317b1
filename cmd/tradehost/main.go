// Command tradehost runs the trading automation host: venue market/user
// feeds, order gateway, plugin supervisor, and the admin HTTP surface,
// wired together from environment configuration.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradehost/internal/adminapi"
	"tradehost/internal/clocksync"
	"tradehost/internal/config"
	"tradehost/internal/eventbus"
	"tradehost/internal/instancelock"
	"tradehost/internal/logging"
	"tradehost/internal/marketfeed"
	"tradehost/internal/ordergateway"
	"tradehost/internal/pluginsupervisor"
	"tradehost/internal/storage"
	"tradehost/internal/tradegate"
	"tradehost/internal/userfeed"
	"tradehost/internal/vaultsecrets"
)

func main() {
	cfg := config.Load()

	logger := logging.New(&logging.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		JSONFormat: cfg.Logging.JSONFormat,
		Component:  "main",
	})
	logging.SetDefault(logger)
	logger.Info("structured logging initialized")

	ctx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	clock := clocksync.New(clocksync.NewRESTTimeSource(cfg.ClockSync.RESTTimeURL))
	if err := clock.Start(ctx); err != nil {
		logger.Warn("initial clock sync failed, continuing with fallback offset", "error", err)
	}
	go runResyncLoop(ctx, clock, cfg.ClockSync.ResyncInterval, logger)
	logger.Info("clock sync started", "interval", cfg.ClockSync.ResyncInterval)

	bus := eventbus.New(cfg.Bus.Capacity, logger.WithComponent("eventbus"))
	logger.Info("event bus initialized", "capacity", cfg.Bus.Capacity)

	feed := marketfeed.New(cfg.Venue.MarketWSBase, bus, logger.WithComponent("marketfeed"))
	go feed.Run(ctx)
	logger.Info("market feed started", "url", cfg.Venue.MarketWSBase)

	var vault *vaultsecrets.Client
	if cfg.Vault.Enabled {
		v, err := vaultsecrets.New(vaultsecrets.Config{
			Enabled:    cfg.Vault.Enabled,
			Address:    cfg.Vault.Address,
			Token:      cfg.Vault.Token,
			MountPath:  cfg.Vault.MountPath,
			SecretPath: cfg.Vault.SecretPath,
			TLSEnabled: cfg.Vault.TLSEnabled,
			CACert:     cfg.Vault.CACert,
		})
		if err != nil {
			logger.Warn("vault client init failed, credential storage disabled", "error", err)
		} else {
			vault = v
			logger.Info("vault client initialized", "address", cfg.Vault.Address)
		}
	}

	// userFeeds.Connect persists every credential it receives through
	// vault when configured; a nil vault leaves Registry with its
	// in-process-only fallback.
	var credentialStore userfeed.CredentialStore
	if vault != nil {
		credentialStore = vault
	}
	userFeeds := userfeed.NewRegistry(ctx, cfg.Venue.UserRESTBase, cfg.Venue.UserWSBase, bus, credentialStore, logger.WithComponent("userfeed"))
	logger.Info("user feed registry initialized")

	gateway := ordergateway.New(nil, logger.WithComponent("ordergateway"))
	if cfg.Venue.APIKey != "" && cfg.Venue.SecretKey != "" {
		gate := tradegate.New(cfg.Venue.TradeWSURL, cfg.Venue.APIKey, cfg.Venue.SecretKey, clock, gateway)
		gateway = ordergateway.New(gate, logger.WithComponent("ordergateway"))
		go gate.Run(ctx)
		logger.Info("trade gate started", "url", cfg.Venue.TradeWSURL)
	} else {
		logger.Info("no default venue credentials configured, order gateway runs without a sender")
	}

	lock := instancelock.New(instancelock.Config{
		Enabled:  cfg.InstanceLock.Enabled,
		Address:  cfg.InstanceLock.Address,
		Password: cfg.InstanceLock.Password,
		DB:       cfg.InstanceLock.DB,
		PoolSize: cfg.InstanceLock.PoolSize,
	}, logger.WithComponent("instancelock"))
	if cfg.InstanceLock.Enabled {
		logger.Info("instance lock configured", "address", cfg.InstanceLock.Address)
	}

	supervisor := pluginsupervisor.New(bus, userFeeds, gateway, lock, logger.WithComponent("pluginsupervisor"))
	defer supervisor.Close()
	logger.Info("plugin supervisor initialized")

	var store *storage.Store
	if cfg.Storage.Enabled {
		s, err := storage.Open(ctx, storage.Config{
			Host:     cfg.Storage.Host,
			Port:     cfg.Storage.Port,
			User:     cfg.Storage.User,
			Password: cfg.Storage.Password,
			Database: cfg.Storage.Database,
			SSLMode:  cfg.Storage.SSLMode,
		})
		if err != nil {
			logger.Warn("storage connection failed, artifact persistence disabled", "error", err)
		} else {
			if err := s.Migrate(ctx); err != nil {
				logger.Warn("storage migration failed", "error", err)
			}
			store = s
			defer store.Close()
			logger.Info("strategy storage connected")
		}
	}

	adminServer := adminapi.NewServer(adminapi.Config{
		Host:           cfg.AdminAPI.Host,
		Port:           cfg.AdminAPI.Port,
		ProductionMode: cfg.AdminAPI.ProductionMode,
		TokenSecret:    cfg.AdminAPI.TokenSecret,
		TokenTTL:       cfg.AdminAPI.TokenTTL,
	}, supervisor, userFeeds, store, logger.WithComponent("adminapi"))

	go func() {
		if err := adminServer.Start(); err != nil {
			log.Fatalf("admin api failed: %v", err)
		}
	}()
	logger.Info("admin api started", "host", cfg.AdminAPI.Host, "port", cfg.AdminAPI.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin api shutdown error", "error", err)
	}
	rootCancel()
	logger.Info("shutdown complete")
}

func runResyncLoop(ctx context.Context, clock *clocksync.Sync, interval time.Duration, logger *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clock.Resync(ctx)
			logger.Debug("clock resync complete", "offset_ms", clock.Offset())
		}
	}
}
