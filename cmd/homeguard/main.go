package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/santiagoj/homeguard/internal/api"
	"github.com/santiagoj/homeguard/internal/config"
	"github.com/santiagoj/homeguard/internal/curfew"
	"github.com/santiagoj/homeguard/internal/directory"
	"github.com/santiagoj/homeguard/internal/location"
	"github.com/santiagoj/homeguard/internal/metrics"
	"github.com/santiagoj/homeguard/internal/notify"
	"github.com/santiagoj/homeguard/internal/protocol"
	"github.com/santiagoj/homeguard/internal/repository/postgres"
	"github.com/santiagoj/homeguard/internal/repository/redisindex"
	"github.com/santiagoj/homeguard/internal/sms"
	"github.com/santiagoj/homeguard/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	l := logger.New(cfg.LogLevel)
	l.Info("Starting homeguard...")

	// Database
	db, err := config.NewDatabase(cfg.DatabaseURL, l)
	if err != nil {
		l.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations
	if err := db.Migrate("migrations"); err != nil {
		l.Fatalf("Failed to run migrations: %v", err)
	}

	// Redis pairing-code index
	rdb, err := config.NewRedis(cfg.RedisAddr, l)
	if err != nil {
		l.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	// Repositories
	identityRepo := postgres.NewIdentityRepository(db.DB)
	contactRepo := postgres.NewContactRepository(db.DB)
	historyRepo := postgres.NewHistoryRepository(db.DB)
	curfewRepo := postgres.NewCurfewJobRepository(db.DB)
	pairingIndex := redisindex.New(rdb)

	// Metrics
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	identityKey := cfg.IdentityKey
	if identityKey == "" {
		identityKey = uuid.NewString()
		l.Warnf("IDENTITY_KEY not set, generated %s; set it to keep the identity across restarts", identityKey)
	}

	// Directory store
	store := directory.NewStore(
		identityRepo, contactRepo, historyRepo, pairingIndex,
		identityKey, cfg.SnapshotPath, l, m,
	)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		l.Info("Received shutdown signal...")
		cancel()
	}()

	// Registration and the initial refresh are best effort: when the backend
	// is unreachable the agent still serves the persisted snapshot.
	if _, err := store.EnsureIdentity(ctx, cfg.DisplayName, cfg.PhoneNumber); err != nil {
		l.Warnf("Identity registration deferred: %v", err)
	}
	if _, err := store.Refresh(ctx); err != nil {
		l.Warnf("Initial directory refresh failed, serving persisted snapshot: %v", err)
	}

	// Own-position provider
	provider := location.NewDeviceProvider(historyRepo, identityKey, l)

	// Notification sinks
	sink := notify.Multi{notify.NewLogSink(l)}
	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		tg, err := notify.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatID, l)
		if err != nil {
			l.Warnf("Telegram sink disabled: %v", err)
		} else {
			sink = append(sink, tg)
		}
	}

	// SMS fallback exchange
	transport := sms.NewGatewayTransport(cfg.SMSGatewayURL, cfg.SMSGatewayToken, l)
	exchange := protocol.NewHandler(store, provider, transport, sink, m, l)

	// Curfew scheduler
	scheduler := curfew.NewScheduler(curfewRepo, store, sink, m, l, identityKey, cfg.CurfewPollInterval)
	go scheduler.Run(ctx)

	// HTTP server
	apiServer := api.NewServer(store, scheduler, exchange, provider, registry, l)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: apiServer.Handler(),
	}

	go func() {
		l.Infof("HTTP server listening on :%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Errorf("HTTP server error: %v", err)
		}
	}()

	l.Info("homeguard started successfully")

	<-ctx.Done()

	l.Info("Shutting down HTTP server...")
	httpServer.Close()

	l.Info("homeguard stopped")
}
