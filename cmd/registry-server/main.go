// Package main provides the asset registry server entry point.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/glebarez/sqlite"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/modelpark/asset-registry/pkg/cache"
	"github.com/modelpark/asset-registry/pkg/config"
	"github.com/modelpark/asset-registry/pkg/dblock"
	"github.com/modelpark/asset-registry/pkg/events"
	"github.com/modelpark/asset-registry/pkg/graph"
	"github.com/modelpark/asset-registry/pkg/integrity"
	"github.com/modelpark/asset-registry/pkg/lifecycle"
	"github.com/modelpark/asset-registry/pkg/ratelimit"
	"github.com/modelpark/asset-registry/pkg/rbac"
	"github.com/modelpark/asset-registry/pkg/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting registry server",
		"listen", cfg.Server.Listen,
		"database", cfg.Database.Driver,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	db, err := openDatabase(cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	store := lifecycle.NewStore(db)
	graphEngine := graph.NewEngine(db)
	eventStore := events.NewStore(db)

	// Serialize schema migrations across replicas.
	migrationLock := dblock.New(db, "registry-migrations")
	err = migrationLock.WithLock(ctx, func() error {
		for _, migrate := range []func() error{
			store.AutoMigrate, graphEngine.AutoMigrate, eventStore.AutoMigrate,
		} {
			if err := migrate(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to migrate schema", "error", err)
		os.Exit(1)
	}

	// Redis backs both the asset cache and the rate-limit counters when
	// configured; otherwise in-process equivalents serve a single replica.
	var (
		assetCache   cache.Cache
		counterStore ratelimit.CounterStore
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		assetCache = cache.NewRedis(client, "registry")
		counterStore = ratelimit.NewRedisCounterStore(client, "registry")
		logger.Info("using redis", "addr", cfg.Redis.Addr)
	} else {
		assetCache = cache.NewMemory(cfg.Cache.MaxSize)
		counterStore = ratelimit.NewMemoryCounterStore()
	}

	verifier, err := newVerifier(cfg.Integrity)
	if err != nil {
		logger.Error("failed to load signing keys", "error", err)
		os.Exit(1)
	}

	manager := lifecycle.NewManager(db, store, graphEngine, eventStore, assetCache, verifier,
		lifecycle.ManagerOptions{
			Machine: lifecycle.MachineOptions{
				DisallowDeprecatedToDeleted: cfg.Lifecycle.DisallowDeprecatedToDeleted,
			},
			CacheTTL: cfg.Cache.TTL.Std(),
		}, logger)

	// The event log is durable either way; NATS is only the delivery leg.
	if cfg.NATS.URL != "" {
		conn, err := nats.Connect(cfg.NATS.URL, nats.Name("registry-server"))
		if err != nil {
			logger.Error("failed to connect to nats", "url", cfg.NATS.URL, "error", err)
			os.Exit(1)
		}
		defer conn.Drain()
		publisher := events.NewNATSPublisher(conn, cfg.NATS.SubjectPrefix)
		dispatcher := events.NewDispatcher(eventStore, publisher, events.DispatcherConfig{
			Enabled:      cfg.Events.DispatchEnabled,
			PollInterval: cfg.Events.PollInterval.Std(),
			BatchSize:    cfg.Events.BatchSize,
		}, logger)
		go dispatcher.Run(ctx)
		logger.Info("event dispatch enabled", "url", cfg.NATS.URL, "subject_prefix", cfg.NATS.SubjectPrefix)
	} else {
		logger.Info("nats not configured, events stay in the outbox")
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(counterStore, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window.Std())
	}

	srv := server.New(manager, graphEngine, rbac.NewEvaluator(), limiter, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout.Std(),
		WriteTimeout: cfg.Server.WriteTimeout.Std(),
	}

	go func() {
		logger.Info("registry server ready", "listen", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("registry server stopped")
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func newVerifier(cfg config.IntegrityConfig) (*integrity.Verifier, error) {
	if len(cfg.Keys) == 0 {
		return nil, nil
	}
	keys := make(map[string]ed25519.PublicKey, len(cfg.Keys))
	for keyID, encoded := range cfg.Keys {
		raw, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", keyID, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("key %q: expected %d-byte ed25519 public key, got %d",
				keyID, ed25519.PublicKeySize, len(raw))
		}
		keys[keyID] = ed25519.PublicKey(raw)
	}
	return integrity.NewVerifier(integrity.NewStaticKeyRegistry(keys)), nil
}

func openDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
