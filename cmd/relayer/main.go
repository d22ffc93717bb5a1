// Package main runs the gasless relay HTTP service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/R3E-Network/relay_layer/internal/config"
	"github.com/R3E-Network/relay_layer/internal/keydir"
	"github.com/R3E-Network/relay_layer/internal/ledger"
	"github.com/R3E-Network/relay_layer/internal/logging"
	"github.com/R3E-Network/relay_layer/internal/metrics"
	"github.com/R3E-Network/relay_layer/internal/middleware"
	"github.com/R3E-Network/relay_layer/internal/mode"
	"github.com/R3E-Network/relay_layer/internal/platform/migrations"
	"github.com/R3E-Network/relay_layer/internal/replay"
	"github.com/R3E-Network/relay_layer/internal/smartwallet"
	"github.com/R3E-Network/relay_layer/internal/storage"
	"github.com/R3E-Network/relay_layer/internal/storage/postgres"
	"github.com/R3E-Network/relay_layer/services/relayer"
)

const (
	modeKey        = "relay_layer:ledger_mode"
	seenPrefix     = "relay_layer:seen:"
	seenCapacity   = 100_000
	keyCacheSize   = 10_000
	mirrorTimeout  = 10 * time.Second
	shutdownPeriod = 30 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(relayer.ServiceName, cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Relay exited")
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New(true)

	client, err := ledger.New(cfg.LedgerClientConfig(), logger)
	if err != nil {
		return fmt.Errorf("ledger client: %w", err)
	}
	if err := client.Open(ctx); err != nil {
		return fmt.Errorf("open ledger client: %w", err)
	}
	defer client.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse REDIS_URL: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
	}

	var modeStore mode.Store = mode.NewMemory(mode.Live)
	if rdb != nil {
		modeStore = mode.NewRedis(rdb, modeKey)
	}
	tracker := mode.NewTracker(modeStore, cfg.DegradeAfter, logger)
	resilient := ledger.NewResilient(client, tracker, logger, ledger.WithObserver(m))
	m.ObserveMode(tracker.Current(ctx))

	keys, err := keyDirectory(cfg)
	if err != nil {
		return err
	}

	var seen replay.SeenStore
	if cfg.Relay.Dedupe {
		if rdb != nil {
			seen = replay.NewRedisSeen(rdb, seenPrefix)
		} else {
			seen = replay.NewMemorySeen(seenCapacity)
		}
	}

	store, closeStore, err := auditStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var auth *middleware.AuthMiddleware
	if cfg.AdminJWTSecret != "" {
		auth = middleware.NewAuthMiddleware([]byte(cfg.AdminJWTSecret), cfg.AdminJWTIssuer, logger, nil)
	} else {
		logger.WithContext(ctx).Warn("ADMIN_JWT_SECRET not set; admin routes disabled")
	}

	svc, err := relayer.New(relayer.Config{
		Logger:         logger,
		Keys:           keys,
		Forwarder:      smartwallet.New(resilient, cfg.Ledger.DefaultGas),
		Mode:           tracker,
		Seen:           seen,
		Store:          store,
		Metrics:        m,
		Window:         cfg.ReplayWindow(),
		RequestTimeout: cfg.Relay.RequestTimeout,
		Auth:           auth,
		RateLimiter:    middleware.NewRateLimiter(cfg.Relay.RateLimitRPS, cfg.Relay.RateLimitBurst, logger),
		CORSOrigins:    cfg.CORSOrigins(),
		AuditRetention: cfg.AuditRetention,
	})
	if err != nil {
		return fmt.Errorf("create relayer: %w", err)
	}
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start relayer: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Relay.ListenAddr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Relay.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    cfg.Relay.ListenAddr,
			"network": cfg.Ledger.Network,
		}).Info("Relay listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			_ = svc.Stop()
			return fmt.Errorf("serve: %w", err)
		}
	}

	logger.WithContext(ctx).Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("HTTP shutdown")
	}
	if err := svc.Stop(); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("Service stop")
	}
	logger.WithContext(ctx).Info("Relay stopped")
	return nil
}

// keyDirectory consults the static file first and the mirror node second,
// caching successful lookups.
func keyDirectory(cfg *config.Config) (keydir.Directory, error) {
	var chain keydir.Chain
	if cfg.KeyDirectoryFile != "" {
		static, err := keydir.LoadStatic(cfg.KeyDirectoryFile)
		if err != nil {
			return nil, fmt.Errorf("load key directory: %w", err)
		}
		chain = append(chain, static)
	}
	if url := cfg.MirrorURL(); url != "" {
		chain = append(chain, keydir.NewMirror(url, mirrorTimeout))
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no key directory: set KEY_DIRECTORY_FILE or LEDGER_MIRROR_URL")
	}
	return keydir.NewCached(chain, cfg.KeyCacheTTL, keyCacheSize), nil
}

func auditStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (storage.RelayStore, func(), error) {
	if cfg.DatabaseURL == "" {
		logger.WithContext(ctx).Warn("DATABASE_URL not set; relay audit trail is in memory")
		return storage.NewMemory(), func() {}, nil
	}
	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrations.Up(db.DB, logger); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return postgres.New(db), closeDB(db, logger), nil
}

func closeDB(db *sqlx.DB, logger *logging.Logger) func() {
	return func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Warn("Close database")
		}
	}
}
