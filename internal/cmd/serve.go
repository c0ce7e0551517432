package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iaeternum/datagate/internal/core"
	"github.com/iaeternum/datagate/internal/core/ledger"
	"github.com/iaeternum/datagate/internal/core/limiter"
	"github.com/iaeternum/datagate/internal/core/payment"
	"github.com/iaeternum/datagate/internal/core/store"
	"github.com/iaeternum/datagate/internal/metrics"
	"github.com/iaeternum/datagate/internal/observability"
	"github.com/iaeternum/datagate/internal/server"
	"github.com/iaeternum/datagate/internal/server/handlers"
)

// sampleRecords seeds the store so the metered endpoint is exercisable
// end to end before a real catalog pipeline is attached.
var sampleRecords = []core.DataRecord{
	{ID: "rec_001", Title: "Base L2 settlement latency, 30d", Payload: map[string]any{"p50_ms": 412, "p99_ms": 2180}},
	{ID: "rec_002", Title: "USDC transfer volume by network", Payload: map[string]any{"base": 18234991.21, "base_sepolia": 1204.5}},
	{ID: "rec_003", Title: "Agent wallet activity sample", Payload: map[string]any{"active_wallets": 4211, "window_days": 30}},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gate",
	Long: `Start the HTTP gate with graceful shutdown support.

SIGINT or SIGTERM triggers a graceful shutdown: in-flight requests are
drained within the configured shutdown timeout, then logs are flushed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		observability.InitServerLogger("datagate", cfg.Logging.Level)
		logger := observability.ServerLogger

		logger.Info("Initializing gate",
			zap.String("version", versionInfo.Version),
			zap.String("environment", cfg.Environment),
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port),
			zap.String("limiter_driver", cfg.Limiter.Driver))

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := store.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		if err := db.Migrate(ctx); err != nil {
			return err
		}
		if err := db.SeedRecords(ctx, sampleRecords); err != nil {
			return err
		}

		counterStore, rdb, err := buildCounterStore(ctx, db, logger)
		if err != nil {
			return err
		}
		if rdb != nil {
			defer rdb.Close() // nolint:errcheck // best-effort cleanup
		}

		lim := limiter.New(counterStore, logger,
			limiter.WithStoreTimeout(cfg.Limiter.StoreTimeout))
		engine := payment.NewEngine(payment.Config{
			FacilitatorURL: cfg.Payment.FacilitatorURL,
			Network:        cfg.Payment.Network,
			PayTo:          cfg.Payment.PayTo,
			TestMode:       cfg.Payment.TestMode,
			APIKeyID:       cfg.Payment.APIKeyID,
			APIKeySecret:   cfg.Payment.APIKeySecret,
		}, logger)
		tracker := ledger.New(db, logger)

		hm := handlers.NewHealthManager(versionInfo.Version)
		hm.RegisterChecker("store", db)

		srv := server.New(cfg.Server.Host, cfg.Server.Port, server.Deps{
			Agent: &handlers.Agent{
				Limiter:      lim,
				Payments:     engine,
				Ledger:       tracker,
				Records:      db,
				Settlements:  db,
				FreeRequests: cfg.Limiter.FreeRequests,
				Window:       time.Duration(cfg.Limiter.WindowSeconds) * time.Second,
				Logger:       logger,
			},
			Health: hm,
			Logger: logger,
		})

		if cfg.Metrics.Enabled {
			go func() {
				logger.Info("Starting metrics listener", zap.Int("port", cfg.Metrics.Port))
				if err := metrics.ListenAndServe(cfg.Metrics.Port); err != nil && err != http.ErrServerClosed {
					logger.Error("Metrics listener failed", zap.Error(err))
				}
			}()
		}

		go sweepExpiredWindows(ctx, db, cfg.Limiter.SweepInterval, logger)

		errChan := make(chan error, 1)
		go func() {
			if err := srv.Start(); err != nil && err != http.ErrServerClosed {
				errChan <- err
			}
		}()

		select {
		case err := <-errChan:
			logger.Error("HTTP server failed", zap.Error(err))
			return err
		case <-ctx.Done():
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if shutdownTimeout == 0 {
			shutdownTimeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", zap.Error(err))
			return err
		}

		logger.Info("HTTP server stopped gracefully")
		_ = logger.Sync() // sync errors on stderr are benign
		return nil
	},
}

// buildCounterStore selects the durable counter backend per config. The
// returned redis client, when non-nil, must be closed by the caller.
func buildCounterStore(ctx context.Context, db *store.Store, logger *zap.Logger) (limiter.CounterStore, *redis.Client, error) {
	switch cfg.Limiter.Driver {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cs, err := limiter.NewRedisCounterStore(rdb)
		if err != nil {
			rdb.Close() // nolint:errcheck
			return nil, nil, err
		}
		logger.Info("Limiter using redis counter store", zap.String("addr", cfg.Redis.Addr))
		return cs, rdb, nil
	case "memory":
		logger.Warn("Limiter running memory-only; counts reset on restart and are per-instance")
		return nil, nil, nil
	default:
		return db, nil, nil
	}
}

// sweepExpiredWindows periodically deletes rate-limit rows past their
// expiry. The store has no TTL of its own.
func sweepExpiredWindows(ctx context.Context, db *store.Store, interval time.Duration, logger *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.PurgeExpiredWindows(ctx, time.Now().UTC())
			if err != nil {
				logger.Warn("Window sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("Swept expired rate-limit windows", zap.Int64("purged", n))
			}
		}
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
