package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/arboretum/alert-engine/internal/broadcast"
	"github.com/arboretum/alert-engine/internal/config"
	"github.com/arboretum/alert-engine/internal/detector"
	"github.com/arboretum/alert-engine/internal/eligibility"
	"github.com/arboretum/alert-engine/internal/execution"
	"github.com/arboretum/alert-engine/internal/keepalive"
	"github.com/arboretum/alert-engine/internal/model"
	"github.com/arboretum/alert-engine/internal/registry"
	"github.com/arboretum/alert-engine/internal/server"
	"github.com/arboretum/alert-engine/internal/simulate"
	"github.com/arboretum/alert-engine/internal/unlock"
	"github.com/arboretum/alert-engine/internal/users"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	// --- Initialize stores ---
	var directory users.Directory
	var unlocks unlock.Store
	var cleanup []func()

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			slog.Error("database connection failed", "err", err)
			os.Exit(1)
		}
		cleanup = append(cleanup, pool.Close)
		directory = users.NewPostgresDirectory(pool)
		unlocks = unlock.NewPostgresStore(pool)
		slog.Info("connected to PostgreSQL")

		// Wrap unlock lookups with a Redis read-through cache if configured.
		if cfg.RedisURL != "" {
			opt, err := redis.ParseURL(cfg.RedisURL)
			if err != nil {
				slog.Error("invalid REDIS_URL", "err", err)
				os.Exit(1)
			}
			rdb := redis.NewClient(opt)
			cleanup = append(cleanup, func() { rdb.Close() })
			unlocks = unlock.NewCachedStore(unlocks, rdb, 5*time.Minute)
			slog.Info("Redis unlock cache enabled")
		}
	} else {
		slog.Warn("DATABASE_URL not set, using in-memory stores (data will not persist)")
		memDir := users.NewMemoryDirectory()
		seedDemoUsers(memDir)
		directory = memDir
		unlocks = unlock.NewMemoryStore()
	}

	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	// --- Simulated capabilities ---
	balances := simulate.NewBalances()
	executor := simulate.NewExecutor(
		cfg.ExecutionLatency,
		cfg.ExecutionFee,
		cfg.ProfitSharePercent.Div(decimal.NewFromInt(100)),
	)
	payer := simulate.NewPayer()

	// --- Engine wiring ---
	reg := registry.New()
	evaluator := eligibility.New(balances, cfg.ExecutionFee)
	coordinator := execution.NewCoordinator(reg, executor, payer)
	broadcaster := broadcast.New(reg, directory, evaluator, coordinator, unlocks)
	det := detector.New(broadcaster, cfg.OpportunityTTL)
	supervisor := keepalive.New(reg, cfg.KeepaliveInterval)

	srv := server.New(reg, directory, evaluator, det, unlocks)
	httpSrv := srv.HTTPServer(cfg.Port)

	// --- Background loops ---
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go det.Run(ctx)
	go supervisor.Run(ctx)

	go func() {
		slog.Info("alert-engine listening", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down alert-engine...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
	}

	// Drain in-flight executions so payouts are not cut off mid-trade.
	broadcaster.Wait()
	fmt.Println("alert-engine stopped")
}

// seedDemoUsers populates the in-memory directory so the engine is usable
// out of the box without a database.
func seedDemoUsers(dir *users.MemoryDirectory) {
	now := time.Now().UTC()
	dir.Put(&model.RiskProfile{
		UserID:               "demo-user",
		Email:                "demo@arboretum.dev",
		WalletAddress:        "0x742d35cc6634c0532925a3b844bc9e7595f8fa8e",
		MaxRiskPerTrade:      decimal.NewFromInt(500),
		DailyRiskLimit:       decimal.NewFromInt(2000),
		MinAccountBalance:    decimal.NewFromInt(50),
		ProfitThreshold:      decimal.NewFromInt(10),
		AutoExecutionEnabled: true,
		IsActive:             true,
		CreatedAt:            now,
	})
	dir.Put(&model.RiskProfile{
		UserID:               "demo-observer",
		Email:                "observer@arboretum.dev",
		WalletAddress:        "0x53d284357ec70ce289d6d64134dfac8e511c8a3d",
		MaxRiskPerTrade:      decimal.NewFromInt(100),
		DailyRiskLimit:       decimal.NewFromInt(500),
		MinAccountBalance:    decimal.NewFromInt(25),
		ProfitThreshold:      decimal.NewFromInt(5),
		AutoExecutionEnabled: false,
		IsActive:             true,
		CreatedAt:            now,
	})
	slog.Info("seeded demo users", "count", 2)
}
