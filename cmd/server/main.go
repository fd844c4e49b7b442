// Package main is the entry point for the oraculo prediction-market API
// server. It wires the store, services, event fan-out, WebSocket hub and
// governance scheduler, then serves HTTP until SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oraculo/protocol/internal/api"
	"github.com/oraculo/protocol/internal/cache/redis"
	"github.com/oraculo/protocol/internal/config"
	"github.com/oraculo/protocol/internal/repository"
	"github.com/oraculo/protocol/internal/scheduler"
	"github.com/oraculo/protocol/internal/service"
	"github.com/oraculo/protocol/internal/ws"
	"golang.org/x/sync/errgroup"
)

func main() {
	// ── 1. Logger ─────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	logger.Info("starting oraculo server", "env", cfg.Server.Env, "port", cfg.Server.Port, "db", cfg.DB.Driver)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped cleanly")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// ── 2. Root context + signal handling ─────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 3. Store ──────────────────────────────────────────────────────────────
	store, closeStore, err := repository.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("store ready", "driver", cfg.DB.Driver, "auto_migrate", cfg.DB.AutoMigrate)

	// ── 4. Event fan-out ──────────────────────────────────────────────────────
	// Without Redis the hub is a direct sink. With Redis every process
	// publishes to the bus and the hub is fed from the subscription, so
	// back-office events reach WS clients too.
	hub := ws.NewHub([]byte(cfg.JWT.AccessSecret), cfg.Server.AllowedOrigins)
	events := service.NewFanout(logger)

	var (
		locker scheduler.Locker
		bus    *redis.EventBus
	)
	if cfg.RedisEnabled() {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rc.Close()
		bus = redis.NewEventBus(rc, cfg.Redis.Channel)
		events.Add(bus)
		locker = redis.NewLockManager(rc)
		logger.Info("redis connected", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
	} else {
		events.Add(hub)
	}

	// ── 5. Services ───────────────────────────────────────────────────────────
	adminSvc := service.NewAdminService(store, cfg.Protocol, events, logger)
	if err := adminSvc.Bootstrap(ctx); err != nil {
		return err
	}
	marketSvc := service.NewMarketService(store, cfg.Protocol, events, logger)
	govSvc := service.NewGovernanceService(store, cfg.Protocol, events, logger)
	settleSvc := service.NewSettlementService(store, cfg.Protocol, events, logger)
	authSvc := service.NewAuthService(cfg.JWT, cfg.Protocol.Authority)

	// ── 6. HTTP Router ────────────────────────────────────────────────────────
	router := api.SetupRouter(api.RouterDeps{
		AuthSvc:       authSvc,
		MarketSvc:     marketSvc,
		GovernanceSvc: govSvc,
		SettlementSvc: settleSvc,
		Hub:           hub,
		Cfg:           cfg,
	})
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── 7. Run until a signal or the first failure ────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	if bus != nil {
		sub, err := bus.Subscribe(gctx)
		if err != nil {
			return err
		}
		g.Go(func() error {
			for env := range sub {
				_ = hub.Relay(env.Type, env.Market, env.Data, env.Timestamp)
			}
			return nil
		})
	}

	sched := scheduler.NewScheduler(govSvc, locker, cfg.Scheduler, logger)
	sched.Start(gctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// ── 8. Graceful shutdown ──────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received, draining connections…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
