// Package main is the entry point for the oraculo back-office admin server.
// Runs on its own port and exposes authority-only endpoints.
//
// Run with -issue-token <account> to print a bearer token and exit; this is
// how the authority obtains its first token.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oraculo/protocol/internal/backoffice"
	"github.com/oraculo/protocol/internal/cache/redis"
	"github.com/oraculo/protocol/internal/config"
	"github.com/oraculo/protocol/internal/domain"
	"github.com/oraculo/protocol/internal/repository"
	"github.com/oraculo/protocol/internal/scheduler"
	"github.com/oraculo/protocol/internal/service"
)

func main() {
	issueFor := flag.String("issue-token", "", "print an access token for this account and exit")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	cfg := config.MustLoad()

	var logHandler slog.Handler
	if cfg.IsProd() {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	authSvc := service.NewAuthService(cfg.JWT, cfg.Protocol.Authority)
	if *issueFor != "" {
		tok, err := authSvc.IssueToken(domain.Account(*issueFor))
		if err != nil {
			logger.Error("issue token failed", "err", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	logger.Info("starting oraculo backoffice server",
		"env", cfg.Server.Env, "port", cfg.Server.BackofficePort)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Store ─────────────────────────────────────────────────────────────────
	if cfg.DB.Driver == "memory" {
		logger.Warn("backoffice on the memory store sees none of the API server's state")
	}
	store, closeStore, err := repository.Open(ctx, cfg.DB)
	if err != nil {
		logger.Error("store open failed", "err", err)
		os.Exit(1)
	}
	defer closeStore()

	// ── Events: admin mints reach API clients through the Redis bus ───────────
	events := service.NewFanout(logger)
	var locker scheduler.Locker
	if cfg.RedisEnabled() {
		rc, err := redis.New(ctx, redis.ClientConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Error("redis connection failed", "err", err)
			os.Exit(1)
		}
		defer rc.Close()
		events.Add(redis.NewEventBus(rc, cfg.Redis.Channel))
		locker = redis.NewLockManager(rc)
	}

	// ── Services ──────────────────────────────────────────────────────────────
	adminSvc := service.NewAdminService(store, cfg.Protocol, events, logger)
	if err := adminSvc.Bootstrap(ctx); err != nil {
		logger.Error("bootstrap failed", "err", err)
		os.Exit(1)
	}
	govSvc := service.NewGovernanceService(store, cfg.Protocol, events, logger)

	// ── Router ────────────────────────────────────────────────────────────────
	router := backoffice.SetupBackofficeRouter(backoffice.BackofficeDeps{
		AuthSvc:       authSvc,
		AdminSvc:      adminSvc,
		MarketSvc:     service.NewMarketService(store, cfg.Protocol, events, logger),
		GovernanceSvc: govSvc,
		SettlementSvc: service.NewSettlementService(store, cfg.Protocol, events, logger),
		Passes:        scheduler.NewScheduler(govSvc, locker, cfg.Scheduler, logger),
		Cfg:           cfg,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.BackofficePort,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// ── Start ─────────────────────────────────────────────────────────────────
	go func() {
		logger.Info("backoffice http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("backoffice server error", "err", err)
			stop()
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err = srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("backoffice shutdown error", "err", err)
	}
	logger.Info("backoffice server stopped cleanly")
}
