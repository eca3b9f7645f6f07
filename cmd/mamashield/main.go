package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ent0n29/mamashield/internal/app"
	"github.com/ent0n29/mamashield/internal/config"
	"github.com/ent0n29/mamashield/internal/observability"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf(".env file not loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	result, err := app.Build(runCtx, cfg, logger)
	if err != nil {
		logger.Fatal("build failed", zap.Error(err))
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("cleanup failed", zap.Error(err))
		}
	}()

	result.Sessions.StartJanitor(runCtx, 15*time.Second)
	if result.Digest != nil {
		if err := result.Digest.Start(); err != nil {
			logger.Fatal("digest schedule failed", zap.Error(err))
		}
	}

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: result.API.Router(),
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", cfg.BindAddr),
			zap.String("store", result.Ready.StoreKind),
			zap.String("sender", result.Ready.SenderKind),
			zap.Strings("models", result.Ready.Models),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}
