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

	"github.com/park285/chess-session-api/internal/chessbuilder"
	appcfg "github.com/park285/chess-session-api/internal/config"
	"github.com/park285/chess-session-api/internal/obslog"
	"go.uber.org/zap"
)

var version = "1.0.0"

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()
	logger := obslog.L()

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	deps, err := chessbuilder.New(initCtx, cfg, version, logger)
	cancel()
	if err != nil {
		logger.Fatal("init_failed", zap.Error(err))
	}
	defer deps.Close()
	logger.Info("startup", zap.String("version", version), zap.String("store", cfg.StoreBackend))

	errCh := make(chan error, 2)
	go func() {
		errCh <- deps.API.ListenAndServe(cfg.HTTPAddr)
	}()
	if deps.Live != nil {
		go func() {
			logger.Info("live_listen", zap.String("addr", deps.Live.Addr))
			if err := deps.Live.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("shutdown", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			logger.Error("server_failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := deps.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown_incomplete", zap.Error(err))
	}
}
