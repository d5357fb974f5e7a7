package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dfranca/folio-chat/internal/config"
	"github.com/dfranca/folio-chat/internal/llm"
	"github.com/dfranca/folio-chat/internal/logger"
	"github.com/dfranca/folio-chat/internal/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	if cfg.LLM.APIKey == "" {
		logger.L.Warn("no upstream API key configured; upstream calls will be rejected")
	}

	llmClient := llm.NewClient(cfg.LLM)
	handler := relay.NewHandler(llmClient, cfg)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler.Routes(),
	}

	go func() {
		logger.L.Info("starting server", "address", addr, "model", cfg.LLM.Model)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L.Error("failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.L.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L.Error("server shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.L.Info("server stopped")
}
