package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"uniworld_server/config"
	"uniworld_server/internal/bootstrap"
	"uniworld_server/pkg/logger"
)

func main() {
	logger.Init(logger.Config{
		Level:   logger.LevelInfo,
		Service: "uniworld",
	})

	// Load .env if present (local development).
	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config: %v", err)
	}

	app, cleanup, err := bootstrap.NewAPI(cfg)
	if err != nil {
		logger.Fatal("failed to initialize API: %v", err)
	}
	defer cleanup()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down (timeout: %v)...", cfg.App.ShutdownTimeout)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- app.Shutdown()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Error("error shutting down: %v", err)
			} else {
				logger.Info("server shut down gracefully")
			}
		case <-ctx.Done():
			logger.Warn("shutdown timed out, forcing exit")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.App.Port)
	logger.Info("starting API server on %s", addr)
	if err := app.Listen(addr); err != nil {
		logger.Fatal("failed to start server: %v", err)
	}
}
