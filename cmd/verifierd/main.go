package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/HexlinkOfficial/hexlink-verifier/internal/config"
	"github.com/HexlinkOfficial/hexlink-verifier/internal/infra/logging"

	"go.uber.org/zap"
)

func main() {
	cfg := config.FromEnv()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to init service", zap.Error(err))
	}
	defer app.Close()

	if err := app.server.Run(ctx); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
