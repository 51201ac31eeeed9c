package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/thereayou/abstrio/internal/config"
	"github.com/thereayou/abstrio/internal/logging"
)

func main() {
	dropUsers := flag.Bool("drop-users", false, "drop the users table and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := logging.New(cfg.Environment)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *dropUsers {
		if err := runDropUsers(ctx, cfg, logger); err != nil {
			logger.Fatal("drop users failed", zap.Error(err))
		}
		return
	}

	srv, err := NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("server init failed", zap.Error(err))
	}
	if err := srv.Run(ctx); err != nil {
		logger.Fatal("server run error", zap.Error(err))
	}
}
