package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/tempo-chess/tempo/internal/app/loadtest"
	"github.com/tempo-chess/tempo/pkg/logging"
)

func main() {
	logging.Init()
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := loadtest.NewRunner().Run(ctx); err != nil {
		logging.Error("loadtest failed", zap.Error(err))
		os.Exit(1)
	}
}
