package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tempo-chess/tempo/internal/app/server"
	awsstorage "github.com/tempo-chess/tempo/internal/aws/storage"
	"github.com/tempo-chess/tempo/internal/match"
	"github.com/tempo-chess/tempo/internal/rules"
	"github.com/tempo-chess/tempo/internal/tournament"
	"github.com/tempo-chess/tempo/internal/transport"
	"github.com/tempo-chess/tempo/pkg/logging"
)

func main() {
	logging.Init()
	defer logging.Sync()

	cfg := server.NewConfig()

	awsCfg, err := awsconfig.LoadDefaultConfig(
		context.Background(),
		awsconfig.WithRegion(cfg.AwsRegion),
	)
	if err != nil {
		logging.Fatal("couldn't load aws config", zap.Error(err))
	}
	storageClient := awsstorage.NewClient(
		dynamodb.NewFromConfig(awsCfg),
		awsstorage.Config{
			SessionsTableName:          aws.String(cfg.SessionsTableName),
			PairingsTableName:          aws.String(cfg.PairingsTableName),
			StandingsTableName:         aws.String(cfg.StandingsTableName),
			PairingsBySessionIndexName: aws.String(cfg.PairingsBySessionIndexName),
		},
	)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logging.Fatal("couldn't reach redis", zap.Error(err))
	}

	hub := transport.NewHub()
	relay := transport.NewRelay(hub, rdb)

	coordinator := match.NewCoordinator(
		match.NewStore(),
		match.NewQueue(),
		storageClient,
		rules.NewChessValidator(),
		relay,
		tournament.NewPropagator(storageClient),
		match.Options{
			GateTimeout:       cfg.GateTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReconcileInterval: cfg.ReconcileInterval,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go relay.Run(ctx)
	go coordinator.RunReconciler(ctx)

	srv := server.NewServer(cfg, hub, coordinator)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		logging.Fatal("server exited", zap.Error(err))
	case <-ctx.Done():
	}

	logging.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("http shutdown failed", zap.Error(err))
	}
	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		logging.Error("coordinator drain failed", zap.Error(err))
	}
	os.Exit(0)
}
