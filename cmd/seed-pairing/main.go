// Command seed-pairing registers a tournament pairing so the coordinator
// can bind a session to it and propagate its result.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	awsstorage "github.com/tempo-chess/tempo/internal/aws/storage"
	"github.com/tempo-chess/tempo/internal/domains/entities"
	"github.com/tempo-chess/tempo/pkg/logging"
)

func main() {
	logging.Init()
	defer logging.Sync()

	tournamentId := flag.String("tournament", "", "tournament id")
	pairingId := flag.String("pairing", "", "pairing id")
	round := flag.Int("round", 1, "round number")
	white := flag.String("white", "", "white participant id")
	black := flag.String("black", "", "black participant id")
	sessionId := flag.String("session", "", "session id bound to the pairing")
	flag.Parse()

	if *tournamentId == "" || *pairingId == "" || *white == "" || *black == "" {
		logging.Fatal("tournament, pairing, white and black are required")
	}

	viper.AutomaticEnv()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(viper.GetString("AWS_REGION")))
	if err != nil {
		logging.Fatal("couldn't load aws config", zap.Error(err))
	}
	client := awsstorage.NewClient(
		dynamodb.NewFromConfig(awsCfg),
		awsstorage.Config{
			PairingsTableName: aws.String(viper.GetString("PAIRINGS_TABLE_NAME")),
		},
	)

	err = client.PutPairing(ctx, entities.TournamentPairing{
		TournamentId: *tournamentId,
		PairingId:    *pairingId,
		Round:        *round,
		White:        *white,
		Black:        *black,
		SessionId:    *sessionId,
	})
	if err != nil {
		logging.Fatal("couldn't seed pairing", zap.Error(err))
	}
	logging.Info("pairing seeded",
		zap.String("tournament_id", *tournamentId),
		zap.String("pairing_id", *pairingId),
		zap.Int("round", *round),
	)
}
