package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/tempo-chess/tempo/internal/domains/entities"
	appstorage "github.com/tempo-chess/tempo/internal/storage"
)

// PutPairing registers a round pairing and binds it to the session that will
// play it. An existing pairing is never overwritten.
func (client *Client) PutPairing(ctx context.Context, pairing entities.TournamentPairing) error {
	if pairing.Result == "" {
		pairing.Result = entities.ResultPending
	}
	pairing.UpdatedAt = time.Now()
	item, err := attributevalue.MarshalMap(pairing)
	if err != nil {
		return fmt.Errorf("failed to marshal pairing: %w", err)
	}
	_, err = client.dynamodb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           client.cfg.PairingsTableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PairingId)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return appstorage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to put pairing: %w", err)
	}
	return nil
}

func (client *Client) GetPairingBySession(ctx context.Context, sessionId string) (entities.TournamentPairing, error) {
	output, err := client.dynamodb.Query(ctx, &dynamodb.QueryInput{
		TableName:              client.cfg.PairingsTableName,
		IndexName:              client.cfg.PairingsBySessionIndexName,
		KeyConditionExpression: aws.String("SessionId = :sessionId"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sessionId": &types.AttributeValueMemberS{Value: sessionId},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return entities.TournamentPairing{}, fmt.Errorf("failed to query pairing: %w", err)
	}
	if len(output.Items) == 0 {
		return entities.TournamentPairing{}, appstorage.ErrPairingNotFound
	}
	var pairing entities.TournamentPairing
	if err := attributevalue.UnmarshalMap(output.Items[0], &pairing); err != nil {
		return entities.TournamentPairing{}, fmt.Errorf("failed to unmarshal pairing: %w", err)
	}
	return pairing, nil
}

// RecordResult writes the pairing result and credits standings in one
// transaction. The pending-result condition makes duplicate terminal events
// a no-op signalled by ErrAlreadyFinalized.
func (client *Client) RecordResult(
	ctx context.Context,
	tournamentId,
	pairingId,
	result string,
	credits []appstorage.PointsCredit,
) error {
	now := time.Now().Format(time.RFC3339Nano)
	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName: client.cfg.PairingsTableName,
				Key: map[string]types.AttributeValue{
					"TournamentId": &types.AttributeValueMemberS{Value: tournamentId},
					"PairingId":    &types.AttributeValueMemberS{Value: pairingId},
				},
				UpdateExpression:    aws.String("SET #result = :result, UpdatedAt = :updatedAt"),
				ConditionExpression: aws.String("#result = :pending"),
				ExpressionAttributeNames: map[string]string{
					"#result": "Result",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":result":    &types.AttributeValueMemberS{Value: result},
					":pending":   &types.AttributeValueMemberS{Value: entities.ResultPending},
					":updatedAt": &types.AttributeValueMemberS{Value: now},
				},
			},
		},
	}
	for _, credit := range credits {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName: client.cfg.StandingsTableName,
				Key: map[string]types.AttributeValue{
					"TournamentId":  &types.AttributeValueMemberS{Value: tournamentId},
					"ParticipantId": &types.AttributeValueMemberS{Value: credit.ParticipantId},
				},
				UpdateExpression: aws.String(
					"ADD Points :points, Wins :wins, Draws :draws, Losses :losses SET UpdatedAt = :updatedAt",
				),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":points":    &types.AttributeValueMemberN{Value: strconv.FormatFloat(credit.Points, 'f', -1, 64)},
					":wins":      &types.AttributeValueMemberN{Value: strconv.Itoa(credit.Wins)},
					":draws":     &types.AttributeValueMemberN{Value: strconv.Itoa(credit.Draws)},
					":losses":    &types.AttributeValueMemberN{Value: strconv.Itoa(credit.Losses)},
					":updatedAt": &types.AttributeValueMemberS{Value: now},
				},
			},
		})
	}

	_, err := client.dynamodb.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return appstorage.ErrAlreadyFinalized
				}
			}
		}
		return fmt.Errorf("failed to record pairing result: %w", err)
	}
	return nil
}

func (client *Client) GetStanding(ctx context.Context, tournamentId, participantId string) (entities.TournamentStanding, error) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: client.cfg.StandingsTableName,
		Key: map[string]types.AttributeValue{
			"TournamentId":  &types.AttributeValueMemberS{Value: tournamentId},
			"ParticipantId": &types.AttributeValueMemberS{Value: participantId},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return entities.TournamentStanding{}, fmt.Errorf("failed to get standing: %w", err)
	}
	if output.Item == nil {
		return entities.TournamentStanding{}, appstorage.ErrRecordNotFound
	}
	var standing entities.TournamentStanding
	if err := attributevalue.UnmarshalMap(output.Item, &standing); err != nil {
		return entities.TournamentStanding{}, fmt.Errorf("failed to unmarshal standing: %w", err)
	}
	return standing, nil
}
