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

func (client *Client) WriteInitial(ctx context.Context, record entities.SessionRecord) error {
	av, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}

	_, err = client.dynamodb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           client.cfg.SessionsTableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(SessionId)"),
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return appstorage.ErrAlreadyExists
		}
		return fmt.Errorf("failed to put session record: %w", err)
	}
	return nil
}

func (client *Client) AppendMove(ctx context.Context, sessionId, uci string, ply int) error {
	_, err := client.dynamodb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: client.cfg.SessionsTableName,
		Key: map[string]types.AttributeValue{
			"SessionId": &types.AttributeValueMemberS{Value: sessionId},
		},
		UpdateExpression: aws.String("SET Moves = list_append(Moves, :move), UpdatedAt = :updatedAt"),
		ConditionExpression: aws.String(
			"attribute_exists(SessionId) AND size(Moves) = :prev",
		),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":move": &types.AttributeValueMemberL{
				Value: []types.AttributeValue{&types.AttributeValueMemberS{Value: uci}},
			},
			":prev":      &types.AttributeValueMemberN{Value: strconv.Itoa(ply - 1)},
			":updatedAt": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339Nano)},
		},
	})
	if err == nil {
		return nil
	}
	var conditionFailed *types.ConditionalCheckFailedException
	if !errors.As(err, &conditionFailed) {
		return fmt.Errorf("failed to append move: %w", err)
	}

	// Distinguish a retried delivery from a real gap.
	record, readErr := client.ReadRecord(ctx, sessionId)
	if readErr != nil {
		return readErr
	}
	if len(record.Moves) >= ply {
		return nil
	}
	return appstorage.ErrPlyMismatch
}

func (client *Client) SyncMoves(ctx context.Context, sessionId string, moves []string) error {
	movesAv, err := attributevalue.Marshal(moves)
	if err != nil {
		return fmt.Errorf("failed to marshal move list: %w", err)
	}
	_, err = client.dynamodb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: client.cfg.SessionsTableName,
		Key: map[string]types.AttributeValue{
			"SessionId": &types.AttributeValueMemberS{Value: sessionId},
		},
		UpdateExpression:    aws.String("SET Moves = :moves, UpdatedAt = :updatedAt"),
		ConditionExpression: aws.String("attribute_exists(SessionId)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":moves":     movesAv,
			":updatedAt": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339Nano)},
		},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return appstorage.ErrRecordNotFound
		}
		return fmt.Errorf("failed to sync moves: %w", err)
	}
	return nil
}

func (client *Client) Finalize(ctx context.Context, sessionId, result, reason string) error {
	_, err := client.dynamodb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: client.cfg.SessionsTableName,
		Key: map[string]types.AttributeValue{
			"SessionId": &types.AttributeValueMemberS{Value: sessionId},
		},
		UpdateExpression: aws.String(
			"SET #status = :finished, #result = :result, Reason = :reason, UpdatedAt = :updatedAt",
		),
		ConditionExpression: aws.String("attribute_exists(SessionId) AND #status = :live"),
		ExpressionAttributeNames: map[string]string{
			"#status": "Status",
			"#result": "Result",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":finished":  &types.AttributeValueMemberS{Value: string(entities.StatusFinished)},
			":live":      &types.AttributeValueMemberS{Value: string(entities.StatusLive)},
			":result":    &types.AttributeValueMemberS{Value: result},
			":reason":    &types.AttributeValueMemberS{Value: reason},
			":updatedAt": &types.AttributeValueMemberS{Value: time.Now().Format(time.RFC3339Nano)},
		},
	})
	if err == nil {
		return nil
	}
	var conditionFailed *types.ConditionalCheckFailedException
	if !errors.As(err, &conditionFailed) {
		return fmt.Errorf("failed to finalize session record: %w", err)
	}

	record, readErr := client.ReadRecord(ctx, sessionId)
	if readErr != nil {
		return readErr
	}
	if record.Status == entities.StatusFinished {
		return nil // retried finalize
	}
	return fmt.Errorf("failed to finalize session record: %w", err)
}

func (client *Client) ReadRecord(ctx context.Context, sessionId string) (entities.SessionRecord, error) {
	output, err := client.dynamodb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: client.cfg.SessionsTableName,
		Key: map[string]types.AttributeValue{
			"SessionId": &types.AttributeValueMemberS{Value: sessionId},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return entities.SessionRecord{}, fmt.Errorf("failed to get session record: %w", err)
	}
	if output.Item == nil {
		return entities.SessionRecord{}, appstorage.ErrRecordNotFound
	}
	var record entities.SessionRecord
	if err := attributevalue.UnmarshalMap(output.Item, &record); err != nil {
		return entities.SessionRecord{}, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return record, nil
}
