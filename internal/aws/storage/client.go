// Package storage implements the durable store on DynamoDB.
package storage

import "github.com/aws/aws-sdk-go-v2/service/dynamodb"

type Config struct {
	SessionsTableName  *string
	PairingsTableName  *string
	StandingsTableName *string

	// PairingsBySessionIndexName is the GSI resolving a pairing from the
	// session bound to it.
	PairingsBySessionIndexName *string
}

type Client struct {
	dynamodb *dynamodb.Client
	cfg      Config
}

func NewClient(dynamoClient *dynamodb.Client, cfg Config) *Client {
	return &Client{
		dynamodb: dynamoClient,
		cfg:      cfg,
	}
}
