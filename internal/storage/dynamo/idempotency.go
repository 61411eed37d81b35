// Package dynamo stores idempotency records in DynamoDB.
package dynamo

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/go-faster/errors"
)

// API is the subset of the DynamoDB client used by the store.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Status of an idempotency record.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Record is one idempotency key. ExpiresAt is epoch seconds for the table TTL.
type Record struct {
	Key            string `dynamodbav:"idempotency_key"`
	Status         Status `dynamodbav:"status"`
	RequestHash    string `dynamodbav:"request_hash"`
	ResponseStatus int    `dynamodbav:"response_status,omitempty"`
	ResponseBody   string `dynamodbav:"response_body,omitempty"`
	CreatedAt      string `dynamodbav:"created_at"`
	ExpiresAt      int64  `dynamodbav:"expires_at"`
}

// Store implements the idempotency protocol on one table keyed by
// idempotency_key.
type Store struct {
	client API
	table  string
	ttl    time.Duration
	now    func() time.Time
}

// NewStore returns a store on table. Records expire after ttl.
func NewStore(client API, table string, ttl time.Duration) *Store {
	return &Store{client: client, table: table, ttl: ttl, now: time.Now}
}

// Begin claims key for a new request. When the key already exists the stored
// record is returned and claimed is false.
func (s *Store) Begin(ctx context.Context, key, requestHash string) (rec *Record, claimed bool, err error) {
	now := s.now().UTC()
	item, err := attributevalue.MarshalMap(Record{
		Key:         key,
		Status:      StatusInProgress,
		RequestHash: requestHash,
		CreatedAt:   now.Format(time.RFC3339),
		ExpiresAt:   now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "marshal record")
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(idempotency_key)"),
	})
	if err == nil {
		return nil, true, nil
	}
	if !isConditionFailed(err) {
		return nil, false, errors.Wrap(err, "put record")
	}

	rec, err = s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		// Expired and removed between the put and the get.
		return nil, false, errors.Errorf("idempotency key %s vanished", key)
	}
	return rec, false, nil
}

// Get returns the record for key, or nil when absent.
func (s *Store) Get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "get record")
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, errors.Wrap(err, "unmarshal record")
	}
	return &rec, nil
}

// Complete stores the response of a claimed key.
func (s *Store) Complete(ctx context.Context, key string, status int, body []byte) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 keyOf(key),
		UpdateExpression:    aws.String("SET #s = :done, response_status = :rs, response_body = :rb"),
		ConditionExpression: aws.String("#s = :progress"),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done":     &types.AttributeValueMemberS{Value: string(StatusDone)},
			":progress": &types.AttributeValueMemberS{Value: string(StatusInProgress)},
			":rs":       &types.AttributeValueMemberN{Value: strconv.Itoa(status)},
			":rb":       &types.AttributeValueMemberS{Value: string(body)},
		},
	})
	if err != nil {
		return errors.Wrap(err, "complete record")
	}
	return nil
}

// Release deletes a claimed key so the client can retry after a failure.
func (s *Store) Release(ctx context.Context, key string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       keyOf(key),
	})
	if err != nil {
		return errors.Wrap(err, "release record")
	}
	return nil
}

func keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"idempotency_key": &types.AttributeValueMemberS{Value: key},
	}
}

func isConditionFailed(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "ConditionalCheckFailedException"
}
